package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/feedgraph/feedgraph/internal/cli"
)

func main() {
	// Optional; deployments without a .env file rely on the real
	// environment and flags.
	_ = godotenv.Load()

	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
