package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/feedgraph/feedgraph/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <kind> <key>",
		Short: "Print one stored entity",
		Long: `Print a stored entity as JSON.

Kind is one of account, post, poll, notification, list, search. Key is
the composite identity source/domain/remote-id; the domain segment is
empty for twitter keys.

Example:
  feedgraph show --db ./graph.db post twitter//1729384750123
  feedgraph show --db ./graph.db account mastodon/hachyderm.io/109348203`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite path or Postgres URL (overrides config)")

	return cmd
}

func runShow(opts *ShowOptions, kind, rawKey string, cmd *cobra.Command) error {
	key, err := parseKey(rawKey)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid key", err)
	}

	st, err := openConfiguredStore(opts.RootOptions, opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	var entity any
	switch kind {
	case "account":
		entity, err = st.Account(ctx, key)
	case "post":
		entity, err = st.Post(ctx, key)
	case "poll":
		entity, err = st.Poll(ctx, key)
	case "notification":
		entity, err = st.Notification(ctx, key)
	case "list":
		entity, err = st.List(ctx, key)
	case "search":
		entity, err = st.SavedSearch(ctx, key)
	default:
		return WrapExitError(ExitCommandError,
			fmt.Sprintf("unknown kind %q: must be account, post, poll, notification, list, or search", kind), nil)
	}
	if errors.Is(err, store.ErrNotFound) {
		return WrapExitError(ExitFailure, fmt.Sprintf("%s %s not found", kind, key), nil)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "lookup failed", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(entity)
}
