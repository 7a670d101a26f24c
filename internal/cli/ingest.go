package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/feedgraph/feedgraph/internal/engine"
	"github.com/feedgraph/feedgraph/internal/model"
	"github.com/feedgraph/feedgraph/internal/wire"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Database  string
	Source    string
	Domain    string
	FetchedAt string
	Viewer    string
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <response-file>",
		Short: "Decode a raw network response and merge it into the graph",
		Long: `Decode one raw response payload and reconcile its entities into the
local graph.

The payload format is selected by --source. For mastodon, --domain names
the instance the response was fetched from and is required. --viewer
attributes the response's relationship flags to an authenticated
account, given as source/domain/remote-id.

Example:
  feedgraph ingest --db ./graph.db --source twitter home_timeline.json
  feedgraph ingest --db ./graph.db --source mastodon --domain hachyderm.io \
      --viewer mastodon/hachyderm.io/109348203 notifications.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite path or Postgres URL (overrides config)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "payload format: twitter or mastodon (required)")
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "instance domain the response came from (mastodon)")
	cmd.Flags().StringVar(&opts.FetchedAt, "fetched-at", "", "response fetch time, RFC 3339 (default now)")
	cmd.Flags().StringVar(&opts.Viewer, "viewer", "", "authenticated account key, source/domain/remote-id")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func runIngest(opts *IngestOptions, path string, cmd *cobra.Command) error {
	fetchedAt := time.Now().UTC()
	if opts.FetchedAt != "" {
		t, err := time.Parse(time.RFC3339, opts.FetchedAt)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --fetched-at", err)
		}
		fetchedAt = t.UTC()
	}

	var viewer *model.Key
	if opts.Viewer != "" {
		k, err := parseKey(opts.Viewer)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --viewer", err)
		}
		viewer = &k
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read response file", err)
	}

	var batch *wire.Batch
	switch opts.Source {
	case "twitter":
		batch, err = wire.DecodeTwitterBatch(raw, fetchedAt, viewer)
	case "mastodon":
		if opts.Domain == "" {
			return WrapExitError(ExitCommandError, "--domain is required for mastodon payloads", nil)
		}
		batch, err = wire.DecodeMastodonBatch(raw, opts.Domain, fetchedAt, viewer)
	default:
		return WrapExitError(ExitCommandError,
			fmt.Sprintf("unknown source %q: must be twitter or mastodon", opts.Source), nil)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to decode response", err)
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

	eng := engine.New(st, engine.WithLogger(slog.Default()))
	summary, err := eng.ApplyBatch(cmd.Context(), batch)
	if err != nil {
		return WrapExitError(ExitFailure, "batch aborted", err)
	}

	if opts.Format == "json" {
		return writeResult(cmd.OutOrStdout(), opts.Format, summary)
	}
	fmt.Fprintf(cmd.OutOrStdout(),
		"batch %s applied: %d created, %d merged, %d skipped\n",
		summary.BatchID,
		summary.AccountsCreated+summary.PostsCreated+summary.NotificationsCreated+
			summary.ListsCreated+summary.SearchesCreated,
		summary.AccountsMerged+summary.PostsMerged+summary.NotificationsMerged+
			summary.ListsMerged+summary.SearchesMerged,
		summary.Skipped)
	return nil
}

// parseKey parses the source/domain/remote-id form used on the command
// line. The domain segment may be empty but must be present.
func parseKey(s string) (model.Key, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return model.Key{}, fmt.Errorf("key %q: want source/domain/remote-id", s)
	}
	return model.Key{
		Source:   model.Source(parts[0]),
		Domain:   parts[1],
		RemoteID: parts[2],
	}, nil
}
