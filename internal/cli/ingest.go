package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Org       string
	Timestamp int64
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <sub-type> <file>",
		Short: "Store an external document verbatim as a raw record",
		Long: `Store an external document verbatim as a raw record. The document is
not decomposed; ingesting the same bytes twice lands on the same record.

Example:
  intelgraph ingest feed ./dump.json --org acme --timestamp 1700000000`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Org, "org", "", "owning org hash or name (optional)")
	cmd.Flags().Int64Var(&opts.Timestamp, "timestamp", 0, "ingest timestamp (unix seconds)")

	return cmd
}

func runIngest(cmd *cobra.Command, opts *IngestOptions, subType, path string) error {
	ctx := cmd.Context()
	f := newFormatter(cmd, opts.RootOptions)

	body, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("reading %s", path), err)
	}

	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()
	app.warnUnknownTag(f, "raw", subType)

	orgHash := ""
	if opts.Org != "" {
		orgHash, err = requireOrg(ctx, app, opts.Org)
		if err != nil {
			return err
		}
	}

	rec, err := app.Builder.NewRaw(ctx, subType, string(body), orgHash, opts.Timestamp)
	if err != nil {
		return WrapExitError(ExitFailure, "materializing raw record", err)
	}
	return f.Success(newRecordSummary(rec))
}
