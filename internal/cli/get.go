package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calyptra/intelgraph/internal/docstore"
	"github.com/calyptra/intelgraph/internal/record"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	As string
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <hash>",
		Short: "Fetch a record by content hash",
		Long: `Fetch a record by content hash.

Without --as this is an operator-level read against the local store and
no tenant scoping applies. With --as, event records are checked through
the access-scoped gateway: an event outside the principal's orgs is
reported as absent.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "principal (user hash or email); scopes event reads")

	return cmd
}

func runGet(cmd *cobra.Command, opts *GetOptions, hash string) error {
	ctx := cmd.Context()
	f := newFormatter(cmd, opts.RootOptions)

	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	rec, err := app.Builder.Get(ctx, hash)
	if err != nil {
		return WrapExitError(ExitFailure, "fetching record", err)
	}
	if rec == nil {
		return NewExitError(ExitFailure, fmt.Sprintf("no record with hash %s", hash))
	}

	if opts.As != "" && rec.IsEvent() {
		doc, err := app.Gateway.FindOne(ctx, opts.As, docstore.Filter{
			record.FieldHash: docstore.Eq(hash),
			record.FieldKind: docstore.Eq(string(record.KindEvent)),
		}, docstore.Projection{record.FieldHash})
		if err != nil {
			return queryError(f, err)
		}
		if doc == nil {
			// Same answer as for no data at all.
			return NewExitError(ExitFailure, fmt.Sprintf("no record with hash %s", hash))
		}
	}

	if opts.Format == "json" {
		doc, err := rec.Encode()
		if err != nil {
			return WrapExitError(ExitFailure, "encoding record", err)
		}
		return f.Success(doc)
	}
	return f.Success(describeRecord(rec))
}

func describeRecord(rec *record.Record) string {
	out := fmt.Sprintf("%s\nkind: %s\nsub_type: %s", rec.Hash, rec.Kind, rec.SubType)
	if rec.OrgID != "" {
		out += fmt.Sprintf("\norgid: %s", rec.OrgID)
	}
	if rec.Timestamp != 0 {
		out += fmt.Sprintf("\ntimestamp: %d", rec.Timestamp)
	}
	if rec.Category != "" {
		out += fmt.Sprintf("\ncategory: %s", rec.Category)
	}
	for _, h := range rec.DirectRefs.Sorted() {
		out += fmt.Sprintf("\nchild: %s", h)
	}
	return out
}
