package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/calyptra/intelgraph/internal/docstore"
	"github.com/calyptra/intelgraph/internal/record"
)

// RelatedOptions holds flags for the related command.
type RelatedOptions struct {
	*RootOptions
	As string
}

// NewRelatedCommand creates the related command.
func NewRelatedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RelatedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "related <hash>",
		Short: "List every record connected to a hash",
		Long: `List every record connected to a hash: ancestors that reach it and
descendants it reaches.

Without --as this is an operator-level read against the local store and
no tenant scoping applies. With --as, event records the principal may
not read are dropped from the listing.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelated(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "principal (user hash or email); scopes event reads")

	return cmd
}

func runRelated(cmd *cobra.Command, opts *RelatedOptions, hash string) error {
	ctx := cmd.Context()
	f := newFormatter(cmd, opts.RootOptions)

	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	related, err := app.Builder.Related(ctx, hash)
	if err != nil {
		return WrapExitError(ExitFailure, "walking related records", err)
	}

	if opts.As != "" {
		visible, err := visibleEvents(ctx, app, opts.As, related)
		if err != nil {
			return queryError(f, err)
		}
		kept := related[:0]
		for _, rec := range related {
			if rec.IsEvent() && !visible.Contains(rec.Hash) {
				continue
			}
			kept = append(kept, rec)
		}
		related = kept
	}

	summaries := make([]recordSummary, 0, len(related))
	for _, rec := range related {
		summaries = append(summaries, newRecordSummary(rec))
	}
	if opts.Format == "json" {
		return f.Success(summaries)
	}
	for _, s := range summaries {
		if err := f.Success(s); err != nil {
			return err
		}
	}
	return nil
}

// visibleEvents asks the gateway which of the listed event records the
// principal may read. One scoped query covers the whole listing.
func visibleEvents(ctx context.Context, app *App, principal string, recs []*record.Record) (record.RefSet, error) {
	hashes := make([]any, 0, len(recs))
	for _, rec := range recs {
		if rec.IsEvent() {
			hashes = append(hashes, rec.Hash)
		}
	}
	visible := record.NewRefSet()
	if len(hashes) == 0 {
		return visible, nil
	}

	docs, err := app.Gateway.Find(ctx, principal, docstore.Filter{
		record.FieldKind: docstore.Eq(string(record.KindEvent)),
		record.FieldHash: docstore.In(hashes...),
	}, docstore.Projection{record.FieldHash})
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		visible.Add(doc.Hash)
	}
	return visible, nil
}
