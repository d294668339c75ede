package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calyptra/intelgraph/internal/docstore"
	"github.com/calyptra/intelgraph/internal/gateway"
	"github.com/calyptra/intelgraph/internal/identity"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	As     string
	Filter string
	Count  bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query records through the access-scoped gateway",
		Long: `Query records through the access-scoped gateway. Event results are
limited to the orgs the principal may read; the orgid field is managed
by the gateway and may not appear in the filter.

Filter fields take a scalar (equality) or a list (membership):

  intelgraph query --as alice@example.com --filter '{"kind":"event"}'
  intelgraph query --as alice@example.com --filter '{"kind":["attribute","object"]}' --count`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "principal (user hash or email)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "{}", "query filter as JSON")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print the match count instead of documents")
	cmd.MarkFlagRequired("as")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *QueryOptions) error {
	ctx := cmd.Context()
	f := newFormatter(cmd, opts.RootOptions)

	filter, err := parseFilter(opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --filter JSON", err)
	}

	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	if opts.Count {
		n, err := app.Gateway.Count(ctx, opts.As, filter)
		if err != nil {
			return queryError(f, err)
		}
		return f.Success(n)
	}

	docs, err := app.Gateway.Find(ctx, opts.As, filter, nil)
	if err != nil {
		return queryError(f, err)
	}
	if opts.Format == "json" {
		return f.Success(docs)
	}
	for _, doc := range docs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s\n", doc.Hash, doc.Kind, doc.SubType)
	}
	f.VerboseLog("%d record(s)", len(docs))
	return nil
}

// parseFilter converts a JSON object into a filter: scalars become
// equality conditions, lists become membership conditions.
func parseFilter(raw string) (docstore.Filter, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, err
	}
	filter := make(docstore.Filter, len(fields))
	for name, v := range fields {
		switch val := v.(type) {
		case []any:
			filter[name] = docstore.In(val...)
		case map[string]any:
			return nil, fmt.Errorf("field %q: nested filter objects are not supported", name)
		case float64:
			filter[name] = docstore.Eq(int64(val))
		default:
			filter[name] = docstore.Eq(val)
		}
	}
	return filter, nil
}

// queryError reports gateway rejections with their codes and maps them
// to exit codes.
func queryError(f *OutputFormatter, err error) error {
	var conflict *gateway.ConflictingFilterError
	if errors.As(err, &conflict) {
		f.Error("CONFLICTING_FILTER", err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	var invalid *identity.InvalidPrincipalError
	if errors.As(err, &invalid) {
		f.Error("INVALID_PRINCIPAL", err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}
	return WrapExitError(ExitFailure, "query failed", err)
}
