package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calyptra/intelgraph/internal/canonical"
	"github.com/calyptra/intelgraph/internal/record"
)

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	Value     string
	Children  []string
	Org       string
	Timestamp int64
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <kind> <sub-type>",
		Short: "Materialize a record",
		Long: `Materialize a record of the given kind. Identical content always
lands on the same record; put never duplicates.

Examples:
  intelgraph put attribute ip --value '"8.8.8.8"'
  intelgraph put object ip-port --children <hash>,<hash>
  intelgraph put event sighting --org <org-hash> --timestamp 1700000000 --children <hash>
  intelgraph put session device-session --children <hash>`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Value, "value", "", "attribute scalar as JSON")
	cmd.Flags().StringSliceVar(&opts.Children, "children", nil, "child record hashes")
	cmd.Flags().StringVar(&opts.Org, "org", "", "owning org hash or name (events)")
	cmd.Flags().Int64Var(&opts.Timestamp, "timestamp", 0, "event timestamp (unix seconds)")

	return cmd
}

func runPut(cmd *cobra.Command, opts *PutOptions, kindTag, subType string) error {
	ctx := cmd.Context()
	f := newFormatter(cmd, opts.RootOptions)

	kind, err := record.DecodeKind(kindTag)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid kind", err)
	}

	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()
	app.warnUnknownTag(f, kindTag, subType)

	var rec *record.Record
	switch kind {
	case record.KindAttribute:
		if opts.Value == "" {
			return NewExitError(ExitCommandError, "attribute needs --value")
		}
		value, err := canonical.Decode([]byte(opts.Value))
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --value JSON", err)
		}
		rec, err = app.Builder.NewAttribute(ctx, subType, value)
		if err != nil {
			return WrapExitError(ExitFailure, "materializing attribute", err)
		}

	case record.KindObject, record.KindSession, record.KindEvent:
		children, err := resolveChildren(ctx, app, opts.Children)
		if err != nil {
			return err
		}
		switch kind {
		case record.KindObject:
			rec, err = app.Builder.NewObject(ctx, subType, children)
		case record.KindSession:
			rec, err = app.Builder.NewSession(ctx, subType, children)
		case record.KindEvent:
			org, orgErr := requireOrg(ctx, app, opts.Org)
			if orgErr != nil {
				return orgErr
			}
			rec, err = app.Builder.NewEvent(ctx, subType, org, opts.Timestamp, children)
		}
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("materializing %s", kindTag), err)
		}

	case record.KindRaw:
		return NewExitError(ExitCommandError, "use 'intelgraph ingest' for raw records")
	}

	return f.Success(newRecordSummary(rec))
}

// resolveChildren fetches the records behind the given hashes.
func resolveChildren(ctx context.Context, app *App, hashes []string) ([]*record.Record, error) {
	children := make([]*record.Record, 0, len(hashes))
	for _, h := range hashes {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		rec, err := app.Builder.Get(ctx, h)
		if err != nil {
			return nil, WrapExitError(ExitFailure, "fetching child", err)
		}
		if rec == nil {
			return nil, NewExitError(ExitFailure, fmt.Sprintf("no record with hash %s", h))
		}
		children = append(children, rec)
	}
	return children, nil
}

// requireOrg resolves an --org flag to an org hash.
func requireOrg(ctx context.Context, app *App, key string) (string, error) {
	if key == "" {
		return "", NewExitError(ExitCommandError, "event needs --org")
	}
	org, err := app.Directory.FindOrg(ctx, key)
	if err != nil {
		return "", WrapExitError(ExitFailure, "resolving org", err)
	}
	if org == nil {
		return "", NewExitError(ExitFailure, fmt.Sprintf("no org for %q", key))
	}
	return org.Hash, nil
}

// recordSummary is the put/get output shape.
type recordSummary struct {
	Hash           string   `json:"hash"`
	Kind           string   `json:"kind"`
	SubType        string   `json:"sub_type"`
	DirectRefs     []string `json:"direct_refs,omitempty"`
	TransitiveRefs []string `json:"transitive_refs,omitempty"`
}

func newRecordSummary(rec *record.Record) recordSummary {
	return recordSummary{
		Hash:           rec.Hash,
		Kind:           string(rec.Kind),
		SubType:        rec.SubType,
		DirectRefs:     rec.DirectRefs.Sorted(),
		TransitiveRefs: rec.TransitiveRefs.Sorted(),
	}
}

func (s recordSummary) String() string {
	return fmt.Sprintf("%s %s/%s (%d children)", s.Hash, s.Kind, s.SubType, len(s.DirectRefs))
}
