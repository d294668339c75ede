// Package harness runs data-driven conformance scenarios against the
// full stack: canonical encoding, materialization, identity and the
// access-scoped gateway. Scenarios are YAML files that build a fixture
// under symbolic names and assert on gateway query results, so the
// access-control contract stays testable without writing Go per case.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/calyptra/intelgraph/internal/canonical"
	"github.com/calyptra/intelgraph/internal/docstore"
	"github.com/calyptra/intelgraph/internal/gateway"
	"github.com/calyptra/intelgraph/internal/graph"
	"github.com/calyptra/intelgraph/internal/identity"
	"github.com/calyptra/intelgraph/internal/record"
)

// Harness executes scenarios. Each scenario runs against a fresh
// in-memory store for isolation.
type Harness struct {
	logger *slog.Logger
}

// New creates a Harness.
func New(logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.Default()
	}
	return &Harness{logger: logger}
}

// QueryResult is the outcome of one scenario query.
type QueryResult struct {
	Passed   bool
	Failures []string
}

// Result is the outcome of a scenario run.
type Result struct {
	Scenario string
	Queries  []QueryResult
}

// Passed reports whether every query assertion held.
func (r *Result) Passed() bool {
	for _, q := range r.Queries {
		if !q.Passed {
			return false
		}
	}
	return true
}

// Run executes a scenario. Setup failures return an error; assertion
// failures are collected in the Result instead.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	store := docstore.NewMemory()
	builder := graph.NewBuilder(store, h.logger)
	registry := identity.NewRegistry(builder, h.logger)
	gw := gateway.New(store, identity.NewResolver(store), h.logger)

	// Symbolic name tables built up during setup.
	users := map[string]*record.Record{}
	orgs := map[string]*record.Record{}
	records := map[string]*record.Record{}

	for _, u := range scenario.Users {
		rec, err := registry.NewUser(ctx, u.Email, u.PasswordHash, u.DisplayName)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", u.Name, err)
		}
		users[u.Name] = rec
		records[u.Name] = rec
	}

	for _, o := range scenario.Orgs {
		admins, err := lookupAll(users, o.Admins, "user")
		if err != nil {
			return nil, fmt.Errorf("org %q: %w", o.Name, err)
		}
		members, err := lookupAll(users, o.Members, "user")
		if err != nil {
			return nil, fmt.Errorf("org %q: %w", o.Name, err)
		}
		rec, err := registry.NewOrg(ctx, o.DisplayName, admins, members)
		if err != nil {
			return nil, fmt.Errorf("org %q: %w", o.Name, err)
		}
		orgs[o.Name] = rec
		records[o.Name] = rec
	}

	for _, a := range scenario.Attributes {
		value, err := canonical.Decode([]byte(a.Value))
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		rec, err := builder.NewAttribute(ctx, a.SubType, value)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		records[a.Name] = rec
	}

	for _, o := range scenario.Objects {
		children, err := lookupAll(records, o.Children, "record")
		if err != nil {
			return nil, fmt.Errorf("object %q: %w", o.Name, err)
		}
		rec, err := builder.NewObject(ctx, o.SubType, children)
		if err != nil {
			return nil, fmt.Errorf("object %q: %w", o.Name, err)
		}
		records[o.Name] = rec
	}

	for _, e := range scenario.Events {
		org, ok := orgs[e.Org]
		if !ok {
			return nil, fmt.Errorf("event %q: unknown org %q", e.Name, e.Org)
		}
		children, err := lookupAll(records, e.Children, "record")
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", e.Name, err)
		}
		rec, err := builder.NewEvent(ctx, e.SubType, org.Hash, e.Timestamp, children)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", e.Name, err)
		}
		records[e.Name] = rec
	}

	for _, r := range scenario.Revoke {
		org, ok := orgs[r.Org]
		if !ok {
			return nil, fmt.Errorf("revoke: unknown org %q", r.Org)
		}
		user, ok := users[r.User]
		if !ok {
			return nil, fmt.Errorf("revoke: unknown user %q", r.User)
		}
		if err := registry.Revoke(ctx, org, user); err != nil {
			return nil, fmt.Errorf("revoke %s from %s: %w", r.User, r.Org, err)
		}
	}

	result := &Result{Scenario: scenario.Name}
	for _, q := range scenario.Queries {
		result.Queries = append(result.Queries, h.runQuery(ctx, gw, q, users, records))
	}
	return result, nil
}

func (h *Harness) runQuery(ctx context.Context, gw *gateway.Gateway, q QueryDef, users, records map[string]*record.Record) QueryResult {
	principal := q.As
	if user, ok := users[q.As]; ok {
		principal = user.Hash
	}

	docs, err := gw.Find(ctx, principal, buildFilter(q.Filter, records), nil)

	var failures []string
	switch {
	case q.ExpectError != "":
		if err == nil {
			failures = append(failures, fmt.Sprintf("expected %s, query succeeded with %d record(s)", q.ExpectError, len(docs)))
		} else if !errorMatches(err, q.ExpectError) {
			failures = append(failures, fmt.Sprintf("expected %s, got: %v", q.ExpectError, err))
		}

	case err != nil:
		failures = append(failures, fmt.Sprintf("query as %q failed: %v", q.As, err))

	default:
		want := make([]string, 0, len(q.ExpectEvents))
		for _, name := range q.ExpectEvents {
			rec, ok := records[name]
			if !ok {
				failures = append(failures, fmt.Sprintf("expect_events names unknown record %q", name))
				continue
			}
			want = append(want, rec.Hash)
		}
		got := make([]string, 0, len(docs))
		for _, doc := range docs {
			got = append(got, doc.Hash)
		}
		sort.Strings(want)
		sort.Strings(got)
		if !equalStrings(want, got) {
			failures = append(failures, fmt.Sprintf("as %q: expected %v, got %v", q.As, want, got))
		}
	}

	return QueryResult{Passed: len(failures) == 0, Failures: failures}
}

// buildFilter converts a scenario filter into a store filter, resolving
// symbolic names in values to record hashes.
func buildFilter(fields map[string]any, records map[string]*record.Record) docstore.Filter {
	filter := make(docstore.Filter, len(fields))
	for name, v := range fields {
		switch val := v.(type) {
		case []any:
			resolved := make([]any, len(val))
			for i, item := range val {
				resolved[i] = resolveValue(item, records)
			}
			filter[name] = docstore.In(resolved...)
		default:
			filter[name] = docstore.Eq(resolveValue(v, records))
		}
	}
	return filter
}

func resolveValue(v any, records map[string]*record.Record) any {
	if s, ok := v.(string); ok {
		if rec, ok := records[s]; ok {
			return rec.Hash
		}
	}
	if n, ok := v.(int); ok {
		return int64(n)
	}
	return v
}

func errorMatches(err error, expect string) bool {
	switch expect {
	case ExpectConflictingFilter:
		var conflict *gateway.ConflictingFilterError
		return errors.As(err, &conflict)
	case ExpectInvalidPrincipal:
		var invalid *identity.InvalidPrincipalError
		return errors.As(err, &invalid)
	}
	return false
}

func lookupAll(table map[string]*record.Record, names []string, what string) ([]*record.Record, error) {
	out := make([]*record.Record, 0, len(names))
	for _, name := range names {
		rec, ok := table[name]
		if !ok {
			return nil, fmt.Errorf("unknown %s %q", what, name)
		}
		out = append(out, rec)
	}
	return out, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
