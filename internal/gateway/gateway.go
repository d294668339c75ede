package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/calyptra/intelgraph/internal/docstore"
	"github.com/calyptra/intelgraph/internal/record"
)

// ConflictingFilterError reports a query that pre-constrains a field
// the gateway manages. Merging a caller-supplied constraint with the
// access scope would be ambiguous about which one wins, so the query
// is rejected outright.
type ConflictingFilterError struct {
	// Field is the gateway-managed field the caller constrained.
	Field string
}

// Error implements the error interface.
func (e *ConflictingFilterError) Error() string {
	return fmt.Sprintf("CONFLICTING_FILTER: field %q is access-scoped and may not appear in the query", e.Field)
}

// AuthorizationResolver answers which orgs a principal may read events
// of. The gateway calls it fresh on every query.
type AuthorizationResolver interface {
	AllowedOrgs(ctx context.Context, principal string) (record.RefSet, error)
}

// Gateway is the access-scoped query boundary for the store. It
// implements the store's read surface with a mandatory principal
// threaded through: event queries are conjoined with the principal's
// allowed orgs, everything else passes through unchanged. All
// event-reading paths must funnel through it; handing callers the raw
// store re-opens the hole it closes.
type Gateway struct {
	store    docstore.Store
	resolver AuthorizationResolver
	logger   *slog.Logger
}

// New creates a Gateway over the given store and resolver.
func New(store docstore.Store, resolver AuthorizationResolver, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{store: store, resolver: resolver, logger: logger}
}

// Find runs a scoped find as the given principal.
func (g *Gateway) Find(ctx context.Context, principal string, filter docstore.Filter, projection docstore.Projection) ([]record.Document, error) {
	scoped, err := g.scope(ctx, principal, filter, "find")
	if err != nil {
		return nil, err
	}
	return g.store.Find(ctx, scoped, projection)
}

// FindOne runs a scoped single-document lookup as the given principal.
// An authorized principal with no access to the matching event sees
// absence, the same answer as for no data at all.
func (g *Gateway) FindOne(ctx context.Context, principal string, filter docstore.Filter, projection docstore.Projection) (*record.Document, error) {
	scoped, err := g.scope(ctx, principal, filter, "find_one")
	if err != nil {
		return nil, err
	}
	return g.store.FindOne(ctx, scoped, projection)
}

// Count runs a scoped count as the given principal.
func (g *Gateway) Count(ctx context.Context, principal string, filter docstore.Filter) (int64, error) {
	scoped, err := g.scope(ctx, principal, filter, "count")
	if err != nil {
		return 0, err
	}
	return g.store.Count(ctx, scoped)
}

// scope decides whether the filter can reach event records and, if so,
// conjoins the principal's allowed orgs. The allowed set is derived
// inside this call, never cached, so a revocation is effective on the
// very next query.
func (g *Gateway) scope(ctx context.Context, principal string, filter docstore.Filter, op string) (docstore.Filter, error) {
	reqID := requestID()

	if !selectsEvents(filter) {
		g.logger.Debug("gateway pass-through",
			"request_id", reqID, "op", op, "principal", principal)
		return filter, nil
	}

	if _, constrained := filter[record.FieldOrgID]; constrained {
		g.logger.Warn("gateway rejected pre-scoped event query",
			"request_id", reqID, "op", op, "principal", principal)
		return nil, &ConflictingFilterError{Field: record.FieldOrgID}
	}

	allowed, err := g.resolver.AllowedOrgs(ctx, principal)
	if err != nil {
		g.logger.Warn("gateway principal resolution failed",
			"request_id", reqID, "op", op, "principal", principal, "error", err)
		return nil, err
	}

	orgs := make([]any, 0, len(allowed))
	for _, h := range allowed.Sorted() {
		orgs = append(orgs, h)
	}
	scoped := filter.Clone()
	scoped[record.FieldOrgID] = docstore.In(orgs...)

	g.logger.Debug("gateway scoped event query",
		"request_id", reqID, "op", op, "principal", principal, "allowed_orgs", len(allowed))
	return scoped, nil
}

// selectsEvents reports whether the filter can match event records.
// A filter without a kind constraint can, so it is scoped too; only a
// kind constraint that excludes events passes through unscoped.
func selectsEvents(filter docstore.Filter) bool {
	cond, ok := filter[record.FieldKind]
	if !ok {
		return true
	}
	switch cond.Op {
	case docstore.OpEq:
		return isEventKind(cond.Value)
	case docstore.OpIn:
		for _, v := range cond.Values {
			if isEventKind(v) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func isEventKind(v any) bool {
	switch k := v.(type) {
	case record.Kind:
		return k == record.KindEvent
	case string:
		return k == string(record.KindEvent)
	default:
		return false
	}
}

func requestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
