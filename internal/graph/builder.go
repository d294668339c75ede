package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/calyptra/intelgraph/internal/canonical"
	"github.com/calyptra/intelgraph/internal/docstore"
	"github.com/calyptra/intelgraph/internal/record"
)

// Builder materializes records against a store with deduplication by
// content hash. It holds its store handle explicitly - there is no
// shared global backend.
type Builder struct {
	store  docstore.Store
	logger *slog.Logger
}

// NewBuilder creates a Builder over the given store.
func NewBuilder(store docstore.Store, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{store: store, logger: logger}
}

// Store exposes the underlying adapter for read paths that are not
// access-controlled (construction-time lookups). Event reads by callers
// must go through the gateway instead.
func (b *Builder) Store() docstore.Store {
	return b.store
}

// Materialize reconciles a record with the store: compute reference
// sets and hash, return the existing record if one with that hash is
// already persisted, otherwise persist the new one and note on every
// child that it is now reachable from the new parent.
//
// At most one record per (kind, sub_type, payload) triple ever persists;
// concurrent construction converges on one row via the store's
// insert-or-fetch-by-hash semantics.
func (b *Builder) Materialize(ctx context.Context, kind record.Kind, subType string, payload canonical.Value, children []*record.Record) (*record.Record, error) {
	rec := &record.Record{Kind: kind, SubType: subType, Payload: payload}
	if kind == record.KindEvent {
		rec.Category = record.CategoryUnknown
	}
	return b.materialize(ctx, rec, children)
}

func (b *Builder) materialize(ctx context.Context, rec *record.Record, children []*record.Record) (*record.Record, error) {
	if rec.Kind == record.KindObject && len(children) == 0 {
		return nil, emptyChildrenError(rec.SubType)
	}

	direct := record.NewRefSet()
	transitive := record.NewRefSet()
	for _, child := range children {
		direct.Add(child.Hash)
		transitive.Add(child.Hash)
		for h := range child.TransitiveRefs {
			transitive.Add(h)
		}
	}
	rec.DirectRefs = direct
	rec.TransitiveRefs = transitive

	hash, err := record.ComputeHash(rec.Kind, rec.SubType, rec.Payload)
	if err != nil {
		return nil, err
	}
	rec.Hash = hash

	existing, err := b.store.FindOne(ctx, docstore.Filter{record.FieldHash: docstore.Eq(hash)}, nil)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return record.Decode(*existing)
	}

	doc, err := rec.Encode()
	if err != nil {
		return nil, err
	}
	winner, inserted, err := b.store.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost a construction race; the first writer's record stands.
		return record.Decode(winner)
	}

	// Reverse bookkeeping: each child notes that it is now reachable
	// from the new parent. Kept in a dedicated field so transitive
	// sets stay strictly descendants and the graph stays a DAG; this
	// does not change any child's hash.
	for _, child := range children {
		err := b.store.UpdateOne(ctx,
			docstore.Filter{record.FieldHash: docstore.Eq(child.Hash)},
			docstore.Update{AddToSet: map[string][]string{record.FieldParentRefs: {hash}}})
		if err != nil {
			return nil, fmt.Errorf("note parent on child %s: %w", child.Hash, err)
		}
		if child.ParentRefs == nil {
			child.ParentRefs = record.NewRefSet()
		}
		child.ParentRefs.Add(hash)
	}

	b.logger.Debug("materialized record",
		"kind", rec.Kind, "sub_type", rec.SubType, "hash", hash, "children", len(children))
	return rec, nil
}

// NewAttribute materializes a leaf attribute holding one scalar.
func (b *Builder) NewAttribute(ctx context.Context, subType string, value canonical.Value) (*record.Record, error) {
	switch value.(type) {
	case canonical.String, canonical.Int, canonical.Float, canonical.Bool, canonical.Null:
		return b.Materialize(ctx, record.KindAttribute, subType, value, nil)
	default:
		return nil, &canonical.UnsupportedTypeError{Value: value}
	}
}

// NewObject materializes a composite object. The payload is the
// denormalized snapshot of the children's data, keyed by child sub_type;
// the reference sets carry the normalized hash pointers.
func (b *Builder) NewObject(ctx context.Context, subType string, children []*record.Record) (*record.Record, error) {
	if len(children) == 0 {
		return nil, emptyChildrenError(subType)
	}
	return b.Materialize(ctx, record.KindObject, subType, Denormalize(children), children)
}

// NewEvent materializes an event owned by an org. The owning org and
// timestamp are part of the payload - and therefore of the identity -
// so identical observations by different orgs stay distinct records.
// Category starts as unknown; it is mutable metadata.
func (b *Builder) NewEvent(ctx context.Context, subType, orgID string, timestamp int64, children []*record.Record) (*record.Record, error) {
	payload := Denormalize(children)
	payload["orgid"] = canonical.String(orgID)
	payload["timestamp"] = canonical.Int(timestamp)

	rec := &record.Record{
		Kind:      record.KindEvent,
		SubType:   subType,
		Payload:   payload,
		OrgID:     orgID,
		Timestamp: timestamp,
		Category:  record.CategoryUnknown,
	}
	return b.materialize(ctx, rec, children)
}

// NewSession materializes a session identified by one or more
// identifier objects. Events attach and detach later via the edit
// engine; attachment is reference bookkeeping, not identity.
func (b *Builder) NewSession(ctx context.Context, subType string, identifiers []*record.Record) (*record.Record, error) {
	if len(identifiers) == 0 {
		return nil, emptyIdentifiersError(subType)
	}
	return b.Materialize(ctx, record.KindSession, subType, Denormalize(identifiers), identifiers)
}

// NewRaw materializes a raw record storing an ingested document
// verbatim. Raw records are not decomposed, so they have no children.
func (b *Builder) NewRaw(ctx context.Context, subType, body, orgID string, timestamp int64) (*record.Record, error) {
	rec := &record.Record{
		Kind:      record.KindRaw,
		SubType:   subType,
		Payload:   canonical.String(body),
		OrgID:     orgID,
		Timestamp: timestamp,
	}
	return b.materialize(ctx, rec, nil)
}

// Denormalize builds the payload snapshot of a child list: a mapping
// from child sub_type to the ordered list of child payload values.
func Denormalize(children []*record.Record) canonical.Map {
	payload := canonical.Map{}
	for _, child := range children {
		list, _ := payload[child.SubType].(canonical.List)
		payload[child.SubType] = append(list, child.Payload)
	}
	return payload
}

// Get fetches and decodes a record by hash. Returns nil when absent.
func (b *Builder) Get(ctx context.Context, hash string) (*record.Record, error) {
	doc, err := b.store.FindOne(ctx, docstore.Filter{record.FieldHash: docstore.Eq(hash)}, nil)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return record.Decode(*doc)
}

// Related returns every record connected to hash: ancestors (records
// whose transitive set contains it) and descendants (records in its own
// transitive set). The parent bookkeeping written at materialization
// time keeps the ancestor direction queryable without graph walks.
func (b *Builder) Related(ctx context.Context, hash string) ([]*record.Record, error) {
	ancestors, err := b.store.Find(ctx, docstore.Filter{
		record.FieldTransitiveRefs: docstore.Contains(hash),
	}, nil)
	if err != nil {
		return nil, err
	}

	out := make([]*record.Record, 0, len(ancestors))
	seen := record.NewRefSet()
	for _, doc := range ancestors {
		rec, err := record.Decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
		seen.Add(rec.Hash)
	}

	self, err := b.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if self != nil {
		for _, h := range self.TransitiveRefs.Sorted() {
			if seen.Contains(h) {
				continue
			}
			rec, err := b.Get(ctx, h)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

// loadChildren fetches the records behind a set of hashes. A hash with
// no record behind it fails with MISSING_CHILD.
func (b *Builder) loadChildren(ctx context.Context, refs record.RefSet) ([]*record.Record, error) {
	out := make([]*record.Record, 0, len(refs))
	for _, h := range refs.Sorted() {
		rec, err := b.Get(ctx, h)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, missingChildError(h)
		}
		out = append(out, rec)
	}
	return out, nil
}
