package graph

import (
	"context"

	"github.com/calyptra/intelgraph/internal/canonical"
	"github.com/calyptra/intelgraph/internal/record"
)

// Replace produces a new parent with oldChild swapped for newChild.
// The original parent is left untouched in the store - this is a
// copy-on-write reconstruction, and the result has a different hash
// unless the swap is a no-op. Ancestors of the parent are NOT rewritten;
// chained edits are performed bottom-up by the caller, one level at a
// time, so every rewrite stays local and auditable.
func (b *Builder) Replace(ctx context.Context, parent, oldChild, newChild *record.Record) (*record.Record, error) {
	if !parent.DirectRefs.Contains(oldChild.Hash) {
		return nil, notAChildError(parent.Hash, oldChild.Hash)
	}

	remaining := parent.DirectRefs.Clone()
	remaining.Remove(oldChild.Hash)
	children, err := b.loadChildren(ctx, remaining)
	if err != nil {
		return nil, err
	}
	children = append(children, newChild)

	return b.reconstruct(ctx, parent, children, oldChild.Hash, newChild.Hash)
}

// Add produces a new parent with newChild appended. Adding a child the
// parent already references returns the parent unchanged.
func (b *Builder) Add(ctx context.Context, parent, newChild *record.Record) (*record.Record, error) {
	if parent.DirectRefs.Contains(newChild.Hash) {
		return parent, nil
	}

	children, err := b.loadChildren(ctx, parent.DirectRefs)
	if err != nil {
		return nil, err
	}
	children = append(children, newChild)

	return b.reconstruct(ctx, parent, children, "", "")
}

// Remove produces a new parent without the given child. Removing the
// last child of an object fails with EMPTY_CHILDREN.
func (b *Builder) Remove(ctx context.Context, parent, child *record.Record) (*record.Record, error) {
	if !parent.DirectRefs.Contains(child.Hash) {
		return nil, notAChildError(parent.Hash, child.Hash)
	}

	remaining := parent.DirectRefs.Clone()
	remaining.Remove(child.Hash)
	if parent.Kind == record.KindObject && len(remaining) == 0 {
		return nil, emptyChildrenError(parent.SubType)
	}
	children, err := b.loadChildren(ctx, remaining)
	if err != nil {
		return nil, err
	}

	return b.reconstruct(ctx, parent, children, child.Hash, "")
}

// reconstruct synthesizes a fresh payload from the new child list,
// carries over the parent's non-child payload entries and kind-specific
// fields, and routes through materialize. Deduplication applies as
// usual: reconstructing a state that already exists returns the
// existing record. Object bookkeeping (admin, member and ACL sets)
// follows the edit: a reference to the swapped-out child is rewritten
// to its replacement or dropped, and everything else carries over.
func (b *Builder) reconstruct(ctx context.Context, parent *record.Record, children []*record.Record, oldHash, newHash string) (*record.Record, error) {
	payload := Denormalize(children)
	if parent.Kind == record.KindEvent {
		payload["orgid"] = canonical.String(parent.OrgID)
		payload["timestamp"] = canonical.Int(parent.Timestamp)
	}

	rec := &record.Record{
		Kind:      parent.Kind,
		SubType:   parent.SubType,
		Payload:   payload,
		OrgID:     parent.OrgID,
		Timestamp: parent.Timestamp,
		Category:  parent.Category,
	}
	if parent.Kind == record.KindObject {
		rec.AdminRefs = rewriteRefs(parent.AdminRefs, oldHash, newHash)
		rec.MemberRefs = rewriteRefs(parent.MemberRefs, oldHash, newHash)
		rec.ACL = rewriteRefs(parent.ACL, oldHash, newHash)
	}
	return b.materialize(ctx, rec, children)
}

// rewriteRefs copies a bookkeeping set through a child swap: a
// reference to the removed child becomes a reference to its
// replacement, or disappears when there is none.
func rewriteRefs(refs record.RefSet, oldHash, newHash string) record.RefSet {
	out := refs.Clone()
	if oldHash != "" && out.Contains(oldHash) {
		out.Remove(oldHash)
		if newHash != "" {
			out.Add(newHash)
		}
	}
	return out
}
