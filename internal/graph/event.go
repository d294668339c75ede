package graph

import (
	"context"

	"github.com/calyptra/intelgraph/internal/docstore"
	"github.com/calyptra/intelgraph/internal/record"
)

// SetCategory transitions an event's category in place. Category is
// metadata about the event, not part of its identity, so this is one of
// the few sanctioned in-place updates.
func (b *Builder) SetCategory(ctx context.Context, event *record.Record, category record.Category) error {
	if !event.IsEvent() {
		return notAnEventError(event.Hash)
	}
	if _, err := record.DecodeCategory(string(category)); err != nil {
		return err
	}

	err := b.store.UpdateOne(ctx,
		docstore.Filter{record.FieldHash: docstore.Eq(event.Hash)},
		docstore.Update{Set: map[string]any{record.FieldCategory: category}})
	if err != nil {
		return err
	}
	event.Category = category
	return nil
}

// SetContext tags a descendant of the event as benign or malicious in
// the event's auxiliary reference sets, or clears the tag with
// CategoryUnknown. The tag describes the child's relation to this
// event, so the whole subtree is never forked for it. The child must be
// reachable from the event.
func (b *Builder) SetContext(ctx context.Context, event *record.Record, child *record.Record, class record.Category) error {
	if !event.IsEvent() {
		return notAnEventError(event.Hash)
	}
	if !event.TransitiveRefs.Contains(child.Hash) {
		return notAChildError(event.Hash, child.Hash)
	}

	update := docstore.Update{
		AddToSet: map[string][]string{},
		Pull:     map[string][]string{},
	}
	switch class {
	case record.CategoryBenign:
		update.AddToSet[record.FieldBenignRefs] = []string{child.Hash}
		update.Pull[record.FieldMaliciousRefs] = []string{child.Hash}
	case record.CategoryMalicious:
		update.AddToSet[record.FieldMaliciousRefs] = []string{child.Hash}
		update.Pull[record.FieldBenignRefs] = []string{child.Hash}
	case record.CategoryUnknown:
		update.Pull[record.FieldBenignRefs] = []string{child.Hash}
		update.Pull[record.FieldMaliciousRefs] = []string{child.Hash}
	default:
		if _, err := record.DecodeCategory(string(class)); err != nil {
			return err
		}
	}

	err := b.store.UpdateOne(ctx,
		docstore.Filter{record.FieldHash: docstore.Eq(event.Hash)},
		update)
	if err != nil {
		return err
	}

	applyContext(event, child.Hash, class)
	return nil
}

func applyContext(event *record.Record, childHash string, class record.Category) {
	if event.BenignRefs == nil {
		event.BenignRefs = record.NewRefSet()
	}
	if event.MaliciousRefs == nil {
		event.MaliciousRefs = record.NewRefSet()
	}
	event.BenignRefs.Remove(childHash)
	event.MaliciousRefs.Remove(childHash)
	switch class {
	case record.CategoryBenign:
		event.BenignRefs.Add(childHash)
	case record.CategoryMalicious:
		event.MaliciousRefs.Add(childHash)
	}
}

// AttachEvent links an event into a session. Attachment only touches
// the session's reference sets - the session's hash is unchanged, and
// unrelated events are never re-hashed.
func (b *Builder) AttachEvent(ctx context.Context, session, event *record.Record) error {
	if session.Kind != record.KindSession {
		return &GraphError{Code: ErrCodeNotASession, Message: "attach target must be a session", Hash: session.Hash}
	}
	if !event.IsEvent() {
		return notAnEventError(event.Hash)
	}

	reachable := append([]string{event.Hash}, event.TransitiveRefs.Sorted()...)
	err := b.store.UpdateOne(ctx,
		docstore.Filter{record.FieldHash: docstore.Eq(session.Hash)},
		docstore.Update{AddToSet: map[string][]string{
			record.FieldDirectRefs:     {event.Hash},
			record.FieldTransitiveRefs: reachable,
		}})
	if err != nil {
		return err
	}
	err = b.store.UpdateOne(ctx,
		docstore.Filter{record.FieldHash: docstore.Eq(event.Hash)},
		docstore.Update{AddToSet: map[string][]string{record.FieldParentRefs: {session.Hash}}})
	if err != nil {
		return err
	}
	if event.ParentRefs == nil {
		event.ParentRefs = record.NewRefSet()
	}
	event.ParentRefs.Add(session.Hash)

	session.DirectRefs.Add(event.Hash)
	session.TransitiveRefs.Add(event.Hash)
	for h := range event.TransitiveRefs {
		session.TransitiveRefs.Add(h)
	}
	return nil
}

// DetachEvent unlinks an event from a session. The session's transitive
// set is recomputed from its remaining children, since descendants of
// the detached event may still be reachable through others.
func (b *Builder) DetachEvent(ctx context.Context, session, event *record.Record) error {
	if !session.DirectRefs.Contains(event.Hash) {
		return notAChildError(session.Hash, event.Hash)
	}

	remaining := session.DirectRefs.Clone()
	remaining.Remove(event.Hash)
	children, err := b.loadChildren(ctx, remaining)
	if err != nil {
		return err
	}

	transitive := record.NewRefSet()
	for _, child := range children {
		transitive.Add(child.Hash)
		for h := range child.TransitiveRefs {
			transitive.Add(h)
		}
	}

	err = b.store.UpdateOne(ctx,
		docstore.Filter{record.FieldHash: docstore.Eq(session.Hash)},
		docstore.Update{Set: map[string]any{
			record.FieldDirectRefs:     remaining.Sorted(),
			record.FieldTransitiveRefs: transitive.Sorted(),
		}})
	if err != nil {
		return err
	}
	err = b.store.UpdateOne(ctx,
		docstore.Filter{record.FieldHash: docstore.Eq(event.Hash)},
		docstore.Update{Pull: map[string][]string{record.FieldParentRefs: {session.Hash}}})
	if err != nil {
		return err
	}
	event.ParentRefs.Remove(session.Hash)

	session.DirectRefs = remaining
	session.TransitiveRefs = transitive
	return nil
}
