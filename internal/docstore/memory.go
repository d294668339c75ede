package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/calyptra/intelgraph/internal/record"
)

// Memory is an in-process Store keyed by hash. It exists for tests and
// single-process use; it honors the same idempotent-insert contract as
// the SQLite adapter.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]record.Document
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]record.Document)}
}

var _ Store = (*Memory)(nil)

// Find returns matching documents ordered by hash for stable results.
func (m *Memory) Find(ctx context.Context, filter Filter, projection Projection) ([]record.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []record.Document{}
	for _, doc := range m.docs {
		if matches(&doc, filter) {
			out = append(out, project(doc, projection))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out, nil
}

// FindOne returns the first match in hash order, or nil when absent.
func (m *Memory) FindOne(ctx context.Context, filter Filter, projection Projection) (*record.Document, error) {
	docs, err := m.Find(ctx, filter, projection)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return &docs[0], nil
}

// InsertOne inserts doc unless a document with the same hash already
// exists, in which case the existing document wins.
func (m *Memory) InsertOne(ctx context.Context, doc record.Document) (record.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return record.Document{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.docs[doc.Hash]; ok {
		return existing, false, nil
	}
	m.docs[doc.Hash] = doc
	return doc, true, nil
}

// UpdateOne applies the update to the first matching document.
func (m *Memory) UpdateOne(ctx context.Context, filter Filter, update Update) error {
	_, err := m.update(ctx, filter, update, true)
	return err
}

// UpdateMany applies the update to every matching document and returns
// the number of documents touched.
func (m *Memory) UpdateMany(ctx context.Context, filter Filter, update Update) (int64, error) {
	return m.update(ctx, filter, update, false)
}

func (m *Memory) update(ctx context.Context, filter Filter, update Update, single bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	hashes := make([]string, 0, len(m.docs))
	for h := range m.docs {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	var n int64
	for _, h := range hashes {
		doc := m.docs[h]
		if !matches(&doc, filter) {
			continue
		}
		applyUpdate(&doc, update)
		m.docs[h] = doc
		n++
		if single {
			break
		}
	}
	return n, nil
}

// Count returns the number of matching documents.
func (m *Memory) Count(ctx context.Context, filter Filter) (int64, error) {
	docs, err := m.Find(ctx, filter, nil)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// Aggregate runs the pipeline over the full document set.
func (m *Memory) Aggregate(ctx context.Context, pipeline []Stage) ([]record.Document, error) {
	docs, err := m.Find(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	return runPipeline(docs, pipeline), nil
}

// applyUpdate mutates a document per the update description. Only the
// known field names are touched; unknown names are ignored.
func applyUpdate(doc *record.Document, update Update) {
	for field, v := range update.Set {
		if refs, ok := refField(doc, field); ok {
			if ss, ok := v.([]string); ok {
				*refs = addToSet(nil, ss)
			}
			continue
		}
		switch field {
		case record.FieldCategory:
			if s, ok := stringValue(v); ok {
				doc.Category = s
			}
		case record.FieldOrgID:
			if s, ok := stringValue(v); ok {
				doc.OrgID = s
			}
		case record.FieldTimestamp:
			if n, ok := intValue(v); ok {
				doc.Timestamp = n
			}
		}
	}
	for field, add := range update.AddToSet {
		if refs, ok := refField(doc, field); ok {
			*refs = addToSet(*refs, add)
		}
	}
	for field, pull := range update.Pull {
		if refs, ok := refField(doc, field); ok {
			*refs = pullFromSet(*refs, pull)
		}
	}
}

func refField(doc *record.Document, field string) (*[]string, bool) {
	switch field {
	case record.FieldDirectRefs:
		return &doc.DirectRefs, true
	case record.FieldTransitiveRefs:
		return &doc.TransitiveRefs, true
	case record.FieldParentRefs:
		return &doc.ParentRefs, true
	case record.FieldBenignRefs:
		return &doc.BenignRefs, true
	case record.FieldMaliciousRefs:
		return &doc.MaliciousRefs, true
	case record.FieldAdminRefs:
		return &doc.AdminRefs, true
	case record.FieldMemberRefs:
		return &doc.MemberRefs, true
	case record.FieldACL:
		return &doc.ACL, true
	default:
		return nil, false
	}
}

func addToSet(refs []string, add []string) []string {
	set := record.NewRefSet(refs...)
	for _, h := range add {
		set.Add(h)
	}
	return set.Sorted()
}

func pullFromSet(refs []string, pull []string) []string {
	set := record.NewRefSet(refs...)
	for _, h := range pull {
		set.Remove(h)
	}
	return set.Sorted()
}

// runPipeline applies aggregation stages to an already-ordered slice.
func runPipeline(docs []record.Document, pipeline []Stage) []record.Document {
	out := docs
	for _, stage := range pipeline {
		if stage.Match != nil {
			filtered := []record.Document{}
			for _, doc := range out {
				if matches(&doc, stage.Match) {
					filtered = append(filtered, doc)
				}
			}
			out = filtered
		}
		if stage.SortBy != "" {
			field := stage.SortBy
			desc := stage.Desc
			sort.SliceStable(out, func(i, j int) bool {
				if desc {
					return docLess(&out[j], &out[i], field)
				}
				return docLess(&out[i], &out[j], field)
			})
		}
		if stage.Limit > 0 && len(out) > stage.Limit {
			out = out[:stage.Limit]
		}
	}
	return out
}

func docLess(a, b *record.Document, field string) bool {
	av, aok := a.Field(field)
	bv, bok := b.Field(field)
	if !aok || !bok {
		return a.Hash < b.Hash
	}
	if ai, bi, ok := intPair(av, bv); ok {
		if ai != bi {
			return ai < bi
		}
		return a.Hash < b.Hash
	}
	as, _ := stringValue(av)
	bs, _ := stringValue(bv)
	if as != bs {
		return as < bs
	}
	return a.Hash < b.Hash
}
