package graph

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calyptra/intelgraph/internal/canonical"
	"github.com/calyptra/intelgraph/internal/docstore"
	"github.com/calyptra/intelgraph/internal/record"
)

func newTestBuilder(t *testing.T) (*Builder, docstore.Store) {
	t.Helper()
	store := docstore.NewMemory()
	return NewBuilder(store, nil), store
}

func TestMaterializeDeduplicates(t *testing.T) {
	ctx := context.Background()
	b, store := newTestBuilder(t)

	r1, err := b.NewAttribute(ctx, "ip", canonical.String("8.8.8.8"))
	require.NoError(t, err)
	r2, err := b.NewAttribute(ctx, "ip", canonical.String("  8.8.8.8 "))
	require.NoError(t, err)

	assert.Equal(t, r1.Hash, r2.Hash, "trim-equivalent payloads share one record")

	n, err := store.Count(ctx, docstore.Filter{record.FieldHash: docstore.Eq(r1.Hash)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMaterializeDeterministicAcrossEquivalentPayloads(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	p1 := canonical.Map{"ip": canonical.List{canonical.String("a"), canonical.String("b")}}
	p2 := canonical.Map{"ip": canonical.List{canonical.String("b"), canonical.String("a"), canonical.String("a")}}

	r1, err := b.Materialize(ctx, record.KindRaw, "feed", p1, nil)
	require.NoError(t, err)
	r2, err := b.Materialize(ctx, record.KindRaw, "feed", p2, nil)
	require.NoError(t, err)
	assert.Equal(t, r1.Hash, r2.Hash)
}

func TestMaterializeConcurrentConstruction(t *testing.T) {
	ctx := context.Background()
	b, store := newTestBuilder(t)

	const workers = 12
	var wg sync.WaitGroup
	results := make([]*record.Record, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := b.NewAttribute(ctx, "domain", canonical.String("example.com"))
			assert.NoError(t, err)
			results[i] = rec
		}(i)
	}
	wg.Wait()

	for _, rec := range results[1:] {
		assert.Equal(t, results[0].Hash, rec.Hash)
	}
	n, err := store.Count(ctx, docstore.Filter{record.FieldKind: docstore.Eq(record.KindAttribute)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "race never persists duplicates")
}

func TestObjectNeedsChildren(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	_, err := b.NewObject(ctx, "ip-port", nil)
	var graphErr *GraphError
	require.ErrorAs(t, err, &graphErr)
	assert.Equal(t, ErrCodeEmptyChildren, graphErr.Code)
}

func TestSessionNeedsIdentifiers(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	_, err := b.NewSession(ctx, "incident", nil)
	var graphErr *GraphError
	require.ErrorAs(t, err, &graphErr)
	assert.Equal(t, ErrCodeEmptyChildren, graphErr.Code)
}

func TestObjectRefsAndDenormalizedPayload(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	ip, err := b.NewAttribute(ctx, "ip", canonical.String("8.8.8.8"))
	require.NoError(t, err)
	port, err := b.NewAttribute(ctx, "port", canonical.Int(53))
	require.NoError(t, err)

	obj, err := b.NewObject(ctx, "ip-port", []*record.Record{ip, port})
	require.NoError(t, err)

	assert.True(t, obj.DirectRefs.Contains(ip.Hash))
	assert.True(t, obj.DirectRefs.Contains(port.Hash))
	assert.True(t, obj.DirectRefs.SubsetOf(obj.TransitiveRefs))

	payload := obj.Payload.(canonical.Map)
	assert.Equal(t, canonical.List{canonical.String("8.8.8.8")}, payload["ip"])
	assert.Equal(t, canonical.List{canonical.Int(53)}, payload["port"])

	// Children picked up the reverse bookkeeping.
	assert.True(t, ip.ParentRefs.Contains(obj.Hash))

	stored, err := b.Get(ctx, ip.Hash)
	require.NoError(t, err)
	assert.True(t, stored.ParentRefs.Contains(obj.Hash))
}

func TestTransitiveRefsStayDescendantsOnly(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	leaf, err := b.NewAttribute(ctx, "ip", canonical.String("1.1.1.1"))
	require.NoError(t, err)
	mid, err := b.NewObject(ctx, "ip-port", []*record.Record{leaf})
	require.NoError(t, err)
	top, err := b.NewObject(ctx, "flow", []*record.Record{mid})
	require.NoError(t, err)

	// A second parent over the shared leaf must not inherit the first
	// parent's ancestry through the leaf's bookkeeping.
	other, err := b.NewObject(ctx, "sighting-src", []*record.Record{leaf})
	require.NoError(t, err)
	assert.False(t, other.TransitiveRefs.Contains(mid.Hash))
	assert.False(t, other.TransitiveRefs.Contains(top.Hash))

	assert.Equal(t, []string{leaf.Hash, mid.Hash}, top.TransitiveRefs.Sorted(),
		"flow reaches exactly its descendants")

	for _, rec := range []*record.Record{leaf, mid, top, other} {
		assert.True(t, rec.DirectRefs.SubsetOf(rec.TransitiveRefs))
		assert.False(t, rec.TransitiveRefs.Contains(rec.Hash), "no self-reference")
	}
}

func TestRelatedWalksBothDirections(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	leaf, err := b.NewAttribute(ctx, "ip", canonical.String("1.1.1.1"))
	require.NoError(t, err)
	mid, err := b.NewObject(ctx, "ip-port", []*record.Record{leaf})
	require.NoError(t, err)
	top, err := b.NewObject(ctx, "flow", []*record.Record{mid})
	require.NoError(t, err)

	related, err := b.Related(ctx, mid.Hash)
	require.NoError(t, err)

	got := record.NewRefSet()
	for _, r := range related {
		got.Add(r.Hash)
	}
	assert.True(t, got.Contains(top.Hash), "ancestor found")
	assert.True(t, got.Contains(leaf.Hash), "descendant found")
	assert.False(t, got.Contains(mid.Hash), "record itself excluded")
}

func TestNewEventIdentityIncludesOrg(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	ip, err := b.NewAttribute(ctx, "ip", canonical.String("8.8.8.8"))
	require.NoError(t, err)

	e1, err := b.NewEvent(ctx, "sighting", "org1", 1700000000, []*record.Record{ip})
	require.NoError(t, err)
	e2, err := b.NewEvent(ctx, "sighting", "org2", 1700000000, []*record.Record{ip})
	require.NoError(t, err)

	assert.NotEqual(t, e1.Hash, e2.Hash, "owning org participates in identity")
	assert.Equal(t, record.CategoryUnknown, e1.Category)
	assert.Equal(t, "org1", e1.OrgID)

	stored, err := b.Get(ctx, e1.Hash)
	require.NoError(t, err)
	assert.Equal(t, "org1", stored.OrgID)
	assert.Equal(t, int64(1700000000), stored.Timestamp)
}

func TestNewRawHasNoChildren(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	raw, err := b.NewRaw(ctx, "pcap", `{"vendor":"dump"}`, "org1", 1700000000)
	require.NoError(t, err)
	assert.Empty(t, raw.DirectRefs)
	assert.Empty(t, raw.TransitiveRefs)
}

func TestMaterializeUnsupportedPayload(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	_, err := b.NewAttribute(ctx, "ip", canonical.List{canonical.String("not-a-scalar")})
	var unsupported *canonical.UnsupportedTypeError
	require.ErrorAs(t, err, &unsupported)
}

func TestGetAbsentReturnsNil(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	rec, err := b.Get(ctx, "no-such-hash")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
