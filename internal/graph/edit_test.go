package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calyptra/intelgraph/internal/canonical"
	"github.com/calyptra/intelgraph/internal/docstore"
	"github.com/calyptra/intelgraph/internal/record"
)

func TestReplaceIsCopyOnWrite(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	oldIP, err := b.NewAttribute(ctx, "ip", canonical.String("1.2.3.4"))
	require.NoError(t, err)
	port, err := b.NewAttribute(ctx, "port", canonical.Int(443))
	require.NoError(t, err)
	obj, err := b.NewObject(ctx, "ip-port", []*record.Record{oldIP, port})
	require.NoError(t, err)

	newIP, err := b.NewAttribute(ctx, "ip", canonical.String("5.6.7.8"))
	require.NoError(t, err)

	edited, err := b.Replace(ctx, obj, oldIP, newIP)
	require.NoError(t, err)

	assert.NotEqual(t, obj.Hash, edited.Hash)
	assert.True(t, edited.DirectRefs.Contains(newIP.Hash))
	assert.False(t, edited.DirectRefs.Contains(oldIP.Hash))
	assert.True(t, edited.DirectRefs.Contains(port.Hash), "untouched child carried over")

	// The original version is still fetchable, byte for byte.
	original, err := b.Get(ctx, obj.Hash)
	require.NoError(t, err)
	require.NotNil(t, original)
	assert.True(t, original.DirectRefs.Contains(oldIP.Hash))

	payload := edited.Payload.(canonical.Map)
	assert.Equal(t, canonical.List{canonical.String("5.6.7.8")}, payload["ip"])
}

func TestReplaceRejectsNonChild(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	ip, err := b.NewAttribute(ctx, "ip", canonical.String("1.2.3.4"))
	require.NoError(t, err)
	obj, err := b.NewObject(ctx, "ip-port", []*record.Record{ip})
	require.NoError(t, err)

	stranger, err := b.NewAttribute(ctx, "domain", canonical.String("example.com"))
	require.NoError(t, err)

	_, err = b.Replace(ctx, obj, stranger, ip)
	var graphErr *GraphError
	require.ErrorAs(t, err, &graphErr)
	assert.Equal(t, ErrCodeNotAChild, graphErr.Code)
	assert.Equal(t, stranger.Hash, graphErr.Hash)
}

func TestReplaceConvergesOnExistingRecord(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	a, err := b.NewAttribute(ctx, "ip", canonical.String("1.1.1.1"))
	require.NoError(t, err)
	c, err := b.NewAttribute(ctx, "ip", canonical.String("2.2.2.2"))
	require.NoError(t, err)

	objA, err := b.NewObject(ctx, "ip-set", []*record.Record{a})
	require.NoError(t, err)
	objC, err := b.NewObject(ctx, "ip-set", []*record.Record{c})
	require.NoError(t, err)

	// Editing objA into objC's shape lands on objC's record.
	edited, err := b.Replace(ctx, objA, a, c)
	require.NoError(t, err)
	assert.Equal(t, objC.Hash, edited.Hash)
}

func TestAddChild(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	ip, err := b.NewAttribute(ctx, "ip", canonical.String("1.2.3.4"))
	require.NoError(t, err)
	obj, err := b.NewObject(ctx, "ip-port", []*record.Record{ip})
	require.NoError(t, err)

	port, err := b.NewAttribute(ctx, "port", canonical.Int(22))
	require.NoError(t, err)

	grown, err := b.Add(ctx, obj, port)
	require.NoError(t, err)
	assert.NotEqual(t, obj.Hash, grown.Hash)
	assert.True(t, grown.DirectRefs.Contains(ip.Hash))
	assert.True(t, grown.DirectRefs.Contains(port.Hash))

	// Adding an existing child is a no-op, not a new version.
	same, err := b.Add(ctx, grown, port)
	require.NoError(t, err)
	assert.Equal(t, grown.Hash, same.Hash)
}

func TestRemoveChild(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	ip, err := b.NewAttribute(ctx, "ip", canonical.String("1.2.3.4"))
	require.NoError(t, err)
	port, err := b.NewAttribute(ctx, "port", canonical.Int(22))
	require.NoError(t, err)
	obj, err := b.NewObject(ctx, "ip-port", []*record.Record{ip, port})
	require.NoError(t, err)

	shrunk, err := b.Remove(ctx, obj, port)
	require.NoError(t, err)
	assert.True(t, shrunk.DirectRefs.Contains(ip.Hash))
	assert.False(t, shrunk.DirectRefs.Contains(port.Hash))

	// Removing the last child of an object is rejected up front.
	_, err = b.Remove(ctx, shrunk, ip)
	var graphErr *GraphError
	require.ErrorAs(t, err, &graphErr)
	assert.Equal(t, ErrCodeEmptyChildren, graphErr.Code)
}

func TestEditCarriesObjectBookkeeping(t *testing.T) {
	ctx := context.Background()
	b, store := newTestBuilder(t)

	name, err := b.NewAttribute(ctx, "name", canonical.String("acme"))
	require.NoError(t, err)
	member, err := b.NewAttribute(ctx, "email", canonical.String("bob@example.com"))
	require.NoError(t, err)
	extra, err := b.NewAttribute(ctx, "email", canonical.String("carol@example.com"))
	require.NoError(t, err)
	org, err := b.NewObject(ctx, "org", []*record.Record{name, member, extra})
	require.NoError(t, err)

	granted := "feedfacefeedfacefeedfacefeedfacefeedfacefeedfacefeedfacefeedface"
	err = store.UpdateOne(ctx,
		docstore.Filter{record.FieldHash: docstore.Eq(org.Hash)},
		docstore.Update{Set: map[string]any{
			record.FieldMemberRefs: []string{member.Hash},
			record.FieldACL:        []string{member.Hash, granted},
		}})
	require.NoError(t, err)
	org, err = b.Get(ctx, org.Hash)
	require.NoError(t, err)

	newMember, err := b.NewAttribute(ctx, "email", canonical.String("bob@corp.example.com"))
	require.NoError(t, err)
	edited, err := b.Replace(ctx, org, member, newMember)
	require.NoError(t, err)

	assert.True(t, edited.MemberRefs.Contains(newMember.Hash), "membership follows the swap")
	assert.False(t, edited.MemberRefs.Contains(member.Hash))
	assert.True(t, edited.ACL.Contains(newMember.Hash))
	assert.False(t, edited.ACL.Contains(member.Hash))
	assert.True(t, edited.ACL.Contains(granted), "granted entries survive the edit")

	stored, err := b.Get(ctx, edited.Hash)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.ACL.Contains(newMember.Hash), "bookkeeping persisted, not just in memory")
	assert.True(t, stored.ACL.Contains(granted))

	// Removing a member drops it from the bookkeeping too.
	shrunk, err := b.Remove(ctx, edited, newMember)
	require.NoError(t, err)
	assert.False(t, shrunk.MemberRefs.Contains(newMember.Hash))
	assert.False(t, shrunk.ACL.Contains(newMember.Hash))
	assert.True(t, shrunk.ACL.Contains(granted))
}

func TestReplacePreservesEventIdentityFields(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	oldIP, err := b.NewAttribute(ctx, "ip", canonical.String("1.2.3.4"))
	require.NoError(t, err)
	event, err := b.NewEvent(ctx, "sighting", "org1", 1700000000, []*record.Record{oldIP})
	require.NoError(t, err)

	newIP, err := b.NewAttribute(ctx, "ip", canonical.String("5.6.7.8"))
	require.NoError(t, err)

	edited, err := b.Replace(ctx, event, oldIP, newIP)
	require.NoError(t, err)

	assert.NotEqual(t, event.Hash, edited.Hash)
	assert.Equal(t, "org1", edited.OrgID)
	assert.Equal(t, int64(1700000000), edited.Timestamp)

	payload := edited.Payload.(canonical.Map)
	assert.Equal(t, canonical.String("org1"), payload["orgid"])
	assert.Equal(t, canonical.Int(1700000000), payload["timestamp"])
}
