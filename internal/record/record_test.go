package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calyptra/intelgraph/internal/canonical"
)

func TestComputeHashDeterminism(t *testing.T) {
	payload := canonical.Map{
		"ip":   canonical.List{canonical.String("8.8.8.8")},
		"meta": canonical.Map{"confidence": canonical.Int(50)},
	}

	h1, err := ComputeHash(KindObject, "ip-port", payload)
	require.NoError(t, err)
	h2, err := ComputeHash(KindObject, "ip-port", payload)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
	assert.Equal(t, strings.ToLower(h1), h1, "digest is lowercase hex")
}

func TestComputeHashIgnoresOrderAndDuplicates(t *testing.T) {
	a := canonical.Map{
		"ip": canonical.List{canonical.String("1.1.1.1"), canonical.String("8.8.8.8")},
	}
	b := canonical.Map{
		"ip": canonical.List{
			canonical.String("8.8.8.8"),
			canonical.String("1.1.1.1"),
			canonical.String("8.8.8.8"),
		},
	}

	ha, err := ComputeHash(KindObject, "ip", a)
	require.NoError(t, err)
	hb, err := ComputeHash(KindObject, "ip", b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestComputeHashVariesWithInputs(t *testing.T) {
	payload := canonical.String("8.8.8.8")

	h1, _ := ComputeHash(KindAttribute, "ip", payload)
	h2, _ := ComputeHash(KindAttribute, "domain", payload)
	h3, _ := ComputeHash(KindObject, "ip", payload)
	h4, _ := ComputeHash(KindAttribute, "ip", canonical.String("1.1.1.1"))

	assert.NotEqual(t, h1, h2, "sub_type participates in identity")
	assert.NotEqual(t, h1, h3, "kind participates in identity")
	assert.NotEqual(t, h1, h4, "payload participates in identity")
}

func TestDecodeKind(t *testing.T) {
	for _, tag := range []string{"attribute", "object", "event", "session", "raw"} {
		k, err := DecodeKind(tag)
		require.NoError(t, err)
		assert.Equal(t, tag, string(k))
	}

	_, err := DecodeKind("widget")
	var unknown *UnknownKindError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "widget", unknown.Tag)
}

func TestDocumentRoundTrip(t *testing.T) {
	payload := canonical.Map{"ip": canonical.List{canonical.String("8.8.8.8")}}
	hash, err := ComputeHash(KindEvent, "sighting", payload)
	require.NoError(t, err)

	r := &Record{
		Kind:           KindEvent,
		SubType:        "sighting",
		Payload:        payload,
		Hash:           hash,
		DirectRefs:     NewRefSet("aaa"),
		TransitiveRefs: NewRefSet("aaa", "bbb"),
		OrgID:          "org-hash",
		Timestamp:      1700000000,
		Category:       CategoryUnknown,
		BenignRefs:     NewRefSet(),
		MaliciousRefs:  NewRefSet("bbb"),
	}

	doc, err := r.Encode()
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa"}, doc.DirectRefs)
	assert.Equal(t, []string{"aaa", "bbb"}, doc.TransitiveRefs)

	back, err := Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, r.Kind, back.Kind)
	assert.Equal(t, r.SubType, back.SubType)
	assert.Equal(t, r.Hash, back.Hash)
	assert.Equal(t, r.OrgID, back.OrgID)
	assert.Equal(t, r.Timestamp, back.Timestamp)
	assert.Equal(t, r.Category, back.Category)
	assert.True(t, back.MaliciousRefs.Contains("bbb"))
	assert.True(t, back.DirectRefs.SubsetOf(back.TransitiveRefs))
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := Decode(Document{Kind: "gadget", Payload: "null"})
	var unknown *UnknownKindError
	require.ErrorAs(t, err, &unknown)
}

func TestRefSetOperations(t *testing.T) {
	s := NewRefSet("a", "b", "b")
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("c"))
	assert.Equal(t, []string{"a", "b"}, s.Sorted())

	s.Add("c")
	s.Remove("a")
	assert.Equal(t, []string{"b", "c"}, s.Sorted())

	u := s.Union(NewRefSet("a"))
	assert.Equal(t, []string{"a", "b", "c"}, u.Sorted())
	assert.True(t, s.SubsetOf(u))
	assert.False(t, u.SubsetOf(s))

	clone := u.Clone()
	clone.Remove("a")
	assert.True(t, u.Contains("a"), "clone is independent")
}
