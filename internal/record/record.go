package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/calyptra/intelgraph/internal/canonical"
)

// Record is one immutable node of the content-addressed graph.
//
// Identity is (Kind, SubType, Payload): Hash is derived from those three
// at construction and never changes. DirectRefs and TransitiveRefs are
// bookkeeping - they may grow after persistence as new parents come to
// reference this record. The event- and org-specific fields below the
// refs are likewise non-identity metadata.
type Record struct {
	Kind    Kind
	SubType string
	Payload canonical.Value

	// Hash is the lowercase hex SHA-256 digest of the canonical
	// encoding of {kind, sub_type, payload}.
	Hash string

	// DirectRefs holds the hashes of payload-embedded children.
	// TransitiveRefs holds every descendant hash reachable from this
	// record. Invariant: DirectRefs is a subset of TransitiveRefs, and
	// a record's own hash never appears in its TransitiveRefs.
	DirectRefs     RefSet
	TransitiveRefs RefSet

	// ParentRefs is reverse bookkeeping: the hashes of records that
	// directly reference this one. It grows after persistence as new
	// parents materialize and is used for related-record lookups; it
	// never participates in identity.
	ParentRefs RefSet

	// Event fields. OrgID and Timestamp mirror values inside the
	// payload for filtering; Category and the context sets are mutable
	// metadata about children, never part of identity.
	OrgID         string
	Timestamp     int64
	Category      Category
	BenignRefs    RefSet
	MaliciousRefs RefSet

	// Org fields (objects with sub_type "org"). ACL is the derived set
	// of principal hashes allowed to read the org's events, seeded from
	// AdminRefs and MemberRefs and independently extensible.
	AdminRefs  RefSet
	MemberRefs RefSet
	ACL        RefSet
}

// ComputeHash derives the content address of a record: the lowercase hex
// SHA-256 digest of canonical({kind, sub_type, payload}).
func ComputeHash(kind Kind, subType string, payload canonical.Value) (string, error) {
	data, err := canonical.Marshal(canonical.Map{
		"kind":     canonical.String(kind),
		"sub_type": canonical.String(subType),
		"payload":  payload,
	})
	if err != nil {
		return "", fmt.Errorf("hash %s/%s: %w", kind, subType, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// IsEvent reports whether the record is an event.
func (r *Record) IsEvent() bool {
	return r.Kind == KindEvent
}
