package record

import (
	"fmt"

	"github.com/calyptra/intelgraph/internal/canonical"
)

// Document is the flattened store representation of a Record. The
// payload travels as canonical JSON text; every reference set travels
// as a sorted slice so the stored form is deterministic.
type Document struct {
	Hash           string   `json:"hash"`
	Kind           string   `json:"kind"`
	SubType        string   `json:"sub_type"`
	Payload        string   `json:"payload"`
	DirectRefs     []string `json:"direct_refs"`
	TransitiveRefs []string `json:"transitive_refs"`
	ParentRefs     []string `json:"parent_refs,omitempty"`

	OrgID         string   `json:"orgid,omitempty"`
	Timestamp     int64    `json:"timestamp,omitempty"`
	Category      string   `json:"category,omitempty"`
	BenignRefs    []string `json:"benign_refs,omitempty"`
	MaliciousRefs []string `json:"malicious_refs,omitempty"`

	AdminRefs  []string `json:"admin_refs,omitempty"`
	MemberRefs []string `json:"member_refs,omitempty"`
	ACL        []string `json:"acl,omitempty"`
}

// Store field names. Filters address documents by these keys.
const (
	FieldHash           = "hash"
	FieldKind           = "kind"
	FieldSubType        = "sub_type"
	FieldOrgID          = "orgid"
	FieldTimestamp      = "timestamp"
	FieldCategory       = "category"
	FieldDirectRefs     = "direct_refs"
	FieldTransitiveRefs = "transitive_refs"
	FieldParentRefs     = "parent_refs"
	FieldBenignRefs     = "benign_refs"
	FieldMaliciousRefs  = "malicious_refs"
	FieldAdminRefs      = "admin_refs"
	FieldMemberRefs     = "member_refs"
	FieldACL            = "acl"
)

// Field returns the named field's value for filter evaluation. Scalar
// fields return string/int64; reference sets return []string. The second
// result is false for unknown field names.
func (d *Document) Field(name string) (any, bool) {
	switch name {
	case FieldHash:
		return d.Hash, true
	case FieldKind:
		return d.Kind, true
	case FieldSubType:
		return d.SubType, true
	case FieldOrgID:
		return d.OrgID, true
	case FieldTimestamp:
		return d.Timestamp, true
	case FieldCategory:
		return d.Category, true
	case FieldDirectRefs:
		return d.DirectRefs, true
	case FieldTransitiveRefs:
		return d.TransitiveRefs, true
	case FieldParentRefs:
		return d.ParentRefs, true
	case FieldBenignRefs:
		return d.BenignRefs, true
	case FieldMaliciousRefs:
		return d.MaliciousRefs, true
	case FieldAdminRefs:
		return d.AdminRefs, true
	case FieldMemberRefs:
		return d.MemberRefs, true
	case FieldACL:
		return d.ACL, true
	default:
		return nil, false
	}
}

// Encode flattens the record into its store document.
func (r *Record) Encode() (Document, error) {
	payload, err := canonical.Marshal(r.Payload)
	if err != nil {
		return Document{}, fmt.Errorf("encode %s %s: %w", r.Kind, r.Hash, err)
	}
	return Document{
		Hash:           r.Hash,
		Kind:           string(r.Kind),
		SubType:        r.SubType,
		Payload:        string(payload),
		DirectRefs:     r.DirectRefs.Sorted(),
		TransitiveRefs: r.TransitiveRefs.Sorted(),
		ParentRefs:     r.ParentRefs.Sorted(),
		OrgID:          r.OrgID,
		Timestamp:      r.Timestamp,
		Category:       string(r.Category),
		BenignRefs:     r.BenignRefs.Sorted(),
		MaliciousRefs:  r.MaliciousRefs.Sorted(),
		AdminRefs:      r.AdminRefs.Sorted(),
		MemberRefs:     r.MemberRefs.Sorted(),
		ACL:            r.ACL.Sorted(),
	}, nil
}

// Decode reconstructs a typed Record from an untyped store document by
// switching on the kind tag. An unrecognized tag fails with
// UnknownKindError; a malformed payload or category fails with the
// underlying decode error.
func Decode(d Document) (*Record, error) {
	kind, err := DecodeKind(d.Kind)
	if err != nil {
		return nil, err
	}

	payload, err := canonical.Decode([]byte(d.Payload))
	if err != nil {
		return nil, fmt.Errorf("decode payload of %s: %w", d.Hash, err)
	}

	r := &Record{
		Kind:           kind,
		SubType:        d.SubType,
		Payload:        payload,
		Hash:           d.Hash,
		DirectRefs:     NewRefSet(d.DirectRefs...),
		TransitiveRefs: NewRefSet(d.TransitiveRefs...),
		ParentRefs:     NewRefSet(d.ParentRefs...),
	}

	switch kind {
	case KindEvent:
		category, err := DecodeCategory(d.Category)
		if err != nil {
			return nil, fmt.Errorf("decode event %s: %w", d.Hash, err)
		}
		r.OrgID = d.OrgID
		r.Timestamp = d.Timestamp
		r.Category = category
		r.BenignRefs = NewRefSet(d.BenignRefs...)
		r.MaliciousRefs = NewRefSet(d.MaliciousRefs...)
	case KindRaw:
		r.OrgID = d.OrgID
		r.Timestamp = d.Timestamp
	case KindObject:
		r.AdminRefs = NewRefSet(d.AdminRefs...)
		r.MemberRefs = NewRefSet(d.MemberRefs...)
		r.ACL = NewRefSet(d.ACL...)
	}

	return r, nil
}
