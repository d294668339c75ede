// Package record defines the tagged-variant entity family of the graph
// (attribute, object, event, session, raw) and its derived identity.
//
// A record's hash is the SHA-256 digest of the canonical encoding of
// (kind, sub_type, payload), computed once at construction. Because a
// hash can only be computed after every child already exists and is
// hashed, the reference graph is a DAG by construction - a record can
// never reach itself.
//
// Two representations exist:
//
//   - Record: the typed in-memory form, payload as canonical.Value,
//     reference sets as RefSet.
//   - Document: the flattened store form, payload as canonical JSON
//     text, reference sets as sorted slices.
//
// Decode maps a Document back to a Record by switching on the kind tag
// and fails with UnknownKindError on anything outside the family.
package record
