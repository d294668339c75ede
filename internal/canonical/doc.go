// Package canonical renders record payloads as order-independent
// canonical bytes for hashing and equality.
//
// The encoding rules are fixed and total over the supported payload
// domain (string, number, boolean, null, list, map):
//
//   - Map keys sort lexicographically by encoded bytes.
//   - List elements are deduplicated and sorted by encoded bytes, so a
//     list behaves as a set for identity purposes.
//   - Strings trim surrounding whitespace and NFC-normalize before
//     quoting; HTML characters are not escaped.
//   - Numbers, booleans, and null use fixed textual forms.
//
// Marshal(a) == Marshal(b) iff a and b are the same payload under these
// equivalence rules. Everything outside the domain fails with
// UnsupportedTypeError - the encoder never guesses.
package canonical
