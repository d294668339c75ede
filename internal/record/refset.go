package record

import "sort"

// RefSet is an unordered set of record hashes (lowercase hex SHA-256
// digests). The zero value is an empty, usable set.
type RefSet map[string]struct{}

// NewRefSet builds a set from hashes, dropping duplicates.
func NewRefSet(hashes ...string) RefSet {
	s := make(RefSet, len(hashes))
	for _, h := range hashes {
		s[h] = struct{}{}
	}
	return s
}

// Contains reports whether h is in the set.
func (s RefSet) Contains(h string) bool {
	_, ok := s[h]
	return ok
}

// Add inserts h.
func (s RefSet) Add(h string) {
	s[h] = struct{}{}
}

// Remove deletes h if present.
func (s RefSet) Remove(h string) {
	delete(s, h)
}

// Union returns a new set containing every hash from s and other.
func (s RefSet) Union(other RefSet) RefSet {
	out := make(RefSet, len(s)+len(other))
	for h := range s {
		out[h] = struct{}{}
	}
	for h := range other {
		out[h] = struct{}{}
	}
	return out
}

// SubsetOf reports whether every hash in s is also in other.
func (s RefSet) SubsetOf(other RefSet) bool {
	for h := range s {
		if !other.Contains(h) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s RefSet) Clone() RefSet {
	out := make(RefSet, len(s))
	for h := range s {
		out[h] = struct{}{}
	}
	return out
}

// Sorted returns the hashes in lexicographic order. Used wherever a
// stable serialization of the set is needed.
func (s RefSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
