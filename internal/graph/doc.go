// Package graph implements construction and editing of the
// content-addressed record graph.
//
// Materialize is the single write path for record content: it derives
// the reference sets and hash, returns the already-persisted record
// when one exists (deduplication), and otherwise persists the new
// record and notes the new parent on each child. The check-then-insert
// race is resolved by the store's insert-or-fetch-by-hash semantics, so
// duplicate records never persist even under concurrent construction.
//
// Edits are copy-on-write: Replace, Add, and Remove synthesize a new
// parent payload and route it back through Materialize, producing a new
// record with a new hash while the original stays fetchable unchanged.
// Ancestor rewriting is deliberately the caller's job, one level at a
// time. The only in-place updates are non-identity bookkeeping: event
// category and context tags, session attachment, and reference-set
// growth.
package graph
