// Package docstore defines the capability interface the graph is built
// against (find, find-one, insert-if-absent, update, count, aggregate)
// and two reference adapters: an in-memory store and a SQLite store.
//
// The interface deliberately mirrors a generic document store. Nothing
// above this package knows which adapter is in use; every component
// receives a Store at construction - there is no process-wide current
// store.
//
// The one semantic the graph depends on is InsertOne's idempotency:
// insertion is keyed by the document hash, and on conflict the stored
// document wins. Two concurrent constructions of the same logical
// record therefore converge on a single persisted row.
//
// # SQLite configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// All queries order by hash (COLLATE BINARY) so identical filters
// always return identical sequences.
package docstore
