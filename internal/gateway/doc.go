// Package gateway is the access-scoped query boundary for event data.
//
// It wraps the store's read surface with a mandatory principal: a
// query that can reach event records is conjoined with the set of orgs
// the principal may read, resolved fresh on every call. A query that
// tries to constrain the owning org itself is rejected rather than
// merged, and an unresolvable principal is an error rather than an
// empty result. Authorized principals without access get an empty
// result indistinguishable from no data.
package gateway
