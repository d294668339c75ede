// Package identity models users, orgs and org ACLs as ordinary graph
// records, and resolves principals to the set of orgs they may read.
//
// A user is an object aggregating email, password hash and name
// attributes; an org is an object aggregating a name attribute, an
// admin sub-object and its member users. The org carries a derived ACL
// seeded from admin union members, adjusted afterwards with Grant and
// Revoke without re-hashing the org.
package identity
