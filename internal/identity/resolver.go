package identity

import (
	"context"
	"fmt"

	"github.com/calyptra/intelgraph/internal/docstore"
	"github.com/calyptra/intelgraph/internal/record"
)

// InvalidPrincipalError reports a principal that could not be resolved
// to a known user. It is deliberately distinct from "resolvable but not
// authorized", which yields an empty result set instead.
type InvalidPrincipalError struct {
	// Principal is the key that failed to resolve.
	Principal string
}

// Error implements the error interface.
func (e *InvalidPrincipalError) Error() string {
	return fmt.Sprintf("INVALID_PRINCIPAL: no user for principal %q", e.Principal)
}

// MembershipSource contributes org memberships for a user beyond
// direct ACL entries (groups, rules). Sources compose by union with
// direct membership, never replace it.
type MembershipSource interface {
	MemberOrgs(ctx context.Context, user *record.Record) (record.RefSet, error)
}

// Resolver answers the authorization question: which orgs may this
// principal read events of. The answer is re-derived from the store on
// every call. Callers must not cache it across requests, or a
// revocation would keep granting access until the cache expires.
type Resolver struct {
	store   docstore.Store
	dir     *Directory
	sources []MembershipSource
}

// NewResolver creates a Resolver over the given store.
func NewResolver(store docstore.Store, sources ...MembershipSource) *Resolver {
	return &Resolver{store: store, dir: NewDirectory(store), sources: sources}
}

// AllowedOrgs resolves a principal (user hash or email) to the set of
// org hashes whose ACL lists the user, unioned with whatever the
// configured membership sources contribute.
func (r *Resolver) AllowedOrgs(ctx context.Context, principal string) (record.RefSet, error) {
	user, err := r.dir.FindUser(ctx, principal)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &InvalidPrincipalError{Principal: principal}
	}

	docs, err := r.store.Find(ctx, docstore.Filter{
		record.FieldKind:    docstore.Eq(record.KindObject),
		record.FieldSubType: docstore.Eq(SubTypeOrg),
		record.FieldACL:     docstore.Contains(user.Hash),
	}, docstore.Projection{record.FieldHash})
	if err != nil {
		return nil, err
	}

	allowed := record.NewRefSet()
	for _, doc := range docs {
		allowed.Add(doc.Hash)
	}
	for _, src := range r.sources {
		extra, err := src.MemberOrgs(ctx, user)
		if err != nil {
			return nil, err
		}
		allowed = allowed.Union(extra)
	}
	return allowed, nil
}
