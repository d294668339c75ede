package identity

import (
	"context"
	"log/slog"

	"github.com/calyptra/intelgraph/internal/canonical"
	"github.com/calyptra/intelgraph/internal/docstore"
	"github.com/calyptra/intelgraph/internal/graph"
	"github.com/calyptra/intelgraph/internal/record"
)

// Sub-type tags for identity records. Users and orgs are ordinary
// objects in the graph; nothing below the record layer knows they are
// special.
const (
	SubTypeUser  = "user"
	SubTypeOrg   = "org"
	SubTypeAdmin = "admin"

	SubTypeEmail    = "email"
	SubTypePassword = "password"
	SubTypeName     = "name"
)

// Registry builds and maintains identity records: users, orgs, and the
// org ACLs derived from them.
type Registry struct {
	builder *graph.Builder
	logger  *slog.Logger
}

// NewRegistry creates a Registry over the given builder.
func NewRegistry(builder *graph.Builder, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{builder: builder, logger: logger}
}

// NewUser materializes a user object aggregating email, password hash
// and display name attributes. Changing any of these later is a
// copy-on-write edit producing a new user record.
func (r *Registry) NewUser(ctx context.Context, email, passwordHash, name string) (*record.Record, error) {
	emailAttr, err := r.builder.NewAttribute(ctx, SubTypeEmail, canonical.String(email))
	if err != nil {
		return nil, err
	}
	passAttr, err := r.builder.NewAttribute(ctx, SubTypePassword, canonical.String(passwordHash))
	if err != nil {
		return nil, err
	}
	nameAttr, err := r.builder.NewAttribute(ctx, SubTypeName, canonical.String(name))
	if err != nil {
		return nil, err
	}
	return r.builder.NewObject(ctx, SubTypeUser, []*record.Record{emailAttr, passAttr, nameAttr})
}

// NewOrg materializes an org object: a name attribute, an admin
// sub-object aggregating the admin users, and the member users as
// direct children. The org's ACL is seeded from admin union members;
// later grants and revocations adjust only the ACL bookkeeping.
func (r *Registry) NewOrg(ctx context.Context, name string, admins, members []*record.Record) (*record.Record, error) {
	nameAttr, err := r.builder.NewAttribute(ctx, SubTypeName, canonical.String(name))
	if err != nil {
		return nil, err
	}
	adminObj, err := r.builder.NewObject(ctx, SubTypeAdmin, admins)
	if err != nil {
		return nil, err
	}

	children := []*record.Record{nameAttr, adminObj}
	children = append(children, members...)
	org, err := r.builder.NewObject(ctx, SubTypeOrg, children)
	if err != nil {
		return nil, err
	}

	adminRefs := record.NewRefSet()
	for _, a := range admins {
		adminRefs.Add(a.Hash)
	}
	memberRefs := record.NewRefSet()
	for _, m := range members {
		memberRefs.Add(m.Hash)
	}
	acl := adminRefs.Union(memberRefs)

	err = r.builder.Store().UpdateOne(ctx,
		docstore.Filter{record.FieldHash: docstore.Eq(org.Hash)},
		docstore.Update{Set: map[string]any{
			record.FieldAdminRefs:  adminRefs.Sorted(),
			record.FieldMemberRefs: memberRefs.Sorted(),
			record.FieldACL:        acl.Sorted(),
		}})
	if err != nil {
		return nil, err
	}
	org.AdminRefs = adminRefs
	org.MemberRefs = memberRefs
	org.ACL = acl

	r.logger.Debug("created org", "name", name, "hash", org.Hash,
		"admins", len(adminRefs), "members", len(memberRefs))
	return org, nil
}

// Grant adds a principal to an org's ACL. This touches only the ACL
// bookkeeping field; making the user a structural member is a
// copy-on-write edit of the org object instead.
func (r *Registry) Grant(ctx context.Context, org, user *record.Record) error {
	err := r.builder.Store().UpdateOne(ctx,
		docstore.Filter{record.FieldHash: docstore.Eq(org.Hash)},
		docstore.Update{AddToSet: map[string][]string{record.FieldACL: {user.Hash}}})
	if err != nil {
		return err
	}
	if org.ACL == nil {
		org.ACL = record.NewRefSet()
	}
	org.ACL.Add(user.Hash)
	r.logger.Debug("granted access", "org", org.Hash, "user", user.Hash)
	return nil
}

// Revoke removes a principal from an org's ACL. Takes effect on the
// next authorization resolution; nothing caches the previous answer.
func (r *Registry) Revoke(ctx context.Context, org, user *record.Record) error {
	err := r.builder.Store().UpdateOne(ctx,
		docstore.Filter{record.FieldHash: docstore.Eq(org.Hash)},
		docstore.Update{Pull: map[string][]string{record.FieldACL: {user.Hash}}})
	if err != nil {
		return err
	}
	if org.ACL != nil {
		org.ACL.Remove(user.Hash)
	}
	r.logger.Debug("revoked access", "org", org.Hash, "user", user.Hash)
	return nil
}
