package identity

import (
	"context"

	"github.com/calyptra/intelgraph/internal/canonical"
	"github.com/calyptra/intelgraph/internal/docstore"
	"github.com/calyptra/intelgraph/internal/record"
)

// Directory answers user and org lookups over the store. Keys may be
// record hashes or human identifiers (user email, org name); human
// identifiers are resolved through the content address of the
// corresponding attribute, so no secondary index is needed.
type Directory struct {
	store docstore.Store
}

// NewDirectory creates a Directory over the given store.
func NewDirectory(store docstore.Store) *Directory {
	return &Directory{store: store}
}

// FindUser resolves a user by hash or email. Returns nil when absent.
func (d *Directory) FindUser(ctx context.Context, key string) (*record.Record, error) {
	return d.find(ctx, key, SubTypeUser, SubTypeEmail)
}

// FindOrg resolves an org by hash or name. Returns nil when absent.
func (d *Directory) FindOrg(ctx context.Context, key string) (*record.Record, error) {
	return d.find(ctx, key, SubTypeOrg, SubTypeName)
}

func (d *Directory) find(ctx context.Context, key, subType, attrSubType string) (*record.Record, error) {
	if isHash(key) {
		doc, err := d.store.FindOne(ctx, docstore.Filter{
			record.FieldHash:    docstore.Eq(key),
			record.FieldKind:    docstore.Eq(record.KindObject),
			record.FieldSubType: docstore.Eq(subType),
		}, nil)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, nil
		}
		return record.Decode(*doc)
	}

	// A human identifier is itself an attribute with a deterministic
	// content address; any record carrying it references that hash.
	attrHash, err := record.ComputeHash(record.KindAttribute, attrSubType, canonical.String(key))
	if err != nil {
		return nil, err
	}
	doc, err := d.store.FindOne(ctx, docstore.Filter{
		record.FieldKind:       docstore.Eq(record.KindObject),
		record.FieldSubType:    docstore.Eq(subType),
		record.FieldDirectRefs: docstore.Contains(attrHash),
	}, nil)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return record.Decode(*doc)
}

// isHash reports whether key looks like a lowercase hex SHA-256 digest.
func isHash(key string) bool {
	if len(key) != 64 {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
