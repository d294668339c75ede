package docstore

import (
	"context"
	"fmt"

	"github.com/calyptra/intelgraph/internal/record"
)

// Op is a filter comparison operator.
type Op string

const (
	// OpEq matches a scalar field equal to Value.
	OpEq Op = "eq"
	// OpIn matches a scalar field equal to any of Values.
	OpIn Op = "in"
	// OpContains matches a reference-set field containing the hash in Value.
	OpContains Op = "contains"
	// OpGte and OpLte compare integer fields (timestamps).
	OpGte Op = "gte"
	OpLte Op = "lte"
)

// Cond is one field condition of a filter.
type Cond struct {
	Op     Op
	Value  any
	Values []any
}

// Filter maps document field names to conditions. All conditions are
// conjoined. A nil or empty filter matches every document.
type Filter map[string]Cond

// Eq builds an equality condition.
func Eq(v any) Cond { return Cond{Op: OpEq, Value: v} }

// In builds a membership condition over scalar values.
func In(vs ...any) Cond { return Cond{Op: OpIn, Values: vs} }

// Contains builds a set-containment condition for reference fields.
func Contains(hash string) Cond { return Cond{Op: OpContains, Value: hash} }

// Gte builds a >= condition for integer fields.
func Gte(v int64) Cond { return Cond{Op: OpGte, Value: v} }

// Lte builds a <= condition for integer fields.
func Lte(v int64) Cond { return Cond{Op: OpLte, Value: v} }

// Clone returns an independent copy of the filter.
func (f Filter) Clone() Filter {
	out := make(Filter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Projection lists the document fields to keep in results. The hash
// field is always kept. Empty means every field.
type Projection []string

// Update describes a partial document update. Set overwrites scalar
// fields; AddToSet and Pull adjust reference-set fields.
type Update struct {
	Set      map[string]any
	AddToSet map[string][]string
	Pull     map[string][]string
}

// Stage is one step of an aggregation pipeline: an optional match,
// an optional sort, and an optional limit, applied in that order.
type Stage struct {
	Match  Filter
	SortBy string
	Desc   bool
	Limit  int
}

// Store is the capability interface the graph is built against. Any
// document store with atomic single-document operations can satisfy it;
// Memory and SQLite are the reference implementations.
//
// InsertOne must be idempotent on the hash field: when a document with
// the same hash already exists the existing document wins and is
// returned with inserted=false, even under concurrent insertion.
type Store interface {
	Find(ctx context.Context, filter Filter, projection Projection) ([]record.Document, error)
	FindOne(ctx context.Context, filter Filter, projection Projection) (*record.Document, error)
	InsertOne(ctx context.Context, doc record.Document) (record.Document, bool, error)
	UpdateOne(ctx context.Context, filter Filter, update Update) error
	UpdateMany(ctx context.Context, filter Filter, update Update) (int64, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	Aggregate(ctx context.Context, pipeline []Stage) ([]record.Document, error)
}

// StoreUnavailableError wraps a driver-level failure. The core never
// retries; retry policy belongs to the adapter or its caller.
type StoreUnavailableError struct {
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("docstore: store unavailable: %v", e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// project applies a projection to a document, zeroing fields outside
// the projection. Hash is always kept so results stay addressable.
func project(doc record.Document, projection Projection) record.Document {
	if len(projection) == 0 {
		return doc
	}
	keep := make(map[string]bool, len(projection)+1)
	for _, f := range projection {
		keep[f] = true
	}
	keep[record.FieldHash] = true

	out := record.Document{Hash: doc.Hash}
	if keep[record.FieldKind] {
		out.Kind = doc.Kind
	}
	if keep[record.FieldSubType] {
		out.SubType = doc.SubType
	}
	if keep["payload"] {
		out.Payload = doc.Payload
	}
	if keep[record.FieldDirectRefs] {
		out.DirectRefs = doc.DirectRefs
	}
	if keep[record.FieldTransitiveRefs] {
		out.TransitiveRefs = doc.TransitiveRefs
	}
	if keep[record.FieldOrgID] {
		out.OrgID = doc.OrgID
	}
	if keep[record.FieldTimestamp] {
		out.Timestamp = doc.Timestamp
	}
	if keep[record.FieldCategory] {
		out.Category = doc.Category
	}
	if keep[record.FieldBenignRefs] {
		out.BenignRefs = doc.BenignRefs
	}
	if keep[record.FieldMaliciousRefs] {
		out.MaliciousRefs = doc.MaliciousRefs
	}
	if keep[record.FieldAdminRefs] {
		out.AdminRefs = doc.AdminRefs
	}
	if keep[record.FieldMemberRefs] {
		out.MemberRefs = doc.MemberRefs
	}
	if keep[record.FieldACL] {
		out.ACL = doc.ACL
	}
	return out
}

// matches evaluates a filter against a document. Unknown field names
// never match - a typo'd filter returns nothing rather than everything.
func matches(doc *record.Document, filter Filter) bool {
	for field, cond := range filter {
		val, ok := doc.Field(field)
		if !ok {
			return false
		}
		if !condMatches(val, cond) {
			return false
		}
	}
	return true
}

func condMatches(val any, cond Cond) bool {
	switch cond.Op {
	case OpEq:
		return scalarEqual(val, cond.Value)
	case OpIn:
		for _, v := range cond.Values {
			if scalarEqual(val, v) {
				return true
			}
		}
		return false
	case OpContains:
		refs, ok := val.([]string)
		if !ok {
			return false
		}
		want, ok := cond.Value.(string)
		if !ok {
			return false
		}
		for _, r := range refs {
			if r == want {
				return true
			}
		}
		return false
	case OpGte:
		a, b, ok := intPair(val, cond.Value)
		return ok && a >= b
	case OpLte:
		a, b, ok := intPair(val, cond.Value)
		return ok && a <= b
	default:
		return false
	}
}

func scalarEqual(a, b any) bool {
	if ai, bi, ok := intPair(a, b); ok {
		return ai == bi
	}
	as, aok := stringValue(a)
	bs, bok := stringValue(b)
	return aok && bok && as == bs
}

func stringValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case record.Kind:
		return string(s), true
	case record.Category:
		return string(s), true
	default:
		return "", false
	}
}

func intPair(a, b any) (int64, int64, bool) {
	ai, aok := intValue(a)
	bi, bok := intValue(b)
	return ai, bi, aok && bok
}

func intValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
