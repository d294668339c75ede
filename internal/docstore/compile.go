package docstore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/calyptra/intelgraph/internal/record"
)

// scalarColumns are filterable columns holding a single value.
// Reference-set columns hold sorted JSON arrays of quoted hex digests.
var scalarColumns = map[string]bool{
	record.FieldHash:      true,
	record.FieldKind:      true,
	record.FieldSubType:   true,
	record.FieldOrgID:     true,
	record.FieldTimestamp: true,
	record.FieldCategory:  true,
}

var refColumns = map[string]bool{
	record.FieldDirectRefs:     true,
	record.FieldTransitiveRefs: true,
	record.FieldParentRefs:     true,
	record.FieldBenignRefs:     true,
	record.FieldMaliciousRefs:  true,
	record.FieldAdminRefs:      true,
	record.FieldMemberRefs:     true,
	record.FieldACL:            true,
}

// compileFilter turns a Filter into a parameterized WHERE fragment.
// Field names are validated against the known column set and values are
// always bound as parameters, never interpolated. Fields iterate in
// sorted order so the same filter always compiles to the same SQL.
func compileFilter(filter Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	fields := make([]string, 0, len(filter))
	for f := range filter {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var clauses []string
	var params []any
	for _, field := range fields {
		cond := filter[field]
		clause, p, err := compileCond(field, cond)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		params = append(params, p...)
	}
	return " WHERE " + strings.Join(clauses, " AND "), params, nil
}

func compileCond(field string, cond Cond) (string, []any, error) {
	switch cond.Op {
	case OpEq:
		if !scalarColumns[field] {
			return "", nil, fmt.Errorf("docstore: field %q does not support eq", field)
		}
		return field + " = ?", []any{normalizeScalar(cond.Value)}, nil

	case OpIn:
		if !scalarColumns[field] {
			return "", nil, fmt.Errorf("docstore: field %q does not support in", field)
		}
		if len(cond.Values) == 0 {
			// Empty membership matches nothing. Keep it in SQL so an
			// empty allowed-org set yields an empty result, not an error.
			return "1 = 0", nil, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cond.Values)), ", ")
		params := make([]any, len(cond.Values))
		for i, v := range cond.Values {
			params[i] = normalizeScalar(v)
		}
		return field + " IN (" + placeholders + ")", params, nil

	case OpContains:
		if !refColumns[field] {
			return "", nil, fmt.Errorf("docstore: field %q does not support contains", field)
		}
		// Ref columns hold JSON arrays of quoted fixed-width hex
		// digests, so a quoted substring probe cannot false-positive
		// across element boundaries.
		return "instr(" + field + ", ?) > 0", []any{`"` + fmt.Sprint(cond.Value) + `"`}, nil

	case OpGte:
		if field != record.FieldTimestamp {
			return "", nil, fmt.Errorf("docstore: field %q does not support gte", field)
		}
		return field + " >= ?", []any{cond.Value}, nil

	case OpLte:
		if field != record.FieldTimestamp {
			return "", nil, fmt.Errorf("docstore: field %q does not support lte", field)
		}
		return field + " <= ?", []any{cond.Value}, nil

	default:
		return "", nil, fmt.Errorf("docstore: unsupported operator %q", cond.Op)
	}
}

// normalizeScalar maps typed tags (record.Kind, record.Category) to
// their string form for parameter binding.
func normalizeScalar(v any) any {
	if s, ok := stringValue(v); ok {
		return s
	}
	return v
}
