package canonical

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// UnsupportedTypeError reports a value outside the supported payload
// domain (string, number, boolean, null, list, map).
type UnsupportedTypeError struct {
	Value any
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("canonical: unsupported payload type %T", e.Value)
}

// Marshal renders v as its canonical byte sequence:
//
//   - map keys are sorted lexicographically
//   - list elements are deduplicated and sorted by their own canonical
//     bytes, so insertion order and duplicates never affect the result
//   - strings are whitespace-trimmed and NFC-normalized
//   - integers render in decimal, floats in strconv's shortest 'g' form,
//     booleans and null as the fixed literals
//
// Two payloads produce identical bytes iff they are equal under these
// equivalence rules. Plain Go values are accepted via FromGo; anything
// outside the supported domain fails with UnsupportedTypeError.
func Marshal(v any) ([]byte, error) {
	cv, err := FromGo(v)
	if err != nil {
		return nil, err
	}
	return marshalValue(cv)
}

func marshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Null:
		return []byte("null"), nil
	case Bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case Int:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &UnsupportedTypeError{Value: val}
		}
		// Whole floats render like integers so 2.0 and 2 hash alike.
		if f == math.Trunc(f) && math.Abs(f) < 1e15 {
			return strconv.AppendInt(nil, int64(f), 10), nil
		}
		return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
	case String:
		return marshalString(string(val))
	case List:
		return marshalList(val)
	case Map:
		return marshalMap(val)
	default:
		return nil, &UnsupportedTypeError{Value: v}
	}
}

// marshalString trims surrounding whitespace, NFC-normalizes, and
// JSON-quotes the string without HTML escaping.
func marshalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(strings.TrimSpace(s))

	var buf bytes.Buffer
	buf.WriteByte('"')
	for _, r := range normalized {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
	return buf.Bytes(), nil
}

// marshalList encodes every element, then deduplicates and sorts the
// encoded forms. The result depends only on the set of element values.
func marshalList(l List) ([]byte, error) {
	encoded := make([][]byte, 0, len(l))
	seen := make(map[string]bool, len(l))
	for i, elem := range l {
		b, err := marshalValue(elem)
		if err != nil {
			return nil, fmt.Errorf("list[%d]: %w", i, err)
		}
		if seen[string(b)] {
			continue
		}
		seen[string(b)] = true
		encoded = append(encoded, b)
	}
	sort.Slice(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	})

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, b := range encoded {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// marshalMap encodes entries sorted by their encoded key bytes. Keys go
// through the same trim/NFC normalization as string values; two distinct
// keys that normalize to the same bytes are rejected rather than letting
// map iteration order pick a winner.
func marshalMap(m Map) ([]byte, error) {
	type entry struct {
		key []byte
		val []byte
	}
	entries := make([]entry, 0, len(m))
	seen := make(map[string]bool, len(m))
	for k, v := range m {
		kb, err := marshalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		if seen[string(kb)] {
			return nil, fmt.Errorf("canonical: duplicate map key %s after normalization", kb)
		}
		seen[string(kb)] = true
		vb, err := marshalValue(v)
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		entries = append(entries, entry{key: kb, val: vb})
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(e.key)
		buf.WriteByte(':')
		buf.Write(e.val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
