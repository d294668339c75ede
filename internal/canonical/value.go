package canonical

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Value is a sealed interface over the payload types a record may carry.
// Only Null, String, Int, Float, Bool, List, and Map implement it.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents an explicit null payload value.
// Using a concrete type keeps every payload slot a non-nil Value.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a string payload value. It is trimmed and NFC-normalized at
// canonical-encoding time, not at construction time.
type String string

func (String) value() {}

// Int is an integer payload value. Stored as int64.
type Int int64

func (Int) value() {}

// Float is a floating-point payload value. Canonical encoding renders it
// with strconv's shortest 'g' form so the same number always produces the
// same bytes.
type Float float64

func (Float) value() {}

// Bool is a boolean payload value.
type Bool bool

func (Bool) value() {}

// List is an ordered collection of payload values. Canonical encoding
// deduplicates and sorts the elements, so two Lists that differ only in
// order or duplicate entries encode identically.
type List []Value

func (List) value() {}

// Map is a string-keyed mapping of payload values.
// Use SortedKeys for deterministic iteration.
type Map map[string]Value

func (Map) value() {}

// SortedKeys returns the map's keys in lexicographic (byte) order.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromGo converts a plain Go value into a Value. Supported inputs are
// nil, string, bool, int, int32, int64, float32, float64, json.Number,
// []any, map[string]any, and anything already a Value. Everything else
// fails with UnsupportedTypeError.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, &UnsupportedTypeError{Value: v}
		}
		return Float(f), nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			cv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = cv
		}
		return list, nil
	case map[string]any:
		m := make(Map, len(val))
		for k, elem := range val {
			cv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			m[k] = cv
		}
		return m, nil
	default:
		return nil, &UnsupportedTypeError{Value: v}
	}
}

// UnmarshalJSON implements json.Unmarshaler for Map.
func (m *Map) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = make(Map, len(raw))
	for k, v := range raw {
		val, err := decodeValue(v)
		if err != nil {
			return fmt.Errorf("map key %q: %w", k, err)
		}
		(*m)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for List.
func (l *List) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*l = make(List, len(raw))
	for i, v := range raw {
		val, err := decodeValue(v)
		if err != nil {
			return fmt.Errorf("list index %d: %w", i, err)
		}
		(*l)[i] = val
	}
	return nil
}

// Decode parses a JSON document into a Value. Integers that fit int64
// decode to Int; other numbers decode to Float (never a lossy float64
// round-trip through any).
func Decode(data []byte) (Value, error) {
	return decodeValue(json.RawMessage(data))
}

func decodeValue(data []byte) (Value, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil

	case 'n':
		return Null{}, nil

	case '[':
		var l List
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, err
		}
		return l, nil

	case '{':
		var m Map
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", string(data))
		}
		return Float(f), nil
	}
}

// MarshalJSON implements json.Marshaler for Map with sorted keys.
// NOTE: this is NOT the canonical form - lists keep their order and
// strings are not normalized. Use Marshal for content addressing.
func (m Map) MarshalJSON() ([]byte, error) {
	parts := make(map[string]json.RawMessage, len(m))
	for _, k := range m.SortedKeys() {
		b, err := json.Marshal(m[k])
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		parts[k] = b
	}
	return json.Marshal(parts)
}
