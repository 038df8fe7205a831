package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind discriminates the JSON type held by a Value.
// Modeling attribute and predicate values as a closed tagged union lets the
// predicate matcher dispatch on types exhaustively instead of probing with
// runtime assertions on interface{}.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the human-readable name of the kind, used in defect details.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is an immutable, typed representation of an arbitrary JSON value.
// User attributes, predicate right-hand sides, and variant payload fragments
// all flow through this type.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

// Constructors. Values are cheap to copy; they are passed by value everywhere.

func Null() Value               { return Value{kind: KindNull} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func Number(n float64) Value    { return Value{kind: KindNumber, n: n} }
func String(s string) Value     { return Value{kind: KindString, s: s} }
func Array(vs ...Value) Value   { return Value{kind: KindArray, arr: vs} }
func Object(m map[string]Value) Value {
	return Value{kind: KindObject, obj: m}
}

// Kind returns the JSON type tag of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is the JSON null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsNumber returns the numeric content. The boolean is false for non-numbers,
// which is how the matcher implements "numeric ops never match mixed types".
func (v Value) AsNumber() (float64, bool) {
	return v.n, v.kind == KindNumber
}

// AsString returns the string content and whether the value is a string.
func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

// Items returns the elements of an array value, or nil for any other kind.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

// Equal reports deep structural equality. Values of different kinds are never
// equal; in particular numbers never equal their string renderings.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		return v.s == other.s
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(other.obj) {
			return false
		}
		for k, val := range v.obj {
			o, ok := other.obj[k]
			if !ok || !val.Equal(o) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Contains implements the "contains" operator semantics:
// array values contain an element equal to needle, string values contain the
// needle as a substring (needle must itself be a string). Everything else is false.
func (v Value) Contains(needle Value) bool {
	switch v.kind {
	case KindArray:
		for _, item := range v.arr {
			if item.Equal(needle) {
				return true
			}
		}
		return false
	case KindString:
		sub, ok := needle.AsString()
		if !ok {
			return false
		}
		return strings.Contains(v.s, sub)
	default:
		return false
	}
}

// canonical renders the value as a deterministic, compact string.
// It is used to derive a stable bucketing identity from attribute sets,
// so object keys are always emitted in sorted order.
func (v Value) canonical() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case KindString:
		return v.s
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, item := range v.arr {
			parts[i] = item.canonical()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + v.obj[k].canonical()
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return ""
	}
}

// MarshalJSON renders the value back to its JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindObject:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.obj)
	default:
		return nil, fmt.Errorf("cannot marshal value of kind %d", v.kind)
	}
}

// UnmarshalJSON parses any JSON value into the tagged union.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromAny(raw)
	return nil
}

// fromAny converts the result of a generic json.Unmarshal into a Value.
// encoding/json only ever produces nil, bool, float64, string, []any and
// map[string]any, so the switch is exhaustive.
func fromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case string:
		return String(t)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = fromAny(item)
		}
		return Array(items...)
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = fromAny(item)
		}
		return Object(m)
	default:
		// Unreachable with encoding/json input.
		return Null()
	}
}

// Attributes is the set of user attributes supplied with an evaluation request.
type Attributes map[string]Value

// ParseAttributes decodes the caller-supplied user object.
// The payload must be a JSON object; anything else is a request-level input
// error, surfaced before any flag is evaluated.
func ParseAttributes(raw json.RawMessage) (Attributes, error) {
	if len(raw) == 0 {
		return Attributes{}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("user attributes must be a JSON object: %w", err)
	}

	attrs := make(Attributes, len(obj))
	for k, rawVal := range obj {
		var v Value
		if err := v.UnmarshalJSON(rawVal); err != nil {
			return nil, fmt.Errorf("invalid attribute %q: %w", k, err)
		}
		attrs[k] = v
	}
	return attrs, nil
}
