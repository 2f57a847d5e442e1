package metadata

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindInvalid represents an invalid kind.
	KindInvalid Kind = iota
	// KindNull represents a null value.
	KindNull
	// KindInt represents an integer value.
	KindInt
	// KindFloat represents a float value.
	KindFloat
	// KindString represents a string value.
	KindString
	// KindBool represents a boolean value.
	KindBool
	// KindArray represents an array value.
	KindArray
)

// Value is a small typed value used for metadata documents and filters.
//
// The representation is designed to make filtering fast and predictable:
// no reflection and no fmt-based stringification.
//
// NOTE: This is also used for persistence; keep it stable.
type Value struct {
	Kind Kind    `json:"k"`
	I64  int64   `json:"i,omitempty"`
	F64  float64 `json:"f,omitempty"`
	S    string  `json:"s,omitempty"`
	B    bool    `json:"b,omitempty"`
	A    []Value `json:"a,omitempty"`
}

// Document is a typed metadata map attached to a stored vector.
type Document map[string]Value

// Null returns a null Value.
func Null() Value { return Value{Kind: KindNull} }

// Int returns an integer Value.
func Int(v int64) Value { return Value{Kind: KindInt, I64: v} }

// Float returns a float Value.
func Float(v float64) Value { return Value{Kind: KindFloat, F64: v} }

// String returns a string Value.
func String(v string) Value { return Value{Kind: KindString, S: v} }

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{Kind: KindBool, B: v} }

// Array returns an array Value.
func Array(vs ...Value) Value { return Value{Kind: KindArray, A: vs} }

// FromAny converts a dynamically typed value into a Value.
// Unsupported types return an invalid Value and an error.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint32:
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case []any:
		arr := make([]Value, len(x))
		for i, item := range x {
			val, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			arr[i] = val
		}
		return Value{Kind: KindArray, A: arr}, nil
	default:
		return Value{}, fmt.Errorf("unsupported metadata value type %T", v)
	}
}

// MustValue converts v via FromAny and panics on unsupported types.
// Intended for filter construction literals.
func MustValue(v any) Value {
	val, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return val
}

// FromMap converts a map[string]any into a Document.
func FromMap(m map[string]any) (Document, error) {
	if m == nil {
		return nil, nil
	}
	doc := make(Document, len(m))
	for k, v := range m {
		val, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		doc[k] = val
	}
	return doc, nil
}

// Key returns a stable string representation for use in inverted-index maps.
//
// It must remain stable across versions for persisted metadata usage.
func (v Value) Key() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindInt:
		return "i:" + strconv.FormatInt(v.I64, 10)
	case KindFloat:
		return "f:" + strconv.FormatUint(math.Float64bits(v.F64), 16)
	case KindString:
		return "s:" + v.S
	case KindBool:
		if v.B {
			return "b:1"
		}
		return "b:0"
	case KindArray:
		if len(v.A) == 0 {
			return "a:"
		}
		parts := make([]string, len(v.A))
		for i := range v.A {
			parts[i] = v.A[i].Key()
		}
		return "a:" + strings.Join(parts, "\x1f")
	default:
		return "invalid"
	}
}

func isNumber(v Value) bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

func asFloat64(v Value) float64 {
	if v.Kind == KindInt {
		return float64(v.I64)
	}
	return v.F64
}
