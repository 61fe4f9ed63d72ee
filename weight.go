package hypersparse

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// WeightKind is the storage class behind a WeightType.
type WeightKind uint8

const (
	WeightBool WeightKind = iota + 1
	WeightInt64
	WeightFloat64
	WeightComplex64
	WeightUser
)

// WeightType is the element type of a relation's weights. Every edge of a
// relation carries a weight of the relation's type; an omitted weight takes
// the type's default.
type WeightType struct {
	name    string
	kind    WeightKind
	def     any
	convert func(any) (any, error)
}

// Built-in weight types.
var (
	Bool      = WeightType{name: "BOOL", kind: WeightBool, def: true}
	Int64     = WeightType{name: "INT64", kind: WeightInt64, def: int64(1)}
	Float64   = WeightType{name: "FP64", kind: WeightFloat64, def: float64(1)}
	Complex64 = WeightType{name: "FC32", kind: WeightComplex64, def: complex64(1)}
)

var builtinWeightTypes = []WeightType{Bool, Int64, Float64, Complex64}

// UserType declares a user-defined weight type. convert validates and
// normalizes an incoming value; a nil convert accepts any value unchanged.
// Values are stored as-is in an any-typed matrix and must be msgpack
// encodable for persistence.
func UserType(name string, def any, convert func(any) (any, error)) WeightType {
	return WeightType{name: name, kind: WeightUser, def: def, convert: convert}
}

// Name returns the type's registry name ("BOOL", "INT64", "FP64", "FC32" or
// the user-supplied name).
func (w WeightType) Name() string { return w.name }

// Kind returns the storage class.
func (w WeightType) Kind() WeightKind { return w.kind }

// Default returns the weight used when an edge spec omits one.
func (w WeightType) Default() any { return w.def }

// IsZero reports whether w is the zero WeightType (no type chosen).
func (w WeightType) IsZero() bool { return w.kind == 0 }

func (w WeightType) String() string { return w.name }

// Coerce converts v to w's Go representation. A nil v yields the default.
// Values that cannot be represented exactly wrap ErrTypeMismatch.
func (w WeightType) Coerce(v any) (any, error) {
	if v == nil {
		return w.def, nil
	}
	switch w.kind {
	case WeightBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case WeightInt64:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	case WeightFloat64:
		if f, ok := toFloat64(v); ok {
			return f, nil
		}
	case WeightComplex64:
		if c, ok := toComplex64(v); ok {
			return c, nil
		}
	case WeightUser:
		if w.convert == nil {
			return v, nil
		}
		out, err := w.convert(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTypeMismatch, w.name, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T (%v) is not %s", ErrTypeMismatch, v, v, w.name)
}

// Parse converts a textual weight, as typed on a command line, to w.
func (w WeightType) Parse(s string) (any, error) {
	var (
		v   any
		err error
	)
	switch w.kind {
	case WeightBool:
		v, err = strconv.ParseBool(s)
	case WeightInt64:
		v, err = strconv.ParseInt(s, 10, 64)
	case WeightFloat64:
		v, err = strconv.ParseFloat(s, 64)
	case WeightComplex64:
		var c complex128
		c, err = strconv.ParseComplex(strings.TrimSpace(s), 64)
		v = complex64(c)
	default:
		return w.Coerce(s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not %s", ErrTypeMismatch, s, w.name)
	}
	return v, nil
}

// PortableWeight returns v in a form JSON and msgpack can both carry.
// complex64 becomes a [real, imag] pair; everything else is returned as-is.
func PortableWeight(v any) any {
	if c, ok := v.(complex64); ok {
		return []float64{float64(real(c)), float64(imag(c))}
	}
	return v
}

// lookupWeightType resolves a registry name against the built-ins and extra.
func lookupWeightType(name string, extra []WeightType) (WeightType, bool) {
	for _, w := range builtinWeightTypes {
		if w.name == name {
			return w, true
		}
	}
	for _, w := range extra {
		if w.name == name {
			return w, true
		}
	}
	return WeightType{}, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return uint64ToInt64(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return uint64ToInt64(n)
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func uint64ToInt64(n uint64) (int64, bool) {
	if n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toComplex64(v any) (complex64, bool) {
	switch c := v.(type) {
	case complex64:
		return c, true
	case complex128:
		return complex64(c), true
	case []float64:
		if len(c) == 2 {
			return complex(float32(c[0]), float32(c[1])), true
		}
		return 0, false
	case []float32:
		if len(c) == 2 {
			return complex(c[0], c[1]), true
		}
		return 0, false
	case []any:
		if len(c) != 2 {
			return 0, false
		}
		re, ok1 := toFloat64(c[0])
		im, ok2 := toFloat64(c[1])
		if !ok1 || !ok2 {
			return 0, false
		}
		return complex(float32(re), float32(im)), true
	}
	if f, ok := toFloat64(v); ok {
		return complex(float32(f), 0), true
	}
	return 0, false
}
