// Package value defines the tagged Value union and the heap object model
// that the compiler emits into a chunk's constant pool and the VM operates
// on at runtime.
//
// Value Representation:
//
// A Value is one of four variants: Bool, Nil, Number, or Obj. Rather than
// NaN-box these into a single machine word (the classic C approach), ember
// uses a straightforward tagged struct - Go's interface-free sum types are
// expensive to fake convincingly, and a tagged struct is the idiomatic
// middle ground: no boxing allocation for the common Bool/Nil/Number cases,
// no unsafe pointer tricks.
//
// Object Representation:
//
// Obj is a sum type over heap object variants (currently just ObjString).
// Every heap object is an Obj carrying the variant tag and an
// intrusive "next" link so the VM can walk every live object at teardown
// without a garbage collector.
package value

import (
	"math"
	"strconv"
)

// Kind discriminates which variant of Value is populated.
type Kind byte

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObj
)

// Value is a tagged union: exactly one of Bool/Number/Obj is meaningful,
// selected by Kind. The zero Value is Nil.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	Obj    *Obj
}

// Nil is the unit value.
var Nil = Value{Kind: KindNil}

// BoolVal constructs a boolean Value.
func BoolVal(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// NumberVal constructs a numeric Value.
func NumberVal(n float64) Value { return Value{Kind: KindNumber, Number: n} }

// ObjVal constructs a Value wrapping a heap object.
func ObjVal(o *Obj) Value { return Value{Kind: KindObj, Obj: o} }

// IsNil reports whether v is the Nil value.
func (v Value) IsNil() bool { return v.Kind == KindNil }

// IsBool reports whether v holds a boolean.
func (v Value) IsBool() bool { return v.Kind == KindBool }

// IsNumber reports whether v holds a number.
func (v Value) IsNumber() bool { return v.Kind == KindNumber }

// IsObj reports whether v holds a heap object reference.
func (v Value) IsObj() bool { return v.Kind == KindObj }

// IsString reports whether v holds a string object.
func (v Value) IsString() bool { return v.Kind == KindObj && v.Obj != nil && v.Obj.Type == ObjTypeString }

// AsString returns the underlying Go string of a string Value. Callers must
// check IsString first; it does no check of its own (on a Value with no
// heap object it panics with a nil dereference), matching the "trust the
// caller" discipline the rest of the VM uses for its type-checked opcodes.
func (v Value) AsString() string { return v.Obj.Str.Chars }

// Falsey reports whether v is falsey under ember's truthiness rule: Nil and
// Bool(false) are falsey, everything else (including Number(0) and the
// empty string) is truthy.
func (v Value) Falsey() bool {
	switch v.Kind {
	case KindNil:
		return true
	case KindBool:
		return !v.Bool
	default:
		return false
	}
}

// Equal implements values_equal from the reference VM: Number compares with
// IEEE semantics (NaN != NaN), Obj compares by reference identity (which,
// because strings are interned, coincides with byte equality).
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindNumber:
		return a.Number == b.Number
	case KindObj:
		return a.Obj == b.Obj
	default:
		return false
	}
}

// IsNaN reports whether a numeric Value is NaN, exposed so callers building
// Equal-adjacent diagnostics don't need to reach into math themselves.
func (v Value) IsNaN() bool { return v.Kind == KindNumber && math.IsNaN(v.Number) }

// String renders v for `print` and REPL/debug output. Numbers that are
// mathematically integral print without a trailing ".0", matching the
// reference interpreter's printValue.
func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.Number)
	case KindObj:
		return v.Obj.String()
	default:
		return "<invalid value>"
	}
}

func formatNumber(n float64) string {
	if math.IsInf(n, 1) {
		return "inf"
	}
	if math.IsInf(n, -1) {
		return "-inf"
	}
	if math.IsNaN(n) {
		return "nan"
	}
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatFloat(n, 'f', 0, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
