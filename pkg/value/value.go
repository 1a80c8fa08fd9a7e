// Package value defines ember's runtime value representation and the
// heap object model it points into.
//
// A Value is a small tagged union: null, boolean, double-precision number,
// opaque host handle, or a reference to a heap Object. Ember keeps the tag
// explicit (a one-byte Kind plus a fixed payload) rather than NaN-tagging a
// float64 — see DESIGN.md's Open Question entry for why. Numbers compare
// and hash by bit pattern except that +0 and -0 are equal and any NaN never
// equals any value, including itself; Value's Equal (raw equality) encodes
// that rule, while language-level __eq__ overrides live in the VM, not here.
//
// Object is the header every heap-allocated thing shares: a kind tag, a GC
// mark bit, and an intrusive next-pointer threading all live objects into
// one allocation list (spec invariant: every live object is in that list
// exactly once). The concrete object kinds — String, List, Tuple, Table,
// Function, Closure, Native, Class, Instance, Module, BoundMethod,
// StackTrace, Userdata, Upvalue — are defined in objects.go.
package value

import "math"

// Kind is the tag discriminating a Value's active payload.
type Kind byte

const (
	Null Kind = iota
	Bool
	Number
	Handle
	Reference
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case Handle:
		return "handle"
	case Reference:
		return "object"
	default:
		return "unknown"
	}
}

// Value is the tagged union every bytecode instruction pushes, pops, and
// stores. Only one of num/handle/obj is meaningful for a given Kind; Bool
// stores 0.0/1.0 in num.
type Value struct {
	kind   Kind
	num    float64
	handle uintptr
	obj    Obj
}

// NullValue is the canonical null value; the zero Value already equals it.
var NullValue = Value{kind: Null}

func BoolValue(b bool) Value {
	if b {
		return Value{kind: Bool, num: 1}
	}
	return Value{kind: Bool, num: 0}
}

func NumberValue(n float64) Value { return Value{kind: Number, num: n} }

func HandleValue(h uintptr) Value { return Value{kind: Handle, handle: h} }

func ObjectValue(o Obj) Value { return Value{kind: Reference, obj: o} }

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsNull() bool    { return v.kind == Null }
func (v Value) IsBool() bool    { return v.kind == Bool }
func (v Value) IsNumber() bool  { return v.kind == Number }
func (v Value) IsHandle() bool  { return v.kind == Handle }
func (v Value) IsObj() bool     { return v.kind == Reference }

func (v Value) AsBool() bool      { return v.num != 0 }
func (v Value) AsNumber() float64 { return v.num }
func (v Value) AsHandle() uintptr { return v.handle }
func (v Value) AsObject() Obj     { return v.obj }

// Truthy implements ember's notion of truthiness: null and false are
// falsy, everything else (including 0 and "") is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case Null:
		return false
	case Bool:
		return v.num != 0
	default:
		return true
	}
}

// Equal implements raw (==) equality: bit-pattern equality on numbers with
// -0/+0 folded together, and the rule that no NaN equals anything,
// including itself. Object equality is pointer identity, except strings,
// which compare by content — but since strings are interned (invariant 3
// of spec.md §3), pointer identity already implies content equality, so no
// special case is needed here.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.num == o.num
	case Number:
		if math.IsNaN(v.num) || math.IsNaN(o.num) {
			return false
		}
		return normalizeZero(v.num) == normalizeZero(o.num)
	case Handle:
		return v.handle == o.handle
	case Reference:
		return v.obj == o.obj
	default:
		return false
	}
}

func normalizeZero(f float64) float64 {
	if f == 0 {
		return 0
	}
	return f
}

// HashBits returns a hash for v suitable for use as a hash-table key,
// matching spec.md §4.1's per-type hashing rules: strings use their cached
// FNV-1a hash, numbers hash by bit pattern with -0 normalized to +0, and
// booleans/null/handles hash by bit pattern.
func (v Value) HashBits() uint64 {
	switch v.kind {
	case Null:
		return 0x9e3779b97f4a7c15
	case Bool:
		if v.num != 0 {
			return 1
		}
		return 0
	case Number:
		return math.Float64bits(normalizeZero(v.num))
	case Handle:
		return uint64(v.handle)
	case Reference:
		if s, ok := AsString(v); ok {
			return uint64(s.Hash)
		}
		// Only strings are hashable object kinds per spec.md §4.1; callers
		// must check Hashable(v) before using a Value as a table key.
		return 0
	default:
		return 0
	}
}

// Hashable reports whether v may be used as a hash-table key: strings,
// numbers, booleans, null, and handles, per spec.md §4.1.
func Hashable(v Value) bool {
	if v.kind != Reference {
		return true
	}
	_, ok := AsString(v)
	return ok
}
