package value

import (
	"hash/fnv"

	"github.com/emberlang/ember/pkg/bytecode"
)

// String is an immutable byte sequence with a cached FNV-1a hash. Strings
// are interned in a VM-wide table (owned by pkg/heap) so that string
// equality reduces to pointer identity — spec.md §3 invariant 3 and §8
// boundary scenario 1 ("abc" == "a"+"bc" by identity).
type String struct {
	Object
	Bytes []byte
	Hash  uint32
}

func (s *String) Header() *Object { return &s.Object }
func (s *String) String() string  { return string(s.Bytes) }

// FNV1a32 computes the cached hash stored on every interned String.
func FNV1a32(b []byte) uint32 {
	h := fnv.New32a()
	h.Write(b)
	return h.Sum32()
}

// List is a growable sequence of Values; capacity doubles on growth, same
// as Go's own slice append, which List.Append leans on directly.
type List struct {
	Object
	Items []Value
}

func (l *List) Header() *Object { return &l.Object }

func (l *List) Append(v Value) { l.Items = append(l.Items, v) }

// Tuple is a fixed-length sequence of Values. Spec.md describes tuples as
// "allocated inline with the header"; Go has no flexible array member, so
// ember's Tuple holds its elements in a slice sized exactly to length at
// construction and never resized — the observable fixed-length semantics
// spec.md cares about, not the literal memory layout.
type Tuple struct {
	Object
	Items []Value
}

func (t *Tuple) Header() *Object { return &t.Object }

// Table is a hash map from Value to Value; keys must satisfy Hashable.
type Table struct {
	Object
	Table *ValueTable
}

func (t *Table) Header() *Object { return &t.Object }

// Function is an immutable-after-compilation prototype: a bytecode chunk,
// a constant pool, declared arity, default-argument values, an optional
// variadic flag, a back-reference to the defining module, a name, and the
// upvalue descriptor array the compiler computed for closures over it.
type Function struct {
	Object
	Name      string
	Arity     int
	Required  int // count of leading parameters with no default (always mandatory)
	Defaults  []Value
	Variadic  bool
	Chunk     *bytecode.Chunk
	Constants []Value
	Upvalues  []UpvalueDesc
	Module    *Module
}

func (f *Function) Header() *Object { return &f.Object }

// UpvalueDesc records, for one upvalue slot of a Function, whether the
// compiler captured it from a local slot of the immediately enclosing
// frame (IsLocal) or forwarded it from that frame's own upvalue array.
type UpvalueDesc struct {
	IsLocal bool
	Index   int
}

// Closure pairs a Function with the Upvalues captured at creation time.
type Closure struct {
	Object
	Fn       *Function
	Upvalues []*Upvalue
}

func (c *Closure) Header() *Object { return &c.Object }

// Upvalue is either open (Location points at a slot still live on the
// value stack) or closed (Closed owns a Value moved off the stack at scope
// exit, Location is nil). The VM does not use Next: it keeps open upvalues
// in an unordered slice that captureUpvalue and closeUpvalues scan in
// full, so closing on RETURN/block-exit costs time linear in the number of
// open upvalues, not in the number closed.
type Upvalue struct {
	Object
	Location *Value
	Closed   Value
	Next     *Upvalue
}

func (u *Upvalue) Header() *Object { return &u.Object }
func (u *Upvalue) IsOpen() bool    { return u.Location != nil }

func (u *Upvalue) Get() Value {
	if u.Location != nil {
		return *u.Location
	}
	return u.Closed
}

func (u *Upvalue) Set(v Value) {
	if u.Location != nil {
		*u.Location = v
		return
	}
	u.Closed = v
}

// Close moves the live value off the stack into the upvalue and nullifies
// the slot pointer, per spec.md §3 invariant 4.
func (u *Upvalue) Close() {
	if u.Location == nil {
		return
	}
	u.Closed = *u.Location
	u.Location = nil
}

// NativeFn is the signature every host-supplied native function
// implements. It receives the arguments already popped off the VM stack
// and returns either a result Value or an error, which the interpreter
// synthesizes into a raised Exception at the call site (spec.md §7).
type NativeFn func(args []Value) (Value, error)

// Native is a Function-shaped prototype bound to a host callback, used for
// functions the embedding API registers rather than ones the compiler
// produced.
type Native struct {
	Object
	Name  string
	Arity int
	Fn    NativeFn
}

func (n *Native) Header() *Object { return &n.Object }

// Class has a name, an optional superclass, and a table of methods
// (string -> Closure/Native value). Per spec.md §3 invariant 6, the method
// table never holds anything else.
type Class struct {
	Object
	Name    string
	Super   *Class
	Methods *StringTable
}

func (c *Class) Header() *Object { return &c.Object }

// FindMethod walks c and its superclass chain looking for selector,
// returning the method value and the class that defines it. OpInvoke and
// OpSuperInvoke call it afresh on every call; there is no per-call-site
// cache of its result.
func (c *Class) FindMethod(selector *String) (Value, *Class, bool) {
	for cls := c; cls != nil; cls = cls.Super {
		if v, ok := cls.Methods.Get(selector); ok {
			return v, cls, true
		}
	}
	return Value{}, nil, false
}

// Instance is a class reference plus a small inline field table (string ->
// arbitrary Value), per spec.md §3 invariant 6.
type Instance struct {
	Object
	Class  *Class
	Fields *StringTable
}

func (i *Instance) Header() *Object { return &i.Object }

// Module is a name, a table of globals, and a source path.
type Module struct {
	Object
	Name    string
	Globals *StringTable
	Path    string
}

func (m *Module) Header() *Object { return &m.Object }

// BoundMethod pairs a receiver Value with a method reference (Closure or
// Native); OpLoadField produces one when a method is taken as a
// first-class value, while OpInvoke calls the method directly without
// creating one, per spec.md §4.4.
type BoundMethod struct {
	Object
	Receiver Value
	Method   Value
}

func (b *BoundMethod) Header() *Object { return &b.Object }

// TraceEntry is one (function, bytecode offset, source line) triple
// recorded for an in-flight exception, per spec.md §3.
type TraceEntry struct {
	FunctionName string
	Offset       int
	Line         int
}

// StackTrace is a recorded sequence of TraceEntry values, attached at
// RAISE time (spec.md §9's resolved Open Question) so a re-raised
// exception accumulates frames from the last raise site, not the first.
type StackTrace struct {
	Object
	Entries []TraceEntry
}

func (s *StackTrace) Header() *Object { return &s.Object }

func (s *StackTrace) Append(e TraceEntry) { s.Entries = append(s.Entries, e) }

// Userdata wraps an opaque host resource. Finalizer, if set, is invoked
// exactly once by the sweep phase before the Userdata itself is freed; no
// other language object ever runs a finalizer (spec.md §3 Lifecycle).
type Userdata struct {
	Object
	Tag       string
	Handle    uintptr
	Data      any
	Finalizer func(*Userdata)
}

func (u *Userdata) Header() *Object { return &u.Object }
