package value

// ObjKind discriminates the concrete shape of a heap object.
type ObjKind byte

const (
	KString ObjKind = iota
	KList
	KTuple
	KTable
	KFunction
	KClosure
	KNative
	KClass
	KInstance
	KModule
	KBoundMethod
	KStackTrace
	KUserdata
	KUpvalue
)

func (k ObjKind) String() string {
	switch k {
	case KString:
		return "String"
	case KList:
		return "List"
	case KTuple:
		return "Tuple"
	case KTable:
		return "Table"
	case KFunction:
		return "Function"
	case KClosure:
		return "Closure"
	case KNative:
		return "Native"
	case KClass:
		return "Class"
	case KInstance:
		return "Instance"
	case KModule:
		return "Module"
	case KBoundMethod:
		return "BoundMethod"
	case KStackTrace:
		return "StackTrace"
	case KUserdata:
		return "Userdata"
	case KUpvalue:
		return "Upvalue"
	default:
		return "Unknown"
	}
}

// Obj is implemented by every heap-allocated object kind. Dispatch on the
// concrete kind is an explicit switch on Header().Kind (per spec.md §9:
// "polymorphic object kinds are encoded as a tagged variant; dispatch is an
// explicit switch on the kind tag"); the interface itself exists only so
// the heap can hold a single intrusive allocation list and a single gray
// stack without reflection.
type Obj interface {
	Header() *Object
}

// Object is the header every heap object embeds as its first field: a kind
// tag, a GC mark bit, and an intrusive next-pointer threading all live
// objects into one allocation list (spec invariant: every live object is in
// that list exactly once). Marked and Next are mutated only by pkg/heap's
// mark-and-sweep pass.
type Object struct {
	Kind   ObjKind
	Marked bool
	Next   Obj
	Size   uint32 // approximate owned-storage bytes, recorded at Track time for pkg/heap's allocation accounting
}

// Header implements Obj for Object itself, which lets code that already
// has a bare *Object (e.g. while walking the allocation list) call Header()
// uniformly alongside concrete types.
func (o *Object) Header() *Object { return o }

// AsString type-asserts a Value's object payload down to *String.
func AsString(v Value) (*String, bool) {
	if v.kind != Reference {
		return nil, false
	}
	s, ok := v.obj.(*String)
	return s, ok
}

// AsFunction type-asserts a Value's object payload down to *Function.
func AsFunction(v Value) (*Function, bool) {
	if v.kind != Reference {
		return nil, false
	}
	f, ok := v.obj.(*Function)
	return f, ok
}

// AsClosure type-asserts a Value's object payload down to *Closure.
func AsClosure(v Value) (*Closure, bool) {
	if v.kind != Reference {
		return nil, false
	}
	c, ok := v.obj.(*Closure)
	return c, ok
}

// AsClass type-asserts a Value's object payload down to *Class.
func AsClass(v Value) (*Class, bool) {
	if v.kind != Reference {
		return nil, false
	}
	c, ok := v.obj.(*Class)
	return c, ok
}

// AsInstance type-asserts a Value's object payload down to *Instance.
func AsInstance(v Value) (*Instance, bool) {
	if v.kind != Reference {
		return nil, false
	}
	i, ok := v.obj.(*Instance)
	return i, ok
}

// AsModule type-asserts a Value's object payload down to *Module, so
// OpLoadField/OpStoreField can treat an imported module's Globals table
// like an instance's Fields for `name.member` access.
func AsModule(v Value) (*Module, bool) {
	if v.kind != Reference {
		return nil, false
	}
	m, ok := v.obj.(*Module)
	return m, ok
}
