// Package api is ember's embedding facade: a thin layer over a running
// pkg/vm.VM that lets any Go caller compile, run, call into, and marshal
// values to and from a script — the generalization of what the teacher's
// cmd/smog did as a single hardwired CLI, now exposed as a reusable type.
//
// Every accessor here documents its GC-safety the same way: a Value is
// only guaranteed reachable across a call that can trigger collection
// (Run, Call, any of the constructors) if it is already on the VM's value
// stack or reachable from a global/field/module the collector walks as a
// root. A *value.Value held only in a bare Go local across such a call is
// not a GC root and must not be relied on afterward.
package api

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/emberlang/ember/pkg/compiler"
	emberrors "github.com/emberlang/ember/pkg/errors"
	"github.com/emberlang/ember/pkg/heap"
	"github.com/emberlang/ember/pkg/module"
	"github.com/emberlang/ember/pkg/parser"
	"github.com/emberlang/ember/pkg/value"
	"github.com/emberlang/ember/pkg/vm"
)

// VM embeds a running interpreter plus the module its top-level globals
// live in, so successive Run calls (a REPL's lines, or a host loading
// several source files into one namespace) share state the way spec.md
// §6's "Import callback" implies modules must be able to.
type VM struct {
	vm     *vm.VM
	module *value.Module
}

// New builds an embedding VM with the given heap configuration and a
// fresh top-level module.
func New(cfg heap.Config) *VM {
	v := vm.New(cfg)
	return &VM{vm: v, module: v.NewModule("<main>")}
}

// NewDefault builds an embedding VM with heap.DefaultConfig.
func NewDefault() *VM { return New(heap.DefaultConfig()) }

// Heap exposes the underlying heap for diagnostic commands (the REPL's :gc).
func (a *VM) Heap() *heap.Heap { return a.vm.Heap() }

// Interrupt requests that the running (or next) evaluation stop, per
// spec.md §5's cooperative interrupt model.
func (a *VM) Interrupt() { a.vm.Interrupt() }

// SetLoader installs the module-resolution callback `import` statements
// use (spec.md §6). Without one, every import raises a NameException.
func (a *VM) SetLoader(l module.Loader) { a.vm.SetLoader(l) }

// Exceptions exposes the built-in exception hierarchy, so a host can
// compare a caught value's class against, say, Exceptions().Get("IndexException").
func (a *VM) Exceptions() *emberrors.Hierarchy { return a.vm.Exceptions() }

// Compile parses and compiles src against this VM's heap (string constants
// are not yet interned — that happens at Run, via pkg/vm.link).
func (a *VM) Compile(src string) (*value.Function, error) {
	p := parser.New(src)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("parse errors: %v", errs)
	}
	c := compiler.New()
	fn, err := c.Compile(prog)
	if err != nil {
		return nil, err
	}
	return fn, nil
}

// Run compiles and executes src as a new top-level chunk against this VM's
// shared module, so a `var` declared in one Run call is visible as a
// global in the next — the mechanism a REPL or multi-file loader uses to
// keep state alive across separate inputs.
func (a *VM) Run(src string) (value.Value, error) {
	fn, err := a.Compile(src)
	if err != nil {
		return value.NullValue, err
	}
	return a.vm.RunWithModule(fn, a.module)
}

// RunFunction executes an already-compiled Function — typically one
// decoded via pkg/bytefmt from a precompiled file — against this VM's
// shared module, the way Run does for source it compiles itself.
func (a *VM) RunFunction(fn *value.Function) (value.Value, error) {
	return a.vm.RunWithModule(fn, a.module)
}

// Call invokes any callable value (a Closure, Class, Native, or
// BoundMethod previously obtained from a global, field, or Run result)
// with args, running the interpreter loop if the callee is a script
// closure. Used for host-to-script callbacks: the embedder holds a
// function value returned from script and calls back into it later.
func (a *VM) Call(callee value.Value, args []value.Value) (value.Value, error) {
	return a.vm.CallValue(callee, args)
}

// GetGlobal looks up a top-level name in this VM's shared module.
func (a *VM) GetGlobal(name string) (value.Value, bool) {
	return a.module.Globals.Get(a.intern(name))
}

// GlobalNames returns this VM's shared module's top-level names, sorted,
// for a REPL's `:globals` introspection command.
func (a *VM) GlobalNames() []string { return a.module.Globals.Keys() }

// CollectGarbage forces one mark-and-sweep cycle, for a REPL's `:gc`
// diagnostic command.
func (a *VM) CollectGarbage() heap.Stats { return a.vm.CollectGarbage() }

// SetGlobal binds name to v in this VM's shared module, e.g. to pre-seed
// a script's namespace with host-supplied configuration or native
// functions before calling Run.
func (a *VM) SetGlobal(name string, v value.Value) {
	a.module.Globals.Put(a.intern(name), v)
}

// GetField reads an instance field by name, the embedding-API equivalent
// of the interpreter's OpLoadField.
func (a *VM) GetField(instance value.Value, name string) (value.Value, bool) {
	inst, ok := value.AsInstance(instance)
	if !ok {
		return value.NullValue, false
	}
	return inst.Fields.Get(a.intern(name))
}

// SetField writes an instance field by name, the embedding-API equivalent
// of the interpreter's OpStoreField.
func (a *VM) SetField(instance value.Value, name string, v value.Value) bool {
	inst, ok := value.AsInstance(instance)
	if !ok {
		return false
	}
	inst.Fields.Put(a.intern(name), v)
	return true
}

// RegisterNative binds a host Go function as a global callable, the
// mechanism a host uses to expose its own capabilities to scripts (spec.md
// §7's native-function convention: a non-nil error becomes a raised
// Exception at the call site).
func (a *VM) RegisterNative(name string, arity int, fn value.NativeFn) {
	n := &value.Native{Object: value.Object{Kind: value.KNative}, Name: name, Arity: arity, Fn: fn}
	a.vm.Heap().Track(n, 40)
	a.SetGlobal(name, value.ObjectValue(n))
}

// NewString interns s against this VM's heap, for a native function
// building a result to return to script.
func (a *VM) NewString(s string) value.Value { return value.ObjectValue(a.intern(s)) }

// NewList allocates a List wrapping items.
func (a *VM) NewList(items []value.Value) value.Value {
	l := &value.List{Object: value.Object{Kind: value.KList}, Items: items}
	a.vm.Heap().Track(l, uint64(24+16*len(items)))
	return value.ObjectValue(l)
}

// NewTuple allocates a Tuple wrapping items.
func (a *VM) NewTuple(items []value.Value) value.Value {
	t := &value.Tuple{Object: value.Object{Kind: value.KTuple}, Items: items}
	a.vm.Heap().Track(t, uint64(24+16*len(items)))
	return value.ObjectValue(t)
}

// NewTable allocates an empty Table a native function can populate via
// its underlying ValueTable.
func (a *VM) NewTable() value.Value {
	tb := &value.Table{Object: value.Object{Kind: value.KTable}, Table: value.NewValueTable()}
	a.vm.Heap().Track(tb, 64)
	return value.ObjectValue(tb)
}

// NewUserdata wraps an opaque host resource (a file handle, iterator
// cursor) in a Value the script can hold and pass back, without scripts
// being able to inspect or corrupt its Data. The handle id is minted from
// a UUID rather than a small counter so two VMs, or a VM restarted mid
// process, never hand out colliding handles.
func (a *VM) NewUserdata(tag string, data any, finalizer func(*value.Userdata)) value.Value {
	id := uuid.New()
	u := &value.Userdata{
		Object:    value.Object{Kind: value.KUserdata},
		Tag:       tag,
		Handle:    uintptr(binary.BigEndian.Uint64(id[:8])),
		Data:      data,
		Finalizer: finalizer,
	}
	a.vm.Heap().Track(u, 48)
	return value.ObjectValue(u)
}

// NewException builds (without raising) an Instance of the named built-in
// or host-registered exception class with a "message" field, and wraps it
// in a *vm.ExceptionError so a native function can `return value.NullValue,
// a.NewException(...)` to raise a specific exception type instead
// of having its error text wrapped into a generic TypeException.
func (a *VM) NewException(name, format string, args ...interface{}) error {
	cls := a.vm.Exceptions().Get(name)
	if cls == nil {
		if g, ok := a.GetGlobal(name); ok {
			cls, _ = value.AsClass(g)
		}
	}
	if cls == nil {
		cls = a.vm.Exceptions().Get(emberrors.Exception)
	}
	msg := fmt.Sprintf(format, args...)
	inst := &value.Instance{Object: value.Object{Kind: value.KInstance}, Class: cls, Fields: value.NewStringTable()}
	a.vm.Heap().Track(inst, 48)
	inst.Fields.Put(a.intern("message"), a.NewString(msg))
	return &vm.ExceptionError{Value: value.ObjectValue(inst), Message: msg}
}

// ReadStackTrace reads the (function, offset, line) trace attached to an
// exception Instance a try/except or a RuntimeError surfaced.
func (a *VM) ReadStackTrace(excValue value.Value) []vm.StackFrame {
	return a.vm.ReadStackTrace(excValue)
}

func (a *VM) intern(s string) *value.String { return a.vm.Heap().Intern([]byte(s)) }
