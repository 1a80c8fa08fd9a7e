// Package vm implements ember's stack-based bytecode interpreter: a
// switch-dispatched opcode loop over the value stack, call frames, open
// upvalues, and the exception handler stack, built directly on top of
// pkg/heap's mark-and-sweep collector and pkg/value's object model.
//
//	Source -> Lexer -> Parser -> AST -> Compiler -> bytecode.Chunk -> VM
//
// The VM is single-threaded: one goroutine drives Run, and the only legal
// cross-goroutine interaction is a host calling Interrupt, which flips an
// atomic flag the loop checks at backward jumps and calls (spec.md §5).
package vm

import (
	"bytes"
	"fmt"
	"sync/atomic"

	"github.com/emberlang/ember/pkg/bytecode"
	"github.com/emberlang/ember/pkg/bytefmt"
	"github.com/emberlang/ember/pkg/compiler"
	emberrors "github.com/emberlang/ember/pkg/errors"
	"github.com/emberlang/ember/pkg/heap"
	"github.com/emberlang/ember/pkg/module"
	"github.com/emberlang/ember/pkg/parser"
	"github.com/emberlang/ember/pkg/value"
)

// callFrame is one activation record: the running closure, its instruction
// pointer, and where its locals begin on the value stack. returnBase is the
// stack slot the caller's callee value occupied, which is where the result
// lands and vm.sp resets to on return. methodClass, when non-nil, is the
// class FindMethod resolved this call from, the starting point for a
// super.method(...) call inside this frame.
type callFrame struct {
	closure     *value.Closure
	ip          int
	base        int
	returnBase  int
	methodClass *value.Class
	isCtor      bool
	ctorResult  value.Value
}

// handlerRecord is one active try handler: which frame it belongs to, the
// stack depth to restore on unwind, and the bytecode offset its except-
// clause chain starts at.
type handlerRecord struct {
	frameIndex  int
	stackBase   int
	catchOffset int
}

// openUpvalue pairs a still-open Upvalue with the absolute stack slot it
// points into, so closeUpvalues can find and close every upvalue a
// returning or unwinding frame owns without scanning the stack itself.
type openUpvalue struct {
	idx int
	uv  *value.Upvalue
}

// VM is ember's interpreter: one value stack, one call-frame stack, one
// exception-handler stack, and the heap everything above is allocated on.
type VM struct {
	cfg        heap.Config
	heap       *heap.Heap
	stack      []value.Value
	sp         int
	frames     []callFrame
	handlers   []handlerRecord
	openUVs    []openUpvalue
	module     *value.Module
	exceptions *emberrors.Hierarchy
	evalBreak  atomic.Bool
	loader     module.Loader
	modules    map[string]*value.Module
}

// New builds a VM with its own heap, sized per cfg.
func New(cfg heap.Config) *VM {
	h := heap.New(cfg)
	vm := &VM{cfg: cfg, heap: h, stack: make([]value.Value, cfg.StackCapacity)}
	vm.exceptions = emberrors.NewHierarchy(func(name string, super *value.Class) *value.Class {
		cls := &value.Class{
			Object:  value.Object{Kind: value.KClass},
			Name:    name,
			Super:   super,
			Methods: value.NewStringTable(),
		}
		h.Track(cls, 64)
		return cls
	})
	vm.installThrowableInit(h)
	vm.modules = make(map[string]*value.Module)
	return vm
}

// SetLoader installs the host's module-resolution callback (spec.md §6);
// without one, `import` always raises a NameException.
func (vm *VM) SetLoader(l module.Loader) { vm.loader = l }

// installThrowableInit gives the root of the built-in exception hierarchy a
// native "init" so source-level `raise SomeException("message")` can set
// the instance's "message" field through the ordinary construct path,
// without every built-in subclass needing its own constructor. Subclasses
// inherit it through Class.FindMethod's superclass walk.
func (vm *VM) installThrowableInit(h *heap.Heap) {
	throwable := vm.exceptions.Get(emberrors.Throwable)
	native := &value.Native{
		Object: value.Object{Kind: value.KNative},
		Name:   "init",
		Arity:  1,
		Fn: func(args []value.Value) (value.Value, error) {
			inst, _ := value.AsInstance(args[0])
			msg := value.ObjectValue(vm.intern(""))
			if len(args) > 1 {
				msg = args[1]
			}
			inst.Fields.Put(vm.intern("message"), msg)
			return value.NullValue, nil
		},
	}
	h.Track(native, 40)
	throwable.Methods.Put(vm.intern("init"), value.ObjectValue(native))
}

// NewDefault builds a VM with heap.DefaultConfig.
func NewDefault() *VM { return New(heap.DefaultConfig()) }

// Heap exposes the underlying heap, e.g. for a host's diagnostic commands.
func (vm *VM) Heap() *heap.Heap { return vm.heap }

// Interrupt requests that the running (or next) evaluation stop at the
// next backward jump or call, raising a ProgramInterrupt exception. It is
// the one field a host goroutine may write without synchronizing with the
// interpreter loop (spec.md §5).
func (vm *VM) Interrupt() { vm.evalBreak.Store(true) }

// Exceptions exposes the built-in Throwable/Exception hierarchy, so a host
// embedding ember can register native functions that raise them.
func (vm *VM) Exceptions() *emberrors.Hierarchy { return vm.exceptions }

// CollectGarbage forces one mark-and-sweep cycle outside the interpreter
// loop's usual threshold-triggered call, for a host's `:gc` diagnostic
// command (spec.md §4.5).
func (vm *VM) CollectGarbage() heap.Stats { return vm.heap.Collect(vm.markRoots) }

// NewModule creates a fresh module with the built-in exception classes
// already bound as globals, suitable for a first Run or for a host that
// wants several top-level chunks (a REPL's successive lines) to share one
// set of globals across separate RunWithModule calls.
func (vm *VM) NewModule(name string) *value.Module {
	module := &value.Module{Object: value.Object{Kind: value.KModule}, Name: name, Globals: value.NewStringTable()}
	vm.heap.Track(module, 64)
	vm.seedExceptionGlobals(module)
	return module
}

// Run executes fn as a fresh top-level program against a new module (see
// NewModule); equivalent to RunWithModule(fn, vm.NewModule("<main>")).
func (vm *VM) Run(fn *value.Function) (value.Value, error) {
	return vm.RunWithModule(fn, vm.NewModule("<main>"))
}

// RunWithModule executes fn as a top-level program against an
// already-built module, binding fn (and every Function nested inside it)
// to that module's globals. Running successive, independently compiled
// top-level functions against the same module is how a REPL keeps global
// variables live across inputs: ember has no separate incremental-compile
// step, since top-level `var` declarations are globals resolved by name.
func (vm *VM) RunWithModule(fn *value.Function, module *value.Module) (value.Value, error) {
	vm.link(fn, module, map[*value.Function]bool{})
	cl := &value.Closure{Object: value.Object{Kind: value.KClosure}, Fn: fn}
	vm.heap.Track(cl, 24)

	vm.module = module
	vm.sp = 0
	vm.frames = vm.frames[:0]
	vm.handlers = vm.handlers[:0]
	vm.openUVs = vm.openUVs[:0]
	vm.frames = append(vm.frames, callFrame{closure: cl, base: 0, returnBase: -1})
	return vm.run(0)
}

// CallValue lets a host (pkg/api, or a native function reentering the
// interpreter for a callback) call any callable value directly: args are
// pushed, callee is dispatched through the same callValue funnel every
// opcode uses, and — if that pushed a new frame rather than resolving
// synchronously (Native, or a no-init Class) — the interpreter loop runs
// until control returns to the frame depth recorded before the call.
func (vm *VM) CallValue(callee value.Value, args []value.Value) (value.Value, error) {
	depth := len(vm.frames)
	base := vm.sp
	argsStart := vm.sp
	for _, a := range args {
		vm.push(a)
	}
	if err := vm.callValue(callee, argsStart, len(args), nil, base, nil); err != nil {
		return value.NullValue, err
	}
	if len(vm.frames) == depth {
		return vm.stack[base], nil
	}
	return vm.run(depth)
}

// seedExceptionGlobals binds every built-in exception class name (Exception,
// TypeException, ...) into the module's globals, so an except-clause's
// `compileIdentLoad(ex.ExceptionType, ...)` and a source-level
// `raise SomeException(...)` both resolve it exactly like any other global.
func (vm *VM) seedExceptionGlobals(mod *value.Module) {
	for name, cls := range vm.exceptions.Classes {
		mod.Globals.Put(vm.intern(name), value.ObjectValue(cls))
	}
}

// link binds fn.Module and interns every string-shaped constant/default of
// fn (and, recursively, every Function constant nested inside it) against
// this VM's heap, replacing the compiler's placeholder *String pointers
// with the canonical interned ones. seen guards against revisiting a
// Function constant shared by more than one enclosing chunk.
func (vm *VM) link(fn *value.Function, mod *value.Module, seen map[*value.Function]bool) {
	if seen[fn] {
		return
	}
	seen[fn] = true
	fn.Module = mod
	for i, c := range fn.Constants {
		if s, ok := value.AsString(c); ok {
			fn.Constants[i] = value.ObjectValue(vm.heap.Intern(s.Bytes))
		} else if nested, ok := value.AsFunction(c); ok {
			vm.link(nested, mod, seen)
		}
	}
	for i, d := range fn.Defaults {
		if s, ok := value.AsString(d); ok {
			fn.Defaults[i] = value.ObjectValue(vm.heap.Intern(s.Bytes))
		}
	}
}

// loadModule resolves name through the configured Loader on first import
// only: it compiles (or, for a precompiled unit, decodes) the result,
// evaluates its top level via CallValue so the call nests inside whatever
// frame is currently executing OpImport, and caches the resulting Module in
// the registry keyed by name, matching spec.md §6's "stashes the module in
// the global module registry keyed by interned name."
func (vm *VM) loadModule(name string) (*value.Module, error) {
	if m, ok := vm.modules[name]; ok {
		return m, nil
	}
	if vm.loader == nil {
		return nil, fmt.Errorf("no module loader configured, cannot import %q", name)
	}
	res, err := vm.loader(name)
	if err != nil {
		return nil, err
	}

	var fn *value.Function
	if res.Compiled != nil {
		fn, err = bytefmt.Decode(bytes.NewReader(res.Compiled))
	} else {
		p := parser.New(string(res.Source))
		prog := p.ParseProgram()
		if errs := p.Errors(); len(errs) > 0 {
			return nil, fmt.Errorf("module %q: parse errors: %v", name, errs)
		}
		fn, err = compiler.New().Compile(prog)
	}
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", name, err)
	}

	mod := &value.Module{Object: value.Object{Kind: value.KModule}, Name: name, Path: res.Path, Globals: value.NewStringTable()}
	vm.heap.Track(mod, 64)
	vm.seedExceptionGlobals(mod)
	vm.link(fn, mod, map[*value.Function]bool{})

	cl := &value.Closure{Object: value.Object{Kind: value.KClosure}, Fn: fn}
	vm.heap.Track(cl, 24)

	vm.modules[name] = mod
	if _, err := vm.CallValue(value.ObjectValue(cl), nil); err != nil {
		delete(vm.modules, name)
		return nil, err
	}
	return mod, nil
}

func (vm *VM) intern(s string) *value.String { return vm.heap.Intern([]byte(s)) }

func (vm *VM) push(v value.Value) {
	if vm.sp >= len(vm.stack) {
		panic("ember: value stack overflow")
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() value.Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(n int) value.Value { return vm.stack[vm.sp-1-n] }

// run is the main dispatch loop. It returns as soon as control unwinds back
// to stopDepth frames (the depth recorded by whichever caller, Run or
// CallValue, pushed the frame this invocation is meant to drive), or an
// exception propagates past every handler.
func (vm *VM) run(stopDepth int) (value.Value, error) {
	for {
		frame := &vm.frames[len(vm.frames)-1]
		fn := frame.closure.Fn
		inst := fn.Chunk.Code[frame.ip]
		frame.ip++

		switch inst.Op {
		case bytecode.OpPush:
			vm.push(fn.Constants[inst.Operand])
		case bytecode.OpPop:
			vm.sp--
		case bytecode.OpDup:
			vm.push(vm.peek(0))
		case bytecode.OpPushNull:
			vm.push(value.NullValue)
		case bytecode.OpPushTrue:
			vm.push(value.BoolValue(true))
		case bytecode.OpPushFalse:
			vm.push(value.BoolValue(false))

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
			bytecode.OpEq, bytecode.OpNeq, bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
			if err := vm.binaryOp(inst.Op); err != nil {
				return value.NullValue, err
			}
		case bytecode.OpNeg:
			if err := vm.unaryNeg(); err != nil {
				return value.NullValue, err
			}
		case bytecode.OpNot:
			v := vm.pop()
			vm.push(value.BoolValue(!v.Truthy()))

		case bytecode.OpLoadLocal:
			vm.push(vm.stack[frame.base+inst.Operand])
		case bytecode.OpStoreLocal:
			vm.stack[frame.base+inst.Operand] = vm.peek(0)
		case bytecode.OpLoadUpvalue:
			vm.push(frame.closure.Upvalues[inst.Operand].Get())
		case bytecode.OpStoreUpvalue:
			frame.closure.Upvalues[inst.Operand].Set(vm.peek(0))
		case bytecode.OpLoadGlobal:
			name, _ := value.AsString(fn.Constants[inst.Operand])
			v, ok := fn.Module.Globals.Get(name)
			if !ok {
				if err := vm.fail(vm.newException(emberrors.NameException, "undefined global '%s'", name.String())); err != nil {
					return value.NullValue, err
				}
				break
			}
			vm.push(v)
		case bytecode.OpStoreGlobal:
			name, _ := value.AsString(fn.Constants[inst.Operand])
			fn.Module.Globals.Put(name, vm.peek(0))
		case bytecode.OpImport:
			name, _ := value.AsString(fn.Constants[inst.Operand])
			mod, ierr := vm.loadModule(name.String())
			if ierr != nil {
				if err := vm.fail(vm.newException(emberrors.NameException, "import %q: %s", name.String(), ierr.Error())); err != nil {
					return value.NullValue, err
				}
				break
			}
			fn.Module.Globals.Put(name, value.ObjectValue(mod))
		case bytecode.OpLoadField:
			name, _ := value.AsString(fn.Constants[inst.Operand])
			target := vm.pop()
			if mod, ok := value.AsModule(target); ok {
				v, ok := mod.Globals.Get(name)
				if !ok {
					if err := vm.fail(vm.newException(emberrors.NameException, "undefined global '%s' in module '%s'", name.String(), mod.Name)); err != nil {
						return value.NullValue, err
					}
					break
				}
				vm.push(v)
				break
			}
			inst2, ok := value.AsInstance(target)
			if !ok {
				if err := vm.fail(vm.newException(emberrors.TypeException, "cannot load field '%s' from a %s", name.String(), kindName(target))); err != nil {
					return value.NullValue, err
				}
				break
			}
			v, ok := inst2.Fields.Get(name)
			if !ok {
				if m, _, found := inst2.Class.FindMethod(name); found {
					bm := &value.BoundMethod{Object: value.Object{Kind: value.KBoundMethod}, Receiver: target, Method: m}
					vm.heap.Track(bm, 48)
					vm.push(value.ObjectValue(bm))
					break
				}
				if err := vm.fail(vm.newException(emberrors.NameException, "undefined field '%s'", name.String())); err != nil {
					return value.NullValue, err
				}
				break
			}
			vm.push(v)
		case bytecode.OpStoreField:
			name, _ := value.AsString(fn.Constants[inst.Operand])
			target := vm.pop()
			if mod, ok := value.AsModule(target); ok {
				mod.Globals.Put(name, vm.peek(0))
				break
			}
			inst2, ok := value.AsInstance(target)
			if !ok {
				if err := vm.fail(vm.newException(emberrors.TypeException, "cannot set field '%s' on a %s", name.String(), kindName(target))); err != nil {
					return value.NullValue, err
				}
				break
			}
			inst2.Fields.Put(name, vm.peek(0))
		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(vm.sp - 1)
			vm.sp--

		case bytecode.OpJump:
			frame.ip = inst.Operand
		case bytecode.OpJumpIfFalse:
			if !vm.peek(0).Truthy() {
				frame.ip = inst.Operand
			}
		case bytecode.OpJumpIfTrue:
			if vm.peek(0).Truthy() {
				frame.ip = inst.Operand
			}
		case bytecode.OpLoop:
			if err := vm.checkInterrupt(); err != nil {
				return value.NullValue, err
			}
			frame.ip = inst.Operand

		case bytecode.OpCall:
			if err := vm.checkInterrupt(); err != nil {
				return value.NullValue, err
			}
			argc := inst.Operand
			calleeIdx := vm.sp - argc - 1
			callee := vm.stack[calleeIdx]
			if err := vm.callValue(callee, calleeIdx+1, argc, nil, calleeIdx, nil); err != nil {
				return value.NullValue, err
			}
		case bytecode.OpInvoke:
			nameIdx, argc := bytecode.UnpackArgs(inst.Operand)
			selector, _ := value.AsString(fn.Constants[nameIdx])
			recvIdx := vm.sp - argc - 1
			receiver := vm.stack[recvIdx]
			if err := vm.invokeMethod(selector, receiver, recvIdx, argc); err != nil {
				return value.NullValue, err
			}
		case bytecode.OpSuperInvoke:
			nameIdx, argc := bytecode.UnpackArgs(inst.Operand)
			selector, _ := value.AsString(fn.Constants[nameIdx])
			recvIdx := vm.sp - argc - 1
			receiver := vm.stack[recvIdx]
			if err := vm.superInvoke(frame, selector, receiver, recvIdx, argc); err != nil {
				return value.NullValue, err
			}
		case bytecode.OpReturn:
			result := vm.pop()
			f := vm.frames[len(vm.frames)-1]
			vm.closeUpvalues(f.base)
			for len(vm.handlers) > 0 && vm.handlers[len(vm.handlers)-1].frameIndex >= len(vm.frames)-1 {
				vm.handlers = vm.handlers[:len(vm.handlers)-1]
			}
			if f.isCtor {
				result = f.ctorResult
			}
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) <= stopDepth {
				return result, nil
			}
			vm.sp = f.returnBase
			vm.push(result)

		case bytecode.OpClosure:
			proto, _ := value.AsFunction(fn.Constants[inst.Operand])
			ups := make([]*value.Upvalue, len(proto.Upvalues))
			for i, d := range proto.Upvalues {
				if d.IsLocal {
					ups[i] = vm.captureUpvalue(frame.base + d.Index)
				} else {
					ups[i] = frame.closure.Upvalues[d.Index]
				}
			}
			cl := &value.Closure{Object: value.Object{Kind: value.KClosure}, Fn: proto, Upvalues: ups}
			vm.heap.Track(cl, uint64(24+8*len(ups)))
			vm.push(value.ObjectValue(cl))

		case bytecode.OpNewList:
			n := inst.Operand
			items := append([]value.Value(nil), vm.stack[vm.sp-n:vm.sp]...)
			vm.sp -= n
			lst := &value.List{Object: value.Object{Kind: value.KList}, Items: items}
			vm.heap.Track(lst, uint64(24+16*len(items)))
			vm.push(value.ObjectValue(lst))
		case bytecode.OpNewTuple:
			n := inst.Operand
			items := append([]value.Value(nil), vm.stack[vm.sp-n:vm.sp]...)
			vm.sp -= n
			tup := &value.Tuple{Object: value.Object{Kind: value.KTuple}, Items: items}
			vm.heap.Track(tup, uint64(24+16*len(items)))
			vm.push(value.ObjectValue(tup))
		case bytecode.OpNewTable:
			_, n := bytecode.UnpackArgs(inst.Operand)
			base := vm.sp - 2*n
			tbl := value.NewValueTable()
			ok := true
			for i := 0; i < n; i++ {
				k := vm.stack[base+2*i]
				v := vm.stack[base+2*i+1]
				if !value.Hashable(k) {
					vm.sp = base
					if err := vm.fail(vm.newException(emberrors.TypeException, "unhashable table key")); err != nil {
						return value.NullValue, err
					}
					ok = false
					break
				}
				tbl.Put(k, v)
			}
			if !ok {
				break
			}
			vm.sp = base
			t := &value.Table{Object: value.Object{Kind: value.KTable}, Table: tbl}
			vm.heap.Track(t, uint64(24+32*n))
			vm.push(value.ObjectValue(t))
		case bytecode.OpGetIndex:
			key := vm.pop()
			obj := vm.pop()
			if err := vm.indexGet(obj, key); err != nil {
				return value.NullValue, err
			}
		case bytecode.OpSetIndex:
			key := vm.pop()
			obj := vm.pop()
			val := vm.peek(0)
			if err := vm.indexSet(obj, key, val); err != nil {
				return value.NullValue, err
			}

		case bytecode.OpNewClass:
			name, _ := value.AsString(fn.Constants[inst.Operand])
			cls := &value.Class{Object: value.Object{Kind: value.KClass}, Name: name.String(), Methods: value.NewStringTable()}
			vm.heap.Track(cls, 64)
			vm.push(value.ObjectValue(cls))
		case bytecode.OpInherit:
			superV := vm.pop()
			superCls, ok := value.AsClass(superV)
			if !ok {
				if err := vm.fail(vm.newException(emberrors.TypeException, "superclass must be a class")); err != nil {
					return value.NullValue, err
				}
				break
			}
			subCls, _ := value.AsClass(vm.peek(0))
			subCls.Super = superCls
		case bytecode.OpMethod:
			name, _ := value.AsString(fn.Constants[inst.Operand])
			closureV := vm.pop()
			cls, _ := value.AsClass(vm.peek(0))
			cls.Methods.Put(name, closureV)
		case bytecode.OpIsInstance:
			clsV := vm.pop()
			valV := vm.pop()
			cls, ok := value.AsClass(clsV)
			match := false
			if ok {
				if inst2, ok := value.AsInstance(valV); ok {
					for c := inst2.Class; c != nil; c = c.Super {
						if c == cls {
							match = true
							break
						}
					}
				}
			}
			vm.push(value.BoolValue(match))

		case bytecode.OpSetupTry:
			vm.handlers = append(vm.handlers, handlerRecord{
				frameIndex:  len(vm.frames) - 1,
				stackBase:   vm.sp,
				catchOffset: inst.Operand,
			})
		case bytecode.OpPopHandler:
			if len(vm.handlers) > 0 {
				vm.handlers = vm.handlers[:len(vm.handlers)-1]
			}
		case bytecode.OpRaise:
			val := vm.pop()
			if err := vm.failAppend(val, false); err != nil {
				return value.NullValue, err
			}
		case bytecode.OpReraise:
			val := vm.pop()
			if err := vm.failAppend(val, true); err != nil {
				return value.NullValue, err
			}

		case bytecode.OpForIter:
			if err := vm.forIter(inst.Operand); err != nil {
				return value.NullValue, err
			}

		case bytecode.OpHalt:
			if vm.sp > 0 {
				return vm.pop(), nil
			}
			return value.NullValue, nil

		default:
			return value.NullValue, fmt.Errorf("ember: unimplemented opcode %s", inst.Op)
		}

		if vm.heap.ShouldCollect() {
			vm.heap.Collect(vm.markRoots)
		}
	}
}

func kindName(v value.Value) string {
	if v.IsObj() {
		return v.AsObject().Header().Kind.String()
	}
	return v.Kind().String()
}

// checkInterrupt implements spec.md §5's cooperative interrupt: a host
// goroutine calling Interrupt sets evalBreak, which the loop observes (and
// clears) only at backward jumps and calls.
func (vm *VM) checkInterrupt() error {
	if vm.evalBreak.CompareAndSwap(true, false) {
		return vm.fail(vm.newException(emberrors.ProgramInterrupt, "evaluation interrupted"))
	}
	return nil
}

// captureUpvalue returns the open Upvalue for absolute stack slot idx,
// reusing an existing one so two closures capturing the same local share
// mutations, per spec.md §3 invariant 4.
func (vm *VM) captureUpvalue(idx int) *value.Upvalue {
	for _, ou := range vm.openUVs {
		if ou.idx == idx {
			return ou.uv
		}
	}
	uv := &value.Upvalue{Object: value.Object{Kind: value.KUpvalue}, Location: &vm.stack[idx]}
	vm.heap.Track(uv, 32)
	vm.openUVs = append(vm.openUVs, openUpvalue{idx: idx, uv: uv})
	return uv
}

// closeUpvalues closes (moves off the stack) every open upvalue at or
// above fromIdx, run on scope exit, frame return, and exception unwind.
func (vm *VM) closeUpvalues(fromIdx int) {
	kept := vm.openUVs[:0]
	for _, ou := range vm.openUVs {
		if ou.idx >= fromIdx {
			ou.uv.Close()
			continue
		}
		kept = append(kept, ou)
	}
	vm.openUVs = kept
}
