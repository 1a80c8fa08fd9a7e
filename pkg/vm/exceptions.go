package vm

import (
	"fmt"

	"github.com/emberlang/ember/pkg/value"
)

const traceFieldName = "__trace__"

// newException constructs a value.Instance of the named built-in exception
// class with a "message" field, entirely bypassing the call machinery
// (built-in faults never run a user-defined init). A user-defined Exception
// subclass raised by name in source still goes through the ordinary
// Class-construction path in construct.
func (vm *VM) newException(name, format string, args ...interface{}) value.Value {
	cls := vm.exceptions.Get(name)
	inst := &value.Instance{Object: value.Object{Kind: value.KInstance}, Class: cls, Fields: value.NewStringTable()}
	vm.heap.Track(inst, 48)
	msg := fmt.Sprintf(format, args...)
	inst.Fields.Put(vm.intern("message"), value.ObjectValue(vm.intern(msg)))
	return value.ObjectValue(inst)
}

// fail raises val as a fresh exception (a new stack trace, not an append
// to an existing one); used for every internally synthesized fault.
func (vm *VM) fail(val value.Value) error { return vm.failAppend(val, false) }

// failAppend is fail's general form: appendTrace selects OpRaise's
// fresh-trace semantics (false) versus OpReraise's append-to-existing
// semantics (true).
func (vm *VM) failAppend(val value.Value, appendTrace bool) error {
	if vm.raise(val, appendTrace) {
		return nil
	}
	return vm.uncaught(val)
}

// raise attaches a stack trace to val, then searches the handler stack
// from innermost outward. The first handler found consumes itself (and
// anything nested deeper), unwinds frames/upvalues/stack back to its
// recorded depth, and resumes execution at its catch offset — where the
// compiled except-clause chain does the actual isinstance matching,
// falling back to OpReraise if nothing matches (which re-enters this
// search at the next enclosing handler). Returns false if no handler
// remains, meaning val escapes as an uncaught RuntimeError.
func (vm *VM) raise(val value.Value, appendTrace bool) bool {
	vm.attachTrace(val, appendTrace)
	if len(vm.handlers) == 0 {
		return false
	}
	i := len(vm.handlers) - 1
	h := vm.handlers[i]
	vm.handlers = vm.handlers[:i]

	for len(vm.frames)-1 > h.frameIndex {
		top := vm.frames[len(vm.frames)-1]
		vm.closeUpvalues(top.base)
		vm.frames = vm.frames[:len(vm.frames)-1]
	}
	vm.closeUpvalues(h.stackBase)
	vm.sp = h.stackBase
	vm.push(val)
	vm.frames[h.frameIndex].ip = h.catchOffset
	return true
}

// attachTrace records the current call stack onto val's "__trace__" field,
// per spec.md §9's resolved Open Question: a raise starts a fresh trace, a
// reraise appends to the one already attached (so a re-raised exception
// accumulates frames from the last raise site, not the first).
func (vm *VM) attachTrace(val value.Value, appendExisting bool) {
	inst, ok := value.AsInstance(val)
	if !ok {
		return
	}
	key := vm.intern(traceFieldName)
	var trace *value.StackTrace
	if appendExisting {
		if tv, ok := inst.Fields.Get(key); ok {
			if t, ok := tv.AsObject().(*value.StackTrace); ok {
				trace = t
			}
		}
	}
	if trace == nil {
		trace = &value.StackTrace{Object: value.Object{Kind: value.KStackTrace}}
		vm.heap.Track(trace, 16)
		inst.Fields.Put(key, value.ObjectValue(trace))
	}
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := vm.frames[i]
		trace.Append(value.TraceEntry{
			FunctionName: f.closure.Fn.Name,
			Offset:       f.ip,
			Line:         f.closure.Fn.Chunk.Line(f.ip),
		})
	}
}

// ReadStackTrace extracts the (function, offset, line) trace attached to
// val's "__trace__" field, if val is an Instance that has one — the
// embedding API's read-stacktrace accessor (SPEC_FULL.md §6).
func (vm *VM) ReadStackTrace(val value.Value) []StackFrame {
	inst, ok := value.AsInstance(val)
	if !ok {
		return nil
	}
	tv, ok := inst.Fields.Get(vm.intern(traceFieldName))
	if !ok {
		return nil
	}
	t, ok := tv.AsObject().(*value.StackTrace)
	if !ok {
		return nil
	}
	frames := make([]StackFrame, len(t.Entries))
	for i, e := range t.Entries {
		frames[i] = StackFrame{Name: e.FunctionName, Offset: e.Offset, Line: e.Line}
	}
	return frames
}

// uncaught converts an exception that escaped every handler into the
// RuntimeError Run returns to the host.
func (vm *VM) uncaught(val value.Value) error {
	name := "Exception"
	msg := "uncaught exception"
	var frames []StackFrame
	if inst, ok := value.AsInstance(val); ok {
		name = inst.Class.Name
		if mv, ok := inst.Fields.Get(vm.intern("message")); ok {
			if s, ok := value.AsString(mv); ok {
				msg = s.String()
			}
		}
		if tv, ok := inst.Fields.Get(vm.intern(traceFieldName)); ok {
			if t, ok := tv.AsObject().(*value.StackTrace); ok {
				for _, e := range t.Entries {
					frames = append(frames, StackFrame{Name: e.FunctionName, Offset: e.Offset, Line: e.Line})
				}
			}
		}
	}
	return newRuntimeError(fmt.Sprintf("%s: %s", name, msg), frames)
}

// markRoots is the heap.RootFunc the garbage collector walks from: the
// live value stack, every call frame's closure, every open upvalue, the
// current module, every module in the import registry, and the built-in
// exception classes. An in-flight exception is always reachable through
// the value stack (it is never held only in a bare Go variable across an
// allocation), so it needs no separate root.
func (vm *VM) markRoots(mark func(value.Obj)) {
	for i := 0; i < vm.sp; i++ {
		if vm.stack[i].IsObj() {
			mark(vm.stack[i].AsObject())
		}
	}
	for _, f := range vm.frames {
		if f.closure != nil {
			mark(f.closure)
		}
	}
	for _, ou := range vm.openUVs {
		mark(ou.uv)
	}
	if vm.module != nil {
		mark(vm.module)
	}
	for _, m := range vm.modules {
		mark(m)
	}
	if vm.exceptions != nil {
		for _, cls := range vm.exceptions.Classes {
			mark(cls)
		}
	}
}
