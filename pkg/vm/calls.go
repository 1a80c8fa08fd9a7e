package vm

import (
	"fmt"

	emberrors "github.com/emberlang/ember/pkg/errors"
	"github.com/emberlang/ember/pkg/value"
)

// callValue dispatches a call to any callable Value: a Closure pushes a
// new frame, a Native runs synchronously, a Class constructs an Instance
// (running its init method as a constructor if one is declared), and a
// BoundMethod unwraps to its receiver and underlying method. argsStart/argc
// name the already-pushed argument range; this is the single entry point
// OpCall, OpInvoke, OpSuperInvoke, and dunder-operator dispatch all funnel
// through. this, if non-nil, is implicitly prepended as the receiver
// (true method dispatch); methodClass, if non-nil, is recorded on the new
// frame so a super call inside it knows where to resume lookup.
func (vm *VM) callValue(callee value.Value, argsStart, argc int, this *value.Value, returnBase int, methodClass *value.Class) error {
	if !callee.IsObj() {
		vm.sp = returnBase
		return vm.fail(vm.newException(emberrors.TypeException, "%s is not callable", kindName(callee)))
	}
	switch c := callee.AsObject().(type) {
	case *value.Closure:
		return vm.callClosure(c, argsStart, argc, this, returnBase, methodClass, nil)
	case *value.Native:
		return vm.callNative(c, argsStart, argc, this, returnBase)
	case *value.Class:
		return vm.construct(c, argsStart, argc, returnBase)
	case *value.BoundMethod:
		rcv := c.Receiver
		return vm.callValue(c.Method, argsStart, argc, &rcv, returnBase, nil)
	default:
		vm.sp = returnBase
		return vm.fail(vm.newException(emberrors.TypeException, "%s is not callable", kindName(callee)))
	}
}

// invokeMethod implements OpInvoke: a stored field closure called via
// method syntax takes priority (no implicit `this`), falling back to a
// true declared method with `this` bound to the receiver.
func (vm *VM) invokeMethod(selector *value.String, receiver value.Value, recvIdx, argc int) error {
	inst, ok := value.AsInstance(receiver)
	if !ok {
		vm.sp = recvIdx
		return vm.fail(vm.newException(emberrors.TypeException, "cannot call method '%s' on a %s", selector.String(), kindName(receiver)))
	}
	if v, ok := inst.Fields.Get(selector); ok {
		return vm.callValue(v, recvIdx+1, argc, nil, recvIdx, nil)
	}
	if m, cls, ok := inst.Class.FindMethod(selector); ok {
		rcv := receiver
		return vm.callValue(m, recvIdx+1, argc, &rcv, recvIdx, cls)
	}
	vm.sp = recvIdx
	return vm.fail(vm.newException(emberrors.NameException, "undefined method '%s'", selector.String()))
}

// superInvoke implements OpSuperInvoke: method lookup starts at the
// current frame's methodClass.Super rather than the receiver's own class.
func (vm *VM) superInvoke(frame *callFrame, selector *value.String, receiver value.Value, recvIdx, argc int) error {
	if frame.methodClass == nil || frame.methodClass.Super == nil {
		vm.sp = recvIdx
		return vm.fail(vm.newException(emberrors.TypeException, "no superclass for method '%s'", selector.String()))
	}
	m, cls, ok := frame.methodClass.Super.FindMethod(selector)
	if !ok {
		vm.sp = recvIdx
		return vm.fail(vm.newException(emberrors.NameException, "undefined method '%s'", selector.String()))
	}
	rcv := receiver
	return vm.callValue(m, recvIdx+1, argc, &rcv, recvIdx, cls)
}

// construct implements calling a Class as a constructor: allocate a fresh
// Instance, then run its resolved "init" method (if any) as a constructor
// call, whose frame returns the Instance regardless of what init itself
// returns, via callFrame.isCtor/ctorResult.
func (vm *VM) construct(cls *value.Class, argsStart, argc int, returnBase int) error {
	inst := &value.Instance{Object: value.Object{Kind: value.KInstance}, Class: cls, Fields: value.NewStringTable()}
	vm.heap.Track(inst, 48)
	instVal := value.ObjectValue(inst)

	initV, initCls, ok := cls.FindMethod(vm.intern("init"))
	if !ok {
		if argc != 0 {
			vm.sp = returnBase
			return vm.fail(vm.newException(emberrors.TypeException, "%s takes no constructor arguments", cls.Name))
		}
		vm.sp = returnBase
		vm.push(instVal)
		return nil
	}

	switch ic := initV.AsObject().(type) {
	case *value.Closure:
		return vm.callClosure(ic, argsStart, argc, &instVal, returnBase, initCls, &instVal)
	case *value.Native:
		args := append([]value.Value{instVal}, vm.stack[argsStart:argsStart+argc]...)
		if _, err := ic.Fn(args); err != nil {
			vm.sp = returnBase
			return vm.raiseNativeErr(err)
		}
		vm.sp = returnBase
		vm.push(instVal)
		return nil
	default:
		vm.sp = returnBase
		return vm.fail(vm.newException(emberrors.TypeException, "init is not callable"))
	}
}

// callClosure binds arguments and pushes a new frame for cl. ctor, if
// non-nil, marks the new frame as a constructor call whose return value
// is always *ctor (the Instance), ignoring whatever init's body returns.
func (vm *VM) callClosure(cl *value.Closure, argsStart, argc int, this *value.Value, returnBase int, methodClass *value.Class, ctor *value.Value) error {
	if len(vm.frames) >= vm.cfg.MaxFrames {
		vm.sp = returnBase
		return vm.fail(vm.newException(emberrors.StackOverflowException, "call stack exceeded %d frames", vm.cfg.MaxFrames))
	}

	fn := cl.Fn
	var raw []value.Value
	if this != nil {
		raw = make([]value.Value, 0, argc+1)
		raw = append(raw, *this)
		raw = append(raw, vm.stack[argsStart:argsStart+argc]...)
	} else {
		raw = append([]value.Value(nil), vm.stack[argsStart:argsStart+argc]...)
	}

	bound, err := vm.bindArgs(fn, raw)
	if err != nil {
		vm.sp = returnBase
		return vm.fail(vm.newException(emberrors.TypeException, "%s", err.Error()))
	}

	base := returnBase + 1
	need := base + len(bound)
	if need > len(vm.stack) {
		vm.sp = returnBase
		return vm.fail(vm.newException(emberrors.StackOverflowException, "value stack exceeded capacity %d", len(vm.stack)))
	}
	copy(vm.stack[base:need], bound)
	vm.sp = need

	cf := callFrame{closure: cl, base: base, returnBase: returnBase, methodClass: methodClass}
	if ctor != nil {
		cf.isCtor = true
		cf.ctorResult = *ctor
	}
	vm.frames = append(vm.frames, cf)
	return nil
}

// bindArgs resolves raw call arguments against fn's declared parameter
// list: missing trailing parameters (up to fn.Required) are an error,
// missing optional ones are filled from fn.Defaults, and — if fn is
// variadic — any surplus arguments collect into a Tuple in the final
// slot, per spec.md §4.4's call-arity rule.
func (vm *VM) bindArgs(fn *value.Function, args []value.Value) ([]value.Value, error) {
	fixed := fn.Arity
	if fn.Variadic {
		fixed--
	}
	n := len(args)
	if n < fn.Required {
		return nil, fmt.Errorf("%s() expected at least %d arguments, got %d", fn.Name, fn.Required, n)
	}
	if !fn.Variadic && n > fn.Arity {
		return nil, fmt.Errorf("%s() expected at most %d arguments, got %d", fn.Name, fn.Arity, n)
	}

	out := make([]value.Value, fn.Arity)
	k := n
	if k > fixed {
		k = fixed
	}
	copy(out[:k], args[:k])
	for i := k; i < fixed; i++ {
		out[i] = fn.Defaults[i]
	}
	if fn.Variadic {
		var extra []value.Value
		if n > fixed {
			extra = append([]value.Value(nil), args[fixed:n]...)
		}
		tup := &value.Tuple{Object: value.Object{Kind: value.KTuple}, Items: extra}
		vm.heap.Track(tup, uint64(24+16*len(extra)))
		out[fixed] = value.ObjectValue(tup)
	}
	return out, nil
}

func (vm *VM) callNative(n *value.Native, argsStart, argc int, this *value.Value, returnBase int) error {
	var args []value.Value
	if this != nil {
		args = make([]value.Value, 0, argc+1)
		args = append(args, *this)
		args = append(args, vm.stack[argsStart:argsStart+argc]...)
	} else {
		args = vm.stack[argsStart : argsStart+argc]
	}
	res, err := n.Fn(args)
	if err != nil {
		vm.sp = returnBase
		return vm.raiseNativeErr(err)
	}
	vm.sp = returnBase
	vm.push(res)
	return nil
}

// raiseNativeErr turns a native function's error return into a raised
// exception: an *ExceptionError carries its own already-built Instance
// through unwrapped, matching spec.md §7's convention that a native
// signals failure by returning an error that becomes an Exception at the
// call site; anything else (a plain Go error from, say, strconv) is
// wrapped into a TypeException with the error's message as text.
func (vm *VM) raiseNativeErr(err error) error {
	if ee, ok := err.(*ExceptionError); ok {
		return vm.fail(ee.Value)
	}
	return vm.fail(vm.newException(emberrors.TypeException, "%s", err.Error()))
}
