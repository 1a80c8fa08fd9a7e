package vm

import (
	"fmt"
	"math"

	"github.com/emberlang/ember/pkg/bytecode"
	emberrors "github.com/emberlang/ember/pkg/errors"
	"github.com/emberlang/ember/pkg/value"
)

// binaryOp implements one of OpAdd/Sub/Mul/Div/Mod/Eq/Neq/Lt/Le/Gt/Ge. Both
// operands stay on the stack (peeked, not popped) until a path commits to
// a result, so a dunder dispatch that pushes a new call frame leaves them
// exactly where callClosure expects its arguments.
func (vm *VM) binaryOp(op bytecode.Opcode) error {
	b := vm.peek(0)
	a := vm.peek(1)

	if a.IsNumber() && b.IsNumber() {
		vm.sp -= 2
		res, err := numericOp(op, a.AsNumber(), b.AsNumber())
		if err != nil {
			return vm.fail(vm.newException(emberrors.TypeException, "%s", err.Error()))
		}
		vm.push(res)
		return nil
	}

	if op == bytecode.OpAdd {
		if as, ok := value.AsString(a); ok {
			if bs, ok := value.AsString(b); ok {
				vm.sp -= 2
				cat := append(append([]byte(nil), as.Bytes...), bs.Bytes...)
				vm.push(value.ObjectValue(vm.heap.Intern(cat)))
				return nil
			}
		}
	}

	if inst, ok := value.AsInstance(a); ok {
		if name, ok := dunderName(op); ok {
			if m, cls, ok := inst.Class.FindMethod(vm.intern(name)); ok {
				return vm.callValue(m, vm.sp-1, 1, &a, vm.sp-2, cls)
			}
		}
	}

	if op == bytecode.OpEq || op == bytecode.OpNeq {
		vm.sp -= 2
		eq := a.Equal(b)
		if op == bytecode.OpNeq {
			eq = !eq
		}
		vm.push(value.BoolValue(eq))
		return nil
	}

	vm.sp -= 2
	return vm.fail(vm.newException(emberrors.TypeException, "unsupported operand types for %s: %s and %s", op, kindName(a), kindName(b)))
}

func (vm *VM) unaryNeg() error {
	v := vm.peek(0)
	if v.IsNumber() {
		vm.sp--
		vm.push(value.NumberValue(-v.AsNumber()))
		return nil
	}
	if inst, ok := value.AsInstance(v); ok {
		if m, cls, ok := inst.Class.FindMethod(vm.intern("__neg__")); ok {
			return vm.callValue(m, vm.sp, 0, &v, vm.sp-1, cls)
		}
	}
	vm.sp--
	return vm.fail(vm.newException(emberrors.TypeException, "bad operand type for unary -: %s", kindName(v)))
}

func dunderName(op bytecode.Opcode) (string, bool) {
	switch op {
	case bytecode.OpAdd:
		return "__add__", true
	case bytecode.OpSub:
		return "__sub__", true
	case bytecode.OpMul:
		return "__mul__", true
	case bytecode.OpDiv:
		return "__div__", true
	case bytecode.OpMod:
		return "__mod__", true
	case bytecode.OpLt:
		return "__lt__", true
	case bytecode.OpLe:
		return "__le__", true
	case bytecode.OpGt:
		return "__gt__", true
	case bytecode.OpGe:
		return "__ge__", true
	case bytecode.OpEq:
		return "__eq__", true
	case bytecode.OpNeq:
		return "__neq__", true
	default:
		return "", false
	}
}

func numericOp(op bytecode.Opcode, a, b float64) (value.Value, error) {
	switch op {
	case bytecode.OpAdd:
		return value.NumberValue(a + b), nil
	case bytecode.OpSub:
		return value.NumberValue(a - b), nil
	case bytecode.OpMul:
		return value.NumberValue(a * b), nil
	case bytecode.OpDiv:
		if b == 0 {
			return value.Value{}, fmt.Errorf("division by zero")
		}
		return value.NumberValue(a / b), nil
	case bytecode.OpMod:
		if b == 0 {
			return value.Value{}, fmt.Errorf("modulo by zero")
		}
		return value.NumberValue(math.Mod(a, b)), nil
	case bytecode.OpLt:
		return value.BoolValue(a < b), nil
	case bytecode.OpLe:
		return value.BoolValue(a <= b), nil
	case bytecode.OpGt:
		return value.BoolValue(a > b), nil
	case bytecode.OpGe:
		return value.BoolValue(a >= b), nil
	case bytecode.OpEq:
		return value.BoolValue(value.NumberValue(a).Equal(value.NumberValue(b))), nil
	case bytecode.OpNeq:
		return value.BoolValue(!value.NumberValue(a).Equal(value.NumberValue(b))), nil
	default:
		return value.Value{}, fmt.Errorf("unreachable numeric op %s", op)
	}
}

// indexOf validates key as an in-range integer index for a sequence of
// length n.
func indexOf(key value.Value, n int) (int, bool) {
	if !key.IsNumber() {
		return 0, false
	}
	f := key.AsNumber()
	i := int(f)
	if float64(i) != f || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func (vm *VM) indexGet(obj, key value.Value) error {
	if !obj.IsObj() {
		return vm.fail(vm.newException(emberrors.TypeException, "%s is not indexable", kindName(obj)))
	}
	switch o := obj.AsObject().(type) {
	case *value.List:
		i, ok := indexOf(key, len(o.Items))
		if !ok {
			return vm.fail(vm.newException(emberrors.IndexException, "list index out of range"))
		}
		vm.push(o.Items[i])
		return nil
	case *value.Tuple:
		i, ok := indexOf(key, len(o.Items))
		if !ok {
			return vm.fail(vm.newException(emberrors.IndexException, "tuple index out of range"))
		}
		vm.push(o.Items[i])
		return nil
	case *value.Table:
		if !value.Hashable(key) {
			return vm.fail(vm.newException(emberrors.TypeException, "unhashable table key"))
		}
		v, ok := o.Table.Get(key)
		if !ok {
			return vm.fail(vm.newException(emberrors.IndexException, "key not found"))
		}
		vm.push(v)
		return nil
	default:
		return vm.fail(vm.newException(emberrors.TypeException, "%s is not indexable", kindName(obj)))
	}
}

func (vm *VM) indexSet(obj, key, val value.Value) error {
	if !obj.IsObj() {
		return vm.fail(vm.newException(emberrors.TypeException, "%s is not indexable", kindName(obj)))
	}
	switch o := obj.AsObject().(type) {
	case *value.List:
		i, ok := indexOf(key, len(o.Items))
		if !ok {
			return vm.fail(vm.newException(emberrors.IndexException, "list index out of range"))
		}
		o.Items[i] = val
		return nil
	case *value.Tuple:
		return vm.fail(vm.newException(emberrors.TypeException, "tuple does not support item assignment"))
	case *value.Table:
		if !value.Hashable(key) {
			return vm.fail(vm.newException(emberrors.TypeException, "unhashable table key"))
		}
		o.Table.Put(key, val)
		return nil
	default:
		return vm.fail(vm.newException(emberrors.TypeException, "%s is not indexable", kindName(obj)))
	}
}

// forIter implements OpForIter over the [iterable, index] pair the
// compiler's for-in desugaring leaves on the stack. Only List and Tuple
// are supported; the standard library's broader iterator protocol is out
// of scope (spec.md's Non-goals name the native-function library).
func (vm *VM) forIter(exit int) error {
	idxV := vm.peek(0)
	iterable := vm.peek(1)
	i := int(idxV.AsNumber())

	var n int
	var items []value.Value
	switch o := iterable.AsObject().(type) {
	case *value.List:
		items = o.Items
		n = len(items)
	case *value.Tuple:
		items = o.Items
		n = len(items)
	default:
		vm.sp -= 2
		return vm.fail(vm.newException(emberrors.TypeException, "%s is not iterable", kindName(iterable)))
	}

	if i >= n {
		vm.sp -= 2
		vm.frameAt(len(vm.frames) - 1).ip = exit
		return nil
	}
	vm.stack[vm.sp-1] = value.NumberValue(float64(i + 1))
	vm.push(items[i])
	return nil
}

func (vm *VM) frameAt(i int) *callFrame { return &vm.frames[i] }
