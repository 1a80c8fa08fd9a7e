// Package bytecode defines the instruction set and chunk format ember's
// compiler emits and its VM executes.
//
// A Chunk is a flat sequence of Instructions plus a run-length-encoded
// line table, one chunk per compiled function. Values never appear in
// this package — constant pools, default-argument values, and everything
// else value-shaped lives in pkg/value, and the recursive function
// constant that needs both lives in pkg/bytefmt. This keeps pkg/bytecode
// importable from anywhere without pulling the runtime value model along.
//
// Architecture:
//
// Ember's VM is stack-based:
//  1. Values are pushed onto and popped from the runtime stack
//  2. Instructions consume operands from the stack and push results back
//  3. Locals live in fixed frame slots, globals in per-module tables
//  4. Method calls (INVOKE/SUPER_INVOKE) fuse lookup and call into one op
//
// Instruction Format:
//
// Each instruction is an Opcode plus a single int Operand; the operand's
// meaning depends on the opcode (a constant-pool index, a local slot, a
// jump target, a packed arg-count/selector pair, or unused).
package bytecode

// Opcode is a single bytecode operation.
type Opcode byte

const (
	// === Stack Operations ===

	// OpPush loads constant pool entry Operand onto the stack.
	OpPush Opcode = iota
	// OpPop discards the top of stack.
	OpPop
	// OpDup duplicates the top of stack.
	OpDup
	// OpPushNull pushes the null value.
	OpPushNull
	// OpPushTrue pushes boolean true.
	OpPushTrue
	// OpPushFalse pushes boolean false.
	OpPushFalse

	// === Arithmetic / Logic ===
	// Each pops its operands and pushes one result. Operator overloads on
	// instances fall through to a method-table lookup (INVOKE-shaped)
	// when either operand is not a plain number/string.

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpNot
	OpEq
	OpNeq
	OpLt
	OpLe
	OpGt
	OpGe

	// === Variable Operations ===

	// OpLoadLocal/OpStoreLocal address a frame-local slot.
	OpLoadLocal
	OpStoreLocal
	// OpLoadUpvalue/OpStoreUpvalue address a closure's captured upvalue.
	OpLoadUpvalue
	OpStoreUpvalue
	// OpLoadGlobal/OpStoreGlobal address the current module's globals;
	// Operand indexes a string constant holding the name.
	OpLoadGlobal
	OpStoreGlobal
	// OpLoadField/OpStoreField address an instance field by name;
	// Operand indexes a string constant. OpLoadField's stack before:
	// [instance]. OpStoreField's stack before: [value, instance]; it pops
	// instance and leaves value on top, so field assignment is usable as
	// an expression like any other assignment.
	OpLoadField
	OpStoreField
	// OpCloseUpvalue closes the open upvalue pointing at the current top
	// of stack slot and pops it, run on scope/frame exit.
	OpCloseUpvalue

	// === Control Flow ===

	// OpJump unconditionally sets the instruction pointer to Operand.
	OpJump
	// OpJumpIfFalse jumps to Operand if the top of stack is falsy,
	// without popping it (used for && short-circuiting as well as
	// if/while).
	OpJumpIfFalse
	// OpJumpIfTrue is the mirror of OpJumpIfFalse for || short-circuits.
	OpJumpIfTrue
	// OpLoop is OpJump restricted to a backward target; the interpreter
	// checks the cooperative eval_break flag on this opcode and on OpCall.
	OpLoop

	// === Calls ===

	// OpCall calls the callable Operand-arguments below the top of stack
	// (stack before: [callee, args...]); Operand is the plain argument
	// count. Works uniformly over Closure, Native, Class (constructor),
	// and BoundMethod.
	OpCall
	// OpInvoke fuses a field lookup and call: Operand packs (via PackArgs)
	// a string-constant index naming the selector and an argument count.
	// Stack before: [receiver, args...]. Checks the receiver's instance
	// fields first (a stored callable value, called directly, no implicit
	// `this`), then its class's method table (a true method, `this` bound
	// to the receiver).
	OpInvoke
	// OpSuperInvoke is OpInvoke but begins method lookup at the current
	// method's defining class's superclass rather than the receiver's
	// own class.
	OpSuperInvoke
	// OpReturn returns from the current frame; the value on top of stack
	// becomes the caller's result.
	OpReturn

	// === Closures ===

	// OpClosure wraps the Function constant at Operand into a Closure,
	// capturing upvalues per the descriptor list the compiler attached to
	// that Function. The VM reads those descriptors from the Function
	// constant's own Upvalues slice.
	OpClosure

	// === Objects ===

	// OpNewList builds a List from the top Operand stack values.
	OpNewList
	// OpNewTuple builds a Tuple from the top Operand stack values.
	OpNewTuple
	// OpNewTable builds a Table from the top 2*n stack values (key, value
	// pairs), where n is the count packed via PackArgs(0, n).
	OpNewTable
	// OpGetIndex implements obj[key]; stack before: [obj, key].
	OpGetIndex
	// OpSetIndex implements obj[key] = val; stack before: [val, obj, key].
	// Pops obj and key, leaves val on top, so index assignment is usable
	// as an expression like any other assignment.
	OpSetIndex
	// OpNewClass pushes a new Class named by the string constant at
	// Operand, with no superclass and an empty method table.
	OpNewClass
	// OpInherit sets a class's superclass: stack before: [subclass,
	// superclass] (top); pops superclass, leaves subclass on top.
	OpInherit
	// OpMethod defines a method on the class below the top of stack,
	// named by the string constant at Operand, with the closure on top;
	// stack before: [class, closure], after: [class].
	OpMethod
	// OpIsInstance implements isinstance(value, class) for except-clause
	// type matching: stack before: [value, class], pops both, pushes a
	// bool without consuming value itself (the compiler re-derives value
	// from a Dup before this op runs).
	OpIsInstance

	// === Exceptions ===

	// OpSetupTry pushes an exception handler whose catch target is
	// Operand and whose current stack/frame depth is recorded for unwind.
	// The bytecode at the catch target performs the actual per-except-
	// clause type matching (OpIsInstance/jump chains) and falls back to
	// OpReraise if nothing matches, so a single handler record (rather
	// than one per except clause) suffices; the VM need not know how
	// many except clauses a try has.
	OpSetupTry
	// OpPopHandler pops the innermost exception handler (try block
	// completed without raising).
	OpPopHandler
	// OpRaise raises the value on top of stack as an exception, attaching
	// a fresh stack trace captured at this instruction.
	OpRaise
	// OpReraise re-raises the in-flight exception, appending to its
	// existing stack trace rather than starting a new one.
	OpReraise

	// OpImport loads the module named by the string constant at Operand
	// through the VM's configured Loader (compiling and running its
	// top level on first import, reusing the cached Module thereafter)
	// and binds it as a global of that same name in the current module,
	// so `import math; math.pi` resolves through OpLoadField/OpStoreField
	// generalized to Module's Globals table.
	OpImport

	// === Iteration ===

	// OpForIter advances a for-in loop: stack before: [iterable, index]
	// (index on top, a Number). If index is within range it increments the
	// index in place and pushes the next element; otherwise it pops both
	// and jumps to Operand. Supports List and Tuple iterables.
	OpForIter

	// OpHalt stops the interpreter loop outright. The compiler never emits
	// it: every chunk, including the top-level one, ends with an implicit
	// OpPushNull;OpReturn, and OpReturn popping the outermost frame is what
	// actually ends a run. OpHalt exists for hosts assembling bytecode by
	// hand (or a future REPL fast-path) that want an unconditional stop.
	OpHalt
)

// Instruction is a single decoded bytecode op plus its operand.
type Instruction struct {
	Op      Opcode
	Operand int
}

// lineRun is one entry of a chunk's run-length-encoded line table: Count
// consecutive instructions all originate from source Line.
type lineRun struct {
	Count uint16
	Line  uint16
}

// Chunk is one compiled function body: its instruction stream and the
// line table mapping instruction index back to source line, run-length
// encoded per spec.md's wire format so dense single-line bodies cost a
// handful of bytes instead of one u16 per instruction.
type Chunk struct {
	Code  []Instruction
	lines []lineRun
}

// Write appends an instruction, recording line for disassembly/trace
// purposes. Consecutive instructions on the same line collapse into one
// run.
func (c *Chunk) Write(op Opcode, operand int, line int) int {
	c.Code = append(c.Code, Instruction{Op: op, Operand: operand})
	if n := len(c.lines); n > 0 && c.lines[n-1].Line == uint16(line) && c.lines[n-1].Count < 0xFFFF {
		c.lines[n-1].Count++
	} else {
		c.lines = append(c.lines, lineRun{Count: 1, Line: uint16(line)})
	}
	return len(c.Code) - 1
}

// Patch overwrites the operand of an already-emitted instruction, used to
// back-patch forward jump targets once their destination is known.
func (c *Chunk) Patch(index, operand int) {
	c.Code[index].Operand = operand
}

// Line returns the source line instruction index was compiled from.
func (c *Chunk) Line(index int) int {
	remaining := index
	for _, run := range c.lines {
		if remaining < int(run.Count) {
			return int(run.Line)
		}
		remaining -= int(run.Count)
	}
	if len(c.lines) > 0 {
		return int(c.lines[len(c.lines)-1].Line)
	}
	return 0
}

// LineRuns exposes the raw RLE line table for pkg/bytefmt's serializer.
func (c *Chunk) LineRuns() [][2]uint16 {
	out := make([][2]uint16, len(c.lines))
	for i, r := range c.lines {
		out[i] = [2]uint16{r.Count, r.Line}
	}
	return out
}

// SetLineRuns rebuilds the line table from decoded (count, line) pairs,
// used by pkg/bytefmt when reading a compiled chunk back from disk.
func (c *Chunk) SetLineRuns(runs [][2]uint16) {
	c.lines = make([]lineRun, len(runs))
	for i, r := range runs {
		c.lines[i] = lineRun{Count: r[0], Line: r[1]}
	}
}

// Packing helpers for OpInvoke/OpSuperInvoke/OpNewTable operands
// that carry both a pool index (or similar) and a small count.
const (
	ArgCountBits = 8
	ArgCountMask = 0xFF
)

// PackArgs combines a constant-pool index (e.g. a method selector) with
// an argument count into one operand, mirroring OpInvoke's need to carry
// both.
func PackArgs(index, argc int) int {
	return (index << ArgCountBits) | (argc & ArgCountMask)
}

// UnpackArgs reverses PackArgs.
func UnpackArgs(operand int) (index, argc int) {
	return operand >> ArgCountBits, operand & ArgCountMask
}

// String returns the canonical mnemonic for op, used by the disassembler.
func (op Opcode) String() string {
	switch op {
	case OpPush:
		return "PUSH"
	case OpPop:
		return "POP"
	case OpDup:
		return "DUP"
	case OpPushNull:
		return "PUSH_NULL"
	case OpPushTrue:
		return "PUSH_TRUE"
	case OpPushFalse:
		return "PUSH_FALSE"
	case OpAdd:
		return "ADD"
	case OpSub:
		return "SUB"
	case OpMul:
		return "MUL"
	case OpDiv:
		return "DIV"
	case OpMod:
		return "MOD"
	case OpNeg:
		return "NEG"
	case OpNot:
		return "NOT"
	case OpEq:
		return "EQ"
	case OpNeq:
		return "NEQ"
	case OpLt:
		return "LT"
	case OpLe:
		return "LE"
	case OpGt:
		return "GT"
	case OpGe:
		return "GE"
	case OpLoadLocal:
		return "LOAD_LOCAL"
	case OpStoreLocal:
		return "STORE_LOCAL"
	case OpLoadUpvalue:
		return "LOAD_UPVALUE"
	case OpStoreUpvalue:
		return "STORE_UPVALUE"
	case OpLoadGlobal:
		return "LOAD_GLOBAL"
	case OpStoreGlobal:
		return "STORE_GLOBAL"
	case OpLoadField:
		return "LOAD_FIELD"
	case OpStoreField:
		return "STORE_FIELD"
	case OpCloseUpvalue:
		return "CLOSE_UPVALUE"
	case OpJump:
		return "JUMP"
	case OpJumpIfFalse:
		return "JUMP_IF_FALSE"
	case OpJumpIfTrue:
		return "JUMP_IF_TRUE"
	case OpLoop:
		return "LOOP"
	case OpCall:
		return "CALL"
	case OpInvoke:
		return "INVOKE"
	case OpSuperInvoke:
		return "SUPER_INVOKE"
	case OpReturn:
		return "RETURN"
	case OpClosure:
		return "CLOSURE"
	case OpNewList:
		return "NEW_LIST"
	case OpNewTuple:
		return "NEW_TUPLE"
	case OpNewTable:
		return "NEW_TABLE"
	case OpGetIndex:
		return "GET_INDEX"
	case OpSetIndex:
		return "SET_INDEX"
	case OpNewClass:
		return "NEW_CLASS"
	case OpInherit:
		return "INHERIT"
	case OpMethod:
		return "METHOD"
	case OpIsInstance:
		return "IS_INSTANCE"
	case OpSetupTry:
		return "SETUP_TRY"
	case OpPopHandler:
		return "POP_HANDLER"
	case OpRaise:
		return "RAISE"
	case OpReraise:
		return "RERAISE"
	case OpForIter:
		return "FOR_ITER"
	case OpImport:
		return "IMPORT"
	case OpHalt:
		return "HALT"
	default:
		return "UNKNOWN"
	}
}
