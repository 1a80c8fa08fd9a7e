// Package compiler compiles ember AST nodes into bytecode.Chunk values
// wrapped in value.Function prototypes, in a single pass over the tree.
//
// Compilation is driven by a stack of frames, one per function currently
// being compiled (the top-level program counts as a frame too). Each
// frame owns its own Chunk, constant pool, and local-slot table; resolving
// a name walks outward through enclosing frames, capturing an upvalue at
// every frame it has to cross (the closure-capture rule of spec.md §4.3).
//
// Errors are accumulated rather than aborting immediately, matching the
// parser's "report everything in one pass" philosophy; Compile returns a
// non-nil error only at the end, summarizing every problem found.
package compiler

import (
	"fmt"
	"strings"

	"github.com/emberlang/ember/pkg/ast"
	"github.com/emberlang/ember/pkg/bytecode"
	"github.com/emberlang/ember/pkg/value"
)

// local describes one slot of a frame's local-variable array.
type local struct {
	name  string
	depth int
}

// frame is the per-function compilation context.
type frame struct {
	enclosing *frame
	chunk     *bytecode.Chunk
	constants []value.Value
	locals    []local
	upvalues  []value.UpvalueDesc
	scope     int
	name      string
	arity     int
	required  int
	variadic  bool
	defaults  []value.Value

	loopStarts         []int   // backward-jump targets, innermost last
	breakPatches       [][]int // pending break-jump indices, one slice per loop depth
	continuePatches    [][]int // pending continue-jump indices, one slice per loop depth
	loopTryDepth       []int   // tryDepth recorded at each loop's entry, parallel to loopStarts
	loopLocals         []int   // len(locals) recorded at each loop's entry; break unwinds to this
	loopContinueLocals []int   // len(locals) a continue unwinds to; equals loopLocals except
	// inside for-in, where it sits above the desugaring's hidden iterable/index
	// locals so continue leaves them on the stack for the next OpForIter

	tryDepth int // count of lexically active try handlers in this frame
}

// Compiler compiles one module's worth of source into a top-level
// value.Function whose Chunk runs at module scope.
type Compiler struct {
	cur     *frame
	errors  []string
	classes []*classCtx
}

// classCtx records the class whose methods are currently being compiled.
// compileClass pushes and pops it; nothing reads it during resolution:
// `this` is each method's slot-0 parameter, and field access always
// compiles to OpLoadField/OpStoreField.
type classCtx struct {
	name      string
	hasSuper  bool
}

// New creates a Compiler ready to compile one top-level program.
func New() *Compiler {
	c := &Compiler{}
	c.pushFrame("<script>", nil, false)
	return c
}

// Errors returns every error accumulated during Compile.
func (c *Compiler) Errors() []string { return c.errors }

func (c *Compiler) errorf(line int, format string, args ...interface{}) {
	c.errors = append(c.errors, fmt.Sprintf("line %d: %s", line, fmt.Sprintf(format, args...)))
}

func (c *Compiler) pushFrame(name string, params []string, variadic bool) {
	f := &frame{enclosing: c.cur, chunk: &bytecode.Chunk{}, name: name, arity: len(params), variadic: variadic}
	for _, p := range params {
		f.locals = append(f.locals, local{name: p, depth: 0})
	}
	c.cur = f
}

// popFrame finishes the current frame, returning the compiled Function,
// and restores the enclosing frame (nil at the top level).
func (c *Compiler) popFrame() *value.Function {
	f := c.cur
	f.chunk.Write(bytecode.OpPushNull, 0, 0)
	f.chunk.Write(bytecode.OpReturn, 0, 0)
	fn := &value.Function{
		Object:    value.Object{Kind: value.KFunction},
		Name:      f.name,
		Arity:     f.arity,
		Required:  f.required,
		Variadic:  f.variadic,
		Defaults:  f.defaults,
		Chunk:     f.chunk,
		Constants: f.constants,
		Upvalues:  f.upvalues,
	}
	c.cur = f.enclosing
	return fn
}

// Compile compiles program into the module-level Function. Returns an
// error summarizing every accumulated problem if any occurred.
func (c *Compiler) Compile(program *ast.Program) (*value.Function, error) {
	for _, stmt := range program.Statements {
		c.compileStatement(stmt)
	}
	fn := c.popFrame()
	fn.Name = "<script>"
	if len(c.errors) > 0 {
		return nil, fmt.Errorf("compile errors:\n%s", strings.Join(c.errors, "\n"))
	}
	return fn, nil
}

func (c *Compiler) emit(op bytecode.Opcode, operand int, line int) int {
	return c.cur.chunk.Write(op, operand, line)
}

func (c *Compiler) addConstant(v value.Value) int {
	c.cur.constants = append(c.cur.constants, v)
	return len(c.cur.constants) - 1
}

func (c *Compiler) addStringConstant(s string) int {
	return c.addConstant(value.ObjectValue(internedString(s)))
}

// internedString builds a *value.String with its hash precomputed; actual
// interning against the VM's live string table happens at load time in
// pkg/heap, so the compiler only needs a stable, hashed, content-addressed
// value here.
func internedString(s string) *value.String {
	b := []byte(s)
	return &value.String{Bytes: b, Hash: value.FNV1a32(b)}
}

// --- scopes ---

func (c *Compiler) beginScope() { c.cur.scope++ }

func (c *Compiler) endScope(line int) {
	c.cur.scope--
	f := c.cur
	for len(f.locals) > 0 && f.locals[len(f.locals)-1].depth > f.scope {
		c.emit(bytecode.OpCloseUpvalue, 0, line)
		f.locals = f.locals[:len(f.locals)-1]
	}
}

func (c *Compiler) declareLocal(name string, line int) int {
	f := c.cur
	for i := len(f.locals) - 1; i >= 0; i-- {
		if f.locals[i].depth < f.scope {
			break
		}
		if f.locals[i].name == name {
			c.errorf(line, "variable %q already declared in this scope", name)
		}
	}
	f.locals = append(f.locals, local{name: name, depth: f.scope})
	return len(f.locals) - 1
}

// resolveLocal looks for name in f's own locals, innermost first.
func resolveLocal(f *frame, name string) (int, bool) {
	for i := len(f.locals) - 1; i >= 0; i-- {
		if f.locals[i].name == name {
			return i, true
		}
	}
	return 0, false
}

// resolveUpvalue walks outward from f looking for name in an enclosing
// frame, adding (and deduplicating) an upvalue descriptor at every frame
// level it has to cross, per spec.md §4.3's capture rule.
func resolveUpvalue(f *frame, name string) (int, bool) {
	if f.enclosing == nil {
		return 0, false
	}
	if idx, ok := resolveLocal(f.enclosing, name); ok {
		return addUpvalue(f, idx, true), true
	}
	if idx, ok := resolveUpvalue(f.enclosing, name); ok {
		return addUpvalue(f, idx, false), true
	}
	return 0, false
}

func addUpvalue(f *frame, index int, isLocal bool) int {
	for i, uv := range f.upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	f.upvalues = append(f.upvalues, value.UpvalueDesc{IsLocal: isLocal, Index: index})
	return len(f.upvalues) - 1
}

// --- statements ---

func (c *Compiler) compileStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		c.compileVarDecl(s)
	case *ast.ExprStatement:
		c.compileExpression(s.Expr)
		c.emit(bytecode.OpPop, 0, s.Line())
	case *ast.Block:
		c.beginScope()
		for _, inner := range s.Statements {
			c.compileStatement(inner)
		}
		c.endScope(s.Line())
	case *ast.If:
		c.compileIf(s)
	case *ast.While:
		c.compileWhile(s)
	case *ast.For:
		c.compileFor(s)
	case *ast.ForIn:
		c.compileForIn(s)
	case *ast.Return:
		c.compileReturn(s)
	case *ast.Break:
		c.compileBreak(s)
	case *ast.Continue:
		c.compileContinue(s)
	case *ast.FunctionDecl:
		c.compileFunctionDecl(s)
	case *ast.ClassDecl:
		c.compileClassDecl(s)
	case *ast.Try:
		c.compileTry(s)
	case *ast.Raise:
		c.compileExpression(s.Value)
		c.emit(bytecode.OpRaise, 0, s.Line())
	case *ast.Import:
		idx := c.addStringConstant(s.Name)
		c.emit(bytecode.OpImport, idx, s.Line())
	default:
		c.errorf(stmt.Line(), "unknown statement type %T", stmt)
	}
}

func (c *Compiler) compileVarDecl(s *ast.VarDecl) {
	if s.Init != nil {
		c.compileExpression(s.Init)
	} else {
		c.emit(bytecode.OpPushNull, 0, s.Line())
	}
	if c.cur.scope == 0 {
		idx := c.addStringConstant(s.Name)
		c.emit(bytecode.OpStoreGlobal, idx, s.Line())
		c.emit(bytecode.OpPop, 0, s.Line())
		return
	}
	c.declareLocal(s.Name, s.Line())
}

func (c *Compiler) compileIf(s *ast.If) {
	var endJumps []int
	for _, br := range s.Branches {
		c.compileExpression(br.Cond)
		jumpFalse := c.emit(bytecode.OpJumpIfFalse, 0, s.Line())
		c.emit(bytecode.OpPop, 0, s.Line())
		c.compileStatement(br.Body)
		endJumps = append(endJumps, c.emit(bytecode.OpJump, 0, s.Line()))
		c.cur.chunk.Patch(jumpFalse, len(c.cur.chunk.Code))
		c.emit(bytecode.OpPop, 0, s.Line())
	}
	if s.Else != nil {
		c.compileStatement(s.Else)
	}
	for _, j := range endJumps {
		c.cur.chunk.Patch(j, len(c.cur.chunk.Code))
	}
}

func (c *Compiler) pushLoop(start int) {
	c.cur.loopStarts = append(c.cur.loopStarts, start)
	c.cur.breakPatches = append(c.cur.breakPatches, nil)
	c.cur.continuePatches = append(c.cur.continuePatches, nil)
	c.cur.loopTryDepth = append(c.cur.loopTryDepth, c.cur.tryDepth)
	c.cur.loopLocals = append(c.cur.loopLocals, len(c.cur.locals))
	c.cur.loopContinueLocals = append(c.cur.loopContinueLocals, len(c.cur.locals))
}

func (c *Compiler) popLoop() []int {
	n := len(c.cur.breakPatches) - 1
	patches := c.cur.breakPatches[n]
	c.cur.breakPatches = c.cur.breakPatches[:n]
	c.cur.continuePatches = c.cur.continuePatches[:n]
	c.cur.loopStarts = c.cur.loopStarts[:len(c.cur.loopStarts)-1]
	c.cur.loopTryDepth = c.cur.loopTryDepth[:len(c.cur.loopTryDepth)-1]
	c.cur.loopLocals = c.cur.loopLocals[:len(c.cur.loopLocals)-1]
	c.cur.loopContinueLocals = c.cur.loopContinueLocals[:len(c.cur.loopContinueLocals)-1]
	return patches
}

// setLoopContinueLocals overrides the innermost loop's continue-unwind
// boundary, for for-in's desugaring to exempt its hidden iterable/index
// locals once they're declared.
func (c *Compiler) setLoopContinueLocals(n int) {
	c.cur.loopContinueLocals[len(c.cur.loopContinueLocals)-1] = n
}

// patchContinues resolves every continue recorded for the innermost loop
// to target, the address execution should resume at: the post clause for
// a C-style for, or just ahead of the closing OpLoop otherwise. It must
// run before that OpLoop is emitted and before popLoop, or continues would
// fall back to being patched to the loop's exit like a break.
func (c *Compiler) patchContinues(target int) {
	n := len(c.cur.continuePatches) - 1
	for _, p := range c.cur.continuePatches[n] {
		c.cur.chunk.Patch(p, target)
	}
	c.cur.continuePatches[n] = nil
}

// unwindLocalsAbove emits an OpCloseUpvalue per local declared since the
// loop this break/continue targets was entered, without touching the
// compiler's own locals bookkeeping — code after the break/continue in the
// same block still addresses those slots normally. OpCloseUpvalue both
// closes an open upvalue for the slot (if any) and pops it, so this is the
// same op endScope uses for ordinary scope exit.
func (c *Compiler) unwindLocalsAbove(n int, line int) {
	for i := len(c.cur.locals) - 1; i >= n; i-- {
		c.emit(bytecode.OpCloseUpvalue, 0, line)
	}
}

func (c *Compiler) compileWhile(s *ast.While) {
	start := len(c.cur.chunk.Code)
	c.pushLoop(start)
	c.compileExpression(s.Cond)
	exitJump := c.emit(bytecode.OpJumpIfFalse, 0, s.Line())
	c.emit(bytecode.OpPop, 0, s.Line())
	c.compileStatement(s.Body)
	c.patchContinues(len(c.cur.chunk.Code))
	c.emit(bytecode.OpLoop, start, s.Line())
	c.cur.chunk.Patch(exitJump, len(c.cur.chunk.Code))
	c.emit(bytecode.OpPop, 0, s.Line())
	for _, p := range c.popLoop() {
		c.cur.chunk.Patch(p, len(c.cur.chunk.Code))
	}
}

func (c *Compiler) compileFor(s *ast.For) {
	c.beginScope()
	if s.Init != nil {
		c.compileStatement(s.Init)
	}
	start := len(c.cur.chunk.Code)
	c.pushLoop(start)
	var exitJump = -1
	if s.Cond != nil {
		c.compileExpression(s.Cond)
		exitJump = c.emit(bytecode.OpJumpIfFalse, 0, s.Line())
		c.emit(bytecode.OpPop, 0, s.Line())
	}
	c.compileStatement(s.Body)
	// A continue must still run Post before re-checking Cond, so its jump
	// target sits here rather than back at loopStarts (which precedes Cond).
	c.patchContinues(len(c.cur.chunk.Code))
	if s.Post != nil {
		c.compileStatement(s.Post)
	}
	c.emit(bytecode.OpLoop, start, s.Line())
	if exitJump != -1 {
		c.cur.chunk.Patch(exitJump, len(c.cur.chunk.Code))
		c.emit(bytecode.OpPop, 0, s.Line())
	}
	for _, p := range c.popLoop() {
		c.cur.chunk.Patch(p, len(c.cur.chunk.Code))
	}
	c.endScope(s.Line())
}

// forInIterableLocal and forInIndexLocal name the two hidden stack slots
// compileForIn's desugaring keeps live for the loop's whole lifetime.
// Declaring them as ordinary (if unreachable by name from source) locals
// keeps the compiler's own slot bookkeeping — and so break/continue's
// unwinding — in sync with what's actually resident on the stack; nothing
// lexes an identifier containing these characters, so they can't collide
// with a user-declared local at the same depth.
const (
	forInIterableLocal = "<for-in-iterable>"
	forInIndexLocal    = "<for-in-index>"
)

// compileForIn desugars `for (x in expr) body` into fetching an iterator
// via the OpForIter opcode. The VM's OpForIter steps through Lists and
// Tuples only; any other iterable (a table, an instance) raises a
// TypeException. OpForIter's [iterable, index] pair sits below the
// per-iteration item for the loop's entire run; forInIterableLocal/
// forInIndexLocal track those two slots as locals so a break correctly
// unwinds them via unwindLocalsAbove(loopLocals), while a continue's
// narrower loopContinueLocals boundary leaves them in place.
func (c *Compiler) compileForIn(s *ast.ForIn) {
	c.beginScope()
	c.compileExpression(s.Iterable)
	c.emit(bytecode.OpPush, c.addConstant(value.NumberValue(0)), s.Line())
	start := len(c.cur.chunk.Code)
	c.pushLoop(start)
	c.declareLocal(forInIterableLocal, s.Line())
	c.declareLocal(forInIndexLocal, s.Line())
	c.setLoopContinueLocals(len(c.cur.locals))
	exitJump := c.emit(bytecode.OpForIter, 0, s.Line())
	c.beginScope()
	c.declareLocal(s.Name, s.Line())
	c.compileStatement(s.Body)
	c.endScope(s.Line())
	c.patchContinues(len(c.cur.chunk.Code))
	c.emit(bytecode.OpLoop, start, s.Line())
	c.cur.chunk.Patch(exitJump, len(c.cur.chunk.Code))
	for _, p := range c.popLoop() {
		c.cur.chunk.Patch(p, len(c.cur.chunk.Code))
	}
	// OpForIter's exhaustion path (pkg/vm/ops.go's forIter) already popped
	// the [iterable, index] pair at runtime; drop the matching bookkeeping
	// locals without emitting a second, unmatched OpCloseUpvalue.
	c.cur.locals = c.cur.locals[:len(c.cur.locals)-2]
	c.cur.scope--
}

func (c *Compiler) compileReturn(s *ast.Return) {
	if s.Value != nil {
		c.compileExpression(s.Value)
	} else {
		c.emit(bytecode.OpPushNull, 0, s.Line())
	}
	c.emit(bytecode.OpReturn, 0, s.Line())
}

func (c *Compiler) compileBreak(s *ast.Break) {
	if len(c.cur.breakPatches) == 0 {
		c.errorf(s.Line(), "break outside loop")
		return
	}
	n := len(c.cur.breakPatches) - 1
	c.unwindLocalsAbove(c.cur.loopLocals[n], s.Line())
	for i := c.cur.tryDepth; i > c.cur.loopTryDepth[n]; i-- {
		c.emit(bytecode.OpPopHandler, 0, s.Line())
	}
	jump := c.emit(bytecode.OpJump, 0, s.Line())
	c.cur.breakPatches[n] = append(c.cur.breakPatches[n], jump)
}

func (c *Compiler) compileContinue(s *ast.Continue) {
	if len(c.cur.loopStarts) == 0 {
		c.errorf(s.Line(), "continue outside loop")
		return
	}
	n := len(c.cur.loopStarts) - 1
	c.unwindLocalsAbove(c.cur.loopContinueLocals[n], s.Line())
	for i := c.cur.tryDepth; i > c.cur.loopTryDepth[n]; i-- {
		c.emit(bytecode.OpPopHandler, 0, s.Line())
	}
	jump := c.emit(bytecode.OpJump, 0, s.Line())
	c.cur.continuePatches[n] = append(c.cur.continuePatches[n], jump)
}

func (c *Compiler) compileFunctionDecl(s *ast.FunctionDecl) {
	fnIdx := c.compileFunctionBody(s.Name, s.Params, s.Defaults, s.Variadic, s.Body, s.Line())
	c.emit(bytecode.OpClosure, fnIdx, s.Line())
	if c.cur.scope == 0 {
		idx := c.addStringConstant(s.Name)
		c.emit(bytecode.OpStoreGlobal, idx, s.Line())
		c.emit(bytecode.OpPop, 0, s.Line())
		return
	}
	c.declareLocal(s.Name, s.Line())
}

// compileFunctionBody compiles a nested function (decl, literal, or
// method) in its own frame and returns the constant-pool index of the
// resulting Function in the enclosing frame.
func (c *Compiler) compileFunctionBody(name string, params []string, defaults []ast.Expression, variadic bool, body []ast.Statement, line int) int {
	c.pushFrame(name, params, variadic)
	c.beginScope()
	required := len(params)
	for i, d := range defaults {
		if d == nil {
			c.cur.defaults = append(c.cur.defaults, value.NullValue)
			continue
		}
		if i < required {
			required = i
		}
		c.cur.defaults = append(c.cur.defaults, evalConstExpr(d))
	}
	if variadic && required == len(params) {
		required = len(params) - 1
	}
	c.cur.required = required
	for _, stmt := range body {
		c.compileStatement(stmt)
	}
	fn := c.popFrame()
	return c.addConstant(value.ObjectValue(fn))
}

// evalConstExpr folds a default-argument expression at compile time;
// spec.md restricts defaults to literal constants, so no general
// constant-folding pass is needed beyond literals.
func evalConstExpr(e ast.Expression) value.Value {
	switch lit := e.(type) {
	case *ast.NumberLiteral:
		return value.NumberValue(lit.Value)
	case *ast.StringLiteral:
		return value.ObjectValue(internedString(lit.Value))
	case *ast.BoolLiteral:
		return value.BoolValue(lit.Value)
	default:
		return value.NullValue
	}
}

func (c *Compiler) compileClassDecl(s *ast.ClassDecl) {
	nameIdx := c.addStringConstant(s.Name)
	c.emit(bytecode.OpNewClass, nameIdx, s.Line())
	if c.cur.scope == 0 {
		idx := c.addStringConstant(s.Name)
		c.emit(bytecode.OpStoreGlobal, idx, s.Line())
	} else {
		c.declareLocal(s.Name, s.Line())
	}

	hasSuper := s.Super != ""
	if hasSuper {
		if idx, ok := resolveLocal(c.cur, s.Super); ok {
			c.emit(bytecode.OpLoadLocal, idx, s.Line())
		} else if idx, ok := resolveUpvalue(c.cur, s.Super); ok {
			c.emit(bytecode.OpLoadUpvalue, idx, s.Line())
		} else {
			idx := c.addStringConstant(s.Super)
			c.emit(bytecode.OpLoadGlobal, idx, s.Line())
		}
		c.emit(bytecode.OpInherit, 0, s.Line())
	}

	c.classes = append(c.classes, &classCtx{name: s.Name, hasSuper: hasSuper})
	for _, m := range s.Methods {
		fnIdx := c.compileFunctionBody(m.Name, append([]string{"this"}, m.Params...), append([]ast.Expression{nil}, m.Defaults...), m.Variadic, m.Body, m.Line())
		c.emit(bytecode.OpClosure, fnIdx, m.Line())
		methodIdx := c.addStringConstant(m.Name)
		c.emit(bytecode.OpMethod, methodIdx, m.Line())
	}
	c.classes = c.classes[:len(c.classes)-1]

	if c.cur.scope == 0 {
		c.emit(bytecode.OpPop, 0, s.Line())
	}
}

// compileTry compiles the protected body under one handler record, then
// the except-clause chain the handler jumps to on a raise. The VM's
// raise logic only knows "is there an active handler"; the handler's
// bytecode here does the actual per-clause isinstance matching, falling
// back to OpReraise (which continues the search at the next enclosing
// handler) when nothing matches, per the OpSetupTry doc comment.
func (c *Compiler) compileTry(s *ast.Try) {
	setupIdx := c.emit(bytecode.OpSetupTry, 0, s.Line())
	c.cur.tryDepth++
	c.compileStatement(s.Body)
	c.cur.tryDepth--
	c.emit(bytecode.OpPopHandler, 0, s.Line())
	if s.Else != nil {
		c.compileStatement(s.Else)
	}
	var afterExcepts []int
	afterExcepts = append(afterExcepts, c.emit(bytecode.OpJump, 0, s.Line()))
	c.cur.chunk.Patch(setupIdx, len(c.cur.chunk.Code))

	for _, ex := range s.Excepts {
		var falseJump = -1
		if ex.ExceptionType != "" {
			c.emit(bytecode.OpDup, 0, s.Line())
			c.compileIdentLoad(ex.ExceptionType, s.Line())
			c.emit(bytecode.OpIsInstance, 0, s.Line())
			falseJump = c.emit(bytecode.OpJumpIfFalse, 0, s.Line())
			c.emit(bytecode.OpPop, 0, s.Line())
		}
		c.beginScope()
		if ex.Binding != "" {
			c.declareLocal(ex.Binding, s.Line())
		} else {
			c.emit(bytecode.OpPop, 0, s.Line())
		}
		c.compileStatement(ex.Body)
		c.endScope(s.Line())
		afterExcepts = append(afterExcepts, c.emit(bytecode.OpJump, 0, s.Line()))
		if falseJump != -1 {
			c.cur.chunk.Patch(falseJump, len(c.cur.chunk.Code))
			c.emit(bytecode.OpPop, 0, s.Line())
		}
	}
	// Nothing matched: re-raise the value every clause left on top of
	// stack, which resumes the search at the next enclosing handler.
	c.emit(bytecode.OpReraise, 0, s.Line())

	endIdx := len(c.cur.chunk.Code)
	for _, j := range afterExcepts {
		c.cur.chunk.Patch(j, endIdx)
	}

	if s.Ensure != nil {
		c.compileStatement(s.Ensure)
	}
}

// --- expressions ---

func (c *Compiler) compileExpression(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		c.emit(bytecode.OpPush, c.addConstant(value.NumberValue(e.Value)), e.Line())
	case *ast.StringLiteral:
		c.emit(bytecode.OpPush, c.addStringConstant(e.Value), e.Line())
	case *ast.BoolLiteral:
		if e.Value {
			c.emit(bytecode.OpPushTrue, 0, e.Line())
		} else {
			c.emit(bytecode.OpPushFalse, 0, e.Line())
		}
	case *ast.NullLiteral:
		c.emit(bytecode.OpPushNull, 0, e.Line())
	case *ast.This:
		c.compileIdentLoad("this", e.Line())
	case *ast.Identifier:
		c.compileIdentLoad(e.Name, e.Line())
	case *ast.Unary:
		c.compileExpression(e.Operand)
		switch e.Op {
		case "-":
			c.emit(bytecode.OpNeg, 0, e.Line())
		case "!":
			c.emit(bytecode.OpNot, 0, e.Line())
		}
	case *ast.Binary:
		c.compileExpression(e.Left)
		c.compileExpression(e.Right)
		c.emit(binaryOp(e.Op), 0, e.Line())
	case *ast.Logical:
		c.compileLogical(e)
	case *ast.Ternary:
		c.compileTernary(e)
	case *ast.Assign:
		c.compileAssign(e)
	case *ast.Call:
		c.compileCall(e)
	case *ast.FieldAccess:
		c.compileExpression(e.Target)
		idx := c.addStringConstant(e.Name)
		c.emit(bytecode.OpLoadField, idx, e.Line())
	case *ast.MethodCall:
		c.compileExpression(e.Target)
		for _, a := range e.Args {
			c.compileExpression(a)
		}
		idx := c.addStringConstant(e.Name)
		c.emit(bytecode.OpInvoke, bytecode.PackArgs(idx, len(e.Args)), e.Line())
	case *ast.SuperCall:
		c.compileIdentLoad("this", e.Line())
		for _, a := range e.Args {
			c.compileExpression(a)
		}
		idx := c.addStringConstant(e.Name)
		c.emit(bytecode.OpSuperInvoke, bytecode.PackArgs(idx, len(e.Args)), e.Line())
	case *ast.Super:
		c.errorf(e.Line(), "`super` must be used as super.method(...)")
	case *ast.IndexAccess:
		c.compileExpression(e.Target)
		c.compileExpression(e.Index)
		c.emit(bytecode.OpGetIndex, 0, e.Line())
	case *ast.ListLiteral:
		for _, el := range e.Elements {
			c.compileExpression(el)
		}
		c.emit(bytecode.OpNewList, len(e.Elements), e.Line())
	case *ast.TupleLiteral:
		for _, el := range e.Elements {
			c.compileExpression(el)
		}
		c.emit(bytecode.OpNewTuple, len(e.Elements), e.Line())
	case *ast.TableLiteral:
		for i := range e.Keys {
			c.compileExpression(e.Keys[i])
			c.compileExpression(e.Values[i])
		}
		c.emit(bytecode.OpNewTable, bytecode.PackArgs(0, len(e.Keys)), e.Line())
	case *ast.FunctionLiteral:
		fnIdx := c.compileFunctionBody("<anonymous>", e.Params, e.Defaults, e.Variadic, e.Body, e.Line())
		c.emit(bytecode.OpClosure, fnIdx, e.Line())
	default:
		c.errorf(expr.Line(), "unknown expression type %T", expr)
	}
}

func (c *Compiler) compileIdentLoad(name string, line int) {
	if idx, ok := resolveLocal(c.cur, name); ok {
		c.emit(bytecode.OpLoadLocal, idx, line)
		return
	}
	if idx, ok := resolveUpvalue(c.cur, name); ok {
		c.emit(bytecode.OpLoadUpvalue, idx, line)
		return
	}
	idx := c.addStringConstant(name)
	c.emit(bytecode.OpLoadGlobal, idx, line)
}

func (c *Compiler) compileLogical(e *ast.Logical) {
	c.compileExpression(e.Left)
	if e.Op == "&&" {
		jump := c.emit(bytecode.OpJumpIfFalse, 0, e.Line())
		c.emit(bytecode.OpPop, 0, e.Line())
		c.compileExpression(e.Right)
		c.cur.chunk.Patch(jump, len(c.cur.chunk.Code))
		return
	}
	jump := c.emit(bytecode.OpJumpIfTrue, 0, e.Line())
	c.emit(bytecode.OpPop, 0, e.Line())
	c.compileExpression(e.Right)
	c.cur.chunk.Patch(jump, len(c.cur.chunk.Code))
}

func (c *Compiler) compileTernary(e *ast.Ternary) {
	c.compileExpression(e.Cond)
	elseJump := c.emit(bytecode.OpJumpIfFalse, 0, e.Line())
	c.emit(bytecode.OpPop, 0, e.Line())
	c.compileExpression(e.Then)
	endJump := c.emit(bytecode.OpJump, 0, e.Line())
	c.cur.chunk.Patch(elseJump, len(c.cur.chunk.Code))
	c.emit(bytecode.OpPop, 0, e.Line())
	c.compileExpression(e.Else)
	c.cur.chunk.Patch(endJump, len(c.cur.chunk.Code))
}

func (c *Compiler) compileAssign(e *ast.Assign) {
	c.compileExpression(e.Value)
	switch t := e.Target.(type) {
	case *ast.Identifier:
		if idx, ok := resolveLocal(c.cur, t.Name); ok {
			c.emit(bytecode.OpStoreLocal, idx, e.Line())
			return
		}
		if idx, ok := resolveUpvalue(c.cur, t.Name); ok {
			c.emit(bytecode.OpStoreUpvalue, idx, e.Line())
			return
		}
		idx := c.addStringConstant(t.Name)
		c.emit(bytecode.OpStoreGlobal, idx, e.Line())
	case *ast.FieldAccess:
		c.compileExpression(t.Target)
		idx := c.addStringConstant(t.Name)
		c.emit(bytecode.OpStoreField, idx, e.Line())
	case *ast.IndexAccess:
		c.compileExpression(t.Target)
		c.compileExpression(t.Index)
		c.emit(bytecode.OpSetIndex, 0, e.Line())
	default:
		c.errorf(e.Line(), "invalid assignment target %T", t)
	}
}

func (c *Compiler) compileCall(e *ast.Call) {
	c.compileExpression(e.Callee)
	for _, a := range e.Args {
		c.compileExpression(a)
	}
	c.emit(bytecode.OpCall, len(e.Args), e.Line())
}

func binaryOp(op string) bytecode.Opcode {
	switch op {
	case "+":
		return bytecode.OpAdd
	case "-":
		return bytecode.OpSub
	case "*":
		return bytecode.OpMul
	case "/":
		return bytecode.OpDiv
	case "%":
		return bytecode.OpMod
	case "==":
		return bytecode.OpEq
	case "!=":
		return bytecode.OpNeq
	case "<":
		return bytecode.OpLt
	case "<=":
		return bytecode.OpLe
	case ">":
		return bytecode.OpGt
	case ">=":
		return bytecode.OpGe
	default:
		return bytecode.OpPushNull
	}
}
