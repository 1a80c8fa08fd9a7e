package compiler

import (
	"testing"

	"github.com/emberlang/ember/pkg/bytecode"
	"github.com/emberlang/ember/pkg/parser"
	"github.com/emberlang/ember/pkg/value"
)

func compileSource(t *testing.T, src string) *value.Function {
	t.Helper()
	p := parser.New(src)
	prog := p.ParseProgram()
	if len(p.Errors()) != 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	c := New()
	fn, err := c.Compile(prog)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return fn
}

func TestCompileNumberLiteral(t *testing.T) {
	fn := compileSource(t, "42;")
	if fn.Chunk.Code[0].Op != bytecode.OpPush {
		t.Fatalf("want PUSH, got %v", fn.Chunk.Code[0].Op)
	}
	if fn.Chunk.Code[1].Op != bytecode.OpPop {
		t.Fatalf("want POP after expression statement, got %v", fn.Chunk.Code[1].Op)
	}
	c := fn.Constants[0]
	if !c.IsNumber() || c.AsNumber() != 42 {
		t.Fatalf("want constant 42, got %#v", c)
	}
}

func TestCompileStringLiteral(t *testing.T) {
	fn := compileSource(t, `"hi";`)
	s, ok := value.AsString(fn.Constants[0])
	if !ok || string(s.Bytes) != "hi" {
		t.Fatalf("want string constant hi, got %#v", fn.Constants[0])
	}
}

func TestCompileBooleanAndNull(t *testing.T) {
	fn := compileSource(t, "true; false; null;")
	wantOps := []bytecode.Opcode{bytecode.OpPushTrue, bytecode.OpPop, bytecode.OpPushFalse, bytecode.OpPop, bytecode.OpPushNull, bytecode.OpPop}
	for i, op := range wantOps {
		if fn.Chunk.Code[i].Op != op {
			t.Fatalf("instr %d: want %v, got %v", i, op, fn.Chunk.Code[i].Op)
		}
	}
}

func TestCompileGlobalVarDecl(t *testing.T) {
	fn := compileSource(t, "var x = 1;")
	if fn.Chunk.Code[0].Op != bytecode.OpPush {
		t.Fatalf("want PUSH, got %v", fn.Chunk.Code[0].Op)
	}
	if fn.Chunk.Code[1].Op != bytecode.OpStoreGlobal {
		t.Fatalf("want STORE_GLOBAL, got %v", fn.Chunk.Code[1].Op)
	}
}

func TestCompileLocalVarInFunction(t *testing.T) {
	fn := compileSource(t, "fun f() { var x = 1; return x; }")
	inner, ok := value.AsFunction(fn.Constants[0])
	if !ok {
		t.Fatalf("want function constant, got %#v", fn.Constants[0])
	}
	foundLoad := false
	for _, instr := range inner.Chunk.Code {
		if instr.Op == bytecode.OpStoreLocal && instr.Operand != 0 {
			t.Fatalf("want local slot 0 for x, got %d", instr.Operand)
		}
		if instr.Op == bytecode.OpLoadLocal {
			foundLoad = true
		}
	}
	if !foundLoad {
		t.Fatalf("want a LOAD_LOCAL instruction in %v", inner.Chunk.Code)
	}
}

func TestCompileUpvalueCapture(t *testing.T) {
	fn := compileSource(t, `
fun outer() {
  var x = 1;
  fun inner() { return x; }
  return inner;
}`)
	outer, _ := value.AsFunction(fn.Constants[0])
	var innerConst value.Value
	for _, c := range outer.Constants {
		if f, ok := value.AsFunction(c); ok && f.Name == "inner" {
			innerConst = c
		}
	}
	inner, ok := value.AsFunction(innerConst)
	if !ok {
		t.Fatalf("want nested function constant")
	}
	if len(inner.Upvalues) != 1 || !inner.Upvalues[0].IsLocal {
		t.Fatalf("want one local upvalue capture, got %#v", inner.Upvalues)
	}
	foundUpvalueLoad := false
	for _, instr := range inner.Chunk.Code {
		if instr.Op == bytecode.OpLoadUpvalue {
			foundUpvalueLoad = true
		}
	}
	if !foundUpvalueLoad {
		t.Fatalf("want LOAD_UPVALUE in inner function body")
	}
}

func TestCompileBinaryArithmetic(t *testing.T) {
	fn := compileSource(t, "3 + 4;")
	wantOps := []bytecode.Opcode{bytecode.OpPush, bytecode.OpPush, bytecode.OpAdd, bytecode.OpPop}
	for i, op := range wantOps {
		if fn.Chunk.Code[i].Op != op {
			t.Fatalf("instr %d: want %v, got %v", i, op, fn.Chunk.Code[i].Op)
		}
	}
}

func TestCompileIfElse(t *testing.T) {
	fn := compileSource(t, `if (true) { 1; } else { 2; }`)
	var sawJumpIfFalse, sawJump bool
	for _, instr := range fn.Chunk.Code {
		if instr.Op == bytecode.OpJumpIfFalse {
			sawJumpIfFalse = true
		}
		if instr.Op == bytecode.OpJump {
			sawJump = true
		}
	}
	if !sawJumpIfFalse || !sawJump {
		t.Fatalf("want both JUMP_IF_FALSE and JUMP in if/else, got %v", fn.Chunk.Code)
	}
}

func TestCompileWhileLoopEmitsBackwardLoop(t *testing.T) {
	fn := compileSource(t, `while (true) { break; }`)
	foundLoop := false
	for _, instr := range fn.Chunk.Code {
		if instr.Op == bytecode.OpLoop {
			foundLoop = true
		}
	}
	if !foundLoop {
		t.Fatalf("want LOOP opcode for while, got %v", fn.Chunk.Code)
	}
}

func TestCompileBreakOutsideLoopIsError(t *testing.T) {
	p := parser.New("break;")
	prog := p.ParseProgram()
	c := New()
	_, err := c.Compile(prog)
	if err == nil {
		t.Fatalf("want compile error for break outside loop")
	}
}

func TestCompileClassWithSuperAndMethod(t *testing.T) {
	fn := compileSource(t, `
class Animal {
  speak() { return "..."; }
}
class Dog : Animal {
  speak() { return super.speak(); }
}`)
	var sawNewClass, sawInherit, sawMethod int
	for _, instr := range fn.Chunk.Code {
		switch instr.Op {
		case bytecode.OpNewClass:
			sawNewClass++
		case bytecode.OpInherit:
			sawInherit++
		case bytecode.OpMethod:
			sawMethod++
		}
	}
	if sawNewClass != 2 || sawInherit != 1 || sawMethod != 2 {
		t.Fatalf("want 2 NEW_CLASS, 1 INHERIT, 2 METHOD, got %d/%d/%d", sawNewClass, sawInherit, sawMethod)
	}
}

func TestCompileMethodCallEmitsInvoke(t *testing.T) {
	fn := compileSource(t, `a.b(1, 2);`)
	found := false
	for _, instr := range fn.Chunk.Code {
		if instr.Op == bytecode.OpInvoke {
			_, argc := bytecode.UnpackArgs(instr.Operand)
			if argc != 2 {
				t.Fatalf("want argc 2, got %d", argc)
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("want INVOKE instruction, got %v", fn.Chunk.Code)
	}
}

func TestCompileTryExceptEmitsHandlerOps(t *testing.T) {
	fn := compileSource(t, `
try {
  risky();
} except (IndexException e) {
  handle(e);
}`)
	var sawSetup, sawPopHandler bool
	for _, instr := range fn.Chunk.Code {
		if instr.Op == bytecode.OpSetupTry {
			sawSetup = true
		}
		if instr.Op == bytecode.OpPopHandler {
			sawPopHandler = true
		}
	}
	if !sawSetup || !sawPopHandler {
		t.Fatalf("want SETUP_TRY and POP_HANDLER, got %v", fn.Chunk.Code)
	}
}

func TestCompileListLiteral(t *testing.T) {
	fn := compileSource(t, "[1, 2, 3];")
	for _, instr := range fn.Chunk.Code {
		if instr.Op == bytecode.OpNewList {
			if instr.Operand != 3 {
				t.Fatalf("want NEW_LIST 3, got %d", instr.Operand)
			}
			return
		}
	}
	t.Fatalf("want NEW_LIST instruction, got %v", fn.Chunk.Code)
}

func TestCompileRaise(t *testing.T) {
	fn := compileSource(t, `raise "boom";`)
	found := false
	for _, instr := range fn.Chunk.Code {
		if instr.Op == bytecode.OpRaise {
			found = true
		}
	}
	if !found {
		t.Fatalf("want RAISE instruction, got %v", fn.Chunk.Code)
	}
}
