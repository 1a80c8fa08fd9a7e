package parser

import (
	"testing"

	"github.com/emberlang/ember/pkg/ast"
)

func parseProgram(t *testing.T, src string) *ast.Program {
	t.Helper()
	p := New(src)
	prog := p.ParseProgram()
	if len(p.Errors()) != 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	return prog
}

func TestParseVarDecl(t *testing.T) {
	prog := parseProgram(t, `var x = 42;`)
	if len(prog.Statements) != 1 {
		t.Fatalf("want 1 statement, got %d", len(prog.Statements))
	}
	decl, ok := prog.Statements[0].(*ast.VarDecl)
	if !ok {
		t.Fatalf("want *ast.VarDecl, got %T", prog.Statements[0])
	}
	if decl.Name != "x" {
		t.Fatalf("want name x, got %s", decl.Name)
	}
	num, ok := decl.Init.(*ast.NumberLiteral)
	if !ok || num.Value != 42 {
		t.Fatalf("want number literal 42, got %#v", decl.Init)
	}
}

func TestParseFunctionDecl(t *testing.T) {
	prog := parseProgram(t, `fun add(a, b) { return a + b; }`)
	fn, ok := prog.Statements[0].(*ast.FunctionDecl)
	if !ok {
		t.Fatalf("want *ast.FunctionDecl, got %T", prog.Statements[0])
	}
	if fn.Name != "add" || len(fn.Params) != 2 {
		t.Fatalf("unexpected function decl: %#v", fn)
	}
	ret, ok := fn.Body[0].(*ast.Return)
	if !ok {
		t.Fatalf("want *ast.Return, got %T", fn.Body[0])
	}
	bin, ok := ret.Value.(*ast.Binary)
	if !ok || bin.Op != "+" {
		t.Fatalf("want binary +, got %#v", ret.Value)
	}
}

func TestParseClassDecl(t *testing.T) {
	prog := parseProgram(t, `
class Animal {
  init(name) { this.name = name; }
  speak() { return this.name; }
}
class Dog : Animal {
  speak() { return super.speak(); }
}`)
	if len(prog.Statements) != 2 {
		t.Fatalf("want 2 statements, got %d", len(prog.Statements))
	}
	animal := prog.Statements[0].(*ast.ClassDecl)
	if animal.Name != "Animal" || len(animal.Methods) != 2 {
		t.Fatalf("unexpected class: %#v", animal)
	}
	dog := prog.Statements[1].(*ast.ClassDecl)
	if dog.Super != "Animal" {
		t.Fatalf("want super Animal, got %q", dog.Super)
	}
	speak := dog.Methods[0].Body[0].(*ast.Return)
	if _, ok := speak.Value.(*ast.SuperCall); !ok {
		t.Fatalf("want super call, got %#v", speak.Value)
	}
}

func TestParseIfElifElse(t *testing.T) {
	prog := parseProgram(t, `
if (x < 0) { y = -1; } elif (x == 0) { y = 0; } else { y = 1; }`)
	ifst, ok := prog.Statements[0].(*ast.If)
	if !ok {
		t.Fatalf("want *ast.If, got %T", prog.Statements[0])
	}
	if len(ifst.Branches) != 2 || ifst.Else == nil {
		t.Fatalf("want 2 branches + else, got %d branches, else=%v", len(ifst.Branches), ifst.Else)
	}
}

func TestParseCStyleFor(t *testing.T) {
	prog := parseProgram(t, `for (i = 0; i < 10; i = i + 1) { print(i); }`)
	forst, ok := prog.Statements[0].(*ast.For)
	if !ok {
		t.Fatalf("want *ast.For, got %T", prog.Statements[0])
	}
	if forst.Init == nil || forst.Cond == nil || forst.Post == nil {
		t.Fatalf("expected all three for-clauses present: %#v", forst)
	}
}

func TestParseForIn(t *testing.T) {
	prog := parseProgram(t, `for (item in items) { print(item); }`)
	forin, ok := prog.Statements[0].(*ast.ForIn)
	if !ok {
		t.Fatalf("want *ast.ForIn, got %T", prog.Statements[0])
	}
	if forin.Name != "item" {
		t.Fatalf("want name item, got %s", forin.Name)
	}
}

func TestParseTryExceptEnsure(t *testing.T) {
	prog := parseProgram(t, `
try {
  risky();
} except (IndexException e) {
  handle(e);
} ensure {
  cleanup();
}`)
	tr, ok := prog.Statements[0].(*ast.Try)
	if !ok {
		t.Fatalf("want *ast.Try, got %T", prog.Statements[0])
	}
	if len(tr.Excepts) != 1 || tr.Excepts[0].ExceptionType != "IndexException" || tr.Excepts[0].Binding != "e" {
		t.Fatalf("unexpected except clause: %#v", tr.Excepts)
	}
	if tr.Ensure == nil {
		t.Fatalf("expected ensure block")
	}
}

func TestParseListTupleTable(t *testing.T) {
	prog := parseProgram(t, `
var a = [1, 2, 3];
var b = (1, 2);
var c = {"x": 1, "y": 2};`)
	list := prog.Statements[0].(*ast.VarDecl).Init.(*ast.ListLiteral)
	if len(list.Elements) != 3 {
		t.Fatalf("want 3 list elements, got %d", len(list.Elements))
	}
	tuple := prog.Statements[1].(*ast.VarDecl).Init.(*ast.TupleLiteral)
	if len(tuple.Elements) != 2 {
		t.Fatalf("want 2 tuple elements, got %d", len(tuple.Elements))
	}
	table := prog.Statements[2].(*ast.VarDecl).Init.(*ast.TableLiteral)
	if len(table.Keys) != 2 {
		t.Fatalf("want 2 table entries, got %d", len(table.Keys))
	}
}

func TestParseMethodCallAndIndex(t *testing.T) {
	prog := parseProgram(t, `a.b(1, 2)[0];`)
	stmt := prog.Statements[0].(*ast.ExprStatement)
	idx, ok := stmt.Expr.(*ast.IndexAccess)
	if !ok {
		t.Fatalf("want *ast.IndexAccess, got %T", stmt.Expr)
	}
	if _, ok := idx.Target.(*ast.MethodCall); !ok {
		t.Fatalf("want method call target, got %#v", idx.Target)
	}
}

func TestParseTernaryAndLogical(t *testing.T) {
	prog := parseProgram(t, `var x = a && b || c ? 1 : 2;`)
	decl := prog.Statements[0].(*ast.VarDecl)
	tern, ok := decl.Init.(*ast.Ternary)
	if !ok {
		t.Fatalf("want *ast.Ternary, got %T", decl.Init)
	}
	if _, ok := tern.Cond.(*ast.Logical); !ok {
		t.Fatalf("want logical condition, got %#v", tern.Cond)
	}
}

func TestParseErrorRecovery(t *testing.T) {
	p := New(`var = ; var y = 1;`)
	p.ParseProgram()
	if len(p.Errors()) == 0 {
		t.Fatalf("expected at least one parse error")
	}
}
