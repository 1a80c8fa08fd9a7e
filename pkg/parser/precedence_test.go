package parser

import (
	"testing"

	"github.com/emberlang/ember/pkg/ast"
)

// TestParseArithmeticPrecedence checks that * binds tighter than +, so
// `1 + 2 * 3` parses as `1 + (2 * 3)`.
func TestParseArithmeticPrecedence(t *testing.T) {
	prog := parseProgram(t, `1 + 2 * 3;`)
	stmt := prog.Statements[0].(*ast.ExprStatement)
	top, ok := stmt.Expr.(*ast.Binary)
	if !ok || top.Op != "+" {
		t.Fatalf("want top-level +, got %#v", stmt.Expr)
	}
	right, ok := top.Right.(*ast.Binary)
	if !ok || right.Op != "*" {
		t.Fatalf("want right-hand * grouping, got %#v", top.Right)
	}
}

// TestParseComparisonBindsLooserThanAdditive checks `1 + 2 < 3 + 4`
// parses as `(1 + 2) < (3 + 4)`.
func TestParseComparisonBindsLooserThanAdditive(t *testing.T) {
	prog := parseProgram(t, `1 + 2 < 3 + 4;`)
	stmt := prog.Statements[0].(*ast.ExprStatement)
	top, ok := stmt.Expr.(*ast.Binary)
	if !ok || top.Op != "<" {
		t.Fatalf("want top-level <, got %#v", stmt.Expr)
	}
	if _, ok := top.Left.(*ast.Binary); !ok {
		t.Fatalf("want left-hand + grouping, got %#v", top.Left)
	}
	if _, ok := top.Right.(*ast.Binary); !ok {
		t.Fatalf("want right-hand + grouping, got %#v", top.Right)
	}
}

// TestParseUnaryBindsTighterThanBinary checks `-1 + 2` parses as
// `(-1) + 2`, not `-(1 + 2)`.
func TestParseUnaryBindsTighterThanBinary(t *testing.T) {
	prog := parseProgram(t, `-1 + 2;`)
	stmt := prog.Statements[0].(*ast.ExprStatement)
	top, ok := stmt.Expr.(*ast.Binary)
	if !ok || top.Op != "+" {
		t.Fatalf("want top-level +, got %#v", stmt.Expr)
	}
	if _, ok := top.Left.(*ast.Unary); !ok {
		t.Fatalf("want unary left operand, got %#v", top.Left)
	}
}

// TestParsePostfixBindsTighterThanUnary checks `!a.b()` parses as
// `!(a.b())`.
func TestParsePostfixBindsTighterThanUnary(t *testing.T) {
	prog := parseProgram(t, `!a.b();`)
	stmt := prog.Statements[0].(*ast.ExprStatement)
	un, ok := stmt.Expr.(*ast.Unary)
	if !ok || un.Op != "!" {
		t.Fatalf("want top-level !, got %#v", stmt.Expr)
	}
	if _, ok := un.Operand.(*ast.MethodCall); !ok {
		t.Fatalf("want method call operand, got %#v", un.Operand)
	}
}

// TestParseAssignmentIsRightAssociative checks `a = b = 1` parses as
// `a = (b = 1)`.
func TestParseAssignmentIsRightAssociative(t *testing.T) {
	prog := parseProgram(t, `a = b = 1;`)
	stmt := prog.Statements[0].(*ast.ExprStatement)
	outer, ok := stmt.Expr.(*ast.Assign)
	if !ok {
		t.Fatalf("want *ast.Assign, got %T", stmt.Expr)
	}
	if _, ok := outer.Value.(*ast.Assign); !ok {
		t.Fatalf("want nested assign on the right, got %#v", outer.Value)
	}
}
