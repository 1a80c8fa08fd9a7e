package lexer

import "testing"

func TestNextToken_BasicTokens(t *testing.T) {
	input := `( ) { } [ ] , . : ;`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenLBrace, "{"},
		{TokenRBrace, "}"},
		{TokenLBracket, "["},
		{TokenRBracket, "]"},
		{TokenComma, ","},
		{TokenDot, "."},
		{TokenColon, ":"},
		{TokenSemicolon, ";"},
		{TokenEOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%s, got=%s", i, tt.expectedType, tok.Type)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q", i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestNextToken_Operators(t *testing.T) {
	input := `+ - * / % == != < <= > >= && || ! = ...`

	tests := []TokenType{
		TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent,
		TokenEqEq, TokenNotEq, TokenLess, TokenLessEq, TokenGreater, TokenGreaterEq,
		TokenAndAnd, TokenOrOr, TokenBang, TokenAssign, TokenDotDotDot, TokenEOF,
	}

	l := New(input)
	for i, expected := range tests {
		tok := l.NextToken()
		if tok.Type != expected {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%s, got=%s", i, expected, tok.Type)
		}
	}
}

func TestNextToken_Keywords(t *testing.T) {
	input := `var fun class if elif else while for in return try except ensure raise import break continue null true false this super`

	tests := []TokenType{
		TokenVar, TokenFun, TokenClass, TokenIf, TokenElif, TokenElse, TokenWhile,
		TokenFor, TokenIn, TokenReturn, TokenTry, TokenExcept, TokenEnsure,
		TokenRaise, TokenImport, TokenBreak, TokenContinue, TokenNull, TokenTrue,
		TokenFalse, TokenThis, TokenSuper, TokenEOF,
	}

	l := New(input)
	for i, expected := range tests {
		tok := l.NextToken()
		if tok.Type != expected {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%s, got=%s", i, expected, tok.Type)
		}
	}
}

func TestNextToken_NumbersAndStrings(t *testing.T) {
	input := `42 3.14 "hello" 'world'`

	l := New(input)

	tok := l.NextToken()
	if tok.Type != TokenNumber || tok.Literal != "42" {
		t.Fatalf("want NUMBER 42, got %s %q", tok.Type, tok.Literal)
	}
	tok = l.NextToken()
	if tok.Type != TokenNumber || tok.Literal != "3.14" {
		t.Fatalf("want NUMBER 3.14, got %s %q", tok.Type, tok.Literal)
	}
	tok = l.NextToken()
	if tok.Type != TokenString || tok.Literal != "hello" {
		t.Fatalf("want STRING hello, got %s %q", tok.Type, tok.Literal)
	}
	tok = l.NextToken()
	if tok.Type != TokenString || tok.Literal != "world" {
		t.Fatalf("want STRING world, got %s %q", tok.Type, tok.Literal)
	}
}

func TestNextToken_LineComment(t *testing.T) {
	input := "1 // this is ignored\n2"
	l := New(input)

	tok := l.NextToken()
	if tok.Literal != "1" {
		t.Fatalf("want 1, got %q", tok.Literal)
	}
	tok = l.NextToken()
	if tok.Literal != "2" {
		t.Fatalf("want 2, got %q", tok.Literal)
	}
}

func TestNextToken_StringEscapes(t *testing.T) {
	l := New(`"a\nb\tc"`)
	tok := l.NextToken()
	if tok.Type != TokenString || tok.Literal != "a\nb\tc" {
		t.Fatalf("want escaped string, got %q", tok.Literal)
	}
}

func TestNextToken_LineTracking(t *testing.T) {
	l := New("1\n2\n3")
	var lines []int
	for {
		tok := l.NextToken()
		if tok.Type == TokenEOF {
			break
		}
		lines = append(lines, tok.Line)
	}
	want := []int{1, 2, 3}
	for i, w := range want {
		if lines[i] != w {
			t.Fatalf("token %d: want line %d, got %d", i, w, lines[i])
		}
	}
}
