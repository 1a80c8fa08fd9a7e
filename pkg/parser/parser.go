// Package parser implements the ember language parser.
//
// The parser is a recursive-descent parser with Pratt-style precedence
// climbing for expressions. It converts a token stream (from pkg/lexer)
// into the AST node set of pkg/ast.
//
// Token Management:
//
// The parser maintains three tokens at all times, curTok, peekTok and
// peek2Tok: enough to decide, for example, whether an identifier begins a
// var-decl, an assignment, or a plain expression statement.
//
// Error Handling:
//
// Errors are accumulated in the errors slice rather than aborting the
// parse at the first mistake, so a single pass can report every syntax
// error in a file instead of just the first.
//
// Precedence (lowest to highest): assignment, ternary, logical-or,
// logical-and, equality, comparison, additive, multiplicative, unary,
// call/field/index postfix chain, primary.
package parser

import (
	"fmt"
	"strconv"

	"github.com/emberlang/ember/pkg/ast"
	"github.com/emberlang/ember/pkg/lexer"
)

type precedence int

const (
	precLowest precedence = iota
	precAssign
	precTernary
	precOr
	precAnd
	precEquality
	precComparison
	precAdditive
	precMultiplicative
	precUnary
	precPostfix
)

var precedences = map[lexer.TokenType]precedence{
	lexer.TokenAssign:     precAssign,
	lexer.TokenQuestion:   precTernary,
	lexer.TokenOrOr:       precOr,
	lexer.TokenAndAnd:     precAnd,
	lexer.TokenEqEq:       precEquality,
	lexer.TokenNotEq:      precEquality,
	lexer.TokenLess:       precComparison,
	lexer.TokenLessEq:     precComparison,
	lexer.TokenGreater:    precComparison,
	lexer.TokenGreaterEq:  precComparison,
	lexer.TokenPlus:       precAdditive,
	lexer.TokenMinus:      precAdditive,
	lexer.TokenStar:       precMultiplicative,
	lexer.TokenSlash:      precMultiplicative,
	lexer.TokenPercent:    precMultiplicative,
	lexer.TokenLParen:     precPostfix,
	lexer.TokenDot:        precPostfix,
	lexer.TokenLBracket:   precPostfix,
}

// Parser is a single-use recursive-descent parser over one source file.
// Most decisions need only curTok/peekTok; parseFor's for-in detection
// needs a third token (the word after the loop variable), so a small
// peek2Tok is carried too rather than a general pushback buffer.
type Parser struct {
	l        *lexer.Lexer
	curTok   lexer.Token
	peekTok  lexer.Token
	peek2Tok lexer.Token
	errors   []string
}

// New creates a Parser over source, priming the lookahead window.
func New(source string) *Parser {
	p := &Parser{l: lexer.New(source)}
	p.next()
	p.next()
	p.next()
	return p
}

// Errors returns every syntax error accumulated during ParseProgram.
func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) next() {
	p.curTok = p.peekTok
	p.peekTok = p.peek2Tok
	p.peek2Tok = p.l.NextToken()
}

func (p *Parser) curIs(tt lexer.TokenType) bool  { return p.curTok.Type == tt }
func (p *Parser) peekIs(tt lexer.TokenType) bool { return p.peekTok.Type == tt }

func (p *Parser) expect(tt lexer.TokenType) bool {
	if p.peekIs(tt) {
		p.next()
		return true
	}
	p.errorf("expected next token to be %s, got %s instead", tt, p.peekTok.Type)
	return false
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.errors = append(p.errors, fmt.Sprintf("line %d: %s", p.curTok.Line, fmt.Sprintf(format, args...)))
}

func (p *Parser) peekPrecedence() precedence {
	if pr, ok := precedences[p.peekTok.Type]; ok {
		return pr
	}
	return precLowest
}

// ParseProgram parses the entire token stream into a Program node,
// recovering to the next statement boundary after a syntax error so one
// pass reports as many errors as possible.
func (p *Parser) ParseProgram() *ast.Program {
	prog := &ast.Program{}
	for !p.curIs(lexer.TokenEOF) {
		stmt := p.parseStatement()
		if stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		} else {
			p.next()
		}
	}
	return prog
}

func (p *Parser) parseStatement() ast.Statement {
	switch p.curTok.Type {
	case lexer.TokenVar:
		return p.parseVarDecl()
	case lexer.TokenFun:
		return p.parseFunctionDecl()
	case lexer.TokenClass:
		return p.parseClassDecl()
	case lexer.TokenIf:
		return p.parseIf()
	case lexer.TokenWhile:
		return p.parseWhile()
	case lexer.TokenFor:
		return p.parseFor()
	case lexer.TokenReturn:
		return p.parseReturn()
	case lexer.TokenBreak:
		line := p.curTok.Line
		p.next()
		p.consumeSemicolon()
		return &ast.Break{Base: ast.NewBase(line)}
	case lexer.TokenContinue:
		line := p.curTok.Line
		p.next()
		p.consumeSemicolon()
		return &ast.Continue{Base: ast.NewBase(line)}
	case lexer.TokenTry:
		return p.parseTry()
	case lexer.TokenRaise:
		return p.parseRaise()
	case lexer.TokenImport:
		return p.parseImport()
	case lexer.TokenLBrace:
		return p.parseBlock()
	default:
		return p.parseExprStatement()
	}
}

func (p *Parser) consumeSemicolon() {
	if p.curIs(lexer.TokenSemicolon) {
		p.next()
	}
}

func (p *Parser) parseVarDecl() ast.Statement {
	line := p.curTok.Line
	if !p.expect(lexer.TokenIdentifier) {
		return nil
	}
	name := p.curTok.Literal
	var init ast.Expression
	if p.peekIs(lexer.TokenAssign) {
		p.next()
		p.next()
		init = p.parseExpression(precAssign)
	}
	p.next()
	p.consumeSemicolon()
	return &ast.VarDecl{Base: ast.NewBase(line), Name: name, Init: init}
}

func (p *Parser) parseExprStatement() ast.Statement {
	line := p.curTok.Line
	expr := p.parseExpression(precLowest)
	if p.peekIs(lexer.TokenSemicolon) {
		p.next()
	}
	p.next()
	return &ast.ExprStatement{Base: ast.NewBase(line), Expr: expr}
}

func (p *Parser) parseBlock() *ast.Block {
	line := p.curTok.Line
	block := &ast.Block{Base: ast.NewBase(line)}
	p.next() // consume '{'
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		stmt := p.parseStatement()
		if stmt != nil {
			block.Statements = append(block.Statements, stmt)
		} else {
			p.next()
		}
	}
	return block
}

func (p *Parser) parseIf() ast.Statement {
	line := p.curTok.Line
	node := &ast.If{Base: ast.NewBase(line)}
	p.parseIfBranch(node)
	for p.curIs(lexer.TokenElif) {
		p.parseIfBranch(node)
	}
	if p.curIs(lexer.TokenElse) {
		p.next()
		node.Else = p.parseBlock()
		p.next()
	}
	return node
}

func (p *Parser) parseIfBranch(node *ast.If) {
	p.expect(lexer.TokenLParen)
	p.next()
	cond := p.parseExpression(precLowest)
	p.expect(lexer.TokenRParen)
	p.expect(lexer.TokenLBrace)
	body := p.parseBlock()
	node.Branches = append(node.Branches, ast.IfBranch{Cond: cond, Body: body})
	p.next()
}

func (p *Parser) parseWhile() ast.Statement {
	line := p.curTok.Line
	p.expect(lexer.TokenLParen)
	p.next()
	cond := p.parseExpression(precLowest)
	p.expect(lexer.TokenRParen)
	p.expect(lexer.TokenLBrace)
	body := p.parseBlock()
	p.next()
	return &ast.While{Base: ast.NewBase(line), Cond: cond, Body: body}
}

func (p *Parser) parseFor() ast.Statement {
	line := p.curTok.Line
	p.expect(lexer.TokenLParen)
	// for (name in expr) { ... } is distinguished from C-style for by
	// looking two tokens past '(' without consuming anything yet.
	if p.peekIs(lexer.TokenIdentifier) && p.peek2Tok.Type == lexer.TokenIn {
		p.next() // consume '(' -> now at identifier
		name := p.curTok.Literal
		p.next() // consume identifier -> now at 'in'
		p.next() // consume 'in'
		iterable := p.parseExpression(precLowest)
		p.expect(lexer.TokenRParen)
		p.expect(lexer.TokenLBrace)
		body := p.parseBlock()
		p.next()
		return &ast.ForIn{Base: ast.NewBase(line), Name: name, Iterable: iterable, Body: body}
	}

	p.next()
	var init ast.Statement
	if !p.curIs(lexer.TokenSemicolon) {
		init = p.parseStatement()
	} else {
		p.next()
	}
	var cond ast.Expression
	if !p.curIs(lexer.TokenSemicolon) {
		cond = p.parseExpression(precLowest)
		p.next()
	}
	p.consumeSemicolon()
	var post ast.Statement
	if !p.curIs(lexer.TokenRParen) {
		postLine := p.curTok.Line
		expr := p.parseExpression(precLowest)
		post = &ast.ExprStatement{Base: ast.NewBase(postLine), Expr: expr}
		p.next()
	}
	p.expect(lexer.TokenLBrace)
	body := p.parseBlock()
	p.next()
	return &ast.For{Base: ast.NewBase(line), Init: init, Cond: cond, Post: post, Body: body}
}

func (p *Parser) parseReturn() ast.Statement {
	line := p.curTok.Line
	var value ast.Expression
	if !p.peekIs(lexer.TokenSemicolon) {
		p.next()
		value = p.parseExpression(precLowest)
	}
	if p.peekIs(lexer.TokenSemicolon) {
		p.next()
	}
	p.next()
	return &ast.Return{Base: ast.NewBase(line), Value: value}
}

func (p *Parser) parseRaise() ast.Statement {
	line := p.curTok.Line
	p.next()
	value := p.parseExpression(precLowest)
	if p.peekIs(lexer.TokenSemicolon) {
		p.next()
	}
	p.next()
	return &ast.Raise{Base: ast.NewBase(line), Value: value}
}

func (p *Parser) parseImport() ast.Statement {
	line := p.curTok.Line
	if !p.expect(lexer.TokenIdentifier) {
		return nil
	}
	name := p.curTok.Literal
	p.next()
	p.consumeSemicolon()
	return &ast.Import{Base: ast.NewBase(line), Name: name}
}

func (p *Parser) parseTry() ast.Statement {
	line := p.curTok.Line
	p.expect(lexer.TokenLBrace)
	body := p.parseBlock()
	p.next()

	node := &ast.Try{Base: ast.NewBase(line), Body: body}
	for p.curIs(lexer.TokenExcept) {
		excType, binding := "", ""
		if p.peekIs(lexer.TokenIdentifier) {
			p.next()
			binding = p.curTok.Literal
		} else {
			p.expect(lexer.TokenLParen)
			p.expect(lexer.TokenIdentifier)
			excType = p.curTok.Literal
			if p.peekIs(lexer.TokenIdentifier) {
				p.next()
				binding = p.curTok.Literal
			}
			p.expect(lexer.TokenRParen)
		}
		p.expect(lexer.TokenLBrace)
		excBody := p.parseBlock()
		node.Excepts = append(node.Excepts, ast.ExceptClause{ExceptionType: excType, Binding: binding, Body: excBody})
		p.next()
	}
	if p.curIs(lexer.TokenElse) {
		p.expect(lexer.TokenLBrace)
		node.Else = p.parseBlock()
		p.next()
	}
	if p.curIs(lexer.TokenEnsure) {
		p.expect(lexer.TokenLBrace)
		node.Ensure = p.parseBlock()
		p.next()
	}
	return node
}

func (p *Parser) parseFunctionDecl() ast.Statement {
	line := p.curTok.Line
	if !p.expect(lexer.TokenIdentifier) {
		return nil
	}
	name := p.curTok.Literal
	params, defaults, variadic := p.parseParamList()
	p.expect(lexer.TokenLBrace)
	block := p.parseBlock()
	p.next()
	return &ast.FunctionDecl{Base: ast.NewBase(line), Name: name, Params: params, Defaults: defaults, Variadic: variadic, Body: block.Statements}
}

func (p *Parser) parseParamList() (params []string, defaults []ast.Expression, variadic bool) {
	p.expect(lexer.TokenLParen)
	if p.peekIs(lexer.TokenRParen) {
		p.next()
		return
	}
	for {
		if p.peekIs(lexer.TokenDotDotDot) {
			p.next()
			p.expect(lexer.TokenIdentifier)
			params = append(params, p.curTok.Literal)
			defaults = append(defaults, nil)
			variadic = true
			break
		}
		p.expect(lexer.TokenIdentifier)
		params = append(params, p.curTok.Literal)
		if p.peekIs(lexer.TokenAssign) {
			p.next()
			p.next()
			defaults = append(defaults, p.parseExpression(precAssign))
		} else {
			defaults = append(defaults, nil)
		}
		if p.peekIs(lexer.TokenComma) {
			p.next()
			continue
		}
		break
	}
	p.expect(lexer.TokenRParen)
	return
}

func (p *Parser) parseClassDecl() ast.Statement {
	line := p.curTok.Line
	if !p.expect(lexer.TokenIdentifier) {
		return nil
	}
	name := p.curTok.Literal
	super := ""
	if p.peekIs(lexer.TokenColon) {
		p.next()
		p.expect(lexer.TokenIdentifier)
		super = p.curTok.Literal
	}
	p.expect(lexer.TokenLBrace)
	p.next()
	node := &ast.ClassDecl{Base: ast.NewBase(line), Name: name, Super: super}
	for !p.curIs(lexer.TokenRBrace) && !p.curIs(lexer.TokenEOF) {
		if !p.curIs(lexer.TokenIdentifier) {
			p.errorf("expected method name, got %s", p.curTok.Type)
			p.next()
			continue
		}
		mline := p.curTok.Line
		mname := p.curTok.Literal
		params, defaults, variadic := p.parseParamList()
		p.expect(lexer.TokenLBrace)
		body := p.parseBlock()
		p.next()
		node.Methods = append(node.Methods, &ast.MethodDecl{
			Base: ast.NewBase(mline), Name: mname, Params: params,
			Defaults: defaults, Variadic: variadic, Body: body.Statements,
		})
	}
	p.next()
	return node
}

// --- Pratt expression parsing ---

func (p *Parser) parseExpression(prec precedence) ast.Expression {
	left := p.parsePrefix()
	for !p.peekIs(lexer.TokenSemicolon) && prec < p.peekPrecedence() {
		switch p.peekTok.Type {
		case lexer.TokenAssign:
			p.next()
			left = p.parseAssign(left)
		case lexer.TokenQuestion:
			p.next()
			left = p.parseTernary(left)
		case lexer.TokenOrOr, lexer.TokenAndAnd:
			p.next()
			left = p.parseLogical(left)
		case lexer.TokenLParen:
			p.next()
			left = p.parseCall(left)
		case lexer.TokenDot:
			p.next()
			left = p.parseFieldOrMethod(left)
		case lexer.TokenLBracket:
			p.next()
			left = p.parseIndex(left)
		default:
			p.next()
			left = p.parseBinary(left)
		}
	}
	return left
}

func (p *Parser) parsePrefix() ast.Expression {
	line := p.curTok.Line
	switch p.curTok.Type {
	case lexer.TokenNumber:
		v, err := strconv.ParseFloat(p.curTok.Literal, 64)
		if err != nil {
			p.errorf("invalid number literal %q", p.curTok.Literal)
		}
		return &ast.NumberLiteral{Base: ast.NewBase(line), Value: v}
	case lexer.TokenString:
		return &ast.StringLiteral{Base: ast.NewBase(line), Value: p.curTok.Literal}
	case lexer.TokenTrue:
		return &ast.BoolLiteral{Base: ast.NewBase(line), Value: true}
	case lexer.TokenFalse:
		return &ast.BoolLiteral{Base: ast.NewBase(line), Value: false}
	case lexer.TokenNull:
		return &ast.NullLiteral{Base: ast.NewBase(line)}
	case lexer.TokenThis:
		return &ast.This{Base: ast.NewBase(line)}
	case lexer.TokenSuper:
		return p.parseSuper()
	case lexer.TokenIdentifier:
		return &ast.Identifier{Base: ast.NewBase(line), Name: p.curTok.Literal}
	case lexer.TokenBang, lexer.TokenMinus:
		op := p.curTok.Literal
		p.next()
		operand := p.parseExpression(precUnary)
		return &ast.Unary{Base: ast.NewBase(line), Op: op, Operand: operand}
	case lexer.TokenLParen:
		return p.parseParenOrTuple()
	case lexer.TokenLBracket:
		return p.parseListLiteral()
	case lexer.TokenLBrace:
		return p.parseTableLiteral()
	case lexer.TokenFun:
		return p.parseFunctionLiteral()
	default:
		p.errorf("unexpected token %s in expression", p.curTok.Type)
		return &ast.NullLiteral{Base: ast.NewBase(line)}
	}
}

func (p *Parser) parseSuper() ast.Expression {
	line := p.curTok.Line
	if p.peekIs(lexer.TokenDot) {
		p.next() // .
		p.expect(lexer.TokenIdentifier)
		name := p.curTok.Literal
		if p.peekIs(lexer.TokenLParen) {
			p.next()
			args := p.parseArgs()
			return &ast.SuperCall{Base: ast.NewBase(line), Name: name, Args: args}
		}
	}
	return &ast.Super{Base: ast.NewBase(line)}
}

func (p *Parser) parseParenOrTuple() ast.Expression {
	line := p.curTok.Line
	p.next() // consume '('
	if p.curIs(lexer.TokenRParen) {
		return &ast.TupleLiteral{Base: ast.NewBase(line)}
	}
	first := p.parseExpression(precLowest)
	if p.peekIs(lexer.TokenComma) {
		elems := []ast.Expression{first}
		for p.peekIs(lexer.TokenComma) {
			p.next()
			p.next()
			elems = append(elems, p.parseExpression(precAssign))
		}
		p.expect(lexer.TokenRParen)
		return &ast.TupleLiteral{Base: ast.NewBase(line), Elements: elems}
	}
	p.expect(lexer.TokenRParen)
	return first
}

func (p *Parser) parseListLiteral() ast.Expression {
	line := p.curTok.Line
	node := &ast.ListLiteral{Base: ast.NewBase(line)}
	if p.peekIs(lexer.TokenRBracket) {
		p.next()
		return node
	}
	p.next()
	node.Elements = append(node.Elements, p.parseExpression(precAssign))
	for p.peekIs(lexer.TokenComma) {
		p.next()
		p.next()
		node.Elements = append(node.Elements, p.parseExpression(precAssign))
	}
	p.expect(lexer.TokenRBracket)
	return node
}

func (p *Parser) parseTableLiteral() ast.Expression {
	line := p.curTok.Line
	node := &ast.TableLiteral{Base: ast.NewBase(line)}
	if p.peekIs(lexer.TokenRBrace) {
		p.next()
		return node
	}
	p.next()
	for {
		key := p.parseExpression(precAssign)
		p.expect(lexer.TokenColon)
		p.next()
		val := p.parseExpression(precAssign)
		node.Keys = append(node.Keys, key)
		node.Values = append(node.Values, val)
		if p.peekIs(lexer.TokenComma) {
			p.next()
			p.next()
			continue
		}
		break
	}
	p.expect(lexer.TokenRBrace)
	return node
}

func (p *Parser) parseFunctionLiteral() ast.Expression {
	line := p.curTok.Line
	params, defaults, variadic := p.parseParamList()
	p.expect(lexer.TokenLBrace)
	block := p.parseBlock()
	return &ast.FunctionLiteral{Base: ast.NewBase(line), Params: params, Defaults: defaults, Variadic: variadic, Body: block.Statements}
}

func (p *Parser) parseAssign(left ast.Expression) ast.Expression {
	line := p.curTok.Line
	p.next()
	value := p.parseExpression(precLowest)
	return &ast.Assign{Base: ast.NewBase(line), Target: left, Value: value}
}

func (p *Parser) parseTernary(left ast.Expression) ast.Expression {
	line := p.curTok.Line
	p.next()
	then := p.parseExpression(precAssign)
	p.expect(lexer.TokenColon)
	p.next()
	els := p.parseExpression(precTernary)
	return &ast.Ternary{Base: ast.NewBase(line), Cond: left, Then: then, Else: els}
}

func (p *Parser) parseLogical(left ast.Expression) ast.Expression {
	op := p.curTok.Literal
	line := p.curTok.Line
	prec := precedences[p.curTok.Type]
	p.next()
	right := p.parseExpression(prec)
	return &ast.Logical{Base: ast.NewBase(line), Op: op, Left: left, Right: right}
}

func (p *Parser) parseBinary(left ast.Expression) ast.Expression {
	op := p.curTok.Literal
	line := p.curTok.Line
	prec := precedences[p.curTok.Type]
	p.next()
	right := p.parseExpression(prec)
	return &ast.Binary{Base: ast.NewBase(line), Op: op, Left: left, Right: right}
}

func (p *Parser) parseArgs() []ast.Expression {
	var args []ast.Expression
	if p.peekIs(lexer.TokenRParen) {
		p.next()
		return args
	}
	p.next()
	args = append(args, p.parseExpression(precAssign))
	for p.peekIs(lexer.TokenComma) {
		p.next()
		p.next()
		args = append(args, p.parseExpression(precAssign))
	}
	p.expect(lexer.TokenRParen)
	return args
}

func (p *Parser) parseCall(callee ast.Expression) ast.Expression {
	line := p.curTok.Line
	args := p.parseArgs()
	return &ast.Call{Base: ast.NewBase(line), Callee: callee, Args: args}
}

func (p *Parser) parseFieldOrMethod(target ast.Expression) ast.Expression {
	line := p.curTok.Line
	p.expect(lexer.TokenIdentifier)
	name := p.curTok.Literal
	if p.peekIs(lexer.TokenLParen) {
		p.next()
		args := p.parseArgs()
		return &ast.MethodCall{Base: ast.NewBase(line), Target: target, Name: name, Args: args}
	}
	return &ast.FieldAccess{Base: ast.NewBase(line), Target: target, Name: name}
}

func (p *Parser) parseIndex(target ast.Expression) ast.Expression {
	line := p.curTok.Line
	p.next()
	index := p.parseExpression(precLowest)
	p.expect(lexer.TokenRBracket)
	return &ast.IndexAccess{Base: ast.NewBase(line), Target: target, Index: index}
}
