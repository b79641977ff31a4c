package parser

import (
	"strconv"

	"github.com/xplshn/gpas/pkg/ast"
	"github.com/xplshn/gpas/pkg/token"
	"github.com/xplshn/gpas/pkg/util"
)

// TokenSource is a pull-based token stream, satisfied by *lexer.Lexer.
type TokenSource interface {
	Next() token.Token
}

// Parser holds the state for the parsing process
type Parser struct {
	src       TokenSource
	ahead     []token.Token
	current   token.Token
	previous  token.Token
	rep       *util.Reporter
	panicMode bool
}

// NewParser creates a Parser that pulls tokens from src on demand
func NewParser(src TokenSource, rep *util.Reporter) *Parser {
	p := &Parser{src: src, rep: rep}
	p.current = src.Next()
	return p
}

// Parser helpers
func (p *Parser) advance() {
	if p.current.Type == token.EOF {
		return
	}
	p.previous = p.current
	if len(p.ahead) > 0 {
		p.current = p.ahead[0]
		p.ahead = p.ahead[1:]
		return
	}
	p.current = p.src.Next()
}

// peekN returns the token n positions past the current one; peekN(0) is the current token.
func (p *Parser) peekN(n int) token.Token {
	if n == 0 {
		return p.current
	}
	for len(p.ahead) < n {
		if len(p.ahead) > 0 && p.ahead[len(p.ahead)-1].Type == token.EOF {
			return p.ahead[len(p.ahead)-1]
		}
		if len(p.ahead) == 0 && p.current.Type == token.EOF {
			return p.current
		}
		p.ahead = append(p.ahead, p.src.Next())
	}
	return p.ahead[n-1]
}

func (p *Parser) check(tokType token.Type) bool {
	return p.current.Type == tokType
}

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

// errorAt records a syntax error unless the current statement already produced one.
func (p *Parser) errorAt(tok token.Token, format string, args ...interface{}) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.rep.Error(util.Syntax, tok, format, args...)
}

func (p *Parser) expect(tokType token.Type, message string) bool {
	if p.check(tokType) {
		p.advance()
		return true
	}
	p.errorAt(p.current, "%s", message)
	return false
}

// synchronize skips to the next statement boundary after a syntax error.
func (p *Parser) synchronize() {
	if !p.panicMode {
		return
	}
	for !p.check(token.EOF) {
		if p.match(token.Semi) {
			break
		}
		if p.check(token.End) {
			break
		}
		p.advance()
	}
	p.panicMode = false
}

// endStatement consumes the statement terminator. The ';' may be left out right
// before 'end' or 'else'.
func (p *Parser) endStatement() {
	if p.match(token.Semi) || p.check(token.End) || p.check(token.Else) {
		return
	}
	p.errorAt(p.current, "expected ';' after statement, got '%s'", describe(p.current))
}

func describe(tok token.Token) string {
	if tok.Value != "" && tok.Type != token.String {
		return tok.Value
	}
	return tok.Type.String()
}

// Expression Parsing
func getBinaryOpPrecedence(op token.Type) int {
	switch op {
	case token.Star, token.Slash, token.Rem, token.Mod:
		return 5
	case token.Plus, token.Minus:
		return 4
	case token.Eq, token.Neq, token.Lt, token.Gt, token.Lte, token.Gte:
		return 3
	case token.And:
		return 2
	case token.Or:
		return 1
	default:
		return -1
	}
}

func (p *Parser) parsePrimaryExpr() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Integer):
		val, err := strconv.ParseInt(p.previous.Value, 10, 64)
		if err != nil {
			p.rep.Error(util.Lexical, tok, "integer literal '%s' out of range", p.previous.Value)
		}
		return ast.NewInteger(tok, val)
	case p.match(token.Real):
		val, err := strconv.ParseFloat(p.previous.Value, 64)
		if err != nil {
			p.rep.Error(util.Lexical, tok, "real literal '%s' out of range", p.previous.Value)
		}
		return ast.NewReal(tok, val, p.previous.Value)
	case p.match(token.String):
		return ast.NewString(tok, p.previous.Value)
	case p.match(token.Ident):
		return ast.NewIdent(tok, p.previous.Value)
	case p.match(token.LParen):
		expr := p.parseExpr()
		p.expect(token.RParen, "expected ')' after expression")
		return expr
	}
	p.errorAt(tok, "expected an expression, got '%s'", describe(tok))
	return ast.NewInteger(tok, 0)
}

func (p *Parser) parseArgs() []*ast.Node {
	var args []*ast.Node
	if !p.check(token.RParen) {
		for {
			args = append(args, p.parseExpr())
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "expected ')' after call arguments")
	return args
}

func (p *Parser) parsePostfixExpr() *ast.Node {
	expr := p.parsePrimaryExpr()
	if expr.Type == ast.Ident && p.check(token.LParen) {
		p.advance()
		expr = ast.NewCall(expr.Tok, expr.Data.(ast.IdentNode).Name, p.parseArgs())
	}
	for p.check(token.LBracket) {
		tok := p.current
		p.advance()
		index := p.parseExpr()
		p.expect(token.RBracket, "expected ']' after index")
		expr = ast.NewIndex(tok, expr, index)
	}
	return expr
}

func (p *Parser) parseUnaryExpr() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Minus), p.match(token.Plus):
		return ast.NewSign(tok, tok.Type, p.parseUnaryExpr())
	case p.match(token.Not):
		return ast.NewUnaryOp(tok, token.Not, p.parseUnaryExpr())
	case p.match(token.Length):
		p.expect(token.LParen, "expected '(' after 'length'")
		operand := p.parseExpr()
		p.expect(token.RParen, "expected ')' after length operand")
		return ast.NewUnaryOp(tok, token.Length, operand)
	}
	return p.parsePostfixExpr()
}

func (p *Parser) parseBinaryExpr(minPrec int) *ast.Node {
	left := p.parseUnaryExpr()
	for {
		op := p.current.Type
		prec := getBinaryOpPrecedence(op)
		if prec < minPrec {
			break
		}
		opTok := p.current
		p.advance()
		right := p.parseBinaryExpr(prec + 1)
		left = ast.NewBinaryOp(opTok, op, left, right)
	}
	return left
}

func (p *Parser) parseExpr() *ast.Node {
	return p.parseBinaryExpr(0)
}

// Types

// parseType returns the type and, for arrays, the optional element count expression.
func (p *Parser) parseType() (*ast.Type, *ast.Node) {
	switch {
	case p.match(token.IntegerKw):
		return ast.TypeInteger, nil
	case p.match(token.RealKw):
		return ast.TypeReal, nil
	case p.match(token.BooleanKw):
		return ast.TypeBoolean, nil
	case p.match(token.StringKw):
		return ast.TypeString, nil
	case p.match(token.Array):
		var size *ast.Node
		if p.match(token.LBracket) {
			size = p.parseExpr()
			p.expect(token.RBracket, "expected ']' after array size")
		}
		p.expect(token.Of, "expected 'of' in array type")
		elem, _ := p.parseType()
		return ast.ArrayOf(elem), size
	}
	p.errorAt(p.current, "expected a type, got '%s'", describe(p.current))
	return ast.TypeUnknown, nil
}

// Statement and Declaration Parsing

// parseVarDecl parses `a, b: T;` into one declaration per name.
func (p *Parser) parseVarDecl() []*ast.Node {
	var names []token.Token
	for {
		tok := p.current
		if !p.expect(token.Ident, "expected a variable name") {
			return nil
		}
		names = append(names, tok)
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.Colon, "expected ':' after variable names")
	typ, size := p.parseType()
	p.endStatement()

	decls := make([]*ast.Node, 0, len(names))
	for _, tok := range names {
		decls = append(decls, ast.NewVarDecl(tok, tok.Value, typ, size))
	}
	return decls
}

// parseVarSection parses `var` followed by one or more declarations. A new
// declaration starts at an identifier followed by ',' or ':'.
func (p *Parser) parseVarSection() []*ast.Node {
	var decls []*ast.Node
	for {
		decls = append(decls, p.parseVarDecl()...)
		p.synchronize()
		next := p.peekN(1).Type
		if !p.check(token.Ident) || (next != token.Colon && next != token.Comma) {
			return decls
		}
	}
}

func (p *Parser) parseBlock() *ast.Node {
	tok := p.current
	p.expect(token.Begin, "expected 'begin'")
	return ast.NewBlock(tok, p.parseStatementsUntilEnd())
}

func (p *Parser) parseStatementsUntilEnd() []*ast.Node {
	var stmts []*ast.Node
	for !p.check(token.End) && !p.check(token.EOF) {
		if p.check(token.Var) {
			p.advance()
			stmts = append(stmts, p.parseVarSection()...)
			continue
		}
		if stmt := p.parseStmt(); stmt != nil {
			stmts = append(stmts, stmt)
		}
		p.synchronize()
	}
	p.expect(token.End, "expected 'end' to close block")
	return stmts
}

// parseBody parses a block or a single statement for loop and branch bodies.
func (p *Parser) parseBody() *ast.Node {
	if p.check(token.Begin) {
		block := p.parseBlock()
		return block
	}
	return p.parseStmt()
}

func (p *Parser) parseStmt() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Semi):
		return nil
	case p.check(token.Begin):
		block := p.parseBlock()
		p.match(token.Semi)
		return block
	case p.match(token.While):
		cond := p.parseExpr()
		p.expect(token.Do, "expected 'do' after while condition")
		return ast.NewWhile(tok, cond, p.parseBody())
	case p.match(token.If):
		cond := p.parseExpr()
		p.expect(token.Then, "expected 'then' after if condition")
		thenBody := p.parseBody()
		var elseBody *ast.Node
		if p.match(token.Else) {
			elseBody = p.parseBody()
		}
		return ast.NewIf(tok, cond, thenBody, elseBody)
	case p.match(token.Assert):
		p.expect(token.LParen, "expected '(' after 'assert'")
		cond := p.parseExpr()
		p.expect(token.RParen, "expected ')' after assert condition")
		p.endStatement()
		return ast.NewAssert(tok, cond)
	case p.match(token.Return):
		var expr *ast.Node
		if !p.check(token.Semi) && !p.check(token.End) && !p.check(token.Else) {
			expr = p.parseExpr()
		}
		p.endStatement()
		return ast.NewReturn(tok, expr)
	case p.check(token.Ident):
		return p.parseSimpleStmt()
	}
	p.errorAt(tok, "expected a statement, got '%s'", describe(tok))
	return nil
}

// parseSimpleStmt tells an assignment from a call statement by looking one token past
// the leading identifier.
func (p *Parser) parseSimpleStmt() *ast.Node {
	tok := p.current
	switch p.peekN(1).Type {
	case token.Assign, token.LBracket:
		target := p.parsePostfixExpr()
		assignTok := p.current
		p.expect(token.Assign, "expected ':=' in assignment")
		if !ast.IsLValue(target) {
			p.errorAt(tok, "invalid assignment target")
		}
		value := p.parseExpr()
		p.endStatement()
		return ast.NewAssign(assignTok, target, value)
	}

	p.advance()
	var args []*ast.Node
	if p.match(token.LParen) {
		args = p.parseArgs()
	}
	p.endStatement()
	return ast.NewCall(tok, tok.Value, args)
}

func (p *Parser) parseParams() []*ast.Node {
	var params []*ast.Node
	if !p.match(token.LParen) {
		return nil
	}
	if p.match(token.RParen) {
		return nil
	}
	for {
		byRef := p.match(token.Var)
		var names []token.Token
		for {
			tok := p.current
			if !p.expect(token.Ident, "expected a parameter name") {
				break
			}
			names = append(names, tok)
			if !p.match(token.Comma) {
				break
			}
		}
		p.expect(token.Colon, "expected ':' after parameter names")
		typ, _ := p.parseType()
		for _, tok := range names {
			params = append(params, ast.NewParam(tok, tok.Value, typ, byRef))
		}
		if !p.match(token.Semi) {
			break
		}
	}
	p.expect(token.RParen, "expected ')' after parameters")
	return params
}

// parseCallable parses a function or procedure declaration. Its var section becomes the
// leading statements of its body block.
func (p *Parser) parseCallable() *ast.Node {
	kwTok := p.current
	isFunction := kwTok.Type == token.Function
	p.advance()

	nameTok := p.current
	p.expect(token.Ident, "expected a name after '"+kwTok.Type.String()+"'")
	params := p.parseParams()

	var retType *ast.Type
	if isFunction {
		p.expect(token.Colon, "expected ':' and a return type")
		retType, _ = p.parseType()
	}
	p.expect(token.Semi, "expected ';' after declaration header")
	p.synchronize()

	var vars []*ast.Node
	if p.match(token.Var) {
		vars = p.parseVarSection()
	}
	body := p.parseBlock()
	p.expect(token.Semi, "expected ';' after "+kwTok.Type.String()+" body")
	p.synchronize()

	body = prependDecls(body, vars)
	return ast.NewCallable(nameTok, nameTok.Value, isFunction, params, retType, body)
}

func prependDecls(block *ast.Node, decls []*ast.Node) *ast.Node {
	if len(decls) == 0 {
		return block
	}
	b := block.Data.(ast.BlockNode)
	stmts := append(append([]*ast.Node{}, decls...), b.Stmts...)
	return ast.NewBlock(block.Tok, stmts)
}

// Parse parses a whole program. It always returns a tree; syntax errors are recorded in
// the reporter.
func (p *Parser) Parse() *ast.Node {
	tok := p.current
	p.expect(token.Program, "expected 'program'")
	nameTok := p.current
	p.expect(token.Ident, "expected a program name")
	p.expect(token.Semi, "expected ';' after program name")
	p.synchronize()

	var callables []*ast.Node
	for p.check(token.Function) || p.check(token.Procedure) {
		callables = append(callables, p.parseCallable())
	}

	var vars []*ast.Node
	if p.match(token.Var) {
		vars = p.parseVarSection()
	}
	body := prependDecls(p.parseBlock(), vars)
	p.expect(token.Dot, "expected '.' after program body")
	if !p.check(token.EOF) {
		p.errorAt(p.current, "unexpected '%s' after end of program", describe(p.current))
	}
	return ast.NewProgram(tok, nameTok.Value, callables, body)
}
