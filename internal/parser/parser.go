// Package parser builds an ast.Program from a lexer.Token stream: a
// recursive-descent parser for statements and a precedence-climbing
// (Pratt) parser for expressions. Like lexer, it is an external
// collaborator to the typecheck/compile/vm core — its only contract
// is the ast.Program shape it produces.
package parser

import (
	"github.com/aldezex/moon/internal/ast"
	"github.com/aldezex/moon/internal/lexer"
	"github.com/aldezex/moon/internal/span"
)

type parser struct {
	tokens []lexer.Token
	pos    int
}

// Parse lexes and parses src in one call.
func Parse(src string) (*ast.Program, error) {
	tokens, err := lexer.Lex(src)
	if err != nil {
		return nil, err
	}
	return ParseTokens(tokens)
}

// ParseTokens parses an already-lexed token stream.
func ParseTokens(tokens []lexer.Token) (*ast.Program, error) {
	p := &parser{tokens: tokens}
	stmts, tail, err := p.parseStmts(lexer.Eof)
	if err != nil {
		return nil, err
	}
	return &ast.Program{Stmts: stmts, Tail: tail}, nil
}

// parseStmts parses statements until the next token is term, returning
// a trailing tail expression when the block ends without a final ';'.
func (p *parser) parseStmts(term lexer.Kind) ([]ast.Stmt, ast.Expr, error) {
	var stmts []ast.Stmt

	for p.peek().Kind != term {
		switch p.peek().Kind {
		case lexer.KwFn:
			if p.tokens[p.pos+1].Kind == lexer.Ident {
				stmt, err := p.parseFnDecl()
				if err != nil {
					return nil, nil, err
				}
				stmts = append(stmts, stmt)
				continue
			}
		case lexer.KwLet:
			stmt, err := p.parseLetStmt()
			if err != nil {
				return nil, nil, err
			}
			stmts = append(stmts, stmt)
			continue
		case lexer.KwReturn:
			stmt, err := p.parseReturnStmt()
			if err != nil {
				return nil, nil, err
			}
			stmts = append(stmts, stmt)
			continue
		}

		expr, err := p.parseExpr(0)
		if err != nil {
			return nil, nil, err
		}

		switch p.peek().Kind {
		case lexer.Equal:
			p.next()
			rhs, err := p.parseExpr(0)
			if err != nil {
				return nil, nil, err
			}
			if err := p.expectAssignTarget(expr); err != nil {
				return nil, nil, err
			}
			semi, err := p.expect(lexer.Semicolon, "expected ';' after assignment")
			if err != nil {
				return nil, nil, err
			}
			stmts = append(stmts, &ast.AssignStmt{
				Target: expr,
				Expr:   rhs,
				Sp:     span.Cover(expr.Span(), semi.Span),
			})

		case lexer.Semicolon:
			semi := p.next()
			stmts = append(stmts, &ast.ExprStmt{Expr: expr, Sp: span.Cover(expr.Span(), semi.Span)})

		case term:
			return stmts, expr, nil

		default:
			return nil, nil, errf(expr.Span(), "expected ';' after expression")
		}
	}

	return stmts, nil, nil
}

func (p *parser) expectAssignTarget(target ast.Expr) error {
	switch target.(type) {
	case *ast.Ident, *ast.Index:
		return nil
	default:
		return errf(target.Span(), "invalid assignment target")
	}
}

func (p *parser) parseLetStmt() (ast.Stmt, error) {
	letTok := p.next() // 'let'

	nameTok, err := p.expect(lexer.Ident, "expected identifier after 'let'")
	if err != nil {
		return nil, err
	}

	var ann ast.TypeExpr
	if p.peek().Kind == lexer.Colon {
		p.next()
		ann, err = p.parseType()
		if err != nil {
			return nil, err
		}
	}

	if _, err := p.expect(lexer.Equal, "expected '=' after identifier"); err != nil {
		return nil, err
	}
	expr, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	semi, err := p.expect(lexer.Semicolon, "expected ';' after let statement")
	if err != nil {
		return nil, err
	}

	return &ast.LetStmt{
		Name: nameTok.SVal,
		Ann:  ann,
		Expr: expr,
		Sp:   span.Cover(letTok.Span, semi.Span),
	}, nil
}

func (p *parser) parseReturnStmt() (ast.Stmt, error) {
	retTok := p.next() // 'return'

	var expr ast.Expr
	if p.peek().Kind != lexer.Semicolon {
		var err error
		expr, err = p.parseExpr(0)
		if err != nil {
			return nil, err
		}
	}
	semi, err := p.expect(lexer.Semicolon, "expected ';' after return statement")
	if err != nil {
		return nil, err
	}

	return &ast.ReturnStmt{Expr: expr, Sp: span.Cover(retTok.Span, semi.Span)}, nil
}

func (p *parser) parseFnDecl() (ast.Stmt, error) {
	fnTok := p.next() // 'fn'
	nameTok, err := p.expect(lexer.Ident, "expected function name")
	if err != nil {
		return nil, err
	}
	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	retTy, err := p.parseReturnType()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	return &ast.FnStmt{
		Name:   nameTok.SVal,
		Params: params,
		RetTy:  retTy,
		Body:   body,
		Sp:     span.Cover(fnTok.Span, body.Span()),
	}, nil
}

// parseParams parses "(name: Type, ...)" including the parentheses.
func (p *parser) parseParams() ([]ast.Param, error) {
	if _, err := p.expect(lexer.LParen, "expected '(' after function name"); err != nil {
		return nil, err
	}

	var params []ast.Param
	for p.peek().Kind != lexer.RParen {
		nameTok, err := p.expect(lexer.Ident, "expected parameter name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon, "expected ':' after parameter name"); err != nil {
			return nil, err
		}
		ty, err := p.parseType()
		if err != nil {
			return nil, err
		}
		params = append(params, ast.Param{Name: nameTok.SVal, Ty: ty})

		if p.peek().Kind == lexer.Comma {
			p.next()
			continue
		}
		break
	}

	if _, err := p.expect(lexer.RParen, "expected ')' after parameters"); err != nil {
		return nil, err
	}
	return params, nil
}

// parseReturnType parses the optional "-> Type" following a parameter
// list. A missing arrow defaults to Unit, matching a procedure with no
// declared return value.
func (p *parser) parseReturnType() (ast.TypeExpr, error) {
	if p.peek().Kind != lexer.Arrow {
		return &ast.NamedType{Name: "Unit", Sp: p.peek().Span}, nil
	}
	p.next() // '->'
	return p.parseType()
}

func (p *parser) parseType() (ast.TypeExpr, error) {
	nameTok, err := p.expect(lexer.Ident, "expected type name")
	if err != nil {
		return nil, err
	}

	if p.peek().Kind == lexer.Less {
		p.next()
		arg, err := p.parseType()
		if err != nil {
			return nil, err
		}
		closeTok, err := p.expect(lexer.Greater, "expected '>' after type argument")
		if err != nil {
			return nil, err
		}
		return &ast.GenericType{
			Base: nameTok.SVal,
			Args: []ast.TypeExpr{arg},
			Sp:   span.Cover(nameTok.Span, closeTok.Span),
		}, nil
	}

	return &ast.NamedType{Name: nameTok.SVal, Sp: nameTok.Span}, nil
}

func (p *parser) parseBlock() (*ast.Block, error) {
	open, err := p.expect(lexer.LBrace, "expected '{'")
	if err != nil {
		return nil, err
	}
	stmts, tail, err := p.parseStmts(lexer.RBrace)
	if err != nil {
		return nil, err
	}
	close, err := p.expect(lexer.RBrace, "expected '}'")
	if err != nil {
		return nil, err
	}
	return &ast.Block{Stmts: stmts, Tail: tail, Sp: span.Cover(open.Span, close.Span)}, nil
}

// --- Expressions ---

var infixPrec = map[lexer.Kind]struct {
	op   ast.BinaryOp
	prec int
}{
	lexer.OrOr:          {ast.Or, 1},
	lexer.AndAnd:        {ast.And, 2},
	lexer.EqualEqual:    {ast.Eq, 3},
	lexer.BangEqual:     {ast.Ne, 3},
	lexer.Less:          {ast.Lt, 4},
	lexer.LessEqual:     {ast.Le, 4},
	lexer.Greater:       {ast.Gt, 4},
	lexer.GreaterEqual:  {ast.Ge, 4},
	lexer.Plus:          {ast.Add, 5},
	lexer.Minus:         {ast.Sub, 5},
	lexer.Star:          {ast.Mul, 6},
	lexer.Slash:         {ast.Div, 6},
	lexer.Percent:       {ast.Mod, 6},
}

func (p *parser) parseExpr(minPrec int) (ast.Expr, error) {
	lhs, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}

	for {
		info, ok := infixPrec[p.peek().Kind]
		if !ok || info.prec < minPrec {
			break
		}
		p.next()
		rhs, err := p.parseExpr(info.prec + 1)
		if err != nil {
			return nil, err
		}
		lhs = &ast.BinaryExpr{Lhs: lhs, Op: info.op, Rhs: rhs, Sp: span.Cover(lhs.Span(), rhs.Span())}
	}

	return lhs, nil
}

// parsePostfix parses a prefix expression followed by any chain of
// call/index postfix operators, which bind tighter than any binary op.
func (p *parser) parsePostfix() (ast.Expr, error) {
	e, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	for {
		switch p.peek().Kind {
		case lexer.LParen:
			p.next()
			var args []ast.Expr
			for p.peek().Kind != lexer.RParen {
				arg, err := p.parseExpr(0)
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.peek().Kind == lexer.Comma {
					p.next()
					continue
				}
				break
			}
			close, err := p.expect(lexer.RParen, "expected ')' after arguments")
			if err != nil {
				return nil, err
			}
			e = &ast.Call{Callee: e, Args: args, Sp: span.Cover(e.Span(), close.Span)}

		case lexer.LBracket:
			p.next()
			idx, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			close, err := p.expect(lexer.RBracket, "expected ']' after index")
			if err != nil {
				return nil, err
			}
			e = &ast.Index{Target: e, Idx: idx, Sp: span.Cover(e.Span(), close.Span)}

		default:
			return e, nil
		}
	}
}

func (p *parser) parsePrefix() (ast.Expr, error) {
	switch p.peek().Kind {
	case lexer.LBrace:
		return p.parseBlock()
	case lexer.KwIf:
		tok := p.next()
		return p.parseIfFrom(tok.Span)
	case lexer.KwFn:
		tok := p.next()
		return p.parseFnExprFrom(tok.Span)
	}

	tok := p.next()
	switch tok.Kind {
	case lexer.Int:
		return &ast.IntLit{Value: tok.IVal, Sp: tok.Span}, nil
	case lexer.KwTrue:
		return &ast.BoolLit{Value: true, Sp: tok.Span}, nil
	case lexer.KwFalse:
		return &ast.BoolLit{Value: false, Sp: tok.Span}, nil
	case lexer.String:
		return &ast.StringLit{Value: tok.SVal, Sp: tok.Span}, nil
	case lexer.Ident:
		return &ast.Ident{Name: tok.SVal, Sp: tok.Span}, nil

	case lexer.Minus:
		operand, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: ast.Neg, Expr: operand, Sp: span.Cover(tok.Span, operand.Span())}, nil

	case lexer.Bang:
		operand, err := p.parsePostfix()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: ast.Not, Expr: operand, Sp: span.Cover(tok.Span, operand.Span())}, nil

	case lexer.LParen:
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		close, err := p.expect(lexer.RParen, "expected ')'")
		if err != nil {
			return nil, err
		}
		return &ast.Group{Expr: inner, Sp: span.Cover(tok.Span, close.Span)}, nil

	case lexer.LBracket:
		var elems []ast.Expr
		for p.peek().Kind != lexer.RBracket {
			el, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			elems = append(elems, el)
			if p.peek().Kind == lexer.Comma {
				p.next()
				continue
			}
			break
		}
		close, err := p.expect(lexer.RBracket, "expected ']' after array literal")
		if err != nil {
			return nil, err
		}
		return &ast.ArrayLit{Elements: elems, Sp: span.Cover(tok.Span, close.Span)}, nil

	case lexer.Hash:
		if _, err := p.expect(lexer.LBrace, "expected '{' after '#'"); err != nil {
			return nil, err
		}
		var props []ast.ObjectProp
		for p.peek().Kind != lexer.RBrace {
			keyTok := p.next()
			var key string
			switch keyTok.Kind {
			case lexer.Ident:
				key = keyTok.SVal
			case lexer.String:
				key = keyTok.SVal
			default:
				return nil, errf(keyTok.Span, "expected object key")
			}
			if _, err := p.expect(lexer.Colon, "expected ':' after object key"); err != nil {
				return nil, err
			}
			val, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			props = append(props, ast.ObjectProp{Key: key, Value: val})
			if p.peek().Kind == lexer.Comma {
				p.next()
				continue
			}
			break
		}
		close, err := p.expect(lexer.RBrace, "expected '}' after object literal")
		if err != nil {
			return nil, err
		}
		return &ast.ObjectLit{Props: props, Sp: span.Cover(tok.Span, close.Span)}, nil

	default:
		return nil, errf(tok.Span, "unexpected token in expression")
	}
}

func (p *parser) parseIfFrom(ifSpan span.Span) (ast.Expr, error) {
	cond, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	var elseExpr ast.Expr
	endSpan := then.Span()
	if p.peek().Kind == lexer.KwElse {
		p.next()
		if p.peek().Kind == lexer.KwIf {
			elseTok := p.next()
			elseExpr, err = p.parseIfFrom(elseTok.Span)
		} else {
			elseExpr, err = p.parseBlock()
		}
		if err != nil {
			return nil, err
		}
		endSpan = elseExpr.Span()
	}

	return &ast.If{Cond: cond, Then: then, Else: elseExpr, Sp: span.Cover(ifSpan, endSpan)}, nil
}

func (p *parser) parseFnExprFrom(fnSpan span.Span) (ast.Expr, error) {
	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	retTy, err := p.parseReturnType()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FnExpr{Params: params, RetTy: retTy, Body: body, Sp: span.Cover(fnSpan, body.Span())}, nil
}

// --- Token stream helpers ---

func (p *parser) peek() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

func (p *parser) next() lexer.Token {
	tok := p.peek()
	if tok.Kind != lexer.Eof {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind lexer.Kind, message string) (lexer.Token, error) {
	tok := p.peek()
	if tok.Kind != kind {
		return lexer.Token{}, errf(tok.Span, "%s", message)
	}
	return p.next(), nil
}
