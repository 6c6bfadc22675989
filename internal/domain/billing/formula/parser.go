package formula

import (
	"github.com/shopspring/decimal"
)

type node interface {
	eval(vars Variables) (decimal.Decimal, error)
}

type numberNode struct {
	value decimal.Decimal
}

type variableNode struct {
	name string
}

type unaryNode struct {
	op      string
	operand node
}

type binaryNode struct {
	op          string
	left, right node
}

type callNode struct {
	fn   function
	args []node
}

type parser struct {
	tokens   []token
	pos      int
	depth    int
	maxDepth int
	idents   map[string]struct{}
}

func parse(tokens []token, maxDepth int) (node, map[string]struct{}, error) {
	p := &parser{tokens: tokens, maxDepth: maxDepth, idents: make(map[string]struct{})}
	if p.peek().kind == tokenEOF {
		return nil, nil, syntaxError(0, "formula is empty")
	}
	root, err := p.parseComparison()
	if err != nil {
		return nil, nil, err
	}
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, nil, syntaxError(tok.pos, "unexpected token %q", tok.text)
	}
	return root, p.idents, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) enter(pos int) error {
	p.depth++
	if p.depth > p.maxDepth {
		return syntaxError(pos, "nesting deeper than %d levels", p.maxDepth)
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

// comparison := additive (cmp additive)*
func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokenCompare {
		op := p.next().text
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

// additive := term (('+' | '-') term)*
func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for tok := p.peek(); tok.kind == tokenOperator && (tok.text == "+" || tok.text == "-"); tok = p.peek() {
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: tok.text, left: left, right: right}
	}
	return left, nil
}

// term := unary (('*' | '/') unary)*
func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for tok := p.peek(); tok.kind == tokenOperator && (tok.text == "*" || tok.text == "/"); tok = p.peek() {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: tok.text, left: left, right: right}
	}
	return left, nil
}

// unary := ('+' | '-') unary | power
func (p *parser) parseUnary() (node, error) {
	tok := p.peek()
	if tok.kind == tokenOperator && (tok.text == "+" || tok.text == "-") {
		p.next()
		if err := p.enter(tok.pos); err != nil {
			return nil, err
		}
		defer p.leave()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if tok.text == "+" {
			return operand, nil
		}
		return &unaryNode{op: "-", operand: operand}, nil
	}
	return p.parsePower()
}

// power := primary ('^' unary)?   (right associative, binds tighter than unary minus)
func (p *parser) parsePower() (node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind == tokenOperator && tok.text == "^" {
		p.next()
		if err := p.enter(tok.pos); err != nil {
			return nil, err
		}
		defer p.leave()
		exponent, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: "^", left: base, right: exponent}, nil
	}
	return base, nil
}

// primary := number | ident | ident '(' args ')' | '(' comparison ')'
func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokenNumber:
		return &numberNode{value: tok.value}, nil
	case tokenIdent:
		if p.peek().kind == tokenLParen {
			return p.parseCall(tok)
		}
		p.idents[tok.text] = struct{}{}
		return &variableNode{name: tok.text}, nil
	case tokenLParen:
		if err := p.enter(tok.pos); err != nil {
			return nil, err
		}
		defer p.leave()
		inner, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokenRParen {
			return nil, syntaxError(closing.pos, "expected ')'")
		}
		return inner, nil
	case tokenEOF:
		return nil, syntaxError(tok.pos, "unexpected end of formula")
	default:
		return nil, syntaxError(tok.pos, "unexpected token %q", tok.text)
	}
}

func (p *parser) parseCall(name token) (node, error) {
	fn, ok := functions[name.text]
	if !ok {
		return nil, syntaxError(name.pos, "function %q is not allowed", name.text)
	}
	open := p.next()
	if err := p.enter(open.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	var args []node
	if p.peek().kind != tokenRParen {
		for {
			arg, err := p.parseComparison()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokenComma {
				break
			}
			p.next()
		}
	}
	if closing := p.next(); closing.kind != tokenRParen {
		return nil, syntaxError(closing.pos, "expected ')' after arguments of %s", name.text)
	}
	if len(args) < fn.minArgs || len(args) > fn.maxArgs {
		if fn.minArgs == fn.maxArgs {
			return nil, syntaxError(name.pos, "%s expects %d argument(s), got %d", name.text, fn.minArgs, len(args))
		}
		return nil, syntaxError(name.pos, "%s expects %d to %d arguments, got %d", name.text, fn.minArgs, fn.maxArgs, len(args))
	}
	return &callNode{fn: fn, args: args}, nil
}
