package flow

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// evalExpr evaluates a small arithmetic expression over +, -, *, /, parens,
// unary minus, numeric literals and identifiers resolved from the context
// (plus the implicit iteration counter).
func evalExpr(text string, ctx *Context, iteration int) (float64, error) {
	p := &exprParser{input: text, ctx: ctx, iteration: iteration}

	value, err := p.parseSum()
	if err != nil {
		return 0, err
	}

	p.skipSpace()
	if p.pos != len(p.input) {
		return 0, fmt.Errorf("flow: unexpected %q in expression", p.input[p.pos:])
	}

	return value, nil
}

type exprParser struct {
	input     string
	pos       int
	ctx       *Context
	iteration int
}

func (p *exprParser) parseSum() (float64, error) {
	value, err := p.parseProduct()
	if err != nil {
		return 0, err
	}

	for {
		p.skipSpace()
		switch {
		case p.accept('+'):
			rhs, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			value += rhs
		case p.accept('-'):
			rhs, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			value -= rhs
		default:
			return value, nil
		}
	}
}

func (p *exprParser) parseProduct() (float64, error) {
	value, err := p.parseUnary()
	if err != nil {
		return 0, err
	}

	for {
		p.skipSpace()
		switch {
		case p.accept('*'):
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			value *= rhs
		case p.accept('/'):
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, fmt.Errorf("flow: division by zero in expression")
			}
			value /= rhs
		default:
			return value, nil
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	p.skipSpace()
	if p.accept('-') {
		value, err := p.parseUnary()
		return -value, err
	}

	return p.parseAtom()
}

func (p *exprParser) parseAtom() (float64, error) {
	p.skipSpace()

	if p.accept('(') {
		value, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if !p.accept(')') {
			return 0, fmt.Errorf("flow: missing closing paren in expression")
		}
		return value, nil
	}

	if p.pos >= len(p.input) {
		return 0, fmt.Errorf("flow: unexpected end of expression")
	}

	c := p.input[p.pos]

	if c >= '0' && c <= '9' || c == '.' {
		start := p.pos
		for p.pos < len(p.input) && (p.input[p.pos] >= '0' && p.input[p.pos] <= '9' || p.input[p.pos] == '.') {
			p.pos++
		}
		return strconv.ParseFloat(p.input[start:p.pos], 64)
	}

	if isIdentStart(rune(c)) {
		start := p.pos
		for p.pos < len(p.input) && isIdentPart(rune(p.input[p.pos])) {
			p.pos++
		}
		name := p.input[start:p.pos]

		if name == "iteration" {
			return float64(p.iteration), nil
		}
		if p.ctx != nil {
			if v, ok := p.ctx.Vars[name]; ok {
				if n, ok := asFloat(v); ok {
					return n, nil
				}
			}
		}
		return 0, fmt.Errorf("flow: unresolved identifier %q in expression", name)
	}

	return 0, fmt.Errorf("flow: unexpected character %q in expression", c)
}

func (p *exprParser) accept(c byte) bool {
	if p.pos < len(p.input) && p.input[p.pos] == c {
		p.pos++
		return true
	}

	return false
}

func (p *exprParser) skipSpace() {
	p.pos += len(p.input[p.pos:]) - len(strings.TrimLeft(p.input[p.pos:], " \t"))
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
