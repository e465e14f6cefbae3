package tools

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/maestro-ai/maestro/pkg/models"
)

// Calculator evaluates arithmetic expressions deterministically, with
// no LLM or network involved. Supports + - * / ^, parentheses, percent
// forms ("15% of 1500"), and sqrt/abs/round.
type Calculator struct{}

// NewCalculator creates the calculator adapter.
func NewCalculator() *Calculator { return &Calculator{} }

func (c *Calculator) Kind() models.Tool { return models.ToolCalculator }

// Configured is always true: the calculator has no backend.
func (c *Calculator) Configured() bool { return true }

func (c *Calculator) Run(ctx context.Context, query string, _ Options) ([]models.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := Evaluate(query)
	if err != nil {
		return nil, err
	}
	return []models.Evidence{{Text: FormatNumber(result), Source: "calculator"}}, nil
}

// percentOfPattern matches "15% of 1500" style phrases.
var percentOfPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%\s*of\s*(-?\d+(?:\.\d+)?)`)

// fillerPattern strips the question scaffolding around an expression.
var fillerPattern = regexp.MustCompile(`(?i)\b(what\s+is|what's|calculate|compute|how\s+much\s+is|evaluate|please)\b`)

// Evaluate parses and computes an arithmetic expression extracted from
// free-form text.
func Evaluate(input string) (float64, error) {
	expr := strings.ToLower(strings.TrimSpace(input))
	expr = fillerPattern.ReplaceAllString(expr, " ")
	expr = strings.Trim(expr, " ?=.")

	// "x% of y" → "(x/100*y)"
	expr = percentOfPattern.ReplaceAllString(expr, "($1/100*$2)")

	p := &exprParser{input: expr}
	p.next()
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.token.kind != tokenEOF {
		return 0, fmt.Errorf("unexpected %q in expression", p.token.text)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("expression has no finite result")
	}
	return value, nil
}

// FormatNumber renders a result without trailing noise: integers stay
// integers, everything else keeps up to six significant decimals.
func FormatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', 10, 64)
}

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenIdent
	tokenOp
)

type token struct {
	kind  tokenKind
	text  string
	value float64
}

type exprParser struct {
	input string
	pos   int
	token token
}

func (p *exprParser) next() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
	if p.pos >= len(p.input) {
		p.token = token{kind: tokenEOF}
		return
	}

	ch := p.input[p.pos]
	switch {
	case ch >= '0' && ch <= '9' || ch == '.':
		start := p.pos
		for p.pos < len(p.input) && (p.input[p.pos] >= '0' && p.input[p.pos] <= '9' || p.input[p.pos] == '.') {
			p.pos++
		}
		text := p.input[start:p.pos]
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.token = token{kind: tokenOp, text: text}
			return
		}
		p.token = token{kind: tokenNumber, text: text, value: value}

	case ch >= 'a' && ch <= 'z':
		start := p.pos
		for p.pos < len(p.input) && p.input[p.pos] >= 'a' && p.input[p.pos] <= 'z' {
			p.pos++
		}
		p.token = token{kind: tokenIdent, text: p.input[start:p.pos]}

	default:
		p.pos++
		p.token = token{kind: tokenOp, text: string(ch)}
	}
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for p.token.kind == tokenOp && (p.token.text == "+" || p.token.text == "-") {
		op := p.token.text
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
	return left, nil
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parsePower()
	if err != nil {
		return 0, err
	}
	for p.token.kind == tokenOp && (p.token.text == "*" || p.token.text == "/") ||
		p.token.kind == tokenIdent && p.token.text == "x" {
		op := p.token.text
		p.next()
		right, err := p.parsePower()
		if err != nil {
			return 0, err
		}
		if op == "/" {
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		} else {
			left *= right
		}
	}
	return left, nil
}

func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	if p.token.kind == tokenOp && p.token.text == "^" {
		p.next()
		exponent, err := p.parsePower()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exponent), nil
	}
	return base, nil
}

func (p *exprParser) parseUnary() (float64, error) {
	if p.token.kind == tokenOp && p.token.text == "-" {
		p.next()
		value, err := p.parseUnary()
		return -value, err
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (float64, error) {
	switch {
	case p.token.kind == tokenNumber:
		value := p.token.value
		p.next()
		// Bare percent: "20%" → 0.2
		if p.token.kind == tokenOp && p.token.text == "%" {
			p.next()
			value /= 100
		}
		return value, nil

	case p.token.kind == tokenIdent:
		name := p.token.text
		p.next()
		switch name {
		case "pi":
			return math.Pi, nil
		case "e":
			return math.E, nil
		case "sqrt", "abs", "round":
			arg, err := p.parseParenArg(name)
			if err != nil {
				return 0, err
			}
			switch name {
			case "sqrt":
				if arg < 0 {
					return 0, fmt.Errorf("sqrt of negative number")
				}
				return math.Sqrt(arg), nil
			case "abs":
				return math.Abs(arg), nil
			default:
				return math.Round(arg), nil
			}
		default:
			return 0, fmt.Errorf("unknown function %q", name)
		}

	case p.token.kind == tokenOp && p.token.text == "(":
		p.next()
		value, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.token.kind != tokenOp || p.token.text != ")" {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.next()
		return value, nil
	}
	return 0, fmt.Errorf("expected a number, got %q", p.token.text)
}

func (p *exprParser) parseParenArg(fn string) (float64, error) {
	if p.token.kind != tokenOp || p.token.text != "(" {
		return 0, fmt.Errorf("%s requires parentheses", fn)
	}
	p.next()
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.token.kind != tokenOp || p.token.text != ")" {
		return 0, fmt.Errorf("missing closing parenthesis after %s", fn)
	}
	p.next()
	return value, nil
}
