package marker

import (
	"strings"

	"github.com/matzehuels/wheelhouse/pkg/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLParen
	tokRParen
	tokIdent
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Parse parses marker text. Malformed input fails with an
// errors.ErrCodeInvalidMarker parse error pointing at the offending token.
func Parse(text string) (Expr, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{in: text, toks: toks}
	if p.peek().kind == tokEOF {
		return nil, p.fail(p.peek(), "empty marker")
	}
	expr, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.fail(t, "unexpected %q", t.text)
	}
	return expr, nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string) Expr {
	e, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return e
}

var comparisonOps = []string{"===", "==", "!=", "<=", ">=", "~=", "<", ">"}

func lex(in string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(in) {
		c := in[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(in[i+1:], c)
			if end < 0 {
				return nil, errors.Parse(errors.ErrCodeInvalidMarker, in, i, "unterminated string")
			}
			toks = append(toks, token{tokString, in[i+1 : i+1+end], i})
			i += end + 2
		case isIdentStart(c):
			start := i
			for i < len(in) && isIdentChar(in[i]) {
				i++
			}
			toks = append(toks, token{tokIdent, in[start:i], start})
		default:
			op := ""
			for _, candidate := range comparisonOps {
				if strings.HasPrefix(in[i:], candidate) {
					op = candidate
					break
				}
			}
			if op == "" {
				return nil, errors.Parse(errors.ErrCodeInvalidMarker, in, i, "unexpected character %q", c)
			}
			toks = append(toks, token{tokOp, op, i})
			i += len(op)
		}
	}
	return append(toks, token{tokEOF, "", len(in)}), nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c == '.' || (c >= '0' && c <= '9')
}

type parser struct {
	in   string
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) keyword(word string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == word
}

func (p *parser) fail(t token, format string, args ...any) error {
	return errors.Parse(errors.ErrCodeInvalidMarker, p.in, t.pos, format, args...)
}

func (p *parser) orExpr() (Expr, error) {
	first, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	terms := []Expr{first}
	for p.keyword("or") {
		p.next()
		e, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		terms = append(terms, e)
	}
	return Combine("or", terms...), nil
}

func (p *parser) andExpr() (Expr, error) {
	first, err := p.atom()
	if err != nil {
		return nil, err
	}
	terms := []Expr{first}
	for p.keyword("and") {
		p.next()
		e, err := p.atom()
		if err != nil {
			return nil, err
		}
		terms = append(terms, e)
	}
	return Combine("and", terms...), nil
}

func (p *parser) atom() (Expr, error) {
	if p.peek().kind == tokLParen {
		p.next()
		e, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokRParen {
			return nil, p.fail(t, "expected \")\"")
		}
		return e, nil
	}

	left, err := p.value()
	if err != nil {
		return nil, err
	}
	op, err := p.op()
	if err != nil {
		return nil, err
	}
	right, err := p.value()
	if err != nil {
		return nil, err
	}
	return &Compare{Left: left, Op: op, Right: right}, nil
}

func (p *parser) value() (Value, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return Lit(t.text), nil
	case tokIdent:
		switch t.text {
		case "and", "or", "in", "not":
			return Value{}, p.fail(t, "expected marker variable or string, got %q", t.text)
		}
		return Var(strings.ToLower(t.text)), nil
	case tokEOF:
		return Value{}, p.fail(t, "expected marker variable or string")
	}
	return Value{}, p.fail(t, "expected marker variable or string, got %q", t.text)
}

func (p *parser) op() (Op, error) {
	t := p.next()
	switch {
	case t.kind == tokOp:
		return Op(t.text), nil
	case t.kind == tokIdent && t.text == "in":
		return OpIn, nil
	case t.kind == tokIdent && t.text == "not":
		if !p.keyword("in") {
			return "", p.fail(p.peek(), "expected \"in\" after \"not\"")
		}
		p.next()
		return OpNotIn, nil
	}
	return "", p.fail(t, "expected comparison operator")
}
