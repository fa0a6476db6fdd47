package predicate

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode"
)

// Parse reads a filter expression such as
//
//	age > 30 AND (city = 'nyc' OR city IS NULL)
//
// AND binds tighter than OR. Literals are integers, decimals, single-quoted
// strings, true/false and NULL. A double-quoted name is an identifier, so it
// may name the column but never stands for a constant. Decimals that a
// float64 cannot hold exactly are returned as *big.Rat.
func Parse(expr string) (Filter, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	f, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, fmt.Errorf("predicate: unexpected %q", p.peek().text)
	}
	return f, nil
}

// maxExponent bounds the exponent of a numeric literal.
const maxExponent = 400

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokQuotedIdent
	tokOp
	tokNumber
	tokString
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := rune(s[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '\'' || c == '"':
			var sb strings.Builder
			j := i + 1
			for ; j < len(s); j++ {
				if rune(s[j]) == c {
					if j+1 < len(s) && rune(s[j+1]) == c {
						sb.WriteByte(s[j])
						j++
						continue
					}
					break
				}
				sb.WriteByte(s[j])
			}
			if j >= len(s) {
				return nil, fmt.Errorf("predicate: unterminated string at %d", i)
			}
			kind := tokString
			if c == '"' {
				kind = tokQuotedIdent
			}
			toks = append(toks, token{kind, sb.String()})
			i = j + 1
		case strings.ContainsRune("=!<>", c):
			j := i + 1
			for j < len(s) && strings.ContainsRune("=<>", rune(s[j])) {
				j++
			}
			toks = append(toks, token{tokOp, s[i:j]})
			i = j
		case c == '-' || c == '.' || unicode.IsDigit(c):
			j := i + 1
			for j < len(s) && (unicode.IsDigit(rune(s[j])) || strings.ContainsRune(".eE+-", rune(s[j]))) {
				j++
			}
			toks = append(toks, token{tokNumber, s[i:j]})
			i = j
		case unicode.IsLetter(c) || c == '_':
			j := i + 1
			for j < len(s) && (unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j])) || s[j] == '_' || s[j] == '.') {
				j++
			}
			toks = append(toks, token{tokIdent, s[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("predicate: unexpected character %q at %d", c, i)
		}
	}
	return toks, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) done() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() token {
	if p.done() {
		return token{}
	}
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseOr() (Filter, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Filter{left}
	for p.keyword("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return Or{Children: children}, nil
}

func (p *parser) parseAnd() (Filter, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	children := []Filter{left}
	for p.keyword("AND") {
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return And{Children: children}, nil
}

func (p *parser) parseTerm() (Filter, error) {
	if p.peek().kind == tokLParen {
		p.next()
		f, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("predicate: missing )")
		}
		return f, nil
	}

	if p.done() {
		return nil, fmt.Errorf("predicate: unexpected end of expression")
	}
	col := p.next()
	if col.kind != tokIdent && col.kind != tokQuotedIdent {
		return nil, fmt.Errorf("predicate: expected column, got %q", col.text)
	}
	if p.keyword("IS") {
		not := p.keyword("NOT")
		if !p.keyword("NULL") {
			return nil, fmt.Errorf("predicate: expected NULL after IS")
		}
		if not {
			return IsNotNull{Column: col.text}, nil
		}
		return IsNull{Column: col.text}, nil
	}

	opTok := p.next()
	if opTok.kind != tokOp {
		return nil, fmt.Errorf("predicate: expected operator after %s", col.text)
	}
	op, err := parseOp(opTok.text)
	if err != nil {
		return nil, err
	}
	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return Comparison{Column: col.text, Op: op, Value: lit}, nil
}

func parseOp(s string) (Op, error) {
	switch s {
	case "=", "==":
		return OpEq, nil
	case "!=", "<>":
		return OpNotEq, nil
	case ">":
		return OpGt, nil
	case ">=":
		return OpGtEq, nil
	case "<":
		return OpLt, nil
	case "<=":
		return OpLtEq, nil
	}
	return 0, fmt.Errorf("predicate: unknown operator %q", s)
}

func (p *parser) parseLiteral() (any, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return t.text, nil
	case tokNumber:
		if i, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("predicate: bad number %q", t.text)
		}
		if i := strings.IndexAny(t.text, "eE"); i >= 0 {
			if exp, err := strconv.Atoi(t.text[i+1:]); err != nil || exp > maxExponent || exp < -maxExponent {
				return nil, fmt.Errorf("predicate: exponent out of range in %q", t.text)
			}
		}
		exact, ok := new(big.Rat).SetString(t.text)
		if !ok {
			return nil, fmt.Errorf("predicate: bad number %q", t.text)
		}
		if shortest, _ := new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64)); shortest.Cmp(exact) != 0 {
			return exact, nil
		}
		return f, nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		}
	}
	if t.kind == tokIdent || t.kind == tokQuotedIdent {
		return nil, fmt.Errorf("predicate: comparing to column %q is not supported", t.text)
	}
	return nil, fmt.Errorf("predicate: expected literal, got %q", t.text)
}
