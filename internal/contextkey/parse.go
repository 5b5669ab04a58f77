package contextkey

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrSyntax is wrapped by every ParseError.
var ErrSyntax = errors.New("contextkey: syntax error")

// ParseError describes where an expression failed to parse.
type ParseError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("contextkey: %s at offset %d in %q", e.Msg, e.Pos, e.Expr)
}

// Unwrap returns ErrSyntax.
func (e *ParseError) Unwrap() error { return ErrSyntax }

// Parse compiles a when clause. The empty string parses to an expression
// that is always true.
func Parse(src string) (Expr, error) {
	if strings.TrimSpace(src) == "" {
		return constExpr(true), nil
	}
	p := &parser{src: src}
	if err := p.lex(); err != nil {
		return nil, err
	}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok, "unexpected %q", tok.text)
	}
	return e, nil
}

// MustParse is Parse for expressions known at compile time.
func MustParse(src string) Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

// Evaluate parses src and evaluates it against ctx.
func Evaluate(src string, ctx Context) (bool, error) {
	e, err := Parse(src)
	if err != nil {
		return false, err
	}
	return e.Eval(ctx), nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokString
	tokRegex
	tokNot
	tokAnd
	tokOr
	tokEq
	tokNe
	tokMatch
	tokIn
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	pos  int
}

type parser struct {
	src  string
	toks []token
	i    int
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &ParseError{Expr: p.src, Pos: tok.pos, Msg: fmt.Sprintf(format, args...)}
}

func isIdentByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("_.-:/@$#", c) >= 0
}

func (p *parser) lex() error {
	s := p.src
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			p.toks = append(p.toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			p.toks = append(p.toks, token{tokRParen, ")", i})
			i++
		case strings.HasPrefix(s[i:], "&&"):
			p.toks = append(p.toks, token{tokAnd, "&&", i})
			i += 2
		case strings.HasPrefix(s[i:], "||"):
			p.toks = append(p.toks, token{tokOr, "||", i})
			i += 2
		case strings.HasPrefix(s[i:], "=="):
			p.toks = append(p.toks, token{tokEq, "==", i})
			i += 2
		case strings.HasPrefix(s[i:], "!="):
			p.toks = append(p.toks, token{tokNe, "!=", i})
			i += 2
		case strings.HasPrefix(s[i:], "=~"):
			p.toks = append(p.toks, token{tokMatch, "=~", i})
			i += 2
			end, err := p.lexRegex(i)
			if err != nil {
				return err
			}
			i = end
		case c == '!':
			p.toks = append(p.toks, token{tokNot, "!", i})
			i++
		case c == '\'' || c == '"':
			end := strings.IndexByte(s[i+1:], c)
			if end < 0 {
				return &ParseError{Expr: s, Pos: i, Msg: "unterminated string"}
			}
			p.toks = append(p.toks, token{tokString, s[i+1 : i+1+end], i})
			i += end + 2
		case isIdentByte(c):
			start := i
			for i < len(s) && isIdentByte(s[i]) {
				i++
			}
			word := s[start:i]
			kind := tokIdent
			if word == "in" {
				kind = tokIn
			}
			p.toks = append(p.toks, token{kind, word, start})
		default:
			return &ParseError{Expr: s, Pos: i, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	p.toks = append(p.toks, token{tokEOF, "", len(s)})
	return nil
}

// lexRegex reads a /pattern/flags literal starting at or after i.
func (p *parser) lexRegex(i int) (int, error) {
	s := p.src
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	if i >= len(s) || s[i] != '/' {
		return 0, &ParseError{Expr: s, Pos: i, Msg: "expected regular expression after =~"}
	}
	start := i
	i++
	var b strings.Builder
	for ; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == '/' {
			b.WriteByte('/')
			i++
			continue
		}
		if s[i] == '/' {
			break
		}
		b.WriteByte(s[i])
	}
	if i >= len(s) {
		return 0, &ParseError{Expr: s, Pos: start, Msg: "unterminated regular expression"}
	}
	i++
	flags := ""
	for i < len(s) && strings.IndexByte("gimsuy", s[i]) >= 0 {
		if s[i] == 'i' || s[i] == 'm' || s[i] == 's' {
			flags += string(s[i])
		}
		i++
	}
	pattern := b.String()
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	p.toks = append(p.toks, token{tokRegex, pattern, start})
	return i, nil
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []Expr{left}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return orExpr(terms), nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	terms := []Expr{left}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return andExpr(terms), nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().kind == tokNot {
		p.next()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notExpr{e}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.next()
	switch tok.kind {
	case tokLParen:
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected )")
		}
		return e, nil
	case tokIdent:
		return p.parseComparison(tok)
	case tokEOF:
		return nil, p.errorf(tok, "unexpected end of expression")
	default:
		return nil, p.errorf(tok, "unexpected %q", tok.text)
	}
}

func (p *parser) parseComparison(key token) (Expr, error) {
	switch p.peek().kind {
	case tokEq, tokNe:
		op := p.next()
		val := p.next()
		if val.kind != tokIdent && val.kind != tokString {
			return nil, p.errorf(val, "expected value after %s", op.text)
		}
		e := Expr(eqExpr{key: key.text, value: val.text})
		if op.kind == tokNe {
			e = notExpr{e}
		}
		return e, nil
	case tokMatch:
		p.next()
		lit := p.next()
		re, err := regexp.Compile(lit.text)
		if err != nil {
			return nil, p.errorf(lit, "invalid regular expression: %v", err)
		}
		return matchExpr{key: key.text, re: re}, nil
	case tokIn:
		p.next()
		list := p.next()
		if list.kind != tokIdent {
			return nil, p.errorf(list, "expected key after in")
		}
		return inExpr{key: key.text, list: list.text}, nil
	}

	switch key.text {
	case "true":
		return constExpr(true), nil
	case "false":
		return constExpr(false), nil
	}
	return keyExpr(key.text), nil
}
