package contextkey

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Expr is a compiled when clause.
type Expr interface {
	Eval(ctx Context) bool
	String() string
	keys(into map[string]struct{})
}

// Keys returns the context keys an expression reads, sorted.
func Keys(e Expr) []string {
	set := make(map[string]struct{})
	e.keys(set)
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type constExpr bool

func (c constExpr) Eval(Context) bool      { return bool(c) }
func (c constExpr) String() string         { return strconv.FormatBool(bool(c)) }
func (constExpr) keys(map[string]struct{}) {}

type keyExpr string

func (k keyExpr) Eval(ctx Context) bool {
	v, ok := ctx.Value(string(k))
	return ok && truthy(v)
}
func (k keyExpr) String() string                { return string(k) }
func (k keyExpr) keys(into map[string]struct{}) { into[string(k)] = struct{}{} }

type notExpr struct{ e Expr }

func (n notExpr) Eval(ctx Context) bool { return !n.e.Eval(ctx) }
func (n notExpr) String() string {
	if eq, ok := n.e.(eqExpr); ok {
		return eq.key + " != " + quote(eq.value)
	}
	return "!" + wrap(n.e)
}
func (n notExpr) keys(into map[string]struct{}) { n.e.keys(into) }

type andExpr []Expr

func (a andExpr) Eval(ctx Context) bool {
	for _, e := range a {
		if !e.Eval(ctx) {
			return false
		}
	}
	return true
}
func (a andExpr) String() string { return join(a, " && ") }
func (a andExpr) keys(into map[string]struct{}) {
	for _, e := range a {
		e.keys(into)
	}
}

type orExpr []Expr

func (o orExpr) Eval(ctx Context) bool {
	for _, e := range o {
		if e.Eval(ctx) {
			return true
		}
	}
	return false
}
func (o orExpr) String() string { return join(o, " || ") }
func (o orExpr) keys(into map[string]struct{}) {
	for _, e := range o {
		e.keys(into)
	}
}

type eqExpr struct {
	key   string
	value string
}

func (e eqExpr) Eval(ctx Context) bool {
	v, ok := ctx.Value(e.key)
	if !ok {
		return false
	}
	return stringify(v) == e.value
}
func (e eqExpr) String() string                { return e.key + " == " + quote(e.value) }
func (e eqExpr) keys(into map[string]struct{}) { into[e.key] = struct{}{} }

type matchExpr struct {
	key string
	re  *regexp.Regexp
}

func (m matchExpr) Eval(ctx Context) bool {
	v, ok := ctx.Value(m.key)
	if !ok {
		return false
	}
	return m.re.MatchString(stringify(v))
}
func (m matchExpr) String() string                { return m.key + " =~ /" + m.re.String() + "/" }
func (m matchExpr) keys(into map[string]struct{}) { into[m.key] = struct{}{} }

type inExpr struct {
	key  string
	list string
}

func (e inExpr) Eval(ctx Context) bool {
	v, ok := ctx.Value(e.key)
	if !ok {
		return false
	}
	list, ok := ctx.Value(e.list)
	if !ok {
		return false
	}
	return contains(list, stringify(v))
}
func (e inExpr) String() string { return e.key + " in " + e.list }
func (e inExpr) keys(into map[string]struct{}) {
	into[e.key] = struct{}{}
	into[e.list] = struct{}{}
}

func wrap(e Expr) string {
	switch e.(type) {
	case andExpr, orExpr:
		return "(" + e.String() + ")"
	}
	return e.String()
}

func join(es []Expr, sep string) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = wrap(e)
	}
	return strings.Join(parts, sep)
}

func quote(s string) string {
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i]) {
			return "'" + s + "'"
		}
	}
	if s == "" || s == "in" {
		return "'" + s + "'"
	}
	return s
}
