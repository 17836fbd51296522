// Package expr evaluates the small expression language allowed inside
// {braces} in MDX bodies and attribute values.
//
// Supported: number, string, boolean and null literals; arithmetic
// (+ - * / %); string concatenation; comparisons; && || !; the ternary
// operator; parentheses; and context('dotted.key') lookups against the
// document frontmatter.
package expr

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/starford/mdxengine/internal/node"
)

// Env supplies values to context() calls.
type Env interface {
	Lookup(key string) (any, bool)
}

// Frontmatter adapts an attribute map to Env.
type Frontmatter struct {
	Attrs *node.Attrs
}

// Lookup resolves a dotted key.
func (f Frontmatter) Lookup(key string) (any, bool) {
	return node.Lookup(f.Attrs, key)
}

// Eval parses and evaluates src.
func Eval(src string, env Env) (any, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, env: env}
	v, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", p.peek().text, p.peek().pos)
	}
	return v, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokStr
	tokIdent
	tokOp
)

type token struct {
	kind tokKind
	text string
	num  float64
	pos  int
}

var operators = []string{"===", "!==", "==", "!=", "<=", ">=", "&&", "||", "??", "+", "-", "*", "/", "%", "<", ">", "!", "?", ":", "(", ")", ",", "."}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9' || c == '.' && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9':
			start := i
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.' || src[i] == 'e' || src[i] == 'E') {
				i++
			}
			f, err := strconv.ParseFloat(src[start:i], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", src[start:i])
			}
			toks = append(toks, token{kind: tokNum, num: f, text: src[start:i], pos: start})
		case c == '"' || c == '\'' || c == '`':
			s, n, err := lexString(src[i:])
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokStr, text: s, pos: i})
			i += n
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})
		default:
			matched := false
			for _, op := range operators {
				if strings.HasPrefix(src[i:], op) {
					toks = append(toks, token{kind: tokOp, text: op, pos: i})
					i += len(op)
					matched = true
					break
				}
			}
			if !matched {
				return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
			}
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

func lexString(s string) (string, int, error) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == quote:
			return b.String(), i + 1, nil
		case c == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string literal")
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

// maxDepth bounds nested parentheses, ternaries and unary operators.
const maxDepth = 256

type parser struct {
	toks  []token
	pos   int
	env   Env
	depth int
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return fmt.Errorf("expression nested deeper than %d at offset %d", maxDepth, p.peek().pos)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(op string) bool {
	if t := p.peek(); t.kind == tokOp && t.text == op {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(op string) error {
	if !p.accept(op) {
		return fmt.Errorf("expected %q at offset %d", op, p.peek().pos)
	}
	return nil
}

func (p *parser) ternary() (any, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	cond, err := p.binary(0)
	if err != nil {
		return nil, err
	}
	if !p.accept("?") {
		return cond, nil
	}
	a, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	b, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if truthy(cond) {
		return a, nil
	}
	return b, nil
}

var precedence = [][]string{
	{"??"},
	{"||"},
	{"&&"},
	{"==", "!=", "===", "!=="},
	{"<", ">", "<=", ">="},
	{"+", "-"},
	{"*", "/", "%"},
}

func (p *parser) binary(level int) (any, error) {
	if level == len(precedence) {
		return p.unary()
	}
	left, err := p.binary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || !slices.Contains(precedence[level], t.text) {
			return left, nil
		}
		p.next()
		right, err := p.binary(level + 1)
		if err != nil {
			return nil, err
		}
		left, err = apply(t.text, left, right)
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) unary() (any, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	switch {
	case p.accept("!"):
		v, err := p.unary()
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil
	case p.accept("-"):
		v, err := p.unary()
		if err != nil {
			return nil, err
		}
		f, ok := toNumber(v)
		if !ok {
			return nil, fmt.Errorf("cannot negate %T", v)
		}
		return -f, nil
	case p.accept("+"):
		v, err := p.unary()
		if err != nil {
			return nil, err
		}
		f, _ := toNumber(v)
		return f, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (any, error) {
	v, err := p.primary()
	if err != nil {
		return nil, err
	}
	for p.accept(".") {
		t := p.next()
		if t.kind != tokIdent {
			return nil, fmt.Errorf("expected property name at offset %d", t.pos)
		}
		v = member(v, t.text)
	}
	return v, nil
}

func (p *parser) primary() (any, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return t.num, nil
	case tokStr:
		return t.text, nil
	case tokOp:
		if t.text == "(" {
			v, err := p.ternary()
			if err != nil {
				return nil, err
			}
			return v, p.expect(")")
		}
	case tokIdent:
		switch t.text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null", "undefined":
			return nil, nil
		case "context":
			return p.call()
		}
		return nil, fmt.Errorf("unknown identifier %q", t.text)
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
}

// call parses the argument list of context(key).
func (p *parser) call() (any, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	arg, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	key, ok := arg.(string)
	if !ok {
		return nil, fmt.Errorf("context() expects a string key")
	}
	if p.env == nil {
		return nil, nil
	}
	v, _ := p.env.Lookup(key)
	return v, nil
}

func member(v any, name string) any {
	switch m := v.(type) {
	case *node.Attrs:
		val, _ := m.Get(name)
		return val
	case map[string]any:
		return m[name]
	case []any:
		if name == "length" {
			return float64(len(m))
		}
	case string:
		if name == "length" {
			return float64(len(m))
		}
	}
	return nil
}

func apply(op string, a, b any) (any, error) {
	switch op {
	case "&&":
		if !truthy(a) {
			return a, nil
		}
		return b, nil
	case "||":
		if truthy(a) {
			return a, nil
		}
		return b, nil
	case "??":
		if a == nil {
			return b, nil
		}
		return a, nil
	case "==", "===":
		return equal(a, b), nil
	case "!=", "!==":
		return !equal(a, b), nil
	case "+":
		_, as := a.(string)
		_, bs := b.(string)
		if as || bs {
			return node.FormatValue(a) + node.FormatValue(b), nil
		}
	}

	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			switch op {
			case "<":
				return sa < sb, nil
			case ">":
				return sa > sb, nil
			case "<=":
				return sa <= sb, nil
			case ">=":
				return sa >= sb, nil
			}
		}
	}

	x, okA := toNumber(a)
	y, okB := toNumber(b)
	if !okA || !okB {
		return nil, fmt.Errorf("operator %s not defined for %T and %T", op, a, b)
	}
	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		if y == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return x / y, nil
	case "%":
		if y == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Mod(x, y), nil
	case "<":
		return x < y, nil
	case ">":
		return x > y, nil
	case "<=":
		return x <= y, nil
	case ">=":
		return x >= y, nil
	}
	return nil, fmt.Errorf("unknown operator %s", op)
}

func equal(a, b any) bool {
	if x, ok := toNumber(a); ok {
		if y, ok := toNumber(b); ok {
			_, as := a.(bool)
			_, bs := b.(bool)
			if !as && !bs {
				return x == y
			}
		}
	}
	switch a.(type) {
	case nil, string, bool:
		return a == b
	}
	return false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case nil:
		return 0, true
	}
	return 0, false
}

// truthy follows JavaScript truthiness for the value types expressions produce.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	case int64:
		return x != 0
	}
	return true
}
