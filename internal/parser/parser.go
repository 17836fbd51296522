// Package parser turns an MDX body into a node tree: Markdown blocks and
// inlines, raw markup elements, component references and {expressions}.
//
// The parser never fails on malformed markup. Unknown tags become opaque
// component nodes, unclosed tags close at the end of their enclosing
// block, and nesting beyond MaxDepth degrades to literal text. The only
// error it returns is a failing {expression}.
package parser

import (
	"fmt"
	"strings"

	"github.com/starford/mdxengine/internal/apperr"
	"github.com/starford/mdxengine/internal/expr"
	"github.com/starford/mdxengine/internal/node"
)

// DefaultMaxDepth bounds container nesting.
const DefaultMaxDepth = 100

// Options configure a parse.
type Options struct {
	// Frontmatter backs context('key') lookups in expressions.
	Frontmatter *node.Attrs
	// Directives lists attribute-name prefixes that are routed to
	// Node.Directives instead of Node.Attrs.
	Directives []string
	MaxDepth   int
}

// Parser holds the state of one parse. It is not safe for concurrent use.
type Parser struct {
	opts  Options
	env   expr.Env
	depth int
}

// New returns a parser configured by opts.
func New(opts Options) *Parser {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Parser{opts: opts, env: expr.Frontmatter{Attrs: opts.Frontmatter}}
}

// Parse parses body with a fresh parser.
func Parse(body string, opts Options) ([]*node.Node, error) {
	return New(opts).Parse(body)
}

// Parse parses a whole document body into top-level block nodes.
func (p *Parser) Parse(body string) ([]*node.Node, error) {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	p.depth = 0
	return p.blocks(body)
}

func (p *Parser) enter() bool {
	if p.depth >= p.opts.MaxDepth {
		return false
	}
	p.depth++
	return true
}

func (p *Parser) leave() { p.depth-- }

// source is a block of text split into lines with their byte offsets.
type source struct {
	text    string
	lines   []string
	offsets []int
}

func newSource(text string) *source {
	s := &source{text: text}
	off := 0
	for {
		k := strings.IndexByte(text[off:], '\n')
		if k < 0 {
			s.lines = append(s.lines, text[off:])
			s.offsets = append(s.offsets, off)
			return s
		}
		s.lines = append(s.lines, text[off:off+k])
		s.offsets = append(s.offsets, off)
		off += k + 1
	}
}

// lineAt returns the index of the line containing byte offset off.
func (s *source) lineAt(off int) int {
	lo, hi := 0, len(s.offsets)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if s.offsets[mid] <= off {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func (p *Parser) blocks(text string) ([]*node.Node, error) {
	src := newSource(text)
	var out []*node.Node
	i := 0
	for i < len(src.lines) {
		line := src.lines[i]
		trimmed := strings.TrimSpace(line)
		indent := leadingSpaces(line)

		if trimmed == "" {
			i++
			continue
		}
		if strings.HasPrefix(trimmed, "<!--") {
			i = skipComment(src, i)
			continue
		}
		if indent < 4 {
			if ch, n := fenceOpen(trimmed); n > 0 {
				var nd *node.Node
				nd, i = codeBlock(src, i, ch, n)
				out = append(out, nd)
				continue
			}
			if level := headingLevel(trimmed); level > 0 {
				nd, err := p.heading(trimmed, level)
				if err != nil {
					return nil, err
				}
				out = append(out, nd)
				i++
				continue
			}
			if isThematicBreak(trimmed) {
				out = append(out, node.NewElement("hr"))
				i++
				continue
			}
			if trimmed[0] == '>' && p.depth < p.opts.MaxDepth {
				nd, next, err := p.blockquote(src, i)
				if err != nil {
					return nil, err
				}
				out = append(out, nd)
				i = next
				continue
			}
		}
		if _, ok := parseMarker(line); ok && p.depth < p.opts.MaxDepth {
			nd, next, err := p.list(src, i)
			if err != nil {
				return nil, err
			}
			out = append(out, nd)
			i = next
			continue
		}
		if isTableStart(src, i) {
			nd, next, err := p.table(src, i)
			if err != nil {
				return nil, err
			}
			out = append(out, nd)
			i = next
			continue
		}
		if trimmed[0] == '<' {
			nd, next, ok, err := p.blockTag(src, i)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, nd)
				i = next
				continue
			}
		}

		nodes, next, err := p.paragraph(src, i)
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
		i = next
	}
	return out, nil
}

func (p *Parser) paragraph(src *source, i int) ([]*node.Node, int, error) {
	var lines []string
	j := i
	for j < len(src.lines) {
		line := src.lines[j]
		if strings.TrimSpace(line) == "" {
			break
		}
		if j > i && interruptsParagraph(line) {
			break
		}
		lines = append(lines, strings.TrimLeft(line, " \t"))
		j++
	}
	text := strings.TrimRight(strings.Join(lines, "\n"), " \t")
	children, err := p.inline(text)
	if err != nil {
		return nil, 0, err
	}
	if strings.HasPrefix(text, "<") && strings.HasSuffix(text, ">") {
		if only := soleTag(children); only != nil {
			return []*node.Node{only}, j, nil
		}
	}
	if len(children) == 0 {
		return nil, j, nil
	}
	return []*node.Node{node.NewElement("p", children...)}, j, nil
}

// soleTag returns the single component child, ignoring whitespace-only text.
func soleTag(children []*node.Node) *node.Node {
	var found *node.Node
	for _, c := range children {
		if c.Kind == node.Text {
			if strings.TrimSpace(c.Text) != "" {
				return nil
			}
			continue
		}
		if found != nil || c.Kind != node.Component {
			return nil
		}
		found = c
	}
	return found
}

func interruptsParagraph(line string) bool {
	if leadingSpaces(line) >= 4 {
		return false
	}
	t := strings.TrimSpace(line)
	if _, n := fenceOpen(t); n > 0 {
		return true
	}
	if headingLevel(t) > 0 || isThematicBreak(t) || t[0] == '>' {
		return true
	}
	_, ok := parseMarker(line)
	return ok
}

func (p *Parser) heading(trimmed string, level int) (*node.Node, error) {
	content := strings.TrimSpace(trimmed[level:])
	// Optional closing sequence of #s.
	if k := strings.LastIndexFunc(content, func(r rune) bool { return r != '#' }); k >= 0 && k < len(content)-1 {
		if content[k] == ' ' || content[k] == '\t' {
			content = strings.TrimSpace(content[:k])
		}
	} else if k < 0 {
		content = ""
	}
	children, err := p.inline(content)
	if err != nil {
		return nil, err
	}
	return node.NewElement(fmt.Sprintf("h%d", level), children...), nil
}

func headingLevel(trimmed string) int {
	n := 0
	for n < len(trimmed) && trimmed[n] == '#' {
		n++
	}
	if n == 0 || n > 6 {
		return 0
	}
	if n < len(trimmed) && trimmed[n] != ' ' && trimmed[n] != '\t' {
		return 0
	}
	return n
}

func isThematicBreak(trimmed string) bool {
	if len(trimmed) < 3 {
		return false
	}
	c := trimmed[0]
	if c != '-' && c != '*' && c != '_' {
		return false
	}
	count := 0
	for i := 0; i < len(trimmed); i++ {
		switch trimmed[i] {
		case c:
			count++
		case ' ', '\t':
		default:
			return false
		}
	}
	return count >= 3
}

func fenceOpen(trimmed string) (byte, int) {
	if len(trimmed) < 3 || (trimmed[0] != '`' && trimmed[0] != '~') {
		return 0, 0
	}
	c := trimmed[0]
	n := 0
	for n < len(trimmed) && trimmed[n] == c {
		n++
	}
	if n < 3 {
		return 0, 0
	}
	if c == '`' && strings.IndexByte(trimmed[n:], '`') >= 0 {
		return 0, 0
	}
	return c, n
}

func codeBlock(src *source, i int, ch byte, n int) (*node.Node, int) {
	open := src.lines[i]
	indent := leadingSpaces(open)
	info := strings.TrimSpace(strings.TrimSpace(open)[n:])
	if k := strings.IndexAny(info, " \t"); k >= 0 {
		info = info[:k]
	}

	var body []string
	j := i + 1
	for ; j < len(src.lines); j++ {
		line := src.lines[j]
		t := strings.TrimSpace(line)
		if leadingSpaces(line) < 4 && len(t) >= n && strings.Trim(t, string(ch)) == "" {
			j++
			break
		}
		body = append(body, stripIndent(line, indent))
	}

	code := node.NewElement("code")
	if info != "" {
		code.Attrs.Set("class", "language-"+info)
	}
	if len(body) > 0 {
		code.Children = []*node.Node{node.NewText(strings.Join(body, "\n") + "\n")}
	}
	return node.NewElement("pre", code), j
}

func (p *Parser) blockquote(src *source, i int) (*node.Node, int, error) {
	var lines []string
	j := i
	for j < len(src.lines) {
		line := src.lines[j]
		t := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(t, ">") {
			t = t[1:]
			if strings.HasPrefix(t, " ") {
				t = t[1:]
			}
			lines = append(lines, t)
			j++
			continue
		}
		// Lazy continuation of a quoted paragraph.
		if strings.TrimSpace(line) != "" && len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) != "" && !interruptsParagraph(line) {
			lines = append(lines, t)
			j++
			continue
		}
		break
	}
	p.enter()
	defer p.leave()
	children, err := p.blocks(strings.Join(lines, "\n"))
	if err != nil {
		return nil, 0, err
	}
	return node.NewElement("blockquote", children...), j, nil
}

func skipComment(src *source, i int) int {
	for j := i; j < len(src.lines); j++ {
		if strings.Contains(src.lines[j], "-->") {
			return j + 1
		}
	}
	return len(src.lines)
}

// blockTag parses a tag that starts a line and either spans lines or
// stands alone on its line. ok is false when the line is better treated
// as a paragraph.
func (p *Parser) blockTag(src *source, i int) (*node.Node, int, bool, error) {
	start := src.offsets[i] + leadingSpaces(src.lines[i])
	t, ok, err := p.lexOpenTag(src.text, start)
	if err != nil {
		return nil, 0, false, exprError(err)
	}
	if !ok || p.depth >= p.opts.MaxDepth {
		return nil, 0, false, nil
	}

	if t.selfClosing {
		if !restOfLineBlank(src.text, t.end) {
			return nil, 0, false, nil
		}
		return newTagNode(t, nil), src.lineAt(t.end) + 1, true, nil
	}

	inner, next := "", len(src.lines)
	if cs, ce, found := p.findClose(src.text, t.name, t.end); found {
		if !restOfLineBlank(src.text, ce) {
			return nil, 0, false, nil
		}
		inner = src.text[t.end:cs]
		next = src.lineAt(ce) + 1
	} else {
		inner = src.text[t.end:]
	}

	p.enter()
	defer p.leave()
	var children []*node.Node
	if strings.Contains(inner, "\n") {
		children, err = p.blocks(dedent(inner))
	} else {
		children, err = p.inline(strings.TrimSpace(inner))
	}
	if err != nil {
		return nil, 0, false, err
	}
	return newTagNode(t, children), next, true, nil
}

func restOfLineBlank(s string, off int) bool {
	for off < len(s) && s[off] != '\n' {
		if s[off] != ' ' && s[off] != '\t' && s[off] != '\r' {
			return false
		}
		off++
	}
	return true
}

func exprError(err error) error {
	return &apperr.Error{Kind: apperr.ErrParse, Message: "expression: " + err.Error()}
}

func leadingSpaces(line string) int {
	n := 0
	for _, c := range line {
		switch c {
		case ' ':
			n++
		case '\t':
			n += 4 - n%4
		default:
			return n
		}
	}
	return n
}

// stripIndent removes up to n columns of leading whitespace.
func stripIndent(line string, n int) string {
	col := 0
	for i, c := range line {
		if col >= n {
			return line[i:]
		}
		switch c {
		case ' ':
			col++
		case '\t':
			col += 4 - col%4
		default:
			return line[i:]
		}
	}
	return ""
}

// dedent strips the common indentation of all non-blank lines.
func dedent(text string) string {
	lines := strings.Split(text, "\n")
	min := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if n := leadingSpaces(l); min < 0 || n < min {
			min = n
		}
	}
	if min <= 0 {
		return text
	}
	for i, l := range lines {
		lines[i] = stripIndent(l, min)
	}
	return strings.Join(lines, "\n")
}
