package parser

import (
	"strings"

	"github.com/starford/mdxengine/internal/expr"
	"github.com/starford/mdxengine/internal/node"
)

const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

type inlineBuf struct {
	out  []*node.Node
	text strings.Builder
}

func (b *inlineBuf) flush() {
	if b.text.Len() == 0 {
		return
	}
	s := b.text.String()
	b.text.Reset()
	if n := len(b.out); n > 0 && b.out[n-1].Kind == node.Text {
		b.out[n-1].Text += s
		return
	}
	b.out = append(b.out, node.NewText(s))
}

func (b *inlineBuf) add(nodes ...*node.Node) {
	b.flush()
	for _, n := range nodes {
		if n.Kind == node.Text {
			b.text.WriteString(n.Text)
			b.flush()
			continue
		}
		b.out = append(b.out, n)
	}
}

// inline parses span-level content.
func (p *Parser) inline(s string) ([]*node.Node, error) {
	var b inlineBuf
	i := 0
	for i < len(s) {
		c := s[i]
		switch c {
		case '\\':
			switch {
			case i+1 < len(s) && s[i+1] == '\n':
				b.add(node.NewElement("br"))
				i += 2
				continue
			case i+1 < len(s) && strings.IndexByte(punctuation, s[i+1]) >= 0:
				b.text.WriteByte(s[i+1])
				i += 2
				continue
			}

		case '\n':
			cur := b.text.String()
			trimmed := strings.TrimRight(cur, " \t")
			hard := len(cur)-len(trimmed) >= 2
			b.text.Reset()
			b.text.WriteString(trimmed)
			if hard {
				b.add(node.NewElement("br"))
			}
			b.text.WriteByte('\n')
			i++
			for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
				i++
			}
			continue

		case '`':
			if nd, next := codeSpan(s, i); nd != nil {
				b.add(nd)
				i = next
				continue
			}
			n := runLength(s, i, '`')
			b.text.WriteString(s[i : i+n])
			i += n
			continue

		case '*', '_', '~':
			nd, next, err := p.emphasis(s, i)
			if err != nil {
				return nil, err
			}
			if nd != nil {
				b.add(nd)
				i = next
				continue
			}
			n := runLength(s, i, c)
			b.text.WriteString(s[i : i+n])
			i += n
			continue

		case '!':
			if i+1 < len(s) && s[i+1] == '[' {
				if label, dest, title, next, ok := linkParts(s, i+1); ok {
					img := node.NewElement("img")
					img.Attrs.Set("src", dest)
					img.Attrs.Set("alt", unescape(label))
					if title != "" {
						img.Attrs.Set("title", title)
					}
					b.add(img)
					i = next
					continue
				}
			}

		case '[':
			if label, dest, title, next, ok := linkParts(s, i); ok && p.enter() {
				children, err := p.inline(label)
				p.leave()
				if err != nil {
					return nil, err
				}
				a := node.NewElement("a", children...)
				a.Attrs.Set("href", dest)
				if title != "" {
					a.Attrs.Set("title", title)
				}
				b.add(a)
				i = next
				continue
			}

		case '<':
			nd, next, err := p.angle(s, i)
			if err != nil {
				return nil, err
			}
			if next > i {
				if nd != nil {
					b.add(nd)
				}
				i = next
				continue
			}

		case '{':
			if k := matchBrace(s, i); k > 0 {
				inner := strings.TrimSpace(s[i+1 : k])
				if strings.HasPrefix(inner, "/*") && strings.HasSuffix(inner, "*/") {
					i = k + 1
					continue
				}
				v, err := expr.Eval(inner, p.env)
				if err != nil {
					return nil, exprError(err)
				}
				b.text.WriteString(node.FormatValue(v))
				i = k + 1
				continue
			}
		}
		b.text.WriteByte(c)
		i++
	}
	b.flush()
	return b.out, nil
}

// angle handles '<': comments, autolinks and inline tags. next == i means
// the '<' is literal.
func (p *Parser) angle(s string, i int) (*node.Node, int, error) {
	if strings.HasPrefix(s[i:], "<!--") {
		if k := strings.Index(s[i+4:], "-->"); k >= 0 {
			return nil, i + 4 + k + 3, nil
		}
		return nil, len(s), nil
	}
	if href, text, next, ok := autolink(s, i); ok {
		a := node.NewElement("a", node.NewText(text))
		a.Attrs.Set("href", href)
		return a, next, nil
	}
	if p.depth >= p.opts.MaxDepth {
		return nil, i, nil
	}
	t, ok, err := p.lexOpenTag(s, i)
	if err != nil {
		return nil, i, exprError(err)
	}
	if !ok {
		return nil, i, nil
	}
	if t.selfClosing {
		return newTagNode(t, nil), t.end, nil
	}
	inner, next := s[t.end:], len(s)
	if cs, ce, found := p.findClose(s, t.name, t.end); found {
		inner, next = s[t.end:cs], ce
	}
	p.enter()
	children, err := p.inline(inner)
	p.leave()
	if err != nil {
		return nil, i, err
	}
	return newTagNode(t, children), next, nil
}

func autolink(s string, i int) (href, text string, next int, ok bool) {
	end := strings.IndexByte(s[i:], '>')
	if end < 0 {
		return "", "", 0, false
	}
	body := s[i+1 : i+end]
	if body == "" || strings.ContainsAny(body, " \t\n<") {
		return "", "", 0, false
	}
	if colon := strings.Index(body, "://"); colon > 0 && isLetter(body[0]) {
		return body, body, i + end + 1, true
	}
	if at := strings.IndexByte(body, '@'); at > 0 && strings.Contains(body[at:], ".") && !strings.Contains(body, ":") {
		return "mailto:" + body, body, i + end + 1, true
	}
	return "", "", 0, false
}

func codeSpan(s string, i int) (*node.Node, int) {
	n := runLength(s, i, '`')
	j := i + n
	for j < len(s) {
		k := strings.IndexByte(s[j:], '`')
		if k < 0 {
			return nil, 0
		}
		j += k
		m := runLength(s, j, '`')
		if m == n {
			content := strings.ReplaceAll(s[i+n:j], "\n", " ")
			if len(content) > 1 && content[0] == ' ' && content[len(content)-1] == ' ' && strings.TrimSpace(content) != "" {
				content = content[1 : len(content)-1]
			}
			return node.NewElement("code", node.NewText(content)), j + m
		}
		j += m
	}
	return nil, 0
}

// emphasis handles *, _ and ~ delimiter runs.
func (p *Parser) emphasis(s string, i int) (*node.Node, int, error) {
	c := s[i]
	run := runLength(s, i, c)
	if c == '_' && i > 0 && isAlnum(s[i-1]) {
		return nil, 0, nil
	}
	if c == '~' && run != 2 {
		return nil, 0, nil
	}
	if p.depth >= p.opts.MaxDepth {
		return nil, 0, nil
	}

	sizes := []int{run}
	if run > 3 {
		return nil, 0, nil
	}
	if run == 3 {
		sizes = []int{3, 2, 1}
	} else if run == 2 && c != '~' {
		sizes = []int{2, 1}
	}
	body := i + run
	if body >= len(s) || isSpaceByte(s[body]) {
		return nil, 0, nil
	}
	for _, size := range sizes {
		k := closingRun(s, body, c, size)
		if k < 0 {
			continue
		}
		// Unmatched opening delimiters stay literal inside the span.
		inner := s[i+size : k]
		p.enter()
		children, err := p.inline(inner)
		p.leave()
		if err != nil {
			return nil, 0, err
		}
		var nd *node.Node
		switch {
		case c == '~':
			nd = node.NewElement("del", children...)
		case size == 3:
			nd = node.NewElement("strong", node.NewElement("em", children...))
		case size == 2:
			nd = node.NewElement("strong", children...)
		default:
			nd = node.NewElement("em", children...)
		}
		return nd, k + size, nil
	}
	return nil, 0, nil
}

// closingRun finds a run of exactly size delimiters c, starting at or
// after from, that can close emphasis. Code spans are skipped.
func closingRun(s string, from int, c byte, size int) int {
	j := from
	for j < len(s) {
		switch s[j] {
		case '`':
			if _, next := codeSpan(s, j); next > 0 {
				j = next
				continue
			}
		case '\\':
			j += 2
			continue
		case c:
			n := runLength(s, j, c)
			if n == size && !isSpaceByte(s[j-1]) {
				if c != '_' || j+n >= len(s) || !isAlnum(s[j+n]) {
					return j
				}
			}
			j += n
			continue
		}
		j++
	}
	return -1
}

// linkParts parses [label](dest "title") starting at s[i] == '['.
func linkParts(s string, i int) (label, dest, title string, next int, ok bool) {
	depth := 0
	j := i
	for ; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
			continue
		case '[':
			depth++
		case ']':
			depth--
		}
		if depth == 0 {
			break
		}
	}
	if j >= len(s) || j+1 >= len(s) || s[j+1] != '(' {
		return "", "", "", 0, false
	}
	label = s[i+1 : j]

	k := j + 2
	parens := 1
	for e := k; e < len(s); e++ {
		switch s[e] {
		case '(':
			parens++
		case ')':
			parens--
		case '\n':
			return "", "", "", 0, false
		}
		if parens == 0 {
			inside := strings.TrimSpace(s[k:e])
			dest, title = inside, ""
			if sp := strings.IndexAny(inside, " \t"); sp >= 0 {
				rest := strings.TrimSpace(inside[sp:])
				if len(rest) >= 2 && (rest[0] == '"' || rest[0] == '\'') && rest[len(rest)-1] == rest[0] {
					dest, title = inside[:sp], rest[1:len(rest)-1]
				}
			}
			dest = strings.TrimSuffix(strings.TrimPrefix(dest, "<"), ">")
			return label, dest, title, e + 1, true
		}
	}
	return "", "", "", 0, false
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && strings.IndexByte(punctuation, s[i+1]) >= 0 {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func runLength(s string, i int, c byte) int {
	n := 0
	for i+n < len(s) && s[i+n] == c {
		n++
	}
	return n
}

func isSpaceByte(c byte) bool { return c == ' ' || c == '\t' || c == '\n' }
func isAlnum(c byte) bool     { return isLetter(c) || isDigit(c) }
