package parser

import (
	"strconv"
	"strings"

	"github.com/starford/mdxengine/internal/expr"
	"github.com/starford/mdxengine/internal/node"
)

// openTag is a lexed opening tag.
type openTag struct {
	name        string
	attrs       *node.Attrs
	directives  *node.Attrs
	selfClosing bool
	end         int // offset just past '>'
}

// lexOpenTag lexes the tag starting at s[i] == '<'. ok is false when the
// text is not a well-formed tag; err is set only when an attribute
// expression fails to evaluate.
func (p *Parser) lexOpenTag(s string, i int) (tag openTag, ok bool, err error) {
	if i >= len(s) || s[i] != '<' {
		return tag, false, nil
	}
	j := i + 1
	nameEnd := scanTagName(s, j)
	if nameEnd == j {
		return tag, false, nil
	}
	tag.name = s[j:nameEnd]
	j = nameEnd
	if j < len(s) && !isSpace(s[j]) && s[j] != '/' && s[j] != '>' {
		return tag, false, nil
	}
	tag.attrs = node.NewAttrs()

	for {
		j = skipSpace(s, j)
		if j >= len(s) {
			return tag, false, nil
		}
		switch {
		case s[j] == '>':
			tag.end = j + 1
			return tag, true, nil
		case strings.HasPrefix(s[j:], "/>"):
			tag.selfClosing = true
			tag.end = j + 2
			return tag, true, nil
		}

		keyEnd := scanAttrName(s, j)
		if keyEnd == j {
			return tag, false, nil
		}
		key := s[j:keyEnd]
		j = skipSpace(s, keyEnd)

		var value any = true
		if j < len(s) && s[j] == '=' {
			j = skipSpace(s, j+1)
			if j >= len(s) {
				return tag, false, nil
			}
			switch s[j] {
			case '"', '\'':
				q := s[j]
				k := strings.IndexByte(s[j+1:], q)
				if k < 0 {
					return tag, false, nil
				}
				value = s[j+1 : j+1+k]
				j = j + 1 + k + 1
			case '{':
				k := matchBrace(s, j)
				if k < 0 {
					return tag, false, nil
				}
				v, evalErr := expr.Eval(s[j+1:k], p.env)
				if evalErr != nil {
					return tag, false, evalErr
				}
				value = v
				j = k + 1
			default:
				k := j
				for k < len(s) && !isSpace(s[k]) && s[k] != '>' && !strings.HasPrefix(s[k:], "/>") {
					k++
				}
				value = literal(s[j:k])
				j = k
			}
		}
		p.setAttr(&tag, key, value)
	}
}

func (p *Parser) setAttr(tag *openTag, key string, value any) {
	for _, prefix := range p.opts.Directives {
		if prefix != "" && strings.HasPrefix(key, prefix) {
			if tag.directives == nil {
				tag.directives = node.NewAttrs()
			}
			tag.directives.Set(key, value)
			return
		}
	}
	tag.attrs.Set(key, value)
}

// findClose returns the span of the closing tag matching name, searching
// from offset from. Nested tags of the same name are balanced.
func (p *Parser) findClose(s, name string, from int) (start, end int, ok bool) {
	depth := 1
	i := from
	for i < len(s) {
		k := strings.IndexByte(s[i:], '<')
		if k < 0 {
			return 0, 0, false
		}
		i += k
		if strings.HasPrefix(s[i+1:], "/"+name) {
			j := skipSpace(s, i+2+len(name))
			if j < len(s) && s[j] == '>' {
				depth--
				if depth == 0 {
					return i, j + 1, true
				}
				i = j + 1
				continue
			}
		}
		if strings.HasPrefix(s[i+1:], name) {
			if t, ok, _ := p.lexOpenTag(s, i); ok && t.name == name {
				if !t.selfClosing {
					depth++
				}
				i = t.end
				continue
			}
		}
		i++
	}
	return 0, 0, false
}

// matchBrace returns the index of the '}' closing the '{' at s[i],
// skipping quoted strings, or -1.
func matchBrace(s string, i int) int {
	depth := 0
	for j := i; j < len(s); j++ {
		switch c := s[j]; c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j
			}
		case '"', '\'', '`':
			k := j + 1
			for k < len(s) && s[k] != c {
				if s[k] == '\\' {
					k++
				}
				k++
			}
			if k >= len(s) {
				return -1
			}
			j = k
		}
	}
	return -1
}

func literal(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func scanTagName(s string, i int) int {
	if i >= len(s) || !isLetter(s[i]) {
		return i
	}
	j := i + 1
	for j < len(s) && (isLetter(s[j]) || isDigit(s[j]) || s[j] == '-' || s[j] == '_' || s[j] == '.') {
		j++
	}
	return j
}

func scanAttrName(s string, i int) int {
	j := i
	for j < len(s) && (isLetter(s[j]) || isDigit(s[j]) || strings.IndexByte("-_:.@", s[j]) >= 0) {
		j++
	}
	return j
}

func skipSpace(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

func isSpace(c byte) bool  { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isUpper(c byte) bool  { return c >= 'A' && c <= 'Z' }

// newTagNode builds the node for a lexed tag: capitalised names are
// component references, everything else is a plain element.
func newTagNode(t openTag, children []*node.Node) *node.Node {
	kind := node.Element
	if isUpper(t.name[0]) {
		kind = node.Component
	}
	return &node.Node{Kind: kind, Tag: t.name, Attrs: t.attrs, Directives: t.directives, Children: children}
}
