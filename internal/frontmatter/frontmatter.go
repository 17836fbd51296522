// Package frontmatter separates the YAML metadata header of an MDX document from its body.
package frontmatter

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/mdxengine/internal/apperr"
	"github.com/starford/mdxengine/internal/node"
)

const (
	fence    = "---"
	altClose = "..."
	bom      = "\uFEFF"

	// maxNodes caps the values produced while expanding aliases.
	maxNodes = 10000
)

// Document is a raw document split into metadata and body.
type Document struct {
	Name        string
	Frontmatter *node.Attrs
	Body        string
}

// Split separates the leading "---" fenced YAML block from the body.
// A document without a leading fence has empty metadata and the whole
// text as body. An unterminated fence or malformed YAML is a parse error.
func Split(name, text string) (*Document, error) {
	text = strings.TrimPrefix(text, bom)
	doc := &Document{Name: name, Frontmatter: node.NewAttrs(), Body: text}

	first, rest, hasNewline := strings.Cut(text, "\n")
	if strings.TrimRight(first, " \t\r") != fence {
		return doc, nil
	}
	if !hasNewline {
		return nil, parseErr(name, "unterminated frontmatter fence")
	}

	var block strings.Builder
	body := ""
	closed := false
	for {
		line, tail, more := strings.Cut(rest, "\n")
		trimmed := strings.TrimRight(line, " \t\r")
		if trimmed == fence || trimmed == altClose {
			closed = true
			body = tail
			break
		}
		block.WriteString(line)
		block.WriteByte('\n')
		if !more {
			break
		}
		rest = tail
	}
	if !closed {
		return nil, parseErr(name, "unterminated frontmatter fence")
	}

	fm, err := decode(block.String())
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.ErrParse, Document: name, Message: "invalid frontmatter", Err: err}
	}
	doc.Frontmatter = fm
	doc.Body = body
	return doc, nil
}

func parseErr(name, msg string) error {
	return &apperr.Error{Kind: apperr.ErrParse, Document: name, Message: msg}
}

// decode parses a YAML mapping into an ordered map, keeping key order.
func decode(src string) (*node.Attrs, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(src), &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return node.NewAttrs(), nil
	}
	top := root.Content[0]
	if top.Kind == yaml.ScalarNode && top.Tag == "!!null" {
		return node.NewAttrs(), nil
	}
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("frontmatter must be a mapping, got %s", kindName(top.Kind))
	}
	c := &converter{active: map[*yaml.Node]bool{}}
	v, err := c.convert(top)
	if err != nil {
		return nil, err
	}
	return v.(*node.Attrs), nil
}

// converter turns yaml nodes into ordered values. It refuses alias
// cycles and stops once maxNodes values have been produced.
type converter struct {
	active map[*yaml.Node]bool
	nodes  int
}

func (c *converter) convert(n *yaml.Node) (any, error) {
	c.nodes++
	if c.nodes > maxNodes {
		return nil, fmt.Errorf("frontmatter expands to more than %d values", maxNodes)
	}
	switch n.Kind {
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, fmt.Errorf("unknown alias at line %d", n.Line)
		}
		if c.active[n.Alias] {
			return nil, fmt.Errorf("recursive alias %q at line %d", n.Value, n.Line)
		}
		c.active[n.Alias] = true
		defer delete(c.active, n.Alias)
		return c.convert(n.Alias)
	case yaml.MappingNode:
		m := node.NewAttrs()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Tag == "!!merge" {
				if err := c.merge(m, v); err != nil {
					return nil, err
				}
				continue
			}
			val, err := c.convert(v)
			if err != nil {
				return nil, err
			}
			m.Set(k.Value, val)
		}
		return m, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, el := range n.Content {
			val, err := c.convert(el)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	case yaml.ScalarNode:
		// Timestamps stay as written.
		if n.Tag == "!!timestamp" {
			return n.Value, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("unsupported yaml node at line %d", n.Line)
}

func (c *converter) merge(dst *node.Attrs, src *yaml.Node) error {
	if src.Kind == yaml.SequenceNode {
		for _, el := range src.Content {
			if err := c.merge(dst, el); err != nil {
				return err
			}
		}
		return nil
	}
	v, err := c.convert(src)
	if err != nil {
		return err
	}
	m, ok := v.(*node.Attrs)
	if !ok {
		return fmt.Errorf("merge value must be a mapping")
	}
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		if _, exists := dst.Get(pair.Key); !exists {
			dst.Set(pair.Key, pair.Value)
		}
	}
	return nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "document"
}
