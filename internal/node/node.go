// Package node defines the document tree produced by the parser and
// consumed by the component resolver and the serializers.
package node

import (
	"encoding/json"
	"strconv"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind identifies the variant of a Node.
type Kind int

const (
	// Text is a leaf holding literal text.
	Text Kind = iota
	// Element is a plain markup element such as p, h1 or button.
	Element
	// Component is a reference to a named component that has not been resolved yet.
	Component
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Element:
		return "element"
	case Component:
		return "component"
	}
	return "unknown"
}

// Attrs is an insertion-ordered attribute (or prop) map.
type Attrs = orderedmap.OrderedMap[string, any]

// NewAttrs returns an empty attribute map.
func NewAttrs() *Attrs {
	return orderedmap.New[string, any]()
}

// Node is one vertex of a document tree. Tag holds the element tag for
// Element nodes and the component name for Component nodes.
type Node struct {
	Kind       Kind
	Tag        string
	Text       string
	Attrs      *Attrs
	Directives *Attrs
	Children   []*Node
}

// Tree is a fully resolved document. References lists, in order of first
// appearance and without duplicates, the components that resolved.
type Tree struct {
	Nodes      []*Node
	References []string
}

// NewText returns a text node.
func NewText(s string) *Node {
	return &Node{Kind: Text, Text: s}
}

// NewElement returns an element node with an empty attribute map.
func NewElement(tag string, children ...*Node) *Node {
	return &Node{Kind: Element, Tag: tag, Attrs: NewAttrs(), Children: children}
}

// NewComponent returns an unresolved component reference.
func NewComponent(name string, children ...*Node) *Node {
	return &Node{Kind: Component, Tag: name, Attrs: NewAttrs(), Children: children}
}

// HasDirectives reports whether the node carries at least one directive.
func (n *Node) HasDirectives() bool {
	return n.Directives != nil && n.Directives.Len() > 0
}

// TextContent concatenates the text of n and all of its descendants.
func (n *Node) TextContent() string {
	if n.Kind == Text {
		return n.Text
	}
	var out []byte
	for _, c := range n.Children {
		out = append(out, c.TextContent()...)
	}
	return string(out)
}

// Walk visits n and its descendants in document order. Returning false
// from fn skips the children of the visited node.
func Walk(nodes []*Node, fn func(*Node) bool) {
	for _, n := range nodes {
		if fn(n) {
			Walk(n.Children, fn)
		}
	}
}

// FormatValue renders an attribute or expression value as text.
// nil renders as the empty string; maps and slices render as JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		return val.Format(time.RFC3339)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// Lookup resolves a dotted key such as "author.name" against nested
// attribute maps and plain maps. Numeric segments index into slices.
func Lookup(root *Attrs, key string) (any, bool) {
	if root == nil || key == "" {
		return nil, false
	}
	var cur any = root
	start := 0
	for i := 0; i <= len(key); i++ {
		if i < len(key) && key[i] != '.' {
			continue
		}
		seg := key[start:i]
		start = i + 1
		switch m := cur.(type) {
		case *Attrs:
			v, ok := m.Get(seg)
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]any:
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(m) {
				return nil, false
			}
			cur = m[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}
