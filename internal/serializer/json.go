package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/mdxengine/internal/node"
)

const (
	rootType = "#root"
	textType = "#text"
)

type jsonNode struct {
	Type       string      `json:"type"`
	Props      *node.Attrs `json:"props"`
	Directives *node.Attrs `json:"directives,omitempty"`
	Children   []*jsonNode `json:"children"`
}

func toJSONNode(n *node.Node) *jsonNode {
	if n.Kind == node.Text {
		props := node.NewAttrs()
		props.Set("value", n.Text)
		return &jsonNode{Type: textType, Props: props, Children: []*jsonNode{}}
	}
	out := &jsonNode{Type: n.Tag, Props: n.Attrs, Children: make([]*jsonNode, 0, len(n.Children))}
	if out.Props == nil {
		out.Props = node.NewAttrs()
	}
	if n.HasDirectives() {
		out.Directives = n.Directives
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, toJSONNode(c))
	}
	return out
}

func renderJSON(nodes []*node.Node, opts Options) (string, error) {
	root := toJSONNode(&node.Node{Kind: node.Element, Tag: rootType, Children: nodes})
	return encode(root, opts)
}

func renderSchema(refs []string, opts Options) (string, error) {
	if refs == nil {
		refs = []string{}
	}
	return encode(refs, opts)
}

func encode(v any, opts Options) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if !opts.Minify {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// ParseJSON rebuilds a tree from the json format. Numbers come back as
// float64 and nested objects as plain maps.
func ParseJSON(data []byte) (*node.Tree, error) {
	var root jsonNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	if root.Type != rootType {
		return nil, fmt.Errorf("decode tree: root type %q, want %q", root.Type, rootType)
	}
	nodes := make([]*node.Node, 0, len(root.Children))
	for _, c := range root.Children {
		n, err := fromJSONNode(c)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return &node.Tree{Nodes: nodes}, nil
}

func fromJSONNode(j *jsonNode) (*node.Node, error) {
	if j == nil || j.Type == "" {
		return nil, fmt.Errorf("decode tree: node without type")
	}
	if j.Type == textType {
		var text string
		if j.Props != nil {
			v, _ := j.Props.Get("value")
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("decode tree: text node value must be a string")
			}
			text = s
		}
		return node.NewText(text), nil
	}
	n := node.NewElement(j.Type)
	if j.Props != nil {
		n.Attrs = j.Props
	}
	if j.Directives != nil && j.Directives.Len() > 0 {
		n.Directives = j.Directives
	}
	for _, c := range j.Children {
		child, err := fromJSONNode(c)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}
