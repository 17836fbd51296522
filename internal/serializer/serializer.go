// Package serializer writes resolved document trees in the supported
// output formats.
package serializer

import (
	"fmt"

	"github.com/starford/mdxengine/internal/node"
)

// Format names an output representation.
type Format string

const (
	HTML       Format = "html"
	JavaScript Format = "javascript"
	Schema     Format = "schema"
	JSON       Format = "json"
)

// Formats lists every supported format.
var Formats = []Format{HTML, JavaScript, Schema, JSON}

// ParseFormat validates s as a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Options tune serialization.
type Options struct {
	Minify bool
}

// Serialize renders tree in format. The tree is expected to be resolved;
// leftover component references are written like elements.
func Serialize(tree *node.Tree, format Format, opts Options) (string, error) {
	if tree == nil {
		tree = &node.Tree{}
	}
	switch format {
	case HTML:
		return renderHTML(tree.Nodes, opts), nil
	case JavaScript:
		return renderJS(tree.Nodes, opts)
	case Schema:
		return renderSchema(tree.References, opts)
	case JSON:
		return renderJSON(tree.Nodes, opts)
	}
	return "", fmt.Errorf("unknown output format %q", format)
}

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"details": true, "div": true, "dl": true, "dd": true, "dt": true,
	"figcaption": true, "figure": true, "footer": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "summary": true,
	"table": true, "tbody": true, "td": true, "tfoot": true, "th": true,
	"thead": true, "tr": true, "ul": true, "mdx-unresolved": true,
}

func isBlock(n *node.Node) bool {
	return n.Kind != node.Text && blockTags[n.Tag]
}
