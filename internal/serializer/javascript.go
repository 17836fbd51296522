package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/starford/mdxengine/internal/node"
)

const indentUnit = "  "

// renderJS writes the tree as an ES module whose default export returns
// the same markup through h().
func renderJS(nodes []*node.Node, opts Options) (string, error) {
	var b strings.Builder
	b.WriteString("export default function View() {\n")
	b.WriteString(indentUnit + "return h(Fragment, null")
	if len(nodes) > 0 {
		b.WriteString(",\n")
		for i, n := range nodes {
			b.WriteString(strings.Repeat(indentUnit, 2))
			if err := writeCall(&b, n, 2); err != nil {
				return "", err
			}
			if i < len(nodes)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(indentUnit)
	}
	b.WriteString(");\n}\n")

	if !opts.Minify {
		return b.String(), nil
	}
	res := api.Transform(b.String(), api.TransformOptions{
		Loader:           api.LoaderJS,
		MinifyWhitespace: true,
		Sourcefile:       "view.js",
	})
	if len(res.Errors) > 0 {
		return "", fmt.Errorf("minify view: %s", res.Errors[0].Text)
	}
	return strings.TrimSpace(string(res.Code)), nil
}

func writeCall(b *strings.Builder, n *node.Node, depth int) error {
	if n.Kind == node.Text {
		s, err := jsLiteral(n.Text)
		if err != nil {
			return err
		}
		b.WriteString(s)
		return nil
	}

	tag, err := jsLiteral(n.Tag)
	if err != nil {
		return err
	}
	props := "null"
	if n.Attrs != nil && n.Attrs.Len() > 0 {
		if props, err = jsLiteral(n.Attrs); err != nil {
			return err
		}
	}
	fmt.Fprintf(b, "h(%s, %s", tag, props)

	multiline := false
	for _, c := range n.Children {
		if isBlock(c) {
			multiline = true
			break
		}
	}
	for i, c := range n.Children {
		if multiline {
			b.WriteString(",\n")
			b.WriteString(strings.Repeat(indentUnit, depth+1))
		} else {
			b.WriteString(", ")
		}
		if err := writeCall(b, c, depth+1); err != nil {
			return err
		}
		if multiline && i == len(n.Children)-1 {
			b.WriteByte('\n')
			b.WriteString(strings.Repeat(indentUnit, depth))
		}
	}
	b.WriteByte(')')
	return nil
}

// jsLiteral encodes v as JSON, which is also a valid JavaScript expression.
func jsLiteral(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode literal: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
