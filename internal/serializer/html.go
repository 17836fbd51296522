package serializer

import (
	"html"
	"strings"

	"github.com/starford/mdxengine/internal/node"
)

var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// preserveTags keep their text verbatim when minifying.
var preserveTags = map[string]bool{
	"pre": true, "code": true, "textarea": true, "script": true, "style": true,
}

// rawTextTags hold text that is written unescaped.
var rawTextTags = map[string]bool{"script": true, "style": true}

type htmlWriter struct {
	b        strings.Builder
	minify   bool
	preserve int
	raw      int
}

func renderHTML(nodes []*node.Node, opts Options) string {
	w := &htmlWriter{minify: opts.Minify}
	for _, n := range nodes {
		w.node(n)
	}
	return strings.TrimRight(w.b.String(), "\n")
}

func (w *htmlWriter) node(n *node.Node) {
	if n.Kind == node.Text {
		w.text(n.Text)
		return
	}

	w.b.WriteByte('<')
	w.b.WriteString(n.Tag)
	w.attrs(n.Attrs)
	if voidTags[n.Tag] {
		w.b.WriteString("/>")
		w.newline(n)
		return
	}
	w.b.WriteByte('>')

	if preserveTags[n.Tag] {
		w.preserve++
		defer func() { w.preserve-- }()
	}
	if rawTextTags[n.Tag] {
		w.raw++
		defer func() { w.raw-- }()
	}
	for _, c := range n.Children {
		w.node(c)
	}

	w.b.WriteString("</")
	w.b.WriteString(n.Tag)
	w.b.WriteByte('>')
	w.newline(n)
}

func (w *htmlWriter) newline(n *node.Node) {
	if !w.minify && w.preserve == 0 && isBlock(n) {
		w.b.WriteByte('\n')
	}
}

func (w *htmlWriter) text(s string) {
	if w.minify && w.preserve == 0 {
		s = collapseSpace(s)
	}
	if w.raw > 0 {
		w.b.WriteString(s)
		return
	}
	w.b.WriteString(html.EscapeString(s))
}

func (w *htmlWriter) attrs(attrs *node.Attrs) {
	if attrs == nil {
		return
	}
	for p := attrs.Oldest(); p != nil; p = p.Next() {
		switch v := p.Value.(type) {
		case nil:
			continue
		case bool:
			if !v {
				continue
			}
			w.b.WriteByte(' ')
			w.b.WriteString(p.Key)
			continue
		}
		w.b.WriteByte(' ')
		w.b.WriteString(p.Key)
		w.b.WriteString(`="`)
		w.b.WriteString(html.EscapeString(node.FormatValue(p.Value)))
		w.b.WriteByte('"')
	}
}

// collapseSpace folds every whitespace run into one space.
func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			if !space {
				b.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
