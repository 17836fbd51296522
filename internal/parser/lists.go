package parser

import (
	"strconv"
	"strings"

	"github.com/starford/mdxengine/internal/node"
)

type marker struct {
	indent  int
	width   int // column where item content starts
	ordered bool
	start   int
	char    byte
	content string
}

func parseMarker(line string) (marker, bool) {
	indent := leadingSpaces(line)
	t := strings.TrimLeft(line, " \t")
	if t == "" || indent > 12 {
		return marker{}, false
	}
	m := marker{indent: indent}
	var n int
	switch t[0] {
	case '-', '*', '+':
		m.char = t[0]
		n = 1
	default:
		for n < len(t) && n < 9 && isDigit(t[n]) {
			n++
		}
		if n == 0 || n >= len(t) || (t[n] != '.' && t[n] != ')') {
			return marker{}, false
		}
		m.ordered = true
		m.char = t[n]
		m.start, _ = strconv.Atoi(t[:n])
		n++
	}
	if n < len(t) && t[n] != ' ' && t[n] != '\t' {
		return marker{}, false
	}
	spaces := 0
	for n+spaces < len(t) && t[n+spaces] == ' ' {
		spaces++
	}
	if spaces == 0 || spaces > 4 || n+spaces == len(t) {
		spaces = 1
	}
	m.width = indent + n + spaces
	if n+spaces < len(t) {
		m.content = t[n+spaces:]
	}
	return m, true
}

func (p *Parser) list(src *source, i int) (*node.Node, int, error) {
	first, _ := parseMarker(src.lines[i])
	tag := "ul"
	if first.ordered {
		tag = "ol"
	}
	list := node.NewElement(tag)
	if first.ordered && first.start != 1 {
		list.Attrs.Set("start", first.start)
	}

	p.enter()
	defer p.leave()

	tight := true
	var items [][]*node.Node
	for i < len(src.lines) {
		m, ok := parseMarker(src.lines[i])
		if !ok || m.ordered != first.ordered || m.char != first.char || m.indent >= first.width {
			break
		}
		if isThematicBreak(strings.TrimSpace(src.lines[i])) {
			break
		}

		lines := []string{m.content}

		j := i + 1
		blank := false
		for j < len(src.lines) {
			l := src.lines[j]
			if strings.TrimSpace(l) == "" {
				lines = append(lines, "")
				blank = true
				j++
				continue
			}
			if leadingSpaces(l) >= m.width {
				if blank {
					tight = false
				}
				lines = append(lines, stripIndent(l, m.width))
				blank = false
				j++
				continue
			}
			if blank || interruptsParagraph(l) {
				break
			}
			if _, isMarker := parseMarker(l); isMarker {
				break
			}
			lines = append(lines, strings.TrimLeft(l, " \t"))
			j++
		}

		// Blank lines between items loosen the list.
		if blank && j < len(src.lines) {
			if next, ok := parseMarker(src.lines[j]); ok && next.char == first.char && next.indent < first.width {
				tight = false
			}
		}

		children, err := p.blocks(strings.Join(lines, "\n"))
		if err != nil {
			return nil, 0, err
		}
		items = append(items, children)
		i = j
	}

	for _, children := range items {
		if tight {
			children = unwrapParagraphs(children)
		}
		list.Children = append(list.Children, node.NewElement("li", children...))
	}
	return list, i, nil
}

func unwrapParagraphs(nodes []*node.Node) []*node.Node {
	var out []*node.Node
	for _, n := range nodes {
		if n.Kind == node.Element && n.Tag == "p" {
			out = append(out, n.Children...)
			continue
		}
		out = append(out, n)
	}
	return out
}

func isTableStart(src *source, i int) bool {
	if i+1 >= len(src.lines) || !strings.Contains(src.lines[i], "|") {
		return false
	}
	aligns, ok := delimiterRow(src.lines[i+1])
	if !ok {
		return false
	}
	return len(splitRow(src.lines[i])) == len(aligns)
}

func delimiterRow(line string) ([]string, bool) {
	t := strings.TrimSpace(line)
	if !strings.Contains(t, "-") {
		return nil, false
	}
	cells := splitRow(t)
	aligns := make([]string, len(cells))
	for k, c := range cells {
		if c == "" || strings.Trim(c, ":-") != "" || !strings.Contains(c, "-") {
			return nil, false
		}
		left, right := strings.HasPrefix(c, ":"), strings.HasSuffix(c, ":")
		switch {
		case left && right:
			aligns[k] = "center"
		case right:
			aligns[k] = "right"
		case left:
			aligns[k] = "left"
		}
	}
	return aligns, true
}

func splitRow(line string) []string {
	t := strings.TrimSpace(line)
	t = strings.TrimPrefix(t, "|")
	if strings.HasSuffix(t, "|") && !strings.HasSuffix(t, `\|`) {
		t = t[:len(t)-1]
	}
	var cells []string
	var cur strings.Builder
	for k := 0; k < len(t); k++ {
		switch {
		case t[k] == '\\' && k+1 < len(t) && t[k+1] == '|':
			cur.WriteByte('|')
			k++
		case t[k] == '|':
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(t[k])
		}
	}
	return append(cells, strings.TrimSpace(cur.String()))
}

func (p *Parser) table(src *source, i int) (*node.Node, int, error) {
	header := splitRow(src.lines[i])
	aligns, _ := delimiterRow(src.lines[i+1])

	row := func(cells []string, cellTag string) (*node.Node, error) {
		tr := node.NewElement("tr")
		for k := range header {
			text := ""
			if k < len(cells) {
				text = cells[k]
			}
			children, err := p.inline(text)
			if err != nil {
				return nil, err
			}
			cell := node.NewElement(cellTag, children...)
			if aligns[k] != "" {
				cell.Attrs.Set("style", "text-align: "+aligns[k])
			}
			tr.Children = append(tr.Children, cell)
		}
		return tr, nil
	}

	head, err := row(header, "th")
	if err != nil {
		return nil, 0, err
	}
	table := node.NewElement("table", node.NewElement("thead", head))

	j := i + 2
	body := node.NewElement("tbody")
	for ; j < len(src.lines); j++ {
		line := src.lines[j]
		if strings.TrimSpace(line) == "" || !strings.Contains(line, "|") {
			break
		}
		tr, err := row(splitRow(line), "td")
		if err != nil {
			return nil, 0, err
		}
		body.Children = append(body.Children, tr)
	}
	if len(body.Children) > 0 {
		table.Children = append(table.Children, body)
	}
	return table, j, nil
}
