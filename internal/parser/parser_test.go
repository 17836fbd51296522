package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/starford/mdxengine/internal/apperr"
	"github.com/starford/mdxengine/internal/node"
)

// dump renders nodes compactly: tag[attr=v](children) and "text".
func dump(nodes []*node.Node) string {
	var parts []string
	for _, n := range nodes {
		parts = append(parts, dumpNode(n))
	}
	return strings.Join(parts, ",")
}

func dumpNode(n *node.Node) string {
	if n.Kind == node.Text {
		return fmt.Sprintf("%q", n.Text)
	}
	var b strings.Builder
	if n.Kind == node.Component {
		b.WriteString("@")
	}
	b.WriteString(n.Tag)
	if n.Attrs != nil && n.Attrs.Len() > 0 {
		var attrs []string
		for p := n.Attrs.Oldest(); p != nil; p = p.Next() {
			attrs = append(attrs, fmt.Sprintf("%s=%v", p.Key, p.Value))
		}
		b.WriteString("[" + strings.Join(attrs, " ") + "]")
	}
	if n.HasDirectives() {
		var ds []string
		for p := n.Directives.Oldest(); p != nil; p = p.Next() {
			ds = append(ds, fmt.Sprintf("%s=%v", p.Key, p.Value))
		}
		b.WriteString("{" + strings.Join(ds, " ") + "}")
	}
	if len(n.Children) > 0 {
		b.WriteString("(" + dump(n.Children) + ")")
	}
	return b.String()
}

func mustParse(t *testing.T, body string, opts Options) string {
	t.Helper()
	nodes, err := Parse(body, opts)
	if err != nil {
		t.Fatalf("Parse(%q): %v", body, err)
	}
	return dump(nodes)
}

func TestParse_Blocks(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"heading", "# Hello **world**", `h1("Hello ",strong("world"))`},
		{"heading levels", "### Three ###\n###### Six", `h3("Three"),h6("Six")`},
		{"not heading", "#hashtag", `p("#hashtag")`},
		{"paragraphs", "one\ntwo\n\nthree", `p("one\ntwo"),p("three")`},
		{"hard break", "a  \nb", `p("a",br,"\nb")`},
		{"hr", "a\n\n---\n\nb", `p("a"),hr,p("b")`},
		{"fenced code", "```go\nfmt.Println(\"<x>\")\n```", `pre(code[class=language-go]("fmt.Println(\"<x>\")\n"))`},
		{"unterminated fence", "~~~\ncode", `pre(code("code\n"))`},
		{"blockquote", "> quoted *text*\n> more", `blockquote(p("quoted ",em("text"),"\nmore"))`},
		{"tight list", "- a\n- b", `ul(li("a"),li("b"))`},
		{"loose list", "- a\n\n- b", `ul(li(p("a")),li(p("b")))`},
		{"ordered start", "3. x\n4. y", `ol[start=3](li("x"),li("y"))`},
		{"nested list", "- a\n  - b\n  - c\n- d", `ul(li("a",ul(li("b"),li("c"))),li("d"))`},
		{"table", "| a | b |\n|:--|--:|\n| 1 | 2 |", `table(thead(tr(th[style=text-align: left]("a"),th[style=text-align: right]("b"))),tbody(tr(td[style=text-align: left]("1"),td[style=text-align: right]("2"))))`},
		{"comment dropped", "<!-- hidden -->\ntext", `p("text")`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mustParse(t, tc.in, Options{}); got != tc.want {
				t.Errorf("got  %s\nwant %s", got, tc.want)
			}
		})
	}
}

func TestParse_Inlines(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"*em* and _em_", `p(em("em")," and ",em("em"))`},
		{"***both***", `p(strong(em("both")))`},
		{"~~gone~~", `p(del("gone"))`},
		{"snake_case_name", `p("snake_case_name")`},
		{"`a <b> c`", `p(code("a <b> c"))`},
		{"``x ` y``", "p(code(\"x ` y\"))"},
		{"[site](https://x.dev \"T\")", `p(a[href=https://x.dev title=T]("site"))`},
		{"![alt](/i.png)", `p(img[src=/i.png alt=alt])`},
		{"<https://go.dev>", `p(a[href=https://go.dev]("https://go.dev"))`},
		{`\*literal\*`, `p("*literal*")`},
		{"a < b and 2*3", `p("a < b and 2*3")`},
		{"open { brace", `p("open { brace")`},
		{"x {/* note */} y", `p("x  y")`},
		{"**unclosed", `p("**unclosed")`},
	}
	for _, tc := range cases {
		if got := mustParse(t, tc.in, Options{}); got != tc.want {
			t.Errorf("Parse(%q)\n got  %s\n want %s", tc.in, got, tc.want)
		}
	}
}

func TestParse_Components(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"inline component", "<Button>Go</Button>", `@Button("Go")`},
		{"self closing", `<Badge label="new" />`, `@Badge[label=new]`},
		{"in paragraph", "Click <Button kind='primary'>Go</Button> now", `p("Click ",@Button[kind=primary]("Go")," now")`},
		{"lowercase element", `<div class="x">hi</div>`, `div[class=x]("hi")`},
		{"block component", "<Card title=\"T\">\n\n## Inside\n\nBody *text*\n\n</Card>", `@Card[title=T](h2("Inside"),p("Body ",em("text")))`},
		{"nested same name", "<Box>\n<Box>inner</Box>\n</Box>", `@Box(@Box("inner"))`},
		{"bare and literal attrs", "<Item active count=3 label=hi />", `@Item[active=true count=3 label=hi]`},
		{"unclosed inline", "a <Card>b", `p("a ",@Card("b"))`},
		{"unclosed block", "<Card>\ntext\n\nmore", `@Card(p("text"),p("more"))`},
		{"two on a line", "<A/> <B/>", `p(@A," ",@B)`},
		{"stray close", "text </Card>", `p("text </Card>")`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mustParse(t, tc.in, Options{}); got != tc.want {
				t.Errorf("got  %s\nwant %s", got, tc.want)
			}
		})
	}
}

func TestParse_Expressions(t *testing.T) {
	fm := node.NewAttrs()
	fm.Set("title", "X")
	fm.Set("n", 2)
	opts := Options{Frontmatter: fm}

	if got := mustParse(t, "# {context('title')}", opts); got != `h1("X")` {
		t.Errorf("heading expression = %s", got)
	}
	if got := mustParse(t, "Total: {context('n') * 21}", opts); got != `p("Total: 42")` {
		t.Errorf("arithmetic = %s", got)
	}
	if got := mustParse(t, `<Card title={context('title') + "!"} size={1 + 1} />`, opts); got != `@Card[title=X! size=2]` {
		t.Errorf("attribute expression = %s", got)
	}

	_, err := Parse("bad {nope}", opts)
	if !errors.Is(err, apperr.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	_, err = Parse(`<Card x={1 +} />`, opts)
	if !errors.Is(err, apperr.ErrParse) {
		t.Fatalf("expected parse error for attribute, got %v", err)
	}
}

func TestParse_Directives(t *testing.T) {
	opts := Options{Directives: []string{"v-", "x:"}}
	got := mustParse(t, `<Card v-if="show" x:on="click" title="T" />`, opts)
	if got != `@Card[title=T]{v-if=show x:on=click}` {
		t.Errorf("got %s", got)
	}
}

func TestParse_DepthLimit(t *testing.T) {
	body := strings.Repeat("<div>", 300) + "x" + strings.Repeat("</div>", 300)
	done := make(chan struct{})
	var nodes []*node.Node
	var err error
	go func() {
		nodes, err = Parse(body, Options{MaxDepth: 20})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("parse did not terminate")
	}
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	depth := 0
	var walk func([]*node.Node, int)
	walk = func(ns []*node.Node, d int) {
		for _, n := range ns {
			if d > depth {
				depth = d
			}
			walk(n.Children, d+1)
		}
	}
	walk(nodes, 1)
	if depth > 22 {
		t.Errorf("tree depth %d exceeds limit", depth)
	}
}

func TestParse_MalformedTerminates(t *testing.T) {
	inputs := []string{
		"<", "<<<<", "<A", "<A b=", "<A b=\"x", "<A b={", "[", "[a](", "![", "**", "``", "{", "{'",
		"</A>", "<A></B></A>", "- ", "1.", "|a|\n|-|", "> ", "<!--",
	}
	for _, in := range inputs {
		if _, err := Parse(in, Options{}); err != nil && !errors.Is(err, apperr.ErrParse) {
			t.Errorf("Parse(%q): unexpected error %v", in, err)
		}
	}
}
