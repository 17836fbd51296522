package serializer

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/mdxengine/internal/node"
)

func sampleTree() *node.Tree {
	h1 := node.NewElement("h1", node.NewText("Title"))
	link := node.NewElement("a", node.NewText("docs"))
	link.Attrs.Set("href", "/d?a=1&b=2")
	p := node.NewElement("p", node.NewText("Read  the\n"), link)
	p.Directives = node.NewAttrs()
	p.Directives.Set("x-show", "yes")
	input := node.NewElement("input")
	input.Attrs.Set("disabled", true)
	input.Attrs.Set("checked", false)
	input.Attrs.Set("value", nil)
	input.Attrs.Set("max", int64(3))
	return &node.Tree{Nodes: []*node.Node{h1, p, input}, References: []string{"Card", "Badge"}}
}

func TestSerialize_HTML(t *testing.T) {
	tree := sampleTree()

	got, err := Serialize(tree, HTML, Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := "<h1>Title</h1>\n<p>Read  the\n<a href=\"/d?a=1&amp;b=2\">docs</a></p>\n<input disabled max=\"3\"/>"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pretty html mismatch (-want +got):\n%s", diff)
	}

	got, _ = Serialize(tree, HTML, Options{Minify: true})
	want = "<h1>Title</h1><p>Read the <a href=\"/d?a=1&amp;b=2\">docs</a></p><input disabled max=\"3\"/>"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("minified html mismatch (-want +got):\n%s", diff)
	}
}

func TestSerialize_HTMLPreservesPreformatted(t *testing.T) {
	code := node.NewElement("code", node.NewText("a  <b>\n  c"))
	pre := node.NewElement("pre", code)
	script := node.NewElement("script", node.NewText("if (a < b) {}"))
	tree := &node.Tree{Nodes: []*node.Node{pre, script, node.NewText("x   y")}}

	got, _ := Serialize(tree, HTML, Options{Minify: true})
	want := "<pre><code>a  &lt;b&gt;\n  c</code></pre><script>if (a < b) {}</script>x y"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSerialize_JavaScript(t *testing.T) {
	strong := node.NewElement("strong", node.NewText("world"))
	p := node.NewElement("p", node.NewText("Hello "), strong)
	p.Attrs.Set("class", "lead")
	ul := node.NewElement("ul", node.NewElement("li", node.NewText("a")))
	tree := &node.Tree{Nodes: []*node.Node{p, ul}}

	got, err := Serialize(tree, JavaScript, Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := `export default function View() {
  return h(Fragment, null,
    h("p", {"class":"lead"}, "Hello ", h("strong", null, "world")),
    h("ul", null,
      h("li", null, "a")
    )
  );
}
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	min, err := Serialize(tree, JavaScript, Options{Minify: true})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(min, "\n") || !strings.HasPrefix(min, "export default function View()") {
		t.Errorf("minified output not collapsed: %q", min)
	}
	if !strings.Contains(min, `h("li",null,"a")`) {
		t.Errorf("minified output lost content: %q", min)
	}
}

func TestSerialize_JavaScriptEmpty(t *testing.T) {
	got, err := Serialize(&node.Tree{}, JavaScript, Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := "export default function View() {\n  return h(Fragment, null);\n}\n"
	if got != want {
		t.Errorf("got %q", got)
	}
}

func TestSerialize_Schema(t *testing.T) {
	got, _ := Serialize(sampleTree(), Schema, Options{Minify: true})
	if got != `["Card","Badge"]` {
		t.Errorf("got %s", got)
	}
	got, _ = Serialize(&node.Tree{}, Schema, Options{Minify: true})
	if got != `[]` {
		t.Errorf("empty references: got %s", got)
	}
}

func TestSerialize_JSON(t *testing.T) {
	p := node.NewElement("p", node.NewText("Hi"))
	p.Attrs.Set("class", "x")
	got, err := Serialize(&node.Tree{Nodes: []*node.Node{p}}, JSON, Options{Minify: true})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"#root","props":{},"children":[{"type":"p","props":{"class":"x"},"children":[{"type":"#text","props":{"value":"Hi"},"children":[]}]}]}`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	pretty, _ := Serialize(&node.Tree{Nodes: []*node.Node{p}}, JSON, Options{})
	if !strings.Contains(pretty, "\n  \"props\": {}") {
		t.Errorf("pretty json not indented:\n%s", pretty)
	}
}

func TestParseJSON_RoundTrip(t *testing.T) {
	tree := sampleTree()
	out, err := Serialize(tree, JSON, Options{})
	if err != nil {
		t.Fatal(err)
	}
	back, err := ParseJSON([]byte(out))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	again, err := Serialize(back, JSON, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(out, again); diff != "" {
		t.Errorf("round trip changed output (-first +second):\n%s", diff)
	}

	html1, _ := Serialize(tree, HTML, Options{})
	html2, _ := Serialize(back, HTML, Options{})
	if html1 != html2 {
		t.Errorf("html differs after round trip:\n%s\n%s", html1, html2)
	}
	if v, _ := back.Nodes[1].Directives.Get("x-show"); v != "yes" {
		t.Errorf("directive lost: %v", v)
	}
}

func TestParseJSON_Errors(t *testing.T) {
	for _, in := range []string{
		`not json`,
		`{"type":"div","props":{},"children":[]}`,
		`{"type":"#root","props":{},"children":[{"props":{}}]}`,
		`{"type":"#root","props":{},"children":[{"type":"#text","props":{"value":3}}]}`,
	} {
		if _, err := ParseJSON([]byte(in)); err == nil {
			t.Errorf("ParseJSON(%s): expected error", in)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != JSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
	if _, err := Serialize(&node.Tree{}, Format("xml"), Options{}); err == nil {
		t.Error("expected error serializing xml")
	}
}
