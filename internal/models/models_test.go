package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/mdxengine/internal/apperr"
	"github.com/starford/mdxengine/internal/node"
)

func TestRequest_Unmarshal(t *testing.T) {
	body := `{
  "settings": {"output": "json", "components": ["Card"], "directives": ["x-"]},
  "documents": {"b.mdx": "# B", "a.mdx": "# A"},
  "componentDefinitions": {"Card": {"code": "export default () => null"}}
}`
	var req Request
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	var names []string
	for p := req.Documents.Oldest(); p != nil; p = p.Next() {
		names = append(names, p.Key)
	}
	if diff := cmp.Diff([]string{"b.mdx", "a.mdx"}, names); diff != "" {
		t.Errorf("document order (-want +got):\n%s", diff)
	}
	if req.Settings.Output != "json" || !req.Settings.MinifyOutput() {
		t.Errorf("settings = %+v", req.Settings)
	}
	if req.ComponentDefinitions["Card"].Code == "" {
		t.Error("definition not decoded")
	}
}

func TestRequest_Aliases(t *testing.T) {
	body := `{"settings": {"minify": false}, "mdx": {"x": "hi"}, "components": {"Tag": {"code": "c"}}}`
	var req Request
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v, _ := req.Documents.Get("x"); v != "hi" {
		t.Errorf("mdx alias not applied: %q", v)
	}
	if _, ok := req.ComponentDefinitions["Tag"]; !ok {
		t.Error("components alias not applied")
	}
	if req.Settings.MinifyOutput() {
		t.Error("explicit minify false ignored")
	}
}

func TestRequest_Invalid(t *testing.T) {
	tests := map[string]string{
		"non-string document": `{"documents": {"a": 42}}`,
		"malformed settings":  `{"settings": "fast", "documents": {}}`,
		"not an object":       `[1, 2]`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			var req Request
			err := json.Unmarshal([]byte(body), &req)
			if !errors.Is(err, apperr.ErrInvalidRequest) {
				t.Fatalf("expected invalid request, got %v", err)
			}
		})
	}
}

func TestSettings_WithDefaults(t *testing.T) {
	s := Settings{}.WithDefaults()
	if s.Output != OutputHTML || s.Engine != EngineBase || !s.MinifyOutput() {
		t.Errorf("defaults = %+v", s)
	}
}

func TestBatchResult_Record(t *testing.T) {
	res := NewBatchResult("b1")
	meta := node.NewAttrs()
	meta.Set("title", "X")
	res.Record("ok.mdx", Success(meta, "", nil))
	res.Record("z.mdx", Failure(apperr.New(apperr.ErrParse, "unterminated frontmatter")))
	res.Record("a.mdx", Failure(errors.New("boom")))

	if res.Total != 3 || res.Succeeded != 1 || res.Failed != 2 || res.Documents.Len() != 3 {
		t.Fatalf("counts = %d/%d/%d", res.Total, res.Succeeded, res.Failed)
	}
	want := []ErrorEntry{{Document: "a.mdx", Message: "boom"}, {Document: "z.mdx", Message: "unterminated frontmatter"}}
	if diff := cmp.Diff(want, res.Errors); diff != "" {
		t.Errorf("errors (-want +got):\n%s", diff)
	}

	res.Record("a.mdx", Success(nil, "<p/>", nil))
	if res.Total != 3 || res.Succeeded != 2 || res.Failed != 1 || len(res.Errors) != 1 {
		t.Errorf("re-record counts = %d/%d/%d errors=%d", res.Total, res.Succeeded, res.Failed, len(res.Errors))
	}
}

func TestRenderOutcome_JSON(t *testing.T) {
	ok, _ := json.Marshal(Success(nil, "", nil))
	if string(ok) != `{"status":"success","metadata":{},"output":""}` {
		t.Errorf("success json = %s", ok)
	}
	bad, _ := json.Marshal(Failure(apperr.New(apperr.ErrExecution, "nope")))
	if string(bad) != `{"status":"error","error":{"kind":"execution_error","message":"nope"}}` {
		t.Errorf("failure json = %s", bad)
	}
	if strings.Contains(string(bad), "output") {
		t.Error("failure must not carry output")
	}
}
