package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/mdxengine/internal/cache"
	"github.com/starford/mdxengine/internal/models"
	"github.com/starford/mdxengine/internal/render"
	"github.com/starford/mdxengine/internal/sse"
	"github.com/starford/mdxengine/internal/storage"
	"github.com/starford/mdxengine/internal/testutil"
)

const (
	shout = `export default function Shout(props) { return <b>{utils.upper(props.text)}</b>; }`
	upper = `export default { upper: (s) => String(s).toUpperCase() }`
)

type env struct {
	docsDir, compDir, outDir string
	builder                  *Builder
	db                       *cache.DB

	mu     sync.Mutex
	events []sse.DocumentEvent
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{}
	var docs, comps, out *storage.FS
	e.docsDir, docs = testutil.TestContent(t, nil)
	e.compDir, comps = testutil.TestContent(t, nil, storage.ComponentExtensions...)
	e.outDir, out = testutil.TestContent(t, nil)
	e.db = testutil.TestCache(t)

	engine := render.New(render.WithLogger(testutil.Logger()))
	t.Cleanup(engine.Close)

	e.builder = NewBuilder(engine, docs, out,
		WithComponents(comps),
		WithState(e.db),
		WithLogger(testutil.Logger()),
		WithCallback(func(ev sse.DocumentEvent) {
			e.mu.Lock()
			e.events = append(e.events, ev)
			e.mu.Unlock()
		}))
	return e
}

func (e *env) write(t *testing.T, dir, name, content string) {
	t.Helper()
	testutil.WriteFile(t, dir, name, content)
}

func (e *env) output(name string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(e.outDir, filepath.FromSlash(name)))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (e *env) sawEvent(typ, path string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ev := range e.events {
		if ev.Type == typ && ev.Path == path {
			return true
		}
	}
	return false
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		doc, output, want string
	}{
		{"a.mdx", models.OutputHTML, "a.html"},
		{"guide/intro.md", models.OutputJavaScript, "guide/intro.js"},
		{"a.mdx", models.OutputJSON, "a.json"},
		{"a.mdx", models.OutputSchema, "a.schema.json"},
		{"a.mdx", "unknown", "a.html"},
	}
	for _, tt := range tests {
		if got := OutputPath(tt.doc, tt.output); got != tt.want {
			t.Errorf("OutputPath(%q, %q) = %q, want %q", tt.doc, tt.output, got, tt.want)
		}
	}
}

func TestBuilder_Sync(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.write(t, e.docsDir, "a.mdx", "# A")
	e.write(t, e.docsDir, "guide/b.mdx", `<Shout text="hey"/>`)
	e.write(t, e.docsDir, "bad.mdx", "---\ntitle: broken\n# never closed\n")
	e.write(t, e.compDir, "Shout.jsx", shout)
	e.write(t, e.compDir, "utils.js", upper)

	report, err := e.builder.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Rendered != 2 || report.Failed != 1 {
		t.Errorf("first sync = %+v", report)
	}
	if out, ok := e.output("guide/b.html"); !ok || out != "<b>HEY</b>" {
		t.Errorf("guide/b.html = %q, %v", out, ok)
	}
	if out, ok := e.output("a.html"); !ok || out != "<h1>A</h1>" {
		t.Errorf("a.html = %q, %v", out, ok)
	}
	if _, ok := e.output("bad.html"); ok {
		t.Error("failed document must not leave output")
	}
	if !e.sawEvent(sse.EventDocumentRendered, "a.mdx") || !e.sawEvent(sse.EventDocumentFailed, "bad.mdx") {
		t.Errorf("events = %+v", e.events)
	}

	states, err := e.db.RenderStates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st := states["bad.mdx"]; st.Status != string(models.StatusError) || st.Error == "" {
		t.Errorf("bad.mdx state = %+v", st)
	}
	if st := states["guide/b.mdx"]; st.OutputPath != "guide/b.html" {
		t.Errorf("guide/b.mdx state = %+v", st)
	}

	report, err = e.builder.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Skipped != 3 || report.Rendered != 0 {
		t.Errorf("unchanged sync = %+v", report)
	}

	// Component code is part of every document's input.
	e.write(t, e.compDir, "Shout.jsx", `export default function Shout(props) { return <i>{props.text}</i>; }`)
	report, err = e.builder.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Rendered != 2 || report.Failed != 1 {
		t.Errorf("sync after component change = %+v", report)
	}
	if out, _ := e.output("guide/b.html"); out != "<i>hey</i>" {
		t.Errorf("guide/b.html after change = %q", out)
	}

	if err := os.Remove(filepath.Join(e.docsDir, "a.mdx")); err != nil {
		t.Fatal(err)
	}
	report, err = e.builder.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Deleted != 1 {
		t.Errorf("sync after delete = %+v", report)
	}
	if _, ok := e.output("a.html"); ok {
		t.Error("a.html should be removed")
	}
	if !e.sawEvent(sse.EventDocumentDeleted, "a.mdx") {
		t.Error("missing delete event")
	}
}

func TestBuilder_FailureRemovesStaleOutput(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.write(t, e.docsDir, "a.mdx", "# A")
	if _, err := e.builder.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.output("a.html"); !ok {
		t.Fatal("a.html not rendered")
	}

	e.write(t, e.docsDir, "a.mdx", "---\nbroken: [\n# A")
	report, err := e.builder.Render(ctx, "a.mdx")
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}
	if _, ok := e.output("a.html"); ok {
		t.Error("stale output left after failure")
	}
}

func TestWatch(t *testing.T) {
	e := newEnv(t)
	e.write(t, e.docsDir, "first.mdx", "# First")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, e.builder, testutil.Logger()) }()

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, ok := e.output("first.html")
		return ok
	}, "initial sync did not render first.mdx")

	time.Sleep(100 * time.Millisecond)
	e.write(t, e.docsDir, "new.mdx", "# New")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		out, ok := e.output("new.html")
		return ok && out == "<h1>New</h1>"
	}, "new document not rendered by watcher")

	if err := os.Remove(filepath.Join(e.docsDir, "first.mdx")); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, ok := e.output("first.html")
		return !ok
	}, "output of removed document still present")

	e.write(t, e.docsDir, "sub/deep.mdx", "# Deep")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, ok := e.output("sub/deep.html")
		return ok
	}, "document in new directory not rendered")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
