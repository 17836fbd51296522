package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM transforms`).Scan(&count); err != nil {
		t.Fatalf("transforms table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM renders`).Scan(&count); err != nil {
		t.Fatalf("renders table missing: %v", err)
	}
}

func TestTransforms(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, ok, err := db.Get(ctx, "h1"); err != nil || ok {
		t.Fatalf("Get on empty cache = %v, %v", ok, err)
	}
	if err := db.Put(ctx, "h1", "module.exports = 1;"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Put(ctx, "h1", "ignored"); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	code, ok, err := db.Get(ctx, "h1")
	if err != nil || !ok || code != "module.exports = 1;" {
		t.Fatalf("Get = %q, %v, %v", code, ok, err)
	}

	st, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Entries != 1 || st.Hits != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRenderStates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	s := RenderState{Path: "a.mdx", Checksum: "c1", Fingerprint: "f1", OutputPath: "a.html", Status: "success", RenderedAt: at}
	if err := db.SaveRenderState(ctx, s); err != nil {
		t.Fatalf("SaveRenderState: %v", err)
	}
	s.Checksum, s.Status, s.Error = "c2", "error", "parse_error: boom"
	if err := db.SaveRenderState(ctx, s); err != nil {
		t.Fatalf("SaveRenderState (update): %v", err)
	}
	_ = db.SaveRenderState(ctx, RenderState{Path: "b.mdx", Checksum: "c", Fingerprint: "f", Status: "success"})

	states, err := db.RenderStates(ctx)
	if err != nil {
		t.Fatalf("RenderStates: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("len = %d, want 2", len(states))
	}
	got := states["a.mdx"]
	if got.Checksum != "c2" || got.Status != "error" || got.Error != "parse_error: boom" || !got.RenderedAt.Equal(at) {
		t.Errorf("state = %+v", got)
	}

	if err := db.DeleteRenderState(ctx, "a.mdx"); err != nil {
		t.Fatalf("DeleteRenderState: %v", err)
	}
	states, _ = db.RenderStates(ctx)
	if _, ok := states["a.mdx"]; ok || len(states) != 1 {
		t.Errorf("states after delete = %v", states)
	}
}
