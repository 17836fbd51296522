// Package testutil provides shared test helpers for content directories,
// cache databases and loggers.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/mdxengine/internal/cache"
	"github.com/starford/mdxengine/internal/storage"
)

// TestCache opens a temporary SQLite cache that is closed on cleanup.
func TestCache(t *testing.T) *cache.DB {
	t.Helper()
	db, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestContent creates a temporary directory holding files (slash paths
// to contents) and returns it with a provider listing exts, or the
// document extensions when exts is empty.
func TestContent(t *testing.T, files map[string]string, exts ...string) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		WriteFile(t, dir, name, content)
	}
	var opts []storage.FSOption
	if len(exts) > 0 {
		opts = append(opts, storage.WithExtensions(exts...))
	}
	store, err := storage.NewFS(dir, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// WriteFile writes content to the slash path name under dir, creating
// parent directories.
func WriteFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
