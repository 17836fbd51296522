package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/mdxengine/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// Watch runs an initial Sync and then processes file change events until
// ctx is cancelled.
//
// Writes to a document re-render it. Removing a document deletes its
// output. Renames, new directories and any change under the component
// directory schedule a debounced Sync pass; since component code is part
// of the site fingerprint, that pass re-renders every document.
func Watch(ctx context.Context, b *Builder, logger *slog.Logger) error {
	if _, err := b.Sync(ctx); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	docsRoot := b.Docs().Root()
	if err := addDirsRecursive(w, docsRoot); err != nil {
		return err
	}
	var componentsRoot string
	if c := b.Components(); c != nil {
		componentsRoot = c.Root()
		if err := addDirsRecursive(w, componentsRoot); err != nil {
			return err
		}
	}

	logger.Info("watcher: started",
		slog.String("documents", docsRoot),
		slog.String("components", componentsRoot))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if _, err := b.Sync(ctx); err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					scheduleReconcile()
					continue
				}
			}

			if componentsRoot != "" && within(componentsRoot, absPath) {
				if isComponent(absPath) {
					logger.Debug("watcher: component changed", slog.String("path", absPath))
					scheduleReconcile()
				}
				continue
			}

			if !isDocument(absPath) || strings.HasPrefix(filepath.Base(absPath), ".mdx-tmp-") {
				continue
			}
			rel, relErr := filepath.Rel(docsRoot, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if _, err := b.Render(ctx, rel); err != nil {
					logger.Warn("watcher: render failed", slog.String("path", rel), slog.String("error", err.Error()))
				}

			case ev.Op&fsnotify.Remove != 0:
				if err := b.Remove(ctx, rel); err != nil {
					logger.Warn("watcher: remove failed", slog.String("path", rel), slog.String("error", err.Error()))
				}

			case ev.Op&fsnotify.Rename != 0:
				// Rename fires on the old path only; the new path arrives
				// as a Create if it stays inside a watched directory.
				if err := b.Remove(ctx, rel); err != nil {
					logger.Warn("watcher: rename remove failed", slog.String("path", rel), slog.String("error", err.Error()))
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func isDocument(name string) bool {
	return slices.Contains(storage.DocumentExtensions, filepath.Ext(name))
}

func isComponent(name string) bool {
	return slices.Contains(storage.ComponentExtensions, filepath.Ext(name))
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func within(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(os.PathSeparator))
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
