// Package watcher keeps a directory of rendered output in step with a
// directory of source documents.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/starford/mdxengine/internal/cache"
	"github.com/starford/mdxengine/internal/checksum"
	"github.com/starford/mdxengine/internal/models"
	"github.com/starford/mdxengine/internal/registry"
	"github.com/starford/mdxengine/internal/render"
	"github.com/starford/mdxengine/internal/sse"
	"github.com/starford/mdxengine/internal/storage"
)

// DefaultUtilsFile is the component-directory file whose code becomes the
// batch utils.
const DefaultUtilsFile = "utils.js"

// chunkSize bounds the documents rendered in one batch.
const chunkSize = 500

var outputExt = map[string]string{
	models.OutputHTML:       ".html",
	models.OutputJavaScript: ".js",
	models.OutputJSON:       ".json",
	models.OutputSchema:     ".schema.json",
}

// OutputPath maps a document path to its rendered output path,
// e.g. "guide/intro.mdx" to "guide/intro.html".
func OutputPath(doc, output string) string {
	ext, ok := outputExt[output]
	if !ok {
		ext = outputExt[models.OutputHTML]
	}
	return strings.TrimSuffix(doc, path.Ext(doc)) + ext
}

// StateStore records what was last rendered for each document.
type StateStore interface {
	RenderStates(ctx context.Context) (map[string]cache.RenderState, error)
	SaveRenderState(ctx context.Context, s cache.RenderState) error
	DeleteRenderState(ctx context.Context, path string) error
}

// EventCallback is called after each output change.
type EventCallback func(ev sse.DocumentEvent)

// Report summarises one Sync pass.
type Report struct {
	Rendered int `json:"rendered"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	Deleted  int `json:"deleted"`
}

// Builder renders documents from one provider into another.
type Builder struct {
	engine     *render.Engine
	docs       storage.Provider
	out        storage.Provider
	components storage.Provider
	utilsFile  string
	state      StateStore
	settings   models.Settings
	logger     *slog.Logger
	cb         EventCallback

	mu sync.Mutex // serialises passes
}

// Option configures a Builder.
type Option func(*Builder)

// WithComponents loads component definitions from p. Each file defines the
// component named after its base name; the utils file supplies utils.
func WithComponents(p storage.Provider) Option {
	return func(b *Builder) { b.components = p }
}

// WithUtilsFile overrides DefaultUtilsFile.
func WithUtilsFile(name string) Option {
	return func(b *Builder) { b.utilsFile = name }
}

// WithState enables incremental builds.
func WithState(s StateStore) Option {
	return func(b *Builder) { b.state = s }
}

// WithSettings sets the batch settings used for every render.
func WithSettings(s models.Settings) Option {
	return func(b *Builder) { b.settings = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithCallback sets the event callback.
func WithCallback(cb EventCallback) Option {
	return func(b *Builder) { b.cb = cb }
}

// NewBuilder returns a Builder rendering docs into out.
func NewBuilder(engine *render.Engine, docs, out storage.Provider, opts ...Option) *Builder {
	b := &Builder{
		engine:    engine,
		docs:      docs,
		out:       out,
		utilsFile: DefaultUtilsFile,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.settings = b.settings.WithDefaults()
	return b
}

// Settings returns the effective settings.
func (b *Builder) Settings() models.Settings { return b.settings }

// Docs returns the source provider.
func (b *Builder) Docs() storage.Provider { return b.docs }

// Components returns the component provider, or nil.
func (b *Builder) Components() storage.Provider { return b.components }

// site is everything besides a document that affects its output.
type site struct {
	settings    models.Settings
	defs        map[string]models.ComponentDefinition
	fingerprint string
}

func (b *Builder) loadSite() (*site, error) {
	s := &site{settings: b.settings, defs: map[string]models.ComponentDefinition{}}
	if b.components != nil {
		metas, err := b.components.List("")
		if err != nil {
			return nil, fmt.Errorf("watcher: list components: %w", err)
		}
		for _, m := range metas {
			data, err := b.components.Read(m.Path)
			if err != nil {
				return nil, fmt.Errorf("watcher: read component %s: %w", m.Path, err)
			}
			if m.Path == b.utilsFile {
				if s.settings.Utils == "" {
					s.settings.Utils = string(data)
				}
				continue
			}
			name := path.Base(strings.TrimSuffix(m.Path, path.Ext(m.Path)))
			s.defs[name] = models.ComponentDefinition{Name: name, Code: string(data)}
		}
	}

	if s.settings.Engine == models.EngineBase && len(s.settings.Components) == 0 && len(s.defs) > 0 {
		allow := make([]string, 0, len(s.defs))
		for _, d := range registry.Builtins() {
			allow = append(allow, d.Name)
		}
		for name := range s.defs {
			allow = append(allow, name)
		}
		sort.Strings(allow)
		s.settings.Components = allow
	}

	raw, err := json.Marshal(struct {
		Settings models.Settings                       `json:"settings"`
		Defs     map[string]models.ComponentDefinition `json:"defs"`
	}{s.settings, s.defs})
	if err != nil {
		return nil, err
	}
	s.fingerprint = checksum.Sum(raw)
	return s, nil
}

// Sync renders every document whose source or site changed since the last
// recorded render and removes output for documents that no longer exist.
// Without a StateStore every document is rendered.
func (b *Builder) Sync(ctx context.Context) (*Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.loadSite()
	if err != nil {
		return nil, err
	}
	metas, err := b.docs.List("")
	if err != nil {
		return nil, fmt.Errorf("watcher: list documents: %w", err)
	}
	states := map[string]cache.RenderState{}
	if b.state != nil {
		if states, err = b.state.RenderStates(ctx); err != nil {
			return nil, err
		}
	}

	report := &Report{}
	disk := make(map[string]struct{}, len(metas))
	var changed []string
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		if st, ok := states[m.Path]; ok && st.Checksum == m.Checksum && st.Fingerprint == s.fingerprint {
			report.Skipped++
			continue
		}
		changed = append(changed, m.Path)
	}

	for start := 0; start < len(changed); start += chunkSize {
		end := min(start+chunkSize, len(changed))
		if err := b.renderPaths(ctx, s, changed[start:end], report); err != nil {
			return report, err
		}
	}

	for p, st := range states {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := b.remove(ctx, p, st.OutputPath); err != nil {
			b.logger.Warn("sync: remove failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		report.Deleted++
	}

	b.logger.Info("sync: done",
		slog.Int("rendered", report.Rendered),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
		slog.Int("deleted", report.Deleted))
	return report, nil
}

// Render re-renders the given documents unconditionally.
func (b *Builder) Render(ctx context.Context, paths ...string) (*Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.loadSite()
	if err != nil {
		return nil, err
	}
	report := &Report{}
	if err := b.renderPaths(ctx, s, paths, report); err != nil {
		return report, err
	}
	return report, nil
}

// Remove deletes the output and state of a document.
func (b *Builder) Remove(ctx context.Context, doc string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remove(ctx, doc, "")
}

func (b *Builder) remove(ctx context.Context, doc, outPath string) error {
	if outPath == "" {
		outPath = OutputPath(doc, b.settings.Output)
	}
	if err := b.out.Delete(outPath); err != nil && !isNotExist(err) {
		return err
	}
	if b.state != nil {
		if err := b.state.DeleteRenderState(ctx, doc); err != nil {
			return err
		}
	}
	b.logger.Debug("watcher: removed", slog.String("path", doc))
	b.emit(sse.DocumentEvent{Type: sse.EventDocumentDeleted, Path: doc, Output: outPath})
	return nil
}

func (b *Builder) renderPaths(ctx context.Context, s *site, paths []string, report *Report) error {
	if len(paths) == 0 {
		return nil
	}
	docs := models.NewDocuments()
	sums := make(map[string]string, len(paths))
	for _, p := range paths {
		data, err := b.docs.Read(p)
		if err != nil {
			b.logger.Warn("watcher: read failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		docs.Set(p, string(data))
		sums[p] = checksum.Sum(data)
	}
	if docs.Len() == 0 {
		return nil
	}

	res, err := b.engine.Render(ctx, &models.Request{
		Settings:             s.settings,
		Documents:            docs,
		ComponentDefinitions: s.defs,
	})
	if err != nil {
		return err
	}

	for pair := res.Documents.Oldest(); pair != nil; pair = pair.Next() {
		doc, o := pair.Key, pair.Value
		outPath := OutputPath(doc, s.settings.Output)
		st := cache.RenderState{
			Path:        doc,
			Checksum:    sums[doc],
			Fingerprint: s.fingerprint,
			OutputPath:  outPath,
			Status:      string(o.Status),
		}
		ev := sse.DocumentEvent{Path: doc, Output: outPath}

		if o.Status == models.StatusSuccess {
			if err := b.out.Write(outPath, []byte(o.Output)); err != nil {
				return fmt.Errorf("watcher: write %s: %w", outPath, err)
			}
			report.Rendered++
			ev.Type = sse.EventDocumentRendered
		} else {
			// Stale output would hide the failure.
			if err := b.out.Delete(outPath); err != nil && !isNotExist(err) {
				b.logger.Warn("watcher: delete stale output failed", slog.String("path", outPath), slog.String("error", err.Error()))
			}
			report.Failed++
			st.Error = o.Error.Message
			ev.Type = sse.EventDocumentFailed
			ev.Kind = o.Error.Kind
			ev.Error = o.Error.Message
		}

		if b.state != nil {
			if err := b.state.SaveRenderState(ctx, st); err != nil {
				return err
			}
		}
		b.emit(ev)
	}
	return nil
}

func (b *Builder) emit(ev sse.DocumentEvent) {
	if b.cb != nil {
		b.cb(ev)
	}
}
