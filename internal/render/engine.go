// Package render coordinates batch rendering: it validates a request, fans
// documents out to a bounded worker group, and collects one outcome per
// document into a BatchResult.
package render

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mdxengine/internal/apperr"
	"github.com/starford/mdxengine/internal/models"
	"github.com/starford/mdxengine/internal/registry"
	"github.com/starford/mdxengine/internal/sandbox"
)

// DefaultPoolSize is the number of script contexts when none is configured.
const DefaultPoolSize = 4

// Limits bound the size of a request.
type Limits struct {
	MaxDocuments      int `yaml:"max_documents"`
	MaxDocumentBytes  int `yaml:"max_document_bytes"`
	MaxComponentBytes int `yaml:"max_component_bytes"`
}

// DefaultLimits are applied when no limits are configured.
var DefaultLimits = Limits{
	MaxDocuments:      1000,
	MaxDocumentBytes:  10 << 20,
	MaxComponentBytes: 1 << 20,
}

// Option configures an Engine.
type Option func(*Engine)

// WithPool sets the script context pool.
func WithPool(p *sandbox.Pool) Option {
	return func(e *Engine) { e.pool = p }
}

// WithRetryPolicy sets how fatal context faults are retried.
func WithRetryPolicy(r sandbox.RetryPolicy) Option {
	return func(e *Engine) { e.retry = r }
}

// WithTransformStore persists transformed component source.
func WithTransformStore(s sandbox.TransformStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithWarmCache keeps compiled programs for the engine lifetime instead
// of per batch.
func WithWarmCache(on bool) Option {
	return func(e *Engine) { e.warmCache = on }
}

// WithLimits sets request limits.
func WithLimits(l Limits) Option {
	return func(e *Engine) { e.limits = l }
}

// WithMaxDepth bounds markup nesting in parsed documents.
func WithMaxDepth(n int) Option {
	return func(e *Engine) { e.maxDepth = n }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine renders batches. It is safe for concurrent use.
type Engine struct {
	pool      *sandbox.Pool
	retry     sandbox.RetryPolicy
	store     sandbox.TransformStore
	warmCache bool
	limits    Limits
	maxDepth  int
	logger    *slog.Logger

	compiler *sandbox.Compiler
	executor *sandbox.Executor
	warm     *sandbox.ProgramCache
}

// New returns an engine. Without WithPool it owns a pool of DefaultPoolSize contexts.
func New(opts ...Option) *Engine {
	e := &Engine{
		retry:  sandbox.DefaultRetryPolicy,
		limits: DefaultLimits,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.limits.MaxDocuments <= 0 {
		e.limits.MaxDocuments = DefaultLimits.MaxDocuments
	}
	if e.limits.MaxDocumentBytes <= 0 {
		e.limits.MaxDocumentBytes = DefaultLimits.MaxDocumentBytes
	}
	if e.limits.MaxComponentBytes <= 0 {
		e.limits.MaxComponentBytes = DefaultLimits.MaxComponentBytes
	}
	if e.pool == nil {
		e.pool = sandbox.NewPool(DefaultPoolSize, sandbox.WithLogger(e.logger))
	}
	e.compiler = sandbox.NewCompiler(e.store, e.logger)
	e.executor = sandbox.NewExecutor(e.pool, e.retry, e.logger)
	if e.warmCache {
		e.warm = sandbox.NewProgramCache(e.compiler)
	}
	return e
}

// Stats reports the context pool.
func (e *Engine) Stats() sandbox.Stats { return e.pool.Stats() }

// Warm pre-creates n script contexts.
func (e *Engine) Warm(ctx context.Context, n int) error { return e.pool.Warm(ctx, n) }

// Close releases the script contexts.
func (e *Engine) Close() { e.pool.Close() }

// Components lists the built-in components.
func (e *Engine) Components() []registry.Definition { return registry.Builtins() }

// Render renders every document of req. A request that fails validation
// returns an InvalidRequest error and renders nothing; otherwise every
// document gets exactly one outcome and the error is nil.
func (e *Engine) Render(ctx context.Context, req *models.Request) (*models.BatchResult, error) {
	if req == nil {
		return nil, apperr.New(apperr.ErrInvalidRequest, "request is required")
	}
	settings := req.Settings.WithDefaults()
	if err := e.validate(req, settings); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	b, err := e.newBatch(ctx, id, req, settings)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	type job struct {
		name, text string
	}
	jobs := make([]job, 0, documentCount(req))
	if req.Documents != nil {
		for p := req.Documents.Oldest(); p != nil; p = p.Next() {
			jobs = append(jobs, job{p.Key, p.Value})
		}
	}

	outcomes := make([]models.RenderOutcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(e.pool.Capacity())
	for i, j := range jobs {
		g.Go(func() error {
			outcomes[i] = e.renderDocument(ctx, b, j.name, j.text)
			return nil
		})
	}
	_ = g.Wait()

	result := models.NewBatchResult(id)
	for i, j := range jobs {
		result.Record(j.name, outcomes[i])
	}

	e.logger.Info("batch rendered",
		slog.String("batch_id", id),
		slog.String("output", settings.Output),
		slog.Int("total", result.Total),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", time.Since(start)))
	return result, nil
}

// RenderDocument renders a single document with the given settings and
// component definitions.
func (e *Engine) RenderDocument(ctx context.Context, name, text string, settings models.Settings, defs map[string]models.ComponentDefinition) (models.RenderOutcome, error) {
	res, err := e.Render(ctx, &models.Request{
		Settings:             settings,
		Documents:            models.NewDocuments(name, text),
		ComponentDefinitions: defs,
	})
	if err != nil {
		return models.RenderOutcome{}, err
	}
	o, _ := res.Outcome(name)
	return o, nil
}

// batch is the immutable state shared by the documents of one request.
type batch struct {
	settings models.Settings
	sandbox  *sandbox.Batch
}

func (e *Engine) newBatch(ctx context.Context, id string, req *models.Request, settings models.Settings) (*batch, error) {
	defs := make(map[string]registry.Definition, len(req.ComponentDefinitions))
	for key, d := range req.ComponentDefinitions {
		name := d.Name
		if name == "" {
			name = key
		}
		def := registry.NewDefinition(name, d.Code)
		def.Docs = d.Docs
		def.Args = d.Args
		defs[name] = def
	}

	programs := e.warm
	if programs == nil {
		programs = sandbox.NewProgramCache(e.compiler)
	}
	sb := &sandbox.Batch{
		ID:       id,
		Registry: registry.New(registry.Mode(settings.Engine), settings.Components, defs),
		Programs: programs,
	}
	if settings.Utils != "" {
		prog, err := e.compiler.CompileUtils(ctx, settings.Utils)
		if err != nil {
			return nil, apperr.New(apperr.ErrInvalidRequest, "utils: %v", err)
		}
		sb.Utils = prog
	}
	return &batch{settings: settings, sandbox: sb}, nil
}

func documentCount(req *models.Request) int {
	if req.Documents == nil {
		return 0
	}
	return req.Documents.Len()
}
