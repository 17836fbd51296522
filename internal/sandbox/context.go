package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/starford/mdxengine/internal/apperr"
	"github.com/starford/mdxengine/internal/node"
	"github.com/starford/mdxengine/internal/registry"
)

// Batch is the request-scoped state shared by every invocation of one render batch.
type Batch struct {
	ID       string
	Registry *registry.Registry
	Programs *ProgramCache
	// Utils evaluates to the frozen utils binding; nil when the batch has none.
	Utils *goja.Program
}

// Invocation is one component call.
type Invocation struct {
	Batch       *Batch
	Document    string
	Component   registry.Definition
	Props       *node.Attrs
	Children    []*node.Node
	Frontmatter *node.Attrs
	// OnNested is told about components resolved from inside scripts.
	OnNested func(name string)
}

// Context is one isolated script runtime. A context runs one invocation
// at a time and is owned by the pool between invocations.
type Context struct {
	vm   *goja.Runtime
	gen  uint64
	slot int
	opts *poolOptions

	// arena holds component functions compiled in this runtime, keyed by
	// content hash. It belongs to one program cache and dies with the
	// runtime or when a batch brings a different cache.
	arena    map[string]goja.Callable
	programs *ProgramCache

	batchID string
	lazy    []string
	inv     *Invocation
}

func newContext(gen uint64, slot int, opts *poolOptions) (*Context, error) {
	vm := goja.New()
	if opts.maxCallStack > 0 {
		vm.SetMaxCallStackSize(opts.maxCallStack)
	}
	if _, err := vm.RunProgram(preludeProgram); err != nil {
		return nil, fmt.Errorf("sandbox: prelude: %w", err)
	}
	for name, v := range opts.globals {
		if err := vm.Set(name, v); err != nil {
			return nil, fmt.Errorf("sandbox: global %s: %w", name, err)
		}
	}
	return &Context{
		vm:    vm,
		gen:   gen,
		slot:  slot,
		opts:  opts,
		arena: make(map[string]goja.Callable),
	}, nil
}

// Generation identifies the runtime instance; replacements get a new one.
func (c *Context) Generation() uint64 { return c.gen }

// Compiled returns how many component functions live in the arena.
func (c *Context) Compiled() int { return len(c.arena) }

func (c *Context) destroy() {
	c.vm.Interrupt("context destroyed")
	c.arena = nil
	c.inv = nil
}

// Invoke runs one component and returns its normalized output.
func (c *Context) Invoke(ctx context.Context, inv Invocation) (nodes []*node.Node, err error) {
	name := inv.Component.Name
	if err := ctx.Err(); err != nil {
		return nil, &apperr.Error{Kind: apperr.ErrFatalContextFault, Component: name, Err: err}
	}

	defer func() {
		if r := recover(); r != nil {
			nodes, err = nil, panicError(r, name)
		}
	}()

	// Interrupt callbacks close their channel when done; a callback that
	// could not be stopped must finish before the interrupt is cleared.
	var timer *time.Timer
	timerDone := make(chan struct{})
	if c.opts.execTimeout > 0 {
		timer = time.AfterFunc(c.opts.execTimeout, func() {
			c.vm.Interrupt(errExecTimeout)
			close(timerDone)
		})
	}
	ctxDone := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		c.vm.Interrupt(ctx.Err())
		close(ctxDone)
	})
	defer func() {
		if timer != nil && !timer.Stop() {
			<-timerDone
		}
		if !stop() {
			<-ctxDone
		}
		c.vm.ClearInterrupt()
		c.inv = nil
	}()

	if err := c.prepare(inv.Batch); err != nil {
		return nil, classify(err, name)
	}
	c.inv = &inv

	fn, err := c.load(ctx, inv.Component)
	if err != nil {
		return nil, classify(err, name)
	}

	scope := c.vm.NewObject()
	accessor := c.vm.ToValue(c.contextAccessor(inv.Frontmatter))
	_ = scope.Set("utils", c.vm.Get("utils"))
	_ = scope.Set("context", accessor)
	_ = c.vm.Set("__scope", scope)
	_ = c.vm.Set("context", accessor)

	v, err := fn(goja.Undefined(), c.propsObject(inv.Props, inv.Children), scope)
	if err != nil {
		return nil, classify(err, name)
	}
	nodes, err = c.toNodes(v, 0)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.ErrExecution, Component: name, Err: err}
	}
	return nodes, nil
}

// prepare binds batch state the first time this context serves a batch:
// the utils value and one global per resolvable component name.
func (c *Context) prepare(b *Batch) error {
	if b == nil || c.batchID == b.ID {
		return nil
	}
	global := c.vm.GlobalObject()
	for _, name := range c.lazy {
		_ = global.Delete(name)
	}
	c.lazy = c.lazy[:0]

	if b.Programs != c.programs {
		clear(c.arena)
		c.programs = b.Programs
	}

	utils := goja.Undefined()
	if b.Utils != nil {
		v, err := c.vm.RunProgram(b.Utils)
		if err != nil {
			return fmt.Errorf("utils: %w", err)
		}
		utils = v
	}
	if err := c.vm.Set("utils", utils); err != nil {
		return err
	}

	if b.Registry != nil {
		for _, name := range b.Registry.Names() {
			if reservedGlobals[name] || !isIdentifier(name) || global.Get(name) != nil {
				continue
			}
			if err := c.vm.Set(name, c.nestedComponent(name)); err != nil {
				return err
			}
			c.lazy = append(c.lazy, name)
		}
	}
	c.batchID = b.ID
	return nil
}

// load returns the function for def, running its compiled program in this
// runtime on first use.
func (c *Context) load(ctx context.Context, def registry.Definition) (goja.Callable, error) {
	if def.Hash == "" {
		def.Hash = registry.Hash(def.Name, def.Code)
	}
	if fn, ok := c.arena[def.Hash]; ok {
		return fn, nil
	}
	if c.inv == nil || c.inv.Batch == nil || c.inv.Batch.Programs == nil {
		return nil, fmt.Errorf("no program cache bound")
	}
	prog, err := c.inv.Batch.Programs.Get(ctx, def)
	if err != nil {
		return nil, err
	}
	v, err := c.vm.RunProgram(prog)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("component %s did not evaluate to a function", def.Name)
	}
	c.arena[def.Hash] = fn
	return fn, nil
}

// nestedComponent returns the global function behind <Name/> inside
// component scripts. It resolves name against the current batch.
func (c *Context) nestedComponent(name string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		inv := c.inv
		if inv == nil || inv.Batch == nil || inv.Batch.Registry == nil {
			panic(c.vm.NewTypeError("component %s is not available", name))
		}
		def, ok := inv.Batch.Registry.Resolve(name)
		if !ok {
			panic(c.vm.NewTypeError("component %s is not available", name))
		}
		fn, err := c.load(context.Background(), def)
		if err != nil {
			panic(c.vm.NewGoError(err))
		}
		if inv.OnNested != nil {
			inv.OnNested(name)
		}
		v, err := fn(goja.Undefined(), call.Arguments...)
		if err != nil {
			if exc, ok := err.(*goja.Exception); ok {
				panic(exc.Value())
			}
			panic(err)
		}
		return v
	}
}

func (c *Context) contextAccessor(fm *node.Attrs) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return c.toJS(fm)
		}
		v, ok := node.Lookup(fm, call.Argument(0).String())
		if !ok {
			return goja.Undefined()
		}
		return c.toJS(v)
	}
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		letter := ch == '_' || ch == '$' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z'
		if !letter && (i == 0 || ch < '0' || ch > '9') {
			return false
		}
	}
	return true
}
