// Package sandbox runs component scripts in a bounded pool of isolated
// goja runtimes.
//
// A context that hits a fatal fault (timeout, cancellation, stack
// overflow, Go panic) is destroyed on release; its slot moves to the
// replacing state and a fresh runtime with a new generation is created
// the next time the slot is needed.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

type slotState int

const (
	slotEmpty slotState = iota
	slotIdle
	slotBusy
	slotReplacing
)

type slot struct {
	state slotState
	ctx   *Context
}

type poolOptions struct {
	acquireTimeout time.Duration
	execTimeout    time.Duration
	maxCallStack   int
	globals        map[string]any
	logger         *slog.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*poolOptions)

// WithAcquireTimeout bounds how long Acquire waits for a free context.
func WithAcquireTimeout(d time.Duration) PoolOption {
	return func(o *poolOptions) { o.acquireTimeout = d }
}

// WithExecTimeout bounds a single invocation. Zero disables the limit.
func WithExecTimeout(d time.Duration) PoolOption {
	return func(o *poolOptions) { o.execTimeout = d }
}

// WithMaxCallStackSize limits script recursion depth.
func WithMaxCallStackSize(n int) PoolOption {
	return func(o *poolOptions) { o.maxCallStack = n }
}

// WithGlobal installs a host value in every runtime the pool creates.
func WithGlobal(name string, v any) PoolOption {
	return func(o *poolOptions) {
		if o.globals == nil {
			o.globals = make(map[string]any)
		}
		o.globals[name] = v
	}
}

// WithLogger sets the pool logger.
func WithLogger(l *slog.Logger) PoolOption {
	return func(o *poolOptions) { o.logger = l }
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Capacity  int    `json:"capacity"`
	Live      int    `json:"live"`
	Idle      int    `json:"idle"`
	InUse     int    `json:"in_use"`
	Replacing int    `json:"replacing"`
	Created   uint64 `json:"created"`
	Replaced  uint64 `json:"replaced"`
	Closed    bool   `json:"closed"`
}

// Pool hands out execution contexts, at most one invocation per context.
type Pool struct {
	opts poolOptions
	sem  *semaphore.Weighted

	mu       sync.Mutex
	slots    []slot
	nextGen  uint64
	created  uint64
	replaced uint64
	closed   bool
}

// NewPool returns a pool with size slots. Runtimes are created lazily.
func NewPool(size int, opts ...PoolOption) *Pool {
	if size < 1 {
		size = 1
	}
	o := poolOptions{
		acquireTimeout: 30 * time.Second,
		execTimeout:    5 * time.Second,
		maxCallStack:   2048,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Pool{
		opts:  o,
		sem:   semaphore.NewWeighted(int64(size)),
		slots: make([]slot, size),
	}
}

// Capacity returns the number of slots.
func (p *Pool) Capacity() int { return len(p.slots) }

// Acquire borrows a healthy context, waiting at most the acquire timeout.
func (p *Pool) Acquire(ctx context.Context) (*Context, error) {
	waitCtx := ctx
	if p.opts.acquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.opts.acquireTimeout)
		defer cancel()
	}
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrAcquireTimeout
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}
	idx := -1
	for i := range p.slots {
		if p.slots[i].state == slotIdle {
			p.slots[i].state = slotBusy
			c := p.slots[i].ctx
			p.mu.Unlock()
			return c, nil
		}
		if idx < 0 && (p.slots[i].state == slotEmpty || p.slots[i].state == slotReplacing) {
			idx = i
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, errors.New("sandbox: no free slot")
	}
	replacing := p.slots[idx].state == slotReplacing
	p.slots[idx].state = slotBusy
	p.nextGen++
	gen := p.nextGen
	p.mu.Unlock()

	c, err := newContext(gen, idx, &p.opts)

	p.mu.Lock()
	if err != nil {
		p.slots[idx].state = slotEmpty
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, fmt.Errorf("sandbox: create context: %w", err)
	}
	p.slots[idx].ctx = c
	p.created++
	p.mu.Unlock()

	if replacing {
		p.opts.logger.Debug("sandbox: context replaced",
			slog.Int("slot", idx),
			slog.Uint64("generation", gen))
	}
	return c, nil
}

// Release returns c to the pool. An unhealthy context is destroyed and its
// slot is rebuilt on a later Acquire.
func (p *Pool) Release(c *Context, healthy bool) {
	if c == nil {
		return
	}
	p.mu.Lock()
	s := &p.slots[c.slot]
	if s.ctx != c {
		p.mu.Unlock()
		return
	}
	switch {
	case p.closed:
		c.destroy()
		s.ctx = nil
		s.state = slotEmpty
	case healthy:
		s.state = slotIdle
	default:
		c.destroy()
		s.ctx = nil
		s.state = slotReplacing
		p.replaced++
	}
	p.mu.Unlock()
	p.sem.Release(1)

	if !healthy {
		p.opts.logger.Warn("sandbox: context destroyed after fatal fault",
			slog.Int("slot", c.slot),
			slog.Uint64("generation", c.gen))
	}
}

// Warm creates up to n runtimes ahead of demand.
func (p *Pool) Warm(ctx context.Context, n int) error {
	if n > len(p.slots) {
		n = len(p.slots)
	}
	held := make([]*Context, 0, n)
	defer func() {
		for _, c := range held {
			p.Release(c, true)
		}
	}()
	for i := 0; i < n; i++ {
		c, err := p.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("sandbox: warm: %w", err)
		}
		held = append(held, c)
	}
	return nil
}

// Stats reports slot usage and lifetime counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Stats{Capacity: len(p.slots), Created: p.created, Replaced: p.replaced, Closed: p.closed}
	for _, s := range p.slots {
		if s.ctx != nil {
			st.Live++
		}
		switch s.state {
		case slotIdle:
			st.Idle++
		case slotBusy:
			st.InUse++
		case slotReplacing:
			st.Replacing++
		}
	}
	return st
}

// Close destroys idle runtimes. Busy ones are destroyed when released.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for i := range p.slots {
		if p.slots[i].state == slotIdle {
			p.slots[i].ctx.destroy()
			p.slots[i].ctx = nil
			p.slots[i].state = slotEmpty
		}
	}
}
