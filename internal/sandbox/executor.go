package sandbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/starford/mdxengine/internal/apperr"
	"github.com/starford/mdxengine/internal/node"
)

// RetryPolicy bounds how often a fatal fault is retried on a fresh context.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used when a zero policy is supplied.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: 10 * time.Millisecond,
	MaxInterval:     200 * time.Millisecond,
}

// Executor invokes components on pooled contexts.
type Executor struct {
	pool   *Pool
	retry  RetryPolicy
	logger *slog.Logger
}

// NewExecutor returns an executor drawing contexts from pool.
func NewExecutor(pool *Pool, retry RetryPolicy, logger *slog.Logger) *Executor {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if retry.MaxInterval < retry.InitialInterval {
		retry.MaxInterval = retry.InitialInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{pool: pool, retry: retry, logger: logger}
}

// Pool returns the underlying context pool.
func (e *Executor) Pool() *Pool { return e.pool }

// Invoke runs inv on a borrowed context. Script errors fail immediately;
// fatal faults destroy the context and are retried on a fresh one with
// exponential backoff until the attempt budget is spent.
func (e *Executor) Invoke(ctx context.Context, inv Invocation) ([]*node.Node, error) {
	op := func() ([]*node.Node, error) {
		c, err := e.pool.Acquire(ctx)
		if err != nil {
			return nil, backoff.Permanent(&apperr.Error{
				Kind:      apperr.ErrFatalContextFault,
				Component: inv.Component.Name,
				Message:   "acquire context",
				Err:       err,
			})
		}
		nodes, err := c.Invoke(ctx, inv)
		fatal := IsFatal(err)
		e.pool.Release(c, !fatal)
		switch {
		case err == nil:
			return nodes, nil
		case fatal && ctx.Err() == nil:
			return nil, err
		default:
			return nil, backoff.Permanent(err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retry.InitialInterval
	b.MaxInterval = e.retry.MaxInterval

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(e.retry.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			e.logger.Warn("component fault, retrying on fresh context",
				slog.String("document", inv.Document),
				slog.String("component", inv.Component.Name),
				slog.Duration("backoff", next),
				slog.String("error", err.Error()))
		}),
	)
}
