package sandbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/starford/mdxengine/internal/apperr"
)

var (
	// ErrAcquireTimeout is returned when no context frees up in time.
	ErrAcquireTimeout = errors.New("sandbox: timed out waiting for an execution context")
	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("sandbox: pool closed")

	errExecTimeout = errors.New("execution timeout")
)

// IsFatal reports whether err left its context unusable.
func IsFatal(err error) bool {
	return errors.Is(err, apperr.ErrFatalContextFault)
}

// classify maps a script error to the engine taxonomy. Interrupts
// (timeouts, cancellation) and stack overflows poison the runtime;
// script exceptions and compile failures do not.
func classify(err error, component string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		reason := "interrupted"
		if v, ok := interrupted.Value().(error); ok {
			reason = v.Error()
		} else if interrupted.Value() != nil {
			reason = fmt.Sprint(interrupted.Value())
		}
		return &apperr.Error{Kind: apperr.ErrFatalContextFault, Component: component, Message: reason, Err: err}
	}

	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return &apperr.Error{Kind: apperr.ErrFatalContextFault, Component: component, Message: "stack overflow", Err: err}
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		msg := exc.Error()
		if v := exc.Value(); v != nil {
			msg = v.String()
		}
		return &apperr.Error{Kind: apperr.ErrExecution, Component: component, Message: msg}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &apperr.Error{Kind: apperr.ErrFatalContextFault, Component: component, Err: err}
	}
	return &apperr.Error{Kind: apperr.ErrExecution, Component: component, Err: err}
}

// panicError converts a Go panic escaping the runtime into a fatal fault.
func panicError(r any, component string) error {
	if err, ok := r.(error); ok {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return classify(err, component)
		}
		return &apperr.Error{Kind: apperr.ErrFatalContextFault, Component: component, Message: "panic", Err: err}
	}
	return &apperr.Error{Kind: apperr.ErrFatalContextFault, Component: component, Message: fmt.Sprintf("panic: %v", r)}
}
