// Package apperr defines the error taxonomy shared by the engine and its transports.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrParse               = errors.New("parse error")
	ErrUnresolvedComponent = errors.New("unresolved component")
	ErrExecution           = errors.New("execution error")
	ErrFatalContextFault   = errors.New("fatal context fault")
	ErrInternal            = errors.New("internal error")
)

// Wire names of the error kinds.
const (
	KindInvalidRequest      = "invalid_request"
	KindParse               = "parse_error"
	KindUnresolvedComponent = "unresolved_component"
	KindExecution           = "execution_error"
	KindFatalContextFault   = "fatal_context_fault"
	KindInternal            = "internal_error"
)

// Error carries the failure kind plus the document and component it is attributed to.
type Error struct {
	Kind      error
	Document  string
	Component string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := e.detail()
	switch {
	case e.Document != "" && e.Component != "":
		return fmt.Sprintf("%s: %s: component %s: %s", e.Kind, e.Document, e.Component, msg)
	case e.Document != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Document, msg)
	case e.Component != "":
		return fmt.Sprintf("%s: component %s: %s", e.Kind, e.Component, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Is matches the kind sentinel, so errors.Is(err, ErrParse) works on *Error.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) detail() string {
	switch {
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an *Error of the given kind.
func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of the given kind wrapping err.
func Wrap(kind error, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// WithDocument attributes err to a document. Non-*Error values are wrapped
// as fallback kind first.
func WithDocument(err error, document string, fallback error) *Error {
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		if cp.Document == "" {
			cp.Document = document
		}
		return &cp
	}
	return &Error{Kind: fallback, Document: document, Err: err}
}

// KindOf returns the wire name for err.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrUnresolvedComponent):
		return KindUnresolvedComponent
	case errors.Is(err, ErrFatalContextFault):
		return KindFatalContextFault
	case errors.Is(err, ErrExecution):
		return KindExecution
	}
	return KindInternal
}

// Detail returns the message without the kind prefix.
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) {
		msg := e.detail()
		if e.Component != "" {
			return fmt.Sprintf("component %s: %s", e.Component, msg)
		}
		return msg
	}
	return err.Error()
}
