package tts

import "errors"

// Common errors for the batching core.
var (
	// Chunk and parameter errors
	ErrEmptyText         = errors.New("chunk text is empty")
	ErrMissingParameters = errors.New("chunk is missing required generation parameters")
	ErrInvalidParameter  = errors.New("invalid generation parameter")

	// Engine errors
	ErrGenerationFailed  = errors.New("audio generation failed")
	ErrBatchUnsupported  = errors.New("engine does not support batch generation")
	ErrBatchMismatch     = errors.New("batch generation returned wrong number of results")
	ErrEngineUnavailable = errors.New("TTS engine is not available")

	// Scheduling errors
	ErrQueueFull     = errors.New("queue is full")
	ErrQueueClosed   = errors.New("queue is closed")
	ErrNotStarted    = errors.New("pipeline not started")
	ErrShutdown      = errors.New("pipeline is shutting down")
	ErrDuplicateTask = errors.New("task id already in flight")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")

	// General errors
	ErrTimeout  = errors.New("operation timed out")
	ErrCanceled = errors.New("operation was canceled")
)

// IsRecoverableError reports whether a caller can reasonably retry after err.
func IsRecoverableError(err error) bool {
	if err == nil {
		return true
	}

	switch {
	case errors.Is(err, ErrShutdown),
		errors.Is(err, ErrQueueClosed),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrEngineUnavailable),
		errors.Is(err, ErrDuplicateTask):
		return false
	}

	return true
}

// Error provides component and action context for a failure.
type Error struct {
	Err       error          // The underlying error
	Component string         // Component that generated the error
	Action    string         // Action being performed when error occurred
	Context   map[string]any // Additional context
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return "unknown TTS error"
	}
	if e.Component == "" {
		return e.Err.Error()
	}
	if e.Action == "" {
		return e.Component + ": " + e.Err.Error()
	}
	return e.Component + ": " + e.Action + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRecoverable checks if the error is recoverable.
func (e *Error) IsRecoverable() bool {
	return IsRecoverableError(e.Err)
}

// NewError creates a new error with component context.
func NewError(err error, component, action string) *Error {
	return &Error{
		Err:       err,
		Component: component,
		Action:    action,
		Context:   make(map[string]any),
	}
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
