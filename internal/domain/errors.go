package domain

import (
	"fmt"
	"strings"
)

// FieldError names a single offending input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports malformed input: missing, non-finite, or
// out-of-range features. It always carries the complete field list.
// Validation failures are surfaced to the caller and never retried.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Reason
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// EngineState is the inference engine lifecycle state.
type EngineState int32

const (
	StateUnloaded EngineState = iota
	StateLoading
	StateReady
	StateFailed
)

func (s EngineState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ModelNotReadyError reports a predict call before the model reached Ready.
// The contract violation is recoverable: load the model and retry.
type ModelNotReadyError struct {
	State EngineState
}

func (e *ModelNotReadyError) Error() string {
	return fmt.Sprintf("model not ready: engine state is %s", e.State)
}

// ModelLoadError wraps a model load failure. Loading may be retried.
type ModelLoadError struct {
	Cause error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("model load failed: %v", e.Cause)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Cause
}

// InferenceError reports a failed model invocation. It is not retried
// automatically: re-running the same vector through the same model is
// pointless. Transient network failures on the remote scorer are a
// different class and are retried there with backoff.
type InferenceError struct {
	Cause error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Cause)
}

func (e *InferenceError) Unwrap() error {
	return e.Cause
}
