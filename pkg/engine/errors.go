// Package engine provides the core types for the Tidemark deployment
// orchestrator: the service lifecycle contract, the environment model, and
// the transaction state machine that commits a batch of heterogeneous
// lifecycle operations with rollback and failover on partial failure.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a failure for the orchestrator's recovery logic.
type ErrorClass string

const (
	// ErrorClassValidation indicates a pre-flight check failed before any
	// state was mutated. Surfaced to the caller verbatim, no rollback.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassExecution indicates a lifecycle hook or chart install failed
	// after state mutation started. Triggers rollback or failover.
	ErrorClassExecution ErrorClass = "execution"

	// ErrorClassUnrecoverable indicates a terminal failure: both primary and
	// failover failed, or a required prerequisite artifact is missing or
	// unparseable. No further automatic action is taken.
	ErrorClassUnrecoverable ErrorClass = "unrecoverable"

	// ErrorClassWarning indicates a best-effort check could not confirm its
	// expectation within budget. Logged, never escalated.
	ErrorClassWarning ErrorClass = "warning"
)

// ErrNotSupported is returned by capability-gated actions a service kind does
// not implement. The orchestrator treats it as hard and non-retryable when the
// action was actually requested.
var ErrNotSupported = errors.New("action not supported by this service kind")

// EngineError is a classified failure carrying two distinct messages: a safe
// message suitable for display to an untrusted audience, and a raw diagnostic
// message for logs. The two are never conflated.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification for recovery logic.
	Class ErrorClass `json:"class"`

	// SafeMessage is the human-readable message safe to surface to users.
	SafeMessage string `json:"safe_message"`

	// RawMessage is the diagnostic detail for logs. May contain command
	// output or provider internals and must not be shown to end users.
	RawMessage string `json:"raw_message,omitempty"`

	// ServiceID is the service that caused the error, if applicable.
	ServiceID string `json:"service_id,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface. Only the safe message and structural
// context are included; raw diagnostics stay in RawMessage.
func (e *EngineError) Error() string {
	if e.ServiceID != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (service=%s, operation=%s)",
			e.Class, e.SafeMessage, e.ServiceID, e.Operation)
	}
	if e.ServiceID != "" {
		return fmt.Sprintf("[%s] %s (service=%s)", e.Class, e.SafeMessage, e.ServiceID)
	}
	return fmt.Sprintf("[%s] %s", e.Class, e.SafeMessage)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error.
func NewValidationError(safeMessage string, err error) *EngineError {
	return &EngineError{
		Class:       ErrorClassValidation,
		SafeMessage: safeMessage,
		Err:         err,
	}
}

// NewExecutionError creates a new execution error.
func NewExecutionError(safeMessage string, err error) *EngineError {
	return &EngineError{
		Class:       ErrorClassExecution,
		SafeMessage: safeMessage,
		Err:         err,
	}
}

// NewUnrecoverableError creates a new unrecoverable error.
func NewUnrecoverableError(safeMessage string, err error) *EngineError {
	return &EngineError{
		Class:       ErrorClassUnrecoverable,
		SafeMessage: safeMessage,
		Err:         err,
	}
}

// NewWarning creates a new best-effort warning.
func NewWarning(safeMessage string, err error) *EngineError {
	return &EngineError{
		Class:       ErrorClassWarning,
		SafeMessage: safeMessage,
		Err:         err,
	}
}

// WithRaw attaches a raw diagnostic message to the error.
func (e *EngineError) WithRaw(raw string) *EngineError {
	e.RawMessage = raw
	return e
}

// WithService adds service context to the error.
func (e *EngineError) WithService(serviceID string) *EngineError {
	e.ServiceID = serviceID
	return e
}

// WithOperation adds operation context to the error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// ClassOf returns the class of err, or ErrorClassExecution when err carries no
// classification. An unclassified failure mid-hook has, by definition, already
// started mutating state.
func ClassOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ErrorClassExecution
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	return ClassOf(err) == ErrorClassValidation
}

// IsUnrecoverable returns true if the error is classified as unrecoverable.
func IsUnrecoverable(err error) bool {
	if errors.Is(err, ErrNotSupported) {
		return true
	}
	return ClassOf(err) == ErrorClassUnrecoverable
}

// IsWarning returns true if the error is a best-effort warning.
func IsWarning(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassWarning
	}
	return false
}

// SafeMessage extracts the user-facing message from an error chain. Falls
// back to a generic message for unclassified errors so raw diagnostics never
// leak to an untrusted audience.
func SafeMessage(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.SafeMessage
	}
	return "an internal error occurred"
}
