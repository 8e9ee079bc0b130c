package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorStringNeverLeaksRawMessage(t *testing.T) {
	raw := "psql: FATAL: password authentication failed for user admin"
	err := NewExecutionError("database deployment failed", errors.New("exit status 1")).
		WithRaw(raw).
		WithService("db-1").
		WithOperation("create")

	msg := err.Error()
	if strings.Contains(msg, raw) {
		t.Errorf("raw diagnostic leaked into Error(): %q", msg)
	}
	for _, want := range []string{"execution", "database deployment failed", "db-1", "create"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() missing %q: %q", want, msg)
		}
	}
}

func TestClassPredicates(t *testing.T) {
	if !IsValidation(NewValidationError("bad input", nil)) {
		t.Error("validation error not detected")
	}
	if !IsUnrecoverable(NewUnrecoverableError("both environments failed", nil)) {
		t.Error("unrecoverable error not detected")
	}
	if !IsWarning(NewWarning("could not confirm domain", nil)) {
		t.Error("warning not detected")
	}
	if IsValidation(errors.New("plain")) {
		t.Error("plain error misclassified as validation")
	}
	if got := ClassOf(errors.New("plain")); got != ErrorClassExecution {
		t.Errorf("unclassified error should default to execution, got %s", got)
	}
}

func TestWrappedClassificationSurvives(t *testing.T) {
	inner := NewValidationError("unsupported version", nil)
	wrapped := fmt.Errorf("resolving database version: %w", inner)

	if !IsValidation(wrapped) {
		t.Error("classification lost through wrapping")
	}
	if got := SafeMessage(wrapped); got != "unsupported version" {
		t.Errorf("unexpected safe message %q", got)
	}
}

func TestNotSupportedIsUnrecoverable(t *testing.T) {
	err := fmt.Errorf("clone on application app-1: %w", ErrNotSupported)
	if !IsUnrecoverable(err) {
		t.Error("ErrNotSupported must be treated as hard and non-retryable")
	}
}

func TestSafeMessageFallback(t *testing.T) {
	got := SafeMessage(errors.New("raw stack trace here"))
	if strings.Contains(got, "stack trace") {
		t.Errorf("unclassified error leaked into safe message: %q", got)
	}
}
