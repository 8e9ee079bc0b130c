// Package kube shells out to the cluster tooling (helm, kubectl) and adapts
// process results into the engine's structured errors. Command output is
// diagnostic material: it goes into the raw side of an error, never the safe
// message.
package kube

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

// Runner executes an external command and returns its stdout. Extracted so
// tests can substitute a fake process runner.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// execRunner runs real processes.
type execRunner struct {
	logger *telemetry.Logger
}

// NewRunner creates the default process runner.
func NewRunner(logger *telemetry.Logger) Runner {
	return &execRunner{logger: logger.NewComponentLogger("exec")}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	r.logger.Debugf("running %s %s", name, strings.Join(args, " "))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), &commandError{
			command: name,
			err:     err,
			stderr:  stderr.String(),
		}
	}
	return stdout.String(), nil
}

// commandError carries a failed command's stderr for diagnostics.
type commandError struct {
	command string
	err     error
	stderr  string
}

func (e *commandError) Error() string {
	return e.command + ": " + e.err.Error()
}

func (e *commandError) Unwrap() error {
	return e.err
}

// stderrOf extracts captured stderr from an error chain, if any.
func stderrOf(err error) string {
	var ce *commandError
	if errors.As(err, &ce) {
		return ce.stderr
	}
	return ""
}
