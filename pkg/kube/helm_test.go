package kube

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tidemark-io/tidemark/pkg/engine"
	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

// fakeRunner scripts process invocations for tests.
type fakeRunner struct {
	stdout string
	err    error
	calls  [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.stdout, f.err
}

func testLogger(t *testing.T) *telemetry.Logger {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	return logger
}

func TestUpgradeInstallBuildsCommand(t *testing.T) {
	runner := &fakeRunner{}
	h := NewHelm(runner, "/tmp/kubeconfig", testLogger(t))

	status, err := h.UpgradeInstall(context.Background(), "app-web-1", "/charts/app", "prod", []string{"/values/base.yaml"}, 2*time.Minute)
	if err != nil {
		t.Fatalf("UpgradeInstall failed: %v", err)
	}
	if status != engine.DeploymentStatusOK {
		t.Errorf("unexpected status %s", status)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("expected 1 command, got %d", len(runner.calls))
	}
	cmd := strings.Join(runner.calls[0], " ")
	for _, want := range []string{
		"helm", "--kubeconfig /tmp/kubeconfig", "upgrade --install app-web-1 /charts/app",
		"--namespace prod", "--timeout 120s", "-f /values/base.yaml",
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("command missing %q: %s", want, cmd)
		}
	}
}

func TestUpgradeInstallFailureKeepsRawDiagnostics(t *testing.T) {
	runner := &fakeRunner{err: &commandError{
		command: "helm",
		err:     errors.New("exit status 1"),
		stderr:  "Error: release app-web-1 failed: context deadline exceeded, timed out waiting",
	}}
	h := NewHelm(runner, "/tmp/kubeconfig", testLogger(t))

	status, err := h.UpgradeInstall(context.Background(), "app-web-1", "/charts/app", "prod", nil, time.Minute)
	if err == nil {
		t.Fatal("expected an error")
	}
	if status != engine.DeploymentStatusFailed {
		t.Errorf("timeout should report a failed deployment, got %s", status)
	}

	var ee *engine.EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("expected an EngineError, got %T", err)
	}
	if ee.Class != engine.ErrorClassExecution {
		t.Errorf("unexpected class %s", ee.Class)
	}
	if !strings.Contains(ee.RawMessage, "context deadline exceeded") {
		t.Errorf("raw diagnostics lost: %q", ee.RawMessage)
	}
	if strings.Contains(ee.SafeMessage, "context deadline") {
		t.Errorf("raw diagnostics leaked into safe message: %q", ee.SafeMessage)
	}
}

func TestUninstallToleratesMissingRelease(t *testing.T) {
	runner := &fakeRunner{err: &commandError{
		command: "helm",
		err:     errors.New("exit status 1"),
		stderr:  "Error: uninstall: Release not loaded: app-web-1: release: not found",
	}}
	h := NewHelm(runner, "/tmp/kubeconfig", testLogger(t))

	if err := h.Uninstall(context.Background(), "app-web-1", "prod"); err != nil {
		t.Errorf("uninstalling an absent release must succeed, got %v", err)
	}
}

func TestListReleasesParsesJSON(t *testing.T) {
	runner := &fakeRunner{stdout: `[
		{"name":"app-web-1","namespace":"prod","revision":"3","status":"deployed","chart":"application-1.2.0"},
		{"name":"pg-db-1","namespace":"prod","revision":"1","status":"deployed","chart":"postgresql-12.1.0"}
	]`}
	h := NewHelm(runner, "/tmp/kubeconfig", testLogger(t))

	releases, err := h.ListReleases(context.Background(), "prod")
	if err != nil {
		t.Fatalf("ListReleases failed: %v", err)
	}
	if len(releases) != 2 {
		t.Fatalf("expected 2 releases, got %d", len(releases))
	}
	if releases[0].Name != "app-web-1" || releases[0].Revision != "3" {
		t.Errorf("unexpected release %+v", releases[0])
	}
}
