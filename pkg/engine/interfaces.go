package engine

import (
	"context"
	"time"
)

// Renderer produces provider-specific configuration payloads from a template
// directory and a key/value context. The orchestrator never inspects rendered
// output; it only passes the rendered directory on to the package manager.
type Renderer interface {
	// Render substitutes context into every template under templateDir and
	// returns the directory holding the rendered files.
	Render(ctx context.Context, templateDir string, context map[string]interface{}) (string, error)
}

// LastDeploymentStatus is the package manager's view of a release after an
// install attempt.
type LastDeploymentStatus string

const (
	DeploymentStatusOK      LastDeploymentStatus = "ok"
	DeploymentStatusFailed  LastDeploymentStatus = "failed"
	DeploymentStatusUnknown LastDeploymentStatus = "unknown"
)

// HelmRelease describes one installed release as reported by the package
// manager.
type HelmRelease struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Revision  string `json:"revision"`
	Status    string `json:"status"`
	Chart     string `json:"chart"`
}

// Helm is the cluster package manager. Implementations shell out to the helm
// binary; errors carry a safe message and a raw diagnostic message.
type Helm interface {
	// UpgradeInstall installs or upgrades a release from chartPath into
	// namespace, applying the given values files, bounded by timeout.
	UpgradeInstall(ctx context.Context, release, chartPath, namespace string, valuesFiles []string, timeout time.Duration) (LastDeploymentStatus, error)

	// Uninstall removes a release.
	Uninstall(ctx context.Context, release, namespace string) error

	// ListReleases lists releases in a namespace.
	ListReleases(ctx context.Context, namespace string) ([]HelmRelease, error)
}

// Secret is a minimal view of a cluster secret used by the chart backup flow.
type Secret struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace"`
	Data      map[string][]byte `json:"data,omitempty"`
}

// Kubectl is the cluster control-plane CLI. Used by manifest application and
// by the chart backup/restore flow that precedes risky upgrades.
type Kubectl interface {
	// Apply applies a manifest file or directory.
	Apply(ctx context.Context, manifestPath, namespace string) error

	// GetResourceYAML returns the YAML of all resources of the given kind in
	// the namespace.
	GetResourceYAML(ctx context.Context, kind, name, namespace string) (string, error)

	// CreateSecretFromFile creates a generic secret from a file.
	CreateSecretFromFile(ctx context.Context, name, namespace, key, filePath string) error

	// DeleteSecret removes a secret.
	DeleteSecret(ctx context.Context, name, namespace string) error

	// GetSecrets lists the secrets in a namespace.
	GetSecrets(ctx context.Context, namespace string) ([]Secret, error)
}

// VersionResolver maps a requested database engine version to the exact
// version a deployment target supports. Version ranges are data-driven and
// provider-specific, so resolution is a pluggable collaborator rather than
// part of the orchestration core.
type VersionResolver interface {
	// Resolve returns the concrete supported version for the requested one.
	// A request outside the supported range returns a validation error.
	Resolve(engineType DatabaseType, requested string, managed bool) (string, error)
}

// HistoryRecorder persists terminal transaction outcomes and their progress
// events for later inspection.
type HistoryRecorder interface {
	// RecordTransaction stores the terminal outcome of one orchestrator run.
	RecordTransaction(ctx context.Context, record TransactionRecord) error
}

// TransactionRecord is the persisted form of one transaction outcome.
type TransactionRecord struct {
	TransactionID string    `json:"transaction_id"`
	ExecutionID   string    `json:"execution_id"`
	EnvironmentID string    `json:"environment_id"`
	Action        string    `json:"action"`
	Result        string    `json:"result"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}
