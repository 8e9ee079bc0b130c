package charts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidemark-io/tidemark/pkg/engine"
	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

const backupSuffix = "-q-backup"

// backupSecretName keys one chart resource's snapshot in the cluster.
func backupSecretName(chart, resource string) string {
	return fmt.Sprintf("%s-%s%s", chart, resource, backupSuffix)
}

// BackupManager snapshots chart-owned resources into cluster secrets before
// a breaking upgrade and restores them afterwards. The cluster itself is the
// backup store, so the artifact survives engine restarts.
type BackupManager struct {
	kubectl engine.Kubectl
	workDir string
	logger  *telemetry.Logger
}

// NewBackupManager creates a backup manager writing its scratch files under
// workDir. An empty workDir uses the system temp directory.
func NewBackupManager(kubectl engine.Kubectl, workDir string, logger *telemetry.Logger) *BackupManager {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &BackupManager{
		kubectl: kubectl,
		workDir: workDir,
		logger:  logger.NewComponentLogger("chart-backup"),
	}
}

// Prepare snapshots each of the chart's backup resources into its own
// secret. An existing snapshot for the same chart and resource is replaced,
// so repeating an unchanged deployment never accumulates duplicates. A
// resource with no content gets no secret; a stale one is removed.
func (b *BackupManager) Prepare(ctx context.Context, chart ChartInfo) error {
	for _, resource := range chart.BackupResources {
		yaml, err := b.kubectl.GetResourceYAML(ctx, resource, "", chart.Namespace)
		if err != nil {
			return err
		}

		name := backupSecretName(chart.Name, resource)
		if err := b.kubectl.DeleteSecret(ctx, name, chart.Namespace); err != nil {
			return err
		}

		content := stripServerFields(yaml)
		if strings.TrimSpace(content) == "" || isEmptyList(content) {
			b.logger.WithChart(chart.Name).
				Debugf("no %s resources to back up", resource)
			continue
		}

		file := filepath.Join(b.workDir, name+".yaml")
		if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
			return engine.NewExecutionError(
				fmt.Sprintf("could not stage backup of %s for chart %q", resource, chart.Name), err)
		}

		if err := b.kubectl.CreateSecretFromFile(ctx, name, chart.Namespace, resource, file); err != nil {
			return err
		}
		b.logger.WithChart(chart.Name).Infof("backed up %s into secret %q", resource, name)
	}
	return nil
}

// Restore applies every backup secret belonging to the chart and deletes the
// secret once its content is applied.
func (b *BackupManager) Restore(ctx context.Context, chart ChartInfo) error {
	secrets, err := b.kubectl.GetSecrets(ctx, chart.Namespace)
	if err != nil {
		return err
	}

	for _, secret := range secrets {
		if !strings.HasPrefix(secret.Name, chart.Name+"-") || !strings.HasSuffix(secret.Name, backupSuffix) {
			continue
		}

		for key, content := range secret.Data {
			file := filepath.Join(b.workDir, secret.Name+"-"+key+".yaml")
			if err := os.WriteFile(file, content, 0o600); err != nil {
				return engine.NewExecutionError(
					fmt.Sprintf("could not stage restore of %q", secret.Name), err)
			}
			if err := b.kubectl.Apply(ctx, file, chart.Namespace); err != nil {
				return err
			}
		}

		if err := b.kubectl.DeleteSecret(ctx, secret.Name, chart.Namespace); err != nil {
			return err
		}
		b.logger.WithChart(chart.Name).Infof("restored backup %q", secret.Name)
	}
	return nil
}

// stripServerFields removes the server-assigned identity fields that would
// make a snapshot unappliable on restore.
func stripServerFields(yaml string) string {
	lines := strings.Split(yaml, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "resourceVersion:") ||
			strings.HasPrefix(trimmed, "uid:") ||
			strings.HasPrefix(trimmed, "creationTimestamp:") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// isEmptyList reports whether the YAML is a kubectl list with no items.
func isEmptyList(yaml string) bool {
	return strings.Contains(yaml, "items: []")
}
