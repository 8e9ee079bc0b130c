package kube

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidemark-io/tidemark/pkg/engine"
	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

// Helm invokes the helm binary. Implements engine.Helm.
type Helm struct {
	runner     Runner
	kubeconfig string
	logger     *telemetry.Logger
}

// NewHelm creates a helm client bound to one cluster's kubeconfig.
func NewHelm(runner Runner, kubeconfig string, logger *telemetry.Logger) *Helm {
	return &Helm{
		runner:     runner,
		kubeconfig: kubeconfig,
		logger:     logger.NewComponentLogger("helm"),
	}
}

// UpgradeInstall implements engine.Helm.
func (h *Helm) UpgradeInstall(ctx context.Context, release, chartPath, namespace string, valuesFiles []string, timeout time.Duration) (engine.LastDeploymentStatus, error) {
	args := []string{
		"--kubeconfig", h.kubeconfig,
		"upgrade", "--install", release, chartPath,
		"--namespace", namespace,
		"--create-namespace",
		"--wait",
		"--timeout", fmt.Sprintf("%ds", int(timeout.Seconds())),
	}
	for _, vf := range valuesFiles {
		args = append(args, "-f", vf)
	}

	h.logger.WithChart(release).Infof("installing release %q into namespace %q", release, namespace)
	if _, err := h.runner.Run(ctx, "helm", args...); err != nil {
		status := engine.DeploymentStatusUnknown
		if strings.Contains(stderrOf(err), "timed out") {
			status = engine.DeploymentStatusFailed
		}
		return status, engine.NewExecutionError(
			fmt.Sprintf("installation of %q failed", release), err).
			WithRaw(stderrOf(err)).
			WithOperation("helm upgrade")
	}
	return engine.DeploymentStatusOK, nil
}

// Uninstall implements engine.Helm.
func (h *Helm) Uninstall(ctx context.Context, release, namespace string) error {
	args := []string{
		"--kubeconfig", h.kubeconfig,
		"uninstall", release,
		"--namespace", namespace,
	}

	h.logger.WithChart(release).Infof("uninstalling release %q from namespace %q", release, namespace)
	if _, err := h.runner.Run(ctx, "helm", args...); err != nil {
		// Uninstalling something already gone is success.
		if strings.Contains(stderrOf(err), "not found") {
			return nil
		}
		return engine.NewExecutionError(
			fmt.Sprintf("removal of %q failed", release), err).
			WithRaw(stderrOf(err)).
			WithOperation("helm uninstall")
	}
	return nil
}

// ListReleases implements engine.Helm.
func (h *Helm) ListReleases(ctx context.Context, namespace string) ([]engine.HelmRelease, error) {
	args := []string{
		"--kubeconfig", h.kubeconfig,
		"list", "--namespace", namespace, "-o", "json",
	}

	out, err := h.runner.Run(ctx, "helm", args...)
	if err != nil {
		return nil, engine.NewExecutionError("listing installed releases failed", err).
			WithRaw(stderrOf(err)).
			WithOperation("helm list")
	}

	var raw []struct {
		Name       string `json:"name"`
		Namespace  string `json:"namespace"`
		Revision   string `json:"revision"`
		Status     string `json:"status"`
		Chart      string `json:"chart"`
		AppVersion string `json:"app_version"`
	}
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, engine.NewExecutionError("could not parse release list", err).
			WithOperation("helm list")
	}

	releases := make([]engine.HelmRelease, 0, len(raw))
	for _, r := range raw {
		releases = append(releases, engine.HelmRelease{
			Name:      r.Name,
			Namespace: r.Namespace,
			Revision:  r.Revision,
			Status:    r.Status,
			Chart:     r.Chart,
		})
	}
	return releases, nil
}
