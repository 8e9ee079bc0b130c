package kube

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidemark-io/tidemark/pkg/engine"
	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

// Kubectl invokes the kubectl binary. Implements engine.Kubectl.
type Kubectl struct {
	runner     Runner
	kubeconfig string
	logger     *telemetry.Logger
}

// NewKubectl creates a kubectl client bound to one cluster's kubeconfig.
func NewKubectl(runner Runner, kubeconfig string, logger *telemetry.Logger) *Kubectl {
	return &Kubectl{
		runner:     runner,
		kubeconfig: kubeconfig,
		logger:     logger.NewComponentLogger("kubectl"),
	}
}

// Apply implements engine.Kubectl.
func (k *Kubectl) Apply(ctx context.Context, manifestPath, namespace string) error {
	args := []string{
		"--kubeconfig", k.kubeconfig,
		"apply", "-f", manifestPath,
	}
	if namespace != "" {
		args = append(args, "--namespace", namespace)
	}

	if _, err := k.runner.Run(ctx, "kubectl", args...); err != nil {
		return engine.NewExecutionError("applying cluster resources failed", err).
			WithRaw(stderrOf(err)).
			WithOperation("kubectl apply")
	}
	return nil
}

// GetResourceYAML implements engine.Kubectl. name may be empty to fetch all
// resources of the kind.
func (k *Kubectl) GetResourceYAML(ctx context.Context, kind, name, namespace string) (string, error) {
	args := []string{
		"--kubeconfig", k.kubeconfig,
		"get", kind,
	}
	if name != "" {
		args = append(args, name)
	}
	args = append(args, "--namespace", namespace, "-o", "yaml")

	out, err := k.runner.Run(ctx, "kubectl", args...)
	if err != nil {
		if strings.Contains(stderrOf(err), "NotFound") {
			return "", nil
		}
		return "", engine.NewExecutionError(
			fmt.Sprintf("reading %s resources failed", kind), err).
			WithRaw(stderrOf(err)).
			WithOperation("kubectl get")
	}
	return out, nil
}

// CreateSecretFromFile implements engine.Kubectl.
func (k *Kubectl) CreateSecretFromFile(ctx context.Context, name, namespace, key, filePath string) error {
	args := []string{
		"--kubeconfig", k.kubeconfig,
		"create", "secret", "generic", name,
		"--namespace", namespace,
		"--from-file", fmt.Sprintf("%s=%s", key, filePath),
	}

	if _, err := k.runner.Run(ctx, "kubectl", args...); err != nil {
		return engine.NewExecutionError(
			fmt.Sprintf("storing secret %q failed", name), err).
			WithRaw(stderrOf(err)).
			WithOperation("kubectl create secret")
	}
	return nil
}

// DeleteSecret implements engine.Kubectl.
func (k *Kubectl) DeleteSecret(ctx context.Context, name, namespace string) error {
	args := []string{
		"--kubeconfig", k.kubeconfig,
		"delete", "secret", name,
		"--namespace", namespace,
		"--ignore-not-found",
	}

	if _, err := k.runner.Run(ctx, "kubectl", args...); err != nil {
		return engine.NewExecutionError(
			fmt.Sprintf("removing secret %q failed", name), err).
			WithRaw(stderrOf(err)).
			WithOperation("kubectl delete secret")
	}
	return nil
}

// GetSecrets implements engine.Kubectl.
func (k *Kubectl) GetSecrets(ctx context.Context, namespace string) ([]engine.Secret, error) {
	args := []string{
		"--kubeconfig", k.kubeconfig,
		"get", "secrets",
		"--namespace", namespace,
		"-o", "json",
	}

	out, err := k.runner.Run(ctx, "kubectl", args...)
	if err != nil {
		return nil, engine.NewExecutionError("listing secrets failed", err).
			WithRaw(stderrOf(err)).
			WithOperation("kubectl get secrets")
	}

	var list struct {
		Items []struct {
			Metadata struct {
				Name      string `json:"name"`
				Namespace string `json:"namespace"`
			} `json:"metadata"`
			Data map[string]string `json:"data"`
		} `json:"items"`
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		return nil, engine.NewExecutionError("could not parse secret list", err).
			WithOperation("kubectl get secrets")
	}

	secrets := make([]engine.Secret, 0, len(list.Items))
	for _, item := range list.Items {
		data := make(map[string][]byte, len(item.Data))
		for key, value := range item.Data {
			// kubectl emits base64; decoding failures keep the raw bytes
			// so callers can still identify the secret.
			data[key] = decodeBase64(value)
		}
		secrets = append(secrets, engine.Secret{
			Name:      item.Metadata.Name,
			Namespace: item.Metadata.Namespace,
			Data:      data,
		})
	}
	return secrets, nil
}

func decodeBase64(s string) []byte {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return []byte(s)
	}
	return decoded
}
