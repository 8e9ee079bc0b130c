package charts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tidemark-io/tidemark/pkg/engine"
)

var validate = validator.New()

// BootstrapArtifacts is the prerequisite configuration produced by the
// cluster provisioning step. The catalog cannot be built without it.
type BootstrapArtifacts struct {
	// ClusterName is the provisioned cluster's name.
	ClusterName string `json:"cluster_name" validate:"required"`

	// Region is the cloud region the cluster runs in.
	Region string `json:"region" validate:"required"`

	// ManagedDNSDomain is the zone external-dns manages.
	ManagedDNSDomain string `json:"managed_dns_domain" validate:"required"`

	// RegistryURL and RegistryToken authenticate image pulls.
	RegistryURL   string `json:"registry_url" validate:"required"`
	RegistryToken string `json:"registry_token" validate:"required"`

	// ACMEEmail receives certificate expiry notices.
	ACMEEmail string `json:"acme_email" validate:"required,email"`

	// StorageClassProvisioner is the CSI provisioner for the default
	// storage class.
	StorageClassProvisioner string `json:"storage_class_provisioner" validate:"required"`
}

// LoadBootstrapArtifacts parses the provisioning output file. Any parse or
// validation failure is unrecoverable and surfaces before any level exists.
func LoadBootstrapArtifacts(path string) (*BootstrapArtifacts, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewUnrecoverableError(
			fmt.Sprintf("cluster bootstrap configuration %q is missing", path), err)
	}

	var artifacts BootstrapArtifacts
	if err := json.Unmarshal(raw, &artifacts); err != nil {
		return nil, engine.NewUnrecoverableError(
			fmt.Sprintf("cluster bootstrap configuration %q is not valid JSON", path), err)
	}
	if err := validate.Struct(&artifacts); err != nil {
		return nil, engine.NewUnrecoverableError(
			fmt.Sprintf("cluster bootstrap configuration %q is incomplete", path), err)
	}
	return &artifacts, nil
}

const defaultChartTimeout = 10 * time.Minute

// Catalog builds the leveled chart list for one cluster bootstrap.
type Catalog struct {
	artifacts *BootstrapArtifacts
	flags     FeatureFlags
	libDir    string
}

// NewCatalog loads the prerequisite artifacts and returns a catalog builder.
// A failure here means no level is ever produced.
func NewCatalog(artifactsPath, libDir string, flags FeatureFlags) (*Catalog, error) {
	artifacts, err := LoadBootstrapArtifacts(artifactsPath)
	if err != nil {
		return nil, err
	}
	return &Catalog{artifacts: artifacts, flags: flags, libDir: libDir}, nil
}

func (c *Catalog) chart(name, namespace string, values map[string]interface{}) ChartInfo {
	return ChartInfo{
		Name:      name,
		Path:      filepath.Join(c.libDir, "bootstrap", "charts", name),
		Namespace: namespace,
		Values:    values,
		Timeout:   defaultChartTimeout,
		Action:    ActionInstall,
	}
}

// Levels returns the fixed base ordering with the flag-gated members
// appended to their levels. Level numbers are stable: disabling a flag
// empties a slot, it never renumbers.
//
// The ordering encodes producer/consumer dependencies: anything reading
// state another chart produces sits in a strictly later level. The
// certificate issuer configuration depends on the certificate controller's
// CRDs and is therefore four levels below it, with the ingress controller
// (which terminates the issued certificates) in between.
func (c *Catalog) Levels() []Level {
	level1 := []ChartInfo{
		c.chart("storageclass", "kube-system", map[string]interface{}{
			"provisioner": c.artifacts.StorageClassProvisioner,
		}),
		c.chart("coredns-config", "kube-system", map[string]interface{}{
			"managed_dns_domain": c.artifacts.ManagedDNSDomain,
		}),
	}

	level2 := []ChartInfo{
		c.chart("container-registry-secret", "kube-system", map[string]interface{}{
			"registry_url":   c.artifacts.RegistryURL,
			"registry_token": c.artifacts.RegistryToken,
		}),
		c.chart("cert-manager", "cert-manager", nil),
	}
	if c.flags.MetricsHistoryEnabled {
		prometheus := c.chart("kube-prometheus-stack", "prometheus", nil)
		// Upstream renamed its CRD group across this boundary; upgrading
		// over it drops recording rules without a restore.
		prometheus.BreakingVersion = "45.0.0"
		prometheus.BackupResources = []string{"prometheusrules"}
		level2 = append(level2, prometheus)
	}

	var level3 []ChartInfo
	if c.flags.LogHistoryEnabled {
		level3 = append(level3, c.chart("promtail", "logging", nil))
	}

	level4 := []ChartInfo{
		c.chart("metrics-server", "kube-system", nil),
		c.chart("external-dns", "kube-system", map[string]interface{}{
			"managed_dns_domain": c.artifacts.ManagedDNSDomain,
			"cluster_name":       c.artifacts.ClusterName,
		}),
	}
	if c.flags.MetricsHistoryEnabled {
		level4 = append(level4,
			c.chart("prometheus-adapter", "prometheus", nil),
			c.chart("kube-state-metrics", "prometheus", nil),
		)
	}
	if c.flags.LogHistoryEnabled {
		level4 = append(level4, c.chart("loki", "logging", nil))
	}

	level5 := []ChartInfo{
		c.chart("nginx-ingress", "nginx-ingress", map[string]interface{}{
			"cluster_name": c.artifacts.ClusterName,
		}),
	}
	if !c.flags.JanitorDisabled {
		level5 = append(level5, c.chart("janitor", "kube-system", nil))
	}

	level6 := []ChartInfo{
		c.chart("cert-manager-configs", "cert-manager", map[string]interface{}{
			"acme_email": c.artifacts.ACMEEmail,
		}),
		c.chart("tidemark-agent", "tidemark", nil),
		c.chart("tidemark-shell-agent", "tidemark", nil),
		c.chart("tidemark-engine", "tidemark", nil),
		c.chart("cluster-autoheal", "kube-system", nil),
		c.chart("kubeconfig-rotate", "kube-system", nil),
	}
	if c.flags.MetricsHistoryEnabled || c.flags.LogHistoryEnabled {
		level6 = append(level6, c.chart("grafana", "prometheus", nil))
	}

	return []Level{
		{Number: 1, Charts: level1},
		{Number: 2, Charts: level2},
		{Number: 3, Charts: level3},
		{Number: 4, Charts: level4},
		{Number: 5, Charts: level5},
		{Number: 6, Charts: level6},
	}
}
