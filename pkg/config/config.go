// Package config loads the engine's YAML descriptors: the cluster a
// deployment targets and the environment to deploy onto it.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tidemark-io/tidemark/pkg/charts"
	"github.com/tidemark-io/tidemark/pkg/engine"
	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

var validate = validator.New()

// Cluster describes one target cluster.
type Cluster struct {
	// ID is the cluster's unique identifier.
	ID string `yaml:"id" validate:"required"`

	// Name is the cluster's display name.
	Name string `yaml:"name" validate:"required"`

	// Kubeconfig is the path to the cluster's kubeconfig.
	Kubeconfig string `yaml:"kubeconfig" validate:"required"`

	// Target selects managed or self-hosted database deployment.
	Target string `yaml:"target" validate:"required,oneof=managed_services self_hosted"`

	// Provider carries the provider constants for this cluster.
	Provider Provider `yaml:"provider" validate:"required"`

	// BootstrapArtifacts is the path to the provisioning output consumed
	// by the chart catalog.
	BootstrapArtifacts string `yaml:"bootstrap_artifacts" validate:"required"`

	// Features gate the conditional chart catalog members.
	Features Features `yaml:"features"`
}

// Provider holds the provider-specific constants.
type Provider struct {
	ShortName string            `yaml:"short_name" validate:"required"`
	LibDir    string            `yaml:"lib_dir" validate:"required"`
	Extra     map[string]string `yaml:"extra,omitempty"`
}

// Features mirrors the chart catalog's feature flags.
type Features struct {
	LogHistoryEnabled     bool `yaml:"log_history_enabled"`
	MetricsHistoryEnabled bool `yaml:"metrics_history_enabled"`
	JanitorDisabled       bool `yaml:"janitor_disabled"`
}

// DeploymentTarget converts the cluster descriptor into the engine's target.
func (c *Cluster) DeploymentTarget() *engine.DeploymentTarget {
	return &engine.DeploymentTarget{
		ClusterID:   c.ID,
		ClusterName: c.Name,
		Kubeconfig:  c.Kubeconfig,
		Kind:        engine.TargetKind(c.Target),
		Provider: engine.ProviderSettings{
			ShortName: c.Provider.ShortName,
			LibDir:    c.Provider.LibDir,
			Extra:     c.Provider.Extra,
		},
	}
}

// FeatureFlags converts the cluster's feature block for the chart catalog.
func (c *Cluster) FeatureFlags() charts.FeatureFlags {
	return charts.FeatureFlags{
		LogHistoryEnabled:     c.Features.LogHistoryEnabled,
		MetricsHistoryEnabled: c.Features.MetricsHistoryEnabled,
		JanitorDisabled:       c.Features.JanitorDisabled,
	}
}

// LoadCluster reads and validates a cluster descriptor.
func LoadCluster(path string) (*Cluster, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewValidationError(
			fmt.Sprintf("cluster descriptor %q could not be read", path), err)
	}

	var cluster Cluster
	if err := yaml.Unmarshal(raw, &cluster); err != nil {
		return nil, engine.NewValidationError(
			fmt.Sprintf("cluster descriptor %q is not valid YAML", path), err)
	}
	if err := validate.Struct(&cluster); err != nil {
		return nil, engine.NewValidationError(
			fmt.Sprintf("cluster descriptor %q is incomplete", path), err)
	}
	return &cluster, nil
}

// Sizing is the YAML form of a service's resource envelope.
type Sizing struct {
	CPURequestMilli int `yaml:"cpu_request_milli"`
	CPUBurstMilli   int `yaml:"cpu_burst_milli"`
	MemoryMiB       int `yaml:"memory_mib"`
	MinInstances    int `yaml:"min_instances"`
	MaxInstances    int `yaml:"max_instances"`
}

func (s Sizing) toEngine() engine.Sizing {
	return engine.Sizing{
		CPURequestMilli: s.CPURequestMilli,
		CPUBurstMilli:   s.CPUBurstMilli,
		MemoryMiB:       s.MemoryMiB,
		MinInstances:    s.MinInstances,
		MaxInstances:    s.MaxInstances,
	}
}

// ServiceSpec is one service entry of an environment descriptor. Type
// selects which of the kind-specific blocks applies.
type ServiceSpec struct {
	ID          string `yaml:"id" validate:"required"`
	Name        string `yaml:"name" validate:"required"`
	Type        string `yaml:"type" validate:"required,oneof=application database router"`
	PrivatePort int    `yaml:"private_port,omitempty"`
	Sizing      Sizing `yaml:"sizing"`

	// StartTimeoutSeconds is the unscaled readiness budget.
	StartTimeoutSeconds int `yaml:"start_timeout_seconds,omitempty"`

	// Application fields.
	Image                string            `yaml:"image,omitempty"`
	Tag                  string            `yaml:"tag,omitempty"`
	EnvironmentVariables map[string]string `yaml:"environment_variables,omitempty"`

	// Database fields.
	Engine      string `yaml:"engine,omitempty"`
	Version     string `yaml:"version,omitempty"`
	DiskSizeGiB int    `yaml:"disk_size_gib,omitempty"`

	// Router fields.
	DefaultDomain string         `yaml:"default_domain,omitempty"`
	CustomDomains []CustomDomain `yaml:"custom_domains,omitempty"`
}

// CustomDomain is the YAML form of a router custom domain.
type CustomDomain struct {
	Domain       string `yaml:"domain" validate:"required"`
	TargetDomain string `yaml:"target_domain" validate:"required"`
}

// EnvironmentSpec is the YAML form of a deployable environment.
type EnvironmentSpec struct {
	ID        string        `yaml:"id" validate:"required"`
	Name      string        `yaml:"name" validate:"required"`
	Kind      string        `yaml:"kind" validate:"required,oneof=production development"`
	Namespace string        `yaml:"namespace" validate:"required"`
	Action    string        `yaml:"action" validate:"required,oneof=create pause delete"`
	Services  []ServiceSpec `yaml:"services" validate:"required,min=1,dive"`
}

// LoadEnvironment reads and validates an environment descriptor.
func LoadEnvironment(path string) (*EnvironmentSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewValidationError(
			fmt.Sprintf("environment descriptor %q could not be read", path), err)
	}

	var spec EnvironmentSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, engine.NewValidationError(
			fmt.Sprintf("environment descriptor %q is not valid YAML", path), err)
	}
	if err := validate.Struct(&spec); err != nil {
		return nil, engine.NewValidationError(
			fmt.Sprintf("environment descriptor %q is incomplete", path), err)
	}
	return &spec, nil
}

// ServiceDeps are the collaborators injected into constructed services.
type ServiceDeps struct {
	Renderer engine.Renderer
	Helm     engine.Helm
	Kubectl  engine.Kubectl
	Resolver engine.VersionResolver
	Checker  engine.DomainChecker
	Logger   *telemetry.Logger
}

// BuildEnvironment constructs the engine environment from a descriptor,
// assigning a fresh execution id.
func (s *EnvironmentSpec) BuildEnvironment(deps ServiceDeps) (*engine.Environment, error) {
	executionID := engine.NewExecutionID()

	services := make([]engine.Service, 0, len(s.Services))
	for _, spec := range s.Services {
		svc, err := buildService(spec, s.Namespace, engine.Action(s.Action), executionID, deps)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}

	return &engine.Environment{
		ID:          s.ID,
		Name:        s.Name,
		Kind:        engine.EnvironmentKind(s.Kind),
		Namespace:   s.Namespace,
		ExecutionID: executionID,
		Action:      engine.Action(s.Action),
		Services:    services,
	}, nil
}

func buildService(spec ServiceSpec, namespace string, action engine.Action, executionID string, deps ServiceDeps) (engine.Service, error) {
	timeout := time.Duration(spec.StartTimeoutSeconds) * time.Second

	switch spec.Type {
	case "application":
		return engine.NewApplication(engine.ApplicationParams{
			ID:                   spec.ID,
			Name:                 spec.Name,
			Namespace:            namespace,
			Action:               action,
			Image:                spec.Image,
			Tag:                  spec.Tag,
			PrivatePort:          spec.PrivatePort,
			Sizing:               spec.Sizing.toEngine(),
			EnvironmentVariables: spec.EnvironmentVariables,
			StartTimeoutBase:     timeout,
		}, deps.Renderer, deps.Helm, deps.Kubectl, deps.Logger)

	case "database":
		return engine.NewDatabase(engine.DatabaseParams{
			ID:               spec.ID,
			Name:             spec.Name,
			Namespace:        namespace,
			Action:           action,
			Engine:           engine.DatabaseType(spec.Engine),
			Version:          spec.Version,
			PrivatePort:      spec.PrivatePort,
			Sizing:           spec.Sizing.toEngine(),
			DiskSizeGiB:      spec.DiskSizeGiB,
			StartTimeoutBase: timeout,
		}, deps.Resolver, deps.Renderer, deps.Helm, deps.Kubectl, deps.Logger)

	case "router":
		domains := make([]engine.CustomDomain, 0, len(spec.CustomDomains))
		for _, cd := range spec.CustomDomains {
			domains = append(domains, engine.CustomDomain{
				Domain:       cd.Domain,
				TargetDomain: cd.TargetDomain,
			})
		}
		return engine.NewRouter(engine.RouterParams{
			ID:               spec.ID,
			Name:             spec.Name,
			Namespace:        namespace,
			Action:           action,
			DefaultDomain:    spec.DefaultDomain,
			CustomDomains:    domains,
			Sizing:           spec.Sizing.toEngine(),
			StartTimeoutBase: timeout,
		}, executionID, deps.Checker, deps.Renderer, deps.Kubectl, deps.Logger)

	default:
		return nil, engine.NewValidationError(
			fmt.Sprintf("unknown service type %q", spec.Type), nil)
	}
}
