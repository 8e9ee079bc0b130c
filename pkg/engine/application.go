package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

var validate = validator.New()

// serviceCore carries the identity, sizing and collaborators shared by every
// service kind.
type serviceCore struct {
	id          string
	name        string
	namespace   string
	action      Action
	sizing      Sizing
	privatePort int

	// startTimeoutBase is the configured base readiness timeout before
	// action scaling is applied.
	startTimeoutBase time.Duration

	renderer Renderer
	helm     Helm
	kubectl  Kubectl
	logger   *telemetry.Logger
}

func (c *serviceCore) ID() string       { return c.id }
func (c *serviceCore) Name() string     { return c.name }
func (c *serviceCore) Sizing() Sizing   { return c.sizing }
func (c *serviceCore) PrivatePort() int { return c.privatePort }
func (c *serviceCore) Action() Action   { return c.action }

// StartTimeout scales the configured base so slow-starting workloads get a
// proportionally larger readiness budget.
func (c *serviceCore) StartTimeout() time.Duration {
	return (c.startTimeoutBase + 10*time.Second) * 4
}

// releaseName derives the package manager release name for this service.
// Stable for a given service id, so re-deploys target the same release.
func (c *serviceCore) releaseName(kind string) string {
	return fmt.Sprintf("%s-%s-%s", kind, SanitizeName(c.name), c.id)
}

// checkCore validates the invariants every kind shares.
func (c *serviceCore) checkCore() error {
	if c.id == "" || c.name == "" {
		return NewValidationError("service is missing an id or a name", nil)
	}
	if err := validate.Struct(c.sizing); err != nil {
		return NewValidationError(
			fmt.Sprintf("invalid sizing for service %q", c.name), err).WithService(c.id)
	}
	return nil
}

// ApplicationParams configures a stateless application service.
type ApplicationParams struct {
	ID          string `validate:"required"`
	Name        string `validate:"required"`
	Namespace   string `validate:"required"`
	Action      Action `validate:"required"`
	Image       string `validate:"required"`
	Tag         string `validate:"required"`
	PrivatePort int
	Sizing      Sizing

	// EnvironmentVariables are injected into the workload at render time.
	EnvironmentVariables map[string]string

	// StartTimeoutBase is the unscaled readiness budget.
	StartTimeoutBase time.Duration
}

// Application is a stateless containerized workload deployed as a chart
// release.
type Application struct {
	serviceCore

	image   string
	tag     string
	envVars map[string]string
}

// NewApplication builds an application service.
func NewApplication(p ApplicationParams, renderer Renderer, helm Helm, kubectl Kubectl, logger *telemetry.Logger) (*Application, error) {
	if err := validate.Struct(p); err != nil {
		return nil, NewValidationError("invalid application parameters", err)
	}
	return &Application{
		serviceCore: serviceCore{
			id:               p.ID,
			name:             p.Name,
			namespace:        p.Namespace,
			action:           p.Action,
			sizing:           p.Sizing,
			privatePort:      p.PrivatePort,
			startTimeoutBase: p.StartTimeoutBase,
			renderer:         renderer,
			helm:             helm,
			kubectl:          kubectl,
			logger:           logger.WithServiceID(p.ID),
		},
		image:   p.Image,
		tag:     p.Tag,
		envVars: p.EnvironmentVariables,
	}, nil
}

// Type implements Service.
func (a *Application) Type() ServiceType { return ServiceTypeApplication }

// RenderContext implements Service.
func (a *Application) RenderContext(target *DeploymentTarget) (RenderContext, error) {
	if target == nil {
		return nil, NewValidationError("application has no deployment target", nil).WithService(a.id)
	}
	ctx := RenderContext{
		"id":             a.id,
		"sanitized_name": SanitizeName(a.name),
		"name":           a.name,
		"namespace":      a.namespace,
		"image":          a.image,
		"tag":            a.tag,
		"cpu_request_m":  a.sizing.CPURequestMilli,
		"cpu_burst_m":    a.sizing.CPUBurstMilli,
		"memory_mib":     a.sizing.MemoryMiB,
		"min_instances":  a.sizing.MinInstances,
		"max_instances":  a.sizing.MaxInstances,
		"cluster_id":     target.ClusterID,
		"provider":       target.Provider.ShortName,
	}
	if a.privatePort > 0 {
		ctx["private_port"] = a.privatePort
	}
	if len(a.envVars) > 0 {
		ctx["environment_variables"] = a.envVars
	}
	return ctx, nil
}

func (a *Application) templateDir(target *DeploymentTarget) string {
	return filepath.Join(target.Provider.LibDir, "charts", "application")
}

// deploy renders the application chart and installs it with the requested
// instance count.
func (a *Application) deploy(ctx context.Context, target *DeploymentTarget, instances int) error {
	rc, err := a.RenderContext(target)
	if err != nil {
		return err
	}
	rc["instances"] = instances

	dir, err := a.renderer.Render(ctx, a.templateDir(target), rc)
	if err != nil {
		return NewExecutionError(
			fmt.Sprintf("failed to prepare deployment files for application %q", a.name), err).
			WithService(a.id)
	}

	status, err := a.helm.UpgradeInstall(ctx, a.releaseName("app"), dir, a.namespace, nil, a.StartTimeout())
	if err != nil {
		return err
	}
	if status == DeploymentStatusFailed {
		return NewExecutionError(
			fmt.Sprintf("application %q did not reach a healthy state", a.name), nil).
			WithService(a.id)
	}
	return nil
}

// OnCreate implements Service.
func (a *Application) OnCreate(ctx context.Context, target *DeploymentTarget) error {
	a.logger.Infof("deploying application %q", a.name)
	return a.deploy(ctx, target, a.sizing.MinInstances)
}

// OnCreateCheck implements Service.
func (a *Application) OnCreateCheck() error {
	if err := a.checkCore(); err != nil {
		return err
	}
	if a.image == "" || a.tag == "" {
		return NewValidationError(
			fmt.Sprintf("application %q has no container image", a.name), nil).WithService(a.id)
	}
	return nil
}

// OnCreateError implements Service. Removes the partially installed release
// so a later retry starts clean.
func (a *Application) OnCreateError(ctx context.Context, target *DeploymentTarget) error {
	a.logger.Warnf("cleaning up failed deployment of application %q", a.name)
	return a.helm.Uninstall(ctx, a.releaseName("app"), a.namespace)
}

// OnPause implements Service. Pausing scales the workload to zero instances
// while keeping its release and configuration in place.
func (a *Application) OnPause(ctx context.Context, target *DeploymentTarget) error {
	a.logger.Infof("pausing application %q", a.name)
	return a.deploy(ctx, target, 0)
}

// OnPauseCheck implements Service.
func (a *Application) OnPauseCheck() error { return a.checkCore() }

// OnPauseError implements Service.
func (a *Application) OnPauseError(ctx context.Context, target *DeploymentTarget) error {
	return nil
}

// OnDelete implements Service.
func (a *Application) OnDelete(ctx context.Context, target *DeploymentTarget) error {
	a.logger.Infof("deleting application %q", a.name)
	return a.helm.Uninstall(ctx, a.releaseName("app"), a.namespace)
}

// OnDeleteCheck implements Service.
func (a *Application) OnDeleteCheck() error { return a.checkCore() }

// OnDeleteError implements Service.
func (a *Application) OnDeleteError(ctx context.Context, target *DeploymentTarget) error {
	return nil
}
