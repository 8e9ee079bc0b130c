package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

// DomainChecker confirms DNS readiness of service-exposed domains. Checks
// are best-effort: an unconfirmed domain is reported as a warning and never
// fails the deployment.
type DomainChecker interface {
	// CheckCNAME verifies that each custom domain resolves via CNAME to the
	// expected target. Returns the domains that could be confirmed.
	CheckCNAME(ctx context.Context, executionID string, domains []CustomDomain) []CustomDomain

	// CheckDomains verifies plain A/AAAA resolution of the given domains.
	CheckDomains(ctx context.Context, executionID string, domains []string)
}

// CustomDomain is a user-supplied domain that must CNAME to the router's
// generated target domain.
type CustomDomain struct {
	// Domain is the user-facing domain name.
	Domain string `json:"domain" validate:"required,fqdn"`

	// TargetDomain is the generated domain the CNAME must point at.
	TargetDomain string `json:"target_domain" validate:"required,fqdn"`
}

// RouterParams configures an ingress router service.
type RouterParams struct {
	ID        string `validate:"required"`
	Name      string `validate:"required"`
	Namespace string `validate:"required"`
	Action    Action `validate:"required"`

	// DefaultDomain is the generated domain the router is always reachable
	// under.
	DefaultDomain string `validate:"required,fqdn"`

	// CustomDomains are additional user-owned domains routed to the same
	// backends.
	CustomDomains []CustomDomain

	// Sizing is unused for routers today: routing rules carry no compute.
	Sizing           Sizing `validate:"-"`
	StartTimeoutBase time.Duration
}

// Router exposes an environment's applications through the cluster's ingress
// controller and verifies domain readiness after creation.
type Router struct {
	serviceCore

	defaultDomain string
	customDomains []CustomDomain
	checker       DomainChecker
	executionID   string
}

// NewRouter builds a router service. checker may be nil, in which case
// domain readiness verification is skipped.
func NewRouter(p RouterParams, executionID string, checker DomainChecker, renderer Renderer, kubectl Kubectl, logger *telemetry.Logger) (*Router, error) {
	if err := validate.Struct(p); err != nil {
		return nil, NewValidationError("invalid router parameters", err)
	}
	return &Router{
		serviceCore: serviceCore{
			id:               p.ID,
			name:             p.Name,
			namespace:        p.Namespace,
			action:           p.Action,
			sizing:           p.Sizing,
			startTimeoutBase: p.StartTimeoutBase,
			renderer:         renderer,
			kubectl:          kubectl,
			logger:           logger.WithServiceID(p.ID),
		},
		defaultDomain: p.DefaultDomain,
		customDomains: p.CustomDomains,
		checker:       checker,
		executionID:   executionID,
	}, nil
}

// Type implements Service.
func (r *Router) Type() ServiceType { return ServiceTypeRouter }

// RenderContext implements Service.
func (r *Router) RenderContext(target *DeploymentTarget) (RenderContext, error) {
	if target == nil {
		return nil, NewValidationError("router has no deployment target", nil).WithService(r.id)
	}
	domains := make([]map[string]string, 0, len(r.customDomains))
	for _, cd := range r.customDomains {
		domains = append(domains, map[string]string{
			"domain":        cd.Domain,
			"target_domain": cd.TargetDomain,
		})
	}
	return RenderContext{
		"id":             r.id,
		"sanitized_name": SanitizeName(r.name),
		"name":           r.name,
		"namespace":      r.namespace,
		"default_domain": r.defaultDomain,
		"custom_domains": domains,
		"cluster_id":     target.ClusterID,
		"provider":       target.Provider.ShortName,
	}, nil
}

func (r *Router) templateDir(target *DeploymentTarget) string {
	return filepath.Join(target.Provider.LibDir, "charts", "router")
}

// OnCreate implements Service. Applies the routing manifests, then runs the
// best-effort domain readiness checks.
func (r *Router) OnCreate(ctx context.Context, target *DeploymentTarget) error {
	r.logger.Infof("deploying router %q", r.name)

	rc, err := r.RenderContext(target)
	if err != nil {
		return err
	}
	dir, err := r.renderer.Render(ctx, r.templateDir(target), rc)
	if err != nil {
		return NewExecutionError(
			fmt.Sprintf("failed to prepare routing files for router %q", r.name), err).
			WithService(r.id)
	}
	if err := r.kubectl.Apply(ctx, dir, r.namespace); err != nil {
		return err
	}

	// DNS propagation and CDN fronting make these checks advisory only.
	if r.checker != nil {
		if len(r.customDomains) > 0 {
			r.checker.CheckCNAME(ctx, r.executionID, r.customDomains)
		}
		r.checker.CheckDomains(ctx, r.executionID, []string{r.defaultDomain})
	}
	return nil
}

// OnCreateCheck implements Service.
func (r *Router) OnCreateCheck() error {
	if r.id == "" || r.name == "" {
		return NewValidationError("router is missing an id or a name", nil)
	}
	for _, cd := range r.customDomains {
		if err := validate.Struct(cd); err != nil {
			return NewValidationError(
				fmt.Sprintf("invalid custom domain %q on router %q", cd.Domain, r.name), err).
				WithService(r.id)
		}
	}
	return nil
}

// OnCreateError implements Service.
func (r *Router) OnCreateError(ctx context.Context, target *DeploymentTarget) error {
	return nil
}

// OnPause implements Service. Routing rules carry no compute cost; pausing
// an environment removes them so paused workloads are unreachable.
func (r *Router) OnPause(ctx context.Context, target *DeploymentTarget) error {
	return r.OnDelete(ctx, target)
}

// OnPauseCheck implements Service.
func (r *Router) OnPauseCheck() error { return r.OnCreateCheck() }

// OnPauseError implements Service.
func (r *Router) OnPauseError(ctx context.Context, target *DeploymentTarget) error {
	return nil
}

// OnDelete implements Service.
func (r *Router) OnDelete(ctx context.Context, target *DeploymentTarget) error {
	r.logger.Infof("deleting router %q", r.name)

	rc, err := r.RenderContext(target)
	if err != nil {
		return err
	}
	rc["deleted"] = true
	dir, err := r.renderer.Render(ctx, r.templateDir(target), rc)
	if err != nil {
		return NewExecutionError(
			fmt.Sprintf("failed to prepare deletion files for router %q", r.name), err).
			WithService(r.id)
	}
	return r.kubectl.Apply(ctx, dir, r.namespace)
}

// OnDeleteCheck implements Service.
func (r *Router) OnDeleteCheck() error { return r.OnCreateCheck() }

// OnDeleteError implements Service.
func (r *Router) OnDeleteError(ctx context.Context, target *DeploymentTarget) error {
	return nil
}
