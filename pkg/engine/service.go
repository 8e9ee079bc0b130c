package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

// Action is the lifecycle operation requested for a service. Create, Pause
// and Delete apply to every kind; the rest are capability-gated and return
// ErrNotSupported from kinds that do not implement them.
type Action string

const (
	ActionCreate    Action = "create"
	ActionPause     Action = "pause"
	ActionDelete    Action = "delete"
	ActionUpgrade   Action = "upgrade"
	ActionDowngrade Action = "downgrade"
	ActionBackup    Action = "backup"
	ActionRestore   Action = "restore"
	ActionClone     Action = "clone"
)

// ServiceType identifies a service kind. The set is closed: orchestration
// logic may switch exhaustively over it.
type ServiceType string

const (
	ServiceTypeApplication ServiceType = "application"
	ServiceTypeDatabase    ServiceType = "database"
	ServiceTypeRouter      ServiceType = "router"
)

// Stateful reports whether services of this kind hold durable state.
// Stateful services are created before stateless ones and torn down after.
func (t ServiceType) Stateful() bool {
	return t == ServiceTypeDatabase
}

// Sizing holds the resource envelope of a service. Sizing is immutable once
// a transaction has rendered it.
type Sizing struct {
	// CPURequestMilli is the guaranteed CPU allocation in millicores.
	CPURequestMilli int `json:"cpu_request_milli" validate:"gt=0"`

	// CPUBurstMilli is the CPU limit in millicores.
	CPUBurstMilli int `json:"cpu_burst_milli" validate:"gtefield=CPURequestMilli"`

	// MemoryMiB is the memory allocation in mebibytes.
	MemoryMiB int `json:"memory_mib" validate:"gt=0"`

	// MinInstances and MaxInstances bound horizontal scaling.
	MinInstances int `json:"min_instances" validate:"gte=1"`
	MaxInstances int `json:"max_instances" validate:"gtefield=MinInstances"`
}

// RenderContext is the key/value context handed to the template renderer for
// one service on one target.
type RenderContext map[string]interface{}

// Service is the lifecycle contract every deployable entity implements.
//
// Each lifecycle operation is a triple: the Check hook is a pre-flight
// validation run before the main hook, and the Error hook is cleanup run only
// if the main hook failed. An Error hook failure never masks the original
// failure.
type Service interface {
	// ID is the opaque identifier, stable across the service's lifetime.
	ID() string

	// Name is the human-readable name.
	Name() string

	// Type is the service kind.
	Type() ServiceType

	// Sizing returns the service's resource envelope.
	Sizing() Sizing

	// PrivatePort returns the service's private port, or 0 if none.
	PrivatePort() int

	// Action returns the lifecycle operation requested for this service in
	// the current transaction.
	Action() Action

	// RenderContext builds the template context for this service on target.
	RenderContext(target *DeploymentTarget) (RenderContext, error)

	// StartTimeout bounds how long the orchestrator waits for readiness
	// after a hook returns successfully. Scaled from the configured base by
	// the service's size.
	StartTimeout() time.Duration

	OnCreate(ctx context.Context, target *DeploymentTarget) error
	OnCreateCheck() error
	OnCreateError(ctx context.Context, target *DeploymentTarget) error

	OnPause(ctx context.Context, target *DeploymentTarget) error
	OnPauseCheck() error
	OnPauseError(ctx context.Context, target *DeploymentTarget) error

	OnDelete(ctx context.Context, target *DeploymentTarget) error
	OnDeleteCheck() error
	OnDeleteError(ctx context.Context, target *DeploymentTarget) error
}

// Upgrader is implemented by service kinds that support in-place upgrades.
type Upgrader interface {
	OnUpgrade(ctx context.Context, target *DeploymentTarget) error
}

// Downgrader is implemented by service kinds that support downgrades.
type Downgrader interface {
	OnDowngrade(ctx context.Context, target *DeploymentTarget) error
}

// Backuper is implemented by service kinds that support backups.
type Backuper interface {
	OnBackup(ctx context.Context, target *DeploymentTarget) error
}

// Restorer is implemented by service kinds that support restores.
type Restorer interface {
	OnRestore(ctx context.Context, target *DeploymentTarget) error
}

// Cloner is implemented by service kinds that support cloning.
type Cloner interface {
	OnClone(ctx context.Context, target *DeploymentTarget) error
}

// ProviderSettings carries the provider-specific constants that parameterize
// otherwise identical orchestration logic. Passed explicitly rather than
// baked into service types, keeping the core provider-agnostic.
type ProviderSettings struct {
	// ShortName is the provider's short identifier ("aws", "scw", "do").
	ShortName string `json:"short_name" validate:"required"`

	// LibDir is the root of the provider's template library.
	LibDir string `json:"lib_dir" validate:"required"`

	// Extra holds provider-specific settings the renderer consumes opaquely.
	Extra map[string]string `json:"extra,omitempty"`
}

// hooks bundles one lifecycle operation's triple for a service.
type hooks struct {
	check func() error
	main  func(ctx context.Context, target *DeploymentTarget) error
	onErr func(ctx context.Context, target *DeploymentTarget) error
}

// hooksFor selects the lifecycle triple for action. Capability-gated actions
// resolve through the capability interfaces; a kind that does not implement
// the capability yields a main hook returning ErrNotSupported. Those hooks
// are never invoked automatically, only when the action was requested.
func hooksFor(svc Service, action Action) (hooks, error) {
	nop := func() error { return nil }
	nopErr := func(context.Context, *DeploymentTarget) error { return nil }

	switch action {
	case ActionCreate:
		return hooks{check: svc.OnCreateCheck, main: svc.OnCreate, onErr: svc.OnCreateError}, nil
	case ActionPause:
		return hooks{check: svc.OnPauseCheck, main: svc.OnPause, onErr: svc.OnPauseError}, nil
	case ActionDelete:
		return hooks{check: svc.OnDeleteCheck, main: svc.OnDelete, onErr: svc.OnDeleteError}, nil
	case ActionUpgrade:
		if u, ok := svc.(Upgrader); ok {
			return hooks{check: nop, main: u.OnUpgrade, onErr: nopErr}, nil
		}
	case ActionDowngrade:
		if d, ok := svc.(Downgrader); ok {
			return hooks{check: nop, main: d.OnDowngrade, onErr: nopErr}, nil
		}
	case ActionBackup:
		if b, ok := svc.(Backuper); ok {
			return hooks{check: nop, main: b.OnBackup, onErr: nopErr}, nil
		}
	case ActionRestore:
		if r, ok := svc.(Restorer); ok {
			return hooks{check: nop, main: r.OnRestore, onErr: nopErr}, nil
		}
	case ActionClone:
		if c, ok := svc.(Cloner); ok {
			return hooks{check: nop, main: c.OnClone, onErr: nopErr}, nil
		}
	default:
		return hooks{}, NewValidationError(fmt.Sprintf("unknown action %q", action), nil).WithService(svc.ID())
	}
	return hooks{}, fmt.Errorf("%s on %s %s: %w", action, svc.Type(), svc.ID(), ErrNotSupported)
}

// sendProgressOnLongTask wraps a blocking lifecycle hook with progress
// reporting: a "long task started" event before invocation and a terminal
// success or failure event after. This is the sole path by which main
// lifecycle hooks run; calling a hook directly bypasses progress reporting.
func sendProgressOnLongTask(
	ctx context.Context,
	events *telemetry.EventPublisher,
	executionID string,
	svc Service,
	action Action,
	target *DeploymentTarget,
	hook func(ctx context.Context, target *DeploymentTarget) error,
) error {
	events.PublishLongTaskStarted(executionID, svc.ID(), string(action))

	err := hook(ctx, target)

	events.PublishLongTaskFinished(executionID, svc.ID(), string(action), err)
	return err
}
