package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// EnvironmentKind distinguishes production from development environments.
type EnvironmentKind string

const (
	EnvironmentKindProduction  EnvironmentKind = "production"
	EnvironmentKindDevelopment EnvironmentKind = "development"
)

// Environment is an ordered collection of services deployed or torn down as
// a unit.
type Environment struct {
	// ID identifies the logical environment across runs.
	ID string `json:"id" validate:"required"`

	// Name is the human-readable environment name.
	Name string `json:"name" validate:"required"`

	// Kind distinguishes production from development.
	Kind EnvironmentKind `json:"kind" validate:"required,oneof=production development"`

	// Namespace is the cluster namespace the environment deploys into.
	Namespace string `json:"namespace" validate:"required"`

	// ExecutionID is unique per deployment attempt. It correlates progress
	// events and isolates workspace state: re-running the same logical
	// environment under a new execution id never collides with a prior
	// run's on-disk or in-cluster artifacts.
	ExecutionID string `json:"execution_id" validate:"required"`

	// Action is the lifecycle operation requested for every service.
	Action Action `json:"action" validate:"required"`

	// Services is the environment's service set, in declaration order.
	Services []Service `json:"-"`
}

// NewExecutionID generates a fresh execution id for one deployment attempt.
func NewExecutionID() string {
	return uuid.New().String()
}

// orderedServices returns the environment's services in the execution order
// the action requires: stateful before stateless for Create (databases must
// exist before the applications that depend on them), the reverse for Delete
// and Pause.
func (e *Environment) orderedServices() []Service {
	stateful := make([]Service, 0, len(e.Services))
	stateless := make([]Service, 0, len(e.Services))
	for _, svc := range e.Services {
		if svc.Type().Stateful() {
			stateful = append(stateful, svc)
		} else {
			stateless = append(stateless, svc)
		}
	}

	if e.Action == ActionCreate {
		return append(stateful, stateless...)
	}
	return append(stateless, stateful...)
}

// Validate checks the environment's structural invariants.
func (e *Environment) Validate() error {
	if e.ExecutionID == "" {
		return NewValidationError("environment has no execution id", nil)
	}
	if len(e.Services) == 0 {
		return NewValidationError(fmt.Sprintf("environment %q has no services", e.Name), nil)
	}
	seen := make(map[string]bool, len(e.Services))
	for _, svc := range e.Services {
		if seen[svc.ID()] {
			return NewValidationError(
				fmt.Sprintf("duplicate service id %q in environment %q", svc.ID(), e.Name), nil)
		}
		seen[svc.ID()] = true
	}
	return nil
}

// TargetKind indicates whether databases are externally managed or
// self-hosted inside the cluster.
type TargetKind string

const (
	TargetManagedServices TargetKind = "managed_services"
	TargetSelfHosted      TargetKind = "self_hosted"
)

// DeploymentTarget pairs a cluster handle with an environment handle.
type DeploymentTarget struct {
	// ClusterID identifies the target cluster.
	ClusterID string `json:"cluster_id" validate:"required"`

	// ClusterName is the target cluster's display name.
	ClusterName string `json:"cluster_name"`

	// Kubeconfig is the path to the cluster's kubeconfig file.
	Kubeconfig string `json:"kubeconfig" validate:"required"`

	// Kind selects managed or self-hosted database deployment.
	Kind TargetKind `json:"kind" validate:"required,oneof=managed_services self_hosted"`

	// Provider carries the provider-specific constants for this target.
	Provider ProviderSettings `json:"provider"`
}

// EnvironmentAction is the unit of work submitted to the orchestrator: a
// single environment, or a primary with a failover substituted when the
// primary fails.
type EnvironmentAction struct {
	// Primary is the environment to execute.
	Primary *Environment `json:"primary" validate:"required"`

	// Failover, when set, is attempted under the same deployment target if
	// the primary fails.
	Failover *Environment `json:"failover,omitempty"`
}

// TransactionResultKind is the terminal outcome of one orchestrator run.
type TransactionResultKind string

const (
	ResultOK            TransactionResultKind = "ok"
	ResultRollback      TransactionResultKind = "rollback"
	ResultUnrecoverable TransactionResultKind = "unrecoverable"
)

// TransactionResult is the terminal outcome of one transaction.
type TransactionResult struct {
	// Kind is the outcome variant.
	Kind TransactionResultKind `json:"kind"`

	// Cause is the failure that triggered a rollback or unrecoverable
	// outcome. Nil for ResultOK.
	Cause error `json:"-"`

	// ServiceID is the service whose failure was terminal, when known.
	ServiceID string `json:"service_id,omitempty"`

	// RollbackErrors collects error-hook failures observed during rollback.
	// They never change the primary outcome.
	RollbackErrors []error `json:"-"`
}

// OK reports whether the transaction committed.
func (r TransactionResult) OK() bool {
	return r.Kind == ResultOK
}
