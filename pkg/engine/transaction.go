package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

// TransactionState is the orchestrator's per-run state machine.
type TransactionState string

const (
	StatePending       TransactionState = "pending"
	StateExecuting     TransactionState = "executing"
	StateCommitted     TransactionState = "committed"
	StateRolledBack    TransactionState = "rolled_back"
	StateUnrecoverable TransactionState = "unrecoverable"
)

// Transaction executes one EnvironmentAction against one deployment target
// and yields exactly one TransactionResult. A Transaction is single-use.
//
// Execution is synchronous: lifecycle hooks are blocking calls against
// external systems and run sequentially to preserve dependency ordering.
// Independent transactions with distinct execution ids may run concurrently.
type Transaction struct {
	id     string
	state  TransactionState
	logger *telemetry.Logger
	events *telemetry.EventPublisher

	metrics  *telemetry.Metrics
	recorder HistoryRecorder
}

// TransactionOption configures optional transaction collaborators.
type TransactionOption func(*Transaction)

// WithMetrics attaches engine metrics to the transaction.
func WithMetrics(m *telemetry.Metrics) TransactionOption {
	return func(t *Transaction) { t.metrics = m }
}

// WithHistoryRecorder attaches a recorder that persists the terminal outcome.
func WithHistoryRecorder(r HistoryRecorder) TransactionOption {
	return func(t *Transaction) { t.recorder = r }
}

// NewTransaction creates a transaction in the Pending state.
func NewTransaction(logger *telemetry.Logger, events *telemetry.EventPublisher, opts ...TransactionOption) *Transaction {
	t := &Transaction{
		id:     uuid.New().String(),
		state:  StatePending,
		logger: logger,
		events: events,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID returns the transaction's identifier.
func (t *Transaction) ID() string {
	return t.id
}

// State returns the transaction's current state.
func (t *Transaction) State() TransactionState {
	return t.state
}

// Run executes the environment action to a terminal state. If a failover
// environment is present it is attempted under the same target when the
// primary fails; both failing yields an unrecoverable result.
//
// Cancellation is not preemptive. Once a hook has been invoked there is no
// mid-flight abort; ctx is only consulted between hooks.
func (t *Transaction) Run(ctx context.Context, action EnvironmentAction, target *DeploymentTarget) TransactionResult {
	started := time.Now()
	t.state = StateExecuting

	log := t.logger.WithTransactionID(t.id).WithExecutionID(action.Primary.ExecutionID)
	log.Infof("starting transaction for environment %q (action=%s, services=%d)",
		action.Primary.Name, action.Primary.Action, len(action.Primary.Services))

	t.events.PublishTransactionStarted(t.id, action.Primary.ExecutionID)
	if t.metrics != nil {
		t.metrics.TransactionStarted()
	}

	result := t.runWithFailover(ctx, action, target, log)

	switch result.Kind {
	case ResultOK:
		t.state = StateCommitted
	case ResultRollback:
		t.state = StateRolledBack
	case ResultUnrecoverable:
		t.state = StateUnrecoverable
	}

	t.events.PublishTransactionCompleted(t.id, action.Primary.ExecutionID, string(result.Kind))
	if t.metrics != nil {
		t.metrics.TransactionCompleted(string(result.Kind), time.Since(started))
	}
	t.record(ctx, action, result, started)

	if result.Cause != nil {
		log.WithError(result.Cause).Warnf("transaction finished: %s", result.Kind)
	} else {
		log.Infof("transaction finished: %s", result.Kind)
	}
	return result
}

func (t *Transaction) runWithFailover(ctx context.Context, action EnvironmentAction, target *DeploymentTarget, log *telemetry.Logger) TransactionResult {
	primary := t.runEnvironment(ctx, action.Primary, target)
	if primary.OK() || action.Failover == nil {
		return primary
	}

	log.WithError(primary.Cause).
		Warnf("primary environment %q failed, attempting failover %q",
			action.Primary.Name, action.Failover.Name)

	failover := t.runEnvironment(ctx, action.Failover, target)
	if failover.OK() {
		// The primary's failure is reported through events only; the run's
		// terminal outcome is the failover's success.
		return failover
	}

	return TransactionResult{
		Kind:      ResultUnrecoverable,
		ServiceID: failover.ServiceID,
		Cause: NewUnrecoverableError(
			fmt.Sprintf("environment %q failed and its failover %q also failed",
				action.Primary.Name, action.Failover.Name),
			failover.Cause),
	}
}

// runEnvironment executes one environment's lifecycle hooks.
func (t *Transaction) runEnvironment(ctx context.Context, env *Environment, target *DeploymentTarget) TransactionResult {
	if err := env.Validate(); err != nil {
		return TransactionResult{Kind: ResultRollback, Cause: err}
	}

	services := env.orderedServices()

	// Pre-flight checks for the whole batch. Nothing has mutated yet, so a
	// check failure is reported without rollback.
	for _, svc := range services {
		chk, err := hooksFor(svc, env.Action)
		if err != nil {
			return TransactionResult{
				Kind:      ResultUnrecoverable,
				ServiceID: svc.ID(),
				Cause:     NewUnrecoverableError(fmt.Sprintf("service %q cannot perform %s", svc.Name(), env.Action), err).WithService(svc.ID()),
			}
		}
		if err := chk.check(); err != nil {
			return TransactionResult{
				Kind:      ResultRollback,
				ServiceID: svc.ID(),
				Cause:     NewValidationError(fmt.Sprintf("pre-flight check failed for service %q", svc.Name()), err).WithService(svc.ID()).WithOperation(string(env.Action)),
			}
		}
	}

	var succeeded []Service
	for _, svc := range services {
		// Cancellation point: between hooks only.
		if err := ctx.Err(); err != nil {
			cause := NewExecutionError("deployment cancelled", err).WithService(svc.ID())
			return t.rollback(ctx, env, target, svc, succeeded, cause)
		}

		h, err := hooksFor(svc, env.Action)
		if err != nil {
			return TransactionResult{Kind: ResultUnrecoverable, ServiceID: svc.ID(), Cause: err}
		}

		hookStart := time.Now()
		hookErr := sendProgressOnLongTask(ctx, t.events, env.ExecutionID, svc, env.Action, target, h.main)
		if t.metrics != nil {
			outcome := "success"
			if hookErr != nil {
				outcome = "failure"
			}
			t.metrics.ServiceOperation(string(svc.Type()), string(env.Action), outcome, time.Since(hookStart))
		}

		if hookErr != nil {
			cause := NewExecutionError(
				fmt.Sprintf("%s failed for service %q", env.Action, svc.Name()), hookErr).
				WithService(svc.ID()).WithOperation(string(env.Action))
			return t.rollback(ctx, env, target, svc, succeeded, cause)
		}
		succeeded = append(succeeded, svc)
	}

	return TransactionResult{Kind: ResultOK}
}

// rollback runs the error hook for the failed service and for every service
// that already succeeded in the batch. Error-hook failures are collected but
// never mask the original failure.
func (t *Transaction) rollback(ctx context.Context, env *Environment, target *DeploymentTarget, failed Service, succeeded []Service, cause error) TransactionResult {
	log := t.logger.WithTransactionID(t.id).WithExecutionID(env.ExecutionID)
	log.WithError(cause).Warnf("rolling back environment %q", env.Name)

	var collected []error
	for _, svc := range append([]Service{failed}, succeeded...) {
		h, err := hooksFor(svc, env.Action)
		if err != nil {
			continue
		}
		if err := h.onErr(ctx, target); err != nil {
			log.WithServiceID(svc.ID()).WithError(err).
				Warn("error hook failed during rollback")
			collected = append(collected, fmt.Errorf("error hook for service %s: %w", svc.ID(), err))
		}
	}

	return TransactionResult{
		Kind:           ResultRollback,
		ServiceID:      failed.ID(),
		Cause:          cause,
		RollbackErrors: collected,
	}
}

func (t *Transaction) record(ctx context.Context, action EnvironmentAction, result TransactionResult, started time.Time) {
	if t.recorder == nil {
		return
	}

	rec := TransactionRecord{
		TransactionID: t.id,
		ExecutionID:   action.Primary.ExecutionID,
		EnvironmentID: action.Primary.ID,
		Action:        string(action.Primary.Action),
		Result:        string(result.Kind),
		StartedAt:     started,
		FinishedAt:    time.Now(),
	}
	if result.Cause != nil {
		rec.ErrorMessage = SafeMessage(result.Cause)
	}
	if err := t.recorder.RecordTransaction(ctx, rec); err != nil {
		t.logger.WithTransactionID(t.id).WithError(err).
			Warn("failed to persist transaction history")
	}
}
