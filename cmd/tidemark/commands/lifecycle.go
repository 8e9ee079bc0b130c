package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tidemark-io/tidemark/pkg/config"
	"github.com/tidemark-io/tidemark/pkg/engine"
)

// runEnvironmentAction is the shared body of the deploy, pause and delete
// commands. The action from the command line overrides whatever action the
// environment descriptor carries.
func runEnvironmentAction(cmd *cobra.Command, envPath, failoverPath string, action engine.Action) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	primary, err := buildEnvironment(rt, envPath, action)
	if err != nil {
		return err
	}

	envAction := engine.EnvironmentAction{Primary: primary}
	if failoverPath != "" {
		failover, err := buildEnvironment(rt, failoverPath, action)
		if err != nil {
			return err
		}
		envAction.Failover = failover
	}

	tx := engine.NewTransaction(rt.logger, rt.events,
		engine.WithHistoryRecorder(rt.store),
		engine.WithMetrics(rt.metrics))

	ctx, span := rt.tracer.StartTransactionSpan(ctx, tx.ID(), primary.ExecutionID)
	result := tx.Run(ctx, envAction, rt.cluster.DeploymentTarget())
	span.End()

	return reportResult(tx.ID(), primary.ExecutionID, result)
}

func buildEnvironment(rt *runtime, path string, action engine.Action) (*engine.Environment, error) {
	spec, err := config.LoadEnvironment(path)
	if err != nil {
		return nil, err
	}
	spec.Action = string(action)
	return spec.BuildEnvironment(rt.deps)
}

// reportResult prints the transaction outcome and maps failure kinds onto
// a non-zero exit via the returned error. Rollback errors are surfaced but
// never change the outcome they were observed under.
func reportResult(transactionID, executionID string, result engine.TransactionResult) error {
	if jsonOutput {
		out := map[string]interface{}{
			"transaction_id": transactionID,
			"execution_id":   executionID,
			"result":         string(result.Kind),
		}
		if result.ServiceID != "" {
			out["service_id"] = result.ServiceID
		}
		if result.Cause != nil {
			out["error"] = engine.SafeMessage(result.Cause)
		}
		if len(result.RollbackErrors) > 0 {
			msgs := make([]string, 0, len(result.RollbackErrors))
			for _, rbErr := range result.RollbackErrors {
				msgs = append(msgs, engine.SafeMessage(rbErr))
			}
			out["rollback_errors"] = msgs
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	} else {
		fmt.Printf("Transaction %s: %s\n", transactionID, result.Kind)
		if result.Cause != nil {
			fmt.Printf("  cause: %s\n", engine.SafeMessage(result.Cause))
		}
		for _, rbErr := range result.RollbackErrors {
			fmt.Printf("  rollback error: %s\n", engine.SafeMessage(rbErr))
		}
		fmt.Printf("  inspect with: tidemark events --execution %s\n", executionID)
	}

	if !result.OK() {
		return fmt.Errorf("deployment finished with result %q", result.Kind)
	}
	return nil
}
