package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidemark-io/tidemark/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		environmentID string
		limit         int
	)

	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"status"},
		Short:   "List past deployment transactions",
		Long: `List the terminal outcomes of past deployment transactions from the
local history database, newest first.`,
		Example: `  # Last deployments across all environments
  tidemark history

  # Deployments of one environment
  tidemark history --environment env-prod --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListTransactions(ctx, environmentID, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			if len(records) == 0 {
				fmt.Println("No transactions recorded.")
				return nil
			}
			for _, r := range records {
				line := fmt.Sprintf("%s  %-13s %-8s %-6s %s",
					r.StartedAt.Format(time.RFC3339), r.Result, r.Action, r.EnvironmentID, r.TransactionID)
				if r.ErrorMessage != "" {
					line += "  (" + r.ErrorMessage + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&environmentID, "environment", "e", "", "only list transactions of this environment")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of transactions to list")

	return cmd
}

func newEventsCommand() *cobra.Command {
	var executionID string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the events of one deployment attempt",
		Long: `Show the recorded progress events of a single deployment attempt in
the order they happened. The execution id is printed by the deploy,
pause and delete commands and stored with every transaction.`,
		Example: `  # Events of one deployment attempt
  tidemark events --execution 2f9c1c1e-7a27-4a6e-9d7e-7f18f3f2a911`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			events, err := store.ListEvents(ctx, executionID)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}

			if len(events) == 0 {
				fmt.Println("No events recorded for this execution.")
				return nil
			}
			for _, e := range events {
				line := fmt.Sprintf("%s  %-5s %-28s %s",
					e.Timestamp.Format(time.RFC3339), e.Level, e.Type, e.Message)
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&executionID, "execution", "", "execution id to show events for")
	cmd.MarkFlagRequired("execution")

	return cmd
}

// openHistory opens the history database without the full runtime: the
// read-only commands have no need for kubectl, helm or telemetry.
func openHistory(ctx context.Context) (*stores.HistoryStore, error) {
	store, err := stores.NewHistoryStore(stores.Config{Path: historyPath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
