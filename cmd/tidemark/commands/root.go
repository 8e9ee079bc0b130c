package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	clusterPath   string
	historyPath   string
	verbose       bool
	jsonOutput    bool
	metricsAddr   string
	traceEndpoint string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tidemark",
		Short: "Tidemark - Cloud Workload Deployment Engine",
		Long: `Tidemark deploys environments of applications, databases and routers
onto Kubernetes clusters and keeps the run transactional: when a service
fails to come up, everything that already succeeded is rolled back.

Features:
  - Transactional deployments with automatic rollback
  - Optional failover environment on primary failure
  - Leveled bootstrap chart installation
  - Managed and self-hosted database targets
  - DNS readiness probing for custom domains
  - Deployment history in a local SQLite store`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&clusterPath, "cluster", "c", "cluster.yaml", "cluster descriptor path")
	rootCmd.PersistentFlags().StringVar(&historyPath, "history-db", "tidemark-history.db", "deployment history database path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (disabled when empty)")
	rootCmd.PersistentFlags().StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP collector endpoint for trace export (disabled when empty)")

	// Add subcommands
	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newPauseCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newBootstrapCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newEventsCommand())

	return rootCmd
}
