package commands

import (
	"github.com/spf13/cobra"

	"github.com/tidemark-io/tidemark/pkg/engine"
)

func newDeleteCommand() *cobra.Command {
	var envPath string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an environment",
		Long: `Remove an environment's services from the cluster.

Stateless services are removed before their backing stores so nothing
keeps serving traffic against a database that is already gone. Managed
databases are marked deleted through their provider template rather
than uninstalled directly.`,
		Example: `  # Delete an environment
  tidemark delete --environment production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnvironmentAction(cmd, envPath, "", engine.ActionDelete)
		},
	}

	cmd.Flags().StringVarP(&envPath, "environment", "e", "", "environment descriptor to delete")
	cmd.MarkFlagRequired("environment")

	return cmd
}
