package commands

import (
	"github.com/spf13/cobra"

	"github.com/tidemark-io/tidemark/pkg/engine"
)

func newPauseCommand() *cobra.Command {
	var envPath string

	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause an environment",
		Long: `Scale an environment down without deleting it.

Applications are scaled to zero instances and routers drop their routes.
Managed databases are left untouched so no data is lost; self-hosted
databases are re-rendered in their paused form. Stateless services are
paused before their backing stores.`,
		Example: `  # Pause an environment
  tidemark pause --environment production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnvironmentAction(cmd, envPath, "", engine.ActionPause)
		},
	}

	cmd.Flags().StringVarP(&envPath, "environment", "e", "", "environment descriptor to pause")
	cmd.MarkFlagRequired("environment")

	return cmd
}
