package commands

import (
	"github.com/spf13/cobra"

	"github.com/tidemark-io/tidemark/pkg/engine"
)

func newDeployCommand() *cobra.Command {
	var (
		envPath      string
		failoverPath string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy an environment",
		Long: `Deploy an environment onto the cluster.

This command:
  - Loads the cluster and environment descriptors
  - Validates every service before any of them is mutated
  - Creates stateful services first, then stateless ones
  - Rolls everything back when any service fails
  - Switches to the failover environment when one is given and the
    primary deployment fails`,
		Example: `  # Deploy an environment
  tidemark deploy --environment production.yaml

  # Deploy with a failover environment
  tidemark deploy --environment production.yaml --failover standby.yaml

  # Deploy against a specific cluster descriptor
  tidemark deploy -c eu-west.yaml --environment production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnvironmentAction(cmd, envPath, failoverPath, engine.ActionCreate)
		},
	}

	cmd.Flags().StringVarP(&envPath, "environment", "e", "", "environment descriptor to deploy")
	cmd.Flags().StringVar(&failoverPath, "failover", "", "failover environment descriptor")
	cmd.MarkFlagRequired("environment")

	return cmd
}
