package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidemark-io/tidemark/pkg/charts"
	"github.com/tidemark-io/tidemark/pkg/engine"
)

func newBootstrapCommand() *cobra.Command {
	var destroy bool

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Install the cluster bootstrap charts",
		Long: `Install the platform charts a fresh cluster needs before it can
host environments: storage, certificates, ingress, observability and the
platform agents.

Charts are grouped into numbered levels and installed level by level in
order. When a chart fails, the remaining levels are skipped. Charts with
a breaking version boundary get their configured resources backed up to
secrets before the upgrade and restored afterwards.

The catalog is derived from the cluster's bootstrap artifacts file and
its feature flags.`,
		Example: `  # Bootstrap the cluster named in cluster.yaml
  tidemark bootstrap

  # Tear the bootstrap charts down again
  tidemark bootstrap --destroy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			catalog, err := charts.NewCatalog(
				rt.cluster.BootstrapArtifacts,
				rt.cluster.Provider.LibDir,
				rt.cluster.FeatureFlags(),
			)
			if err != nil {
				return err
			}

			levels := catalog.Levels()
			if destroy {
				for i := range levels {
					for j := range levels[i].Charts {
						levels[i].Charts[j].Action = charts.ActionDestroy
					}
				}
			}

			installerOpts := []charts.InstallerOption{}
			if rt.metrics != nil {
				installerOpts = append(installerOpts, charts.WithMetrics(rt.metrics))
			}
			backups := charts.NewBackupManager(rt.deps.Kubectl, "", rt.logger)
			installer := charts.NewInstaller(rt.deps.Helm, backups, rt.events, rt.logger, "", installerOpts...)

			executionID := engine.NewExecutionID()
			ctx, span := rt.tracer.StartSpan(ctx, "bootstrap")
			err = installer.Deploy(ctx, executionID, levels)
			span.End()
			if err != nil {
				return err
			}

			fmt.Printf("Bootstrap finished for cluster %q (execution %s)\n", rt.cluster.Name, executionID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&destroy, "destroy", false, "uninstall the bootstrap charts instead of installing them")

	return cmd
}
