package charts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tidemark-io/tidemark/pkg/engine"
	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

// Installer walks the levels in order and installs every chart of a level
// before moving to the next. A failure inside a level aborts the remaining
// levels: later levels depend on state the failed one never produced.
type Installer struct {
	helm    engine.Helm
	backups *BackupManager
	events  *telemetry.EventPublisher
	metrics *telemetry.Metrics
	logger  *telemetry.Logger
	workDir string
}

// InstallerOption configures optional installer collaborators.
type InstallerOption func(*Installer)

// WithMetrics attaches chart install metrics.
func WithMetrics(m *telemetry.Metrics) InstallerOption {
	return func(i *Installer) { i.metrics = m }
}

// NewInstaller creates a leveled chart installer.
func NewInstaller(helm engine.Helm, backups *BackupManager, events *telemetry.EventPublisher, logger *telemetry.Logger, workDir string, opts ...InstallerOption) *Installer {
	if workDir == "" {
		workDir = os.TempDir()
	}
	inst := &Installer{
		helm:    helm,
		backups: backups,
		events:  events,
		logger:  logger.NewComponentLogger("charts"),
		workDir: workDir,
	}
	for _, opt := range opts {
		opt(inst)
	}
	return inst
}

// Deploy runs every level to completion, in order.
func (i *Installer) Deploy(ctx context.Context, executionID string, levels []Level) error {
	for _, level := range levels {
		if len(level.Charts) == 0 {
			continue
		}
		i.logger.Infof("installing level %d (%d charts)", level.Number, len(level.Charts))

		for _, chart := range level.Charts {
			if err := i.deployChart(ctx, executionID, chart); err != nil {
				return engine.NewExecutionError(
					fmt.Sprintf("installation of chart %q in level %d failed, remaining levels skipped",
						chart.Name, level.Number), err)
			}
		}
	}
	return nil
}

func (i *Installer) deployChart(ctx context.Context, executionID string, chart ChartInfo) error {
	log := i.logger.WithChart(chart.Name)
	started := time.Now()

	i.events.PublishChartInstall(executionID, chart.Name, telemetry.EventTypeChartInstallStarted, telemetry.EventLevelInfo)

	err := i.runChartAction(ctx, chart, log)

	outcome := "success"
	eventType := telemetry.EventTypeChartInstallCompleted
	level := telemetry.EventLevelInfo
	if err != nil {
		outcome = "failure"
		eventType = telemetry.EventTypeChartInstallFailed
		level = telemetry.EventLevelError
	}
	i.events.PublishChartInstall(executionID, chart.Name, eventType, level)
	if i.metrics != nil {
		i.metrics.ChartInstall(chart.Name, outcome, time.Since(started))
	}
	return err
}

func (i *Installer) runChartAction(ctx context.Context, chart ChartInfo, log *telemetry.Logger) error {
	if chart.Action == ActionDestroy {
		log.Infof("destroying chart %q", chart.Name)
		return i.helm.Uninstall(ctx, chart.Name, chart.Namespace)
	}

	restore, err := i.prepareBreakingUpgrade(ctx, chart, log)
	if err != nil {
		return err
	}

	valuesFiles := chart.ValuesFiles
	if len(chart.Values) > 0 {
		file, err := i.writeValuesFile(chart)
		if err != nil {
			return err
		}
		valuesFiles = append(valuesFiles, file)
	}

	status, err := i.helm.UpgradeInstall(ctx, chart.Name, chart.Path, chart.Namespace, valuesFiles, chart.Timeout)
	if err != nil {
		return err
	}
	if status == engine.DeploymentStatusFailed {
		return engine.NewExecutionError(
			fmt.Sprintf("chart %q did not reach a healthy state", chart.Name), nil)
	}

	if restore {
		return i.backups.Restore(ctx, chart)
	}
	return nil
}

// prepareBreakingUpgrade snapshots the chart's resources when the installed
// release sits below the chart's breaking version boundary. Reports whether
// a restore must run after the upgrade.
func (i *Installer) prepareBreakingUpgrade(ctx context.Context, chart ChartInfo, log *telemetry.Logger) (bool, error) {
	if chart.BreakingVersion == "" || len(chart.BackupResources) == 0 {
		return false, nil
	}

	releases, err := i.helm.ListReleases(ctx, chart.Namespace)
	if err != nil {
		return false, err
	}

	for _, release := range releases {
		if release.Name != chart.Name {
			continue
		}
		installed, ok := chartVersion(release.Chart)
		if !ok {
			continue
		}
		boundary, err := engine.ParseVersionNumber(chart.BreakingVersion)
		if err != nil {
			return false, err
		}
		if versionLess(installed, boundary) {
			log.Warnf("release %q is below breaking version %s, backing up %s before upgrade",
				chart.Name, chart.BreakingVersion, strings.Join(chart.BackupResources, ", "))
			if err := i.backups.Prepare(ctx, chart); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

func (i *Installer) writeValuesFile(chart ChartInfo) (string, error) {
	raw, err := yaml.Marshal(chart.Values)
	if err != nil {
		return "", engine.NewExecutionError(
			fmt.Sprintf("could not encode values for chart %q", chart.Name), err)
	}
	file := filepath.Join(i.workDir, fmt.Sprintf("%s-values.yaml", chart.Name))
	if err := os.WriteFile(file, raw, 0o600); err != nil {
		return "", engine.NewExecutionError(
			fmt.Sprintf("could not write values file for chart %q", chart.Name), err)
	}
	return file, nil
}

// chartVersion extracts the version from a "name-1.2.3" chart reference.
func chartVersion(ref string) (engine.VersionNumber, bool) {
	idx := strings.LastIndex(ref, "-")
	if idx < 0 || idx == len(ref)-1 {
		return engine.VersionNumber{}, false
	}
	v, err := engine.ParseVersionNumber(ref[idx+1:])
	if err != nil {
		return engine.VersionNumber{}, false
	}
	return v, true
}

// versionLess orders two versions. Missing minor or patch counts as zero.
func versionLess(a, b engine.VersionNumber) bool {
	deref := func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	}
	if a.Major != b.Major {
		return a.Major < b.Major
	}
	if deref(a.Minor) != deref(b.Minor) {
		return deref(a.Minor) < deref(b.Minor)
	}
	return deref(a.Patch) < deref(b.Patch)
}
