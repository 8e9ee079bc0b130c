// Package charts builds and installs the leveled catalog of cluster
// infrastructure components. Levels are dependency waves: every chart of a
// level may install in any order, but only after all lower levels succeeded.
package charts

import (
	"time"
)

// ChartAction selects what the installer does with a chart.
type ChartAction string

const (
	ActionInstall ChartAction = "install"
	ActionDestroy ChartAction = "destroy"
)

// ChartInfo describes one installable unit.
type ChartInfo struct {
	// Name is the release name. Unique within one installation run.
	Name string `json:"name"`

	// Path is the chart directory relative to the provider's lib dir.
	Path string `json:"path"`

	// Namespace is the target namespace.
	Namespace string `json:"namespace"`

	// ValuesFiles are applied in order on top of the chart defaults.
	ValuesFiles []string `json:"values_files,omitempty"`

	// Values is an optional inline values payload rendered to a temporary
	// values file before install.
	Values map[string]interface{} `json:"values,omitempty"`

	// BreakingVersion marks a version boundary that loses resource state
	// when crossed. Crossing it triggers the backup/restore flow around the
	// upgrade.
	BreakingVersion string `json:"breaking_version,omitempty"`

	// BackupResources names the resource kinds snapshotted when a breaking
	// upgrade runs.
	BackupResources []string `json:"backup_resources,omitempty"`

	// Timeout bounds the install of this chart.
	Timeout time.Duration `json:"timeout"`

	// Action is install or destroy.
	Action ChartAction `json:"action"`
}

// Level is one installation wave.
type Level struct {
	// Number is the level's fixed position, starting at 1. Conditional
	// charts joining or leaving a level never renumber the others.
	Number int `json:"number"`

	// Charts are the level's members.
	Charts []ChartInfo `json:"charts"`
}

// FeatureFlags gate the conditional members of the catalog.
type FeatureFlags struct {
	// LogHistoryEnabled installs the log shipping and aggregation stack.
	LogHistoryEnabled bool `json:"log_history_enabled"`

	// MetricsHistoryEnabled installs the metrics collection stack.
	MetricsHistoryEnabled bool `json:"metrics_history_enabled"`

	// JanitorDisabled skips the resource-lifecycle janitor.
	JanitorDisabled bool `json:"janitor_disabled"`
}

// ChartNames flattens the catalog into release names, in level order.
func ChartNames(levels []Level) []string {
	var names []string
	for _, level := range levels {
		for _, chart := range level.Charts {
			names = append(names, chart.Name)
		}
	}
	return names
}
