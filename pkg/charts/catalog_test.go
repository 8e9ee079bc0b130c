package charts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/tidemark-io/tidemark/pkg/engine"
)

func writeArtifacts(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bootstrap.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func validArtifacts(t *testing.T) string {
	t.Helper()
	raw, err := json.Marshal(BootstrapArtifacts{
		ClusterName:             "prod-eu-1",
		Region:                  "eu-west-1",
		ManagedDNSDomain:        "clusters.tidemark.example.com",
		RegistryURL:             "registry.example.com",
		RegistryToken:           "token",
		ACMEEmail:               "ops@example.com",
		StorageClassProvisioner: "ebs.csi.aws.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	return writeArtifacts(t, string(raw))
}

func levelByNumber(t *testing.T, levels []Level, n int) Level {
	t.Helper()
	for _, l := range levels {
		if l.Number == n {
			return l
		}
	}
	t.Fatalf("no level %d", n)
	return Level{}
}

func names(l Level) []string {
	out := make([]string, 0, len(l.Charts))
	for _, c := range l.Charts {
		out = append(out, c.Name)
	}
	return out
}

func TestBaseCatalogWithAllFlagsOff(t *testing.T) {
	catalog, err := NewCatalog(validArtifacts(t), "/lib/aws", FeatureFlags{JanitorDisabled: true})
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	levels := catalog.Levels()

	if len(levels) != 6 {
		t.Fatalf("expected 6 levels, got %d", len(levels))
	}

	expect := map[int][]string{
		1: {"storageclass", "coredns-config"},
		2: {"container-registry-secret", "cert-manager"},
		3: {},
		4: {"metrics-server", "external-dns"},
		5: {"nginx-ingress"},
		6: {"cert-manager-configs", "tidemark-agent", "tidemark-shell-agent", "tidemark-engine", "cluster-autoheal", "kubeconfig-rotate"},
	}
	for n, want := range expect {
		got := names(levelByNumber(t, levels, n))
		if len(got) != len(want) {
			t.Errorf("level %d: expected %v, got %v", n, want, got)
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("level %d: expected %v, got %v", n, want, got)
				break
			}
		}
	}
}

func TestMetricsToggleAddsExactlyItsUnits(t *testing.T) {
	off, err := NewCatalog(validArtifacts(t), "/lib/aws", FeatureFlags{JanitorDisabled: true})
	if err != nil {
		t.Fatal(err)
	}
	on, err := NewCatalog(validArtifacts(t), "/lib/aws", FeatureFlags{JanitorDisabled: true, MetricsHistoryEnabled: true})
	if err != nil {
		t.Fatal(err)
	}

	baseNames := map[string]bool{}
	for _, n := range ChartNames(off.Levels()) {
		baseNames[n] = true
	}

	var added []string
	for _, n := range ChartNames(on.Levels()) {
		if !baseNames[n] {
			added = append(added, n)
		}
	}

	// The metrics stack itself is 3 units; the dashboard rides along since
	// it is gated on metrics-or-logs.
	want := map[string]bool{
		"kube-prometheus-stack": true,
		"prometheus-adapter":    true,
		"kube-state-metrics":    true,
		"grafana":               true,
	}
	if len(added) != len(want) {
		t.Fatalf("unexpected added units %v", added)
	}
	for _, n := range added {
		if !want[n] {
			t.Errorf("unexpected unit %q added by metrics toggle", n)
		}
	}

	// Documented placement: collector in level 2, adapter and state
	// metrics in level 4, dashboard in level 6.
	onLevels := on.Levels()
	if !contains(names(levelByNumber(t, onLevels, 2)), "kube-prometheus-stack") {
		t.Error("kube-prometheus-stack should join level 2")
	}
	l4 := names(levelByNumber(t, onLevels, 4))
	if !contains(l4, "prometheus-adapter") || !contains(l4, "kube-state-metrics") {
		t.Errorf("metrics adapter and state metrics should join level 4, got %v", l4)
	}
	if !contains(names(levelByNumber(t, onLevels, 6)), "grafana") {
		t.Error("grafana should join level 6")
	}
}

func TestConditionalUnitsDoNotShiftLevels(t *testing.T) {
	off, err := NewCatalog(validArtifacts(t), "/lib/aws", FeatureFlags{})
	if err != nil {
		t.Fatal(err)
	}
	on, err := NewCatalog(validArtifacts(t), "/lib/aws", FeatureFlags{LogHistoryEnabled: true, MetricsHistoryEnabled: true})
	if err != nil {
		t.Fatal(err)
	}

	offLevels, onLevels := off.Levels(), on.Levels()
	for i := range offLevels {
		if offLevels[i].Number != onLevels[i].Number {
			t.Fatalf("level numbering shifted: %d vs %d", offLevels[i].Number, onLevels[i].Number)
		}
		// Every base unit keeps its level when flags toggle.
		onNames := map[string]bool{}
		for _, n := range names(onLevels[i]) {
			onNames[n] = true
		}
		for _, n := range names(offLevels[i]) {
			if n == "janitor" {
				continue
			}
			if !onNames[n] {
				t.Errorf("unit %q left level %d when flags toggled", n, offLevels[i].Number)
			}
		}
	}
}

func TestCertIssuerConfigIsStrictlyAfterCertController(t *testing.T) {
	catalog, err := NewCatalog(validArtifacts(t), "/lib/aws", FeatureFlags{})
	if err != nil {
		t.Fatal(err)
	}

	controllerLevel, configLevel := 0, 0
	for _, level := range catalog.Levels() {
		for _, chart := range level.Charts {
			switch chart.Name {
			case "cert-manager":
				controllerLevel = level.Number
			case "cert-manager-configs":
				configLevel = level.Number
			}
		}
	}
	if controllerLevel == 0 || configLevel == 0 {
		t.Fatal("certificate charts missing from catalog")
	}
	if configLevel <= controllerLevel {
		t.Errorf("issuer configuration (level %d) must come strictly after the controller (level %d)",
			configLevel, controllerLevel)
	}
}

func TestUnparseableArtifactsYieldNoLevels(t *testing.T) {
	_, err := NewCatalog(writeArtifacts(t, "{not json"), "/lib/aws", FeatureFlags{})
	if err == nil {
		t.Fatal("expected an error for unparseable artifacts")
	}
	if !engine.IsUnrecoverable(err) {
		t.Errorf("parse failure should be unrecoverable, got %v", err)
	}
}

func TestIncompleteArtifactsAreRejected(t *testing.T) {
	_, err := NewCatalog(writeArtifacts(t, `{"cluster_name":"x"}`), "/lib/aws", FeatureFlags{})
	if err == nil {
		t.Fatal("expected an error for incomplete artifacts")
	}
	if !engine.IsUnrecoverable(err) {
		t.Errorf("validation failure should be unrecoverable, got %v", err)
	}
}

func TestChartNamesAreUniqueWithinARun(t *testing.T) {
	catalog, err := NewCatalog(validArtifacts(t), "/lib/aws",
		FeatureFlags{LogHistoryEnabled: true, MetricsHistoryEnabled: true})
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	for _, name := range ChartNames(catalog.Levels()) {
		if seen[name] {
			t.Errorf("duplicate chart name %q", name)
		}
		seen[name] = true
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
