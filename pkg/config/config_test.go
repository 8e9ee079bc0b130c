package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tidemark-io/tidemark/pkg/engine"
	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const clusterYAML = `
id: cluster-1
name: prod-eu-1
kubeconfig: /etc/tidemark/kubeconfig
target: self_hosted
provider:
  short_name: aws
  lib_dir: /lib/aws
  extra:
    vpc_id: vpc-123
bootstrap_artifacts: /etc/tidemark/bootstrap.json
features:
  metrics_history_enabled: true
`

func TestLoadCluster(t *testing.T) {
	cluster, err := LoadCluster(writeFile(t, "cluster.yaml", clusterYAML))
	if err != nil {
		t.Fatalf("LoadCluster failed: %v", err)
	}

	target := cluster.DeploymentTarget()
	if target.ClusterID != "cluster-1" || target.Kind != engine.TargetSelfHosted {
		t.Errorf("unexpected target %+v", target)
	}
	if target.Provider.ShortName != "aws" || target.Provider.Extra["vpc_id"] != "vpc-123" {
		t.Errorf("provider settings not propagated: %+v", target.Provider)
	}

	flags := cluster.FeatureFlags()
	if !flags.MetricsHistoryEnabled || flags.LogHistoryEnabled {
		t.Errorf("unexpected feature flags %+v", flags)
	}
}

func TestLoadClusterRejectsIncompleteDescriptor(t *testing.T) {
	_, err := LoadCluster(writeFile(t, "cluster.yaml", "id: only-an-id\n"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if !engine.IsValidation(err) {
		t.Errorf("incomplete descriptor should fail validation, got %v", err)
	}
}

func TestLoadClusterRejectsBadTarget(t *testing.T) {
	bad := `
id: cluster-1
name: x
kubeconfig: /k
target: hybrid
provider:
  short_name: aws
  lib_dir: /lib/aws
bootstrap_artifacts: /b.json
`
	_, err := LoadCluster(writeFile(t, "cluster.yaml", bad))
	if err == nil {
		t.Fatal("expected an error for unknown target kind")
	}
}

const environmentYAML = `
id: env-1
name: staging
kind: development
namespace: tm-staging
action: create
services:
  - id: db-1
    name: main-db
    type: database
    engine: postgresql
    version: "14"
    disk_size_gib: 20
    private_port: 5432
    sizing:
      cpu_request_milli: 250
      cpu_burst_milli: 500
      memory_mib: 1024
      min_instances: 1
      max_instances: 1
  - id: app-1
    name: web
    type: application
    image: registry.example.com/web
    tag: v1.4.2
    private_port: 8080
    environment_variables:
      DATABASE_URL: postgres://main-db:5432/app
    sizing:
      cpu_request_milli: 100
      cpu_burst_milli: 200
      memory_mib: 256
      min_instances: 2
      max_instances: 4
  - id: rt-1
    name: edge
    type: router
    default_domain: staging.apps.tidemark.example.com
    custom_domains:
      - domain: www.example.com
        target_domain: staging.apps.tidemark.example.com
`

func TestBuildEnvironment(t *testing.T) {
	spec, err := LoadEnvironment(writeFile(t, "env.yaml", environmentYAML))
	if err != nil {
		t.Fatalf("LoadEnvironment failed: %v", err)
	}

	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error"})
	if err != nil {
		t.Fatal(err)
	}
	env, err := spec.BuildEnvironment(ServiceDeps{Logger: logger})
	if err != nil {
		t.Fatalf("BuildEnvironment failed: %v", err)
	}

	if env.ExecutionID == "" {
		t.Error("a fresh execution id must be assigned")
	}
	if len(env.Services) != 3 {
		t.Fatalf("expected 3 services, got %d", len(env.Services))
	}

	kinds := map[engine.ServiceType]int{}
	for _, svc := range env.Services {
		kinds[svc.Type()]++
		if svc.Action() != engine.ActionCreate {
			t.Errorf("service %s: action not propagated", svc.ID())
		}
	}
	if kinds[engine.ServiceTypeApplication] != 1 || kinds[engine.ServiceTypeDatabase] != 1 || kinds[engine.ServiceTypeRouter] != 1 {
		t.Errorf("unexpected service kinds %v", kinds)
	}
}

func TestBuildEnvironmentAssignsFreshExecutionIDs(t *testing.T) {
	spec, err := LoadEnvironment(writeFile(t, "env.yaml", environmentYAML))
	if err != nil {
		t.Fatal(err)
	}
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error"})
	if err != nil {
		t.Fatal(err)
	}

	env1, err := spec.BuildEnvironment(ServiceDeps{Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	env2, err := spec.BuildEnvironment(ServiceDeps{Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	if env1.ExecutionID == env2.ExecutionID {
		t.Error("each deployment attempt must get its own execution id")
	}
}

func TestLoadEnvironmentRejectsEmptyServiceList(t *testing.T) {
	_, err := LoadEnvironment(writeFile(t, "env.yaml", `
id: env-1
name: staging
kind: development
namespace: tm-staging
action: create
services: []
`))
	if err == nil {
		t.Fatal("expected an error for an empty service list")
	}
}

func TestLoadEnvironmentRejectsUnknownAction(t *testing.T) {
	_, err := LoadEnvironment(writeFile(t, "env.yaml", `
id: env-1
name: staging
kind: development
namespace: tm-staging
action: reboot
services:
  - id: app-1
    name: web
    type: application
`))
	if err == nil {
		t.Fatal("expected an error for an unknown action")
	}
}
