package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

// DatabaseParams configures a database service.
type DatabaseParams struct {
	ID        string       `validate:"required"`
	Name      string       `validate:"required"`
	Namespace string       `validate:"required"`
	Action    Action       `validate:"required"`
	Engine    DatabaseType `validate:"required,oneof=postgresql mysql mongodb redis"`

	// Version is the requested engine version. Resolved against the
	// target's supported range before any mutation.
	Version string `validate:"required"`

	PrivatePort int
	Sizing      Sizing

	// DiskSizeGiB is the persistent volume size for self-hosted databases.
	DiskSizeGiB int `validate:"gte=0"`

	StartTimeoutBase time.Duration
}

// Database is a stateful database service, deployed either as a self-hosted
// chart inside the cluster or as an externally managed instance depending on
// the deployment target kind.
type Database struct {
	serviceCore

	engine      DatabaseType
	version     string
	diskSizeGiB int
	resolver    VersionResolver
}

// NewDatabase builds a database service. resolver maps the requested engine
// version to the exact version the target supports; passing nil selects the
// built-in support table.
func NewDatabase(p DatabaseParams, resolver VersionResolver, renderer Renderer, helm Helm, kubectl Kubectl, logger *telemetry.Logger) (*Database, error) {
	if err := validate.Struct(p); err != nil {
		return nil, NewValidationError("invalid database parameters", err)
	}
	if resolver == nil {
		resolver = DefaultVersionResolver{}
	}
	return &Database{
		serviceCore: serviceCore{
			id:               p.ID,
			name:             p.Name,
			namespace:        p.Namespace,
			action:           p.Action,
			sizing:           p.Sizing,
			privatePort:      p.PrivatePort,
			startTimeoutBase: p.StartTimeoutBase,
			renderer:         renderer,
			helm:             helm,
			kubectl:          kubectl,
			logger:           logger.WithServiceID(p.ID),
		},
		engine:      p.Engine,
		version:     p.Version,
		diskSizeGiB: p.DiskSizeGiB,
		resolver:    resolver,
	}, nil
}

// Type implements Service.
func (d *Database) Type() ServiceType { return ServiceTypeDatabase }

// Engine returns the database engine family.
func (d *Database) Engine() DatabaseType { return d.engine }

// RenderContext implements Service.
func (d *Database) RenderContext(target *DeploymentTarget) (RenderContext, error) {
	if target == nil {
		return nil, NewValidationError("database has no deployment target", nil).WithService(d.id)
	}
	managed := target.Kind == TargetManagedServices
	version, err := d.resolver.Resolve(d.engine, d.version, managed)
	if err != nil {
		return nil, err
	}

	rc := RenderContext{
		"id":             d.id,
		"sanitized_name": SanitizeName(d.name),
		"managed_name":   ManagedDBName(d.id),
		"name":           d.name,
		"namespace":      d.namespace,
		"engine":         string(d.engine),
		"version":        version,
		"managed":        managed,
		"cpu_request_m":  d.sizing.CPURequestMilli,
		"cpu_burst_m":    d.sizing.CPUBurstMilli,
		"memory_mib":     d.sizing.MemoryMiB,
		"disk_size_gib":  d.diskSizeGiB,
		"cluster_id":     target.ClusterID,
		"provider":       target.Provider.ShortName,
	}
	if d.privatePort > 0 {
		rc["private_port"] = d.privatePort
	}
	return rc, nil
}

func (d *Database) templateDir(target *DeploymentTarget) string {
	mode := "self-hosted"
	if target.Kind == TargetManagedServices {
		mode = "managed"
	}
	return filepath.Join(target.Provider.LibDir, "databases", string(d.engine), mode)
}

// OnCreate implements Service. Self-hosted databases install as a chart
// release; managed databases render provider resource manifests which are
// applied through the control plane.
func (d *Database) OnCreate(ctx context.Context, target *DeploymentTarget) error {
	d.logger.Infof("deploying %s database %q", d.engine, d.name)

	rc, err := d.RenderContext(target)
	if err != nil {
		return err
	}
	dir, err := d.renderer.Render(ctx, d.templateDir(target), rc)
	if err != nil {
		return NewExecutionError(
			fmt.Sprintf("failed to prepare deployment files for database %q", d.name), err).
			WithService(d.id)
	}

	if target.Kind == TargetManagedServices {
		if err := d.kubectl.Apply(ctx, dir, d.namespace); err != nil {
			return err
		}
		return nil
	}

	status, err := d.helm.UpgradeInstall(ctx, d.releaseName(string(d.engine)), dir, d.namespace, nil, d.StartTimeout())
	if err != nil {
		return err
	}
	if status == DeploymentStatusFailed {
		return NewExecutionError(
			fmt.Sprintf("database %q did not reach a healthy state", d.name), nil).
			WithService(d.id)
	}
	return nil
}

// OnCreateCheck implements Service. Resolving the requested version here
// means an unsupported version is rejected before anything mutates.
func (d *Database) OnCreateCheck() error {
	if err := d.checkCore(); err != nil {
		return err
	}
	if _, err := d.resolver.Resolve(d.engine, d.version, false); err != nil {
		return err
	}
	return nil
}

// OnCreateError implements Service.
func (d *Database) OnCreateError(ctx context.Context, target *DeploymentTarget) error {
	if target.Kind == TargetManagedServices {
		// Managed instances are left for the provider to reconcile; tearing
		// one down on a transient failure risks data loss.
		return nil
	}
	d.logger.Warnf("cleaning up failed deployment of database %q", d.name)
	return d.helm.Uninstall(ctx, d.releaseName(string(d.engine)), d.namespace)
}

// OnPause implements Service. Managed databases cannot be paused in place,
// so pause is a no-op for them; self-hosted databases keep their volume and
// release while scaling down.
func (d *Database) OnPause(ctx context.Context, target *DeploymentTarget) error {
	if target.Kind == TargetManagedServices {
		d.logger.Infof("managed database %q left running, pause applies to cluster workloads only", d.name)
		return nil
	}

	d.logger.Infof("pausing database %q", d.name)
	rc, err := d.RenderContext(target)
	if err != nil {
		return err
	}
	rc["paused"] = true

	dir, err := d.renderer.Render(ctx, d.templateDir(target), rc)
	if err != nil {
		return NewExecutionError(
			fmt.Sprintf("failed to prepare pause files for database %q", d.name), err).
			WithService(d.id)
	}
	_, err = d.helm.UpgradeInstall(ctx, d.releaseName(string(d.engine)), dir, d.namespace, nil, d.StartTimeout())
	return err
}

// OnPauseCheck implements Service.
func (d *Database) OnPauseCheck() error { return d.checkCore() }

// OnPauseError implements Service.
func (d *Database) OnPauseError(ctx context.Context, target *DeploymentTarget) error {
	return nil
}

// OnDelete implements Service.
func (d *Database) OnDelete(ctx context.Context, target *DeploymentTarget) error {
	d.logger.Infof("deleting database %q", d.name)

	if target.Kind == TargetManagedServices {
		rc, err := d.RenderContext(target)
		if err != nil {
			return err
		}
		rc["deleted"] = true
		dir, err := d.renderer.Render(ctx, d.templateDir(target), rc)
		if err != nil {
			return NewExecutionError(
				fmt.Sprintf("failed to prepare deletion files for database %q", d.name), err).
				WithService(d.id)
		}
		return d.kubectl.Apply(ctx, dir, d.namespace)
	}

	return d.helm.Uninstall(ctx, d.releaseName(string(d.engine)), d.namespace)
}

// OnDeleteCheck implements Service.
func (d *Database) OnDeleteCheck() error { return d.checkCore() }

// OnDeleteError implements Service.
func (d *Database) OnDeleteError(ctx context.Context, target *DeploymentTarget) error {
	return nil
}

// OnBackup implements Backuper for self-hosted databases by snapshotting the
// release's statefulset into a cluster secret before a risky change. An
// existing snapshot for the same release is replaced, never duplicated.
func (d *Database) OnBackup(ctx context.Context, target *DeploymentTarget) error {
	if target.Kind == TargetManagedServices {
		return fmt.Errorf("backup of managed database %s: %w", d.id, ErrNotSupported)
	}

	release := d.releaseName(string(d.engine))
	yaml, err := d.kubectl.GetResourceYAML(ctx, "statefulset", release, d.namespace)
	if err != nil {
		return err
	}
	if yaml == "" {
		return NewExecutionError(
			fmt.Sprintf("no resources found to back up for database %q", d.name), nil).
			WithService(d.id)
	}

	secret := release + "-statefulset-q-backup"
	if err := d.kubectl.DeleteSecret(ctx, secret, d.namespace); err != nil {
		return err
	}

	file := filepath.Join(os.TempDir(), secret+".yaml")
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		return NewExecutionError(
			fmt.Sprintf("could not stage backup of database %q", d.name), err).
			WithService(d.id)
	}
	if err := d.kubectl.CreateSecretFromFile(ctx, secret, d.namespace, "statefulset", file); err != nil {
		return err
	}
	d.logger.Infof("backed up database %q into secret %q", d.name, secret)
	return nil
}
