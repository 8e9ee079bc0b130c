package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/tidemark-io/tidemark/pkg/config"
	"github.com/tidemark-io/tidemark/pkg/dnscheck"
	"github.com/tidemark-io/tidemark/pkg/engine"
	"github.com/tidemark-io/tidemark/pkg/kube"
	"github.com/tidemark-io/tidemark/pkg/render"
	"github.com/tidemark-io/tidemark/pkg/stores"
	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

// runtime bundles the collaborators every command needs: the loaded
// cluster descriptor, telemetry, the kubectl/helm runners and the
// history store. Build it once per invocation and Close it when done.
type runtime struct {
	cluster *config.Cluster
	logger  *telemetry.Logger
	events  *telemetry.EventPublisher
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	store   *stores.HistoryStore
	deps    config.ServiceDeps
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cluster, err := config.LoadCluster(clusterPath)
	if err != nil {
		return nil, err
	}

	cfg := telemetry.DefaultConfig("tidemark", "")
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if jsonOutput {
		cfg.Logging.Format = "json"
	}
	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddr = metricsAddr
	}
	if traceEndpoint != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = "otlp"
		cfg.Tracing.Endpoint = traceEndpoint
		cfg.Tracing.Insecure = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger = logger.WithCluster(cluster.ID, cluster.Name)

	events, err := telemetry.NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}

	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics, err = telemetry.NewMetrics(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
		go func() {
			if err := metrics.Serve(); err != nil {
				logger.WithError(err).Warn("metrics endpoint stopped")
			}
		}()
	}

	tracer, err := telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	store, err := openHistory(ctx)
	if err != nil {
		return nil, err
	}
	events.Subscribe(store.Subscriber(), nil)

	checkerOpts := []dnscheck.Option{}
	if metrics != nil {
		checkerOpts = append(checkerOpts, dnscheck.WithMetrics(metrics))
	}

	runner := kube.NewRunner(logger)
	rt := &runtime{
		cluster: cluster,
		logger:  logger,
		events:  events,
		metrics: metrics,
		tracer:  tracer,
		store:   store,
		deps: config.ServiceDeps{
			Renderer: render.NewDirRenderer("", logger),
			Helm:     kube.NewHelm(runner, cluster.Kubeconfig, logger),
			Kubectl:  kube.NewKubectl(runner, cluster.Kubeconfig, logger),
			Resolver: engine.DefaultVersionResolver{},
			Checker:  dnscheck.NewChecker(events, logger, checkerOpts...),
			Logger:   logger,
		},
	}
	return rt, nil
}

// Close flushes pending events and releases the history store. Call it
// after the command's work, not via defer on error paths that never
// opened the runtime.
func (rt *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = rt.events.Shutdown(ctx)
	_ = rt.tracer.Shutdown(ctx)
	if rt.metrics != nil {
		_ = rt.metrics.Close()
	}
	_ = rt.store.Close()
}
