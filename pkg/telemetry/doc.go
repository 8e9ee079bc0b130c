// Package telemetry provides the observability layer for the Tidemark engine:
// structured logging (zerolog), progress event fan-out, Prometheus metrics and
// OpenTelemetry tracing.
//
// Progress events are the mechanism by which the orchestrator reports
// deployment progress to external listeners. Delivery is fire-and-forget:
// publishing never blocks, and subscriber failures never affect the
// operation that emitted the event.
//
// Typical setup:
//
//	cfg := telemetry.DefaultConfig("tidemark", version)
//	logger, _ := telemetry.NewLogger(cfg.Logging)
//	events, _ := telemetry.NewEventPublisher(cfg.Events)
//	events.Subscribe(func(e telemetry.Event) {
//		logger.Infof("%s: %s", e.Type, e.Message)
//	}, nil)
package telemetry
