package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a progress event emitted during a deployment.
// Events are purely informational: subscribers observe progress but never
// influence orchestration outcome.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// ExecutionID correlates the event with one deployment attempt.
	ExecutionID string `json:"execution_id,omitempty"`

	// TransactionID is the associated transaction, if applicable.
	TransactionID string `json:"transaction_id,omitempty"`

	// ServiceID is the associated service, if applicable.
	ServiceID string `json:"service_id,omitempty"`

	// Message is a human-readable event message. It only ever carries the
	// safe part of an error, never raw diagnostics.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event type constants.
const (
	EventTypeTransactionStarted    = "transaction.started"
	EventTypeTransactionCommitted  = "transaction.committed"
	EventTypeTransactionRolledBack = "transaction.rolled_back"
	EventTypeTransactionFailed     = "transaction.unrecoverable"
	EventTypeDeploymentInProgress  = "deployment.in_progress"
	EventTypeLongTaskStarted       = "deployment.long_task.started"
	EventTypeLongTaskCompleted     = "deployment.long_task.completed"
	EventTypeLongTaskFailed        = "deployment.long_task.failed"
	EventTypeChartInstallStarted   = "chart.install.started"
	EventTypeChartInstallCompleted = "chart.install.completed"
	EventTypeChartInstallFailed    = "chart.install.failed"
	EventTypeDNSCheckResolved      = "dns.check.resolved"
	EventTypeDNSCheckUnconfirmed   = "dns.check.unconfirmed"
)

// Event severity levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher fans progress events out to subscribers. Publishing never
// blocks the caller and a slow or panicking subscriber never affects the
// operation that emitted the event.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers. A full buffer drops the
// event rather than blocking the publisher.
func (ep *EventPublisher) Publish(event Event) {
	if !ep.config.Enabled {
		return
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
		case <-ep.ctx.Done():
		default:
			// Buffer full: progress events are best-effort, drop it.
		}
		return
	}

	ep.deliverEvent(event)
}

// PublishTransactionStarted publishes a transaction started event.
func (ep *EventPublisher) PublishTransactionStarted(transactionID, executionID string) {
	ep.Publish(Event{
		Type:          EventTypeTransactionStarted,
		TransactionID: transactionID,
		ExecutionID:   executionID,
		Message:       fmt.Sprintf("Transaction %s started", transactionID),
		Level:         EventLevelInfo,
	})
}

// PublishTransactionCompleted publishes the terminal event for a transaction.
func (ep *EventPublisher) PublishTransactionCompleted(transactionID, executionID, result string) {
	eventType := EventTypeTransactionCommitted
	level := EventLevelInfo
	switch result {
	case "rollback":
		eventType = EventTypeTransactionRolledBack
		level = EventLevelWarning
	case "unrecoverable":
		eventType = EventTypeTransactionFailed
		level = EventLevelError
	}
	ep.Publish(Event{
		Type:          eventType,
		TransactionID: transactionID,
		ExecutionID:   executionID,
		Message:       fmt.Sprintf("Transaction %s finished with result: %s", transactionID, result),
		Level:         level,
	})
}

// PublishDeploymentInProgress publishes an informational progress message for
// a service.
func (ep *EventPublisher) PublishDeploymentInProgress(executionID, serviceID, message string) {
	ep.Publish(Event{
		Type:        EventTypeDeploymentInProgress,
		ExecutionID: executionID,
		ServiceID:   serviceID,
		Message:     message,
		Level:       EventLevelInfo,
	})
}

// PublishDeploymentWarning publishes a warning-level progress message.
func (ep *EventPublisher) PublishDeploymentWarning(executionID, serviceID, message string) {
	ep.Publish(Event{
		Type:        EventTypeDeploymentInProgress,
		ExecutionID: executionID,
		ServiceID:   serviceID,
		Message:     message,
		Level:       EventLevelWarning,
	})
}

// PublishLongTaskStarted announces that a blocking lifecycle hook is running.
func (ep *EventPublisher) PublishLongTaskStarted(executionID, serviceID, action string) {
	ep.Publish(Event{
		Type:        EventTypeLongTaskStarted,
		ExecutionID: executionID,
		ServiceID:   serviceID,
		Message:     fmt.Sprintf("%s is in progress for service %s, please wait, it can take a while...", action, serviceID),
		Level:       EventLevelInfo,
		Data:        map[string]interface{}{"action": action},
	})
}

// PublishLongTaskFinished announces the terminal outcome of a lifecycle hook.
func (ep *EventPublisher) PublishLongTaskFinished(executionID, serviceID, action string, err error) {
	if err != nil {
		ep.Publish(Event{
			Type:        EventTypeLongTaskFailed,
			ExecutionID: executionID,
			ServiceID:   serviceID,
			Message:     fmt.Sprintf("%s failed for service %s", action, serviceID),
			Level:       EventLevelError,
			Data:        map[string]interface{}{"action": action},
		})
		return
	}
	ep.Publish(Event{
		Type:        EventTypeLongTaskCompleted,
		ExecutionID: executionID,
		ServiceID:   serviceID,
		Message:     fmt.Sprintf("%s succeeded for service %s", action, serviceID),
		Level:       EventLevelInfo,
		Data:        map[string]interface{}{"action": action},
	})
}

// PublishChartInstall publishes chart installation lifecycle events.
func (ep *EventPublisher) PublishChartInstall(executionID, chart, eventType string, level string) {
	ep.Publish(Event{
		Type:        eventType,
		ExecutionID: executionID,
		Message:     fmt.Sprintf("Chart %s: %s", chart, eventType),
		Level:       level,
		Data:        map[string]interface{}{"chart": chart},
	})
}

// PublishDNSResolved publishes a successful DNS readiness confirmation.
func (ep *EventPublisher) PublishDNSResolved(executionID, domain, resolved string) {
	ep.Publish(Event{
		Type:        EventTypeDNSCheckResolved,
		ExecutionID: executionID,
		Message:     fmt.Sprintf("Resolution of %s found: %s", domain, resolved),
		Level:       EventLevelInfo,
		Data:        map[string]interface{}{"domain": domain, "resolved": resolved},
	})
}

// PublishDNSUnconfirmed publishes the best-effort warning when a domain could
// not be confirmed within the retry budget.
func (ep *EventPublisher) PublishDNSUnconfirmed(executionID, domain, message string) {
	ep.Publish(Event{
		Type:        EventTypeDNSCheckUnconfirmed,
		ExecutionID: executionID,
		Message:     message,
		Level:       EventLevelWarning,
		Data:        map[string]interface{}{"domain": domain},
	})
}

// Subscribe adds a new event subscriber. A nil filter receives all events.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents delivers events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			// Drain remaining events before shutting down.
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Run subscribers in their own goroutine so a slow listener
		// cannot stall the deployment that emitted the event.
		go func(sub EventSubscriber) {
			defer func() {
				_ = recover()
			}()
			sub(event)
		}(entry.subscriber)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled || !ep.config.EnableAsync {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of a specific level
// or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByExecutionID creates a filter scoped to one deployment attempt.
func FilterByExecutionID(executionID string) EventFilter {
	return func(event Event) bool {
		return event.ExecutionID == executionID
	}
}
