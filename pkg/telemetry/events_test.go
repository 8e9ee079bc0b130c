package telemetry

import (
	"sync"
	"testing"
	"time"
)

func newSyncPublisher(t *testing.T) *EventPublisher {
	t.Helper()
	ep, err := NewEventPublisher(EventsConfig{
		Enabled:     true,
		EnableAsync: false,
	})
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}
	return ep
}

func TestPublishDeliversToSubscribers(t *testing.T) {
	ep := newSyncPublisher(t)

	var mu sync.Mutex
	received := make([]Event, 0)
	done := make(chan struct{}, 1)

	ep.Subscribe(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		done <- struct{}{}
	}, nil)

	ep.PublishDeploymentInProgress("exec-1", "svc-1", "deploying")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	e := received[0]
	if e.Type != EventTypeDeploymentInProgress {
		t.Errorf("unexpected event type %q", e.Type)
	}
	if e.ExecutionID != "exec-1" || e.ServiceID != "svc-1" {
		t.Errorf("event ids not propagated: %+v", e)
	}
	if e.ID == "" || e.Timestamp.IsZero() {
		t.Error("event id and timestamp should be auto-populated")
	}
}

func TestSubscriberFilterApplies(t *testing.T) {
	ep := newSyncPublisher(t)

	warnings := make(chan Event, 4)
	ep.Subscribe(func(e Event) {
		warnings <- e
	}, FilterByLevel(EventLevelWarning))

	ep.PublishDeploymentInProgress("exec-1", "svc-1", "still going")
	ep.PublishDeploymentWarning("exec-1", "svc-1", "slow convergence")

	select {
	case e := <-warnings:
		if e.Level != EventLevelWarning {
			t.Errorf("filter let through level %q", e.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warning event was not delivered")
	}

	select {
	case e := <-warnings:
		t.Errorf("unexpected extra event delivered: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPanickingSubscriberDoesNotAffectPublisher(t *testing.T) {
	ep := newSyncPublisher(t)

	ok := make(chan struct{}, 1)
	ep.Subscribe(func(e Event) {
		panic("listener bug")
	}, nil)
	ep.Subscribe(func(e Event) {
		ok <- struct{}{}
	}, nil)

	// Must not panic the publisher, and the healthy subscriber still runs.
	ep.PublishDeploymentInProgress("exec-1", "svc-1", "progress")

	select {
	case <-ok:
	case <-time.After(2 * time.Second):
		t.Fatal("healthy subscriber was not invoked")
	}
}

func TestDisabledPublisherIsNoOp(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}

	called := false
	ep.Subscribe(func(e Event) { called = true }, nil)
	ep.PublishTransactionStarted("tx-1", "exec-1")

	time.Sleep(50 * time.Millisecond)
	if called {
		t.Error("disabled publisher should not deliver events")
	}
}

func TestFilterByExecutionID(t *testing.T) {
	f := FilterByExecutionID("exec-42")
	if !f(Event{ExecutionID: "exec-42"}) {
		t.Error("matching execution id rejected")
	}
	if f(Event{ExecutionID: "exec-1"}) {
		t.Error("non-matching execution id accepted")
	}
}
