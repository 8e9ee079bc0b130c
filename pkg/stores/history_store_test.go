package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tidemark-io/tidemark/pkg/engine"
	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

func testStore(t *testing.T) *HistoryStore {
	t.Helper()

	store, err := NewHistoryStore(Config{Path: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("NewHistoryStore failed: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecord(txID, envID, result string, started time.Time) engine.TransactionRecord {
	return engine.TransactionRecord{
		TransactionID: txID,
		ExecutionID:   "exec-" + txID,
		EnvironmentID: envID,
		Action:        "create",
		Result:        result,
		StartedAt:     started,
		FinishedAt:    started.Add(2 * time.Minute),
	}
}

func TestConnectionSettingsApplyWithDefaults(t *testing.T) {
	store, err := NewHistoryStore(Config{Path: "history.db"})
	if err != nil {
		t.Fatalf("NewHistoryStore failed: %v", err)
	}
	if store.config.MaxOpenConns != 25 || store.config.MaxIdleConns != 5 || store.config.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("zero connection settings should take defaults, got %+v", store.config)
	}

	custom, err := NewHistoryStore(Config{
		Path:            "history.db",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewHistoryStore failed: %v", err)
	}
	if custom.config.MaxOpenConns != 2 || custom.config.MaxIdleConns != 1 || custom.config.ConnMaxLifetime != time.Hour {
		t.Errorf("explicit connection settings must be kept, got %+v", custom.config)
	}
}

func TestRecordAndGetTransaction(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	record := sampleRecord("tx-1", "env-1", "ok", time.Now().UTC().Truncate(time.Second))
	if err := store.RecordTransaction(ctx, record); err != nil {
		t.Fatalf("RecordTransaction failed: %v", err)
	}

	got, err := store.GetTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if got.Result != "ok" || got.EnvironmentID != "env-1" || got.ExecutionID != "exec-tx-1" {
		t.Errorf("unexpected record %+v", got)
	}
}

func TestGetMissingTransaction(t *testing.T) {
	store := testStore(t)
	if _, err := store.GetTransaction(context.Background(), "nope"); err == nil {
		t.Error("expected an error for a missing transaction")
	}
}

func TestListTransactionsFiltersAndOrders(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	records := []engine.TransactionRecord{
		sampleRecord("tx-1", "env-1", "ok", base.Add(-3*time.Hour)),
		sampleRecord("tx-2", "env-1", "rollback", base.Add(-2*time.Hour)),
		sampleRecord("tx-3", "env-2", "ok", base.Add(-1*time.Hour)),
	}
	for _, r := range records {
		if err := store.RecordTransaction(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.ListTransactions(ctx, "env-1", 10)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records for env-1, got %d", len(got))
	}
	if got[0].TransactionID != "tx-2" || got[1].TransactionID != "tx-1" {
		t.Errorf("records not newest-first: %s, %s", got[0].TransactionID, got[1].TransactionID)
	}

	all, err := store.ListTransactions(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 records across environments, got %d", len(all))
	}
}

func TestRecordAndListEvents(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	events := []telemetry.Event{
		{
			ID:          "ev-1",
			Timestamp:   base,
			Type:        telemetry.EventTypeTransactionStarted,
			ExecutionID: "exec-1",
			Level:       telemetry.EventLevelInfo,
			Message:     "Transaction tx-1 started",
		},
		{
			ID:          "ev-2",
			Timestamp:   base.Add(time.Minute),
			Type:        telemetry.EventTypeLongTaskCompleted,
			ExecutionID: "exec-1",
			ServiceID:   "app-1",
			Level:       telemetry.EventLevelInfo,
			Message:     "create succeeded for service app-1",
			Data:        map[string]interface{}{"action": "create"},
		},
	}
	for _, e := range events {
		if err := store.RecordEvent(ctx, e); err != nil {
			t.Fatalf("RecordEvent failed: %v", err)
		}
	}

	got, err := store.ListEvents(ctx, "exec-1")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].ID != "ev-1" || got[1].ID != "ev-2" {
		t.Errorf("events not in timestamp order: %s, %s", got[0].ID, got[1].ID)
	}
	if got[1].Data["action"] != "create" {
		t.Errorf("event data not round-tripped: %+v", got[1].Data)
	}
}
