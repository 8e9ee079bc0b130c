// Package stores persists deployment history: terminal transaction outcomes
// and the progress events that led to them. The store backs the status and
// history commands; orchestration never reads it.
package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/tidemark-io/tidemark/pkg/engine"
	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// HistoryStore implements engine.HistoryRecorder on SQLite.
type HistoryStore struct {
	db     *sql.DB
	config Config
}

// Config holds history store configuration. Zero connection settings fall
// back to the defaults applied in Init.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewHistoryStore creates a new history store instance.
func NewHistoryStore(cfg Config) (*HistoryStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &HistoryStore{config: cfg}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *HistoryStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.config.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.config.MaxOpenConns)
	db.SetMaxIdleConns(s.config.MaxIdleConns)
	db.SetConnMaxLifetime(s.config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *HistoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded schema migrations.
func (s *HistoryStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RecordTransaction implements engine.HistoryRecorder.
func (s *HistoryStore) RecordTransaction(ctx context.Context, record engine.TransactionRecord) error {
	query := `
		INSERT INTO transactions (transaction_id, execution_id, environment_id, action, result, error_message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.TransactionID,
		record.ExecutionID,
		record.EnvironmentID,
		record.Action,
		record.Result,
		record.ErrorMessage,
		record.StartedAt,
		record.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves one transaction record by id.
func (s *HistoryStore) GetTransaction(ctx context.Context, transactionID string) (*engine.TransactionRecord, error) {
	query := `
		SELECT transaction_id, execution_id, environment_id, action, result, error_message, started_at, finished_at
		FROM transactions
		WHERE transaction_id = ?
	`

	record := &engine.TransactionRecord{}
	var errorMessage sql.NullString
	err := s.db.QueryRowContext(ctx, query, transactionID).Scan(
		&record.TransactionID,
		&record.ExecutionID,
		&record.EnvironmentID,
		&record.Action,
		&record.Result,
		&errorMessage,
		&record.StartedAt,
		&record.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s not found", transactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	record.ErrorMessage = errorMessage.String
	return record, nil
}

// ListTransactions returns the most recent transactions for an environment,
// newest first. An empty environmentID lists across environments.
func (s *HistoryStore) ListTransactions(ctx context.Context, environmentID string, limit int) ([]engine.TransactionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT transaction_id, execution_id, environment_id, action, result, error_message, started_at, finished_at
		FROM transactions
	`
	args := []interface{}{}
	if environmentID != "" {
		query += " WHERE environment_id = ?"
		args = append(args, environmentID)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var records []engine.TransactionRecord
	for rows.Next() {
		var record engine.TransactionRecord
		var errorMessage sql.NullString
		if err := rows.Scan(
			&record.TransactionID,
			&record.ExecutionID,
			&record.EnvironmentID,
			&record.Action,
			&record.Result,
			&errorMessage,
			&record.StartedAt,
			&record.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		record.ErrorMessage = errorMessage.String
		records = append(records, record)
	}
	return records, rows.Err()
}

// RecordEvent persists one progress event.
func (s *HistoryStore) RecordEvent(ctx context.Context, event telemetry.Event) error {
	var data []byte
	if len(event.Data) > 0 {
		encoded, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to encode event data: %w", err)
		}
		data = encoded
	}

	query := `
		INSERT INTO events (id, ts, type, execution_id, transaction_id, service_id, level, message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		event.Type,
		event.ExecutionID,
		event.TransactionID,
		event.ServiceID,
		event.Level,
		event.Message,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// ListEvents returns the events of one deployment attempt in order.
func (s *HistoryStore) ListEvents(ctx context.Context, executionID string) ([]telemetry.Event, error) {
	query := `
		SELECT id, ts, type, execution_id, transaction_id, service_id, level, message, data
		FROM events
		WHERE execution_id = ?
		ORDER BY ts ASC
	`

	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []telemetry.Event
	for rows.Next() {
		var event telemetry.Event
		var data sql.NullString
		if err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&event.Type,
			&event.ExecutionID,
			&event.TransactionID,
			&event.ServiceID,
			&event.Level,
			&event.Message,
			&data,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &event.Data); err != nil {
				return nil, fmt.Errorf("failed to decode event data: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Subscriber returns an event subscriber that persists every event it
// receives. Persistence failures are dropped: history is best-effort and
// must never influence a deployment.
func (s *HistoryStore) Subscriber() telemetry.EventSubscriber {
	return func(event telemetry.Event) {
		_ = s.RecordEvent(context.Background(), event)
	}
}
