package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based audit store.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS mutations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		entity TEXT NOT NULL,
		entity_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		payload BLOB,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entity ON mutations(entity);
	CREATE INDEX IF NOT EXISTS idx_recorded_at ON mutations(recorded_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends a mutation event. A missing id or timestamp is filled in.
func (s *SQLiteStore) Record(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO mutations (id, entity, entity_id, action, payload, recorded_at) VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, e.Entity, e.EntityID, e.Action, e.Payload, e.RecordedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert mutation: %w", err)
	}

	return nil
}

// ByEntity retrieves the most recent events for an entity kind, newest first.
func (s *SQLiteStore) ByEntity(ctx context.Context, entity string, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	query := "SELECT id, entity, entity_id, action, payload, recorded_at FROM mutations"
	args := []any{}
	if entity != "" {
		query += " WHERE entity = ?"
		args = append(args, entity)
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// Range retrieves events recorded within [start, end], oldest first.
func (s *SQLiteStore) Range(ctx context.Context, start, end time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, entity, entity_id, action, payload, recorded_at FROM mutations WHERE recorded_at >= ? AND recorded_at <= ? ORDER BY seq",
		start.Unix(), end.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

func (s *SQLiteStore) scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var recordedUnix int64

		if err := rows.Scan(&e.ID, &e.Entity, &e.EntityID, &e.Action, &e.Payload, &recordedUnix); err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		e.RecordedAt = time.Unix(recordedUnix, 0)

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return events, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
