// Package history archives finished voice calls to SQLite so past
// transcripts survive restarts and can be reviewed from the UI.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voicedesk/voicedesk/internal/domain"
	_ "modernc.org/sqlite"
)

// Store persists call records.
type Store interface {
	// SaveCall writes one finished call.
	SaveCall(ctx context.Context, record domain.CallRecord) error

	// ListCalls returns the most recent calls, newest first, without
	// transcript bodies.
	ListCalls(ctx context.Context, limit int) ([]domain.CallRecord, error)

	// GetCall returns one call including its transcript.
	GetCall(ctx context.Context, id string) (*domain.CallRecord, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-backed call archive.
func NewSQLite(dbPath string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS calls (
		id TEXT PRIMARY KEY,
		room_name TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL,
		entry_count INTEGER NOT NULL,
		transcript_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_calls_ended ON calls(ended_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return err
	}
	return nil
}

// saveAttempts bounds retries when the database reports a concurrency
// conflict despite the busy timeout.
const saveAttempts = 3

// isConflict reports whether err is a SQLite concurrency error
// (SQLITE_BUSY or "database is locked") that warrants a retry.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// SaveCall writes one finished call.
func (s *SQLiteStore) SaveCall(ctx context.Context, record domain.CallRecord) error {
	transcript, err := json.Marshal(record.Entries)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	for attempt := 1; ; attempt++ {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO calls (id, room_name, started_at, ended_at, entry_count, transcript_json)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			record.ID,
			record.RoomName,
			record.StartedAt.UnixMilli(),
			record.EndedAt.UnixMilli(),
			record.EntryCount,
			string(transcript),
		)
		if err == nil {
			return nil
		}
		if !isConflict(err) || attempt >= saveAttempts {
			return fmt.Errorf("insert call: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
}

// ListCalls returns the most recent calls, newest first.
func (s *SQLiteStore) ListCalls(ctx context.Context, limit int) ([]domain.CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_name, started_at, ended_at, entry_count
		 FROM calls ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var records []domain.CallRecord
	for rows.Next() {
		var rec domain.CallRecord
		var startedAt, endedAt int64
		if err := rows.Scan(&rec.ID, &rec.RoomName, &startedAt, &endedAt, &rec.EntryCount); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		rec.StartedAt = time.UnixMilli(startedAt)
		rec.EndedAt = time.UnixMilli(endedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetCall returns one call with its transcript, or nil when absent.
func (s *SQLiteStore) GetCall(ctx context.Context, id string) (*domain.CallRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, room_name, started_at, ended_at, entry_count, transcript_json
		 FROM calls WHERE id = ?`, id)

	var rec domain.CallRecord
	var startedAt, endedAt int64
	var transcript string
	if err := row.Scan(&rec.ID, &rec.RoomName, &startedAt, &endedAt, &rec.EntryCount, &transcript); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan call: %w", err)
	}
	rec.StartedAt = time.UnixMilli(startedAt)
	rec.EndedAt = time.UnixMilli(endedAt)
	if err := json.Unmarshal([]byte(transcript), &rec.Entries); err != nil {
		return nil, fmt.Errorf("unmarshal transcript: %w", err)
	}
	return &rec, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
