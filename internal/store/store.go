// Package store keeps a SQLite index of past sessions so they can be
// listed and resumed without scanning the logs directory.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SessionRecord is one row of the session index.
type SessionRecord struct {
	SessionID     string
	Workspace     string
	Agent         string
	Model         string
	StartedAt     time.Time
	EndedAt       *time.Time
	Prompts       int
	TotalTokens   int
	CostUSD       *float64
	FinalResponse string
	LogDir        string
}

// ErrNotFound is returned when a session id is not in the index.
var ErrNotFound = errors.New("session not found")

// Store wraps the index database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the index at path and ensures the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing database handle. The schema is assumed
// to exist; used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			workspace TEXT NOT NULL,
			agent TEXT NOT NULL,
			model TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			prompts INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			cost_usd REAL,
			final_response TEXT NOT NULL DEFAULT '',
			log_dir TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	_, err = s.db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_sessions_workspace ON sessions(workspace, started_at)")
	if err != nil {
		return fmt.Errorf("create sessions index: %w", err)
	}
	return nil
}

// RecordStart inserts the session at startup.
func (s *Store) RecordStart(ctx context.Context, rec SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, workspace, agent, model, started_at, log_dir)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Workspace, rec.Agent, rec.Model, rec.StartedAt.UTC(), rec.LogDir)
	if err != nil {
		return fmt.Errorf("record session start: %w", err)
	}
	return nil
}

// RecordEnd fills in the end-of-session rollup.
func (s *Store) RecordEnd(ctx context.Context, sessionID string, endedAt time.Time, prompts, totalTokens int, costUSD *float64, finalResponse string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET ended_at = ?, prompts = ?, total_tokens = ?, cost_usd = ?, final_response = ?
		WHERE session_id = ?`,
		endedAt.UTC(), prompts, totalTokens, costUSD, finalResponse, sessionID)
	if err != nil {
		return fmt.Errorf("record session end: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record session end: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns one session by id.
func (s *Store) Get(ctx context.Context, sessionID string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, workspace, agent, model, started_at, ended_at,
		       prompts, total_tokens, cost_usd, final_response, log_dir
		FROM sessions WHERE session_id = ?`, sessionID)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return rec, nil
}

// List returns the most recent sessions, newest first. workspace ""
// lists across workspaces.
func (s *Store) List(ctx context.Context, workspace string, limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT session_id, workspace, agent, model, started_at, ended_at,
		       prompts, total_tokens, cost_usd, final_response, log_dir
		FROM sessions`
	args := []any{}
	if workspace != "" {
		query += " WHERE workspace = ?"
		args = append(args, workspace)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var rec SessionRecord
	var endedAt sql.NullTime
	var cost sql.NullFloat64
	err := row.Scan(
		&rec.SessionID, &rec.Workspace, &rec.Agent, &rec.Model,
		&rec.StartedAt, &endedAt, &rec.Prompts, &rec.TotalTokens,
		&cost, &rec.FinalResponse, &rec.LogDir)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		rec.EndedAt = &t
	}
	if cost.Valid {
		v := cost.Float64
		rec.CostUSD = &v
	}
	return &rec, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
