package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/0x6d61/sec360/internal/scoring"
)

// timeLayout sorts lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Gateway using SQLite via modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Gateway = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at dbPath. Use ":memory:"
// for tests.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id                TEXT PRIMARY KEY,
			user_id           TEXT NOT NULL,
			session_id        TEXT NOT NULL,
			status            TEXT NOT NULL,
			started_at        TEXT NOT NULL,
			ended_at          TEXT NOT NULL,
			total_submissions INTEGER NOT NULL DEFAULT 0,
			final_score       INTEGER NOT NULL DEFAULT 0,
			best_score        INTEGER NOT NULL DEFAULT 0,
			risk_level        TEXT NOT NULL DEFAULT '',
			record_json       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_user_id ON records(user_id)`,
		`CREATE TABLE IF NOT EXISTS session_checkpoints (
			session_id       TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT '',
			state_json       TEXT NOT NULL,
			last_activity_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_checkpoints_user_id ON session_checkpoints(user_id)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// AppendRecord inserts rec. An empty ID is replaced with a new UUID.
func (s *SQLiteStore) AppendRecord(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal record: %w", err)
	}

	query := `
		INSERT INTO records (id, user_id, session_id, status, started_at, ended_at,
			total_submissions, final_score, best_score, risk_level, record_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.SessionID,
		rec.Status,
		formatTime(rec.StartedAt),
		formatTime(rec.EndedAt),
		rec.TotalSubmissions,
		rec.FinalScore,
		rec.BestScore,
		string(rec.RiskLevel),
		string(recordJSON),
	)
	if err != nil {
		return fmt.Errorf("store: append record: %w", err)
	}
	return nil
}

// LoadRecord retrieves a record by ID. Returns (nil, nil) if none exists.
func (s *SQLiteStore) LoadRecord(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT record_json FROM records WHERE id = ?`, id)

	var recordJSON string
	if err := row.Scan(&recordJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: scan record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, fmt.Errorf("store: unmarshal record: %w", err)
	}
	return &rec, nil
}

// ListRecords returns record summaries, most recently ended first.
func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]*RecordSummary, error) {
	query := `SELECT id, user_id, session_id, status, started_at, ended_at,
		total_submissions, final_score, best_score, risk_level FROM records`
	var args []any
	if filter.UserID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY ended_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list records: %w", err)
	}
	defer rows.Close()

	summaries := []*RecordSummary{}
	for rows.Next() {
		var (
			sum              RecordSummary
			startedAt, ended string
			level            string
		)
		if err := rows.Scan(&sum.ID, &sum.UserID, &sum.SessionID, &sum.Status, &startedAt, &ended,
			&sum.TotalSubmissions, &sum.FinalScore, &sum.BestScore, &level); err != nil {
			return nil, fmt.Errorf("store: scan summary row: %w", err)
		}
		if sum.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if sum.EndedAt, err = parseTime(ended); err != nil {
			return nil, err
		}
		sum.RiskLevel = scoring.RiskLevel(level)
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate rows: %w", err)
	}
	return summaries, nil
}

// SaveCheckpoint upserts the checkpoint for cp.SessionID. Checkpoints of
// other sessions of the same user are left alone, so a terminal checkpoint
// of an unwritten record survives the user starting a new session.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	stateJSON, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("store: marshal checkpoint: %w", err)
	}

	query := `
		INSERT INTO session_checkpoints (session_id, user_id, status, state_json, last_activity_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_id = excluded.user_id,
			status = excluded.status,
			state_json = excluded.state_json,
			last_activity_at = excluded.last_activity_at
	`
	_, err = s.db.ExecContext(ctx, query,
		cp.SessionID,
		cp.UserID,
		cp.Status,
		string(stateJSON),
		formatTime(cp.LastActivityAt),
	)
	if err != nil {
		return fmt.Errorf("store: save checkpoint: %w", err)
	}
	return nil
}

// DeleteCheckpoint removes the checkpoint of sessionID when it belongs to
// userID.
func (s *SQLiteStore) DeleteCheckpoint(ctx context.Context, userID, sessionID string) error {
	query := `DELETE FROM session_checkpoints WHERE session_id = ? AND user_id = ?`
	if _, err := s.db.ExecContext(ctx, query, sessionID, userID); err != nil {
		return fmt.Errorf("store: delete checkpoint: %w", err)
	}
	return nil
}

// ListCheckpoints returns every stored checkpoint ordered by user ID, most
// recently active first within a user.
func (s *SQLiteStore) ListCheckpoints(ctx context.Context) ([]*Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state_json FROM session_checkpoints ORDER BY user_id, last_activity_at DESC, session_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, fmt.Errorf("store: scan checkpoint row: %w", err)
		}
		var cp Checkpoint
		if err := json.Unmarshal([]byte(stateJSON), &cp); err != nil {
			return nil, fmt.Errorf("store: unmarshal checkpoint: %w", err)
		}
		out = append(out, &cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate rows: %w", err)
	}
	return out, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		// Fall back to plain RFC3339 for rows written by hand.
		t, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("store: parse time %q: %w", v, err)
		}
	}
	return t, nil
}
