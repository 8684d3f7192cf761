// Package store persists closed session records and checkpoints of active
// sessions.
package store

import (
	"context"
	"time"

	"github.com/0x6d61/sec360/internal/catalog"
	"github.com/0x6d61/sec360/internal/detector"
	"github.com/0x6d61/sec360/internal/scoring"
)

// Terminal session statuses stored on a Record.
const (
	StatusEnded        = "ENDED"
	StatusIdleTimedOut = "IDLE_TIMED_OUT"
)

// Submission is one entry of a session's ordered history.
type Submission struct {
	Seq         int                `json:"seq"`
	SubmittedAt time.Time          `json:"submitted_at"`
	Fingerprint string             `json:"fingerprint"`
	Duplicate   bool               `json:"duplicate"`
	LinesOfCode int                `json:"lines_of_code"`
	FieldCount  int                `json:"field_count"`
	DataCount   int                `json:"data_count"`
	Flags       []detector.Flag    `json:"flags"`
	Breakdown   *scoring.Breakdown `json:"breakdown"`
}

// Record is the durable, closed-out form of a session. Records are written
// once and never updated.
type Record struct {
	ID                    string                       `json:"id"`
	UserID                string                       `json:"user_id"`
	SessionID             string                       `json:"session_id"`
	Status                string                       `json:"status"`
	EndReason             string                       `json:"end_reason"`
	StartedAt             time.Time                    `json:"started_at"`
	EndedAt               time.Time                    `json:"ended_at"`
	TotalSubmissions      int                          `json:"total_submissions"`
	DuplicateSubmissions  int                          `json:"duplicate_submissions"`
	FinalScore            int                          `json:"final_score"`
	BestScore             int                          `json:"best_score"`
	AverageRiskScore      float64                      `json:"average_risk_score"`
	RiskLevel             scoring.RiskLevel            `json:"risk_level"`
	TotalLines            int                          `json:"total_lines"`
	TotalSensitiveFields  int                          `json:"total_sensitive_fields"`
	TotalSensitiveData    int                          `json:"total_sensitive_data"`
	CategoryContributions map[catalog.Category]float64 `json:"category_contributions"`
	CumulativeFlags       map[catalog.Category]int     `json:"cumulative_flags"`
	History               []Submission                 `json:"history"`
	CatalogVersion        string                       `json:"catalog_version"`
}

// Summary returns the lightweight view of r.
func (r *Record) Summary() *RecordSummary {
	return &RecordSummary{
		ID:               r.ID,
		UserID:           r.UserID,
		SessionID:        r.SessionID,
		Status:           r.Status,
		StartedAt:        r.StartedAt,
		EndedAt:          r.EndedAt,
		TotalSubmissions: r.TotalSubmissions,
		FinalScore:       r.FinalScore,
		BestScore:        r.BestScore,
		RiskLevel:        r.RiskLevel,
	}
}

// RecordSummary is a lightweight record overview used for listings and the
// leaderboard.
type RecordSummary struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	SessionID        string            `json:"session_id"`
	Status           string            `json:"status"`
	StartedAt        time.Time         `json:"started_at"`
	EndedAt          time.Time         `json:"ended_at"`
	TotalSubmissions int               `json:"total_submissions"`
	FinalScore       int               `json:"final_score"`
	BestScore        int               `json:"best_score"`
	RiskLevel        scoring.RiskLevel `json:"risk_level"`
}

// RecordFilter narrows ListRecords. Zero values mean no restriction.
type RecordFilter struct {
	UserID string
	Limit  int
}

// Checkpoint is a snapshot of a session, written after every state change so
// that sessions survive a restart. A checkpoint with a terminal Status belongs
// to a session whose record has not been written yet.
type Checkpoint struct {
	UserID           string                   `json:"user_id"`
	SessionID        string                   `json:"session_id"`
	Status           string                   `json:"status"`
	EndReason        string                   `json:"end_reason,omitempty"`
	StartedAt        time.Time                `json:"started_at"`
	LastActivityAt   time.Time                `json:"last_activity_at"`
	EndedAt          time.Time                `json:"ended_at"`
	SubmissionHashes []string                 `json:"submission_hashes"`
	CumulativeFlags  map[catalog.Category]int `json:"cumulative_flags"`
	Stats            scoring.SessionStats     `json:"stats"`
	LatestScore      int                      `json:"latest_score"`
	History          []Submission             `json:"history"`
}

// Gateway persists records and checkpoints.
type Gateway interface {
	// AppendRecord stores rec. Appending a record whose ID already exists
	// is a no-op, which makes retries safe.
	AppendRecord(ctx context.Context, rec *Record) error
	// LoadRecord returns (nil, nil) when no record has the given ID.
	LoadRecord(ctx context.Context, id string) (*Record, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]*RecordSummary, error)
	// SaveCheckpoint upserts by session ID. A user may hold several
	// checkpoints: at most one active, plus terminal ones whose records are
	// still unwritten.
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error
	// DeleteCheckpoint removes the checkpoint of sessionID owned by userID.
	DeleteCheckpoint(ctx context.Context, userID, sessionID string) error
	ListCheckpoints(ctx context.Context) ([]*Checkpoint, error)
	Close() error
}
