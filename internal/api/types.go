// Package api exposes sessions, stateless scans, records and the
// leaderboard over HTTP.
package api

import (
	"github.com/0x6d61/sec360/internal/detector"
	"github.com/0x6d61/sec360/internal/scoreboard"
	"github.com/0x6d61/sec360/internal/scoring"
	"github.com/0x6d61/sec360/internal/session"
	"github.com/0x6d61/sec360/internal/store"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeSessionConflict = "SESSION_CONFLICT"
	CodeNoSession       = "NO_ACTIVE_SESSION"
	CodeRateLimited     = "RATE_LIMITED"
	CodeCodeTooLarge    = "CODE_TOO_LARGE"
	CodeNotFound        = "NOT_FOUND"
	CodeInternal        = "INTERNAL_ERROR"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is a message the caller can act on.
	Error string `json:"error"`

	// Code is the machine-readable error code.
	Code string `json:"code,omitempty"`
}

// StartSessionRequest is the body of POST /v1/sessions.
type StartSessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// CodeRequest carries code for a submission or a stateless scan. Empty code
// is valid and scores zero.
type CodeRequest struct {
	Code string `json:"code"`
}

// SubmitResponse is returned for every submission.
type SubmitResponse = session.SubmitResult

// ScanResponse is returned by POST /v1/scan.
type ScanResponse struct {
	Fingerprint string             `json:"fingerprint"`
	Detection   *detector.Result   `json:"detection"`
	Score       *scoring.Breakdown `json:"score"`
}

// EndSessionResponse carries the closed session's record. Warning is set
// when the record could not be persisted in time; it will be retried.
type EndSessionResponse struct {
	Record  *store.Record `json:"record"`
	Warning string        `json:"warning,omitempty"`
}

// ActiveSessionsResponse lists active sessions.
type ActiveSessionsResponse struct {
	Sessions []session.ActiveSummary `json:"sessions"`
}

// RecordsResponse lists record summaries.
type RecordsResponse struct {
	Records []*store.RecordSummary `json:"records"`
}

// LeaderboardResponse is returned by GET /v1/leaderboard.
type LeaderboardResponse struct {
	MinSessions int                   `json:"min_sessions"`
	Entries     []scoreboard.Entry    `json:"entries"`
	Statistics  scoreboard.Statistics `json:"statistics"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
	PendingRecords int    `json:"pending_records"`
	CatalogVersion string `json:"catalog_version"`
}
