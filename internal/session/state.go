// Package session manages per-user practice sessions: at most one active
// session per user, duplicate submission suppression, idle timeout and
// durable session records.
package session

import (
	"math"
	"time"

	"github.com/0x6d61/sec360/internal/catalog"
	"github.com/0x6d61/sec360/internal/scoring"
	"github.com/0x6d61/sec360/internal/store"
)

// Status is the lifecycle state of a session.
type Status string

const (
	Active       Status = "ACTIVE"
	IdleTimedOut Status = store.StatusIdleTimedOut
	Ended        Status = store.StatusEnded
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == IdleTimedOut || s == Ended
}

// End reasons recorded on session records.
const (
	ReasonUser        = "user_request"
	ReasonIdleTimeout = "idle_timeout"
	ReasonRecovered   = "recovered_after_restart"
)

// State is the in-memory state of one session. It is owned by the Manager
// and only touched while holding the owning entry's lock.
type State struct {
	UserID           string
	SessionID        string
	StartedAt        time.Time
	LastActivityAt   time.Time
	Status           Status
	EndReason        string
	EndedAt          time.Time
	SubmissionHashes map[string]struct{}
	CumulativeFlags  map[catalog.Category]int
	Stats            scoring.SessionStats
	LatestScore      int
	History          []store.Submission
}

func newState(userID, sessionID string, now time.Time) *State {
	return &State{
		UserID:           userID,
		SessionID:        sessionID,
		StartedAt:        now,
		LastActivityAt:   now,
		Status:           Active,
		SubmissionHashes: make(map[string]struct{}),
		CumulativeFlags:  make(map[catalog.Category]int),
	}
}

// BestScore is the highest final score over non-duplicate submissions.
func (s *State) BestScore() int {
	return s.Stats.BestScore
}

func (s *State) duplicates() int {
	n := 0
	for _, sub := range s.History {
		if sub.Duplicate {
			n++
		}
	}
	return n
}

// latest returns the breakdown of the most recent non-duplicate submission.
func (s *State) latest() *scoring.Breakdown {
	for i := len(s.History) - 1; i >= 0; i-- {
		if !s.History[i].Duplicate && s.History[i].Breakdown != nil {
			return s.History[i].Breakdown
		}
	}
	return nil
}

// idleFor reports whether the session has been inactive for longer than
// threshold at now.
func (s *State) idleFor(now time.Time, threshold time.Duration) bool {
	return now.Sub(s.LastActivityAt) > threshold
}

// record closes the state into a durable record. Records are keyed by
// session ID so that a retried or recovered finalize never writes twice.
func (s *State) record(thresholds scoring.Thresholds, catalogVersion string) *store.Record {
	rec := &store.Record{
		ID:                    s.SessionID,
		UserID:                s.UserID,
		SessionID:             s.SessionID,
		Status:                string(s.Status),
		EndReason:             s.EndReason,
		StartedAt:             s.StartedAt,
		EndedAt:               s.EndedAt,
		TotalSubmissions:      len(s.History),
		DuplicateSubmissions:  s.duplicates(),
		FinalScore:            s.LatestScore,
		BestScore:             s.Stats.BestScore,
		RiskLevel:             thresholds.Level(s.LatestScore),
		CategoryContributions: map[catalog.Category]float64{},
		CumulativeFlags:       make(map[catalog.Category]int, len(s.CumulativeFlags)),
		History:               append([]store.Submission{}, s.History...),
		CatalogVersion:        catalogVersion,
	}
	if bd := s.latest(); bd != nil {
		for c, v := range bd.CategoryContributions {
			rec.CategoryContributions[c] = v
		}
	}
	for c, n := range s.CumulativeFlags {
		rec.CumulativeFlags[c] = n
	}

	// Totals cover non-duplicate submissions only.
	var scored, sum int
	for _, sub := range s.History {
		if sub.Duplicate {
			continue
		}
		rec.TotalLines += sub.LinesOfCode
		rec.TotalSensitiveFields += sub.FieldCount
		rec.TotalSensitiveData += sub.DataCount
		if sub.Breakdown != nil {
			sum += sub.Breakdown.FinalScore
			scored++
		}
	}
	if scored > 0 {
		rec.AverageRiskScore = math.Round(float64(sum)/float64(scored)*100) / 100
	}
	return rec
}

func (s *State) checkpoint() *store.Checkpoint {
	hashes := make([]string, 0, len(s.SubmissionHashes))
	for _, sub := range s.History {
		if !sub.Duplicate {
			hashes = append(hashes, sub.Fingerprint)
		}
	}
	flags := make(map[catalog.Category]int, len(s.CumulativeFlags))
	for c, n := range s.CumulativeFlags {
		flags[c] = n
	}
	return &store.Checkpoint{
		UserID:           s.UserID,
		SessionID:        s.SessionID,
		Status:           string(s.Status),
		EndReason:        s.EndReason,
		StartedAt:        s.StartedAt,
		LastActivityAt:   s.LastActivityAt,
		EndedAt:          s.EndedAt,
		SubmissionHashes: hashes,
		CumulativeFlags:  flags,
		Stats:            s.Stats,
		LatestScore:      s.LatestScore,
		History:          append([]store.Submission{}, s.History...),
	}
}

func stateFromCheckpoint(cp *store.Checkpoint) *State {
	st := newState(cp.UserID, cp.SessionID, cp.StartedAt)
	st.LastActivityAt = cp.LastActivityAt
	st.Status = Status(cp.Status)
	if st.Status == "" {
		st.Status = Active
	}
	st.EndReason = cp.EndReason
	st.EndedAt = cp.EndedAt
	for _, h := range cp.SubmissionHashes {
		st.SubmissionHashes[h] = struct{}{}
	}
	for c, n := range cp.CumulativeFlags {
		st.CumulativeFlags[c] = n
	}
	st.Stats = cp.Stats
	st.LatestScore = cp.LatestScore
	st.History = append([]store.Submission{}, cp.History...)
	return st
}
