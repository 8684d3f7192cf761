package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0x6d61/sec360/internal/catalog"
	"github.com/0x6d61/sec360/internal/detector"
	"github.com/0x6d61/sec360/internal/metrics"
	"github.com/0x6d61/sec360/internal/scoring"
	"github.com/0x6d61/sec360/internal/store"
)

var (
	// ErrSessionConflict is returned by StartSession when the user already
	// has an active session. The existing session is left untouched.
	ErrSessionConflict = errors.New("session already active")

	// ErrNoActiveSession is returned when an operation needs an active
	// session and the user has none.
	ErrNoActiveSession = errors.New("no active session")

	// ErrPersistenceTimeout is returned when a session record could not be
	// written in time. The session is still closed and the record is queued
	// for a later flush.
	ErrPersistenceTimeout = errors.New("persistence timeout")

	errInvalidUser = errors.New("session: user id must not be empty")
)

// DefaultIdleThreshold is the inactivity period after which a session times
// out.
const DefaultIdleThreshold = 5 * time.Minute

// Handle identifies a newly started session.
type Handle struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

// SubmitResult is returned for every submission, duplicate or not.
type SubmitResult struct {
	SessionID string             `json:"session_id"`
	Seq       int                `json:"seq"`
	Duplicate bool               `json:"duplicate"`
	Detection *detector.Result   `json:"detection"`
	Score     *scoring.Breakdown `json:"score"`
}

// ActiveSummary describes one active session.
type ActiveSummary struct {
	UserID         string    `json:"user_id"`
	SessionID      string    `json:"session_id"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	LatestScore    int       `json:"latest_score"`
	Submissions    int       `json:"submissions"`
}

// Manager owns every session. It is safe for concurrent use: operations on
// different users run in parallel, operations on the same user are
// serialized.
type Manager struct {
	catalog  *catalog.Catalog
	scorer   *scoring.Scorer
	gateway  store.Gateway
	logger   *slog.Logger
	now      func() time.Time
	idle     time.Duration
	sweep    time.Duration
	persist  PersistOptions
	sessions *registry

	pendingMu sync.Mutex
	pending   []*store.Record
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIdleThreshold sets the inactivity timeout.
func WithIdleThreshold(d time.Duration) Option {
	return func(m *Manager) {
		m.idle = d
	}
}

// WithSweepInterval sets how often Run checks for idle sessions.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.sweep = d
	}
}

// WithPersistOptions sets the record write retry policy.
func WithPersistOptions(p PersistOptions) Option {
	return func(m *Manager) {
		m.persist = p
	}
}

// NewManager creates a Manager. cat and scorer must be non-nil; gateway
// receives records and checkpoints.
func NewManager(cat *catalog.Catalog, scorer *scoring.Scorer, gateway store.Gateway, opts ...Option) *Manager {
	m := &Manager{
		catalog:  cat,
		scorer:   scorer,
		gateway:  gateway,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		idle:     DefaultIdleThreshold,
		sweep:    30 * time.Second,
		persist:  DefaultPersistOptions(),
		sessions: newRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IdleThreshold returns the configured inactivity timeout.
func (m *Manager) IdleThreshold() time.Duration {
	return m.idle
}

// StartSession opens a session for userID.
func (m *Manager) StartSession(ctx context.Context, userID string) (*Handle, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errInvalidUser
	}

	e := &entry{state: newState(userID, uuid.New().String(), m.now())}
	e.mu.Lock()
	defer e.mu.Unlock()

	for !m.sessions.add(userID, e) {
		if !m.expireStale(ctx, userID) {
			return nil, fmt.Errorf("session: start %s: %w", userID, ErrSessionConflict)
		}
	}
	metrics.SetActiveSessions(m.sessions.len())

	st := e.state
	m.saveCheckpoint(ctx, st)
	m.logger.Info("session started", "user_id", userID, "session_id", st.SessionID)

	return &Handle{UserID: userID, SessionID: st.SessionID, StartedAt: st.StartedAt}, nil
}

// Submit scans code within the user's active session. A submission whose
// fingerprint was already seen in this session is still scanned and scored,
// but it is marked Duplicate and leaves the session aggregates unchanged.
func (m *Manager) Submit(ctx context.Context, userID, code string) (*SubmitResult, error) {
	e, err := m.lockActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	st := e.state

	started := time.Now()
	fp := detector.Fingerprint(code)
	_, duplicate := st.SubmissionHashes[fp]

	res := detector.Detect(code, m.catalog)
	history := st.Stats
	bd := m.scorer.Score(res, history)

	if duplicate {
		bd.Session = history
	} else {
		st.SubmissionHashes[fp] = struct{}{}
		for c, n := range res.CategoryTally {
			st.CumulativeFlags[c] += n
		}
		st.Stats = bd.Session
		st.LatestScore = bd.FinalScore
	}

	now := m.now()
	st.LastActivityAt = now
	seq := len(st.History) + 1
	st.History = append(st.History, store.Submission{
		Seq:         seq,
		SubmittedAt: now,
		Fingerprint: fp,
		Duplicate:   duplicate,
		LinesOfCode: res.LinesOfCode,
		FieldCount:  res.FieldCount,
		DataCount:   res.DataCount,
		Flags:       res.Flags,
		Breakdown:   bd,
	})
	m.saveCheckpoint(ctx, st)

	metrics.ObserveSubmission(duplicate, bd.FinalScore, time.Since(started).Seconds())
	for _, f := range res.Flags {
		metrics.ObserveFlag(string(f.Category), string(f.Tier))
	}
	m.logger.Debug("submission scored",
		"user_id", userID,
		"session_id", st.SessionID,
		"seq", seq,
		"score", bd.FinalScore,
		"duplicate", duplicate,
	)

	return &SubmitResult{
		SessionID: st.SessionID,
		Seq:       seq,
		Duplicate: duplicate,
		Detection: res,
		Score:     bd,
	}, nil
}

// CheckIdle times out the user's session when it has been inactive for
// longer than the idle threshold at now. It reports whether the session was
// timed out. A non-nil error together with true means the record could not
// be persisted in time.
func (m *Manager) CheckIdle(ctx context.Context, userID string, now time.Time) (bool, error) {
	e := m.sessions.get(userID)
	if e == nil {
		return false, fmt.Errorf("session: check idle %s: %w", userID, ErrNoActiveSession)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, fmt.Errorf("session: check idle %s: %w", userID, ErrNoActiveSession)
	}
	if !e.state.idleFor(now, m.idle) {
		return false, nil
	}
	_, err := m.finalize(ctx, e, IdleTimedOut, ReasonIdleTimeout, now)
	return true, err
}

// EndSession closes the user's active session and returns its record. The
// record is returned even when err wraps ErrPersistenceTimeout.
func (m *Manager) EndSession(ctx context.Context, userID, reason string) (*store.Record, error) {
	e, err := m.lockActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	if reason == "" {
		reason = ReasonUser
	}
	return m.finalize(ctx, e, Ended, reason, m.now())
}

// HasActiveSession reports whether userID holds a registered, unclosed
// session. It does not expire idle sessions.
func (m *Manager) HasActiveSession(userID string) bool {
	e := m.sessions.get(userID)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed
}

// ActiveSessions lists active sessions ordered by start time.
func (m *Manager) ActiveSessions() []ActiveSummary {
	var out []ActiveSummary
	for _, id := range m.sessions.userIDs() {
		e := m.sessions.get(id)
		if e == nil {
			continue
		}
		e.mu.Lock()
		if !e.closed {
			st := e.state
			out = append(out, ActiveSummary{
				UserID:         st.UserID,
				SessionID:      st.SessionID,
				StartedAt:      st.StartedAt,
				LastActivityAt: st.LastActivityAt,
				LatestScore:    st.LatestScore,
				Submissions:    len(st.History),
			})
		}
		e.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// expireStale finalizes the user's registered session if it has already
// gone idle. It reports whether the registry slot is now free to retry.
func (m *Manager) expireStale(ctx context.Context, userID string) bool {
	existing := m.sessions.get(userID)
	if existing == nil {
		return true
	}
	existing.mu.Lock()
	defer existing.mu.Unlock()
	if existing.closed {
		return true
	}
	now := m.now()
	if !existing.state.idleFor(now, m.idle) {
		return false
	}
	if _, err := m.finalize(ctx, existing, IdleTimedOut, ReasonIdleTimeout, now); err != nil {
		m.logger.Warn("idle session finalized with persistence error", "user_id", userID, "error", err)
	}
	return true
}

// lockActive returns the user's entry locked. Sessions that went idle but
// were not swept yet are timed out here and reported as absent.
func (m *Manager) lockActive(ctx context.Context, userID string) (*entry, error) {
	e := m.sessions.get(userID)
	if e == nil {
		return nil, fmt.Errorf("session: %s: %w", userID, ErrNoActiveSession)
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, fmt.Errorf("session: %s: %w", userID, ErrNoActiveSession)
	}
	if now := m.now(); e.state.idleFor(now, m.idle) {
		if _, err := m.finalize(ctx, e, IdleTimedOut, ReasonIdleTimeout, now); err != nil {
			m.logger.Warn("idle session finalized with persistence error", "user_id", userID, "error", err)
		}
		e.mu.Unlock()
		return nil, fmt.Errorf("session: %s timed out: %w", userID, ErrNoActiveSession)
	}
	return e, nil
}

// finalize moves the locked entry to a terminal state, removes it from the
// registry and writes its record. The in-memory transition is never rolled
// back.
func (m *Manager) finalize(ctx context.Context, e *entry, status Status, reason string, at time.Time) (*store.Record, error) {
	st := e.state
	st.Status = status
	st.EndReason = reason
	st.EndedAt = at
	e.closed = true
	m.sessions.remove(st.UserID, e)
	metrics.SetActiveSessions(m.sessions.len())
	metrics.SessionFinalized(string(status))

	rec := st.record(m.scorer.Thresholds(), m.catalog.Version())
	m.logger.Info("session closed",
		"user_id", st.UserID,
		"session_id", st.SessionID,
		"status", string(status),
		"reason", reason,
		"submissions", rec.TotalSubmissions,
		"final_score", rec.FinalScore,
	)

	if err := m.writeRecord(ctx, rec); err != nil {
		// Keep a terminal checkpoint so a restart can still write the record.
		m.saveCheckpoint(ctx, st)
		return rec, err
	}
	m.dropCheckpoint(ctx, st.UserID, st.SessionID)
	return rec, nil
}
