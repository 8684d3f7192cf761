package session

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/0x6d61/sec360/internal/metrics"
	"github.com/0x6d61/sec360/internal/store"
)

// PersistOptions bounds record writes. Each attempt gets AttemptTimeout;
// attempts are separated by exponential backoff starting at InitialBackoff
// and capped at MaxBackoff.
type PersistOptions struct {
	AttemptTimeout time.Duration
	Attempts       int
	InitialBackoff time.Duration
	Factor         float64
	MaxBackoff     time.Duration
}

// DefaultPersistOptions returns the stock retry policy.
func DefaultPersistOptions() PersistOptions {
	return PersistOptions{
		AttemptTimeout: 2 * time.Second,
		Attempts:       4,
		InitialBackoff: 100 * time.Millisecond,
		Factor:         2,
		MaxBackoff:     2 * time.Second,
	}
}

func (p PersistOptions) attemptTimeout() time.Duration {
	if p.AttemptTimeout <= 0 {
		return DefaultPersistOptions().AttemptTimeout
	}
	return p.AttemptTimeout
}

func (p PersistOptions) backoff() wait.Backoff {
	steps := p.Attempts
	if steps < 1 {
		steps = 1
	}
	return wait.Backoff{
		Duration: p.InitialBackoff,
		Factor:   p.Factor,
		Jitter:   0.1,
		Steps:    steps,
		Cap:      p.MaxBackoff,
	}
}

// writeRecord appends rec with bounded retries. When every attempt fails the
// record is queued for FlushPending and an error wrapping
// ErrPersistenceTimeout is returned.
func (m *Manager) writeRecord(ctx context.Context, rec *store.Record) error {
	var lastErr error
	attempt := 0
	err := wait.ExponentialBackoffWithContext(ctx, m.persist.backoff(), func(ctx context.Context) (bool, error) {
		attempt++
		if err := m.appendOnce(ctx, rec); err != nil {
			lastErr = err
			m.logger.Warn("record write failed",
				"record_id", rec.ID,
				"user_id", rec.UserID,
				"attempt", attempt,
				"error", err,
			)
			return false, nil
		}
		return true, nil
	})
	if err == nil {
		return nil
	}
	if lastErr == nil {
		lastErr = err
	}

	m.enqueue(rec)
	metrics.PersistFailed()
	m.logger.Error("record queued after exhausting retries",
		"record_id", rec.ID,
		"user_id", rec.UserID,
		"attempts", attempt,
		"error", lastErr,
	)
	return fmt.Errorf("session: write record %s: %w: %v", rec.ID, ErrPersistenceTimeout, lastErr)
}

func (m *Manager) appendOnce(ctx context.Context, rec *store.Record) error {
	attemptCtx, cancel := context.WithTimeout(ctx, m.persist.attemptTimeout())
	defer cancel()
	return m.gateway.AppendRecord(attemptCtx, rec)
}

func (m *Manager) enqueue(rec *store.Record) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	for _, p := range m.pending {
		if p.ID == rec.ID {
			return
		}
	}
	m.pending = append(m.pending, rec)
	metrics.SetPendingRecords(len(m.pending))
}

// Pending returns the number of records waiting to be flushed.
func (m *Manager) Pending() int {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	return len(m.pending)
}

// FlushPending makes one write attempt for every queued record and returns
// how many were written.
func (m *Manager) FlushPending(ctx context.Context) int {
	m.pendingMu.Lock()
	queued := m.pending
	m.pending = nil
	m.pendingMu.Unlock()

	written := 0
	var failed []*store.Record
	for _, rec := range queued {
		if err := m.appendOnce(ctx, rec); err != nil {
			m.logger.Debug("pending record still unwritten", "record_id", rec.ID, "error", err)
			failed = append(failed, rec)
			continue
		}
		written++
		m.dropCheckpoint(ctx, rec.UserID, rec.SessionID)
	}

	m.pendingMu.Lock()
	m.pending = append(failed, m.pending...)
	metrics.SetPendingRecords(len(m.pending))
	m.pendingMu.Unlock()

	if written > 0 {
		m.logger.Info("flushed pending records", "count", written)
	}
	return written
}

// saveCheckpoint is best effort: a failure is logged and the session carries
// on in memory.
func (m *Manager) saveCheckpoint(ctx context.Context, st *State) {
	cctx, cancel := context.WithTimeout(ctx, m.persist.attemptTimeout())
	defer cancel()
	if err := m.gateway.SaveCheckpoint(cctx, st.checkpoint()); err != nil {
		m.logger.Warn("checkpoint save failed", "user_id", st.UserID, "session_id", st.SessionID, "error", err)
	}
}

func (m *Manager) dropCheckpoint(ctx context.Context, userID, sessionID string) {
	cctx, cancel := context.WithTimeout(ctx, m.persist.attemptTimeout())
	defer cancel()
	if err := m.gateway.DeleteCheckpoint(cctx, userID, sessionID); err != nil {
		m.logger.Warn("checkpoint delete failed", "user_id", userID, "session_id", sessionID, "error", err)
	}
}
