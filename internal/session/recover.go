package session

import (
	"context"
	"fmt"

	"github.com/0x6d61/sec360/internal/metrics"
)

// RecoverStats summarizes a Recover call.
type RecoverStats struct {
	Restored  int // sessions active again
	TimedOut  int // sessions that went idle while the process was down
	Completed int // sessions whose record was still unwritten
}

// Recover rebuilds sessions from stored checkpoints after a restart. It must
// be called before the manager serves requests.
//
// A checkpoint with a terminal status is written out as a record. An active
// checkpoint whose last activity is older than the idle threshold is closed
// as IDLE_TIMED_OUT, ending at the moment it would have expired. The rest
// become active sessions again.
func (m *Manager) Recover(ctx context.Context) (RecoverStats, error) {
	var stats RecoverStats

	cps, err := m.gateway.ListCheckpoints(ctx)
	if err != nil {
		return stats, fmt.Errorf("session: recover: %w", err)
	}

	now := m.now()
	for _, cp := range cps {
		st := stateFromCheckpoint(cp)
		e := &entry{state: st}

		switch {
		case st.Status.Terminal():
			rec := st.record(m.scorer.Thresholds(), m.catalog.Version())
			if err := m.writeRecord(ctx, rec); err != nil {
				m.logger.Warn("recovered record not written", "user_id", st.UserID, "error", err)
				continue
			}
			m.dropCheckpoint(ctx, st.UserID, st.SessionID)
			stats.Completed++

		case m.sessions.get(st.UserID) != nil:
			// An older active checkpoint of a user whose newer session was
			// already restored or closed above.
			m.closeSuperseded(ctx, st)
			stats.TimedOut++

		case st.idleFor(now, m.idle):
			e.mu.Lock()
			if !m.sessions.add(st.UserID, e) {
				e.mu.Unlock()
				continue
			}
			if _, err := m.finalize(ctx, e, IdleTimedOut, ReasonRecovered, st.LastActivityAt.Add(m.idle)); err != nil {
				m.logger.Warn("recovered idle session not written", "user_id", st.UserID, "error", err)
			}
			e.mu.Unlock()
			stats.TimedOut++

		default:
			if !m.sessions.add(st.UserID, e) {
				continue
			}
			stats.Restored++
		}
	}

	metrics.SetActiveSessions(m.sessions.len())
	m.logger.Info("sessions recovered",
		"restored", stats.Restored,
		"timed_out", stats.TimedOut,
		"completed", stats.Completed,
	)
	return stats, nil
}

// closeSuperseded writes the record of an active checkpoint that lost its
// registry slot to a newer session of the same user. It ends at its last
// activity.
func (m *Manager) closeSuperseded(ctx context.Context, st *State) {
	st.Status = IdleTimedOut
	st.EndReason = ReasonRecovered
	st.EndedAt = st.LastActivityAt
	rec := st.record(m.scorer.Thresholds(), m.catalog.Version())
	if err := m.writeRecord(ctx, rec); err != nil {
		m.saveCheckpoint(ctx, st)
		m.logger.Warn("superseded session not written", "user_id", st.UserID, "session_id", st.SessionID, "error", err)
		return
	}
	m.dropCheckpoint(ctx, st.UserID, st.SessionID)
}
