package session

import (
	"context"
	"errors"
	"time"
)

// Run sweeps for idle sessions every sweep interval until ctx is cancelled.
// Each sweep takes the same per-user lock as Submit and EndSession, then
// retries any queued records.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()

	m.logger.Info("idle sweep started", "interval", m.sweep.String(), "idle_threshold", m.idle.String())
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("idle sweep stopped")
			return nil
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs one idle check over every active session and flushes pending
// records. It returns the number of sessions that timed out.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()
	timedOut := 0
	for _, userID := range m.sessions.userIDs() {
		expired, err := m.CheckIdle(ctx, userID, now)
		if err != nil && !errors.Is(err, ErrNoActiveSession) {
			m.logger.Warn("idle check failed", "user_id", userID, "error", err)
		}
		if expired {
			timedOut++
		}
	}
	if m.Pending() > 0 {
		m.FlushPending(ctx)
	}
	return timedOut
}
