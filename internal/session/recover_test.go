package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/0x6d61/sec360/internal/store"
)

func TestRecover_RestoresAndTimesOut(t *testing.T) {
	ctx := context.Background()
	gw, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sec360.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore returned error: %v", err)
	}
	defer gw.Close()

	clock := newFakeClock()
	t0 := clock.Now()
	m1 := newTestManager(t, gw, clock)

	mustStart(t, m1, "alice")
	mustSubmit(t, m1, "alice", apiKeyCode)
	bob := mustStart(t, m1, "bob")

	clock.Advance(time.Minute)
	mustSubmit(t, m1, "alice", "x = 1")

	// Process restarts 5m30s after bob's last activity.
	clock.Advance(4*time.Minute + 30*time.Second)
	m2 := newTestManager(t, gw, clock)
	stats, err := m2.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover returned error: %v", err)
	}
	if stats != (RecoverStats{Restored: 1, TimedOut: 1}) {
		t.Errorf("stats = %+v, want 1 restored, 1 timed out", stats)
	}

	active := m2.ActiveSessions()
	if len(active) != 1 {
		t.Fatalf("len(ActiveSessions()) = %d, want 1", len(active))
	}
	if active[0].UserID != "alice" || active[0].Submissions != 2 {
		t.Errorf("active = %s with %d submissions, want alice with 2", active[0].UserID, active[0].Submissions)
	}

	rec, err := gw.LoadRecord(ctx, bob.SessionID)
	if err != nil || rec == nil {
		t.Fatalf("LoadRecord(%s) = %v, %v; want bob's record", bob.SessionID, rec, err)
	}
	if rec.Status != string(IdleTimedOut) || rec.EndReason != ReasonRecovered {
		t.Errorf("record = %s/%s, want %s/%s", rec.Status, rec.EndReason, IdleTimedOut, ReasonRecovered)
	}
	if want := t0.Add(DefaultIdleThreshold); !rec.EndedAt.Equal(want) {
		t.Errorf("EndedAt = %v, want %v", rec.EndedAt, want)
	}

	res := mustSubmit(t, m2, "alice", apiKeyCode)
	if !res.Duplicate {
		t.Error("fingerprints should survive a restart")
	}
	if res.Seq != 3 {
		t.Errorf("Seq = %d, want 3", res.Seq)
	}

	final := mustEnd(t, m2, "alice")
	if final.BestScore != 72 || final.DuplicateSubmissions != 1 {
		t.Errorf("record = best %d, %d duplicate; want 72, 1", final.BestScore, final.DuplicateSubmissions)
	}

	cps, err := gw.ListCheckpoints(ctx)
	if err != nil {
		t.Fatalf("ListCheckpoints returned error: %v", err)
	}
	if len(cps) != 0 {
		t.Errorf("len(checkpoints) = %d, want 0", len(cps))
	}
}

func TestRecover_WritesTerminalCheckpoint(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	clock := newFakeClock()
	m1 := newTestManager(t, gw, clock)

	h := mustStart(t, m1, "carol")
	mustSubmit(t, m1, "carol", apiKeyCode)

	gw.setFailures(-1)
	if _, err := m1.EndSession(ctx, "carol", ""); !errors.Is(err, ErrPersistenceTimeout) {
		t.Fatalf("err = %v, want ErrPersistenceTimeout", err)
	}

	// m1 dies with the record still queued.
	gw.setFailures(0)
	m2 := newTestManager(t, gw, clock)
	stats, err := m2.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover returned error: %v", err)
	}
	if stats != (RecoverStats{Completed: 1}) {
		t.Errorf("stats = %+v, want 1 completed", stats)
	}
	if len(m2.ActiveSessions()) != 0 || gw.checkpointCount() != 0 {
		t.Errorf("after recover: %d active, %d checkpoints; want 0, 0", len(m2.ActiveSessions()), gw.checkpointCount())
	}

	rec, err := gw.LoadRecord(ctx, h.SessionID)
	if err != nil || rec == nil {
		t.Fatalf("LoadRecord(%s) = %v, %v; want the record", h.SessionID, rec, err)
	}
	if rec.Status != string(Ended) || rec.FinalScore != 72 {
		t.Errorf("record = %s %d, want ENDED 72", rec.Status, rec.FinalScore)
	}
}

func TestRecover_UnwrittenRecordSurvivesNewSession(t *testing.T) {
	ctx := context.Background()
	gw, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sec360.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore returned error: %v", err)
	}
	defer gw.Close()

	clock := newFakeClock()
	failing := &failingGateway{Gateway: gw}
	m1 := newTestManager(t, failing, clock)

	old := mustStart(t, m1, "dana")
	mustSubmit(t, m1, "dana", apiKeyCode)
	failing.fail = true
	if _, err := m1.EndSession(ctx, "dana", ""); !errors.Is(err, ErrPersistenceTimeout) {
		t.Fatalf("err = %v, want ErrPersistenceTimeout", err)
	}
	clock.Advance(time.Second)
	next := mustStart(t, m1, "dana")

	cps, err := gw.ListCheckpoints(ctx)
	if err != nil {
		t.Fatalf("ListCheckpoints returned error: %v", err)
	}
	if len(cps) != 2 {
		t.Fatalf("len(checkpoints) = %d, want 2 (ended and new session)", len(cps))
	}

	// m1 dies; the store works again after the restart.
	m2 := newTestManager(t, gw, clock)
	stats, err := m2.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover returned error: %v", err)
	}
	if stats != (RecoverStats{Restored: 1, Completed: 1}) {
		t.Errorf("stats = %+v, want 1 restored, 1 completed", stats)
	}

	rec, err := gw.LoadRecord(ctx, old.SessionID)
	if err != nil || rec == nil {
		t.Fatalf("LoadRecord(%s) = %v, %v; want the ended session's record", old.SessionID, rec, err)
	}
	if rec.Status != string(Ended) || rec.FinalScore != 72 {
		t.Errorf("record = %s %d, want ENDED 72", rec.Status, rec.FinalScore)
	}

	active := m2.ActiveSessions()
	if len(active) != 1 || active[0].SessionID != next.SessionID {
		t.Errorf("active = %+v, want only %s", active, next.SessionID)
	}
}

func TestRecover_ClosesSupersededActiveCheckpoint(t *testing.T) {
	ctx := context.Background()
	gw := newMemGateway()
	clock := newFakeClock()
	t0 := clock.Now()

	older := newState("erik", "erik-1", t0)
	newer := newState("erik", "erik-2", t0.Add(time.Minute))
	for _, st := range []*State{older, newer} {
		if err := gw.SaveCheckpoint(ctx, st.checkpoint()); err != nil {
			t.Fatalf("SaveCheckpoint(%s) returned error: %v", st.SessionID, err)
		}
	}

	clock.Advance(2 * time.Minute)
	m := newTestManager(t, gw, clock)
	stats, err := m.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover returned error: %v", err)
	}
	if stats != (RecoverStats{Restored: 1, TimedOut: 1}) {
		t.Errorf("stats = %+v, want 1 restored, 1 timed out", stats)
	}

	active := m.ActiveSessions()
	if len(active) != 1 || active[0].SessionID != "erik-2" {
		t.Errorf("active = %+v, want only erik-2", active)
	}
	rec, err := gw.LoadRecord(ctx, "erik-1")
	if err != nil || rec == nil {
		t.Fatalf("LoadRecord(erik-1) = %v, %v; want the superseded session's record", rec, err)
	}
	if rec.Status != string(IdleTimedOut) || rec.EndReason != ReasonRecovered || !rec.EndedAt.Equal(t0) {
		t.Errorf("record = %s/%s ended %v, want %s/%s ended %v",
			rec.Status, rec.EndReason, rec.EndedAt, IdleTimedOut, ReasonRecovered, t0)
	}
	if n := gw.checkpointCount(); n != 1 {
		t.Errorf("checkpointCount() = %d, want 1", n)
	}
}

func TestRecover_Empty(t *testing.T) {
	m := newTestManager(t, newMemGateway(), newFakeClock())
	stats, err := m.Recover(context.Background())
	if err != nil {
		t.Fatalf("Recover returned error: %v", err)
	}
	if stats != (RecoverStats{}) {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

// failingGateway fails record writes while fail is set.
type failingGateway struct {
	store.Gateway
	fail bool
}

func (g *failingGateway) AppendRecord(ctx context.Context, rec *store.Record) error {
	if g.fail {
		return errDiskUnavailable
	}
	return g.Gateway.AppendRecord(ctx, rec)
}
