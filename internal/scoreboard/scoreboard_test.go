package scoreboard

import (
	"testing"
	"time"

	"github.com/0x6d61/sec360/internal/scoring"
	"github.com/0x6d61/sec360/internal/store"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// sessions builds one record per score, oldest first.
func sessions(user string, scores ...int) []*store.RecordSummary {
	th := scoring.DefaultThresholds()
	out := make([]*store.RecordSummary, len(scores))
	for i, s := range scores {
		out[i] = &store.RecordSummary{
			ID:         user + "-" + string(rune('a'+i)),
			UserID:     user,
			EndedAt:    base.Add(time.Duration(i) * time.Hour),
			FinalScore: s,
			RiskLevel:  th.Level(s),
		}
	}
	return out
}

func concat(groups ...[]*store.RecordSummary) []*store.RecordSummary {
	var out []*store.RecordSummary
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func TestLeaderboard_RanksByAscendingAverage(t *testing.T) {
	records := concat(
		sessions("alice", 80, 60, 40),
		sessions("bob", 10, 20, 30),
		sessions("carol", 90, 90),    // too few sessions
		sessions("dave", 20, 20, 20), // same average as bob, same count
	)

	got := Leaderboard(records, DefaultMinSessions, 0)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(got), got)
	}
	wantOrder := []string{"bob", "dave", "alice"}
	for i, id := range wantOrder {
		if got[i].UserID != id {
			t.Errorf("entry %d = %s, want %s", i, got[i].UserID, id)
		}
		if got[i].Rank != i+1 {
			t.Errorf("entry %d rank = %d, want %d", i, got[i].Rank, i+1)
		}
	}

	alice := got[2]
	if alice.AverageScore != 60 || alice.LowestScore != 40 || alice.HighestScore != 80 {
		t.Errorf("alice = %+v", alice)
	}
	if alice.LatestLevel != scoring.Medium {
		t.Errorf("alice latest level = %s, want MEDIUM", alice.LatestLevel)
	}
}

func TestLeaderboard_TieBreakOnSessions(t *testing.T) {
	records := concat(
		sessions("zoe", 30, 30, 30, 30),
		sessions("amy", 30, 30, 30),
	)
	got := Leaderboard(records, 3, 0)
	if got[0].UserID != "zoe" {
		t.Errorf("first = %s, want zoe (more sessions)", got[0].UserID)
	}
}

func TestLeaderboard_Limit(t *testing.T) {
	records := concat(
		sessions("a", 1, 1, 1),
		sessions("b", 2, 2, 2),
		sessions("c", 3, 3, 3),
	)
	got := Leaderboard(records, 3, 2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].UserID != "b" || got[1].Rank != 2 {
		t.Errorf("second = %+v", got[1])
	}
}

func TestLeaderboard_Empty(t *testing.T) {
	got := Leaderboard(nil, 3, 10)
	if got == nil || len(got) != 0 {
		t.Errorf("Leaderboard(nil) = %v, want empty non-nil", got)
	}
}

func TestLeaderboard_OrderIndependent(t *testing.T) {
	recs := sessions("eve", 90, 80, 10, 10, 10)
	// Reverse input order; trend must still use EndedAt.
	rev := make([]*store.RecordSummary, len(recs))
	for i, r := range recs {
		rev[len(recs)-1-i] = r
	}
	got := Leaderboard(rev, 3, 0)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Trend != -75 {
		t.Errorf("trend = %v, want -75", got[0].Trend)
	}
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name   string
		scores []int
		want   float64
	}{
		{"empty", nil, 0},
		{"only recent window", []int{50, 40, 30}, 0},
		{"improving", []int{80, 70, 20, 20, 20}, -55},
		{"worsening", []int{10, 50, 50, 50}, 40},
		{"rounded", []int{0, 1, 0, 1}, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trend(tt.scores); got != tt.want {
				t.Errorf("trend(%v) = %v, want %v", tt.scores, got, tt.want)
			}
		})
	}
}

func TestForUser(t *testing.T) {
	records := concat(sessions("amy", 40), sessions("bob", 10, 20, 30))

	e, ok := ForUser(records, "amy")
	if !ok {
		t.Fatal("ForUser(amy) not found")
	}
	if e.Sessions != 1 || e.AverageScore != 40 || e.Rank != 0 {
		t.Errorf("ForUser(amy) = %+v", e)
	}

	if _, ok := ForUser(records, "nobody"); ok {
		t.Error("ForUser(nobody) should not be found")
	}
}

func TestSummarize(t *testing.T) {
	records := concat(sessions("a", 10, 95), sessions("b", 50))
	st := Summarize(records, scoring.DefaultThresholds())

	if st.Sessions != 3 || st.Users != 2 {
		t.Errorf("sessions/users = %d/%d, want 3/2", st.Sessions, st.Users)
	}
	if st.AverageScore != 51.7 {
		t.Errorf("AverageScore = %v, want 51.7", st.AverageScore)
	}
	if st.LowestScore != 10 || st.HighestScore != 95 {
		t.Errorf("lowest/highest = %d/%d, want 10/95", st.LowestScore, st.HighestScore)
	}
	wantLevels := map[scoring.RiskLevel]int{scoring.Low: 1, scoring.Medium: 1, scoring.Critical: 1}
	for lvl, n := range wantLevels {
		if st.Levels[lvl] != n {
			t.Errorf("Levels[%s] = %d, want %d", lvl, st.Levels[lvl], n)
		}
	}
}

func TestSummarize_Empty(t *testing.T) {
	st := Summarize(nil, scoring.DefaultThresholds())
	if st.Sessions != 0 || st.LowestScore != 0 || st.Levels == nil {
		t.Errorf("Summarize(nil) = %+v", st)
	}
}
