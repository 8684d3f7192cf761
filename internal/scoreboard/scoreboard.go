// Package scoreboard aggregates session records into per-user standings.
//
// Scores are risk scores, so lower is better: the leaderboard ranks users
// by ascending average final score, and a negative trend means the user's
// recent sessions carried less risk than their earlier ones.
package scoreboard

import (
	"math"
	"sort"

	"github.com/0x6d61/sec360/internal/scoring"
	"github.com/0x6d61/sec360/internal/store"
)

// DefaultMinSessions is the number of records a user needs before appearing
// on the leaderboard.
const DefaultMinSessions = 3

// recentWindow is how many of the latest sessions form the "recent" half of
// the trend.
const recentWindow = 3

// Entry is one user's standing.
type Entry struct {
	Rank         int               `json:"rank"`
	UserID       string            `json:"user_id"`
	Sessions     int               `json:"sessions"`
	AverageScore float64           `json:"average_score"`
	LowestScore  int               `json:"lowest_score"`
	HighestScore int               `json:"highest_score"`
	Trend        float64           `json:"trend"`
	LatestLevel  scoring.RiskLevel `json:"latest_level"`
}

// Statistics summarizes every record regardless of user.
type Statistics struct {
	Sessions     int                       `json:"sessions"`
	Users        int                       `json:"users"`
	AverageScore float64                   `json:"average_score"`
	LowestScore  int                       `json:"lowest_score"`
	HighestScore int                       `json:"highest_score"`
	Levels       map[scoring.RiskLevel]int `json:"levels"`
}

// Leaderboard ranks users with at least minSessions records by ascending
// average final score. Ties go to the user with more sessions, then by user
// ID. limit <= 0 returns every qualifying user.
func Leaderboard(records []*store.RecordSummary, minSessions, limit int) []Entry {
	if minSessions < 1 {
		minSessions = 1
	}
	entries := make([]Entry, 0)
	for userID, recs := range byUser(records) {
		if len(recs) < minSessions {
			continue
		}
		entries = append(entries, userEntry(userID, recs))
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.AverageScore != b.AverageScore {
			return a.AverageScore < b.AverageScore
		}
		if a.Sessions != b.Sessions {
			return a.Sessions > b.Sessions
		}
		return a.UserID < b.UserID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// ForUser returns the standing of a single user without the session
// minimum. ok is false when the user has no records. Rank is left zero.
func ForUser(records []*store.RecordSummary, userID string) (Entry, bool) {
	recs := byUser(records)[userID]
	if len(recs) == 0 {
		return Entry{}, false
	}
	return userEntry(userID, recs), true
}

// Summarize computes overall statistics.
func Summarize(records []*store.RecordSummary, thresholds scoring.Thresholds) Statistics {
	st := Statistics{Levels: make(map[scoring.RiskLevel]int)}
	if len(records) == 0 {
		return st
	}
	users := make(map[string]struct{})
	sum := 0
	st.LowestScore = math.MaxInt
	for _, r := range records {
		users[r.UserID] = struct{}{}
		sum += r.FinalScore
		st.LowestScore = min(st.LowestScore, r.FinalScore)
		st.HighestScore = max(st.HighestScore, r.FinalScore)
		st.Levels[thresholds.Level(r.FinalScore)]++
	}
	st.Sessions = len(records)
	st.Users = len(users)
	st.AverageScore = round1(float64(sum) / float64(len(records)))
	return st
}

// byUser groups records per user, each group ordered oldest first.
func byUser(records []*store.RecordSummary) map[string][]*store.RecordSummary {
	out := make(map[string][]*store.RecordSummary)
	for _, r := range records {
		if r == nil {
			continue
		}
		out[r.UserID] = append(out[r.UserID], r)
	}
	for _, recs := range out {
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].EndedAt.Before(recs[j].EndedAt)
		})
	}
	return out
}

func userEntry(userID string, recs []*store.RecordSummary) Entry {
	e := Entry{
		UserID:      userID,
		Sessions:    len(recs),
		LowestScore: math.MaxInt,
		LatestLevel: recs[len(recs)-1].RiskLevel,
	}
	scores := make([]int, len(recs))
	for i, r := range recs {
		scores[i] = r.FinalScore
		e.LowestScore = min(e.LowestScore, r.FinalScore)
		e.HighestScore = max(e.HighestScore, r.FinalScore)
	}
	e.AverageScore = round1(mean(scores))
	e.Trend = trend(scores)
	return e
}

// trend is the mean of the latest sessions minus the mean of the earlier
// ones. It is zero until there are sessions on both sides.
func trend(scores []int) float64 {
	if len(scores) <= recentWindow {
		return 0
	}
	split := len(scores) - recentWindow
	return round1(mean(scores[split:]) - mean(scores[:split]))
}

func mean(v []int) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0
	for _, x := range v {
		sum += x
	}
	return float64(sum) / float64(len(v))
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
