package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/0x6d61/sec360/internal/catalog"
	"github.com/0x6d61/sec360/internal/scoreboard"
	"github.com/0x6d61/sec360/internal/store"
)

const timeLayout = "2006-01-02 15:04:05"

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteRecordList writes one line per record.
func WriteRecordList(w io.Writer, recs []*store.RecordSummary) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "No session records.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSER\tSTATUS\tENDED\tSUBMISSIONS\tFINAL\tBEST\tLEVEL")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.UserID, r.Status, formatTime(r.EndedAt),
			r.TotalSubmissions, r.FinalScore, r.BestScore, r.RiskLevel)
	}
	return tw.Flush()
}

// WriteRecord writes a detailed view of one session record.
func WriteRecord(w io.Writer, rec *store.Record) error {
	b := &strings.Builder{}
	doubleBar := strings.Repeat(doubleLine, lineWidth)
	singleBar := strings.Repeat(singleLine, lineWidth)

	fmt.Fprintln(b, doubleBar)
	fmt.Fprintf(b, "Session %s\n", rec.SessionID)
	fmt.Fprintln(b, doubleBar)
	fmt.Fprintf(b, "User:        %s\n", rec.UserID)
	fmt.Fprintf(b, "Status:      %s (%s)\n", rec.Status, rec.EndReason)
	fmt.Fprintf(b, "Started:     %s\n", formatTime(rec.StartedAt))
	fmt.Fprintf(b, "Ended:       %s\n", formatTime(rec.EndedAt))
	fmt.Fprintf(b, "Submissions: %d (%d duplicate)\n", rec.TotalSubmissions, rec.DuplicateSubmissions)
	fmt.Fprintf(b, "Final score: %d [%s]\n", rec.FinalScore, rec.RiskLevel)
	fmt.Fprintf(b, "Best score:  %d\n", rec.BestScore)
	fmt.Fprintf(b, "Average:     %.2f\n", rec.AverageRiskScore)
	fmt.Fprintf(b, "Totals:      %d lines, %d sensitive fields, %d confirmed\n",
		rec.TotalLines, rec.TotalSensitiveFields, rec.TotalSensitiveData)

	if len(rec.CumulativeFlags) > 0 {
		fmt.Fprintln(b, singleBar)
		fmt.Fprintln(b, "Confirmed flags by category:")
		for _, c := range sortedCategories(rec.CumulativeFlags) {
			fmt.Fprintf(b, "  %-12s %d\n", c, rec.CumulativeFlags[c])
		}
	}

	if len(rec.History) > 0 {
		fmt.Fprintln(b, singleBar)
		fmt.Fprintln(b, "History:")
		for _, sub := range rec.History {
			score := 0
			if sub.Breakdown != nil {
				score = sub.Breakdown.FinalScore
			}
			dup := ""
			if sub.Duplicate {
				dup = " (duplicate)"
			}
			fmt.Fprintf(b, "  #%-3d %s  score %3d  fields %d  confirmed %d%s\n",
				sub.Seq, formatTime(sub.SubmittedAt), score, sub.FieldCount, sub.DataCount, dup)
		}
	}
	fmt.Fprintln(b, doubleBar)

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteLeaderboard writes the ranked entries as a table.
func WriteLeaderboard(w io.Writer, entries []scoreboard.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No users qualify for the leaderboard yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tUSER\tSESSIONS\tAVERAGE\tLOWEST\tHIGHEST\tTREND\tLATEST")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.1f\t%d\t%d\t%+.1f\t%s\n",
			e.Rank, e.UserID, e.Sessions, e.AverageScore,
			e.LowestScore, e.HighestScore, e.Trend, e.LatestLevel)
	}
	return tw.Flush()
}

func sortedCategories(m map[catalog.Category]int) []catalog.Category {
	out := make([]catalog.Category, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index() < out[j].Index() })
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}
