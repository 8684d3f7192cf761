package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0x6d61/sec360/internal/report"
	"github.com/0x6d61/sec360/internal/scoreboard"
	"github.com/0x6d61/sec360/internal/store"
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Rank users by average session risk (lower is better)",
	Args:  cobra.NoArgs,
	RunE:  runLeaderboard,
}

func init() {
	rootCmd.AddCommand(leaderboardCmd)
	leaderboardCmd.Flags().Int("limit", 10, "Number of entries to show (0 = all)")
	leaderboardCmd.Flags().Int("min-sessions", 0, "Sessions required to be ranked (default from config)")
	leaderboardCmd.Flags().String("user", "", "Show the standing of one user instead of the ranking")
	leaderboardCmd.Flags().Bool("json", false, "Output JSON")
}

type leaderboardOutput struct {
	MinSessions int                   `json:"min_sessions"`
	Entries     []scoreboard.Entry    `json:"entries"`
	Statistics  scoreboard.Statistics `json:"statistics"`
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	minSessions, _ := cmd.Flags().GetInt("min-sessions")
	user, _ := cmd.Flags().GetString("user")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if minSessions <= 0 {
		minSessions = cfg.Leaderboard.MinSessions
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.ListRecords(cmd.Context(), store.RecordFilter{})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if user != "" {
		entry, ok := scoreboard.ForUser(recs, user)
		if !ok {
			return fmt.Errorf("no records for user %q", user)
		}
		if asJSON {
			return report.WriteJSON(out, entry)
		}
		return report.WriteLeaderboard(out, []scoreboard.Entry{entry})
	}

	entries := scoreboard.Leaderboard(recs, minSessions, limit)
	if asJSON {
		return report.WriteJSON(out, leaderboardOutput{
			MinSessions: minSessions,
			Entries:     entries,
			Statistics:  scoreboard.Summarize(recs, cfg.Scoring.Thresholds),
		})
	}
	return report.WriteLeaderboard(out, entries)
}
