package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information (set by build flags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sec360",
	Short: "Sensitive data detection and risk scoring",
	Long: `sec360 - Sensitive data detection and risk scoring

Finds credentials, personal data and other sensitive values in code that is
about to be shared, scores the risk from 0 to 100, and tracks practice
sessions per user so progress can be measured over time.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file path (YAML)")
	rootCmd.PersistentFlags().String("db", "", "Session record database path (overrides config)")
	rootCmd.PersistentFlags().String("catalog", "", "Pattern catalog path (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sec360 %s (commit: %s, built: %s)\n", version, commit, date)
	},
}
