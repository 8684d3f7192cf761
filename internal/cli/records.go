package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0x6d61/sec360/internal/report"
	"github.com/0x6d61/sec360/internal/store"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect stored session records",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List session records, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRecordsList,
}

var recordsShowCmd = &cobra.Command{
	Use:   "show <record-id>",
	Short: "Show one session record with its submission history",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecordsShow,
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsListCmd, recordsShowCmd)

	recordsListCmd.Flags().String("user", "", "Only list records of this user")
	recordsListCmd.Flags().Int("limit", 20, "Maximum number of records (0 = all)")
	recordsListCmd.Flags().Bool("json", false, "Output JSON")

	recordsShowCmd.Flags().Bool("json", false, "Output JSON")
}

func runRecordsList(cmd *cobra.Command, args []string) error {
	user, _ := cmd.Flags().GetString("user")
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.ListRecords(cmd.Context(), store.RecordFilter{UserID: user, Limit: limit})
	if err != nil {
		return err
	}
	if asJSON {
		if recs == nil {
			recs = []*store.RecordSummary{}
		}
		return report.WriteJSON(cmd.OutOrStdout(), recs)
	}
	return report.WriteRecordList(cmd.OutOrStdout(), recs)
}

func runRecordsShow(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.LoadRecord(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("record %q not found", args[0])
	}
	if asJSON {
		return report.WriteJSON(cmd.OutOrStdout(), rec)
	}
	return report.WriteRecord(cmd.OutOrStdout(), rec)
}
