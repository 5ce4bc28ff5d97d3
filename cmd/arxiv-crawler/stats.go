package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxiv-crawler/internal/stats"
	"github.com/pdiddy/arxiv-crawler/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show paper counts per status and recent activity",
	Long: `Stats reports how many papers sit in each pipeline status, plus a
detail listing of the most recently updated papers. It never modifies
the store, so failed papers stay inspectable here until retried.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().Int("recent", 0, "number of most recently updated papers to detail")
	statsCmd.Flags().Bool("json", false, "output the report as JSON")

	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	recent, _ := cmd.Flags().GetInt("recent")
	asJSON, _ := cmd.Flags().GetBool("json")

	st, err := store.Open(dbPath(cmd))
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := stats.Collect(cmd.Context(), st, recent)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	stats.Format(report, os.Stdout)
	return nil
}
