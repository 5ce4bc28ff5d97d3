package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/arxiv-crawler/internal/export"
	"github.com/pdiddy/arxiv-crawler/internal/store"
	"github.com/pdiddy/arxiv-crawler/pkg/types"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render papers from the store to Markdown documents",
	Long: `Export renders one Markdown document per paper, containing its
metadata, summary, and extracted text. With --summary it also writes an
aggregate index document. Export is idempotent: re-running it over an
unchanged store produces byte-identical files.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().Bool("processed-only", false, "export only papers that reached summarization")
	exportCmd.Flags().Bool("summary", false, "also write an aggregate index document")
	exportCmd.Flags().Int("limit", 0, "maximum number of papers to export (0 = no limit)")
	exportCmd.Flags().String("output-dir", "", "directory for rendered documents (default: papers_output)")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	processedOnly, _ := cmd.Flags().GetBool("processed-only")
	withSummary, _ := cmd.Flags().GetBool("summary")
	limit, _ := cmd.Flags().GetInt("limit")

	outputDir, _ := cmd.Flags().GetString("output-dir")
	if outputDir == "" {
		outputDir = viper.GetString("export.output_dir")
	}

	st, err := store.Open(dbPath(cmd))
	if err != nil {
		return err
	}
	defer st.Close()

	cfg := types.ExportConfig{
		OutputDir:     outputDir,
		ProcessedOnly: processedOnly,
		Summary:       withSummary,
		Limit:         limit,
	}

	_, err = export.Run(cmd.Context(), st, cfg, os.Stdout)
	return err
}
