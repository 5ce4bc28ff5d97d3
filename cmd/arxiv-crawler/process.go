package main

import (
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/arxiv-crawler/internal/httputil"
	"github.com/pdiddy/arxiv-crawler/internal/ocr"
	"github.com/pdiddy/arxiv-crawler/internal/process"
	"github.com/pdiddy/arxiv-crawler/internal/secrets"
	"github.com/pdiddy/arxiv-crawler/internal/store"
	"github.com/pdiddy/arxiv-crawler/internal/summarize"
	"github.com/pdiddy/arxiv-crawler/pkg/types"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Download, OCR, and summarize pending papers",
	Long: `Process advances a bounded batch of papers through download, OCR, and
summarization. Each paper is handled by its own worker; a failure is
recorded against that paper alone and retried from the failed stage on
the next run. Individual paper failures do not fail the command.`,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().Int("batch-size", 5, "maximum number of papers to process this run")
	processCmd.Flags().Int("max-pages", 20, "maximum PDF pages to OCR per paper")
	processCmd.Flags().String("papers-dir", "", "directory for downloaded PDFs (default: papers)")
	processCmd.Flags().Duration("timeout", defaultTimeout, "HTTP request timeout for downloads")
	processCmd.Flags().String("ocr-model", "", "OCR model identifier")
	processCmd.Flags().String("ocr-base-url", "", "OCR API base URL")
	processCmd.Flags().String("summary-model", "", "summarization model identifier")
	processCmd.Flags().String("summary-base-url", "", "summarization API base URL")

	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	maxPages, _ := cmd.Flags().GetInt("max-pages")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	papersDir, _ := cmd.Flags().GetString("papers-dir")
	if papersDir == "" {
		papersDir = viper.GetString("process.papers_dir")
	}

	cfg := types.ProcessConfig{
		HTTPConfig: types.HTTPConfig{Timeout: timeout, UserAgent: defaultUserAgent},
		BatchSize:  batchSize,
		MaxPages:   maxPages,
		PapersDir:  papersDir,
		OCR:        aiConfig(cmd, "ocr", secrets.KeyOcrAPIKey),
		Summary:    aiConfig(cmd, "summary", secrets.KeySummaryAPIKey),
	}

	st, err := store.Open(dbPath(cmd))
	if err != nil {
		return err
	}
	defer st.Close()

	deps := process.Deps{
		Downloader: &process.HTTPDownloader{
			Client: &httputil.Client{
				HTTP:      &http.Client{Timeout: cfg.Timeout},
				UserAgent: cfg.UserAgent,
			},
		},
		OCR:        ocr.New(cfg.OCR),
		Summarizer: summarize.New(cfg.Summary),
	}

	_, err = process.Run(cmd.Context(), st, deps, cfg, os.Stdout)
	return err
}

// aiConfig resolves an AI endpoint's settings: flag, then config file,
// with the API key coming from .secrets/.
func aiConfig(cmd *cobra.Command, name, secretKey string) types.AIConfig {
	model, _ := cmd.Flags().GetString(name + "-model")
	if model == "" {
		model = viper.GetString("process." + name + ".model")
	}
	baseURL, _ := cmd.Flags().GetString(name + "-base-url")
	if baseURL == "" {
		baseURL = viper.GetString("process." + name + ".base_url")
	}
	return types.AIConfig{
		Model:   model,
		BaseURL: baseURL,
		APIKey:  secretDefault(secretKey, viper.GetString("process."+name+".api_key")),
	}
}
