package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxiv-crawler/internal/ocr"
	"github.com/pdiddy/arxiv-crawler/internal/secrets"
)

// ocrCmd extracts text from a local PDF without touching the store.
// Useful for inspecting OCR quality on a single file.
var ocrCmd = &cobra.Command{
	Use:   "ocr <file.pdf>",
	Short: "Extract text from a local PDF file",
	Args:  cobra.ExactArgs(1),
	RunE:  runOcr,
}

func init() {
	ocrCmd.Flags().Int("max-pages", 20, "maximum PDF pages to OCR")
	ocrCmd.Flags().String("output", "", "write extracted text to this file instead of stdout")
	ocrCmd.Flags().String("ocr-model", "", "OCR model identifier")
	ocrCmd.Flags().String("ocr-base-url", "", "OCR API base URL")

	rootCmd.AddCommand(ocrCmd)
}

func runOcr(cmd *cobra.Command, args []string) error {
	pdfPath := args[0]
	maxPages, _ := cmd.Flags().GetInt("max-pages")
	output, _ := cmd.Flags().GetString("output")

	if maxPages <= 0 {
		return fmt.Errorf("max-pages must be positive")
	}

	client := ocr.New(aiConfig(cmd, "ocr", secrets.KeyOcrAPIKey))

	total, err := client.PageCount(pdfPath)
	if err != nil {
		return err
	}
	pages := total
	if pages > maxPages {
		pages = maxPages
	}

	var texts []string
	for page := 1; page <= pages; page++ {
		fmt.Fprintf(os.Stderr, "ocr: page %d/%d\n", page, pages)
		text, err := client.ExtractPage(cmd.Context(), pdfPath, page)
		if err != nil {
			return err
		}
		texts = append(texts, text)
	}
	combined := strings.Join(texts, "\n\n--- Page Break ---\n\n")

	if output == "" {
		fmt.Println(combined)
		return nil
	}
	if err := os.WriteFile(output, []byte(combined), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d pages)\n", output, pages)
	return nil
}
