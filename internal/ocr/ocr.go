// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ocr extracts text from PDF pages with a vision model behind an
// OpenAI-compatible endpoint. Pages are split out of the PDF with pdfcpu
// and sent to the model one at a time as base64 data URLs.
package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/pdiddy/arxiv-crawler/pkg/types"
)

// extractPrompt instructs the vision model how to transcribe a page.
const extractPrompt = "Extract the text from the above document as if you were reading it naturally. " +
	"Return the tables in html format. Return the equations in LaTeX representation. " +
	"If there is an image in the document and image caption is not present, add a small description " +
	"of the image inside the <img></img> tag; otherwise, add the image caption inside <img></img>. " +
	"Watermarks should be wrapped in brackets. Ex: <watermark>OFFICIAL COPY</watermark>. " +
	"Page numbers should be wrapped in brackets. Ex: <page_number>14</page_number> or <page_number>9/22</page_number>."

const maxResponseTokens = 2048

// Client performs OCR through a vision model.
type Client struct {
	api   openai.Client
	model string
}

// New builds a Client for the configured endpoint.
func New(cfg types.AIConfig) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		api:   openai.NewClient(opts...),
		model: cfg.Model,
	}
}

// PageCount returns the number of pages in the PDF at pdfPath.
func (c *Client) PageCount(pdfPath string) (int, error) {
	n, err := api.PageCountFile(pdfPath)
	if err != nil {
		return 0, &types.OcrError{Err: fmt.Errorf("counting pages of %s: %w", filepath.Base(pdfPath), err)}
	}
	return n, nil
}

// ExtractPage extracts the text of one page (1-based) from the PDF at
// pdfPath. Failures are reported as OcrError carrying the page number.
func (c *Client) ExtractPage(ctx context.Context, pdfPath string, page int) (string, error) {
	pageData, err := extractPagePDF(pdfPath, page)
	if err != nil {
		return "", &types.OcrError{Page: page, Err: err}
	}

	dataURL := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pageData)

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a helpful OCR assistant."),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(extractPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		MaxTokens:   openai.Int(maxResponseTokens),
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", &types.OcrError{Page: page, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &types.OcrError{Page: page, Err: fmt.Errorf("no response choices returned")}
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// extractPagePDF splits a single page out of the PDF and returns it as a
// standalone PDF document.
func extractPagePDF(pdfPath string, page int) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "ocr-page-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := api.ExtractPagesFile(pdfPath, tmpDir, []string{strconv.Itoa(page)}, nil); err != nil {
		return nil, fmt.Errorf("extracting page %d: %w", page, err)
	}

	// pdfcpu writes exactly one file for a single-page selection; pick
	// it up by listing rather than guessing its name.
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, fmt.Errorf("reading temp directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pdf") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(tmpDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading extracted page: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("no page file produced for page %d", page)
}
