// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package summarize produces methodology summaries of extracted paper
// text through an OpenAI-compatible chat endpoint.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/pdiddy/arxiv-crawler/pkg/types"
)

const (
	// maxPromptChars caps how much extracted text goes into the
	// prompt, to stay within model context limits.
	maxPromptChars = 15000

	maxResponseTokens = 2048
	temperature       = 0.3
)

const systemPrompt = "You are an expert research analyst. You extract detailed, " +
	"technical methodology summaries from academic papers."

// Client generates summaries for papers.
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

// Summarize generates a structured methodology summary from the paper's
// extracted text. Failures are reported as SummarizeError.
func (c *Client) Summarize(ctx context.Context, paper *types.Paper, text string) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(paper, text)),
		},
		MaxTokens:   openai.Int(maxResponseTokens),
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", &types.SummarizeError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &types.SummarizeError{Err: fmt.Errorf("no response choices returned")}
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", &types.SummarizeError{Err: fmt.Errorf("empty summary returned")}
	}
	return summary, nil
}

// buildPrompt assembles the summarization prompt from the paper metadata
// and its extracted text.
func buildPrompt(paper *types.Paper, text string) string {
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}

	var b strings.Builder
	b.WriteString("Analyze the following research paper and extract a detailed summary of its methodology.\n\n")
	fmt.Fprintf(&b, "**Paper Title:** %s\n\n", paper.Title)
	fmt.Fprintf(&b, "**Abstract:**\n%s\n\n", paper.Abstract)
	fmt.Fprintf(&b, "**Full Paper Text:**\n%s\n\n---\n\n", text)
	b.WriteString(`Provide a comprehensive summary with the following structure:

1. **Research Objective**: What problem is the paper trying to solve?
2. **Methodology Overview**: What approach does the paper take?
3. **Key Techniques**: What specific techniques, algorithms, or methods are used?
4. **Implementation Details**: Platforms, parameter settings, computational resources.
5. **Evaluation Approach**: Benchmarks, baselines, and metrics used.
6. **Key Results**: The main quantitative findings.
7. **Key Contributions**: The 3-5 key contributions, as bullet points.
8. **Limitations**: What limitations do the authors acknowledge?

Be specific and technical. Extract concrete details like parameter values, equations, and algorithm steps.`)
	return b.String()
}
