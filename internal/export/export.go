// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export renders papers from the store to Markdown documents.
// Rendering is deterministic: the output depends only on stored paper
// fields, never on the clock, so re-running an export over an unchanged
// store produces byte-identical files.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/arxiv-crawler/internal/store"
	"github.com/pdiddy/arxiv-crawler/pkg/types"
)

const indexFile = "index.md"

// Summary holds the counts from one export run.
type Summary struct {
	Exported  int
	IndexPath string
}

// frontMatter is the YAML block at the top of each rendered document.
// Only immutable metadata goes here so re-exports stay byte-identical.
type frontMatter struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title"`
	Authors    []string `yaml:"authors"`
	Categories []string `yaml:"categories,omitempty"`
	Published  string   `yaml:"published,omitempty"`
	SourceURL  string   `yaml:"source_url"`
	PDFURL     string   `yaml:"pdf_url"`
}

// Run renders matching papers to cfg.OutputDir, one document per paper,
// plus an aggregate index when cfg.Summary is set. Papers that finished
// summarization are marked exported; papers already exported are
// re-rendered without any store write.
func Run(ctx context.Context, st *store.Store, cfg types.ExportConfig, w io.Writer) (Summary, error) {
	if cfg.OutputDir == "" {
		return Summary{}, &types.ConfigError{Param: "output-dir", Reason: "must not be empty"}
	}

	filter := store.Filter{Limit: cfg.Limit}
	if cfg.ProcessedOnly {
		filter.Statuses = []types.Status{types.StatusSummarized, types.StatusExported}
	}

	papers, err := st.List(ctx, filter)
	if err != nil {
		return Summary{}, fmt.Errorf("listing papers: %w", err)
	}
	if len(papers) == 0 {
		fmt.Fprintln(w, "No papers to export.")
		return Summary{}, nil
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("creating output directory: %w", err)
	}

	var summary Summary
	for _, p := range papers {
		path := filepath.Join(cfg.OutputDir, DocumentName(p))
		content, err := renderPaper(p)
		if err != nil {
			return summary, fmt.Errorf("rendering %s: %w", p.ID, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return summary, fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Fprintf(w, "exported: %s\n", filepath.Base(path))
		summary.Exported++

		if p.Status == types.StatusSummarized {
			err := st.UpdateStatus(ctx, p.ID, types.StatusSummarized, types.StatusExported, nil)
			var conflict *types.ConflictError
			if err != nil && !errors.As(err, &conflict) {
				return summary, fmt.Errorf("marking %s exported: %w", p.ID, err)
			}
		}
	}

	if cfg.Summary {
		path := filepath.Join(cfg.OutputDir, indexFile)
		if err := os.WriteFile(path, []byte(renderIndex(papers)), 0o644); err != nil {
			return summary, fmt.Errorf("writing index: %w", err)
		}
		summary.IndexPath = path
		fmt.Fprintf(w, "exported: %s\n", indexFile)
	}

	fmt.Fprintf(w, "\nExport summary: %d documents\n", summary.Exported)
	return summary, nil
}

// DocumentName returns the output file name for a paper:
// the arXiv ID plus a sanitized title slug.
func DocumentName(p *types.Paper) string {
	id := strings.ReplaceAll(p.ID, "/", "-")
	title := sanitizeTitle(p.Title)
	if title == "" {
		return id + ".md"
	}
	return id + "_" + title + ".md"
}

// sanitizeTitle keeps alphanumerics, hyphens, and underscores, replaces
// spaces with underscores, and caps the length at 50 characters.
func sanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	s := b.String()
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}

func renderPaper(p *types.Paper) (string, error) {
	fm := frontMatter{
		ID:         p.ID,
		Title:      p.Title,
		Authors:    p.Authors,
		Categories: p.Categories,
		SourceURL:  p.SourceURL,
		PDFURL:     p.PDFURL,
	}
	if !p.Published.IsZero() {
		fm.Published = p.Published.UTC().Format(time.DateOnly)
	}
	fmData, err := yaml.Marshal(&fm)
	if err != nil {
		return "", fmt.Errorf("marshaling front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fmData)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", p.Title)

	fmt.Fprintf(&b, "## Abstract\n\n%s\n", orNone(p.Abstract, "No abstract available."))

	if p.Summary != "" {
		fmt.Fprintf(&b, "\n---\n\n## Summary\n\n%s\n", p.Summary)
	}

	if p.ExtractedText != "" {
		fmt.Fprintf(&b, "\n---\n\n## Extracted Text\n\n*%d page(s) processed.*\n\n%s\n",
			p.PageCount, p.ExtractedText)
	}

	return b.String(), nil
}

func renderIndex(papers []*types.Paper) string {
	var b strings.Builder
	b.WriteString("# Paper Index\n\n")
	fmt.Fprintf(&b, "%d paper(s).\n\n", len(papers))
	b.WriteString("| ID | Title | Published |\n")
	b.WriteString("| --- | --- | --- |\n")
	for _, p := range papers {
		published := ""
		if !p.Published.IsZero() {
			published = p.Published.UTC().Format(time.DateOnly)
		}
		fmt.Fprintf(&b, "| %s | [%s](%s) | %s |\n",
			p.ID, escapeTableCell(p.Title), DocumentName(p), published)
	}
	return b.String()
}

func escapeTableCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func orNone(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
