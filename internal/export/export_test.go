// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/arxiv-crawler/internal/store"
	"github.com/pdiddy/arxiv-crawler/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) (*store.Store, types.ExportConfig) {
	t.Helper()
	tmpDir := t.TempDir()

	st, err := store.Open(filepath.Join(tmpDir, "papers.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := types.ExportConfig{OutputDir: filepath.Join(tmpDir, "out")}
	return st, cfg
}

// seedSummarized stores a paper and walks it to the summarized state
// with extracted text and a summary attached.
func seedSummarized(t *testing.T, st *store.Store, id string) {
	t.Helper()
	ctx := context.Background()

	p := &types.Paper{
		ID:        id,
		Title:     "Paper " + id,
		Authors:   []string{"A. Author"},
		Abstract:  "An abstract.",
		Published: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		SourceURL: "https://arxiv.org/abs/" + id,
		PDFURL:    "https://arxiv.org/pdf/" + id,
	}
	if _, err := st.Upsert(ctx, p); err != nil {
		t.Fatal(err)
	}

	steps := []types.Status{
		types.StatusDownloading, types.StatusDownloaded,
		types.StatusOcrRunning, types.StatusOcrDone,
		types.StatusSummarizing, types.StatusSummarized,
	}
	prev := types.StatusDiscovered
	for _, next := range steps {
		var patch *store.Patch
		switch next {
		case types.StatusOcrDone:
			text := "extracted text of " + id
			pages := 3
			patch = &store.Patch{ExtractedText: &text, PageCount: &pages}
		case types.StatusSummarized:
			summary := "summary of " + id
			patch = &store.Patch{Summary: &summary}
		}
		if err := st.UpdateStatus(ctx, id, prev, next, patch); err != nil {
			t.Fatal(err)
		}
		prev = next
	}
}

func seedDiscovered(t *testing.T, st *store.Store, id string) {
	t.Helper()
	p := &types.Paper{ID: id, Title: "Paper " + id}
	if _, err := st.Upsert(context.Background(), p); err != nil {
		t.Fatal(err)
	}
}

func runExport(t *testing.T, st *store.Store, cfg types.ExportConfig) Summary {
	t.Helper()
	var out bytes.Buffer
	summary, err := Run(context.Background(), st, cfg, &out)
	if err != nil {
		t.Fatalf("Run: %v\noutput:\n%s", err, out.String())
	}
	return summary
}

// --- tests ---

func TestRunExportsDocuments(t *testing.T) {
	st, cfg := testSetup(t)
	seedSummarized(t, st, "2401.00001")

	summary := runExport(t, st, cfg)
	if summary.Exported != 1 {
		t.Fatalf("exported = %d, want 1", summary.Exported)
	}

	path := filepath.Join(cfg.OutputDir, "2401.00001_Paper_240100001.md")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	for _, fragment := range []string{
		"---\n",
		"id: 2401.00001",
		"title: Paper 2401.00001",
		"published: \"2024-01-15\"",
		"# Paper 2401.00001",
		"## Abstract",
		"An abstract.",
		"## Summary",
		"summary of 2401.00001",
		"## Extracted Text",
		"*3 page(s) processed.*",
	} {
		if !strings.Contains(content, fragment) {
			t.Errorf("document missing %q", fragment)
		}
	}
}

func TestRunMarksExported(t *testing.T) {
	st, cfg := testSetup(t)
	seedSummarized(t, st, "2401.00001")

	runExport(t, st, cfg)

	p, err := st.Get(context.Background(), "2401.00001")
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != types.StatusExported {
		t.Errorf("status = %s, want %s", p.Status, types.StatusExported)
	}
}

func TestRunProcessedOnly(t *testing.T) {
	st, cfg := testSetup(t)
	seedSummarized(t, st, "a")
	seedSummarized(t, st, "b")
	seedDiscovered(t, st, "c")

	cfg.ProcessedOnly = true
	summary := runExport(t, st, cfg)
	if summary.Exported != 2 {
		t.Errorf("exported = %d, want only processed papers", summary.Exported)
	}

	entries, err := os.ReadDir(cfg.OutputDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("output dir has %d files, want 2", len(entries))
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "c") {
			t.Errorf("unprocessed paper exported: %s", e.Name())
		}
	}
}

func TestRunRepeatByteIdentical(t *testing.T) {
	st, cfg := testSetup(t)
	seedSummarized(t, st, "2401.00001")
	cfg.Summary = true

	runExport(t, st, cfg)

	docPath := filepath.Join(cfg.OutputDir, "2401.00001_Paper_240100001.md")
	first, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatal(err)
	}
	firstIndex, err := os.ReadFile(filepath.Join(cfg.OutputDir, indexFile))
	if err != nil {
		t.Fatal(err)
	}

	// The paper is now exported; a second run re-renders it unchanged.
	runExport(t, st, cfg)

	second, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("re-export changed document bytes")
	}
	secondIndex, err := os.ReadFile(filepath.Join(cfg.OutputDir, indexFile))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(firstIndex, secondIndex) {
		t.Error("re-export changed index bytes")
	}
}

func TestRunIndex(t *testing.T) {
	st, cfg := testSetup(t)
	seedSummarized(t, st, "a")
	seedSummarized(t, st, "b")
	cfg.Summary = true

	summary := runExport(t, st, cfg)
	if summary.IndexPath == "" {
		t.Fatal("no index path in summary")
	}

	data, err := os.ReadFile(summary.IndexPath)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.Contains(content, "2 paper(s).") {
		t.Errorf("index missing count: %q", content)
	}
	if !strings.Contains(content, "| a | [Paper a](a_Paper_a.md) |") {
		t.Errorf("index missing row: %q", content)
	}
}

func TestRunLimit(t *testing.T) {
	st, cfg := testSetup(t)
	seedSummarized(t, st, "a")
	seedSummarized(t, st, "b")
	seedSummarized(t, st, "c")

	cfg.Limit = 2
	summary := runExport(t, st, cfg)
	if summary.Exported != 2 {
		t.Errorf("exported = %d, want 2", summary.Exported)
	}
}

func TestRunEmptyOutputDir(t *testing.T) {
	st, _ := testSetup(t)
	var out bytes.Buffer
	_, err := Run(context.Background(), st, types.ExportConfig{}, &out)
	var cfgErr *types.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
	if cfgErr.Param != "output-dir" {
		t.Errorf("param = %q", cfgErr.Param)
	}
}

func TestRunNoPapers(t *testing.T) {
	st, cfg := testSetup(t)
	var out bytes.Buffer
	summary, err := Run(context.Background(), st, cfg, &out)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Exported != 0 {
		t.Errorf("exported = %d, want 0", summary.Exported)
	}
	if !strings.Contains(out.String(), "No papers to export.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestDocumentName(t *testing.T) {
	tests := []struct {
		name  string
		paper types.Paper
		want  string
	}{
		{
			"simple",
			types.Paper{ID: "2401.00001", Title: "A Short Title"},
			"2401.00001_A_Short_Title.md",
		},
		{
			"old-style id",
			types.Paper{ID: "quant-ph/9901001", Title: "Old"},
			"quant-ph-9901001_Old.md",
		},
		{
			"special characters dropped",
			types.Paper{ID: "x", Title: "Graphs: Theory & Practice?"},
			"x_Graphs_Theory__Practice.md",
		},
		{
			"long title capped",
			types.Paper{ID: "x", Title: strings.Repeat("a", 80)},
			"x_" + strings.Repeat("a", 50) + ".md",
		},
		{
			"empty title",
			types.Paper{ID: "x"},
			"x.md",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DocumentName(&tt.paper); got != tt.want {
				t.Errorf("DocumentName = %q, want %q", got, tt.want)
			}
		})
	}
}
