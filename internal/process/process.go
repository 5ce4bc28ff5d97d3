// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package process advances papers through download, OCR, and
// summarization. Every status change goes through the store's guarded
// transition, so concurrent process runs cannot double-apply work: the
// loser of a race observes a conflict and skips the paper.
//
// Each paper in a batch is driven end-to-end by its own worker; one
// paper's failure is recorded against that paper alone and never blocks
// or rolls back its siblings.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/arxiv-crawler/internal/store"
	"github.com/pdiddy/arxiv-crawler/pkg/types"
)

// rawDir is the subdirectory under the papers base for downloaded PDFs.
const rawDir = "raw"

// pageBreak joins per-page OCR output into a single text.
const pageBreak = "\n\n--- Page Break ---\n\n"

// Downloader fetches a paper's PDF to a local path.
type Downloader interface {
	Download(ctx context.Context, url, destPath string) error
}

// OCRClient extracts text from PDF pages.
type OCRClient interface {
	PageCount(pdfPath string) (int, error)
	ExtractPage(ctx context.Context, pdfPath string, page int) (string, error)
}

// Summarizer produces a summary from extracted paper text.
type Summarizer interface {
	Summarize(ctx context.Context, paper *types.Paper, text string) (string, error)
}

// Deps bundles the external collaborators the stage drives.
type Deps struct {
	Downloader Downloader
	OCR        OCRClient
	Summarizer Summarizer
}

// Summary holds the counts from one process run.
type Summary struct {
	// Advanced counts papers that reached StatusSummarized.
	Advanced int
	// Failed counts papers recorded as StatusFailed.
	Failed int
	// Unchanged counts papers skipped, typically after losing a
	// guarded transition to a concurrent run.
	Unchanged int
}

// Total returns the number of papers touched by the run.
func (s Summary) Total() int {
	return s.Advanced + s.Failed + s.Unchanged
}

// Run selects up to BatchSize eligible papers (oldest discovery first)
// and advances each through its remaining stages. Individual paper
// failures are recorded in the store and do not abort the run; only
// invalid parameters or a store failure do.
func Run(ctx context.Context, st *store.Store, deps Deps, cfg types.ProcessConfig, w io.Writer) (Summary, error) {
	if cfg.BatchSize <= 0 {
		return Summary{}, &types.ConfigError{Param: "batch-size", Reason: "must be positive"}
	}
	if cfg.MaxPages <= 0 {
		return Summary{}, &types.ConfigError{Param: "max-pages", Reason: "must be positive"}
	}

	candidates, err := st.Candidates(ctx, cfg.BatchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("selecting candidates: %w", err)
	}
	if len(candidates) == 0 {
		fmt.Fprintln(w, "No papers to process.")
		return Summary{}, nil
	}

	if err := os.MkdirAll(filepath.Join(cfg.PapersDir, rawDir), 0o755); err != nil {
		return Summary{}, fmt.Errorf("creating papers directory: %w", err)
	}

	out := &syncWriter{w: w}
	results := make(chan outcome, len(candidates))
	var wg sync.WaitGroup

	for _, p := range candidates {
		wg.Add(1)
		go func(p *types.Paper) {
			defer wg.Done()
			results <- advance(ctx, st, deps, cfg, p, out)
		}(p)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var summary Summary
	for res := range results {
		switch res {
		case outcomeAdvanced:
			summary.Advanced++
		case outcomeFailed:
			summary.Failed++
		default:
			summary.Unchanged++
		}
	}

	fmt.Fprintf(w, "\nProcess summary: %d advanced, %d failed, %d unchanged (total: %d)\n",
		summary.Advanced, summary.Failed, summary.Unchanged, summary.Total())
	return summary, nil
}

type outcome int

const (
	outcomeAdvanced outcome = iota
	outcomeFailed
	outcomeUnchanged
)

// entryStage maps a paper's current status to the sub-stage it enters
// the run at. Failed papers re-enter the stage they failed in, keeping
// work from earlier stages.
func entryStage(p *types.Paper) types.FailureStage {
	switch p.Status {
	case types.StatusDownloaded, types.StatusOcrRunning:
		return types.StageOcr
	case types.StatusOcrDone, types.StatusSummarizing:
		return types.StageSummarize
	case types.StatusFailed:
		if p.Failure != nil && p.Failure.Stage != "" {
			return p.Failure.Stage
		}
	}
	return types.StageDownload
}

// advance drives one paper's remaining stages. It returns the paper's
// outcome for the run summary.
func advance(ctx context.Context, st *store.Store, deps Deps, cfg types.ProcessConfig, p *types.Paper, w io.Writer) outcome {
	id := p.ID
	cur := p.Status
	stage := entryStage(p)

	attempts := 0
	if p.Failure != nil {
		attempts = p.Failure.AttemptCount
	}

	transition := func(next types.Status, patch *store.Patch) error {
		if err := st.UpdateStatus(ctx, id, cur, next, patch); err != nil {
			return err
		}
		cur = next
		return nil
	}

	// skip reports a lost guarded transition (or store trouble) and
	// leaves the paper to a later run.
	skip := func(err error) outcome {
		var conflict *types.ConflictError
		if errors.As(err, &conflict) {
			fmt.Fprintf(w, "skipped: %s (claimed by another run)\n", id)
		} else {
			fmt.Fprintf(w, "error:   %s (%v)\n", id, err)
		}
		return outcomeUnchanged
	}

	// fail records the paper as failed at the given stage. Content
	// already persisted for earlier stages survives.
	fail := func(failedAt types.FailureStage, cause error, patch *store.Patch) outcome {
		if patch == nil {
			patch = &store.Patch{}
		}
		patch.Failure = &types.Failure{
			Stage:           failedAt,
			Reason:          cause.Error(),
			AttemptCount:    attempts + 1,
			LastAttemptedAt: time.Now().UTC(),
		}
		if err := transition(types.StatusFailed, patch); err != nil {
			return skip(err)
		}
		fmt.Fprintf(w, "failed:  %s (%s: %v)\n", id, failedAt, cause)
		return outcomeFailed
	}

	pdfPath := filepath.Join(cfg.PapersDir, rawDir, pdfFileName(id))
	text := p.ExtractedText

	if stage == types.StageDownload {
		if cur != types.StatusDownloading {
			if err := transition(types.StatusDownloading, nil); err != nil {
				return skip(err)
			}
		}
		fmt.Fprintf(w, "downloading: %s\n", id)

		// An existing PDF from a prior attempt is reused.
		if _, statErr := os.Stat(pdfPath); statErr != nil {
			if p.PDFURL == "" {
				return fail(types.StageDownload, errors.New("no PDF URL recorded"), nil)
			}
			if err := deps.Downloader.Download(ctx, p.PDFURL, pdfPath); err != nil {
				return fail(types.StageDownload, err, nil)
			}
		}
		if err := transition(types.StatusDownloaded, nil); err != nil {
			return skip(err)
		}
		stage = types.StageOcr
	}

	if stage == types.StageOcr {
		if cur != types.StatusOcrRunning {
			if err := transition(types.StatusOcrRunning, nil); err != nil {
				return skip(err)
			}
		}

		total, err := deps.OCR.PageCount(pdfPath)
		if err != nil {
			return fail(types.StageOcr, err, nil)
		}
		pages := total
		if pages > cfg.MaxPages {
			pages = cfg.MaxPages
		}
		fmt.Fprintf(w, "ocr: %s (%d of %d pages)\n", id, pages, total)

		// OCR restarts from page 1 on retry; a page failure records
		// how far it got rather than keeping a truncated text.
		var pageTexts []string
		for page := 1; page <= pages; page++ {
			pageText, err := deps.OCR.ExtractPage(ctx, pdfPath, page)
			if err != nil {
				done := page - 1
				return fail(types.StageOcr, err, &store.Patch{PageCount: &done})
			}
			pageTexts = append(pageTexts, pageText)
		}

		text = strings.Join(pageTexts, pageBreak)
		if err := transition(types.StatusOcrDone, &store.Patch{ExtractedText: &text, PageCount: &pages}); err != nil {
			return skip(err)
		}
		stage = types.StageSummarize
	}

	if cur != types.StatusSummarizing {
		if err := transition(types.StatusSummarizing, nil); err != nil {
			return skip(err)
		}
	}
	fmt.Fprintf(w, "summarizing: %s\n", id)

	summary, err := deps.Summarizer.Summarize(ctx, p, text)
	if err != nil {
		return fail(types.StageSummarize, err, nil)
	}
	if err := transition(types.StatusSummarized, &store.Patch{Summary: &summary}); err != nil {
		return skip(err)
	}

	fmt.Fprintf(w, "advanced: %s\n", id)
	return outcomeAdvanced
}

// pdfFileName returns the local file name for a paper's PDF. Old-style
// arXiv IDs contain a slash (e.g. "quant-ph/9901001") and must not
// produce nested paths.
func pdfFileName(id string) string {
	return strings.ReplaceAll(id, "/", "-") + ".pdf"
}

// syncWriter serializes progress lines from concurrent workers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (sw *syncWriter) Write(b []byte) (int, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.w.Write(b)
}
