// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pdiddy/arxiv-crawler/internal/store"
	"github.com/pdiddy/arxiv-crawler/pkg/types"
)

// --- fakes ---

type fakeDownloader struct {
	mu    sync.Mutex
	calls int
	fail  map[string]error // keyed by URL
}

func (f *fakeDownloader) Download(ctx context.Context, url, destPath string) error {
	f.mu.Lock()
	f.calls++
	err := f.fail[url]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte("%PDF-1.4 fake"), 0o644)
}

// hookDownloader runs a hook before writing the PDF, letting tests
// mutate store state mid-download.
type hookDownloader struct {
	hook func(url string) error
}

func (h *hookDownloader) Download(ctx context.Context, url, destPath string) error {
	if h.hook != nil {
		if err := h.hook(url); err != nil {
			return err
		}
	}
	return os.WriteFile(destPath, []byte("%PDF-1.4 fake"), 0o644)
}

type fakeOCR struct {
	mu        sync.Mutex
	pages     int
	failPage  int // 0 means no failure
	extracted []int
}

func (f *fakeOCR) PageCount(pdfPath string) (int, error) {
	return f.pages, nil
}

func (f *fakeOCR) ExtractPage(ctx context.Context, pdfPath string, page int) (string, error) {
	f.mu.Lock()
	f.extracted = append(f.extracted, page)
	f.mu.Unlock()
	if f.failPage != 0 && page == f.failPage {
		return "", &types.OcrError{Page: page, Err: errors.New("model timeout")}
	}
	return fmt.Sprintf("text of page %d", page), nil
}

type fakeSummarizer struct {
	mu    sync.Mutex
	calls int
	texts []string
	err   error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, paper *types.Paper, text string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return "summary of " + paper.ID, nil
}

// --- test helpers ---

func testSetup(t *testing.T) (*store.Store, types.ProcessConfig, Deps) {
	t.Helper()
	tmpDir := t.TempDir()

	st, err := store.Open(filepath.Join(tmpDir, "papers.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := types.ProcessConfig{
		BatchSize: 5,
		MaxPages:  20,
		PapersDir: filepath.Join(tmpDir, "papers"),
	}
	deps := Deps{
		Downloader: &fakeDownloader{},
		OCR:        &fakeOCR{pages: 2},
		Summarizer: &fakeSummarizer{},
	}
	return st, cfg, deps
}

func seedPaper(t *testing.T, st *store.Store, id string) {
	t.Helper()
	p := &types.Paper{
		ID:     id,
		Title:  "Paper " + id,
		PDFURL: "https://arxiv.org/pdf/" + id,
	}
	if _, err := st.Upsert(context.Background(), p); err != nil {
		t.Fatal(err)
	}
}

func getPaper(t *testing.T, st *store.Store, id string) *types.Paper {
	t.Helper()
	p, err := st.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func runProcess(t *testing.T, st *store.Store, deps Deps, cfg types.ProcessConfig) Summary {
	t.Helper()
	var out bytes.Buffer
	summary, err := Run(context.Background(), st, deps, cfg, &out)
	if err != nil {
		t.Fatalf("Run: %v\noutput:\n%s", err, out.String())
	}
	return summary
}

// --- tests ---

func TestRunHappyPath(t *testing.T) {
	st, cfg, deps := testSetup(t)
	seedPaper(t, st, "2401.00001")

	summary := runProcess(t, st, deps, cfg)
	if summary.Advanced != 1 || summary.Failed != 0 || summary.Unchanged != 0 {
		t.Errorf("summary = %+v", summary)
	}

	p := getPaper(t, st, "2401.00001")
	if p.Status != types.StatusSummarized {
		t.Errorf("status = %s, want %s", p.Status, types.StatusSummarized)
	}
	wantText := "text of page 1" + pageBreak + "text of page 2"
	if p.ExtractedText != wantText {
		t.Errorf("extracted text = %q", p.ExtractedText)
	}
	if p.PageCount != 2 {
		t.Errorf("page count = %d, want 2", p.PageCount)
	}
	if p.Summary != "summary of 2401.00001" {
		t.Errorf("summary = %q", p.Summary)
	}

	pdfPath := filepath.Join(cfg.PapersDir, rawDir, "2401.00001.pdf")
	if _, err := os.Stat(pdfPath); err != nil {
		t.Errorf("PDF not written: %v", err)
	}
}

func TestRunBatchSize(t *testing.T) {
	st, cfg, deps := testSetup(t)
	for _, id := range []string{"a", "b", "c"} {
		seedPaper(t, st, id)
	}
	cfg.BatchSize = 2

	summary := runProcess(t, st, deps, cfg)
	if summary.Advanced != 2 {
		t.Errorf("first run advanced = %d, want 2", summary.Advanced)
	}
	if got := getPaper(t, st, "c").Status; got != types.StatusDiscovered {
		t.Errorf("third paper status = %s, want untouched", got)
	}

	// The next run drains the remainder.
	summary = runProcess(t, st, deps, cfg)
	if summary.Advanced != 1 {
		t.Errorf("second run advanced = %d, want 1", summary.Advanced)
	}
	if got := getPaper(t, st, "c").Status; got != types.StatusSummarized {
		t.Errorf("third paper status = %s after second run", got)
	}
}

func TestRunOcrPageFailure(t *testing.T) {
	st, cfg, deps := testSetup(t)
	seedPaper(t, st, "2401.00001")

	ocr := &fakeOCR{pages: 5, failPage: 3}
	deps.OCR = ocr

	summary := runProcess(t, st, deps, cfg)
	if summary.Failed != 1 {
		t.Fatalf("summary = %+v, want one failure", summary)
	}

	p := getPaper(t, st, "2401.00001")
	if p.Status != types.StatusFailed {
		t.Fatalf("status = %s", p.Status)
	}
	if p.Failure == nil {
		t.Fatal("no failure record")
	}
	if p.Failure.Stage != types.StageOcr {
		t.Errorf("failure stage = %s", p.Failure.Stage)
	}
	if p.Failure.AttemptCount != 1 {
		t.Errorf("attempt count = %d, want 1", p.Failure.AttemptCount)
	}
	if !strings.Contains(p.Failure.Reason, "page 3") {
		t.Errorf("failure reason = %q", p.Failure.Reason)
	}
	if p.PageCount != 2 {
		t.Errorf("page count = %d, want pages completed before the failure", p.PageCount)
	}
	if p.ExtractedText != "" {
		t.Errorf("partial text persisted: %q", p.ExtractedText)
	}
}

func TestRunOcrRetryRestartsFromPageOne(t *testing.T) {
	st, cfg, deps := testSetup(t)
	seedPaper(t, st, "2401.00001")

	ocr := &fakeOCR{pages: 5, failPage: 3}
	deps.OCR = ocr
	runProcess(t, st, deps, cfg)

	// A second run re-enters at the OCR stage and starts over.
	ocr.failPage = 0
	ocr.extracted = nil
	summary := runProcess(t, st, deps, cfg)
	if summary.Advanced != 1 {
		t.Fatalf("retry summary = %+v", summary)
	}

	want := []int{1, 2, 3, 4, 5}
	if len(ocr.extracted) != len(want) {
		t.Fatalf("extracted pages = %v, want %v", ocr.extracted, want)
	}
	for i, page := range want {
		if ocr.extracted[i] != page {
			t.Errorf("extracted[%d] = %d, want %d", i, ocr.extracted[i], page)
		}
	}

	p := getPaper(t, st, "2401.00001")
	if p.Status != types.StatusSummarized {
		t.Errorf("status = %s after retry", p.Status)
	}
	if p.Failure != nil {
		t.Errorf("failure record survived recovery: %+v", p.Failure)
	}
	if p.PageCount != 5 {
		t.Errorf("page count = %d, want 5", p.PageCount)
	}
}

func TestRunFailureAttemptsAccumulate(t *testing.T) {
	st, cfg, deps := testSetup(t)
	seedPaper(t, st, "2401.00001")

	ocr := &fakeOCR{pages: 5, failPage: 3}
	deps.OCR = ocr

	runProcess(t, st, deps, cfg)
	runProcess(t, st, deps, cfg)

	p := getPaper(t, st, "2401.00001")
	if p.Failure == nil || p.Failure.AttemptCount != 2 {
		t.Errorf("failure = %+v, want attempt count 2", p.Failure)
	}
}

func TestRunFailureAttemptsCarryAcrossStages(t *testing.T) {
	st, cfg, deps := testSetup(t)
	seedPaper(t, st, "2401.00001")

	// First attempt fails downloading.
	deps.Downloader = &fakeDownloader{fail: map[string]error{
		"https://arxiv.org/pdf/2401.00001": errors.New("connection refused"),
	}}
	runProcess(t, st, deps, cfg)

	p := getPaper(t, st, "2401.00001")
	if p.Failure == nil || p.Failure.Stage != types.StageDownload || p.Failure.AttemptCount != 1 {
		t.Fatalf("failure after first run = %+v", p.Failure)
	}

	// The retry downloads fine but fails in OCR: the count keeps
	// accumulating even though the failing stage changed.
	deps.Downloader = &fakeDownloader{}
	deps.OCR = &fakeOCR{pages: 3, failPage: 1}
	runProcess(t, st, deps, cfg)

	p = getPaper(t, st, "2401.00001")
	if p.Failure == nil || p.Failure.Stage != types.StageOcr {
		t.Fatalf("failure after second run = %+v", p.Failure)
	}
	if p.Failure.AttemptCount != 2 {
		t.Errorf("attempt count = %d, want 2", p.Failure.AttemptCount)
	}
}

func TestRunMaxPagesCap(t *testing.T) {
	st, cfg, deps := testSetup(t)
	seedPaper(t, st, "2401.00001")

	ocr := &fakeOCR{pages: 30}
	deps.OCR = ocr
	cfg.MaxPages = 4

	runProcess(t, st, deps, cfg)

	if len(ocr.extracted) != 4 {
		t.Errorf("extracted %d pages, want 4", len(ocr.extracted))
	}
	p := getPaper(t, st, "2401.00001")
	if p.PageCount != 4 {
		t.Errorf("page count = %d, want 4", p.PageCount)
	}
}

func TestRunSiblingIsolation(t *testing.T) {
	st, cfg, deps := testSetup(t)
	seedPaper(t, st, "good")
	seedPaper(t, st, "bad")

	deps.Downloader = &fakeDownloader{fail: map[string]error{
		"https://arxiv.org/pdf/bad": errors.New("connection refused"),
	}}

	summary := runProcess(t, st, deps, cfg)
	if summary.Advanced != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want one advanced and one failed", summary)
	}
	if got := getPaper(t, st, "good").Status; got != types.StatusSummarized {
		t.Errorf("good paper status = %s", got)
	}

	bad := getPaper(t, st, "bad")
	if bad.Status != types.StatusFailed {
		t.Errorf("bad paper status = %s", bad.Status)
	}
	if bad.Failure == nil || bad.Failure.Stage != types.StageDownload {
		t.Errorf("bad paper failure = %+v", bad.Failure)
	}
}

func TestRunResumesAtFailedStage(t *testing.T) {
	st, cfg, deps := testSetup(t)
	seedPaper(t, st, "2401.00001")

	// First run fails during summarization, after OCR persisted its text.
	summarizer := &fakeSummarizer{err: &types.SummarizeError{Err: errors.New("model overloaded")}}
	deps.Summarizer = summarizer
	runProcess(t, st, deps, cfg)

	p := getPaper(t, st, "2401.00001")
	if p.Status != types.StatusFailed || p.Failure == nil || p.Failure.Stage != types.StageSummarize {
		t.Fatalf("paper = %s %+v", p.Status, p.Failure)
	}
	if p.ExtractedText == "" {
		t.Fatal("extracted text lost on summarize failure")
	}

	// The retry re-enters at summarize and reuses the stored text.
	downloader := &fakeDownloader{}
	ocr := &fakeOCR{pages: 2}
	good := &fakeSummarizer{}
	deps = Deps{Downloader: downloader, OCR: ocr, Summarizer: good}

	summary := runProcess(t, st, deps, cfg)
	if summary.Advanced != 1 {
		t.Fatalf("retry summary = %+v", summary)
	}
	if downloader.calls != 0 {
		t.Errorf("downloader called %d times on summarize retry", downloader.calls)
	}
	if len(ocr.extracted) != 0 {
		t.Errorf("OCR re-ran on summarize retry: %v", ocr.extracted)
	}
	if len(good.texts) != 1 || good.texts[0] != p.ExtractedText {
		t.Errorf("summarizer input = %q, want stored text", good.texts)
	}
}

func TestRunConflictSkipsPaper(t *testing.T) {
	st, cfg, deps := testSetup(t)
	seedPaper(t, st, "claimed")
	seedPaper(t, st, "good")

	// While this run downloads "claimed", a concurrent run finishes the
	// download first. The subsequent guarded transition must lose
	// silently: the paper is skipped, not failed, and siblings proceed.
	deps.Downloader = &hookDownloader{hook: func(url string) error {
		if !strings.HasSuffix(url, "claimed") {
			return nil
		}
		return st.UpdateStatus(context.Background(), "claimed",
			types.StatusDownloading, types.StatusDownloaded, nil)
	}}

	var out bytes.Buffer
	summary, err := Run(context.Background(), st, deps, cfg, &out)
	if err != nil {
		t.Fatalf("Run: %v\noutput:\n%s", err, out.String())
	}
	if summary.Advanced != 1 || summary.Failed != 0 || summary.Unchanged != 1 {
		t.Errorf("summary = %+v, want one advanced and one unchanged", summary)
	}
	if !strings.Contains(out.String(), "skipped: claimed (claimed by another run)") {
		t.Errorf("output missing skip line:\n%s", out.String())
	}

	claimed := getPaper(t, st, "claimed")
	if claimed.Status != types.StatusDownloaded {
		t.Errorf("claimed paper status = %s, want the concurrent run's state kept", claimed.Status)
	}
	if claimed.Failure != nil {
		t.Errorf("claimed paper recorded a failure: %+v", claimed.Failure)
	}
	if got := getPaper(t, st, "good").Status; got != types.StatusSummarized {
		t.Errorf("sibling status = %s", got)
	}
}

func TestRunReusesExistingPDF(t *testing.T) {
	st, cfg, deps := testSetup(t)
	seedPaper(t, st, "2401.00001")

	pdfPath := filepath.Join(cfg.PapersDir, rawDir, "2401.00001.pdf")
	if err := os.MkdirAll(filepath.Dir(pdfPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pdfPath, []byte("%PDF-1.4 existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	downloader := &fakeDownloader{}
	deps.Downloader = downloader

	summary := runProcess(t, st, deps, cfg)
	if summary.Advanced != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if downloader.calls != 0 {
		t.Errorf("downloader called %d times with PDF already on disk", downloader.calls)
	}
}

func TestRunMissingPDFURL(t *testing.T) {
	st, cfg, deps := testSetup(t)
	if _, err := st.Upsert(context.Background(), &types.Paper{ID: "nourl", Title: "No URL"}); err != nil {
		t.Fatal(err)
	}

	summary := runProcess(t, st, deps, cfg)
	if summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	p := getPaper(t, st, "nourl")
	if p.Failure == nil || p.Failure.Stage != types.StageDownload {
		t.Errorf("failure = %+v", p.Failure)
	}
}

func TestRunNoCandidates(t *testing.T) {
	st, cfg, deps := testSetup(t)
	var out bytes.Buffer
	summary, err := Run(context.Background(), st, deps, cfg, &out)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total() != 0 {
		t.Errorf("summary = %+v, want empty", summary)
	}
	if !strings.Contains(out.String(), "No papers to process.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunValidation(t *testing.T) {
	st, cfg, deps := testSetup(t)

	tests := []struct {
		name   string
		mutate func(*types.ProcessConfig)
		param  string
	}{
		{"zero batch size", func(c *types.ProcessConfig) { c.BatchSize = 0 }, "batch-size"},
		{"negative max pages", func(c *types.ProcessConfig) { c.MaxPages = -1 }, "max-pages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg
			tt.mutate(&c)
			var out bytes.Buffer
			_, err := Run(context.Background(), st, deps, c, &out)
			var cfgErr *types.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("err = %v, want ConfigError", err)
			}
			if cfgErr.Param != tt.param {
				t.Errorf("param = %q, want %q", cfgErr.Param, tt.param)
			}
		})
	}
}

func TestPdfFileName(t *testing.T) {
	if got := pdfFileName("quant-ph/9901001"); got != "quant-ph-9901001.pdf" {
		t.Errorf("pdfFileName = %q", got)
	}
}

func TestEntryStage(t *testing.T) {
	tests := []struct {
		name  string
		paper types.Paper
		want  types.FailureStage
	}{
		{"discovered", types.Paper{Status: types.StatusDiscovered}, types.StageDownload},
		{"downloading", types.Paper{Status: types.StatusDownloading}, types.StageDownload},
		{"downloaded", types.Paper{Status: types.StatusDownloaded}, types.StageOcr},
		{"ocr running", types.Paper{Status: types.StatusOcrRunning}, types.StageOcr},
		{"ocr done", types.Paper{Status: types.StatusOcrDone}, types.StageSummarize},
		{"summarizing", types.Paper{Status: types.StatusSummarizing}, types.StageSummarize},
		{"failed at ocr", types.Paper{
			Status:  types.StatusFailed,
			Failure: &types.Failure{Stage: types.StageOcr},
		}, types.StageOcr},
		{"failed without record", types.Paper{Status: types.StatusFailed}, types.StageDownload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := entryStage(&tt.paper); got != tt.want {
				t.Errorf("entryStage = %s, want %s", got, tt.want)
			}
		})
	}
}
