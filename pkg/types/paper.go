// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Status tracks where a paper sits in the pipeline. A paper only moves
// forward along the stage order below, or to StatusFailed from any
// non-terminal state.
type Status string

const (
	StatusDiscovered  Status = "discovered"
	StatusDownloading Status = "downloading"
	StatusDownloaded  Status = "downloaded"
	StatusOcrRunning  Status = "ocr_running"
	StatusOcrDone     Status = "ocr_done"
	StatusSummarizing Status = "summarizing"
	StatusSummarized  Status = "summarized"
	StatusExported    Status = "exported"
	StatusFailed      Status = "failed"
)

// statusRank orders the forward progression of statuses. StatusFailed is
// deliberately absent: it is reachable from anywhere and compares to nothing.
var statusRank = map[Status]int{
	StatusDiscovered:  0,
	StatusDownloading: 1,
	StatusDownloaded:  2,
	StatusOcrRunning:  3,
	StatusOcrDone:     4,
	StatusSummarizing: 5,
	StatusSummarized:  6,
	StatusExported:    7,
}

// Rank returns the position of s in the stage order, or -1 for
// StatusFailed and unknown values.
func (s Status) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether s is a recognized status value.
func (s Status) Valid() bool {
	return s == StatusFailed || s.Rank() >= 0
}

// Terminal reports whether the process stage is done with a paper in
// this status. Failed is not terminal: failed papers are retried.
func (s Status) Terminal() bool {
	return s == StatusSummarized || s == StatusExported
}

// AllStatuses lists every status in stage order, with StatusFailed last.
// Used for stable iteration in stats output.
var AllStatuses = []Status{
	StatusDiscovered, StatusDownloading, StatusDownloaded,
	StatusOcrRunning, StatusOcrDone, StatusSummarizing,
	StatusSummarized, StatusExported, StatusFailed,
}

// FailureStage names the processing sub-stage a paper failed in.
type FailureStage string

const (
	StageDownload  FailureStage = "download"
	StageOcr       FailureStage = "ocr"
	StageSummarize FailureStage = "summarize"
)

// Failure records why a paper is in StatusFailed. It is present only
// while the paper's status is StatusFailed; a successful retry clears it.
type Failure struct {
	// Stage is the sub-stage the paper failed in. Retries re-enter
	// this stage, not the beginning of the pipeline.
	Stage FailureStage `json:"stage" yaml:"stage"`

	// Reason is the error message from the failed attempt.
	Reason string `json:"reason" yaml:"reason"`

	// AttemptCount is the number of failed attempts for this paper.
	// It accumulates across retries even when the failing stage
	// changes, and is cleared with the rest of the record once the
	// paper advances past its failure.
	AttemptCount int `json:"attempt_count" yaml:"attempt_count"`

	// LastAttemptedAt is when the most recent attempt failed.
	LastAttemptedAt time.Time `json:"last_attempted_at" yaml:"last_attempted_at"`
}

// Paper is the unit of work tracked by the pipeline: one arXiv paper and
// everything the stages have produced for it so far. Metadata fields are
// set at discovery and merged on re-discovery; status, failure, and
// content fields are owned by the process stage.
type Paper struct {
	// ID is the arXiv identifier (e.g. "2301.07041").
	ID string `json:"id" yaml:"id"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Abstract is the paper abstract.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Categories lists the arXiv subject categories (e.g. "quant-ph").
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`

	// Published is the publication or preprint date.
	Published time.Time `json:"published" yaml:"published"`

	// SourceURL is the abstract page URL.
	SourceURL string `json:"source_url" yaml:"source_url"`

	// PDFURL is the URL the PDF is downloaded from.
	PDFURL string `json:"pdf_url" yaml:"pdf_url"`

	// Status is the paper's position in the pipeline.
	Status Status `json:"status" yaml:"status"`

	// Failure is set only while Status is StatusFailed.
	Failure *Failure `json:"failure,omitempty" yaml:"failure,omitempty"`

	// ExtractedText is the OCR output, page texts joined with page
	// break markers. Empty until OCR has succeeded.
	ExtractedText string `json:"extracted_text,omitempty" yaml:"extracted_text,omitempty"`

	// PageCount is the number of pages successfully OCRed. Never
	// exceeds the page cap of the run that produced it.
	PageCount int `json:"page_count" yaml:"page_count"`

	// Summary is the generated methodology summary. Empty until
	// summarization has succeeded.
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`

	// DiscoveredAt is when the search stage first saw the paper.
	DiscoveredAt time.Time `json:"discovered_at" yaml:"discovered_at"`

	// LastUpdatedAt is bumped on every store mutation of this paper.
	LastUpdatedAt time.Time `json:"last_updated_at" yaml:"last_updated_at"`
}
