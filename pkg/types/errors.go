// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// ConflictError reports a guarded status transition that found the paper
// in a different state than the caller expected. It signals a concurrent
// or stale mutation; callers skip the paper rather than surface the error.
type ConflictError struct {
	ID       string
	Expected Status
	Actual   Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("paper %s: status is %q, expected %q", e.ID, e.Actual, e.Expected)
}

// NotFoundError reports an operation on an unknown paper ID.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("paper %s: not found", e.ID)
}

// ProviderError reports a failure of the external search provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// OcrError reports a text extraction failure. Page is 1-based; 0 means
// the failure happened before any page was processed.
type OcrError struct {
	Page int
	Err  error
}

func (e *OcrError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("ocr page %d: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("ocr: %v", e.Err)
}

func (e *OcrError) Unwrap() error { return e.Err }

// SummarizeError reports a summarization collaborator failure.
type SummarizeError struct {
	Err error
}

func (e *SummarizeError) Error() string {
	return fmt.Sprintf("summarize: %v", e.Err)
}

func (e *SummarizeError) Unwrap() error { return e.Err }

// ConfigError reports invalid stage parameters. It aborts the whole stage
// invocation rather than being recorded against any paper.
type ConfigError struct {
	Param  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}
