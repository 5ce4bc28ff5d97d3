// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search queries the arXiv API and merges new papers into the
// paper store. It only ever grows the store: re-discovering a known
// paper merges metadata and never touches its processing state.
package search

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/pdiddy/arxiv-crawler/internal/store"
	"github.com/pdiddy/arxiv-crawler/pkg/types"
)

// Query holds the search parameters.
type Query struct {
	// Keywords is the free-text search string.
	Keywords string

	// Category optionally restricts results to one arXiv category
	// (e.g. "quant-ph").
	Category string

	// MaxResults caps the number of candidates requested.
	MaxResults int
}

// Provider searches an external paper source. ArxivClient is the real
// implementation; tests supply fakes.
type Provider interface {
	Search(ctx context.Context, q Query) ([]types.Paper, error)
}

// Summary holds the counts from one search run.
type Summary struct {
	Found      int
	Added      int
	Duplicates int
}

// Run queries the provider and upserts every candidate into the store
// with status discovered. A provider failure aborts the run as a
// ProviderError; papers upserted before the failure are kept.
func Run(ctx context.Context, st *store.Store, provider Provider, q Query, w io.Writer) (Summary, error) {
	if q.Keywords == "" && q.Category == "" {
		return Summary{}, &types.ConfigError{Param: "keywords", Reason: "provide keywords or a category"}
	}
	if q.MaxResults <= 0 {
		return Summary{}, &types.ConfigError{Param: "max-results", Reason: "must be positive"}
	}

	papers, err := provider.Search(ctx, q)
	if err != nil {
		return Summary{}, &types.ProviderError{Provider: "arxiv", Err: err}
	}

	summary := Summary{Found: len(papers)}
	for i := range papers {
		inserted, err := st.Upsert(ctx, &papers[i])
		if err != nil {
			return summary, fmt.Errorf("storing %s: %w", papers[i].ID, err)
		}
		if inserted {
			summary.Added++
			fmt.Fprintf(w, "added:     %s %s\n", papers[i].ID, truncate(papers[i].Title, 60))
		} else {
			summary.Duplicates++
			fmt.Fprintf(w, "duplicate: %s\n", papers[i].ID)
		}
	}

	if err := st.LogSearch(ctx, q.Keywords, q.Category, summary.Found); err != nil {
		fmt.Fprintf(w, "warning: could not log search: %v\n", err)
	}

	fmt.Fprintf(w, "\nSearch summary: %d found, %d added, %d duplicates\n",
		summary.Found, summary.Added, summary.Duplicates)
	return summary, nil
}

// truncate shortens s to at most max bytes, cutting on a rune boundary
// so multibyte titles never produce invalid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
