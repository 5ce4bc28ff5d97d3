// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package stats aggregates store contents into human-readable reports.
// It is strictly read-only.
package stats

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pdiddy/arxiv-crawler/internal/store"
	"github.com/pdiddy/arxiv-crawler/pkg/types"
)

// recentWindow is the lookback for the "updated recently" count.
const recentWindow = 7 * 24 * time.Hour

// Entry is one paper in the recent-detail listing.
type Entry struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Status        types.Status `json:"status"`
	LastUpdatedAt time.Time    `json:"last_updated_at"`
}

// Report summarizes the store contents.
type Report struct {
	Total      int                  `json:"total"`
	ByStatus   map[types.Status]int `json:"by_status"`
	Processed  int                  `json:"processed"`
	FailedNow  int                  `json:"failed"`
	LastSevenD int                  `json:"updated_last_7_days"`
	Recent     []Entry              `json:"recent"`
}

// Collect builds a report with counts per status and a detail listing of
// the recent most recently updated papers (newest first, ID ascending on
// ties).
func Collect(ctx context.Context, st *store.Store, recent int) (Report, error) {
	if recent < 0 {
		return Report{}, &types.ConfigError{Param: "recent", Reason: "must not be negative"}
	}

	counts, err := st.CountByStatus(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("counting papers: %w", err)
	}

	r := Report{ByStatus: counts}
	for _, n := range counts {
		r.Total += n
	}
	r.Processed = counts[types.StatusSummarized] + counts[types.StatusExported]
	r.FailedNow = counts[types.StatusFailed]

	r.LastSevenD, err = st.CountUpdatedSince(ctx, time.Now().Add(-recentWindow))
	if err != nil {
		return Report{}, err
	}

	if recent > 0 {
		papers, err := st.Recent(ctx, recent)
		if err != nil {
			return Report{}, err
		}
		for _, p := range papers {
			r.Recent = append(r.Recent, Entry{
				ID:            p.ID,
				Title:         p.Title,
				Status:        p.Status,
				LastUpdatedAt: p.LastUpdatedAt,
			})
		}
	}

	return r, nil
}

// Format writes the report as a human-readable table.
func Format(r Report, w io.Writer) {
	fmt.Fprintf(w, "Total papers:     %d\n", r.Total)
	fmt.Fprintf(w, "Processed:        %d\n", r.Processed)
	fmt.Fprintf(w, "Failed:           %d\n", r.FailedNow)
	fmt.Fprintf(w, "Updated (7 days): %d\n", r.LastSevenD)

	fmt.Fprintln(w, "\nBy status:")
	for _, status := range types.AllStatuses {
		if n, ok := r.ByStatus[status]; ok {
			fmt.Fprintf(w, "  %-12s %d\n", string(status), n)
		}
	}

	if len(r.Recent) > 0 {
		fmt.Fprintln(w, "\nRecently updated:")
		for _, e := range r.Recent {
			fmt.Fprintf(w, "  [%s] %-12s %s (%s)\n",
				e.ID, string(e.Status), truncate(e.Title, 55),
				e.LastUpdatedAt.UTC().Format(time.RFC3339))
		}
	}
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
	return strings.TrimSpace(s[:cut]) + "..."
}
