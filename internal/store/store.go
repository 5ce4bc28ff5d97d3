// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists papers and their processing state in SQLite.
// The store is the sole integration point between pipeline stages: search
// inserts papers, process advances them through guarded status
// transitions, export and stats only read. Guarded transitions make
// concurrent process runs safe: of two attempts to advance the same
// paper, exactly one succeeds and the other observes a ConflictError.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/arxiv-crawler/pkg/types"
)

// timeLayout is a fixed-width RFC 3339 variant. Unlike RFC3339Nano it
// never trims trailing zeros, so lexicographic order of stored strings
// matches chronological order and SQL ORDER BY works on them directly.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages the paper database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path and ensures the
// schema exists. The parent directory is created if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			authors TEXT,
			abstract TEXT,
			categories TEXT,
			published TEXT,
			source_url TEXT,
			pdf_url TEXT,
			status TEXT NOT NULL,
			failure_stage TEXT,
			failure_reason TEXT,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			last_attempted_at TEXT,
			extracted_text TEXT,
			page_count INTEGER NOT NULL DEFAULT 0,
			summary TEXT,
			discovered_at TEXT NOT NULL,
			last_updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_status ON papers(status)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_discovered_at ON papers(discovered_at)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_last_updated_at ON papers(last_updated_at)`,
		`CREATE TABLE IF NOT EXISTS search_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			query TEXT NOT NULL,
			category TEXT,
			results INTEGER NOT NULL,
			searched_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Upsert inserts a newly discovered paper or merges metadata into an
// existing record with the same ID. Processing fields (status, failure,
// extracted text, page count, summary) are never touched for existing
// papers, so re-discovery cannot regress progress. The returned bool
// reports whether a new record was inserted.
func (s *Store) Upsert(ctx context.Context, p *types.Paper) (bool, error) {
	if p.ID == "" {
		return false, fmt.Errorf("upserting paper: empty ID")
	}

	authorsJSON, err := json.Marshal(p.Authors)
	if err != nil {
		return false, fmt.Errorf("marshaling authors: %w", err)
	}
	categoriesJSON, err := json.Marshal(p.Categories)
	if err != nil {
		return false, fmt.Errorf("marshaling categories: %w", err)
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT count(*) FROM papers WHERE id = ?`, p.ID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking for existing paper: %w", err)
	}

	published := ""
	if !p.Published.IsZero() {
		published = p.Published.UTC().Format(timeLayout)
	}

	if exists == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO papers (id, title, authors, abstract, categories, published,
				source_url, pdf_url, status, discovered_at, last_updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Title, string(authorsJSON), p.Abstract, string(categoriesJSON),
			published, p.SourceURL, p.PDFURL, string(types.StatusDiscovered),
			now.Format(timeLayout), now.Format(timeLayout),
		)
		if err != nil {
			return false, fmt.Errorf("inserting paper %s: %w", p.ID, err)
		}
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE papers SET title = ?, authors = ?, abstract = ?, categories = ?,
				published = ?, source_url = ?, pdf_url = ?, last_updated_at = ?
			 WHERE id = ?`,
			p.Title, string(authorsJSON), p.Abstract, string(categoriesJSON),
			published, p.SourceURL, p.PDFURL, now.Format(timeLayout), p.ID,
		)
		if err != nil {
			return false, fmt.Errorf("merging metadata for %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing upsert: %w", err)
	}
	return exists == 0, nil
}

// Get returns the paper with the given ID, or a NotFoundError.
func (s *Store) Get(ctx context.Context, id string) (*types.Paper, error) {
	row := s.db.QueryRowContext(ctx,
		selectColumns+` FROM papers WHERE id = ?`, id)
	p, err := scanPaper(row)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("reading paper %s: %w", id, err)
	}
	return p, nil
}

// Filter selects papers for List.
type Filter struct {
	// Statuses restricts the result to papers in any of the given
	// statuses. Empty means all statuses.
	Statuses []types.Status

	// Limit caps the number of results; 0 means no cap.
	Limit int
}

// List returns papers matching the filter, ordered by discovery time
// (oldest first, ID as tiebreak for determinism).
func (s *Store) List(ctx context.Context, f Filter) ([]*types.Paper, error) {
	query := selectColumns + ` FROM papers`
	var args []any

	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}

	query += ` ORDER BY discovered_at ASC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	return s.queryPapers(ctx, query, args...)
}

// candidateStatuses are the statuses the process stage picks up: every
// non-terminal status, including mid-flight ones, so papers stranded by
// a crashed run are retried on the next one.
var candidateStatuses = func() []types.Status {
	var statuses []types.Status
	for _, s := range types.AllStatuses {
		if !s.Terminal() {
			statuses = append(statuses, s)
		}
	}
	return statuses
}()

// Candidates returns up to limit papers eligible for processing, oldest
// discovery first so repeated runs drain the backlog fairly.
func (s *Store) Candidates(ctx context.Context, limit int) ([]*types.Paper, error) {
	return s.List(ctx, Filter{Statuses: candidateStatuses, Limit: limit})
}

// Patch carries the content and failure fields applied alongside a
// status transition. Nil fields are left unchanged.
type Patch struct {
	ExtractedText *string
	PageCount     *int
	Summary       *string
	Failure       *types.Failure
}

// UpdateStatus performs a guarded transition: the paper's status changes
// from expected to next, and the patch is applied, only if the current
// status still equals expected. Otherwise it returns a ConflictError
// (or a NotFoundError for an unknown ID) and changes nothing.
//
// The guard is a single conditional UPDATE, so two concurrent attempts
// to advance the same paper serialize inside SQLite: one matches the
// expected status and wins, the other matches nothing and conflicts.
// Any transition to a non-failed status clears the failure record.
func (s *Store) UpdateStatus(ctx context.Context, id string, expected, next types.Status, patch *Patch) error {
	if !next.Valid() {
		return fmt.Errorf("updating %s: invalid status %q", id, next)
	}

	set := []string{"status = ?", "last_updated_at = ?"}
	args := []any{string(next), time.Now().UTC().Format(timeLayout)}

	if patch != nil {
		if patch.ExtractedText != nil {
			set = append(set, "extracted_text = ?")
			args = append(args, *patch.ExtractedText)
		}
		if patch.PageCount != nil {
			set = append(set, "page_count = ?")
			args = append(args, *patch.PageCount)
		}
		if patch.Summary != nil {
			set = append(set, "summary = ?")
			args = append(args, *patch.Summary)
		}
	}

	if patch != nil && patch.Failure != nil {
		f := patch.Failure
		set = append(set,
			"failure_stage = ?", "failure_reason = ?",
			"attempt_count = ?", "last_attempted_at = ?")
		args = append(args,
			string(f.Stage), f.Reason,
			f.AttemptCount, f.LastAttemptedAt.UTC().Format(timeLayout))
	} else if next != types.StatusFailed {
		set = append(set,
			"failure_stage = NULL", "failure_reason = NULL",
			"attempt_count = 0", "last_attempted_at = NULL")
	}

	args = append(args, id, string(expected))

	res, err := s.db.ExecContext(ctx,
		`UPDATE papers SET `+strings.Join(set, ", ")+` WHERE id = ? AND status = ?`,
		args...)
	if err != nil {
		return fmt.Errorf("updating %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating %s: %w", id, err)
	}
	if affected == 1 {
		return nil
	}

	// The guard did not match: distinguish a missing paper from a
	// concurrent mutation.
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return &types.ConflictError{ID: id, Expected: expected, Actual: current.Status}
}

// CountByStatus returns the number of papers in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[types.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, count(*) FROM papers GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting papers: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[types.Status(status)] = n
	}
	return counts, rows.Err()
}

// Recent returns the n most recently updated papers, newest first with
// ID as tiebreak for determinism.
func (s *Store) Recent(ctx context.Context, n int) ([]*types.Paper, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.queryPapers(ctx,
		selectColumns+` FROM papers ORDER BY last_updated_at DESC, id ASC LIMIT ?`, n)
}

// CountUpdatedSince returns the number of papers updated at or after t.
func (s *Store) CountUpdatedSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM papers WHERE last_updated_at >= ?`,
		t.UTC().Format(timeLayout),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting recent updates: %w", err)
	}
	return n, nil
}

// LogSearch records a search invocation in the history table.
func (s *Store) LogSearch(ctx context.Context, query, category string, results int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_history (query, category, results, searched_at) VALUES (?, ?, ?, ?)`,
		query, category, results, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("logging search: %w", err)
	}
	return nil
}

// SearchRecord is one logged search invocation.
type SearchRecord struct {
	Query      string
	Category   string
	Results    int
	SearchedAt time.Time
}

// SearchHistory returns the n most recent logged searches, newest first.
func (s *Store) SearchHistory(ctx context.Context, n int) ([]SearchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT query, category, results, searched_at FROM search_history
		 ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("reading search history: %w", err)
	}
	defer rows.Close()

	var records []SearchRecord
	for rows.Next() {
		var r SearchRecord
		var category sql.NullString
		var searchedAt string
		if err := rows.Scan(&r.Query, &category, &r.Results, &searchedAt); err != nil {
			return nil, fmt.Errorf("scanning search record: %w", err)
		}
		r.Category = category.String
		r.SearchedAt, _ = time.Parse(timeLayout, searchedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

const selectColumns = `SELECT id, title, authors, abstract, categories, published,
	source_url, pdf_url, status, failure_stage, failure_reason, attempt_count,
	last_attempted_at, extracted_text, page_count, summary, discovered_at, last_updated_at`

func (s *Store) queryPapers(ctx context.Context, query string, args ...any) ([]*types.Paper, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying papers: %w", err)
	}
	defer rows.Close()

	var papers []*types.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning paper: %w", err)
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPaper(row scanner) (*types.Paper, error) {
	var p types.Paper
	var authors, categories sql.NullString
	var abstract, published, sourceURL, pdfURL sql.NullString
	var failureStage, failureReason, lastAttemptedAt sql.NullString
	var attemptCount int
	var extractedText, summary sql.NullString
	var status, discoveredAt, lastUpdatedAt string

	err := row.Scan(&p.ID, &p.Title, &authors, &abstract, &categories, &published,
		&sourceURL, &pdfURL, &status, &failureStage, &failureReason, &attemptCount,
		&lastAttemptedAt, &extractedText, &p.PageCount, &summary,
		&discoveredAt, &lastUpdatedAt)
	if err != nil {
		return nil, err
	}

	if authors.Valid && authors.String != "" {
		if err := json.Unmarshal([]byte(authors.String), &p.Authors); err != nil {
			return nil, fmt.Errorf("parsing authors for %s: %w", p.ID, err)
		}
	}
	if categories.Valid && categories.String != "" {
		if err := json.Unmarshal([]byte(categories.String), &p.Categories); err != nil {
			return nil, fmt.Errorf("parsing categories for %s: %w", p.ID, err)
		}
	}

	p.Abstract = abstract.String
	p.SourceURL = sourceURL.String
	p.PDFURL = pdfURL.String
	p.Status = types.Status(status)
	p.ExtractedText = extractedText.String
	p.Summary = summary.String

	if published.Valid && published.String != "" {
		p.Published, _ = time.Parse(timeLayout, published.String)
	}
	p.DiscoveredAt, _ = time.Parse(timeLayout, discoveredAt)
	p.LastUpdatedAt, _ = time.Parse(timeLayout, lastUpdatedAt)

	if p.Status == types.StatusFailed && failureStage.Valid {
		f := types.Failure{
			Stage:        types.FailureStage(failureStage.String),
			Reason:       failureReason.String,
			AttemptCount: attemptCount,
		}
		if lastAttemptedAt.Valid {
			f.LastAttemptedAt, _ = time.Parse(timeLayout, lastAttemptedAt.String)
		}
		p.Failure = &f
	}

	return &p, nil
}
