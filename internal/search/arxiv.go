// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/arxiv-crawler/internal/httputil"
	"github.com/pdiddy/arxiv-crawler/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// ArxivClient queries the arXiv Atom API.
type ArxivClient struct {
	Client *httputil.Client
}

// Search queries the arXiv API and returns candidate papers, newest
// submissions first within the provider's relevance ranking.
func (c *ArxivClient) Search(ctx context.Context, q Query) ([]types.Paper, error) {
	searchQuery := buildArxivQuery(q)
	if searchQuery == "" {
		return nil, fmt.Errorf("empty arXiv query")
	}

	apiURL := fmt.Sprintf("%s?search_query=%s&start=0&max_results=%d&sortBy=relevance&sortOrder=descending",
		arxivAPIBase, searchQuery, q.MaxResults)

	resp, err := c.Client.Get(ctx, apiURL)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}

	var papers []types.Paper
	for _, entry := range feed.Entries {
		arxivID := extractArxivID(entry.ID)
		if arxivID == "" {
			continue
		}

		p := types.Paper{
			ID:        arxivID,
			Title:     strings.Join(strings.Fields(entry.Title), " "),
			Abstract:  strings.TrimSpace(entry.Summary),
			SourceURL: strings.TrimSpace(entry.ID),
			PDFURL:    pdfLink(entry, arxivID),
		}

		for _, a := range entry.Authors {
			p.Authors = append(p.Authors, strings.TrimSpace(a.Name))
		}
		for _, cat := range entry.Categories {
			if cat.Term != "" {
				p.Categories = append(p.Categories, cat.Term)
			}
		}

		if t, parseErr := time.Parse(time.RFC3339, entry.Published); parseErr == nil {
			p.Published = t
		}

		papers = append(papers, p)
	}
	return papers, nil
}

// buildArxivQuery constructs the search_query parameter from the
// keywords and optional category filter.
func buildArxivQuery(q Query) string {
	var parts []string

	if q.Keywords != "" {
		terms := strings.Fields(q.Keywords)
		for i, t := range terms {
			terms[i] = url.QueryEscape(t)
		}
		parts = append(parts, "all:"+strings.Join(terms, "+"))
	}
	if q.Category != "" {
		parts = append(parts, "cat:"+url.QueryEscape(q.Category))
	}

	return strings.Join(parts, "+AND+")
}

// pdfLink returns the PDF URL for an entry, preferring the feed's own
// link element and falling back to the canonical arxiv.org path.
func pdfLink(entry arxivEntry, arxivID string) string {
	for _, l := range entry.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			return l.Href
		}
	}
	return "https://arxiv.org/pdf/" + arxivID
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID         string          `xml:"id"`
	Title      string          `xml:"title"`
	Summary    string          `xml:"summary"`
	Published  string          `xml:"published"`
	Authors    []arxivAuthor   `xml:"author"`
	Categories []arxivCategory `xml:"category"`
	Links      []arxivLink     `xml:"link"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivCategory struct {
	Term string `xml:"term,attr"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" -> "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := strings.TrimSpace(idURL[idx+len(prefix):])

	// Strip version suffix (e.g. "v1", "v2").
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}
