package main

import (
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxiv-crawler/internal/httputil"
	"github.com/pdiddy/arxiv-crawler/internal/search"
	"github.com/pdiddy/arxiv-crawler/internal/store"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultUserAgent  = "arxiv-crawler/0.1"
	defaultMaxResults = 10
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search arXiv for papers and add them to the store",
	Long: `Search queries the arXiv API for papers matching the given keywords
and/or category and records new papers in the store with status
"discovered". Re-running a search never duplicates papers or resets
the progress of papers already being processed.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("keywords", "", "free-text search keywords")
	searchCmd.Flags().String("category", "", "restrict to an arXiv category (e.g. quant-ph)")
	searchCmd.Flags().Int("max-results", defaultMaxResults, "maximum number of results to fetch")
	searchCmd.Flags().Duration("timeout", defaultTimeout, "HTTP request timeout")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	keywords, _ := cmd.Flags().GetString("keywords")
	category, _ := cmd.Flags().GetString("category")
	maxResults, _ := cmd.Flags().GetInt("max-results")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	st, err := store.Open(dbPath(cmd))
	if err != nil {
		return err
	}
	defer st.Close()

	provider := &search.ArxivClient{
		Client: &httputil.Client{
			HTTP:      &http.Client{Timeout: timeout},
			UserAgent: defaultUserAgent,
		},
	}

	q := search.Query{
		Keywords:   keywords,
		Category:   category,
		MaxResults: maxResults,
	}

	_, err = search.Run(cmd.Context(), st, provider, q, os.Stdout)
	return err
}
