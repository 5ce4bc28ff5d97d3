package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "arxiv-crawler/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// AIConfig holds shared settings for stages that call an OpenAI-compatible API.
type AIConfig struct {
	// Model is the model identifier (e.g. "nanonets/nanonets-ocr2-3b").
	Model string `json:"model" yaml:"model"`

	// BaseURL is the API endpoint base (e.g. "https://api.example.com/v1").
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIKey is the authentication key for the API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// StoreConfig holds settings for the paper store.
type StoreConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string `json:"db_path" yaml:"db_path"`
}

// SearchConfig holds settings for the search stage.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxResults is the maximum number of results to request (default 10).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// ProcessConfig holds settings for the process stage.
type ProcessConfig struct {
	HTTPConfig `yaml:",inline"`

	// BatchSize is the maximum number of papers advanced per run. Each
	// paper in the batch is driven by its own worker.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// MaxPages caps the number of PDF pages OCRed per paper.
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// PapersDir is the directory downloaded PDFs are stored in.
	PapersDir string `json:"papers_dir" yaml:"papers_dir"`

	// OCR configures the OCR vision model endpoint.
	OCR AIConfig `json:"ocr" yaml:"ocr"`

	// Summary configures the summarization model endpoint.
	Summary AIConfig `json:"summary" yaml:"summary"`
}

// ExportConfig holds settings for the export stage.
type ExportConfig struct {
	// OutputDir is the directory rendered Markdown files are written to.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// ProcessedOnly restricts export to papers that reached
	// StatusSummarized or later.
	ProcessedOnly bool `json:"processed_only" yaml:"processed_only"`

	// Summary also writes an aggregate index document.
	Summary bool `json:"summary" yaml:"summary"`

	// Limit caps the number of papers exported; 0 means no cap.
	Limit int `json:"limit" yaml:"limit"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Store   StoreConfig   `json:"store" yaml:"store"`
	Search  SearchConfig  `json:"search" yaml:"search"`
	Process ProcessConfig `json:"process" yaml:"process"`
	Export  ExportConfig  `json:"export" yaml:"export"`
}
