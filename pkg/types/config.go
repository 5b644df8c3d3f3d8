// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// HTTPConfig holds shared HTTP settings used by components that make
// network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// RetryConfig controls the rate-limit retry loop.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0,lte=10"`

	// BaseDelay is the delay before the first retry; each retry doubles it (default 1s).
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`
}

// SearchConfig holds settings for the paper-search backends.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	Retry RetryConfig `json:"retry" yaml:"retry" mapstructure:"retry"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty" mapstructure:"semantic_scholar_api_key"`

	// OpenAlexAPIKey and OpenAlexEmail are optional; the email is sent as
	// mailto for polite pool access.
	OpenAlexAPIKey string `json:"openalex_api_key,omitempty" yaml:"openalex_api_key,omitempty" mapstructure:"openalex_api_key"`
	OpenAlexEmail  string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty" mapstructure:"openalex_email"`

	EnableArxiv           bool `json:"enable_arxiv" yaml:"enable_arxiv" mapstructure:"enable_arxiv"`
	EnableSemanticScholar bool `json:"enable_semantic_scholar" yaml:"enable_semantic_scholar" mapstructure:"enable_semantic_scholar"`
	EnableOpenAlex        bool `json:"enable_openalex" yaml:"enable_openalex" mapstructure:"enable_openalex"`

	// Per-backend result limits for the retrieval stage.
	ArxivLimit    int `json:"arxiv_limit" yaml:"arxiv_limit" mapstructure:"arxiv_limit" validate:"gte=0,lte=200"`
	SemanticLimit int `json:"semantic_limit" yaml:"semantic_limit" mapstructure:"semantic_limit" validate:"gte=0,lte=100"`
	OpenAlexLimit int `json:"openalex_limit" yaml:"openalex_limit" mapstructure:"openalex_limit" validate:"gte=0,lte=200"`
}

// Cache backends.
const (
	CacheNone   = "none"
	CacheFile   = "file"
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
)

// CacheConfig selects and tunes the search response cache.
type CacheConfig struct {
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend" validate:"oneof=none file sqlite redis"`

	// Path is the JSON file (file backend) or database file (sqlite backend).
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	RedisAddr   string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
	RedisPrefix string `json:"redis_prefix,omitempty" yaml:"redis_prefix,omitempty" mapstructure:"redis_prefix"`

	// TTL expires entries older than this; zero keeps entries forever.
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`

	// MaxEntries evicts the oldest entries beyond this count; zero is unbounded.
	MaxEntries int `json:"max_entries" yaml:"max_entries" mapstructure:"max_entries" validate:"gte=0"`
}

// LLM providers.
const (
	ProviderDedalus   = "dedalus"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// LLMConfig holds settings for the language model client.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider" validate:"oneof=dedalus openai anthropic gemini"`

	// Model is used for ranking and the review.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// FastModel is used for the per-chunk and per-quote calls.
	FastModel string `json:"fast_model" yaml:"fast_model" mapstructure:"fast_model"`

	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// MinInterval is the minimum spacing between request starts.
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval" mapstructure:"min_interval"`

	// RateLimitWait is how long to wait after the provider reports a rate limit.
	RateLimitWait time.Duration `json:"rate_limit_wait" yaml:"rate_limit_wait" mapstructure:"rate_limit_wait"`

	MaxRetries int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0,lte=10"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// PipelineConfig holds the tunables of the research pipeline stages.
type PipelineConfig struct {
	// MaxPapers is the number of papers retrieved per job when no files are uploaded.
	MaxPapers int `json:"max_papers" yaml:"max_papers" mapstructure:"max_papers" validate:"gte=1,lte=20"`

	// MinScore is the exclusive lower bound for a ranked paper to be kept.
	MinScore int `json:"min_score" yaml:"min_score" mapstructure:"min_score" validate:"gte=0,lte=10"`

	MaxQuotesPerPDF    int `json:"max_quotes_per_pdf" yaml:"max_quotes_per_pdf" mapstructure:"max_quotes_per_pdf" validate:"gte=1"`
	ChunkChars         int `json:"chunk_chars" yaml:"chunk_chars" mapstructure:"chunk_chars" validate:"gte=1000"`
	ExtractConcurrency int `json:"extract_concurrency" yaml:"extract_concurrency" mapstructure:"extract_concurrency" validate:"gte=1"`
	IdeaConcurrency    int `json:"idea_concurrency" yaml:"idea_concurrency" mapstructure:"idea_concurrency" validate:"gte=1"`

	// WorkDir holds per-job working directories.
	WorkDir string `json:"work_dir" yaml:"work_dir" mapstructure:"work_dir"`

	// PapersDir retains source PDFs for the paper download endpoint.
	PapersDir string `json:"papers_dir" yaml:"papers_dir" mapstructure:"papers_dir"`

	// QuoteCacheDir stores per-PDF extraction results.
	QuoteCacheDir string `json:"quote_cache_dir" yaml:"quote_cache_dir" mapstructure:"quote_cache_dir"`

	// Converter selects PDF text extraction: "pdftotext" or "container".
	Converter      string `json:"converter" yaml:"converter" mapstructure:"converter" validate:"oneof=pdftotext container"`
	ConverterImage string `json:"converter_image,omitempty" yaml:"converter_image,omitempty" mapstructure:"converter_image"`
}

// Job store backends.
const (
	JobStoreMemory   = "memory"
	JobStoreSQLite   = "sqlite"
	JobStorePostgres = "postgres"
)

// JobsConfig holds orchestrator settings.
type JobsConfig struct {
	Store string `json:"store" yaml:"store" mapstructure:"store" validate:"oneof=memory sqlite postgres"`

	// DSN is the SQLite file path or Postgres connection string.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty" mapstructure:"dsn"`

	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent" mapstructure:"max_concurrent" validate:"gte=1"`
}

// Artifact storage backends.
const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// StorageConfig selects where job artifacts are kept.
type StorageConfig struct {
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend" validate:"oneof=local minio"`
	Dir     string `json:"dir" yaml:"dir" mapstructure:"dir"`

	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty" mapstructure:"access_key"`
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty" mapstructure:"secret_key"`
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty" mapstructure:"bucket"`
	UseSSL    bool   `json:"use_ssl" yaml:"use_ssl" mapstructure:"use_ssl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string   `json:"addr" yaml:"addr" mapstructure:"addr"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" mapstructure:"allowed_origins"`

	// MaxUploadBytes bounds the multipart form size.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes" mapstructure:"max_upload_bytes" validate:"gte=0"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" mapstructure:"format" validate:"oneof=text json"`
}

// Config is the complete Veritas configuration.
type Config struct {
	Log      LogConfig      `json:"log" yaml:"log" mapstructure:"log"`
	Server   ServerConfig   `json:"server" yaml:"server" mapstructure:"server"`
	Search   SearchConfig   `json:"search" yaml:"search" mapstructure:"search"`
	Cache    CacheConfig    `json:"cache" yaml:"cache" mapstructure:"cache"`
	LLM      LLMConfig      `json:"llm" yaml:"llm" mapstructure:"llm"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Jobs     JobsConfig     `json:"jobs" yaml:"jobs" mapstructure:"jobs"`
	Storage  StorageConfig  `json:"storage" yaml:"storage" mapstructure:"storage"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero-valued fields with their defaults. Boolean
// backend switches are not touched; DefaultConfig enables all three.
func (c *Config) ApplyDefaults() {
	setStr(&c.Log.Level, "info")
	setStr(&c.Log.Format, "text")

	setStr(&c.Server.Addr, ":8000")
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	setInt64(&c.Server.MaxUploadBytes, 64<<20)

	if c.Search.Timeout == 0 {
		c.Search.Timeout = 30 * time.Second
	}
	setStr(&c.Search.UserAgent, "veritas/0.1 (literature review assistant)")
	setInt(&c.Search.Retry.MaxRetries, 3)
	if c.Search.Retry.BaseDelay == 0 {
		c.Search.Retry.BaseDelay = time.Second
	}
	if !c.Search.EnableArxiv && !c.Search.EnableSemanticScholar && !c.Search.EnableOpenAlex {
		c.Search.EnableArxiv = true
		c.Search.EnableSemanticScholar = true
		c.Search.EnableOpenAlex = true
	}
	setInt(&c.Search.ArxivLimit, 50)
	setInt(&c.Search.SemanticLimit, 50)
	setInt(&c.Search.OpenAlexLimit, 25)

	setStr(&c.Cache.Backend, CacheFile)
	setStr(&c.Cache.Path, "cache/search_cache.json")
	setStr(&c.Cache.RedisPrefix, "veritas:search:")

	setStr(&c.LLM.Provider, ProviderDedalus)
	setStr(&c.LLM.Model, "openai/gpt-4o")
	setStr(&c.LLM.FastModel, "openai/gpt-4o-mini")
	if c.LLM.MinInterval == 0 {
		c.LLM.MinInterval = 500 * time.Millisecond
	}
	if c.LLM.RateLimitWait == 0 {
		c.LLM.RateLimitWait = 62 * time.Second
	}
	setInt(&c.LLM.MaxRetries, 3)
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 120 * time.Second
	}

	setInt(&c.Pipeline.MaxPapers, 3)
	setInt(&c.Pipeline.MinScore, 6)
	setInt(&c.Pipeline.MaxQuotesPerPDF, 15)
	setInt(&c.Pipeline.ChunkChars, 10000)
	setInt(&c.Pipeline.ExtractConcurrency, 3)
	setInt(&c.Pipeline.IdeaConcurrency, 20)
	setStr(&c.Pipeline.WorkDir, "runs")
	setStr(&c.Pipeline.PapersDir, "papers")
	setStr(&c.Pipeline.QuoteCacheDir, "cache/quotes")
	setStr(&c.Pipeline.Converter, "pdftotext")
	setStr(&c.Pipeline.ConverterImage, "minidocks/poppler:latest")

	setStr(&c.Jobs.Store, JobStoreMemory)
	setInt(&c.Jobs.MaxConcurrent, 2)

	setStr(&c.Storage.Backend, StorageLocal)
	setStr(&c.Storage.Dir, "artifacts")
	setStr(&c.Storage.Bucket, "veritas-artifacts")
}

var validate = validator.New()

// Validate checks the configuration against its field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Jobs.Store != JobStoreMemory && c.Jobs.DSN == "" {
		return fmt.Errorf("invalid configuration: jobs.dsn is required for the %s job store", c.Jobs.Store)
	}
	if c.Cache.Backend == CacheRedis && c.Cache.RedisAddr == "" {
		return fmt.Errorf("invalid configuration: cache.redis_addr is required for the redis cache")
	}
	if c.Storage.Backend == StorageMinio && c.Storage.Endpoint == "" {
		return fmt.Errorf("invalid configuration: storage.endpoint is required for the minio backend")
	}
	return nil
}

func setStr(p *string, v string) {
	if *p == "" {
		*p = v
	}
}

func setInt(p *int, v int) {
	if *p == 0 {
		*p = v
	}
}

func setInt64(p *int64, v int64) {
	if *p == 0 {
		*p = v
	}
}
