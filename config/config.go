package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds aggregation service configuration.
type Config struct {
	// Fetching
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
	Parallelism  int
	BrowserBin   string

	// Pacing
	DefaultRateInterval time.Duration
	SearchEngineRate    time.Duration

	// Strategy
	SearchEngineMode   bool
	SearchEngineURL    string
	LowResultThreshold int
	BatchConcurrency   int
	BatchPause         time.Duration
	OversampleFactor   float64

	// Language-model capability
	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string
	LLMTimeout time.Duration

	CacheSize int
	CacheTTL  time.Duration

	SitesFile    string
	ListenAddr   string
	MetricsAddr  string
	APIRateLimit int // requests per client per hour, 0 disables

	OutputFile   string
	OutputFormat string // csv, json, or dual
	Verbose      bool
}

// DefaultConfig returns the defaults used by the service.
func DefaultConfig() *Config {
	return &Config{
		Timeout:             30 * time.Second,
		MaxRedirects:        5,
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Parallelism:         8,
		DefaultRateInterval: time.Second,
		SearchEngineRate:    2 * time.Second,
		SearchEngineMode:    true,
		SearchEngineURL:     "https://www.google.com",
		LowResultThreshold:  3,
		BatchConcurrency:    5,
		BatchPause:          time.Second,
		OversampleFactor:    1.5,
		LLMBaseURL:          "https://generativelanguage.googleapis.com/v1beta/openai/",
		LLMModel:            "gemini-1.5-flash",
		LLMTimeout:          30 * time.Second,
		CacheSize:           0,
		CacheTTL:            10 * time.Minute,
		ListenAddr:          ":8080",
		APIRateLimit:        10,
		OutputFile:          "output/products.csv",
		OutputFormat:        "csv",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max redirects cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.DefaultRateInterval < 0 {
		return fmt.Errorf("default rate interval cannot be negative")
	}
	if c.SearchEngineRate < 0 {
		return fmt.Errorf("search engine rate interval cannot be negative")
	}

	parsedURL, err := url.Parse(c.SearchEngineURL)
	if err != nil {
		return fmt.Errorf("invalid search engine URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("search engine URL must include a host")
	}

	if c.LowResultThreshold < 0 {
		return fmt.Errorf("low result threshold cannot be negative")
	}
	if c.BatchConcurrency <= 0 {
		return fmt.Errorf("batch concurrency must be positive")
	}
	if c.BatchPause < 0 {
		return fmt.Errorf("batch pause cannot be negative")
	}
	if c.OversampleFactor < 1 {
		return fmt.Errorf("oversample factor must be at least 1")
	}
	if c.LLMAPIKey != "" {
		if u, err := url.Parse(c.LLMBaseURL); err != nil || u.Host == "" {
			return fmt.Errorf("LLM base URL must be absolute when an API key is set")
		}
		if c.LLMModel == "" {
			return fmt.Errorf("LLM model cannot be empty when an API key is set")
		}
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM timeout must be positive")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}
	if c.CacheSize > 0 && c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive when the cache is enabled")
	}
	if c.APIRateLimit < 0 {
		return fmt.Errorf("API rate limit cannot be negative")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}

	return nil
}
