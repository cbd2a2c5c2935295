package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "SCRAPER_"

// Config holds crawler configuration.
type Config struct {
	BaseURL          string        `env:"BASE_URL"`
	Concurrency      int           `env:"CONCURRENCY"`
	Timeout          time.Duration `env:"TIMEOUT"`
	MaxPages         int           `env:"MAX_PAGES"` // 0 crawls every page the pager reports
	ExtractWorkers   int           `env:"EXTRACT_WORKERS"`
	OutputDir        string        `env:"OUTPUT_DIR"`
	UserAgent        string        `env:"USER_AGENT"`
	RespectRobotsTxt bool          `env:"RESPECT_ROBOTS"`
	MetricsAddr      string        `env:"METRICS_ADDR"`
	Verbose          bool          `env:"VERBOSE"`
}

// DefaultConfig returns the defaults for the demo catalog.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://books.toscrape.com/",
		Concurrency:      10,
		Timeout:          20 * time.Second,
		MaxPages:         0,
		ExtractWorkers:   4,
		OutputDir:        "responses",
		UserAgent:        "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36",
		RespectRobotsTxt: false,
		MetricsAddr:      "",
		Verbose:          false,
	}
}

// LoadEnv overlays SCRAPER_* environment variables onto cfg. Unset
// variables leave the existing values untouched.
func LoadEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base URL scheme must be http or https")
	}

	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.ExtractWorkers <= 0 {
		return fmt.Errorf("extract workers must be positive")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
