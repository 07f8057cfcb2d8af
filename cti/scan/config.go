package scan

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the lookup service connection settings.
type Config struct {
	// BaseURL is the root of the lookup service, e.g. http://localhost:8000.
	BaseURL string `yaml:"base_url"`
	// Timeout bounds every request, including the scan itself.
	Timeout time.Duration `yaml:"timeout"`
	// APIKey is sent as X-API-Key when set.
	APIKey    string `yaml:"api_key"`
	UserAgent string `yaml:"user_agent"`
	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// DefaultConfig returns the default lookup service configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "http://localhost:8000",
		Timeout:      60 * time.Second,
		UserAgent:    "cti-go-api/1.0",
		MaxBodyBytes: 10 << 20,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("scan config is nil")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base URL %q: scheme must be http or https", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

func (c *Config) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}
