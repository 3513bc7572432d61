// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 8080
	DefaultLogLevel         = "INFO"
	DefaultFetchConcurrency = 5
	DefaultFetchMaxRetries  = 3
	DefaultFetchBaseDelay   = 400 * time.Millisecond
	DefaultHostTimeout      = 15 * time.Second
	DefaultStoreMaxRetries  = 3
	DefaultStoreBaseDelay   = time.Second
	DefaultSearchLimit      = 10
	DefaultContextFileChars = 3000
	DefaultMaxContextFiles  = 8
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// Endpoint configures the completion AI service.
type Endpoint struct {
	baseURL string
	model   string
	apiKey  string
	timeout time.Duration
}

// NewEndpoint creates an Endpoint.
func NewEndpoint(baseURL, model, apiKey string, timeout time.Duration) Endpoint {
	return Endpoint{baseURL: baseURL, model: model, apiKey: apiKey, timeout: timeout}
}

// BaseURL returns the base URL for the endpoint.
func (e Endpoint) BaseURL() string { return e.baseURL }

// Model returns the model identifier.
func (e Endpoint) Model() string { return e.model }

// APIKey returns the API key.
func (e Endpoint) APIKey() string { return e.apiKey }

// Timeout returns the request timeout.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// Configured reports whether the endpoint has an API key set.
func (e Endpoint) Configured() bool { return e.apiKey != "" }

// FetchConfig configures the host content fetcher.
type FetchConfig struct {
	concurrency int
	maxRetries  int
	baseDelay   time.Duration
	timeout     time.Duration
}

// NewFetchConfig creates a FetchConfig with defaults.
func NewFetchConfig() FetchConfig {
	return FetchConfig{
		concurrency: DefaultFetchConcurrency,
		maxRetries:  DefaultFetchMaxRetries,
		baseDelay:   DefaultFetchBaseDelay,
		timeout:     DefaultHostTimeout,
	}
}

// Concurrency returns the maximum simultaneous host fetches.
func (f FetchConfig) Concurrency() int { return f.concurrency }

// MaxRetries returns the retry attempt ceiling for transient faults.
func (f FetchConfig) MaxRetries() int { return f.maxRetries }

// BaseDelay returns the first retry delay; each retry doubles it.
func (f FetchConfig) BaseDelay() time.Duration { return f.baseDelay }

// Timeout returns the per-call cap on metadata and tree fetches.
func (f FetchConfig) Timeout() time.Duration { return f.timeout }

// WithConcurrency returns a copy with the concurrency bound replaced.
func (f FetchConfig) WithConcurrency(n int) FetchConfig {
	f.concurrency = n
	return f
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host               string
	port               int
	dataDir            string
	dbURL              string
	logLevel           string
	logFormat          LogFormat
	githubToken        string
	completionEndpoint Endpoint
	fetch              FetchConfig
	searchLimit        int
	corsOrigins        []string
	apiKeys            []string
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".repolens"
	}
	return filepath.Join(home, ".repolens")
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		host:        DefaultHost,
		port:        DefaultPort,
		dataDir:     dataDir,
		dbURL:       "sqlite:///" + filepath.Join(dataDir, "repolens.db"),
		logLevel:    DefaultLogLevel,
		logFormat:   LogFormatPretty,
		fetch:       NewFetchConfig(),
		searchLimit: DefaultSearchLimit,
		corsOrigins: []string{"*"},
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// GitHubToken returns the host API token (may be empty for anonymous access).
func (c AppConfig) GitHubToken() string { return c.githubToken }

// CompletionEndpoint returns the completion backend config.
func (c AppConfig) CompletionEndpoint() Endpoint { return c.completionEndpoint }

// Fetch returns the content fetcher config.
func (c AppConfig) Fetch() FetchConfig { return c.fetch }

// SearchLimit returns the default search result limit.
func (c AppConfig) SearchLimit() int { return c.searchLimit }

// CORSOrigins returns the allowed CORS origins.
func (c AppConfig) CORSOrigins() []string {
	out := make([]string, len(c.corsOrigins))
	copy(out, c.corsOrigins)
	return out
}

// APIKeys returns the configured API keys for write protection.
func (c AppConfig) APIKeys() []string {
	out := make([]string, len(c.apiKeys))
	copy(out, c.apiKeys)
	return out
}

// LogAttrs returns the non-secret settings for the startup log line.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("addr", c.Addr()),
		slog.String("data_dir", c.dataDir),
		slog.String("db_url", redactURL(c.dbURL)),
		slog.String("log_level", c.logLevel),
		slog.Bool("github_token_set", c.githubToken != ""),
		slog.Bool("completion_configured", c.completionEndpoint.Configured()),
		slog.Int("fetch_concurrency", c.fetch.Concurrency()),
	}
}

// redactURL strips credentials from a database URL for logging.
func redactURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	scheme := strings.Index(url, "://")
	if scheme < 0 {
		return url
	}
	return url[:scheme+3] + "***" + url[at:]
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithGitHubToken sets the host API token.
func WithGitHubToken(token string) AppConfigOption {
	return func(c *AppConfig) { c.githubToken = token }
}

// WithAPIKeys sets the API keys for write protection.
func WithAPIKeys(keys []string) AppConfigOption {
	return func(c *AppConfig) {
		c.apiKeys = make([]string, len(keys))
		copy(c.apiKeys, keys)
	}
}

// Apply returns a copy with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// NewAppConfigWithOptions creates an AppConfig with defaults and options applied.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	cfg := NewAppConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ParseAPIKeys splits a comma-separated key list, trimming whitespace and
// dropping empty entries.
func ParseAPIKeys(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}
