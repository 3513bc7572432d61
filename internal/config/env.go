// Package config provides application configuration.
package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration. Nested structs use an
// underscore delimiter (e.g. COMPLETION_ENDPOINT_BASE_URL).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DataDir is the data directory path.
	// Env: DATA_DIR
	// Default: ~/.repolens
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the database connection URL.
	// Env: DB_URL
	// Default: sqlite:///{data_dir}/repolens.db
	DBURL string `envconfig:"DB_URL"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// GitHubToken is the host API token for authenticated requests.
	// Env: GITHUB_TOKEN
	GitHubToken string `envconfig:"GITHUB_TOKEN"`

	// CompletionEndpoint configures the completion AI service.
	CompletionEndpoint EndpointEnv `envconfig:"COMPLETION_ENDPOINT"`

	// Fetch configures the host content fetcher.
	Fetch FetchEnv `envconfig:"FETCH"`

	// SearchLimit is the default search result limit.
	// Env: SEARCH_LIMIT (default: 10)
	SearchLimit int `envconfig:"SEARCH_LIMIT" default:"10"`

	// CORSOrigins is a comma-separated list of allowed origins.
	// Env: CORS_ORIGINS (default: *)
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"*"`

	// APIKeys is a comma-separated list of valid API keys for write
	// protection. Empty disables authentication.
	// Env: API_KEYS
	APIKeys string `envconfig:"API_KEYS"`
}

// EndpointEnv holds environment configuration for the completion endpoint.
type EndpointEnv struct {
	// BaseURL is the base URL for the endpoint.
	// Env: COMPLETION_ENDPOINT_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the model identifier.
	// Env: COMPLETION_ENDPOINT_MODEL (default: gpt-4o-mini)
	Model string `envconfig:"MODEL" default:"gpt-4o-mini"`

	// APIKey is the API key for authentication.
	// Env: COMPLETION_ENDPOINT_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Timeout is the request timeout in seconds.
	// Env: COMPLETION_ENDPOINT_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`
}

// FetchEnv holds environment configuration for the content fetcher.
type FetchEnv struct {
	// Concurrency bounds simultaneous host fetches.
	// Env: FETCH_CONCURRENCY (default: 5)
	Concurrency int `envconfig:"CONCURRENCY" default:"5"`

	// MaxRetries is the retry ceiling for transient host faults.
	// Env: FETCH_MAX_RETRIES (default: 3)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"3"`

	// BaseDelayMs is the first retry delay in milliseconds.
	// Env: FETCH_BASE_DELAY_MS (default: 400)
	BaseDelayMs int `envconfig:"BASE_DELAY_MS" default:"400"`

	// TimeoutSeconds caps individual metadata and tree fetches.
	// Env: FETCH_TIMEOUT_SECONDS (default: 15)
	TimeoutSeconds float64 `envconfig:"TIMEOUT_SECONDS" default:"15"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts environment configuration into an AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig()

	cfg.host = e.Host
	cfg.port = e.Port
	if e.DataDir != "" {
		cfg.dataDir = e.DataDir
		cfg.dbURL = "sqlite:///" + e.DataDir + "/repolens.db"
	}
	if e.DBURL != "" {
		cfg.dbURL = e.DBURL
	}
	cfg.logLevel = e.LogLevel
	if strings.EqualFold(e.LogFormat, string(LogFormatJSON)) {
		cfg.logFormat = LogFormatJSON
	} else {
		cfg.logFormat = LogFormatPretty
	}
	cfg.githubToken = e.GitHubToken

	cfg.completionEndpoint = NewEndpoint(
		e.CompletionEndpoint.BaseURL,
		e.CompletionEndpoint.Model,
		e.CompletionEndpoint.APIKey,
		time.Duration(e.CompletionEndpoint.Timeout*float64(time.Second)),
	)

	cfg.fetch = FetchConfig{
		concurrency: e.Fetch.Concurrency,
		maxRetries:  e.Fetch.MaxRetries,
		baseDelay:   time.Duration(e.Fetch.BaseDelayMs) * time.Millisecond,
		timeout:     time.Duration(e.Fetch.TimeoutSeconds * float64(time.Second)),
	}

	if e.SearchLimit > 0 {
		cfg.searchLimit = e.SearchLimit
	}

	if e.CORSOrigins != "" {
		parts := strings.Split(e.CORSOrigins, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		cfg.corsOrigins = origins
	}

	cfg.apiKeys = ParseAPIKeys(e.APIKeys)

	return cfg
}
