package main

import (
	"github.com/repolens/repolens"
	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/internal/log"
)

// buildClientOptions translates loaded configuration into client options.
func buildClientOptions(cfg config.AppConfig, logger *log.Logger) []repolens.Option {
	opts := []repolens.Option{
		repolens.WithDatabaseURL(cfg.DBURL()),
		repolens.WithLogger(logger.Slog()),
		repolens.WithFetchConfig(cfg.Fetch()),
		repolens.WithSearchLimit(cfg.SearchLimit()),
	}

	if token := cfg.GitHubToken(); token != "" {
		opts = append(opts, repolens.WithGitHubToken(token))
	}

	if endpoint := cfg.CompletionEndpoint(); endpoint.Configured() {
		opts = append(opts, repolens.WithCompletionEndpoint(endpoint))
	}

	if keys := cfg.APIKeys(); len(keys) > 0 {
		opts = append(opts, repolens.WithAPIKeys(keys...))
	}

	return opts
}
