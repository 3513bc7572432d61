// Package repolens turns a remote GitHub repository into a local queryable
// knowledge base and answers questions about it grounded in real file
// contents.
//
// Basic usage:
//
//	client, err := repolens.New(
//	    repolens.WithSQLite(".repolens/data.db"),
//	    repolens.WithGitHubToken(os.Getenv("GITHUB_TOKEN")),
//	    repolens.WithOpenAI(os.Getenv("OPENAI_API_KEY")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Request indexing; a cached repository returns immediately.
//	rec, started, err := client.Indexer.Request(ctx, "https://github.com/gin-gonic/gin")
//
//	// Ask a question once indexing completes.
//	answer, err := client.Ask.Answer(ctx, service.Question{
//	    RepoID: rec.ID(),
//	    Text:   "how does routing work?",
//	})
package repolens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/repolens/repolens/application/service"
	domainservice "github.com/repolens/repolens/domain/service"
	"github.com/repolens/repolens/infrastructure/github"
	"github.com/repolens/repolens/infrastructure/persistence"
	"github.com/repolens/repolens/infrastructure/provider"
	"github.com/repolens/repolens/infrastructure/search"
	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/internal/database"
	"github.com/repolens/repolens/internal/limiter"
	"github.com/repolens/repolens/internal/log"
	"github.com/repolens/repolens/internal/metrics"
)

// ErrNoDatabase indicates no database option was provided to New.
var ErrNoDatabase = errors.New("repolens: no database configured, use WithSQLite or WithDatabaseURL")

// Client is the main entry point for the repolens library.
//
// Access operations via the service fields:
//
//	client.Indexer.Request(ctx, url)
//	client.Repositories.Tree(ctx, id)
//	client.Ask.Answer(ctx, question)
type Client struct {
	// Public service fields (direct access)
	Indexer      *service.Indexer
	Repositories *service.Repository
	Retrieval    *service.Retrieval
	Ask          *service.Ask

	db      database.Database
	metrics *metrics.Metrics
	logger  *slog.Logger
	apiKeys []string
	closed  atomic.Bool
}

// New creates a Client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.dbURL == "" {
		return nil, ErrNoDatabase
	}

	logger := cfg.logger
	if logger == nil {
		logger = log.NewLogger(config.NewAppConfig()).Slog()
	}

	ctx := context.Background()

	db, err := database.NewDatabase(ctx, cfg.dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := persistence.AutoMigrate(db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("auto migrate: %w", err), errClose)
	}

	// Create stores
	repoStore := persistence.NewRepositoryStore(db)
	fileStore := persistence.NewFileStore(db)
	progressStore := persistence.NewProgressStore(db)

	index, err := search.NewFTSIndex(db, logger)
	if err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("search index: %w", err), errClose)
	}

	// Create the repository host client
	hostClient := cfg.hostClient
	if hostClient == nil {
		ghClient, err := github.NewAPIClient(cfg.githubToken)
		if err != nil {
			errClose := db.Close()
			return nil, errors.Join(fmt.Errorf("github client: %w", err), errClose)
		}
		hostClient = github.NewFetcher(ghClient, cfg.fetch, logger)
	}

	m := metrics.New()
	lim := limiter.New(cfg.fetch.Concurrency())

	insights := service.NewInsights(hostClient, cfg.completer, logger)

	client := &Client{
		db:      db,
		metrics: m,
		logger:  logger,
		apiKeys: cfg.apiKeys,
	}

	client.Indexer = service.NewIndexer(repoStore, fileStore, progressStore, hostClient, index, insights, lim, m, logger)
	client.Repositories = service.NewRepository(repoStore, fileStore, progressStore, index, hostClient, logger)
	client.Retrieval = service.NewRetrieval(fileStore, index, hostClient, m, logger, cfg.searchLimit)
	client.Ask = service.NewAsk(repoStore, client.Retrieval, cfg.completer, logger)

	return client, nil
}

// Close releases the database. Safe to call once.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return service.ErrClientClosed
	}

	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	c.logger.Info("repolens client closed")
	return nil
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Metrics returns the client's metrics collectors.
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

// APIKeys returns the configured API keys for HTTP write protection.
func (c *Client) APIKeys() []string {
	keys := make([]string, len(c.apiKeys))
	copy(keys, c.apiKeys)
	return keys
}

// buildCompleter constructs the completion backend from an endpoint config.
func buildCompleter(endpoint config.Endpoint) domainservice.Completer {
	if !endpoint.Configured() {
		return nil
	}
	var opts []provider.OpenAIOption
	if endpoint.Model() != "" {
		opts = append(opts, provider.WithModel(endpoint.Model()))
	}
	return provider.NewOpenAICompleter(endpoint.APIKey(), endpoint.BaseURL(), endpoint.Timeout(), opts...)
}
