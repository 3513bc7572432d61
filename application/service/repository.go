package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/repolens/repolens/domain/host"
	"github.com/repolens/repolens/domain/repo"
	"github.com/repolens/repolens/domain/search"
	"github.com/repolens/repolens/internal/database"
)

// RepositoryListParams configures repository listing.
type RepositoryListParams struct {
	Limit  int
	Offset int
}

// Repository provides repository queries and cache lifecycle operations.
type Repository struct {
	repos    repo.RepositoryStore
	files    repo.FileStore
	progress repo.ProgressStore
	index    search.Index
	host     host.Client
	logger   *slog.Logger
}

// NewRepository creates a Repository service.
func NewRepository(
	repos repo.RepositoryStore,
	files repo.FileStore,
	progress repo.ProgressStore,
	index search.Index,
	hostClient host.Client,
	logger *slog.Logger,
) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		repos:    repos,
		files:    files,
		progress: progress,
		index:    index,
		host:     hostClient,
		logger:   logger,
	}
}

// List returns repository records, most recently created first.
func (s *Repository) List(ctx context.Context, params RepositoryListParams) ([]repo.Repository, error) {
	options := []repo.Option{repo.WithOrderDesc("created_at")}
	if params.Limit > 0 {
		options = append(options, repo.WithPagination(params.Limit, params.Offset)...)
	}
	return s.repos.Find(ctx, options...)
}

// Count returns the total number of repository records.
func (s *Repository) Count(ctx context.Context) (int64, error) {
	return s.repos.Count(ctx)
}

// Get returns one repository record by identifier.
func (s *Repository) Get(ctx context.Context, id int64) (repo.Repository, error) {
	rec, err := s.repos.FindOne(ctx, repo.WithID(id))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return repo.Repository{}, fmt.Errorf("%w: id %d", ErrRepositoryNotFound, id)
		}
		return repo.Repository{}, err
	}
	return rec, nil
}

// GetByURL returns one repository record by its canonical URL. The raw URL
// is normalized before lookup.
func (s *Repository) GetByURL(ctx context.Context, rawURL string) (repo.Repository, error) {
	ref, err := repo.ParseURL(rawURL)
	if err != nil {
		return repo.Repository{}, err
	}
	rec, err := s.repos.FindOne(ctx, repo.WithURL(ref.URL()))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return repo.Repository{}, fmt.Errorf("%w: %s", ErrRepositoryNotFound, ref.URL())
		}
		return repo.Repository{}, err
	}
	return rec, nil
}

// Status returns the latest indexing progress row for the repository. When
// no row exists yet, a synthetic row is derived from the record itself so a
// polling client always gets an answer.
func (s *Repository) Status(ctx context.Context, id int64) (repo.Progress, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return repo.Progress{}, err
	}

	row, err := s.progress.FindByRepo(ctx, id)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			return repo.Progress{}, err
		}
		return repo.ReconstructProgress(
			rec.ID(), rec.Status(), rec.Progress(), "",
			rec.TotalFiles(), rec.IndexedFiles(), rec.ErrorMessage(),
			rec.CreatedAt(), rec.IndexedAt(),
		), nil
	}
	return row, nil
}

// Tree rebuilds the hierarchical file tree from the indexed file records.
func (s *Repository) Tree(ctx context.Context, id int64) (repo.Tree, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return repo.Tree{}, err
	}
	files, err := s.files.Find(ctx, repo.WithRepoID(id), repo.WithOrderAsc("path"))
	if err != nil {
		return repo.Tree{}, fmt.Errorf("find files: %w", err)
	}
	return repo.BuildTree(files), nil
}

// Issues returns the repository's open issues from the host, optionally
// filtered by label.
func (s *Repository) Issues(ctx context.Context, id int64, label string) ([]host.Issue, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ref, err := repo.ParseURL(rec.URL())
	if err != nil {
		return nil, err
	}
	return s.host.OpenIssues(ctx, ref, label)
}

// ClearCache destroys the repository record with its files and progress
// row, and removes its documents from the search index. The next indexing
// request starts from scratch.
func (s *Repository) ClearCache(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if err := s.index.DeleteRepository(ctx, id); err != nil {
		return fmt.Errorf("clear search index: %w", err)
	}
	if err := s.repos.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}

	s.logger.Info("repository cache cleared", slog.Int64("repo_id", id))
	return nil
}
