package repo

import (
	"context"
	"time"
)

// RepositoryStore persists Repository records.
type RepositoryStore interface {
	Save(ctx context.Context, repo Repository) (Repository, error)
	Find(ctx context.Context, options ...Option) ([]Repository, error)
	FindOne(ctx context.Context, options ...Option) (Repository, error)
	Exists(ctx context.Context, options ...Option) (bool, error)
	Count(ctx context.Context, options ...Option) (int64, error)

	// UpdateStatus applies one state-machine transition to the record.
	UpdateStatus(ctx context.Context, id int64, update StatusUpdate) error

	// UpdateAccess bumps last_accessed_at and access_count. Only called on
	// valid, completed cache hits.
	UpdateAccess(ctx context.Context, id int64, now time.Time) error

	// UpdateInsights stores the README-derived insight sections.
	UpdateInsights(ctx context.Context, id int64, insights Insights) error

	// UpdateLanguages stores the detected language list.
	UpdateLanguages(ctx context.Context, id int64, languages []string) error

	// Delete removes the record. File and progress rows cascade.
	Delete(ctx context.Context, id int64) error
}

// FileStore persists indexed files.
type FileStore interface {
	Save(ctx context.Context, file File) (File, error)
	SaveAll(ctx context.Context, files []File) ([]File, error)
	Find(ctx context.Context, options ...Option) ([]File, error)
	FindOne(ctx context.Context, options ...Option) (File, error)
	Count(ctx context.Context, options ...Option) (int64, error)
	DeleteByRepo(ctx context.Context, repoID int64) error
}

// ProgressStore persists the per-repository indexing progress row.
type ProgressStore interface {
	// Upsert creates or overwrites the single progress row for the
	// repository identified by progress.RepoID().
	Upsert(ctx context.Context, progress Progress) (Progress, error)
	FindByRepo(ctx context.Context, repoID int64) (Progress, error)
	DeleteByRepo(ctx context.Context, repoID int64) error
}
