// Package persistence provides database storage implementations.
package persistence

import "time"

// RepositoryModel is the GORM model for repository records.
type RepositoryModel struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	RepoURL       string `gorm:"column:repo_url;uniqueIndex;not null"`
	Owner         string `gorm:"not null"`
	Name          string `gorm:"not null"`
	Description   string
	Stars         int
	Languages     string // JSON-encoded list
	DefaultBranch string

	Status       string `gorm:"index;not null"`
	Progress     int
	TotalFiles   int
	IndexedFiles int
	ErrorMessage string

	IndexedAt      *time.Time
	LastAccessedAt *time.Time
	AccessCount    int
	CacheTTLHours  int

	Summary           string
	Quickstart        string
	ContributionGuide string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the database table name.
func (RepositoryModel) TableName() string { return "repositories" }

// FileModel is the GORM model for indexed files. A file is uniquely
// identified by (repo_id, path) and cascades away with its repository.
type FileModel struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	RepoID   int64  `gorm:"column:repo_id;uniqueIndex:idx_files_repo_path;index;not null"`
	Path     string `gorm:"uniqueIndex:idx_files_repo_path;not null"`
	Content  string
	Size     int
	Language string
	Kind     string `gorm:"not null;default:file"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the database table name.
func (FileModel) TableName() string { return "files" }

// ProgressModel is the GORM model for the per-repository indexing progress
// row. The repository ID is the primary key, so writes are upserts and the
// datastore's conflict resolution serializes concurrent updates.
type ProgressModel struct {
	RepoID       int64  `gorm:"column:repo_id;primaryKey"`
	Status       string `gorm:"not null"`
	Progress     int
	CurrentStep  string
	TotalFiles   int
	IndexedFiles int
	ErrorMessage string
	StartedAt    time.Time
	CompletedAt  *time.Time

	UpdatedAt time.Time
}

// TableName returns the database table name.
func (ProgressModel) TableName() string { return "indexing_progress" }
