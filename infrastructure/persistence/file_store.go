package persistence

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/repolens/repolens/domain/repo"
	"github.com/repolens/repolens/internal/database"
	"github.com/repolens/repolens/internal/retry"
)

// FileStore implements repo.FileStore using GORM.
type FileStore struct {
	database.Repository[repo.File, FileModel]
	policy retry.Policy
}

// NewFileStore creates a new FileStore.
func NewFileStore(db database.Database) FileStore {
	return FileStore{
		Repository: database.NewRepository[repo.File, FileModel](db, FileMapper{}, "file"),
		policy:     writePolicy(),
	}
}

var fileConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "repo_id"}, {Name: "path"}},
	DoUpdates: clause.AssignmentColumns([]string{"content", "size", "language", "kind", "updated_at"}),
}

// Save creates or updates a file, keyed by (repo_id, path).
func (s FileStore) Save(ctx context.Context, file repo.File) (repo.File, error) {
	model := s.Mapper().ToModel(file)

	err := s.policy.Do(ctx, func() error {
		return s.DB(ctx).Clauses(fileConflict).Create(&model).Error
	})
	if err != nil {
		return repo.File{}, fmt.Errorf("save file: %w", err)
	}
	return s.Mapper().ToDomain(model), nil
}

// SaveAll creates or updates multiple files.
func (s FileStore) SaveAll(ctx context.Context, files []repo.File) ([]repo.File, error) {
	if len(files) == 0 {
		return []repo.File{}, nil
	}

	models := make([]FileModel, len(files))
	for i, f := range files {
		models[i] = s.Mapper().ToModel(f)
	}

	err := s.policy.Do(ctx, func() error {
		return s.DB(ctx).Clauses(fileConflict).Create(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("save files: %w", err)
	}

	saved := make([]repo.File, len(models))
	for i, m := range models {
		saved[i] = s.Mapper().ToDomain(m)
	}
	return saved, nil
}

// DeleteByRepo removes every file belonging to the repository.
func (s FileStore) DeleteByRepo(ctx context.Context, repoID int64) error {
	err := s.policy.Do(ctx, func() error {
		return s.DB(ctx).Where("repo_id = ?", repoID).Delete(&FileModel{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete files: %w", err)
	}
	return nil
}
