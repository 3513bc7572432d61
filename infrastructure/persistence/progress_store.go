package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/repolens/repolens/domain/repo"
	"github.com/repolens/repolens/internal/database"
	"github.com/repolens/repolens/internal/retry"
)

// ProgressStore implements repo.ProgressStore using GORM. The repo_id
// primary key makes every write an upsert, which is the only write
// serialization this design assumes.
type ProgressStore struct {
	db     database.Database
	mapper ProgressMapper
	policy retry.Policy
}

// NewProgressStore creates a new ProgressStore.
func NewProgressStore(db database.Database) ProgressStore {
	return ProgressStore{
		db:     db,
		policy: writePolicy(),
	}
}

// Upsert creates or overwrites the progress row for the repository.
func (s ProgressStore) Upsert(ctx context.Context, progress repo.Progress) (repo.Progress, error) {
	model := s.mapper.ToModel(progress)

	err := s.policy.Do(ctx, func() error {
		return s.db.Session(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "repo_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "progress", "current_step",
				"total_files", "indexed_files", "error_message",
				"started_at", "completed_at", "updated_at",
			}),
		}).Create(&model).Error
	})
	if err != nil {
		return repo.Progress{}, fmt.Errorf("upsert progress: %w", err)
	}
	return s.mapper.ToDomain(model), nil
}

// FindByRepo returns the progress row for the repository.
func (s ProgressStore) FindByRepo(ctx context.Context, repoID int64) (repo.Progress, error) {
	var model ProgressModel
	result := s.db.Session(ctx).Where("repo_id = ?", repoID).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return repo.Progress{}, fmt.Errorf("%w: progress", database.ErrNotFound)
		}
		return repo.Progress{}, fmt.Errorf("find progress: %w", result.Error)
	}
	return s.mapper.ToDomain(model), nil
}

// DeleteByRepo removes the progress row for the repository.
func (s ProgressStore) DeleteByRepo(ctx context.Context, repoID int64) error {
	err := s.policy.Do(ctx, func() error {
		return s.db.Session(ctx).Where("repo_id = ?", repoID).Delete(&ProgressModel{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	return nil
}
