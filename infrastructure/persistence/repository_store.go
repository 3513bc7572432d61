package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/repolens/repolens/domain/repo"
	"github.com/repolens/repolens/internal/database"
	"github.com/repolens/repolens/internal/retry"
)

// Store write-retry defaults. Persistence failures must not silently corrupt
// the progress log a polling client reads, so every mutation is retried with
// exponential backoff before the fault surfaces.
const (
	writeMaxAttempts = 3
	writeBaseDelay   = time.Second
)

// writePolicy returns the retry policy shared by all store mutations.
// Not-found is never retryable; everything else is treated as a transient
// persistence fault.
func writePolicy() retry.Policy {
	return retry.NewPolicy(writeMaxAttempts, writeBaseDelay, func(err error) bool {
		return !errors.Is(err, database.ErrNotFound) &&
			!errors.Is(err, gorm.ErrRecordNotFound) &&
			!errors.Is(err, gorm.ErrDuplicatedKey)
	})
}

// RepositoryStore implements repo.RepositoryStore using GORM.
type RepositoryStore struct {
	database.Repository[repo.Repository, RepositoryModel]
	policy retry.Policy
}

// NewRepositoryStore creates a new RepositoryStore.
func NewRepositoryStore(db database.Database) RepositoryStore {
	return RepositoryStore{
		Repository: database.NewRepository[repo.Repository, RepositoryModel](db, RepositoryMapper{}, "repository"),
		policy:     writePolicy(),
	}
}

// Save creates or updates a repository record.
func (s RepositoryStore) Save(ctx context.Context, repository repo.Repository) (repo.Repository, error) {
	model := s.Mapper().ToModel(repository)

	err := s.policy.Do(ctx, func() error {
		if model.ID == 0 {
			return s.DB(ctx).Create(&model).Error
		}
		return s.DB(ctx).Save(&model).Error
	})
	if err != nil {
		return repo.Repository{}, fmt.Errorf("save repository: %w", err)
	}
	return s.Mapper().ToDomain(model), nil
}

// UpdateStatus applies one state-machine transition to the record. The
// indexed_at timestamp is stamped on the transition to completed.
func (s RepositoryStore) UpdateStatus(ctx context.Context, id int64, update repo.StatusUpdate) error {
	columns := map[string]any{
		"status":        string(update.Status),
		"progress":      update.Progress,
		"error_message": update.ErrorMessage,
		"updated_at":    time.Now().UTC(),
	}
	if update.TotalFiles != nil {
		columns["total_files"] = *update.TotalFiles
	}
	if update.IndexedFiles != nil {
		columns["indexed_files"] = *update.IndexedFiles
	}
	if update.Status == repo.StatusCompleted {
		columns["indexed_at"] = time.Now().UTC()
	}

	err := s.policy.Do(ctx, func() error {
		return s.DB(ctx).Model(&RepositoryModel{}).Where("id = ?", id).Updates(columns).Error
	})
	if err != nil {
		return fmt.Errorf("update repository status: %w", err)
	}
	return nil
}

// UpdateAccess bumps last_accessed_at and access_count.
func (s RepositoryStore) UpdateAccess(ctx context.Context, id int64, now time.Time) error {
	err := s.policy.Do(ctx, func() error {
		return s.DB(ctx).Model(&RepositoryModel{}).Where("id = ?", id).Updates(map[string]any{
			"last_accessed_at": now,
			"access_count":     gorm.Expr("access_count + 1"),
			"updated_at":       now,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("update repository access: %w", err)
	}
	return nil
}

// UpdateInsights stores the README-derived insight sections.
func (s RepositoryStore) UpdateInsights(ctx context.Context, id int64, insights repo.Insights) error {
	err := s.policy.Do(ctx, func() error {
		return s.DB(ctx).Model(&RepositoryModel{}).Where("id = ?", id).Updates(map[string]any{
			"summary":            insights.Summary(),
			"quickstart":         insights.Quickstart(),
			"contribution_guide": insights.ContributionGuide(),
			"updated_at":         time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("update repository insights: %w", err)
	}
	return nil
}

// UpdateLanguages stores the detected language list.
func (s RepositoryStore) UpdateLanguages(ctx context.Context, id int64, languages []string) error {
	encoded, err := json.Marshal(languages)
	if err != nil {
		return fmt.Errorf("encode languages: %w", err)
	}
	err = s.policy.Do(ctx, func() error {
		return s.DB(ctx).Model(&RepositoryModel{}).Where("id = ?", id).Updates(map[string]any{
			"languages":  string(encoded),
			"updated_at": time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("update repository languages: %w", err)
	}
	return nil
}

// Delete removes the repository together with its files and progress row.
func (s RepositoryStore) Delete(ctx context.Context, id int64) error {
	err := s.policy.Do(ctx, func() error {
		return database.WithTransaction(ctx, s.Database(), func(tx *gorm.DB) error {
			if err := tx.Where("repo_id = ?", id).Delete(&FileModel{}).Error; err != nil {
				return err
			}
			if err := tx.Where("repo_id = ?", id).Delete(&ProgressModel{}).Error; err != nil {
				return err
			}
			return tx.Where("id = ?", id).Delete(&RepositoryModel{}).Error
		})
	})
	if err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	return nil
}
