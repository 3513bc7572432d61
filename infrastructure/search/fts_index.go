// Package search provides the SQLite FTS5 implementation of the full-text
// index contract.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/repolens/repolens/domain/search"
	"github.com/repolens/repolens/internal/database"
	"github.com/repolens/repolens/internal/retry"
)

// SQL statements for the FTS5 document table. The path column is indexed so
// filename mentions in a question can match; metadata columns ride along
// unindexed.
const (
	createFTSTable = `
CREATE VIRTUAL TABLE IF NOT EXISTS repolens_documents USING fts5(
    repo_id UNINDEXED,
    path,
    body,
    language UNINDEXED,
    kind UNINDEXED,
    size UNINDEXED,
    tokenize='porter ascii'
)`

	deleteDocQuery  = `DELETE FROM repolens_documents WHERE repo_id = ? AND path = ?`
	deleteRepoQuery = `DELETE FROM repolens_documents WHERE repo_id = ?`
	insertDocQuery  = `
INSERT INTO repolens_documents (repo_id, path, body, language, kind, size)
VALUES (?, ?, ?, ?, ?, ?)`
)

// metadataPath is the reserved path of the repository-level metadata
// document. Real file paths never start with a colon.
const metadataPath = ":repository:"

// ErrIndexInitializationFailed indicates the FTS5 table could not be created.
var ErrIndexInitializationFailed = errors.New("failed to initialize FTS5 index")

// Index writes go through the same retry discipline as the persistence
// stores: transient engine faults back off before surfacing.
const (
	indexWriteMaxAttempts = 3
	indexWriteBaseDelay   = time.Second
)

// FTSIndex implements search.Index using SQLite FTS5.
type FTSIndex struct {
	db     *gorm.DB
	policy retry.Policy
	logger *slog.Logger
}

// NewFTSIndex creates an FTSIndex, eagerly creating the FTS5 table.
func NewFTSIndex(db database.Database, logger *slog.Logger) (*FTSIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &FTSIndex{
		db:     db.GORM(),
		policy: retry.NewPolicy(indexWriteMaxAttempts, indexWriteBaseDelay, func(error) bool { return true }),
		logger: logger,
	}

	if err := idx.db.Exec(createFTSTable).Error; err != nil {
		return nil, errors.Join(ErrIndexInitializationFailed, err)
	}
	return idx, nil
}

// IndexRepository writes or replaces the repository metadata document.
func (s *FTSIndex) IndexRepository(ctx context.Context, doc search.RepositoryDocument) error {
	body := strings.Join([]string{doc.Owner(), doc.Name(), doc.Description(), doc.URL()}, "\n")
	return s.replace(ctx, doc.RepoID(), metadataPath, body, "", "repository", 0)
}

// IndexFile writes or replaces one per-file document.
func (s *FTSIndex) IndexFile(ctx context.Context, doc search.Document) error {
	return s.replace(ctx, doc.RepoID(), doc.Path(), doc.Content(), doc.Language(), doc.Kind(), doc.Size())
}

func (s *FTSIndex) replace(ctx context.Context, repoID int64, path, body, language, kind string, size int) error {
	return s.policy.Do(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(deleteDocQuery, repoID, path).Error; err != nil {
				return fmt.Errorf("replace document %q: %w", path, err)
			}
			if err := tx.Exec(insertDocQuery, repoID, path, body, language, kind, size).Error; err != nil {
				return fmt.Errorf("index document %q: %w", path, err)
			}
			return nil
		})
	})
}

// Search runs a free-text query scoped to one repository. Hits come back
// best first; the metadata document is excluded.
func (s *FTSIndex) Search(ctx context.Context, repoID int64, query string, limit int) ([]search.Hit, error) {
	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return []search.Hit{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	tx := s.db.WithContext(ctx).
		Table("repolens_documents").
		Select("path, body, language, bm25(repolens_documents) AS score").
		Where("repolens_documents MATCH ?", ftsQuery).
		Where("repo_id = ?", repoID).
		Where("path != ?", metadataPath).
		Order("score").
		Limit(limit)

	sqlRows, err := tx.Rows()
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer func() { _ = sqlRows.Close() }()

	var hits []search.Hit
	for sqlRows.Next() {
		var (
			path, body, language string
			score                float64
		)
		if err := sqlRows.Scan(&path, &body, &language, &score); err != nil {
			return nil, fmt.Errorf("scan fts row: %w", err)
		}
		// SQLite bm25() scores are negative, more negative is better.
		hits = append(hits, search.NewHit(path, body, language, -score))
	}
	if err := sqlRows.Err(); err != nil {
		return nil, err
	}

	return hits, nil
}

// DeleteRepository removes every document belonging to the repository,
// the metadata document included.
func (s *FTSIndex) DeleteRepository(ctx context.Context, repoID int64) error {
	err := s.policy.Do(ctx, func() error {
		return s.db.WithContext(ctx).Exec(deleteRepoQuery, repoID).Error
	})
	if err != nil {
		return fmt.Errorf("delete repository documents: %w", err)
	}
	return nil
}

// buildFTSQuery turns free text into an FTS5 OR-query of quoted tokens.
// Quoting each token neutralizes FTS5 operators and punctuation that would
// otherwise be syntax errors.
func buildFTSQuery(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		case r == '_', r == '.', r == '-', r == '/':
			return false
		default:
			return true
		}
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		trimmed := strings.Trim(f, "._-/")
		if trimmed == "" {
			continue
		}
		tokens = append(tokens, `"`+trimmed+`"`)
	}
	return strings.Join(tokens, " OR ")
}
