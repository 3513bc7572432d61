package persistence

import (
	"encoding/json"
	"time"

	"github.com/repolens/repolens/domain/repo"
)

// RepositoryMapper maps between domain Repository and RepositoryModel.
type RepositoryMapper struct{}

// ToDomain converts a RepositoryModel to a domain Repository.
func (m RepositoryMapper) ToDomain(e RepositoryModel) repo.Repository {
	var languages []string
	if e.Languages != "" {
		// A corrupt column yields an empty list rather than an error;
		// languages are derived data and recomputed on re-index.
		_ = json.Unmarshal([]byte(e.Languages), &languages)
	}

	var indexedAt, lastAccessedAt time.Time
	if e.IndexedAt != nil {
		indexedAt = *e.IndexedAt
	}
	if e.LastAccessedAt != nil {
		lastAccessedAt = *e.LastAccessedAt
	}

	return repo.ReconstructRepository(
		e.ID,
		e.RepoURL, e.Owner, e.Name, e.Description,
		e.Stars,
		languages,
		e.DefaultBranch,
		repo.Status(e.Status),
		e.Progress, e.TotalFiles, e.IndexedFiles,
		e.ErrorMessage,
		indexedAt, lastAccessedAt,
		e.AccessCount, e.CacheTTLHours,
		repo.NewInsights(e.Summary, e.Quickstart, e.ContributionGuide),
		e.CreatedAt, e.UpdatedAt,
	)
}

// ToModel converts a domain Repository to a RepositoryModel.
func (m RepositoryMapper) ToModel(r repo.Repository) RepositoryModel {
	var languages string
	if langs := r.Languages(); len(langs) > 0 {
		if encoded, err := json.Marshal(langs); err == nil {
			languages = string(encoded)
		}
	}

	var indexedAt, lastAccessedAt *time.Time
	if !r.IndexedAt().IsZero() {
		t := r.IndexedAt()
		indexedAt = &t
	}
	if !r.LastAccessedAt().IsZero() {
		t := r.LastAccessedAt()
		lastAccessedAt = &t
	}

	return RepositoryModel{
		ID:                r.ID(),
		RepoURL:           r.URL(),
		Owner:             r.Owner(),
		Name:              r.Name(),
		Description:       r.Description(),
		Stars:             r.Stars(),
		Languages:         languages,
		DefaultBranch:     r.DefaultBranch(),
		Status:            string(r.Status()),
		Progress:          r.Progress(),
		TotalFiles:        r.TotalFiles(),
		IndexedFiles:      r.IndexedFiles(),
		ErrorMessage:      r.ErrorMessage(),
		IndexedAt:         indexedAt,
		LastAccessedAt:    lastAccessedAt,
		AccessCount:       r.AccessCount(),
		CacheTTLHours:     r.CacheTTLHours(),
		Summary:           r.Insights().Summary(),
		Quickstart:        r.Insights().Quickstart(),
		ContributionGuide: r.Insights().ContributionGuide(),
		CreatedAt:         r.CreatedAt(),
		UpdatedAt:         r.UpdatedAt(),
	}
}

// FileMapper maps between domain File and FileModel.
type FileMapper struct{}

// ToDomain converts a FileModel to a domain File.
func (m FileMapper) ToDomain(e FileModel) repo.File {
	return repo.ReconstructFile(e.ID, e.RepoID, e.Path, e.Content, e.Size, e.Language, repo.NodeKind(e.Kind))
}

// ToModel converts a domain File to a FileModel.
func (m FileMapper) ToModel(f repo.File) FileModel {
	return FileModel{
		ID:       f.ID(),
		RepoID:   f.RepoID(),
		Path:     f.Path(),
		Content:  f.Content(),
		Size:     f.Size(),
		Language: f.Language(),
		Kind:     string(f.Kind()),
	}
}

// ProgressMapper maps between domain Progress and ProgressModel.
type ProgressMapper struct{}

// ToDomain converts a ProgressModel to a domain Progress.
func (m ProgressMapper) ToDomain(e ProgressModel) repo.Progress {
	var completedAt time.Time
	if e.CompletedAt != nil {
		completedAt = *e.CompletedAt
	}
	return repo.ReconstructProgress(
		e.RepoID,
		repo.Status(e.Status),
		e.Progress,
		e.CurrentStep,
		e.TotalFiles, e.IndexedFiles,
		e.ErrorMessage,
		e.StartedAt, completedAt,
	)
}

// ToModel converts a domain Progress to a ProgressModel.
func (m ProgressMapper) ToModel(p repo.Progress) ProgressModel {
	var completedAt *time.Time
	if !p.CompletedAt().IsZero() {
		t := p.CompletedAt()
		completedAt = &t
	}
	return ProgressModel{
		RepoID:       p.RepoID(),
		Status:       string(p.Status()),
		Progress:     p.Percent(),
		CurrentStep:  p.CurrentStep(),
		TotalFiles:   p.TotalFiles(),
		IndexedFiles: p.IndexedFiles(),
		ErrorMessage: p.ErrorMessage(),
		StartedAt:    p.StartedAt(),
		CompletedAt:  completedAt,
	}
}
