// Package repo provides the repository domain model: the persisted record of
// a remote repository, its indexed files, and the progress of indexing runs.
package repo

import (
	"time"
)

// Cache and popularity defaults.
const (
	// DefaultCacheTTLHours is how long a completed index stays fresh.
	DefaultCacheTTLHours = 24

	// PopularCacheTTLHours is the extended TTL for popular repositories,
	// which change less relative to how often they are queried.
	PopularCacheTTLHours = 168

	// PopularStarsThreshold is the star count above which a repository is
	// considered popular.
	PopularStarsThreshold = 1000
)

// Status represents the indexing lifecycle state of a repository.
type Status string

// Status values.
const (
	StatusPending   Status = "pending"
	StatusIndexing  Status = "indexing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is a run-terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Insights holds the README-derived summary sections for a repository.
type Insights struct {
	summary           string
	quickstart        string
	contributionGuide string
}

// NewInsights creates a new Insights value.
func NewInsights(summary, quickstart, contributionGuide string) Insights {
	return Insights{
		summary:           summary,
		quickstart:        quickstart,
		contributionGuide: contributionGuide,
	}
}

// Summary returns the repository summary section.
func (i Insights) Summary() string { return i.summary }

// Quickstart returns the quickstart section.
func (i Insights) Quickstart() string { return i.quickstart }

// ContributionGuide returns the contribution guide section.
func (i Insights) ContributionGuide() string { return i.contributionGuide }

// Empty reports whether no insight section has been filled in.
func (i Insights) Empty() bool {
	return i.summary == "" && i.quickstart == "" && i.contributionGuide == ""
}

// Repository is the persisted record of one remote repository. Exactly one
// Repository exists per URL; it is mutated only by the indexing orchestrator
// (status and progress) and by access bookkeeping.
type Repository struct {
	id            int64
	url           string
	owner         string
	name          string
	description   string
	stars         int
	languages     []string
	defaultBranch string

	status       Status
	progress     int
	totalFiles   int
	indexedFiles int
	errorMessage string

	indexedAt      time.Time
	lastAccessedAt time.Time
	accessCount    int
	cacheTTLHours  int

	insights Insights

	createdAt time.Time
	updatedAt time.Time
}

// NewRepository creates a pending Repository for the given URL. The URL is
// validated and normalized before any network or storage call happens.
func NewRepository(rawURL string) (Repository, error) {
	ref, err := ParseURL(rawURL)
	if err != nil {
		return Repository{}, err
	}

	now := time.Now().UTC()
	return Repository{
		url:           ref.URL(),
		owner:         ref.Owner(),
		name:          ref.Name(),
		status:        StatusPending,
		cacheTTLHours: DefaultCacheTTLHours,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// ReconstructRepository rebuilds a Repository from persisted state.
func ReconstructRepository(
	id int64,
	url, owner, name, description string,
	stars int,
	languages []string,
	defaultBranch string,
	status Status,
	progress, totalFiles, indexedFiles int,
	errorMessage string,
	indexedAt, lastAccessedAt time.Time,
	accessCount, cacheTTLHours int,
	insights Insights,
	createdAt, updatedAt time.Time,
) Repository {
	return Repository{
		id:             id,
		url:            url,
		owner:          owner,
		name:           name,
		description:    description,
		stars:          stars,
		languages:      languages,
		defaultBranch:  defaultBranch,
		status:         status,
		progress:       progress,
		totalFiles:     totalFiles,
		indexedFiles:   indexedFiles,
		errorMessage:   errorMessage,
		indexedAt:      indexedAt,
		lastAccessedAt: lastAccessedAt,
		accessCount:    accessCount,
		cacheTTLHours:  cacheTTLHours,
		insights:       insights,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

// ID returns the database identifier (0 if not yet persisted).
func (r Repository) ID() int64 { return r.id }

// URL returns the canonical repository URL.
func (r Repository) URL() string { return r.url }

// Owner returns the repository owner.
func (r Repository) Owner() string { return r.owner }

// Name returns the repository name.
func (r Repository) Name() string { return r.name }

// Description returns the host-provided description.
func (r Repository) Description() string { return r.description }

// Stars returns the star count.
func (r Repository) Stars() int { return r.stars }

// Languages returns the languages detected across indexed files.
func (r Repository) Languages() []string {
	out := make([]string, len(r.languages))
	copy(out, r.languages)
	return out
}

// DefaultBranch returns the default branch name.
func (r Repository) DefaultBranch() string { return r.defaultBranch }

// Status returns the indexing status.
func (r Repository) Status() Status { return r.status }

// Progress returns the indexing progress percentage in [0,100].
func (r Repository) Progress() int { return r.progress }

// TotalFiles returns the total file count discovered for indexing.
func (r Repository) TotalFiles() int { return r.totalFiles }

// IndexedFiles returns the count of files successfully indexed.
func (r Repository) IndexedFiles() int { return r.indexedFiles }

// ErrorMessage returns the failure message of the last run, if any.
func (r Repository) ErrorMessage() string { return r.errorMessage }

// IndexedAt returns when the last successful run completed.
func (r Repository) IndexedAt() time.Time { return r.indexedAt }

// LastAccessedAt returns when the cache was last hit.
func (r Repository) LastAccessedAt() time.Time { return r.lastAccessedAt }

// AccessCount returns how many valid cache hits the repository has served.
func (r Repository) AccessCount() int { return r.accessCount }

// CacheTTLHours returns the cache TTL in hours.
func (r Repository) CacheTTLHours() int { return r.cacheTTLHours }

// Insights returns the README-derived insight sections.
func (r Repository) Insights() Insights { return r.insights }

// CreatedAt returns the record creation time.
func (r Repository) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns the last record update time.
func (r Repository) UpdatedAt() time.Time { return r.updatedAt }

// IsPopular reports whether the star count is above the popularity threshold.
func (r Repository) IsPopular() bool {
	return r.stars >= PopularStarsThreshold
}

// CacheValidAt reports whether the completed index is still fresh at the
// given instant. The boundary is exclusive: the cache expires the instant
// now equals indexedAt + TTL.
func (r Repository) CacheValidAt(now time.Time) bool {
	if r.status != StatusCompleted {
		return false
	}
	if r.indexedAt.IsZero() || r.cacheTTLHours <= 0 {
		return false
	}
	return now.Before(r.indexedAt.Add(time.Duration(r.cacheTTLHours) * time.Hour))
}

// WithMetadata returns a copy with host metadata applied.
func (r Repository) WithMetadata(description string, stars int, defaultBranch string) Repository {
	r.description = description
	r.stars = stars
	r.defaultBranch = defaultBranch
	if r.IsPopular() {
		r.cacheTTLHours = PopularCacheTTLHours
	}
	r.updatedAt = time.Now().UTC()
	return r
}

// WithLanguages returns a copy with the detected language list applied.
func (r Repository) WithLanguages(languages []string) Repository {
	cp := make([]string, len(languages))
	copy(cp, languages)
	r.languages = cp
	r.updatedAt = time.Now().UTC()
	return r
}

// WithInsights returns a copy with the insight sections applied.
func (r Repository) WithInsights(insights Insights) Repository {
	r.insights = insights
	r.updatedAt = time.Now().UTC()
	return r
}

// WithAccess returns a copy with access bookkeeping bumped.
func (r Repository) WithAccess(now time.Time) Repository {
	r.lastAccessedAt = now
	r.accessCount++
	r.updatedAt = now
	return r
}
