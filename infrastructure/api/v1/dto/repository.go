// Package dto defines the wire types of the v1 API.
package dto

import (
	"time"

	"github.com/repolens/repolens/infrastructure/api/jsonapi"
)

// RepositoryCreateRequest is the body of POST /repositories.
type RepositoryCreateRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
}

// RepositoryAttributes represents repository attributes in JSON:API format.
type RepositoryAttributes struct {
	URL            string     `json:"url"`
	Owner          string     `json:"owner"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Stars          int        `json:"stars"`
	Languages      []string   `json:"languages,omitempty"`
	DefaultBranch  string     `json:"default_branch,omitempty"`
	Status         string     `json:"status"`
	Progress       int        `json:"progress"`
	TotalFiles     int        `json:"total_files"`
	IndexedFiles   int        `json:"indexed_files"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	IndexedAt      *time.Time `json:"indexed_at,omitempty"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	AccessCount    int        `json:"access_count"`
	CacheTTLHours  int        `json:"cache_ttl_hours"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// InsightsAttributes carries the README-derived insight sections.
type InsightsAttributes struct {
	Summary           string `json:"summary,omitempty"`
	Quickstart        string `json:"quickstart,omitempty"`
	ContributionGuide string `json:"contribution_guide,omitempty"`
}

// RepositoryData is one repository resource.
type RepositoryData struct {
	Type       string               `json:"type"`
	ID         string               `json:"id"`
	Attributes RepositoryAttributes `json:"attributes"`
	Insights   *InsightsAttributes  `json:"insights,omitempty"`
}

// RepositoryResponse wraps a single repository resource.
type RepositoryResponse struct {
	Data RepositoryData `json:"data"`
}

// RepositoryListResponse wraps a repository list with pagination.
type RepositoryListResponse struct {
	Data  []RepositoryData `json:"data"`
	Meta  *jsonapi.Meta    `json:"meta,omitempty"`
	Links *jsonapi.Links   `json:"links,omitempty"`
}

// StatusAttributes is the polling status surface.
type StatusAttributes struct {
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	CurrentStep  string     `json:"current_step,omitempty"`
	TotalFiles   int        `json:"total_files"`
	IndexedFiles int        `json:"indexed_files"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// StatusData is one indexing status resource.
type StatusData struct {
	Type       string           `json:"type"`
	ID         string           `json:"id"`
	Attributes StatusAttributes `json:"attributes"`
}

// StatusResponse wraps the indexing status.
type StatusResponse struct {
	Data StatusData `json:"data"`
}

// TreeNode is one node of the hierarchical file tree.
type TreeNode struct {
	Path     string     `json:"path"`
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	Children []TreeNode `json:"children,omitempty"`
}

// TreeResponse wraps the rebuilt file tree.
type TreeResponse struct {
	Data []TreeNode `json:"data"`
}

// IssueData is one open issue from the repository host.
type IssueData struct {
	Number int      `json:"number"`
	Title  string   `json:"title"`
	URL    string   `json:"url"`
	Labels []string `json:"labels,omitempty"`
}

// IssueListResponse wraps the open issue list.
type IssueListResponse struct {
	Data []IssueData `json:"data"`
}
