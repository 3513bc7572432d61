// Package search defines the full-text index contract the core requires of
// its search engine: per-file documents scoped to a repository, free-text
// queries returning ranked hits, and delete-by-repository.
package search

import "context"

// Document is one per-file document written to the index.
type Document struct {
	repoID   int64
	path     string
	content  string
	size     int
	language string
	kind     string
}

// NewDocument creates a Document.
func NewDocument(repoID int64, path, content string, size int, language, kind string) Document {
	return Document{
		repoID:   repoID,
		path:     path,
		content:  content,
		size:     size,
		language: language,
		kind:     kind,
	}
}

// RepoID returns the owning repository identifier.
func (d Document) RepoID() int64 { return d.repoID }

// Path returns the file path.
func (d Document) Path() string { return d.path }

// Content returns the indexed text.
func (d Document) Content() string { return d.content }

// Size returns the content size in bytes.
func (d Document) Size() int { return d.size }

// Language returns the file language.
func (d Document) Language() string { return d.language }

// Kind returns the node kind (file or folder).
func (d Document) Kind() string { return d.kind }

// RepositoryDocument is the repository-level metadata document.
type RepositoryDocument struct {
	repoID      int64
	url         string
	owner       string
	name        string
	description string
}

// NewRepositoryDocument creates a RepositoryDocument.
func NewRepositoryDocument(repoID int64, url, owner, name, description string) RepositoryDocument {
	return RepositoryDocument{
		repoID:      repoID,
		url:         url,
		owner:       owner,
		name:        name,
		description: description,
	}
}

// RepoID returns the repository identifier.
func (d RepositoryDocument) RepoID() int64 { return d.repoID }

// URL returns the repository URL.
func (d RepositoryDocument) URL() string { return d.url }

// Owner returns the repository owner.
func (d RepositoryDocument) Owner() string { return d.owner }

// Name returns the repository name.
func (d RepositoryDocument) Name() string { return d.name }

// Description returns the repository description.
func (d RepositoryDocument) Description() string { return d.description }

// Hit is one ranked search result.
type Hit struct {
	path     string
	content  string
	language string
	score    float64
}

// NewHit creates a Hit.
func NewHit(path, content, language string, score float64) Hit {
	return Hit{path: path, content: content, language: language, score: score}
}

// Path returns the matching file path.
func (h Hit) Path() string { return h.path }

// Content returns the indexed content of the match.
func (h Hit) Content() string { return h.content }

// Language returns the file language.
func (h Hit) Language() string { return h.language }

// Score returns the engine's relevance score (higher is more relevant).
func (h Hit) Score() float64 { return h.score }

// WithContent returns a copy with content replaced (used when fresher
// content is fetched on demand).
func (h Hit) WithContent(content string) Hit {
	h.content = content
	return h
}

// Index is the full-text search engine as the core consumes it.
type Index interface {
	// IndexRepository writes or replaces the repository metadata document.
	IndexRepository(ctx context.Context, doc RepositoryDocument) error

	// IndexFile writes or replaces one per-file document.
	IndexFile(ctx context.Context, doc Document) error

	// Search runs a free-text query scoped to one repository and returns
	// ranked hits, best first.
	Search(ctx context.Context, repoID int64, query string, limit int) ([]Hit, error)

	// DeleteRepository removes the metadata document and every per-file
	// document belonging to the repository.
	DeleteRepository(ctx context.Context, repoID int64) error
}
