// Package host defines the contract the core requires of the remote
// repository host, plus the error taxonomy every host implementation maps
// its failures onto.
package host

import (
	"context"
	"time"

	"github.com/repolens/repolens/domain/repo"
)

// Metadata is the repository-level information fetched from the host.
type Metadata struct {
	description   string
	stars         int
	defaultBranch string
}

// NewMetadata creates a Metadata value.
func NewMetadata(description string, stars int, defaultBranch string) Metadata {
	return Metadata{
		description:   description,
		stars:         stars,
		defaultBranch: defaultBranch,
	}
}

// Description returns the repository description.
func (m Metadata) Description() string { return m.description }

// Stars returns the star count.
func (m Metadata) Stars() int { return m.stars }

// DefaultBranch returns the default branch name.
func (m Metadata) DefaultBranch() string { return m.defaultBranch }

// FileContent is the decoded content of one fetched file.
type FileContent struct {
	content string
	size    int
}

// NewFileContent creates a FileContent value.
func NewFileContent(content string, size int) FileContent {
	return FileContent{content: content, size: size}
}

// Content returns the decoded text.
func (f FileContent) Content() string { return f.content }

// Size returns the content size in bytes.
func (f FileContent) Size() int { return f.size }

// Issue is one open issue on the host, surfaced for contribution views.
type Issue struct {
	number int
	title  string
	url    string
	labels []string
}

// NewIssue creates an Issue value.
func NewIssue(number int, title, url string, labels []string) Issue {
	cp := make([]string, len(labels))
	copy(cp, labels)
	return Issue{number: number, title: title, url: url, labels: cp}
}

// Number returns the issue number.
func (i Issue) Number() int { return i.number }

// Title returns the issue title.
func (i Issue) Title() string { return i.title }

// URL returns the issue URL.
func (i Issue) URL() string { return i.url }

// Labels returns the issue labels.
func (i Issue) Labels() []string {
	cp := make([]string, len(i.labels))
	copy(cp, i.labels)
	return cp
}

// RateLimit reports the host's remaining request budget.
type RateLimit struct {
	remaining int
	resetAt   time.Time
}

// NewRateLimit creates a RateLimit value.
func NewRateLimit(remaining int, resetAt time.Time) RateLimit {
	return RateLimit{remaining: remaining, resetAt: resetAt}
}

// Remaining returns the remaining request count.
func (r RateLimit) Remaining() int { return r.remaining }

// ResetAt returns when the budget resets.
func (r RateLimit) ResetAt() time.Time { return r.resetAt }

// Client is the remote repository host as the core consumes it. A fetch of
// file content returns ok=false, never an error, when the path resolves to
// a directory, a non-regular file, or content over the size ceiling, so bulk
// indexing can substitute a placeholder instead of aborting.
type Client interface {
	Metadata(ctx context.Context, ref repo.Ref) (Metadata, error)

	// Tree returns the full recursive listing of the branch as a flat list.
	Tree(ctx context.Context, ref repo.Ref, branch string) ([]repo.Entry, error)

	// FileContent fetches and decodes one file. The empty ref string means
	// the repository's default branch.
	FileContent(ctx context.Context, ref repo.Ref, path, gitRef string) (FileContent, bool, error)

	OpenIssues(ctx context.Context, ref repo.Ref, label string) ([]Issue, error)

	RateLimit(ctx context.Context) (RateLimit, error)
}
