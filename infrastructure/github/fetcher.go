package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gh "github.com/google/go-github/v81/github"

	"github.com/repolens/repolens/domain/host"
	"github.com/repolens/repolens/domain/repo"
	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/internal/retry"
)

// FallbackBranch is used when default-branch resolution fails.
const FallbackBranch = "main"

// Fetcher implements host.Client against the GitHub API. It is purely
// functional from the orchestrator's viewpoint: no state beyond the
// per-repository default-branch cache.
type Fetcher struct {
	client  *gh.Client
	policy  retry.Policy
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	branches map[string]string
}

// NewFetcher creates a Fetcher with the given retry configuration.
func NewFetcher(client *gh.Client, cfg config.FetchConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:   client,
		policy:   retry.NewPolicy(cfg.MaxRetries(), cfg.BaseDelay(), host.Transient),
		timeout:  cfg.Timeout(),
		logger:   logger,
		branches: make(map[string]string),
	}
}

// Metadata fetches repository description, star count, and default branch.
func (f *Fetcher) Metadata(ctx context.Context, ref repo.Ref) (host.Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	repository, err := retry.DoResult(ctx, f.policy, func() (*gh.Repository, error) {
		r, _, err := f.client.Repositories.Get(ctx, ref.Owner(), ref.Name())
		return r, mapError(err)
	})
	if err != nil {
		return host.Metadata{}, fmt.Errorf("repository metadata %s: %w", ref, err)
	}

	meta := host.NewMetadata(
		repository.GetDescription(),
		repository.GetStargazersCount(),
		repository.GetDefaultBranch(),
	)

	f.mu.Lock()
	f.branches[ref.String()] = meta.DefaultBranch()
	f.mu.Unlock()

	return meta, nil
}

// Tree fetches the full recursive listing of a branch as a flat entry list.
func (f *Fetcher) Tree(ctx context.Context, ref repo.Ref, branch string) ([]repo.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if branch == "" {
		branch = f.defaultBranch(ctx, ref)
	}

	tree, err := retry.DoResult(ctx, f.policy, func() (*gh.Tree, error) {
		t, _, err := f.client.Git.GetTree(ctx, ref.Owner(), ref.Name(), branch, true)
		return t, mapError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("repository tree %s@%s: %w", ref, branch, err)
	}

	entries := make([]repo.Entry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		kind := repo.KindFile
		if e.GetType() == "tree" {
			kind = repo.KindFolder
		}
		entries = append(entries, repo.NewEntry(e.GetPath(), kind, e.GetSize()))
	}
	return entries, nil
}

// FileContent fetches and decodes one file. It returns ok=false, not an
// error, when the path is a directory, not a regular file, or larger than
// the size ceiling, and when the host answers 403 (treated as a terminal
// "unavailable", possibly a rate-limit or size exclusion). 404 fails with
// exactly one attempt: absent content cannot appear by retrying.
func (f *Fetcher) FileContent(ctx context.Context, ref repo.Ref, path, gitRef string) (host.FileContent, bool, error) {
	if gitRef == "" {
		gitRef = f.defaultBranch(ctx, ref)
	}

	type contentsResult struct {
		file *gh.RepositoryContent
		dir  []*gh.RepositoryContent
	}

	result, err := retry.DoResult(ctx, f.policy, func() (contentsResult, error) {
		file, dir, _, err := f.client.Repositories.GetContents(
			ctx, ref.Owner(), ref.Name(), path,
			&gh.RepositoryContentGetOptions{Ref: gitRef},
		)
		return contentsResult{file: file, dir: dir}, mapError(err)
	})
	if err != nil {
		if errors.Is(err, host.ErrUnavailable) {
			f.logger.Debug("content unavailable", "repo", ref.String(), "path", path)
			return host.FileContent{}, false, nil
		}
		return host.FileContent{}, false, fmt.Errorf("file content %s:%s: %w", ref, path, err)
	}

	// Directory listing, not a file.
	if result.file == nil {
		return host.FileContent{}, false, nil
	}
	if result.file.GetType() != "file" {
		return host.FileContent{}, false, nil
	}
	if result.file.GetSize() > repo.MaxFileBytes {
		f.logger.Debug("content over size ceiling",
			"repo", ref.String(), "path", path, "size", result.file.GetSize())
		return host.FileContent{}, false, nil
	}

	// GetContent decodes the host's base64 encoding to raw text.
	decoded, err := result.file.GetContent()
	if err != nil {
		return host.FileContent{}, false, fmt.Errorf("decode content %s:%s: %w", ref, path, err)
	}

	return host.NewFileContent(decoded, result.file.GetSize()), true, nil
}

// OpenIssues lists open issues, optionally filtered by label.
func (f *Fetcher) OpenIssues(ctx context.Context, ref repo.Ref, label string) ([]host.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	opts := &gh.IssueListByRepoOptions{
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: 30},
	}
	if label != "" {
		opts.Labels = []string{label}
	}

	issues, err := retry.DoResult(ctx, f.policy, func() ([]*gh.Issue, error) {
		list, _, err := f.client.Issues.ListByRepo(ctx, ref.Owner(), ref.Name(), opts)
		return list, mapError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("open issues %s: %w", ref, err)
	}

	out := make([]host.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		labels := make([]string, 0, len(issue.Labels))
		for _, l := range issue.Labels {
			labels = append(labels, l.GetName())
		}
		out = append(out, host.NewIssue(issue.GetNumber(), issue.GetTitle(), issue.GetHTMLURL(), labels))
	}
	return out, nil
}

// RateLimit reports the remaining core API budget.
func (f *Fetcher) RateLimit(ctx context.Context) (host.RateLimit, error) {
	limits, _, err := f.client.RateLimit.Get(ctx)
	if err != nil {
		return host.RateLimit{}, mapError(err)
	}
	core := limits.GetCore()
	if core == nil {
		return host.RateLimit{}, errors.New("github: rate limit response missing core")
	}
	return host.NewRateLimit(core.Remaining, core.Reset.Time), nil
}

// defaultBranch resolves the repository's default branch, fetching it once
// and caching the answer. Resolution failure falls back to a fixed name.
func (f *Fetcher) defaultBranch(ctx context.Context, ref repo.Ref) string {
	f.mu.Lock()
	if branch, ok := f.branches[ref.String()]; ok && branch != "" {
		f.mu.Unlock()
		return branch
	}
	f.mu.Unlock()

	repository, _, err := f.client.Repositories.Get(ctx, ref.Owner(), ref.Name())
	if err != nil || repository.GetDefaultBranch() == "" {
		f.logger.Debug("default branch resolution failed, using fallback",
			"repo", ref.String(), "fallback", FallbackBranch)
		return FallbackBranch
	}

	branch := repository.GetDefaultBranch()
	f.mu.Lock()
	f.branches[ref.String()] = branch
	f.mu.Unlock()
	return branch
}
