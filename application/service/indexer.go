// Package service provides the application services: the indexing
// orchestrator, the retrieval ranker, insight generation, and the
// question-answering pipeline built on top of them.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/repolens/repolens/domain/host"
	"github.com/repolens/repolens/domain/repo"
	"github.com/repolens/repolens/domain/search"
	"github.com/repolens/repolens/infrastructure/languages"
	"github.com/repolens/repolens/internal/database"
	"github.com/repolens/repolens/internal/limiter"
	"github.com/repolens/repolens/internal/metrics"
)

// Progress checkpoints of an indexing run.
const (
	progressMetadata  = 5
	progressStructure = 20
	progressEnumerate = 30
	progressSearchDoc = 40
	progressFilesDone = 90
	progressInsights  = 92
	progressVerify    = 95
	progressComplete  = 100

	// progressPersistEvery batches per-file progress writes so a polling
	// client sees smooth motion without a write per file.
	progressPersistEvery = 2
)

// inProgressFloor is the progress above which a repository already in the
// indexing state is trusted to have a live run. At or below it the in-flight
// registry decides, closing the window where two requests could race before
// the first checkpoint lands.
const inProgressFloor = 5

// staleRunAfter bounds how long an indexing record may go unwritten before
// the run that owns it is presumed dead. Checkpoints touch the record every
// couple of files, so a record silent this long with no in-flight claim
// belongs to a crashed process and must be restartable.
const staleRunAfter = 10 * time.Minute

// Indexer drives the end-to-end indexing pipeline for one repository:
// fetch metadata, enumerate the remote tree, fetch and index every file,
// derive insights, verify, and finalize.
type Indexer struct {
	repos    repo.RepositoryStore
	files    repo.FileStore
	progress repo.ProgressStore
	host     host.Client
	index    search.Index
	insights *Insights
	limiter  *limiter.Limiter
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[int64]struct{}
}

// NewIndexer creates an Indexer.
func NewIndexer(
	repos repo.RepositoryStore,
	files repo.FileStore,
	progress repo.ProgressStore,
	hostClient host.Client,
	index search.Index,
	insights *Insights,
	lim *limiter.Limiter,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Indexer {
	if lim == nil {
		lim = limiter.New(limiter.DefaultConcurrency)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		repos:    repos,
		files:    files,
		progress: progress,
		host:     hostClient,
		index:    index,
		insights: insights,
		limiter:  lim,
		metrics:  m,
		logger:   logger,
		inflight: make(map[int64]struct{}),
	}
}

// Request asks for the repository at rawURL to be indexed. The URL is
// validated before any network or storage call. Returns the repository
// record and whether a new indexing run was started.
//
// A valid cached record is returned as-is with its access bookkeeping
// bumped. A record already mid-run is returned without starting a duplicate.
// Anything else (absent, stale, failed, or a run abandoned by a crash)
// starts a fresh run in the background.
func (s *Indexer) Request(ctx context.Context, rawURL string) (repo.Repository, bool, error) {
	candidate, err := repo.NewRepository(rawURL)
	if err != nil {
		return repo.Repository{}, false, err
	}

	rec, err := s.repos.FindOne(ctx, repo.WithURL(candidate.URL()))
	switch {
	case err == nil:
		now := time.Now().UTC()
		if rec.CacheValidAt(now) {
			if err := s.repos.UpdateAccess(ctx, rec.ID(), now); err != nil {
				s.logger.Warn("access bookkeeping failed",
					slog.Int64("repo_id", rec.ID()),
					slog.String("error", err.Error()),
				)
			}
			return rec, false, nil
		}
		if s.runInProgress(rec) {
			return rec, false, nil
		}
	case errors.Is(err, database.ErrNotFound):
		rec, err = s.repos.Save(ctx, candidate)
		if err != nil {
			return repo.Repository{}, false, fmt.Errorf("create repository: %w", err)
		}
	default:
		return repo.Repository{}, false, fmt.Errorf("find repository: %w", err)
	}

	if !s.claim(rec.ID()) {
		return rec, false, nil
	}

	go func() {
		// The indexing run outlives the request that started it.
		runCtx := context.Background()
		if err := s.run(runCtx, rec); err != nil {
			s.logger.Error("indexing run failed",
				slog.Int64("repo_id", rec.ID()),
				slog.String("url", rec.URL()),
				slog.String("error", err.Error()),
			)
		}
	}()

	return rec, true, nil
}

// Reindex starts a synchronous indexing run for an existing record,
// regardless of cache state. Used by tests and by explicit re-index calls.
func (s *Indexer) Reindex(ctx context.Context, rec repo.Repository) error {
	if !s.claim(rec.ID()) {
		return nil
	}
	return s.run(ctx, rec)
}

// runInProgress reports whether rec has a live indexing run. The in-flight
// claim is authoritative; without one, persisted progress past the first
// checkpoint counts only while the record is still being written to, so a
// run abandoned by a crash goes stale instead of blocking re-indexing
// forever.
func (s *Indexer) runInProgress(rec repo.Repository) bool {
	if rec.Status() != repo.StatusIndexing {
		return false
	}
	s.mu.Lock()
	_, held := s.inflight[rec.ID()]
	s.mu.Unlock()
	if held {
		return true
	}
	if rec.Progress() <= inProgressFloor {
		return false
	}
	return time.Since(rec.UpdatedAt()) < staleRunAfter
}

// claim registers an in-flight run for the repository. Returns false if a
// run is already claimed.
func (s *Indexer) claim(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.inflight[id]; held {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Indexer) unclaim(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

// run executes the full pipeline for one repository. Any error in a
// required step transitions the record to failed with progress reset to 0.
func (s *Indexer) run(ctx context.Context, rec repo.Repository) (runErr error) {
	defer s.unclaim(rec.ID())

	if s.metrics != nil {
		s.metrics.ActiveRuns.Inc()
		defer s.metrics.ActiveRuns.Dec()
	}

	row := repo.NewProgress(rec.ID(), repo.StatusIndexing, "starting")

	defer func() {
		if runErr == nil {
			return
		}
		if s.metrics != nil {
			s.metrics.RunsFailed.Inc()
		}
		row = s.checkpoint(ctx, rec.ID(), row, repo.StatusUpdate{
			Status:       repo.StatusFailed,
			Progress:     0,
			Step:         "indexing failed",
			ErrorMessage: runErr.Error(),
		})
	}()

	ref, err := repo.ParseURL(rec.URL())
	if err != nil {
		return err
	}

	// Metadata.
	row = s.checkpoint(ctx, rec.ID(), row, repo.StatusUpdate{
		Status:   repo.StatusIndexing,
		Progress: progressMetadata,
		Step:     "fetching repository metadata",
	})
	meta, err := s.host.Metadata(ctx, ref)
	if err != nil {
		return fmt.Errorf("fetch metadata: %w", err)
	}
	rec = rec.WithMetadata(meta.Description(), meta.Stars(), meta.DefaultBranch())
	if rec, err = s.repos.Save(ctx, rec); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}

	// Structure.
	row = s.checkpoint(ctx, rec.ID(), row, repo.StatusUpdate{
		Status:   repo.StatusIndexing,
		Progress: progressStructure,
		Step:     "analyzing repository structure",
	})
	entries, err := s.host.Tree(ctx, ref, rec.DefaultBranch())
	if err != nil {
		return fmt.Errorf("fetch tree: %w", err)
	}

	// Enumerate.
	paths := repo.FlattenFiles(entries)
	total := len(paths)
	row = s.checkpoint(ctx, rec.ID(), row, repo.StatusUpdate{
		Status:     repo.StatusIndexing,
		Progress:   progressEnumerate,
		Step:       fmt.Sprintf("enumerating files (%d found)", total),
		TotalFiles: &total,
	})

	// Repository-level search document.
	row = s.checkpoint(ctx, rec.ID(), row, repo.StatusUpdate{
		Status:     repo.StatusIndexing,
		Progress:   progressSearchDoc,
		Step:       "building search index",
		TotalFiles: &total,
	})
	metaDoc := search.NewRepositoryDocument(rec.ID(), rec.URL(), rec.Owner(), rec.Name(), rec.Description())
	if err := s.index.IndexRepository(ctx, metaDoc); err != nil {
		return fmt.Errorf("index repository document: %w", err)
	}

	// Per-file fetch and index.
	indexed, langs, err := s.indexFiles(ctx, rec, ref, entries, &row)
	if err != nil {
		return err
	}
	if len(langs) > 0 {
		if err := s.repos.UpdateLanguages(ctx, rec.ID(), langs); err != nil {
			s.logger.Warn("persist languages failed",
				slog.Int64("repo_id", rec.ID()),
				slog.String("error", err.Error()),
			)
		}
	}

	// Insights are never fatal to the run.
	row = s.checkpoint(ctx, rec.ID(), row, repo.StatusUpdate{
		Status:       repo.StatusIndexing,
		Progress:     progressInsights,
		Step:         "generating insights",
		TotalFiles:   &total,
		IndexedFiles: &indexed,
	})
	if s.insights != nil {
		if ins, err := s.insights.Generate(ctx, ref, rec, paths); err != nil {
			s.logger.Warn("insight generation failed",
				slog.Int64("repo_id", rec.ID()),
				slog.String("error", err.Error()),
			)
		} else if err := s.repos.UpdateInsights(ctx, rec.ID(), ins); err != nil {
			s.logger.Warn("persist insights failed",
				slog.Int64("repo_id", rec.ID()),
				slog.String("error", err.Error()),
			)
		}
	}

	// Verify. Individual file failures are tolerated, an entirely empty
	// index is not.
	row = s.checkpoint(ctx, rec.ID(), row, repo.StatusUpdate{
		Status:       repo.StatusIndexing,
		Progress:     progressVerify,
		Step:         "verifying index",
		TotalFiles:   &total,
		IndexedFiles: &indexed,
	})
	if total > 0 && indexed == 0 {
		return fmt.Errorf("no files could be indexed (%d attempted)", total)
	}
	if _, err := s.index.Search(ctx, rec.ID(), rec.Name(), 1); err != nil {
		// The search backend may be eventually consistent.
		s.logger.Warn("search smoke test failed",
			slog.Int64("repo_id", rec.ID()),
			slog.String("error", err.Error()),
		)
	}

	row = s.checkpoint(ctx, rec.ID(), row, repo.StatusUpdate{
		Status:       repo.StatusCompleted,
		Progress:     progressComplete,
		Step:         "indexing complete",
		TotalFiles:   &total,
		IndexedFiles: &indexed,
	})
	if s.metrics != nil {
		s.metrics.RunsCompleted.Inc()
	}

	s.logger.Info("indexing run completed",
		slog.Int64("repo_id", rec.ID()),
		slog.String("url", rec.URL()),
		slog.Int("total_files", total),
		slog.Int("indexed_files", indexed),
	)
	return nil
}

// indexFiles fetches and indexes every file in the listing through the
// concurrency limiter. A file whose fetch fails is stored and indexed with
// placeholder content so it still appears in the tree; only files with real
// content that reached both stores count as indexed. Returns the indexed
// count and the distinct languages seen, sorted.
func (s *Indexer) indexFiles(
	ctx context.Context,
	rec repo.Repository,
	ref repo.Ref,
	entries []repo.Entry,
	row *repo.Progress,
) (int, []string, error) {
	var fileEntries []repo.Entry
	for _, e := range entries {
		if e.Kind() == repo.KindFile {
			fileEntries = append(fileEntries, e)
		}
	}
	total := len(fileEntries)
	if total == 0 {
		return 0, nil, nil
	}

	// Headroom check before the bulk fetch begins. A failed check is not
	// fatal on its own: the per-file fetches surface throttling anyway.
	if rl, err := s.host.RateLimit(ctx); err != nil {
		s.logger.Warn("rate limit check failed",
			slog.Int64("repo_id", rec.ID()),
			slog.String("error", err.Error()),
		)
	} else if rl.Remaining() < total {
		return 0, nil, fmt.Errorf("%w: %d requests remaining for %d files, resets at %s",
			host.ErrRateLimited, rl.Remaining(), total, rl.ResetAt().UTC().Format(time.RFC3339))
	}

	var (
		mu        sync.Mutex
		processed int
		indexed   int
		langSet   = make(map[string]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range fileEntries {
		g.Go(func() error {
			content, ok := s.fetchOne(gctx, ref, rec.DefaultBranch(), entry)

			path := entry.Path()
			language := languages.Detect(path)
			file := repo.NewFile(rec.ID(), path, repo.PlaceholderContent, entry.Size(), language)
			if ok {
				file = repo.NewFile(rec.ID(), path, content.Content(), content.Size(), language)
			}

			// Persistence failures are contained the same way fetch
			// failures are: the file counts as not indexed and the
			// batch moves on.
			stored := false
			if _, err := s.files.Save(gctx, file); err != nil {
				s.logger.Warn("save file failed",
					slog.Int64("repo_id", rec.ID()),
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			} else {
				doc := search.NewDocument(rec.ID(), path, file.Content(), file.Size(), language, string(repo.KindFile))
				if err := s.index.IndexFile(gctx, doc); err != nil {
					s.logger.Warn("index file failed",
						slog.Int64("repo_id", rec.ID()),
						slog.String("path", path),
						slog.String("error", err.Error()),
					)
				} else {
					stored = true
					if s.metrics != nil {
						s.metrics.FilesIndexed.Inc()
					}
				}
			}

			// The checkpoint runs under the same lock as the counter
			// update so the persisted percentage never moves backwards.
			mu.Lock()
			defer mu.Unlock()
			processed++
			if ok && stored {
				indexed++
				langSet[language] = struct{}{}
			}
			if processed%progressPersistEvery == 0 || processed == total {
				count := indexed
				*row = s.checkpoint(gctx, rec.ID(), *row, repo.StatusUpdate{
					Status:       repo.StatusIndexing,
					Progress:     fileProgress(processed, total),
					Step:         fmt.Sprintf("indexing files (%d/%d)", processed, total),
					TotalFiles:   &total,
					IndexedFiles: &count,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}

	langs := make([]string, 0, len(langSet))
	for l := range langSet {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return indexed, langs, nil
}

// fetchOne pulls one file's content through the limiter. Failures are
// contained: any error or rejection yields ok=false and the caller
// substitutes the placeholder.
func (s *Indexer) fetchOne(ctx context.Context, ref repo.Ref, branch string, entry repo.Entry) (host.FileContent, bool) {
	content, err := limiter.DoResult(ctx, s.limiter, func() (fileResult, error) {
		c, ok, err := s.host.FileContent(ctx, ref, entry.Path(), branch)
		return fileResult{content: c, ok: ok}, err
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.FetchFailures.Inc()
		}
		s.logger.Debug("file fetch failed",
			slog.String("path", entry.Path()),
			slog.String("error", err.Error()),
		)
		return host.FileContent{}, false
	}
	if s.metrics != nil && content.ok {
		s.metrics.FilesFetched.Inc()
	}
	return content.content, content.ok
}

type fileResult struct {
	content host.FileContent
	ok      bool
}

// fileProgress maps a completed-file count onto the 40..90 band.
func fileProgress(done, total int) int {
	if total == 0 {
		return progressFilesDone
	}
	p := progressSearchDoc + done*50/total
	if p > progressFilesDone {
		p = progressFilesDone
	}
	return p
}

// checkpoint persists one progress transition to both the repository record
// and the progress row. Persistence failures are logged, not propagated:
// the stores already retry transient faults, and a lost checkpoint must not
// kill an otherwise healthy run.
func (s *Indexer) checkpoint(ctx context.Context, repoID int64, row repo.Progress, update repo.StatusUpdate) repo.Progress {
	next := row.Apply(update)
	if err := s.repos.UpdateStatus(ctx, repoID, update); err != nil {
		s.logger.Warn("persist status failed",
			slog.Int64("repo_id", repoID),
			slog.String("step", update.Step),
			slog.String("error", err.Error()),
		)
	}
	if _, err := s.progress.Upsert(ctx, next); err != nil {
		s.logger.Warn("persist progress failed",
			slog.Int64("repo_id", repoID),
			slog.String("step", update.Step),
			slog.String("error", err.Error()),
		)
	}
	return next
}
