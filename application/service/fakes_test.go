package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/repolens/repolens/domain/host"
	"github.com/repolens/repolens/domain/repo"
	"github.com/repolens/repolens/domain/search"
	"github.com/repolens/repolens/internal/database"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memRepoStore is an in-memory repo.RepositoryStore.
type memRepoStore struct {
	mu     sync.Mutex
	nextID int64
	repos  map[int64]repo.Repository
}

func newMemRepoStore() *memRepoStore {
	return &memRepoStore{nextID: 1, repos: make(map[int64]repo.Repository)}
}

func (s *memRepoStore) Save(_ context.Context, r repo.Repository) (repo.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID() == 0 {
		r = rebuildRepo(r, s.nextID)
		s.nextID++
	}
	s.repos[r.ID()] = r
	return r, nil
}

func (s *memRepoStore) Find(_ context.Context, options ...repo.Option) ([]repo.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := repo.Build(options...)
	var out []repo.Repository
	for _, r := range s.repos {
		if repoMatches(r, q) {
			out = append(out, r)
		}
	}
	descending := false
	for _, o := range q.Orders() {
		if !o.Ascending() {
			descending = true
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].ID() > out[j].ID()
		}
		return out[i].ID() < out[j].ID()
	})
	if off := q.OffsetValue(); off > 0 {
		if off >= len(out) {
			out = nil
		} else {
			out = out[off:]
		}
	}
	if lim := q.LimitValue(); lim > 0 && len(out) > lim {
		out = out[:lim]
	}
	return out, nil
}

func (s *memRepoStore) FindOne(ctx context.Context, options ...repo.Option) (repo.Repository, error) {
	all, _ := s.Find(ctx, options...)
	if len(all) == 0 {
		return repo.Repository{}, database.ErrNotFound
	}
	return all[0], nil
}

func (s *memRepoStore) Exists(ctx context.Context, options ...repo.Option) (bool, error) {
	all, _ := s.Find(ctx, options...)
	return len(all) > 0, nil
}

func (s *memRepoStore) Count(ctx context.Context, options ...repo.Option) (int64, error) {
	all, _ := s.Find(ctx, options...)
	return int64(len(all)), nil
}

func (s *memRepoStore) UpdateStatus(_ context.Context, id int64, update repo.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return database.ErrNotFound
	}
	indexedAt := r.IndexedAt()
	if update.Status == repo.StatusCompleted {
		indexedAt = time.Now().UTC()
	}
	total := r.TotalFiles()
	if update.TotalFiles != nil {
		total = *update.TotalFiles
	}
	indexed := r.IndexedFiles()
	if update.IndexedFiles != nil {
		indexed = *update.IndexedFiles
	}
	s.repos[id] = repo.ReconstructRepository(
		r.ID(), r.URL(), r.Owner(), r.Name(), r.Description(), r.Stars(),
		r.Languages(), r.DefaultBranch(),
		update.Status, update.Progress, total, indexed, update.ErrorMessage,
		indexedAt, r.LastAccessedAt(), r.AccessCount(), r.CacheTTLHours(),
		r.Insights(), r.CreatedAt(), time.Now().UTC(),
	)
	return nil
}

func (s *memRepoStore) UpdateAccess(_ context.Context, id int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return database.ErrNotFound
	}
	s.repos[id] = r.WithAccess(now)
	return nil
}

func (s *memRepoStore) UpdateInsights(_ context.Context, id int64, insights repo.Insights) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return database.ErrNotFound
	}
	s.repos[id] = r.WithInsights(insights)
	return nil
}

func (s *memRepoStore) UpdateLanguages(_ context.Context, id int64, languages []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return database.ErrNotFound
	}
	s.repos[id] = r.WithLanguages(languages)
	return nil
}

func (s *memRepoStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.repos, id)
	return nil
}

func (s *memRepoStore) get(id int64) repo.Repository {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repos[id]
}

// put stores a record verbatim, bypassing the Save bookkeeping, so tests
// can stage arbitrary persisted states such as an abandoned run.
func (s *memRepoStore) put(r repo.Repository) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[r.ID()] = r
}

func rebuildRepo(r repo.Repository, id int64) repo.Repository {
	return repo.ReconstructRepository(
		id, r.URL(), r.Owner(), r.Name(), r.Description(), r.Stars(),
		r.Languages(), r.DefaultBranch(),
		r.Status(), r.Progress(), r.TotalFiles(), r.IndexedFiles(), r.ErrorMessage(),
		r.IndexedAt(), r.LastAccessedAt(), r.AccessCount(), r.CacheTTLHours(),
		r.Insights(), r.CreatedAt(), r.UpdatedAt(),
	)
}

func repoMatches(r repo.Repository, q repo.Query) bool {
	for _, c := range q.Conditions() {
		switch c.Field() {
		case "id":
			if r.ID() != c.Value().(int64) {
				return false
			}
		case "repo_url":
			if r.URL() != c.Value().(string) {
				return false
			}
		case "status":
			if string(r.Status()) != c.Value().(string) {
				return false
			}
		}
	}
	return true
}

// memFileStore is an in-memory repo.FileStore keyed by (repoID, path).
type memFileStore struct {
	mu     sync.Mutex
	nextID int64
	files  map[string]repo.File
}

func newMemFileStore() *memFileStore {
	return &memFileStore{nextID: 1, files: make(map[string]repo.File)}
}

func fileKey(repoID int64, path string) string {
	return fmt.Sprintf("%d:%s", repoID, path)
}

func (s *memFileStore) Save(_ context.Context, f repo.File) (repo.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fileKey(f.RepoID(), f.Path())
	id := f.ID()
	if existing, ok := s.files[key]; ok {
		id = existing.ID()
	} else if id == 0 {
		id = s.nextID
		s.nextID++
	}
	f = repo.ReconstructFile(id, f.RepoID(), f.Path(), f.Content(), f.Size(), f.Language(), f.Kind())
	s.files[key] = f
	return f, nil
}

func (s *memFileStore) SaveAll(ctx context.Context, files []repo.File) ([]repo.File, error) {
	out := make([]repo.File, 0, len(files))
	for _, f := range files {
		saved, err := s.Save(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, saved)
	}
	return out, nil
}

func (s *memFileStore) Find(_ context.Context, options ...repo.Option) ([]repo.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := repo.Build(options...)
	var out []repo.File
	for _, f := range s.files {
		if fileMatches(f, q) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out, nil
}

func (s *memFileStore) FindOne(ctx context.Context, options ...repo.Option) (repo.File, error) {
	all, _ := s.Find(ctx, options...)
	if len(all) == 0 {
		return repo.File{}, database.ErrNotFound
	}
	return all[0], nil
}

func (s *memFileStore) Count(ctx context.Context, options ...repo.Option) (int64, error) {
	all, _ := s.Find(ctx, options...)
	return int64(len(all)), nil
}

func (s *memFileStore) DeleteByRepo(_ context.Context, repoID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, f := range s.files {
		if f.RepoID() == repoID {
			delete(s.files, key)
		}
	}
	return nil
}

func fileMatches(f repo.File, q repo.Query) bool {
	for _, c := range q.Conditions() {
		switch c.Field() {
		case "repo_id":
			if f.RepoID() != c.Value().(int64) {
				return false
			}
		case "path":
			if f.Path() != c.Value().(string) {
				return false
			}
		case "kind":
			if string(f.Kind()) != c.Value().(string) {
				return false
			}
		}
	}
	return true
}

// memProgressStore is an in-memory repo.ProgressStore (one row per repo).
type memProgressStore struct {
	mu   sync.Mutex
	rows map[int64]repo.Progress
}

func newMemProgressStore() *memProgressStore {
	return &memProgressStore{rows: make(map[int64]repo.Progress)}
}

func (s *memProgressStore) Upsert(_ context.Context, p repo.Progress) (repo.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.RepoID()] = p
	return p, nil
}

func (s *memProgressStore) FindByRepo(_ context.Context, repoID int64) (repo.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[repoID]
	if !ok {
		return repo.Progress{}, database.ErrNotFound
	}
	return p, nil
}

func (s *memProgressStore) DeleteByRepo(_ context.Context, repoID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, repoID)
	return nil
}

// stubHost is a scriptable host.Client.
type stubHost struct {
	mu        sync.Mutex
	meta      host.Metadata
	metaErr   error
	entries   []repo.Entry
	treeErr   error
	contents  map[string]string
	failing   map[string]struct{}
	rejected  map[string]struct{}
	issues    []host.Issue
	fetched   []string
	remaining int
}

func newStubHost() *stubHost {
	return &stubHost{
		meta:      host.NewMetadata("a test repository", 10, "main"),
		contents:  make(map[string]string),
		failing:   make(map[string]struct{}),
		rejected:  make(map[string]struct{}),
		remaining: -1,
	}
}

func (h *stubHost) addFile(path, content string) {
	h.entries = append(h.entries, repo.NewEntry(path, repo.KindFile, len(content)))
	h.contents[path] = content
}

func (h *stubHost) Metadata(context.Context, repo.Ref) (host.Metadata, error) {
	if h.metaErr != nil {
		return host.Metadata{}, h.metaErr
	}
	return h.meta, nil
}

func (h *stubHost) Tree(context.Context, repo.Ref, string) ([]repo.Entry, error) {
	if h.treeErr != nil {
		return nil, h.treeErr
	}
	return h.entries, nil
}

func (h *stubHost) FileContent(_ context.Context, _ repo.Ref, path, _ string) (host.FileContent, bool, error) {
	h.mu.Lock()
	h.fetched = append(h.fetched, path)
	h.mu.Unlock()
	if _, ok := h.failing[path]; ok {
		return host.FileContent{}, false, errors.New("fetch failed")
	}
	if _, ok := h.rejected[path]; ok {
		return host.FileContent{}, false, nil
	}
	content, ok := h.contents[path]
	if !ok {
		return host.FileContent{}, false, nil
	}
	return host.NewFileContent(content, len(content)), true, nil
}

func (h *stubHost) OpenIssues(context.Context, repo.Ref, string) ([]host.Issue, error) {
	return h.issues, nil
}

func (h *stubHost) RateLimit(context.Context) (host.RateLimit, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.remaining >= 0 {
		return host.NewRateLimit(h.remaining, time.Now().Add(time.Hour)), nil
	}
	return host.NewRateLimit(5000, time.Now().Add(time.Hour)), nil
}

func (h *stubHost) fetchCount(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, p := range h.fetched {
		if p == path {
			n++
		}
	}
	return n
}

// stubIndex is an in-memory search.Index with naive substring matching.
type stubIndex struct {
	mu        sync.Mutex
	docs      map[string]search.Document
	repoDocs  map[int64]search.RepositoryDocument
	failPaths map[string]struct{}
	searchFn  func(repoID int64, query string, limit int) []search.Hit
	searchErr error
}

func newStubIndex() *stubIndex {
	return &stubIndex{
		docs:      make(map[string]search.Document),
		repoDocs:  make(map[int64]search.RepositoryDocument),
		failPaths: make(map[string]struct{}),
	}
}

func (i *stubIndex) IndexRepository(_ context.Context, doc search.RepositoryDocument) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.repoDocs[doc.RepoID()] = doc
	return nil
}

func (i *stubIndex) IndexFile(_ context.Context, doc search.Document) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.failPaths[doc.Path()]; ok {
		return errors.New("index write failed")
	}
	i.docs[fileKey(doc.RepoID(), doc.Path())] = doc
	return nil
}

func (i *stubIndex) Search(_ context.Context, repoID int64, query string, limit int) ([]search.Hit, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.searchErr != nil {
		return nil, i.searchErr
	}
	if i.searchFn != nil {
		return i.searchFn(repoID, query, limit), nil
	}

	var hits []search.Hit
	lower := strings.ToLower(query)
	for _, doc := range i.docs {
		if doc.RepoID() != repoID {
			continue
		}
		if strings.Contains(strings.ToLower(doc.Content()), lower) ||
			strings.Contains(strings.ToLower(doc.Path()), lower) {
			hits = append(hits, search.NewHit(doc.Path(), doc.Content(), doc.Language(), 1))
		}
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].Path() < hits[b].Path() })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (i *stubIndex) DeleteRepository(_ context.Context, repoID int64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.repoDocs, repoID)
	for key, doc := range i.docs {
		if doc.RepoID() == repoID {
			delete(i.docs, key)
		}
	}
	return nil
}

func (i *stubIndex) docCount(repoID int64) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for _, doc := range i.docs {
		if doc.RepoID() == repoID {
			n++
		}
	}
	return n
}

// stubCompleter returns a fixed answer and records the prompts it saw.
type stubCompleter struct {
	mu      sync.Mutex
	answer  string
	err     error
	systems []string
	prompts []string
}

func (c *stubCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.systems = append(c.systems, system)
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

func (c *stubCompleter) lastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.prompts) == 0 {
		return ""
	}
	return c.prompts[len(c.prompts)-1]
}
