package service

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/repolens/repolens/domain/host"
	"github.com/repolens/repolens/domain/repo"
	"github.com/repolens/repolens/domain/search"
	"github.com/repolens/repolens/infrastructure/languages"
	"github.com/repolens/repolens/internal/metrics"
)

// MaxContextFiles bounds the diverse subset fed to the completion backend.
const MaxContextFiles = 8

// Filename-mention match scores.
const (
	scoreExactPath = 3
	scorePathEnds  = 2
	scoreContains  = 1
)

// filenameMentionRe matches a filename with a common source-file extension
// embedded in a question.
var filenameMentionRe = regexp.MustCompile(
	`[\w./-]+\.(?:tsx?|jsx?|mjs|py|go|rs|java|rb|c|h|cpp|hpp|cc|cs|php|swift|kt|kts|scala|md|rst|txt|json|ya?ml|toml|sql|sh|bash|html|css|scss|vue|svelte|proto|tf)\b`,
)

// whereTargetRe pulls the subject following a "where is/are/do(es)" phrasing.
var whereTargetRe = regexp.MustCompile(`(?i)\bwhere\s+(?:is|are|do|does|can i find)?\s*(?:the\s+)?([\w./-]+)`)

// Keyword buckets widening retrieval for common question shapes.
var (
	structureKeywords = []string{"structure", "overview", "architecture", "organized", "organised", "layout"}
	entryKeywords     = []string{"main", "entry", "entrypoint", "bootstrap", "start", "startup"}
	locateKeywords    = []string{"where", "find", "locate"}

	structureQueries = []string{"readme", "package manifest configuration", "docs documentation"}
	entryQuery       = "main index app server cmd entry"
)

// ContextFile is one file handed to the completion backend as context.
type ContextFile struct {
	path     string
	content  string
	language string
	score    float64
}

// NewContextFile creates a ContextFile.
func NewContextFile(filePath, content, language string, score float64) ContextFile {
	return ContextFile{path: filePath, content: content, language: language, score: score}
}

// Path returns the file path.
func (f ContextFile) Path() string { return f.path }

// Content returns the file content.
func (f ContextFile) Content() string { return f.content }

// Language returns the file language.
func (f ContextFile) Language() string { return f.language }

// Score returns the relevance score.
func (f ContextFile) Score() float64 { return f.score }

// RetrievalResult is the ranked context for one question: an optional
// primary file plus a diverse relevant set.
type RetrievalResult struct {
	primary    ContextFile
	hasPrimary bool
	relevant   []ContextFile
}

// Primary returns the primary context file, if one was resolved.
func (r RetrievalResult) Primary() (ContextFile, bool) {
	return r.primary, r.hasPrimary
}

// Relevant returns the ranked diverse file set, best first.
func (r RetrievalResult) Relevant() []ContextFile {
	out := make([]ContextFile, len(r.relevant))
	copy(out, r.relevant)
	return out
}

// Retrieval selects the indexed files relevant to a natural-language
// question. It never calls the completion backend itself.
type Retrieval struct {
	files       repo.FileStore
	index       search.Index
	host        host.Client
	metrics     *metrics.Metrics
	logger      *slog.Logger
	searchLimit int
}

// NewRetrieval creates a Retrieval service.
func NewRetrieval(
	files repo.FileStore,
	index search.Index,
	hostClient host.Client,
	m *metrics.Metrics,
	logger *slog.Logger,
	searchLimit int,
) *Retrieval {
	if searchLimit <= 0 {
		searchLimit = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrieval{
		files:       files,
		index:       index,
		host:        hostClient,
		metrics:     m,
		logger:      logger,
		searchLimit: searchLimit,
	}
}

// Rank produces the context for a question against one indexed repository.
// selectedPath, when non-empty, is the file the caller has open; it is
// always fetched fresh as the primary context.
func (s *Retrieval) Rank(ctx context.Context, rec repo.Repository, question, selectedPath string) (RetrievalResult, error) {
	var result RetrievalResult

	switch {
	case selectedPath != "":
		if primary, ok := s.freshFile(ctx, rec, selectedPath); ok {
			result.primary = primary
			result.hasPrimary = true
		}
	default:
		if mention := FilenameMention(question); mention != "" {
			if primary, ok, err := s.mentionedFile(ctx, rec.ID(), mention); err != nil {
				return RetrievalResult{}, err
			} else if ok {
				result.primary = primary
				result.hasPrimary = true
			}
		}
	}

	hits, err := s.searchAll(ctx, rec.ID(), question)
	if err != nil {
		return RetrievalResult{}, err
	}

	ranked := rankHits(dedupHits(hits))
	diverse := diverseSubset(ranked, MaxContextFiles)

	relevant := make([]ContextFile, 0, len(diverse))
	for _, hit := range diverse {
		if result.hasPrimary && hit.Path() == result.primary.Path() {
			continue
		}
		relevant = append(relevant, s.materialize(ctx, rec, hit))
	}
	result.relevant = relevant

	return result, nil
}

// FilenameMention returns the first filename with a source-file extension
// embedded in the question, or "" when none is present.
func FilenameMention(question string) string {
	return filenameMentionRe.FindString(question)
}

// freshFile fetches the selected file straight from the host, falling back
// to the indexed copy when the fresh fetch fails.
func (s *Retrieval) freshFile(ctx context.Context, rec repo.Repository, selectedPath string) (ContextFile, bool) {
	ref, err := repo.ParseURL(rec.URL())
	if err == nil {
		content, ok, fetchErr := s.host.FileContent(ctx, ref, selectedPath, rec.DefaultBranch())
		if fetchErr == nil && ok {
			return NewContextFile(selectedPath, content.Content(), languages.Detect(selectedPath), 0), true
		}
		if fetchErr != nil {
			s.logger.Debug("fresh fetch of selected file failed, trying index",
				slog.String("path", selectedPath),
				slog.String("error", fetchErr.Error()),
			)
		}
	}

	file, err := s.files.FindOne(ctx, repo.WithRepoID(rec.ID()), repo.WithPath(selectedPath))
	if err != nil || !file.HasContent() {
		return ContextFile{}, false
	}
	return NewContextFile(file.Path(), file.Content(), file.Language(), 0), true
}

// mentionedFile resolves a filename mentioned in the question to the best
// matching indexed file: exact path beats path suffix beats substring, and
// shallower paths win ties.
func (s *Retrieval) mentionedFile(ctx context.Context, repoID int64, mention string) (ContextFile, bool, error) {
	candidates, err := s.files.Find(ctx, repo.WithRepoID(repoID), repo.WithKind(repo.KindFile))
	if err != nil {
		return ContextFile{}, false, fmt.Errorf("find candidates for %q: %w", mention, err)
	}

	var (
		best      repo.File
		bestScore int
	)
	for _, f := range candidates {
		score := mentionScore(f.Path(), mention)
		if score == 0 {
			continue
		}
		if score > bestScore || (score == bestScore && len(f.Path()) < len(best.Path())) {
			best = f
			bestScore = score
		}
	}
	if bestScore == 0 {
		return ContextFile{}, false, nil
	}
	return NewContextFile(best.Path(), best.Content(), best.Language(), float64(bestScore)), true, nil
}

// mentionScore scores how well a path matches a mentioned filename.
func mentionScore(filePath, mention string) int {
	switch {
	case filePath == mention:
		return scoreExactPath
	case strings.HasSuffix(filePath, "/"+mention) || path.Base(filePath) == mention:
		return scorePathEnds
	case strings.Contains(filePath, mention):
		return scoreContains
	}
	return 0
}

// searchAll executes the raw question plus every intent-bucketed query and
// merges the hits.
func (s *Retrieval) searchAll(ctx context.Context, repoID int64, question string) ([]search.Hit, error) {
	queries := intentQueries(question)

	var merged []search.Hit
	for _, q := range queries {
		if s.metrics != nil {
			s.metrics.SearchQueries.Inc()
		}
		hits, err := s.index.Search(ctx, repoID, q, s.searchLimit)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", q, err)
		}
		merged = append(merged, hits...)
	}
	return merged, nil
}

// intentQueries classifies the question by keyword buckets and returns the
// full query list. The raw question is always included.
func intentQueries(question string) []string {
	queries := []string{question}
	lower := strings.ToLower(question)

	if containsAny(lower, structureKeywords) {
		queries = append(queries, structureQueries...)
	}
	if containsAny(lower, entryKeywords) {
		queries = append(queries, entryQuery)
	}
	if containsAny(lower, locateKeywords) {
		if m := whereTargetRe.FindStringSubmatch(question); len(m) == 2 && m[1] != "" {
			queries = append(queries, m[1])
		}
	}
	return queries
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// dedupHits drops repeated paths and repeated basenames, keeping the first
// (highest scored per query) occurrence. A second file sharing a basename
// with a kept hit is near-duplicate context, not new signal.
func dedupHits(hits []search.Hit) []search.Hit {
	seenPath := make(map[string]struct{}, len(hits))
	seenBase := make(map[string]struct{}, len(hits))
	out := make([]search.Hit, 0, len(hits))
	for _, h := range hits {
		if _, ok := seenPath[h.Path()]; ok {
			continue
		}
		base := path.Base(h.Path())
		if _, ok := seenBase[base]; ok {
			continue
		}
		seenPath[h.Path()] = struct{}{}
		seenBase[base] = struct{}{}
		out = append(out, h)
	}
	return out
}

// rankHits orders hits by relevance score descending, ties broken by
// shorter path.
func rankHits(hits []search.Hit) []search.Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score() != hits[j].Score() {
			return hits[i].Score() > hits[j].Score()
		}
		return len(hits[i].Path()) < len(hits[j].Path())
	})
	return hits
}

// diverseSubset picks at most limit hits spread across the ranked list:
// the top two, the middle, the last, then sequential fill. A purely greedy
// prefix would be dominated by near-identical top hits.
func diverseSubset(ranked []search.Hit, limit int) []search.Hit {
	if len(ranked) <= limit {
		return ranked
	}

	picked := make(map[int]struct{}, limit)
	order := []int{0, 1, len(ranked) / 2, len(ranked) - 1}
	var out []search.Hit
	for _, i := range order {
		if _, ok := picked[i]; ok {
			continue
		}
		picked[i] = struct{}{}
		out = append(out, ranked[i])
		if len(out) == limit {
			return out
		}
	}
	for i := range ranked {
		if _, ok := picked[i]; ok {
			continue
		}
		picked[i] = struct{}{}
		out = append(out, ranked[i])
		if len(out) == limit {
			break
		}
	}
	return out
}

// materialize turns a hit into a ContextFile, fetching content on demand
// when the index only holds a placeholder, and writing fetched content back.
func (s *Retrieval) materialize(ctx context.Context, rec repo.Repository, hit search.Hit) ContextFile {
	language := hit.Language()
	if language == "" {
		language = languages.Detect(hit.Path())
	}
	if hit.Content() != "" && hit.Content() != repo.PlaceholderContent {
		return NewContextFile(hit.Path(), hit.Content(), language, hit.Score())
	}

	ref, err := repo.ParseURL(rec.URL())
	if err != nil {
		return NewContextFile(hit.Path(), hit.Content(), language, hit.Score())
	}
	content, ok, err := s.host.FileContent(ctx, ref, hit.Path(), rec.DefaultBranch())
	if err != nil || !ok {
		return NewContextFile(hit.Path(), hit.Content(), language, hit.Score())
	}

	s.writeBack(ctx, rec.ID(), hit.Path(), content, language)
	return NewContextFile(hit.Path(), content.Content(), language, hit.Score())
}

// writeBack persists on-demand-fetched content to the file store and the
// search index so the next question finds it cached.
func (s *Retrieval) writeBack(ctx context.Context, repoID int64, filePath string, content host.FileContent, language string) {
	file := repo.NewFile(repoID, filePath, content.Content(), content.Size(), language)
	if existing, err := s.files.FindOne(ctx, repo.WithRepoID(repoID), repo.WithPath(filePath)); err == nil {
		file = existing.WithContent(content.Content(), content.Size())
	}
	if _, err := s.files.Save(ctx, file); err != nil {
		s.logger.Debug("write-back to file store failed",
			slog.String("path", filePath),
			slog.String("error", err.Error()),
		)
	}
	doc := search.NewDocument(repoID, filePath, content.Content(), content.Size(), language, string(repo.KindFile))
	if err := s.index.IndexFile(ctx, doc); err != nil {
		s.logger.Debug("write-back to index failed",
			slog.String("path", filePath),
			slog.String("error", err.Error()),
		)
	}
}
