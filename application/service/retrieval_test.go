package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/repolens/repolens/domain/repo"
	"github.com/repolens/repolens/domain/search"
)

func completedRepo(t *testing.T, store *memRepoStore, url string) repo.Repository {
	t.Helper()
	rec, err := repo.NewRepository(url)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	rec, err = store.Save(context.Background(), rec)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	total, indexed := 1, 1
	if err := store.UpdateStatus(context.Background(), rec.ID(), repo.StatusUpdate{
		Status: repo.StatusCompleted, Progress: 100, Step: "done",
		TotalFiles: &total, IndexedFiles: &indexed,
	}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	return store.get(rec.ID())
}

func TestFilenameMention(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"what does utils.ts do?", "utils.ts"},
		{"explain src/server/http.go please", "src/server/http.go"},
		{"how does auth work?", ""},
		{"is config.yaml read at startup?", "config.yaml"},
		{"what is in the README?", ""},
	}
	for _, tt := range tests {
		if got := FilenameMention(tt.question); got != tt.want {
			t.Errorf("FilenameMention(%q) = %q, want %q", tt.question, got, tt.want)
		}
	}
}

func TestMentionScore(t *testing.T) {
	tests := []struct {
		path, mention string
		want          int
	}{
		{"src/utils.ts", "src/utils.ts", scoreExactPath},
		{"src/utils.ts", "utils.ts", scorePathEnds},
		{"src/utils.ts.bak", "utils.ts", scoreContains},
		{"src/other.ts", "utils.ts", 0},
	}
	for _, tt := range tests {
		if got := mentionScore(tt.path, tt.mention); got != tt.want {
			t.Errorf("mentionScore(%q, %q) = %d, want %d", tt.path, tt.mention, got, tt.want)
		}
	}
}

func TestIntentQueries(t *testing.T) {
	base := intentQueries("what color is the sky")
	if len(base) != 1 {
		t.Errorf("plain question should produce only itself, got %v", base)
	}

	structure := intentQueries("how is this project organized?")
	if len(structure) != 1+len(structureQueries) {
		t.Errorf("structure question queries = %v", structure)
	}

	entry := intentQueries("where does the app start?")
	found := false
	for _, q := range entry {
		if q == entryQuery {
			found = true
		}
	}
	if !found {
		t.Errorf("entrypoint question should add the entry bucket, got %v", entry)
	}

	locate := intentQueries("where is the database configured?")
	if len(locate) < 2 {
		t.Errorf("locate question should extract a target, got %v", locate)
	}
}

func TestDedupHits(t *testing.T) {
	hits := []search.Hit{
		search.NewHit("src/a.go", "", "Go", 3),
		search.NewHit("src/a.go", "", "Go", 2),
		search.NewHit("lib/a.go", "", "Go", 2),
		search.NewHit("src/b.go", "", "Go", 1),
	}

	got := dedupHits(hits)
	if len(got) != 2 {
		t.Fatalf("dedupHits kept %d hits, want 2", len(got))
	}
	if got[0].Path() != "src/a.go" || got[1].Path() != "src/b.go" {
		t.Errorf("kept %q and %q", got[0].Path(), got[1].Path())
	}
}

func TestRankHits(t *testing.T) {
	hits := []search.Hit{
		search.NewHit("deeply/nested/path/a.go", "", "Go", 2),
		search.NewHit("b.go", "", "Go", 2),
		search.NewHit("c.go", "", "Go", 5),
	}

	got := rankHits(hits)
	if got[0].Path() != "c.go" {
		t.Errorf("highest score should rank first, got %q", got[0].Path())
	}
	if got[1].Path() != "b.go" {
		t.Errorf("shorter path should win the tie, got %q", got[1].Path())
	}
}

func TestDiverseSubset(t *testing.T) {
	var ranked []search.Hit
	for i := 0; i < 20; i++ {
		ranked = append(ranked, search.NewHit(fmt.Sprintf("f%02d.go", i), "", "Go", float64(20-i)))
	}

	got := diverseSubset(ranked, MaxContextFiles)
	if len(got) != MaxContextFiles {
		t.Fatalf("subset size = %d, want %d", len(got), MaxContextFiles)
	}

	// The spread picks must be present before sequential fill.
	wantFirst := []string{"f00.go", "f01.go", "f10.go", "f19.go"}
	for i, want := range wantFirst {
		if got[i].Path() != want {
			t.Errorf("pick %d = %q, want %q", i, got[i].Path(), want)
		}
	}

	short := diverseSubset(ranked[:3], MaxContextFiles)
	if len(short) != 3 {
		t.Errorf("short list should pass through, got %d", len(short))
	}
}

func TestRetrieval_Rank_MentionedFileBecomesPrimary(t *testing.T) {
	repos := newMemRepoStore()
	files := newMemFileStore()
	index := newStubIndex()
	hostStub := newStubHost()

	rec := completedRepo(t, repos, "golang/example")
	for _, f := range []repo.File{
		repo.NewFile(rec.ID(), "src/utils.ts", "export function formatDate() {}", 30, "TypeScript"),
		repo.NewFile(rec.ID(), "src/server.ts", "import utils", 12, "TypeScript"),
	} {
		if _, err := files.Save(context.Background(), f); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	r := NewRetrieval(files, index, hostStub, nil, testLogger(), 10)
	result, err := r.Rank(context.Background(), rec, "what does utils.ts export?", "")
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}

	primary, ok := result.Primary()
	if !ok {
		t.Fatal("mentioned filename should resolve to a primary file")
	}
	if primary.Path() != "src/utils.ts" {
		t.Errorf("primary = %q, want src/utils.ts", primary.Path())
	}
	if primary.Content() == "" {
		t.Error("primary content missing")
	}
}

func TestRetrieval_Rank_MentionPrefersShallowerPath(t *testing.T) {
	repos := newMemRepoStore()
	files := newMemFileStore()
	rec := completedRepo(t, repos, "golang/example")

	for _, p := range []string{"vendor/lib/deep/utils.ts", "src/utils.ts"} {
		if _, err := files.Save(context.Background(), repo.NewFile(rec.ID(), p, "content", 7, "TypeScript")); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	r := NewRetrieval(files, newStubIndex(), newStubHost(), nil, testLogger(), 10)
	result, err := r.Rank(context.Background(), rec, "explain utils.ts", "")
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}

	primary, ok := result.Primary()
	if !ok {
		t.Fatal("no primary resolved")
	}
	if primary.Path() != "src/utils.ts" {
		t.Errorf("primary = %q, want the shallower match", primary.Path())
	}
}

func TestRetrieval_Rank_SelectedFileFetchedFresh(t *testing.T) {
	repos := newMemRepoStore()
	files := newMemFileStore()
	hostStub := newStubHost()
	hostStub.contents["src/app.ts"] = "fresh content from host"

	rec := completedRepo(t, repos, "golang/example")
	if _, err := files.Save(context.Background(), repo.NewFile(rec.ID(), "src/app.ts", "stale indexed copy", 18, "TypeScript")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	r := NewRetrieval(files, newStubIndex(), hostStub, nil, testLogger(), 10)
	result, err := r.Rank(context.Background(), rec, "what does this do?", "src/app.ts")
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}

	primary, ok := result.Primary()
	if !ok {
		t.Fatal("selected file should be the primary")
	}
	if primary.Content() != "fresh content from host" {
		t.Errorf("primary content = %q, want the fresh fetch", primary.Content())
	}
}

func TestRetrieval_Rank_SelectedFileFallsBackToIndex(t *testing.T) {
	repos := newMemRepoStore()
	files := newMemFileStore()
	hostStub := newStubHost()
	hostStub.failing["src/app.ts"] = struct{}{}

	rec := completedRepo(t, repos, "golang/example")
	if _, err := files.Save(context.Background(), repo.NewFile(rec.ID(), "src/app.ts", "indexed copy", 12, "TypeScript")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	r := NewRetrieval(files, newStubIndex(), hostStub, nil, testLogger(), 10)
	result, err := r.Rank(context.Background(), rec, "what does this do?", "src/app.ts")
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}

	primary, ok := result.Primary()
	if !ok {
		t.Fatal("indexed fallback should still produce a primary")
	}
	if primary.Content() != "indexed copy" {
		t.Errorf("primary content = %q, want the indexed copy", primary.Content())
	}
}

func TestRetrieval_Rank_PlaceholderFetchedOnDemand(t *testing.T) {
	repos := newMemRepoStore()
	files := newMemFileStore()
	index := newStubIndex()
	hostStub := newStubHost()
	hostStub.contents["src/lazy.go"] = "package lazy"

	rec := completedRepo(t, repos, "golang/example")
	if _, err := files.Save(context.Background(), repo.NewFile(rec.ID(), "src/lazy.go", repo.PlaceholderContent, 0, "Go")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := index.IndexFile(context.Background(), search.NewDocument(rec.ID(), "src/lazy.go", repo.PlaceholderContent, 0, "Go", "file")); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}

	r := NewRetrieval(files, index, hostStub, nil, testLogger(), 10)
	result, err := r.Rank(context.Background(), rec, "lazy", "")
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}

	relevant := result.Relevant()
	if len(relevant) != 1 {
		t.Fatalf("relevant = %d files, want 1", len(relevant))
	}
	if relevant[0].Content() != "package lazy" {
		t.Errorf("content = %q, want the on-demand fetch", relevant[0].Content())
	}

	// The fetched content must be written back so the next question finds
	// it cached.
	waitFor(t, func() bool {
		f, err := files.FindOne(context.Background(), repo.WithRepoID(rec.ID()), repo.WithPath("src/lazy.go"))
		return err == nil && f.HasContent()
	})
}

func TestRetrieval_Rank_PrimaryExcludedFromRelevant(t *testing.T) {
	repos := newMemRepoStore()
	files := newMemFileStore()
	index := newStubIndex()

	rec := completedRepo(t, repos, "golang/example")
	if _, err := files.Save(context.Background(), repo.NewFile(rec.ID(), "src/utils.ts", "formatDate", 10, "TypeScript")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := index.IndexFile(context.Background(), search.NewDocument(rec.ID(), "src/utils.ts", "formatDate and utils.ts helpers", 30, "TypeScript", "file")); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}

	r := NewRetrieval(files, index, newStubHost(), nil, testLogger(), 10)
	result, err := r.Rank(context.Background(), rec, "what does utils.ts do?", "")
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}

	if _, ok := result.Primary(); !ok {
		t.Fatal("no primary resolved")
	}
	for _, f := range result.Relevant() {
		if f.Path() == "src/utils.ts" {
			t.Error("primary file duplicated in the relevant set")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}
