package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/repolens/repolens"
	"github.com/repolens/repolens/domain/host"
	"github.com/repolens/repolens/domain/repo"
	"github.com/repolens/repolens/infrastructure/api"
	"github.com/repolens/repolens/infrastructure/api/v1/dto"
	"github.com/repolens/repolens/infrastructure/persistence"
	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/internal/database"
	"github.com/repolens/repolens/internal/log"
)

// fakeHost serves a fixed repository snapshot without touching the network.
type fakeHost struct {
	mu       sync.Mutex
	metadata host.Metadata
	entries  []repo.Entry
	contents map[string]string
	issues   []host.Issue
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		metadata: host.NewMetadata("Test repository", 42, "main"),
		entries: []repo.Entry{
			repo.NewEntry("README.md", repo.KindFile, 120),
			repo.NewEntry("src", repo.KindFolder, 0),
			repo.NewEntry("src/server.ts", repo.KindFile, 340),
			repo.NewEntry("src/utils.ts", repo.KindFile, 210),
		},
		contents: map[string]string{
			"README.md":     "# Test\n\nA repository used in end to end tests.",
			"src/server.ts": "import { formatDate } from './utils'\n\nexport function startServer() {}",
			"src/utils.ts":  "export function formatDate(d: Date): string { return d.toISOString() }",
		},
		issues: []host.Issue{
			host.NewIssue(7, "Improve docs", "https://github.com/e2e/sample/issues/7", []string{"good first issue"}),
		},
	}
}

func (f *fakeHost) Metadata(ctx context.Context, ref repo.Ref) (host.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metadata, nil
}

func (f *fakeHost) Tree(ctx context.Context, ref repo.Ref, branch string) ([]repo.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]repo.Entry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func (f *fakeHost) FileContent(ctx context.Context, ref repo.Ref, path, gitRef string) (host.FileContent, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.contents[path]
	if !ok {
		return host.FileContent{}, false, nil
	}
	return host.NewFileContent(content, len(content)), true, nil
}

func (f *fakeHost) OpenIssues(ctx context.Context, ref repo.Ref, label string) ([]host.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]host.Issue, len(f.issues))
	copy(out, f.issues)
	return out, nil
}

func (f *fakeHost) RateLimit(ctx context.Context) (host.RateLimit, error) {
	return host.NewRateLimit(5000, time.Now().Add(time.Hour)), nil
}

// echoCompleter returns a canned answer so ask tests need no real backend.
type echoCompleter struct{}

func (echoCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	return "canned answer", nil
}

// TestServer wraps the API server for end to end testing.
type TestServer struct {
	t          *testing.T
	client     *repolens.Client
	db         database.Database
	httpServer *httptest.Server
	host       *fakeHost

	// Stores for direct test data seeding
	repoStore persistence.RepositoryStore
	fileStore persistence.FileStore
}

// NewTestServer creates a test server backed by SQLite, a fake repository
// host, and a canned completion backend.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	fake := newFakeHost()

	client, err := repolens.New(
		repolens.WithSQLite(dbPath),
		repolens.WithHostClient(fake),
		repolens.WithCompleter(echoCompleter{}),
		repolens.WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("create repolens client: %v", err)
	}

	// Separate DB handle for seeding test data
	db, err := database.NewDatabase(ctx, "sqlite:///"+dbPath)
	if err != nil {
		t.Fatalf("create database: %v", err)
	}

	apiServer := api.NewAPIServer(client, nil)
	apiServer.MountRoutes()

	httpServer := httptest.NewServer(apiServer.Router())

	ts := &TestServer{
		t:          t,
		client:     client,
		db:         db,
		httpServer: httpServer,
		host:       fake,
		repoStore:  persistence.NewRepositoryStore(db),
		fileStore:  persistence.NewFileStore(db),
	}

	t.Cleanup(func() {
		ts.Close()
	})

	return ts
}

func quietLogger() *slog.Logger {
	return log.NewLoggerWithWriter(io.Discard, config.LogFormatJSON, "error").Slog()
}

// URL returns the base URL of the test server.
func (ts *TestServer) URL() string {
	return ts.httpServer.URL
}

// Close shuts down the test server.
func (ts *TestServer) Close() {
	ts.httpServer.Close()
	_ = ts.client.Close()
	_ = ts.db.Close()
}

// GET performs a GET request and returns the response.
func (ts *TestServer) GET(path string) *http.Response {
	ts.t.Helper()
	resp, err := http.Get(ts.URL() + path)
	if err != nil {
		ts.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// POST performs a POST request with a JSON body and returns the response.
func (ts *TestServer) POST(path string, body any) *http.Response {
	ts.t.Helper()
	jsonBody, err := json.Marshal(body)
	if err != nil {
		ts.t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(ts.URL()+path, "application/json", bytes.NewReader(jsonBody))
	if err != nil {
		ts.t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// DELETE performs a DELETE request and returns the response.
func (ts *TestServer) DELETE(path string) *http.Response {
	ts.t.Helper()
	req, err := http.NewRequest(http.MethodDelete, ts.URL()+path, nil)
	if err != nil {
		ts.t.Fatalf("create DELETE request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		ts.t.Fatalf("DELETE %s: %v", path, err)
	}
	return resp
}

// DecodeJSON decodes the response body as JSON into v.
func (ts *TestServer) DecodeJSON(resp *http.Response, v any) {
	ts.t.Helper()
	defer func() {
		_ = resp.Body.Close()
	}()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		ts.t.Fatalf("decode response: %v", err)
	}
}

// SeedRepository inserts a pending repository record directly.
func (ts *TestServer) SeedRepository(rawURL string) repo.Repository {
	ts.t.Helper()

	rec, err := repo.NewRepository(rawURL)
	if err != nil {
		ts.t.Fatalf("create repo: %v", err)
	}
	saved, err := ts.repoStore.Save(context.Background(), rec)
	if err != nil {
		ts.t.Fatalf("save repo: %v", err)
	}
	return saved
}

// IndexAndWait requests indexing via the API and polls the status endpoint
// until the run reaches a terminal state.
func (ts *TestServer) IndexAndWait(rawURL string) dto.RepositoryData {
	ts.t.Helper()

	var body dto.RepositoryCreateRequest
	body.Data.Type = "repository"
	body.Data.Attributes.URL = rawURL

	resp := ts.POST("/api/v1/repositories", body)
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		ts.t.Fatalf("index request status = %d", resp.StatusCode)
	}

	var created dto.RepositoryResponse
	ts.DecodeJSON(resp, &created)

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		status := ts.GetStatus(created.Data.ID)
		switch status.Attributes.Status {
		case string(repo.StatusCompleted):
			get := ts.GET("/api/v1/repositories/" + created.Data.ID)
			var result dto.RepositoryResponse
			ts.DecodeJSON(get, &result)
			return result.Data
		case string(repo.StatusFailed):
			ts.t.Fatalf("indexing failed: %s", status.Attributes.ErrorMessage)
		}
		time.Sleep(20 * time.Millisecond)
	}

	ts.t.Fatalf("indexing of %s did not finish in time", rawURL)
	return dto.RepositoryData{}
}

// GetStatus fetches the status resource for a repository ID.
func (ts *TestServer) GetStatus(id string) dto.StatusData {
	ts.t.Helper()

	resp := ts.GET(fmt.Sprintf("/api/v1/repositories/%s/status", id))
	if resp.StatusCode != http.StatusOK {
		ts.t.Fatalf("status request status = %d", resp.StatusCode)
	}

	var result dto.StatusResponse
	ts.DecodeJSON(resp, &result)
	return result.Data
}
