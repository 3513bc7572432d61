package github_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	gh "github.com/google/go-github/v81/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repolens/repolens/domain/host"
	"github.com/repolens/repolens/domain/repo"
	"github.com/repolens/repolens/infrastructure/github"
	"github.com/repolens/repolens/internal/config"
)

// apiStub is a fake GitHub REST API. Handlers are keyed by request path;
// every request is counted so tests can assert attempt counts.
type apiStub struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	counts   map[string]int
	server   *httptest.Server
}

func newAPIStub(t *testing.T) *apiStub {
	t.Helper()
	stub := &apiStub{
		handlers: make(map[string]http.HandlerFunc),
		counts:   make(map[string]int),
	}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		stub.counts[r.URL.Path]++
		h, ok := stub.handlers[r.URL.Path]
		stub.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
			return
		}
		h(w, r)
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *apiStub) handle(path string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[path] = h
}

func (s *apiStub) handleJSON(path string, body any) {
	s.handle(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
}

func (s *apiStub) handleStatus(path string, status int) {
	s.handle(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"message":"status %d"}`, status)
	})
}

func (s *apiStub) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[path]
}

func newTestFetcher(t *testing.T, stub *apiStub) *github.Fetcher {
	t.Helper()
	client := gh.NewClient(nil)
	base, err := url.Parse(stub.server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return github.NewFetcher(client, config.NewFetchConfig(), logger)
}

func testRef(t *testing.T) repo.Ref {
	t.Helper()
	ref, err := repo.ParseURL("https://github.com/golang/example")
	require.NoError(t, err)
	return ref
}

func fileJSON(path, content string, size int) map[string]any {
	return map[string]any{
		"type":     "file",
		"encoding": "base64",
		"name":     path,
		"path":     path,
		"size":     size,
		"content":  base64.StdEncoding.EncodeToString([]byte(content)),
	}
}

func TestFetcher_Metadata(t *testing.T) {
	stub := newAPIStub(t)
	stub.handleJSON("/repos/golang/example", map[string]any{
		"description":      "Go example repository",
		"stargazers_count": 1500,
		"default_branch":   "master",
	})
	f := newTestFetcher(t, stub)

	meta, err := f.Metadata(context.Background(), testRef(t))
	require.NoError(t, err)
	assert.Equal(t, "Go example repository", meta.Description())
	assert.Equal(t, 1500, meta.Stars())
	assert.Equal(t, "master", meta.DefaultBranch())
}

func TestFetcher_Metadata_CachesDefaultBranch(t *testing.T) {
	stub := newAPIStub(t)
	stub.handleJSON("/repos/golang/example", map[string]any{
		"default_branch": "master",
	})
	stub.handleJSON("/repos/golang/example/contents/main.go", fileJSON("main.go", "package main", 12))
	f := newTestFetcher(t, stub)

	_, err := f.Metadata(context.Background(), testRef(t))
	require.NoError(t, err)

	// Empty git ref resolves through the cache, not another metadata call.
	_, ok, err := f.FileContent(context.Background(), testRef(t), "main.go", "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, stub.count("/repos/golang/example"))
}

func TestFetcher_Tree(t *testing.T) {
	stub := newAPIStub(t)
	stub.handleJSON("/repos/golang/example/git/trees/main", map[string]any{
		"sha": "abc123",
		"tree": []map[string]any{
			{"path": "src", "type": "tree"},
			{"path": "src/main.go", "type": "blob", "size": 120},
			{"path": "README.md", "type": "blob", "size": 64},
		},
	})
	f := newTestFetcher(t, stub)

	entries, err := f.Tree(context.Background(), testRef(t), "main")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, repo.KindFolder, entries[0].Kind())
	assert.Equal(t, "src/main.go", entries[1].Path())
	assert.Equal(t, 120, entries[1].Size())
}

func TestFetcher_FileContent_DecodesBase64(t *testing.T) {
	stub := newAPIStub(t)
	text := "package main\n\nfunc main() {}\n"
	stub.handleJSON("/repos/golang/example/contents/main.go", fileJSON("main.go", text, len(text)))
	f := newTestFetcher(t, stub)

	content, ok, err := f.FileContent(context.Background(), testRef(t), "main.go", "main")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, text, content.Content())
	assert.Equal(t, len(text), content.Size())
}

func TestFetcher_FileContent_DirectoryRejected(t *testing.T) {
	stub := newAPIStub(t)
	stub.handleJSON("/repos/golang/example/contents/src", []map[string]any{
		{"type": "file", "name": "main.go", "path": "src/main.go", "size": 120},
	})
	f := newTestFetcher(t, stub)

	_, ok, err := f.FileContent(context.Background(), testRef(t), "src", "main")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFetcher_FileContent_OversizeRejected(t *testing.T) {
	stub := newAPIStub(t)
	stub.handleJSON("/repos/golang/example/contents/big.bin",
		fileJSON("big.bin", "stub", repo.MaxFileBytes+1))
	f := newTestFetcher(t, stub)

	_, ok, err := f.FileContent(context.Background(), testRef(t), "big.bin", "main")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFetcher_FileContent_ForbiddenIsNullNotError(t *testing.T) {
	stub := newAPIStub(t)
	stub.handleStatus("/repos/golang/example/contents/secret.go", http.StatusForbidden)
	f := newTestFetcher(t, stub)

	_, ok, err := f.FileContent(context.Background(), testRef(t), "secret.go", "main")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, stub.count("/repos/golang/example/contents/secret.go"))
}

func TestFetcher_FileContent_NotFoundSingleAttempt(t *testing.T) {
	stub := newAPIStub(t)
	stub.handleStatus("/repos/golang/example/contents/gone.go", http.StatusNotFound)
	f := newTestFetcher(t, stub)

	_, ok, err := f.FileContent(context.Background(), testRef(t), "gone.go", "main")
	require.Error(t, err)
	assert.True(t, errors.Is(err, host.ErrNotFound))
	assert.False(t, ok)
	assert.Equal(t, 1, stub.count("/repos/golang/example/contents/gone.go"))
}

func TestFetcher_FileContent_TransientRetried(t *testing.T) {
	stub := newAPIStub(t)
	var (
		mu    sync.Mutex
		calls int
	)
	text := "package main"
	stub.handle("/repos/golang/example/contents/flaky.go", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"message":"boom"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fileJSON("flaky.go", text, len(text)))
	})
	f := newTestFetcher(t, stub)

	content, ok, err := f.FileContent(context.Background(), testRef(t), "flaky.go", "main")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, text, content.Content())
	assert.Equal(t, 2, stub.count("/repos/golang/example/contents/flaky.go"))
}

func TestFetcher_Metadata_NotFound(t *testing.T) {
	stub := newAPIStub(t)
	stub.handleStatus("/repos/golang/example", http.StatusNotFound)
	f := newTestFetcher(t, stub)

	_, err := f.Metadata(context.Background(), testRef(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, host.ErrNotFound))
	assert.Equal(t, 1, stub.count("/repos/golang/example"))
}
