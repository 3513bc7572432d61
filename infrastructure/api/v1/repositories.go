// Package v1 provides the v1 API routes.
package v1

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/repolens/repolens"
	"github.com/repolens/repolens/application/service"
	"github.com/repolens/repolens/domain/host"
	"github.com/repolens/repolens/domain/repo"
	"github.com/repolens/repolens/infrastructure/api/middleware"
	"github.com/repolens/repolens/infrastructure/api/v1/dto"
)

// RepositoriesRouter handles repository API endpoints.
type RepositoriesRouter struct {
	client *repolens.Client
	logger *slog.Logger
}

// NewRepositoriesRouter creates a new RepositoriesRouter.
func NewRepositoriesRouter(client *repolens.Client) *RepositoriesRouter {
	return &RepositoriesRouter{
		client: client,
		logger: client.Logger(),
	}
}

// Routes returns the chi router for repository endpoints.
func (r *RepositoriesRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.List)
	router.Post("/", r.Index)
	router.Get("/{id}", r.Get)
	router.Delete("/{id}", r.ClearCache)
	router.Get("/{id}/status", r.GetStatus)
	router.Get("/{id}/tree", r.GetTree)
	router.Get("/{id}/issues", r.ListIssues)
	router.Post("/{id}/ask", r.Ask)

	return router
}

// List handles GET /api/v1/repositories.
func (r *RepositoriesRouter) List(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	pagination := ParsePagination(req)

	repos, err := r.client.Repositories.List(ctx, service.RepositoryListParams{
		Limit:  pagination.Limit(),
		Offset: pagination.Offset(),
	})
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	total, err := r.client.Repositories.Count(ctx)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.RepositoryListResponse{
		Data:  reposToDTO(repos),
		Meta:  PaginationMeta(pagination, total),
		Links: PaginationLinks(req, pagination, total),
	})
}

// Index handles POST /api/v1/repositories: requests indexing for a URL.
// Returns 202 when a new run starts, 200 when the cache is warm or a run
// is already in flight.
func (r *RepositoriesRouter) Index(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var body dto.RepositoryCreateRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		middleware.WriteError(w, req, middleware.NewAPIError(http.StatusBadRequest, "invalid request body", err), r.logger)
		return
	}
	if body.Data.Attributes.URL == "" {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error": "url is required",
		})
		return
	}

	rec, started, err := r.client.Indexer.Request(ctx, body.Data.Attributes.URL)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	status := http.StatusOK
	if started {
		status = http.StatusAccepted
	}
	middleware.WriteJSON(w, status, dto.RepositoryResponse{Data: repoToDTO(rec)})
}

// Get handles GET /api/v1/repositories/{id}.
func (r *RepositoriesRouter) Get(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	id, err := parseID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	rec, err := r.client.Repositories.Get(ctx, id)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.RepositoryResponse{Data: repoToDTO(rec)})
}

// ClearCache handles DELETE /api/v1/repositories/{id}: destroys the cached
// index so the next request starts from scratch.
func (r *RepositoriesRouter) ClearCache(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	id, err := parseID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	if err := r.client.Repositories.ClearCache(ctx, id); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetStatus handles GET /api/v1/repositories/{id}/status: the polling
// surface reflecting the latest indexing progress row.
func (r *RepositoriesRouter) GetStatus(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	id, err := parseID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	row, err := r.client.Repositories.Status(ctx, id)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.StatusResponse{Data: progressToDTO(row)})
}

// GetTree handles GET /api/v1/repositories/{id}/tree: the hierarchical
// file tree rebuilt from the indexed file records.
func (r *RepositoriesRouter) GetTree(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	id, err := parseID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	tree, err := r.client.Repositories.Tree(ctx, id)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.TreeResponse{Data: treeToDTO(tree.Roots())})
}

// ListIssues handles GET /api/v1/repositories/{id}/issues.
func (r *RepositoriesRouter) ListIssues(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	id, err := parseID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	issues, err := r.client.Repositories.Issues(ctx, id, req.URL.Query().Get("label"))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.IssueListResponse{Data: issuesToDTO(issues)})
}

// Ask handles POST /api/v1/repositories/{id}/ask: answers a question about
// the repository grounded in its indexed files.
func (r *RepositoriesRouter) Ask(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	id, err := parseID(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	var body dto.AskRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		middleware.WriteError(w, req, middleware.NewAPIError(http.StatusBadRequest, "invalid request body", err), r.logger)
		return
	}
	if body.Question == "" {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error": "question is required",
		})
		return
	}

	history := make([]service.Message, 0, len(body.History))
	for _, m := range body.History {
		history = append(history, service.NewMessage(m.Role, m.Content))
	}

	answer, err := r.client.Ask.Answer(ctx, service.Question{
		RepoID:       id,
		Text:         body.Question,
		SelectedPath: body.SelectedFile,
		SkillLevel:   body.SkillLevel,
		History:      history,
	})
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.AskResponse{
		Answer:       answer.Text(),
		ContextFiles: answer.ContextFiles(),
	})
}

func parseID(req *http.Request) (int64, error) {
	idStr := chi.URLParam(req, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, middleware.NewAPIError(http.StatusBadRequest, fmt.Sprintf("invalid repository id %q", idStr), err)
	}
	return id, nil
}

func reposToDTO(repos []repo.Repository) []dto.RepositoryData {
	result := make([]dto.RepositoryData, len(repos))
	for i, rec := range repos {
		result[i] = repoToDTO(rec)
	}
	return result
}

func repoToDTO(rec repo.Repository) dto.RepositoryData {
	attrs := dto.RepositoryAttributes{
		URL:            rec.URL(),
		Owner:          rec.Owner(),
		Name:           rec.Name(),
		Description:    rec.Description(),
		Stars:          rec.Stars(),
		Languages:      rec.Languages(),
		DefaultBranch:  rec.DefaultBranch(),
		Status:         string(rec.Status()),
		Progress:       rec.Progress(),
		TotalFiles:     rec.TotalFiles(),
		IndexedFiles:   rec.IndexedFiles(),
		ErrorMessage:   rec.ErrorMessage(),
		AccessCount:    rec.AccessCount(),
		CacheTTLHours:  rec.CacheTTLHours(),
		IndexedAt:      timePtr(rec.IndexedAt()),
		LastAccessedAt: timePtr(rec.LastAccessedAt()),
		CreatedAt:      timePtr(rec.CreatedAt()),
		UpdatedAt:      timePtr(rec.UpdatedAt()),
	}

	data := dto.RepositoryData{
		Type:       "repository",
		ID:         fmt.Sprintf("%d", rec.ID()),
		Attributes: attrs,
	}
	if ins := rec.Insights(); !ins.Empty() {
		data.Insights = &dto.InsightsAttributes{
			Summary:           ins.Summary(),
			Quickstart:        ins.Quickstart(),
			ContributionGuide: ins.ContributionGuide(),
		}
	}
	return data
}

func progressToDTO(row repo.Progress) dto.StatusData {
	return dto.StatusData{
		Type: "indexing_status",
		ID:   fmt.Sprintf("%d", row.RepoID()),
		Attributes: dto.StatusAttributes{
			Status:       string(row.Status()),
			Progress:     row.Percent(),
			CurrentStep:  row.CurrentStep(),
			TotalFiles:   row.TotalFiles(),
			IndexedFiles: row.IndexedFiles(),
			ErrorMessage: row.ErrorMessage(),
			StartedAt:    timePtr(row.StartedAt()),
			CompletedAt:  timePtr(row.CompletedAt()),
		},
	}
}

func treeToDTO(nodes []*repo.Node) []dto.TreeNode {
	out := make([]dto.TreeNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, dto.TreeNode{
			Path:     n.Path(),
			Name:     n.Name(),
			Type:     string(n.Kind()),
			Children: treeToDTO(n.Children()),
		})
	}
	return out
}

func issuesToDTO(issues []host.Issue) []dto.IssueData {
	out := make([]dto.IssueData, 0, len(issues))
	for _, issue := range issues {
		out = append(out, dto.IssueData{
			Number: issue.Number(),
			Title:  issue.Title(),
			URL:    issue.URL(),
			Labels: issue.Labels(),
		})
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
