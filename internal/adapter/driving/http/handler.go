// Package httphandler is the REST driving adapter: trigger endpoints, inbound
// webhooks and read access to tasks and review records.
package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/commitreview/internal/application"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// TriggerService accepts manual and webhook review requests.
// *application.Triggers implements it.
type TriggerService interface {
	Manual(ctx context.Context, req application.ManualRequest) (string, error)
	Webhook(ctx context.Context, req application.WebhookRequest) (string, error)
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	triggers     TriggerService
	tasks        driven.TaskStore
	reviews      driven.ReviewStore
	githubSecret []byte
	logger       *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. An empty
// githubSecret disables the GitHub push endpoint.
func NewHandler(
	triggers TriggerService,
	tasks driven.TaskStore,
	reviews driven.ReviewStore,
	githubSecret string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		triggers:     triggers,
		tasks:        tasks,
		reviews:      reviews,
		githubSecret: []byte(githubSecret),
		logger:       logger,
	}
}

// RegisterAPIRoutes registers every /api/v1 route on mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("POST /api/v1/code-review/manual-trigger", h.ManualTrigger)
	mux.HandleFunc("POST /api/v1/code-review/webhook-trigger", h.WebhookTrigger)
	mux.HandleFunc("POST /api/v1/webhooks/github", h.GitHubPush)

	mux.HandleFunc("GET /api/v1/tasks", h.ListTasks)
	mux.HandleFunc("GET /api/v1/tasks/{task_id}", h.GetTask)
	mux.HandleFunc("POST /api/v1/tasks/{task_id}/cancel", h.CancelTask)

	mux.HandleFunc("GET /api/v1/reviews/{id}", h.GetReview)
	mux.HandleFunc("POST /api/v1/reviews/{id}/feedback", h.SubmitFeedback)

	mux.HandleFunc("GET /api/v1/health", h.Health)
}

// NewServeMux creates an http.Handler with only the API routes, wrapped in
// the standard middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	RegisterAPIRoutes(mux, h)
	return ApplyMiddleware(mux, logger)
}

// ManualTrigger creates a review task for a branch (or all branches) and
// returns its id immediately.
func (h *Handler) ManualTrigger(w http.ResponseWriter, r *http.Request) {
	var req ManualTriggerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RepositoryID <= 0 {
		writeError(w, http.StatusBadRequest, "repository_id is required")
		return
	}

	taskID, err := h.triggers.Manual(r.Context(), application.ManualRequest{
		RepositoryID: req.RepositoryID,
		Branch:       req.Branch,
		AllBranches:  req.AllBranches,
		TriggeredBy:  req.TriggeredBy,
	})
	if err != nil && taskID == "" {
		h.writeTriggerError(w, "manual trigger", req.RepositoryID, err)
		return
	}
	if err != nil {
		// Inline run failed; the task itself carries the failure.
		h.logger.Warn("inline review failed", "task_id", taskID, "error", err)
	}

	writeJSON(w, http.StatusAccepted, TriggerResponse{TaskID: taskID, Status: "accepted"})
}

// WebhookTrigger reviews a single pushed commit unless it was already reviewed.
func (h *Handler) WebhookTrigger(w http.ResponseWriter, r *http.Request) {
	var req WebhookTriggerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RepositoryID <= 0 || req.CommitHash == "" {
		writeError(w, http.StatusBadRequest, "repository_id and commit_hash are required")
		return
	}

	status, err := h.triggers.Webhook(r.Context(), application.WebhookRequest{
		RepositoryID:  req.RepositoryID,
		CommitHash:    req.CommitHash,
		Branch:        req.Branch,
		Author:        req.Author,
		AuthorEmail:   req.AuthorEmail,
		CommitMessage: req.CommitMessage,
		TriggeredBy:   req.TriggeredBy,
	})
	if err != nil {
		h.writeTriggerError(w, "webhook trigger", req.RepositoryID, err)
		return
	}

	writeJSON(w, http.StatusOK, TriggerResponse{Status: status})
}

func (h *Handler) writeTriggerError(w http.ResponseWriter, op string, repoID int64, err error) {
	switch {
	case errors.Is(err, driven.ErrRepositoryNotFound):
		writeError(w, http.StatusNotFound, "repository not found")
	case errors.Is(err, application.ErrRepositoryInactive):
		writeError(w, http.StatusConflict, "repository is inactive")
	case errors.Is(err, application.ErrManualDisabled):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, application.ErrInvalidInvocation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(op+" failed", "repo_id", repoID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
