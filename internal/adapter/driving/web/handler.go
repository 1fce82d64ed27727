// Package web implements the HTML driving adapter: the review detail page that
// notification links point at, plus its feedback form.
package web

import (
	"bytes"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// Handler serves the review pages.
type Handler struct {
	reviews       driven.ReviewStore
	repos         driven.RepositoryStore
	tmpl          *template.Template
	secureCookies bool
	logger        *slog.Logger
}

// NewHandler parses the embedded templates and returns a Handler. secureCookies
// should be true when the service is reached over HTTPS.
func NewHandler(reviews driven.ReviewStore, repos driven.RepositoryStore, secureCookies bool, logger *slog.Logger) (*Handler, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"lower": strings.ToLower,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{
		reviews:       reviews,
		repos:         repos,
		tmpl:          tmpl,
		secureCookies: secureCookies,
		logger:        logger,
	}, nil
}

// ReviewPage renders the full review of one commit.
func (h *Handler) ReviewPage(w http.ResponseWriter, r *http.Request) {
	id, ok := reviewID(w, r)
	if !ok {
		return
	}

	rec, err := h.reviews.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, driven.ErrReviewNotFound) {
			http.Error(w, "review not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load review", "review_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	repoName := strconv.FormatInt(rec.RepositoryID, 10)
	if repo, err := h.repos.Get(r.Context(), rec.RepositoryID); err == nil {
		repoName = repo.Name
	} else if !errors.Is(err, driven.ErrRepositoryNotFound) {
		h.logger.Warn("failed to load repository for review page", "repo_id", rec.RepositoryID, "error", err)
	}

	page := toReviewPage(*rec, repoName, csrfToken(w, r, h.secureCookies))

	// Render into a buffer so a template error never leaves a half-written page.
	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, "review.html", page); err != nil {
		h.logger.Error("failed to render review page", "review_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// SubmitFeedback records the human verdict posted from the review page and
// redirects back to it.
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := reviewID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if !validateCSRF(r) {
		http.Error(w, "invalid csrf token", http.StatusForbidden)
		return
	}

	fb := model.Feedback{
		Status:  model.FeedbackStatus(strings.ToUpper(strings.TrimSpace(r.PostFormValue("feedback")))),
		Comment: strings.TrimSpace(r.PostFormValue("comment")),
		By:      strings.TrimSpace(r.PostFormValue("by")),
	}
	if !fb.Status.Valid() {
		http.Error(w, "invalid feedback value", http.StatusBadRequest)
		return
	}

	if err := h.reviews.SetFeedback(r.Context(), id, fb); err != nil {
		if errors.Is(err, driven.ErrReviewNotFound) {
			http.Error(w, "review not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to store feedback", "review_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("review feedback recorded", "review_id", id, "feedback", fb.Status)
	http.Redirect(w, r, "/reviews/"+strconv.FormatInt(id, 10), http.StatusSeeOther)
}

func reviewID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid review id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
