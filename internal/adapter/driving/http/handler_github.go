package httphandler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/commitreview/internal/application"
)

const branchRefPrefix = "refs/heads/"

// GitHubPush accepts a GitHub push delivery for ?repository_id=N, verifies its
// signature and feeds every pushed commit through the webhook trigger.
func (h *Handler) GitHubPush(w http.ResponseWriter, r *http.Request) {
	if len(h.githubSecret) == 0 {
		writeError(w, http.StatusServiceUnavailable, "github webhook secret not configured")
		return
	}

	repoID, err := strconv.ParseInt(r.URL.Query().Get("repository_id"), 10, 64)
	if err != nil || repoID <= 0 {
		writeError(w, http.StatusBadRequest, "repository_id query parameter is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := github.ValidatePayload(r, h.githubSecret)
	if err != nil {
		h.logger.Warn("rejected github delivery", "repo_id", repoID, "error", err)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unparseable event")
		return
	}

	switch e := event.(type) {
	case *github.PingEvent:
		writeJSON(w, http.StatusOK, TriggerResponse{Status: "pong"})
	case *github.PushEvent:
		h.handlePush(w, r, repoID, e)
	default:
		writeJSON(w, http.StatusAccepted, TriggerResponse{Status: "ignored"})
	}
}

func (h *Handler) handlePush(w http.ResponseWriter, r *http.Request, repoID int64, e *github.PushEvent) {
	ref := e.GetRef()
	if e.GetDeleted() || !strings.HasPrefix(ref, branchRefPrefix) {
		writeJSON(w, http.StatusAccepted, TriggerResponse{Status: "ignored"})
		return
	}
	branch := strings.TrimPrefix(ref, branchRefPrefix)

	commits := e.Commits
	if len(commits) == 0 && e.HeadCommit != nil {
		commits = []*github.HeadCommit{e.HeadCommit}
	}

	resp := PushResponse{Results: make([]PushResult, 0, len(commits))}
	for _, c := range commits {
		if c.GetID() == "" {
			continue
		}
		status, err := h.triggers.Webhook(r.Context(), application.WebhookRequest{
			RepositoryID:  repoID,
			CommitHash:    c.GetID(),
			Branch:        branch,
			Author:        c.GetAuthor().GetName(),
			AuthorEmail:   c.GetAuthor().GetEmail(),
			CommitMessage: c.GetMessage(),
			TriggeredBy:   e.GetPusher().GetName(),
		})
		if err != nil {
			h.writeTriggerError(w, "github push", repoID, err)
			return
		}
		resp.Results = append(resp.Results, PushResult{Commit: c.GetID(), Status: status})
	}

	writeJSON(w, http.StatusOK, resp)
}
