package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

// maxBodyBytes bounds every request body the API decodes.
const maxBodyBytes = 1 << 20

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeBody decodes a bounded JSON body into v. On failure it writes a 400
// (or 413) and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// ManualTriggerRequest is the JSON body for the manual trigger endpoint.
type ManualTriggerRequest struct {
	RepositoryID int64  `json:"repository_id"`
	Branch       string `json:"branch"`
	AllBranches  bool   `json:"all_branches"`
	TriggeredBy  string `json:"triggered_by"`
}

// WebhookTriggerRequest is the JSON body for the generic commit webhook.
type WebhookTriggerRequest struct {
	RepositoryID  int64  `json:"repository_id"`
	CommitHash    string `json:"commit_hash"`
	Branch        string `json:"branch"`
	Author        string `json:"author"`
	AuthorEmail   string `json:"author_email"`
	CommitMessage string `json:"commit_message"`
	TriggeredBy   string `json:"triggered_by"`
}

// TriggerResponse acknowledges a trigger.
type TriggerResponse struct {
	TaskID string `json:"task_id,omitempty"`
	Status string `json:"status"`
}

// PushResult is the outcome for one commit of a GitHub push.
type PushResult struct {
	Commit string `json:"commit"`
	Status string `json:"status"`
}

// PushResponse lists the per-commit outcomes of a GitHub push.
type PushResponse struct {
	Results []PushResult `json:"results"`
}

// FeedbackRequest is the JSON body for the review feedback endpoint.
type FeedbackRequest struct {
	Feedback string `json:"feedback"`
	Comment  string `json:"comment"`
	By       string `json:"by"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// TaskResponse is the JSON read model of a review task.
type TaskResponse struct {
	TaskID           string  `json:"task_id"`
	RepositoryID     int64   `json:"repository_id"`
	RepositoryName   string  `json:"repository_name,omitempty"`
	Branch           string  `json:"branch"`
	Status           string  `json:"status"`
	StatusLabel      string  `json:"status_label"`
	CurrentStep      string  `json:"current_step"`
	Progress         int     `json:"progress"`
	TotalCommits     int     `json:"total_commits"`
	ProcessedCommits int     `json:"processed_commits"`
	TriggerMode      string  `json:"trigger_mode"`
	TriggeredBy      string  `json:"triggered_by"`
	HighRiskCount    int     `json:"high_risk_count"`
	MediumRiskCount  int     `json:"medium_risk_count"`
	LowRiskCount     int     `json:"low_risk_count"`
	NotifiedCount    int     `json:"notified_count"`
	ErrorMessage     string  `json:"error_message,omitempty"`
	CreatedAt        string  `json:"created_at"`
	StartedAt        *string `json:"started_at"`
	CompletedAt      *string `json:"completed_at"`
	DurationSeconds  float64 `json:"duration_seconds"`
}

// ReviewResponse is the JSON representation of a code review record. The diff
// text is omitted; the review page renders it.
type ReviewResponse struct {
	ID              int64              `json:"id"`
	RepositoryID    int64              `json:"repository_id"`
	CommitHash      string             `json:"commit_hash"`
	Branch          string             `json:"branch"`
	CommitMessage   string             `json:"commit_message"`
	Author          string             `json:"author"`
	AuthorEmail     string             `json:"author_email"`
	CommittedAt     string             `json:"committed_at"`
	TriggerMode     string             `json:"trigger_mode"`
	TriggeredBy     string             `json:"triggered_by"`
	RiskScore       float64            `json:"risk_score"`
	RiskLevel       string             `json:"risk_level"`
	AIModel         string             `json:"ai_model"`
	AIContent       string             `json:"ai_content"`
	Summary         string             `json:"summary"`
	Issues          []model.Issue      `json:"issues"`
	Praise          []string           `json:"praise"`
	Files           []model.FileChange `json:"files"`
	LinesAdded      int                `json:"lines_added"`
	LinesDeleted    int                `json:"lines_deleted"`
	LinesChanged    int                `json:"lines_changed"`
	Feedback        string             `json:"feedback"`
	FeedbackComment string             `json:"feedback_comment,omitempty"`
	FeedbackBy      string             `json:"feedback_by,omitempty"`
	FeedbackAt      *string            `json:"feedback_at"`
	Notified        bool               `json:"notified"`
	NotifiedAt      *string            `json:"notified_at"`
	CreatedAt       string             `json:"created_at"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// toTaskResponse converts a domain ReviewTask to its JSON representation.
func toTaskResponse(t model.ReviewTask) TaskResponse {
	return TaskResponse{
		TaskID:           t.TaskID,
		RepositoryID:     t.RepositoryID,
		RepositoryName:   t.RepositoryName,
		Branch:           t.Branch,
		Status:           string(t.Status),
		StatusLabel:      t.Status.Label(),
		CurrentStep:      t.CurrentStep,
		Progress:         t.Progress,
		TotalCommits:     t.TotalCommits,
		ProcessedCommits: t.ProcessedCommits,
		TriggerMode:      string(t.TriggerMode),
		TriggeredBy:      t.TriggeredBy,
		HighRiskCount:    t.Counts.High,
		MediumRiskCount:  t.Counts.Medium,
		LowRiskCount:     t.Counts.Low,
		NotifiedCount:    t.Counts.Notified,
		ErrorMessage:     t.ErrorMessage,
		CreatedAt:        formatTime(t.CreatedAt),
		StartedAt:        formatTimePtr(t.StartedAt),
		CompletedAt:      formatTimePtr(t.CompletedAt),
		DurationSeconds:  t.Duration().Seconds(),
	}
}

// toReviewResponse converts a domain CodeReviewRecord to its JSON representation.
func toReviewResponse(r model.CodeReviewRecord) ReviewResponse {
	issues := r.Issues
	if issues == nil {
		issues = []model.Issue{}
	}
	praise := r.Praise
	if praise == nil {
		praise = []string{}
	}
	files := r.Files
	if files == nil {
		files = []model.FileChange{}
	}

	return ReviewResponse{
		ID:              r.ID,
		RepositoryID:    r.RepositoryID,
		CommitHash:      r.CommitHash,
		Branch:          r.Branch,
		CommitMessage:   r.CommitMessage,
		Author:          r.Author,
		AuthorEmail:     r.AuthorEmail,
		CommittedAt:     formatTime(r.CommittedAt),
		TriggerMode:     string(r.TriggerMode),
		TriggeredBy:     r.TriggeredBy,
		RiskScore:       r.RiskScore,
		RiskLevel:       string(r.RiskLevel),
		AIModel:         r.AIModel,
		AIContent:       r.AIContent,
		Summary:         r.Summary,
		Issues:          issues,
		Praise:          praise,
		Files:           files,
		LinesAdded:      r.LinesAdded,
		LinesDeleted:    r.LinesDeleted,
		LinesChanged:    r.LinesChanged,
		Feedback:        string(r.Feedback),
		FeedbackComment: r.FeedbackComment,
		FeedbackBy:      r.FeedbackBy,
		FeedbackAt:      formatTimePtr(r.FeedbackAt),
		Notified:        r.Notified,
		NotifiedAt:      formatTimePtr(r.NotifiedAt),
		CreatedAt:       formatTime(r.CreatedAt),
	}
}
