package httphandler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

const (
	defaultTaskLimit = 50
	maxTaskLimit     = 200
)

// ListTasks returns the most recent review tasks, newest first.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit := defaultTaskLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxTaskLimit)
	}

	tasks, err := h.tasks.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, toTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTask returns one task's progress.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")

	task, err := h.tasks.Get(r.Context(), taskID)
	if errors.Is(err, driven.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get task", "task_id", taskID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(*task))
}

// CancelTask requests cancellation. The pipeline stops before its next commit.
func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")

	err := h.tasks.Cancel(r.Context(), taskID, "Cancelled by user")
	switch {
	case errors.Is(err, driven.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found")
		return
	case errors.Is(err, driven.ErrTaskTerminal):
		writeError(w, http.StatusConflict, "task already finished")
		return
	case err != nil:
		h.logger.Error("failed to cancel task", "task_id", taskID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	task, err := h.tasks.Get(r.Context(), taskID)
	if err != nil {
		h.logger.Error("failed to reload cancelled task", "task_id", taskID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(*task))
}
