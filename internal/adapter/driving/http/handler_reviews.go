package httphandler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

// GetReview returns a single code review record.
func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request) {
	id, ok := reviewID(w, r)
	if !ok {
		return
	}

	rec, err := h.reviews.Get(r.Context(), id)
	if errors.Is(err, driven.ErrReviewNotFound) {
		writeError(w, http.StatusNotFound, "review not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get review", "review_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toReviewResponse(*rec))
}

// SubmitFeedback records a human verdict on a review.
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := reviewID(w, r)
	if !ok {
		return
	}

	var req FeedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	status := model.FeedbackStatus(strings.ToUpper(req.Feedback))
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "feedback must be one of PENDING, CORRECT, FALSE_POSITIVE, MISSED")
		return
	}

	err := h.reviews.SetFeedback(r.Context(), id, model.Feedback{
		Status:  status,
		Comment: req.Comment,
		By:      req.By,
	})
	if errors.Is(err, driven.ErrReviewNotFound) {
		writeError(w, http.StatusNotFound, "review not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to record feedback", "review_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func reviewID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid review id")
		return 0, false
	}
	return id, true
}
