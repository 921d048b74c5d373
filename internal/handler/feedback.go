package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// FeedbackRecorder is the orchestrator contract the feedback handler
// depends on.
type FeedbackRecorder interface {
	Feedback(ctx context.Context, record model.FeedbackRecord) (int64, error)
}

type feedbackRequest struct {
	Query   string  `json:"query"`
	DocID   *string `json:"doc_id"`
	ChunkID *string `json:"chunk_id"`
	Label   string  `json:"label"`
	UserID  *string `json:"user_id"`
}

// Feedback returns a handler for POST /feedback.
// body {query, doc_id?, chunk_id?, label, user_id?} -> {status, feedback_id, message}.
// 400 on invalid label; 500 on persistence failure.
func Feedback(svc FeedbackRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req feedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Query == "" {
			writeJSONError(w, http.StatusBadRequest, "query is required")
			return
		}

		label := model.FeedbackLabel(req.Label)
		if !model.ValidFeedbackLabels[label] {
			writeJSONError(w, http.StatusBadRequest, "invalid label")
			return
		}

		record := model.FeedbackRecord{
			Query:     req.Query,
			DocID:     req.DocID,
			ChunkID:   req.ChunkID,
			Label:     label,
			UserID:    req.UserID,
			Timestamp: time.Now().UTC(),
		}

		id, err := svc.Feedback(r.Context(), record)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to persist feedback")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "success",
			"feedback_id": id,
			"message":     "feedback recorded",
		})
	}
}
