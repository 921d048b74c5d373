package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// Asker is the orchestrator contract the ask handler depends on.
type Asker interface {
	Ask(ctx context.Context, question string, topK int, ground bool) model.AskResponse
}

type askRequest struct {
	Question string `json:"question"`
	TopK     *int   `json:"top_k"`
	Ground   *bool  `json:"ground"`
}

const (
	defaultAskTopK    = 8
	defaultAskGround  = true
)

// Ask returns a handler for POST /ask.
// body {question:str, top_k:int=8, ground:bool=true} -> AskResponse.
func Ask(svc Asker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Question == "" {
			writeJSONError(w, http.StatusBadRequest, "question is required")
			return
		}

		topK := defaultAskTopK
		if req.TopK != nil {
			topK = *req.TopK
		}
		ground := defaultAskGround
		if req.Ground != nil {
			ground = *req.Ground
		}
		if topK < 1 {
			writeJSONError(w, http.StatusBadRequest, "top_k must be positive")
			return
		}

		resp := svc.Ask(r.Context(), req.Question, topK, ground)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}
}
