package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/query"
)

// Searcher is the orchestrator contract the search handler depends on.
type Searcher interface {
	Search(ctx context.Context, q string, topK int, filters model.Filters, withHighlights bool) (*query.SearchResponse, error)
}

// Search returns a handler for GET /search.
// ?q=<str>&top_k=<int,1..100>&filters=<k:v,..>&with_highlights=<bool>
func Search(svc Searcher, defaultTopK int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			writeJSONError(w, http.StatusBadRequest, "q is required")
			return
		}

		topK := query.ParseTopK(r.URL.Query().Get("top_k"), defaultTopK)
		filters := query.ParseFilters(r.URL.Query().Get("filters"))
		withHighlights, _ := strconv.ParseBool(r.URL.Query().Get("with_highlights"))

		resp, err := svc.Search(r.Context(), q, topK, filters, withHighlights)
		if err != nil {
			if errors.Is(err, query.ErrInvalidTopK) {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeJSONError(w, http.StatusInternalServerError, "search failed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
