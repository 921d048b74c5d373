// Package router wires the HTTP surface for the query-time core: GET
// /search, POST /ask, POST /feedback, GET /health, GET /metrics.
package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/connexus-ai/ragbox-backend/internal/handler"
	"github.com/connexus-ai/ragbox-backend/internal/middleware"
)

// Dependencies holds everything the router needs to build routes. Orchestrator
// is the single C6 service backing /search, /ask, and /feedback.
type Dependencies struct {
	Orchestrator interface {
		handler.Searcher
		handler.Asker
		handler.FeedbackRecorder
	}
	HealthDeps handler.HealthDeps

	FrontendURL string
	DefaultTopK int

	Metrics    *middleware.Metrics
	MetricsReg *prometheus.Registry

	// AskRateLimiter bounds POST /ask per client (spec: 10 req/60s).
	AskRateLimiter *middleware.RateLimiter
}

// New builds the Chi router with all routes and global middleware.
func New(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(deps.FrontendURL))
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}

	r.Get("/health", handler.Health(deps.HealthDeps))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", middleware.MetricsHandler(deps.MetricsReg))
	}

	timeout10s := middleware.Timeout(10 * time.Second)
	timeout30s := middleware.Timeout(30 * time.Second)

	r.With(timeout10s).Get("/search", handler.Search(deps.Orchestrator, deps.DefaultTopK))

	askMiddleware := []func(http.Handler) http.Handler{timeout30s}
	if deps.AskRateLimiter != nil {
		askMiddleware = append(askMiddleware, middleware.RateLimit(deps.AskRateLimiter))
	}
	r.With(askMiddleware...).Post("/ask", handler.Ask(deps.Orchestrator))

	r.With(timeout10s).Post("/feedback", handler.Feedback(deps.Orchestrator))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "route not found",
		})
	})

	return r
}
