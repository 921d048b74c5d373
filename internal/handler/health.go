package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// DBPinger is the interface for checking database connectivity.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// Pinger is a generic connectivity check for a downstream dependency
// (Redis, OpenSearch, Qdrant). Any of the dependencies passed to Health
// may be nil, in which case that check is skipped and omitted from the
// response.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthDeps names the optional downstream dependencies reported on
// GET /health. Service is the human-readable component name.
type HealthDeps struct {
	DB        DBPinger
	Redis     Pinger
	Lexical   Pinger
	Dense     Pinger
	Service   string
	Version   string
}

// Health returns a handler that reports server and downstream-dependency
// health. GET /health -> {status, service, ...dependency statuses}. Any
// single dependency being down sets the overall status to "degraded" and
// the HTTP status to 503; the body still reports every check gathered
// within the timeout.
func Health(deps HealthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := "healthy"
		body := map[string]interface{}{
			"service": deps.Service,
		}
		if deps.Version != "" {
			body["version"] = deps.Version
		}

		checkAndRecord(ctx, body, "database", deps.DB, &status)
		checkAndRecord(ctx, body, "redis", deps.Redis, &status)
		checkAndRecord(ctx, body, "lexical", deps.Lexical, &status)
		checkAndRecord(ctx, body, "dense", deps.Dense, &status)

		body["status"] = status

		httpStatus := http.StatusOK
		if status != "healthy" {
			httpStatus = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus)
		json.NewEncoder(w).Encode(body)
	}
}

func checkAndRecord(ctx context.Context, body map[string]interface{}, name string, p Pinger, status *string) {
	if p == nil {
		return
	}
	if err := p.Ping(ctx); err != nil {
		body[name] = "disconnected"
		*status = "degraded"
		return
	}
	body[name] = "connected"
}
