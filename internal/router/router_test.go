package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/handler"
	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/query"
)

// stubOrchestrator implements the router's Orchestrator contract.
type stubOrchestrator struct {
	searchResp *query.SearchResponse
	searchErr  error
	askResp    model.AskResponse
	feedbackID int64
	feedbackErr error
}

func (s *stubOrchestrator) Search(ctx context.Context, q string, topK int, filters model.Filters, withHighlights bool) (*query.SearchResponse, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if s.searchResp != nil {
		return s.searchResp, nil
	}
	return &query.SearchResponse{Query: q}, nil
}

func (s *stubOrchestrator) Ask(ctx context.Context, question string, topK int, ground bool) model.AskResponse {
	return s.askResp
}

func (s *stubOrchestrator) Feedback(ctx context.Context, record model.FeedbackRecord) (int64, error) {
	return s.feedbackID, s.feedbackErr
}

func newTestRouter(orch *stubOrchestrator) http.Handler {
	deps := &Dependencies{
		Orchestrator: orch,
		HealthDeps:   handler.HealthDeps{Service: "ragbox-query-core"},
		FrontendURL:  "http://localhost:3000",
		DefaultTopK:  8,
	}
	return New(deps)
}

func TestHealth_IsPublic(t *testing.T) {
	r := newTestRouter(&stubOrchestrator{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
}

func TestSearch_MissingQuery_Returns400(t *testing.T) {
	r := newTestRouter(&stubOrchestrator{})

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSearch_Success(t *testing.T) {
	r := newTestRouter(&stubOrchestrator{searchResp: &query.SearchResponse{Query: "weather"}})

	req := httptest.NewRequest(http.MethodGet, "/search?q=weather", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestAsk_Success(t *testing.T) {
	r := newTestRouter(&stubOrchestrator{askResp: model.Abstain(model.ReasonNoResults)})

	body := `{"question":"what is the refund policy?"}`
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestAsk_RateLimited(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{MaxRequests: 1, Window: time.Minute})
	defer rl.Stop()

	deps := &Dependencies{
		Orchestrator:   &stubOrchestrator{askResp: model.Abstain(model.ReasonNoResults)},
		HealthDeps:     handler.HealthDeps{Service: "ragbox-query-core"},
		FrontendURL:    "http://localhost:3000",
		DefaultTopK:    8,
		AskRateLimiter: rl,
	}
	r := New(deps)

	body := `{"question":"what is the refund policy?"}`
	req1 := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body))
	req1.RemoteAddr = "10.0.0.1:1234"
	rec1 := httptest.NewRecorder()
	r.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want %d", rec1.Code, http.StatusOK)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body))
	req2.RemoteAddr = "10.0.0.1:1234"
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want %d", rec2.Code, http.StatusTooManyRequests)
	}
}

func TestFeedback_MissingQuery_Returns400(t *testing.T) {
	r := newTestRouter(&stubOrchestrator{})

	req := httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(`{"label":"helpful"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUnknownRoute_Returns404(t *testing.T) {
	r := newTestRouter(&stubOrchestrator{})

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["success"] != false {
		t.Error("expected success=false for 404")
	}
}
