package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

type stubFeedbackRecorder struct {
	id        int64
	err       error
	gotRecord model.FeedbackRecord
}

func (s *stubFeedbackRecorder) Feedback(ctx context.Context, record model.FeedbackRecord) (int64, error) {
	s.gotRecord = record
	if s.err != nil {
		return 0, s.err
	}
	return s.id, nil
}

func TestFeedback_MissingQuery(t *testing.T) {
	handler := Feedback(&stubFeedbackRecorder{})
	req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewBufferString(`{"label":"click"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestFeedback_InvalidLabel(t *testing.T) {
	handler := Feedback(&stubFeedbackRecorder{})
	body := `{"query":"q","label":"not_a_real_label"}`
	req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestFeedback_OK(t *testing.T) {
	stub := &stubFeedbackRecorder{id: 7}
	handler := Feedback(stub)

	docID := "doc-1"
	body := `{"query":"what is revenue?","doc_id":"doc-1","label":"thumbs_up"}`
	req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "success" {
		t.Errorf("status field = %v, want success", resp["status"])
	}
	if resp["feedback_id"].(float64) != 7 {
		t.Errorf("feedback_id = %v, want 7", resp["feedback_id"])
	}
	if *stub.gotRecord.DocID != docID {
		t.Errorf("DocID = %q, want %q", *stub.gotRecord.DocID, docID)
	}
	if stub.gotRecord.Label != model.LabelThumbsUp {
		t.Errorf("Label = %q, want %q", stub.gotRecord.Label, model.LabelThumbsUp)
	}
}

func TestFeedback_PersistenceFailureReturns500(t *testing.T) {
	stub := &stubFeedbackRecorder{err: errors.New("db unavailable")}
	handler := Feedback(stub)

	body := `{"query":"q","label":"click"}`
	req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
