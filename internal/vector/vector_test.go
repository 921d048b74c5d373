package vector

import (
	"context"
	"testing"

	"github.com/qdrant/go-client/qdrant"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// New dials lazily and fails fast against an unreachable collection, so the
// startup dimension check also doubles as the connectivity check Ping relies
// on later in the adapter's life.
func TestNew_FailsWhenCollectionUnreachable(t *testing.T) {
	_, err := New(context.Background(), "127.0.0.1", 1, 768, nil)
	if err == nil {
		t.Fatal("expected New to fail against an unreachable collection")
	}
}

func TestPing_ReturnsErrorWhenUnreachable(t *testing.T) {
	a := &Adapter{dim: 768}
	client, err := qdrant.NewClient(&qdrant.Config{Host: "127.0.0.1", Port: 1})
	if err != nil {
		t.Fatalf("qdrant.NewClient: %v", err)
	}
	a.client = client

	if err := a.Ping(context.Background()); err == nil {
		t.Error("expected Ping to return an error against an unreachable backend")
	}
}

func TestBuildFilter_Empty(t *testing.T) {
	if got := buildFilter(nil); got != nil {
		t.Errorf("buildFilter(nil) = %v, want nil", got)
	}
}

func TestBuildFilter_Conjunctive(t *testing.T) {
	got := buildFilter(model.Filters{"lang": "en", "tags": "a"})
	if got == nil {
		t.Fatal("buildFilter returned nil")
	}
	if len(got.Must) != 2 {
		t.Fatalf("len(Must) = %d, want 2", len(got.Must))
	}
}

func TestBuildFilter_UnknownKeyIgnored(t *testing.T) {
	got := buildFilter(model.Filters{"bogus": "x"})
	if got != nil {
		t.Errorf("buildFilter with only unknown keys = %v, want nil", got)
	}
}

func TestStringValue_Nil(t *testing.T) {
	if got := stringValue(nil); got != "" {
		t.Errorf("stringValue(nil) = %q, want empty", got)
	}
}

func TestStringValue_Populated(t *testing.T) {
	v := &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: "en"}}
	if got := stringValue(v); got != "en" {
		t.Errorf("stringValue = %q, want %q", got, "en")
	}
}

func TestStringListValue_Nil(t *testing.T) {
	if got := stringListValue(nil); got != nil {
		t.Errorf("stringListValue(nil) = %v, want nil", got)
	}
}

func TestStringListValue_Populated(t *testing.T) {
	v := &qdrant.Value{
		Kind: &qdrant.Value_ListValue{
			ListValue: &qdrant.ListValue{
				Values: []*qdrant.Value{
					{Kind: &qdrant.Value_StringValue{StringValue: "a"}},
					{Kind: &qdrant.Value_StringValue{StringValue: "b"}},
				},
			},
		},
	}
	got := stringListValue(v)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("stringListValue = %v, want [a b]", got)
	}
}
