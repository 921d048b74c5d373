package query

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/eventbus"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

func TestParseFilters_Conjunctive(t *testing.T) {
	got := ParseFilters("lang:en,tags:finance")
	want := model.Filters{"lang": "en", "tags": "finance"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseFilters = %v, want %v", got, want)
	}
}

func TestParseFilters_Empty(t *testing.T) {
	got := ParseFilters("")
	if len(got) != 0 {
		t.Errorf("ParseFilters(\"\") = %v, want empty", got)
	}
}

func TestParseFilters_WhitespaceStripped(t *testing.T) {
	got := ParseFilters(" lang : en , tags : finance ")
	want := model.Filters{"lang": "en", "tags": "finance"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseFilters = %v, want %v", got, want)
	}
}

func TestParseFilters_MalformedPairsSkipped(t *testing.T) {
	got := ParseFilters("lang:en,nocolon,:novalue,emptyval:")
	want := model.Filters{"lang": "en", "emptyval": ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseFilters = %v, want %v", got, want)
	}
}

type fakeLexical struct {
	chunks  []model.Chunk
	scores  []float64
	facets  model.Facets
	err     error
	calls   int
}

func (f *fakeLexical) Search(ctx context.Context, query string, size int, filters model.Filters) ([]model.Chunk, []float64, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.chunks, f.scores, nil
}

func (f *fakeLexical) Facets(ctx context.Context, filters model.Filters) (model.Facets, error) {
	return f.facets, nil
}

type fakeDense struct {
	chunks []model.Chunk
	scores []float64
	err    error
}

func (f *fakeDense) Search(ctx context.Context, vec []float32, size int, filters model.Filters) ([]model.Chunk, []float64, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.chunks, f.scores, nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return [][]float32{f.vec}, nil
}

type fakeReranker struct {
	out []model.RetrievedChunk
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, candidates []model.RetrievedChunk, topK int) []model.RetrievedChunk {
	if f.out != nil {
		return f.out
	}
	return candidates
}

type fakeGenerator struct {
	resp model.AskResponse
}

func (f *fakeGenerator) Generate(ctx context.Context, question string, contexts []model.RetrievedChunk, forceCitations bool) model.AskResponse {
	return f.resp
}

type fakeFeedbackStore struct {
	id  int64
	err error
}

func (f *fakeFeedbackStore) Insert(ctx context.Context, record model.FeedbackRecord) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.id, nil
}

type fakeBus struct {
	searchEvents   []eventbus.SearchEvent
	askEvents      []eventbus.AskEvent
	feedbackEvents []eventbus.FeedbackEvent
}

func (f *fakeBus) PublishSearch(ctx context.Context, ev eventbus.SearchEvent)     { f.searchEvents = append(f.searchEvents, ev) }
func (f *fakeBus) PublishAsk(ctx context.Context, ev eventbus.AskEvent)           { f.askEvents = append(f.askEvents, ev) }
func (f *fakeBus) PublishFeedback(ctx context.Context, ev eventbus.FeedbackEvent) { f.feedbackEvents = append(f.feedbackEvents, ev) }

func testChunk(id string) model.Chunk {
	return model.Chunk{DocID: "doc1", ChunkID: id, Title: "t", Text: "text " + id}
}

func newTestService(lex *fakeLexical, dense *fakeDense) *Service {
	return New(
		lex, dense, &fakeEmbedder{vec: []float32{0.1, 0.2}},
		&fakeReranker{}, &fakeGenerator{}, &fakeFeedbackStore{id: 1}, nil, nil, nil, nil,
		Config{DefaultTopK: 8, MaxTopK: 100, RRFK: 60},
	)
}

func TestSearch_ValidatesTopKBounds(t *testing.T) {
	svc := newTestService(&fakeLexical{}, &fakeDense{})

	if _, err := svc.Search(context.Background(), "q", 0, nil, false); err == nil {
		t.Error("expected error for top_k=0")
	}
	if _, err := svc.Search(context.Background(), "q", 101, nil, false); err == nil {
		t.Error("expected error for top_k=101")
	}
}

func TestSearch_FusesLexicalAndDense(t *testing.T) {
	lex := &fakeLexical{
		chunks: []model.Chunk{testChunk("a"), testChunk("b")},
		scores: []float64{5.0, 3.0},
		facets: model.Facets{"lang": {"en": 2}},
	}
	dense := &fakeDense{
		chunks: []model.Chunk{testChunk("b"), testChunk("c")},
		scores: []float64{0.9, 0.8},
	}
	svc := newTestService(lex, dense)

	resp, err := svc.Search(context.Background(), "q", 10, nil, false)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Total != 3 {
		t.Errorf("Total = %d, want 3", resp.Total)
	}
	if resp.Facets["lang"]["en"] != 2 {
		t.Errorf("Facets not propagated: %v", resp.Facets)
	}
	// "b" appears in both lists so it should rank first (higher fusion score).
	if resp.Results[0].ChunkID != "b" {
		t.Errorf("Results[0].ChunkID = %q, want %q", resp.Results[0].ChunkID, "b")
	}
}

func TestSearch_PropagatesRetrievalError(t *testing.T) {
	lex := &fakeLexical{err: errors.New("boom")}
	svc := newTestService(lex, &fakeDense{})

	_, err := svc.Search(context.Background(), "q", 10, nil, false)
	if err == nil {
		t.Error("expected error when lexical search fails")
	}
}

func TestAsk_ReturnsAbstainOnRetrievalFailure(t *testing.T) {
	lex := &fakeLexical{err: errors.New("unreachable")}
	svc := newTestService(lex, &fakeDense{})

	resp := svc.Ask(context.Background(), "what is x?", 8, true)
	if !resp.Abstained || resp.Reason != model.ReasonNoResults {
		t.Errorf("Ask = %+v, want abstain/no_results", resp)
	}
}

func TestAsk_CallsRerankThenGenerate(t *testing.T) {
	lex := &fakeLexical{chunks: []model.Chunk{testChunk("a")}, scores: []float64{1}}
	dense := &fakeDense{chunks: []model.Chunk{testChunk("b")}, scores: []float64{1}}
	svc := New(
		lex, dense, &fakeEmbedder{vec: []float32{0.1}},
		&fakeReranker{}, &fakeGenerator{resp: model.Answered("the answer", nil, 1.0)},
		&fakeFeedbackStore{}, nil, nil, nil, nil,
		Config{DefaultTopK: 8, MaxTopK: 100, RRFK: 60},
	)

	resp := svc.Ask(context.Background(), "q", 8, true)
	if resp.Abstained {
		t.Fatalf("Ask = %+v, want answered", resp)
	}
	if resp.Answer != "the answer" {
		t.Errorf("Answer = %q, want %q", resp.Answer, "the answer")
	}
}

func TestAsk_EmitsEventWithAbstainReason(t *testing.T) {
	lex := &fakeLexical{}
	dense := &fakeDense{}
	bus := &fakeBus{}
	svc := New(
		lex, dense, &fakeEmbedder{vec: []float32{0.1}},
		&fakeReranker{}, &fakeGenerator{resp: model.Abstain(model.ReasonNoResults)},
		&fakeFeedbackStore{}, bus, nil, nil, nil,
		Config{DefaultTopK: 8, MaxTopK: 100, RRFK: 60},
	)

	svc.Ask(context.Background(), "q", 8, true)
	if len(bus.askEvents) != 1 {
		t.Fatalf("askEvents = %d, want 1", len(bus.askEvents))
	}
	if bus.askEvents[0].Reason != string(model.ReasonNoResults) {
		t.Errorf("event reason = %q, want %q", bus.askEvents[0].Reason, model.ReasonNoResults)
	}
}

func TestFeedback_InsertsAndPublishes(t *testing.T) {
	store := &fakeFeedbackStore{id: 42}
	bus := &fakeBus{}
	svc := New(&fakeLexical{}, &fakeDense{}, &fakeEmbedder{}, &fakeReranker{}, &fakeGenerator{}, store, bus, nil, nil, nil, Config{})

	id, err := svc.Feedback(context.Background(), model.FeedbackRecord{
		Query: "q", Label: model.LabelThumbsUp, Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
	if len(bus.feedbackEvents) != 1 {
		t.Fatalf("feedbackEvents = %d, want 1", len(bus.feedbackEvents))
	}
}

func TestFeedback_PropagatesInsertError(t *testing.T) {
	store := &fakeFeedbackStore{err: errors.New("db down")}
	svc := New(&fakeLexical{}, &fakeDense{}, &fakeEmbedder{}, &fakeReranker{}, &fakeGenerator{}, store, nil, nil, nil, nil, Config{})

	_, err := svc.Feedback(context.Background(), model.FeedbackRecord{Query: "q", Label: model.LabelClick, Timestamp: time.Now()})
	if err == nil {
		t.Error("expected error when insert fails")
	}
}
