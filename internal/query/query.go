// Package query implements the request orchestrator (C6): it composes the
// lexical (C1), dense (C2), fusion (C3), rerank (C4), and generation (C5)
// components into the search/ask/feedback operations the HTTP handlers
// expose.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/eventbus"
	"github.com/connexus-ai/ragbox-backend/internal/fusion"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// LexicalSearcher is the C1 adapter contract the orchestrator depends on.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, size int, filters model.Filters) ([]model.Chunk, []float64, error)
	Facets(ctx context.Context, filters model.Filters) (model.Facets, error)
}

// DenseSearcher is the C2 adapter contract the orchestrator depends on.
type DenseSearcher interface {
	Search(ctx context.Context, queryVector []float32, size int, filters model.Filters) ([]model.Chunk, []float64, error)
}

// QueryEmbedder turns a query string into a vector for dense search.
type QueryEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Reranker is the C4 contract.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []model.RetrievedChunk, topK int) []model.RetrievedChunk
}

// Generator is the C5 contract.
type Generator interface {
	Generate(ctx context.Context, question string, contexts []model.RetrievedChunk, forceCitations bool) model.AskResponse
}

// FeedbackStore persists feedback records.
type FeedbackStore interface {
	Insert(ctx context.Context, record model.FeedbackRecord) (int64, error)
}

// EventBus emits fire-and-forget analytics events.
type EventBus interface {
	PublishSearch(ctx context.Context, ev eventbus.SearchEvent)
	PublishAsk(ctx context.Context, ev eventbus.AskEvent)
	PublishFeedback(ctx context.Context, ev eventbus.FeedbackEvent)
}

// ResultCache caches serialized search responses; Ask does not use it.
type ResultCache interface {
	Get(ctx context.Context, route, query string, filters model.Filters, topK int) ([]byte, bool)
	Set(ctx context.Context, route, query string, filters model.Filters, topK int, payload []byte)
}

// EmbeddingCache caches query embedding vectors.
type EmbeddingCache interface {
	Get(ctx context.Context, queryHash string) ([]float32, bool)
	Set(ctx context.Context, queryHash string, vec []float32)
}

// StageMetrics records per-stage latency and per-source retrieval counts.
type StageMetrics interface {
	ObserveStage(stage string, d time.Duration)
	AddRetrieved(source string, n int)
}

// ErrInvalidTopK is returned by Search when top_k falls outside [1, MaxTopK].
var ErrInvalidTopK = errors.New("top_k out of range")

// Config holds the orchestrator's tunable limits; DefaultTopK, MaxTopK and
// RRFK are sourced from the config.Config fields of the same names.
type Config struct {
	DefaultTopK      int
	MaxTopK          int
	RRFK             int
	AskCandidatePool int // "up to 100 fused candidates" regardless of caller's top_k
}

// Service implements the search/ask/feedback operations.
type Service struct {
	lexical   LexicalSearcher
	dense     DenseSearcher
	embedder  QueryEmbedder
	reranker  Reranker
	generator Generator
	feedback  FeedbackStore
	bus       EventBus
	cache     ResultCache
	embCache  EmbeddingCache
	metrics   StageMetrics
	cfg       Config
}

// New builds a Service wired to every collaborator. Any of cache, embCache,
// bus, or metrics may be nil; the orchestrator degrades gracefully.
func New(lexical LexicalSearcher, dense DenseSearcher, embedder QueryEmbedder, reranker Reranker, generator Generator, feedback FeedbackStore, bus EventBus, cache ResultCache, embCache EmbeddingCache, metrics StageMetrics, cfg Config) *Service {
	if cfg.AskCandidatePool <= 0 {
		cfg.AskCandidatePool = 100
	}
	return &Service{
		lexical:   lexical,
		dense:     dense,
		embedder:  embedder,
		reranker:  reranker,
		generator: generator,
		feedback:  feedback,
		bus:       bus,
		cache:     cache,
		embCache:  embCache,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// SearchResponse is the JSON shape returned by GET /search.
type SearchResponse struct {
	Query   string                  `json:"query"`
	Results []model.RetrievedChunk  `json:"results"`
	Facets  model.Facets            `json:"facets"`
	Total   int                     `json:"total"`
}

// ParseFilters parses the "k1:v1,k2:v2" filter-string grammar.
// Whitespace around tokens is stripped; malformed pairs (no colon, or an
// empty key) are silently skipped rather than rejected, consistent with
// "unknown keys are silently ignored" for the backend-level filter.
func ParseFilters(raw string) model.Filters {
	filters := model.Filters{}
	if strings.TrimSpace(raw) == "" {
		return filters
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.IndexByte(pair, ':')
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(pair[:idx])
		val := strings.TrimSpace(pair[idx+1:])
		if key == "" {
			continue
		}
		filters[key] = val
	}
	return filters
}

// Search implements search(q, top_k, filters, with_highlights). with_highlights
// is accepted for interface parity but the adapters don't produce
// highlight spans, so it has no effect on the response shape.
func (s *Service) Search(ctx context.Context, q string, topK int, filters model.Filters, withHighlights bool) (*SearchResponse, error) {
	if topK < 1 || topK > s.effectiveMaxTopK() {
		return nil, fmt.Errorf("query.Search: top_k must be between 1 and %d, got %d: %w", s.effectiveMaxTopK(), topK, ErrInvalidTopK)
	}

	if s.cache != nil {
		if payload, ok := s.cache.Get(ctx, "search", q, filters, topK); ok {
			resp, err := decodeSearchResponse(payload)
			if err == nil {
				return resp, nil
			}
			slog.Warn("query.Search: cache payload decode failed, recomputing", "error", err)
		}
	}

	size := 2 * topK
	start := time.Now()

	var lexChunks, denseChunks []model.Chunk
	var lexScores, denseScores []float64

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lexChunks, lexScores, err = s.lexical.Search(gCtx, q, size, filters)
		return err
	})
	g.Go(func() error {
		vec, err := s.embedQuery(gCtx, q)
		if err != nil {
			return err
		}
		denseChunks, denseScores, err = s.dense.Search(gCtx, vec, size, filters)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("query.Search: retrieve: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ObserveStage("retrieve", time.Since(start))
		s.metrics.AddRetrieved("bm25", len(lexChunks))
		s.metrics.AddRetrieved("dense", len(denseChunks))
	}

	results := fusion.Fuse(lexChunks, denseChunks, lexScores, denseScores, topK, s.cfg.RRFK)

	facets, err := s.lexical.Facets(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("query.Search: facets: %w", err)
	}

	resp := &SearchResponse{
		Query:   q,
		Results: results,
		Facets:  facets,
		Total:   len(results),
	}

	if s.cache != nil {
		if payload, err := encodeSearchResponse(resp); err == nil {
			s.cache.Set(ctx, "search", q, filters, topK, payload)
		}
	}
	if s.bus != nil {
		s.bus.PublishSearch(ctx, eventbus.SearchEvent{
			Query:       q,
			ResultCount: len(results),
			Timestamp:   start,
		})
	}

	return resp, nil
}

// Ask implements ask(question, top_k, ground). Rate limiting is enforced by
// the HTTP middleware layer on the /ask route, not here.
func (s *Service) Ask(ctx context.Context, question string, topK int, ground bool) model.AskResponse {
	poolSize := s.cfg.AskCandidatePool
	size := 2 * poolSize

	retrieveStart := time.Now()
	var lexChunks, denseChunks []model.Chunk
	var lexScores, denseScores []float64

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lexChunks, lexScores, err = s.lexical.Search(gCtx, question, size, nil)
		return err
	})
	g.Go(func() error {
		vec, err := s.embedQuery(gCtx, question)
		if err != nil {
			return err
		}
		denseChunks, denseScores, err = s.dense.Search(gCtx, vec, size, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Warn("query.Ask: retrieve failed, treating as no context", "error", err)
		return s.finishAsk(ctx, question, model.Abstain(model.ReasonNoResults))
	}

	if s.metrics != nil {
		s.metrics.ObserveStage("retrieve", time.Since(retrieveStart))
		s.metrics.AddRetrieved("bm25", len(lexChunks))
		s.metrics.AddRetrieved("dense", len(denseChunks))
	}

	fused := fusion.Fuse(lexChunks, denseChunks, lexScores, denseScores, poolSize, s.cfg.RRFK)

	rerankStart := time.Now()
	reranked := s.reranker.Rerank(ctx, question, fused, topK)
	if s.metrics != nil {
		s.metrics.ObserveStage("rerank", time.Since(rerankStart))
	}

	genStart := time.Now()
	resp := s.generator.Generate(ctx, question, reranked, ground)
	if s.metrics != nil {
		s.metrics.ObserveStage("generate", time.Since(genStart))
	}

	return s.finishAsk(ctx, question, resp)
}

func (s *Service) finishAsk(ctx context.Context, question string, resp model.AskResponse) model.AskResponse {
	if s.bus != nil {
		s.bus.PublishAsk(ctx, eventbus.AskEvent{
			Query:     question,
			Abstained: resp.Abstained,
			Reason:    string(resp.Reason),
			Timestamp: time.Now(),
		})
	}
	return resp
}

// Feedback implements feedback(query, doc_id?, chunk_id?, label, user_id?).
// The caller is expected to have already validated record.Label against
// model.ValidFeedbackLabels (the handler returns 400 before reaching here).
func (s *Service) Feedback(ctx context.Context, record model.FeedbackRecord) (int64, error) {
	id, err := s.feedback.Insert(ctx, record)
	if err != nil {
		return 0, fmt.Errorf("query.Feedback: %w", err)
	}

	if s.bus != nil {
		s.bus.PublishFeedback(ctx, eventbus.FeedbackEvent{
			Query:     record.Query,
			Label:     string(record.Label),
			Timestamp: record.Timestamp,
		})
	}

	return id, nil
}

// embedQuery checks the embedding cache before calling the embedder.
func (s *Service) embedQuery(ctx context.Context, q string) ([]float32, error) {
	var hash string
	if s.embCache != nil {
		hash = cache.EmbeddingQueryHash(q)
		if vec, ok := s.embCache.Get(ctx, hash); ok {
			return vec, nil
		}
	}

	vecs, err := s.embedder.Embed(ctx, []string{q})
	if err != nil {
		return nil, fmt.Errorf("query.embedQuery: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("query.embedQuery: embedder returned no vectors")
	}

	if s.embCache != nil {
		s.embCache.Set(ctx, hash, vecs[0])
	}
	return vecs[0], nil
}

func (s *Service) effectiveMaxTopK() int {
	if s.cfg.MaxTopK <= 0 {
		return 100
	}
	return s.cfg.MaxTopK
}

// ParseTopK parses the top_k query parameter, falling back to defaultTopK
// when absent or malformed.
func ParseTopK(raw string, defaultTopK int) int {
	if raw == "" {
		return defaultTopK
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultTopK
	}
	return n
}

func encodeSearchResponse(resp *SearchResponse) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeSearchResponse(payload []byte) (*SearchResponse, error) {
	var resp SearchResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
