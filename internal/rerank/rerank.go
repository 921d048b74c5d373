// Package rerank implements the cross-encoder reranker (C4): pairwise
// relevance scoring over a candidate list with a bounded worker pool.
package rerank

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// DegradationMetrics records when the predictor is unavailable and scoring
// falls back to passthrough order.
type DegradationMetrics interface {
	IncRerankDegradation()
}

// Predictor scores a single (query, candidate text) pair. Implementations
// must be safe for concurrent use.
type Predictor interface {
	Predict(ctx context.Context, query, text string) (float64, error)
}

// Service reranks fusion candidates with a bounded worker pool.
type Service struct {
	predictor Predictor
	metrics   DegradationMetrics
	workers   int
}

// NewService creates a Service. workers bounds concurrent Predict calls; a
// value <= 0 defaults to 4.
func NewService(predictor Predictor, metrics DegradationMetrics, workers int) *Service {
	if workers <= 0 {
		workers = 4
	}
	return &Service{predictor: predictor, metrics: metrics, workers: workers}
}

// Rerank scores every candidate against query and returns the top_k in
// descending score order (stable on ties). If the predictor fails for
// any candidate, the whole call degrades to passthrough order with
// rerank_score 0.0 and the degradation counter is incremented exactly once.
func (s *Service) Rerank(ctx context.Context, query string, candidates []model.RetrievedChunk, topK int) []model.RetrievedChunk {
	if len(candidates) == 0 {
		return nil
	}

	scores := make([]float64, len(candidates))
	g, gCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.workers)

	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gCtx.Done():
				return gCtx.Err()
			}
			defer func() { <-sem }()

			score, err := s.predictor.Predict(gCtx, query, c.Text)
			if err != nil {
				return err
			}
			scores[i] = score
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Warn("rerank.Rerank: predictor failed, degrading to passthrough", "error", err)
		if s.metrics != nil {
			s.metrics.IncRerankDegradation()
		}
		return passthrough(candidates, topK)
	}

	out := make([]model.RetrievedChunk, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].RerankScore = scores[i]
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})

	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out
}

// passthrough returns the first topK candidates in input order with
// rerank_score 0.0, per the "model unavailable" degradation rule.
func passthrough(candidates []model.RetrievedChunk, topK int) []model.RetrievedChunk {
	n := len(candidates)
	if topK > 0 && topK < n {
		n = topK
	}
	out := make([]model.RetrievedChunk, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[i]
		out[i].RerankScore = 0.0
	}
	return out
}

// HeuristicPredictor is a deterministic, dependency-free scorer used as the
// default/dev reranker: the token-Jaccard overlap of query and text, so it
// never needs a loaded model. The candidate's fusion and BM25 scores are
// not used.
type HeuristicPredictor struct{}

// Predict implements Predictor with token-overlap scoring and no external
// call — always succeeds.
func (HeuristicPredictor) Predict(_ context.Context, query, text string) (float64, error) {
	return jaccard(tokenize(query), tokenize(text)), nil
}

func tokenize(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
