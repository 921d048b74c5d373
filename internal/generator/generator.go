// Package generator implements the grounded generator (C5): a coverage
// gate, a synthesis contract, and a post-generation citation-validation
// gate, producing the AskResponse tagged sum type (Answered | Abstained).
package generator

import (
	"context"
	"math"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// DefaultCoverageThreshold is θ_cov, the minimum max-rerank-score required
// to attempt generation instead of abstaining with low_coverage.
const DefaultCoverageThreshold = 0.3

// DefaultEvidenceK is the configured K used to compute evidence_coverage =
// min(len(contexts)/K, 1.0).
const DefaultEvidenceK = 5

// Metrics records abstentions, exactly once per request per reason.
type Metrics interface {
	IncAbstain(reason model.AbstainReason)
}

// Synthesizer produces an answer and its citations from a question and
// retrieved contexts. The answer must be derived from contexts only.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, contexts []model.RetrievedChunk) (answer string, citations []model.Citation, err error)
}

// Service wires a Synthesizer behind the coverage and citation-validation
// gates required of every generator implementation.
type Service struct {
	synth          Synthesizer
	metrics        Metrics
	covThreshold   float64
	evidenceK      int
}

// NewService creates a Service. covThreshold <= 0 defaults to
// DefaultCoverageThreshold; evidenceK <= 0 defaults to DefaultEvidenceK.
func NewService(synth Synthesizer, metrics Metrics, covThreshold float64, evidenceK int) *Service {
	if covThreshold <= 0 {
		covThreshold = DefaultCoverageThreshold
	}
	if evidenceK <= 0 {
		evidenceK = DefaultEvidenceK
	}
	return &Service{synth: synth, metrics: metrics, covThreshold: covThreshold, evidenceK: evidenceK}
}

// Generate runs the full C5 pipeline: coverage gate, synthesis, and
// (when forceCitations) the citation-validation gate. Every return path
// increments exactly one abstain counter, or none when answered.
func (s *Service) Generate(ctx context.Context, question string, contexts []model.RetrievedChunk, forceCitations bool) model.AskResponse {
	if len(contexts) == 0 {
		s.abstain(model.ReasonNoResults)
		return model.Abstain(model.ReasonNoResults)
	}

	if maxRerankScore(contexts) < s.covThreshold {
		s.abstain(model.ReasonLowCoverage)
		return model.Abstain(model.ReasonLowCoverage)
	}

	answer, citations, err := s.synth.Synthesize(ctx, question, contexts)
	if err != nil {
		s.abstain(model.ReasonNoContext)
		return model.Abstain(model.ReasonNoContext)
	}

	if forceCitations && !validCitations(citations, contexts, answer) {
		s.abstain(model.ReasonValidationFail)
		return model.Abstain(model.ReasonValidationFail)
	}

	coverage := math.Min(float64(len(contexts))/float64(s.evidenceK), 1.0)
	return model.Answered(answer, citations, coverage)
}

func (s *Service) abstain(reason model.AbstainReason) {
	if s.metrics != nil {
		s.metrics.IncAbstain(reason)
	}
}

func maxRerankScore(contexts []model.RetrievedChunk) float64 {
	max := 0.0
	for _, c := range contexts {
		if c.RerankScore > max {
			max = c.RerankScore
		}
	}
	return max
}

// validCitations checks the post-generation citation-validation gate:
// every chunk_id must be present in contexts, every span must satisfy
// 0 <= start < end <= len(text), and a non-empty answer must carry at
// least one citation.
func validCitations(citations []model.Citation, contexts []model.RetrievedChunk, answer string) bool {
	if answer != "" && len(citations) == 0 {
		return false
	}

	byID := make(map[string]string, len(contexts))
	for _, c := range contexts {
		byID[c.ChunkID] = c.Text
	}

	for _, c := range citations {
		text, ok := byID[c.ChunkID]
		if !ok {
			return false
		}
		if !(c.Span.Start >= 0 && c.Span.Start < c.Span.End && c.Span.End <= len(text)) {
			return false
		}
	}
	return true
}
