package generator

import (
	"context"
	"fmt"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// ContentGenerator is the subset of gcpclient.GenAIAdapter this package
// depends on, kept narrow so tests can fake it without pulling in the
// Vertex AI SDK.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// VertexSynthesizer adapts a Vertex AI GenAI client to the Synthesizer
// contract, reusing the same prompt/parse scaffolding as the HF and
// generic API synthesizers.
type VertexSynthesizer struct {
	client ContentGenerator
}

// NewVertexSynthesizer wraps client as a Synthesizer.
func NewVertexSynthesizer(client ContentGenerator) *VertexSynthesizer {
	return &VertexSynthesizer{client: client}
}

const vertexSystemPrompt = "You answer strictly from the provided context chunks and cite every claim."

// Synthesize implements Synthesizer.
func (s *VertexSynthesizer) Synthesize(ctx context.Context, question string, contexts []model.RetrievedChunk) (string, []model.Citation, error) {
	raw, err := s.client.GenerateContent(ctx, vertexSystemPrompt, buildPrompt(question, contexts))
	if err != nil {
		return "", nil, fmt.Errorf("generator.VertexSynthesizer: %w", err)
	}
	return parseRawAnswer(raw)
}
