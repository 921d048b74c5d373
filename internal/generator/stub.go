package generator

import (
	"context"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// stubMaxContexts is the number of top contexts the stub synthesizer uses.
const stubMaxContexts = 3

// stubPrefixLen bounds each concatenated prefix's length and its citation span.
const stubPrefixLen = 200

// StubSynthesizer is the deterministic synthesizer shipped for dev and
// tests: it concatenates truncated prefixes of the top three contexts and
// emits one citation per prefix spanning [0, min(len(text), 200)).
type StubSynthesizer struct{}

// Synthesize implements Synthesizer without calling any external model.
func (StubSynthesizer) Synthesize(_ context.Context, _ string, contexts []model.RetrievedChunk) (string, []model.Citation, error) {
	n := stubMaxContexts
	if n > len(contexts) {
		n = len(contexts)
	}

	var sb strings.Builder
	citations := make([]model.Citation, 0, n)
	for i := 0; i < n; i++ {
		c := contexts[i]
		end := stubPrefixLen
		if end > len(c.Text) {
			end = len(c.Text)
		}
		prefix := c.Text[:end]
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(prefix)
		citations = append(citations, model.Citation{
			ChunkID: c.ChunkID,
			Span:    model.Span{Start: 0, End: end},
		})
	}
	return sb.String(), citations, nil
}
