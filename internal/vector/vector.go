// Package vector implements the dense search adapter (C2): k-NN cosine
// query against a Qdrant collection, with payload filters.
package vector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// CollectionName is the single Qdrant collection backing the vector adapter.
const CollectionName = "chunks"

// Metrics abstracts the failure counter so callers can record backend
// degradation without this package importing the metrics middleware.
type Metrics interface {
	IncDenseFailure()
}

// Adapter queries a Qdrant collection for dense (cosine) matches.
type Adapter struct {
	client  *qdrant.Client
	metrics Metrics
	dim     int
}

// New dials Qdrant and verifies the collection's configured vector size
// matches dim. A mismatch is a hard configuration fault that must fail the
// process at startup, not per request.
func New(ctx context.Context, host string, port int, dim int, metrics Metrics) (*Adapter, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("vector.New: dial: %w", err)
	}

	info, err := client.GetCollectionInfo(ctx, CollectionName)
	if err != nil {
		return nil, fmt.Errorf("vector.New: collection info: %w", err)
	}
	actual := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	if actual != dim {
		return nil, fmt.Errorf("vector.New: collection %q has dim %d, configured embedder dim is %d", CollectionName, actual, dim)
	}

	return &Adapter{client: client, metrics: metrics, dim: dim}, nil
}

// Search runs a k-NN cosine query, scoped by conjunctive payload filters on
// lang and tags. On backend error or timeout it degrades to an empty list
// and records the failure, mirroring C1's semantics.
func (a *Adapter) Search(ctx context.Context, queryVector []float32, size int, filters model.Filters) ([]model.Chunk, []float64, error) {
	if len(queryVector) != a.dim {
		return nil, nil, fmt.Errorf("vector.Search: query vector has dim %d, want %d", len(queryVector), a.dim)
	}

	limit := uint64(size)
	resp, err := a.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(queryVector...),
		Filter:         buildFilter(filters),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		slog.Warn("vector.Search: backend error", "error", err)
		a.recordFailure()
		return nil, nil, nil
	}

	chunks := make([]model.Chunk, 0, len(resp))
	scores := make([]float64, 0, len(resp))
	for _, p := range resp {
		payload := p.GetPayload()
		chunks = append(chunks, model.Chunk{
			DocID:   stringValue(payload["doc_id"]),
			ChunkID: stringValue(payload["chunk_id"]),
			Title:   stringValue(payload["title"]),
			Text:    stringValue(payload["text"]),
			URL:     stringValue(payload["url"]),
			Section: stringValue(payload["section"]),
			Lang:    stringValue(payload["lang"]),
			Tags:    stringListValue(payload["tags"]),
		})
		scores = append(scores, float64(p.GetScore()))
	}
	return chunks, scores, nil
}

// Ping checks Qdrant connectivity for health reporting.
func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.client.GetCollectionInfo(ctx, CollectionName); err != nil {
		return fmt.Errorf("vector.Ping: %w", err)
	}
	return nil
}

func (a *Adapter) recordFailure() {
	if a.metrics != nil {
		a.metrics.IncDenseFailure()
	}
}

// buildFilter translates the conjunctive "lang"/"tags" filter map into a
// Qdrant Filter with Must conditions, matching C1's term-filter semantics.
func buildFilter(filters model.Filters) *qdrant.Filter {
	if len(filters) == 0 {
		return nil
	}
	var must []*qdrant.Condition
	if lang, ok := filters["lang"]; ok {
		must = append(must, qdrant.NewMatch("lang", lang))
	}
	if tags, ok := filters["tags"]; ok {
		for _, tag := range strings.Split(tags, "|") {
			must = append(must, qdrant.NewMatch("tags", tag))
		}
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func stringValue(v *qdrant.Value) string {
	if v == nil {
		return ""
	}
	return v.GetStringValue()
}

func stringListValue(v *qdrant.Value) []string {
	if v == nil {
		return nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		out = append(out, item.GetStringValue())
	}
	return out
}
