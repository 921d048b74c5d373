// Package lexical implements the lexical search adapter (C1): BM25 query
// and facet aggregations against an OpenSearch inverted index.
package lexical

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	opensearch "github.com/opensearch-project/opensearch-go/v3"
	"github.com/opensearch-project/opensearch-go/v3/opensearchapi"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// Metrics abstracts the failure counter so callers can record backend
// degradation without this package importing the metrics middleware.
type Metrics interface {
	IncLexicalFailure()
}

// Adapter queries an OpenSearch cluster for lexical (BM25) matches.
type Adapter struct {
	client  *opensearchapi.Client
	metrics Metrics
}

// New creates an Adapter against the given OpenSearch URL.
func New(url string, metrics Metrics) (*Adapter, error) {
	client, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses: []string{url},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("lexical.New: %w", err)
	}
	return &Adapter{client: client, metrics: metrics}, nil
}

type searchHit struct {
	Score  float64 `json:"_score"`
	Source struct {
		DocID   string   `json:"doc_id"`
		ChunkID string   `json:"chunk_id"`
		Title   string   `json:"title"`
		Text    string   `json:"text"`
		URL     string   `json:"url"`
		Section string   `json:"section"`
		Lang    string   `json:"lang"`
		Tags    []string `json:"tags"`
		Tokens  int      `json:"tokens"`
	} `json:"_source"`
}

type searchBody struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets []struct {
			Key      string `json:"key"`
			DocCount int    `json:"doc_count"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

// Search runs a multi-match query over title (weight 2) and text (weight 1),
// best-fields scoring, with conjunctive term filters over lang/tags. On
// backend error or timeout it degrades to an empty list and records the
// failure rather than raising to the caller.
func (a *Adapter) Search(ctx context.Context, query string, size int, filters model.Filters) ([]model.Chunk, []float64, error) {
	body := buildSearchQuery(query, size, filters)

	resp, err := a.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{IndexName},
		Body:    bytes.NewReader(body),
	})
	if err != nil {
		if isIndexNotFound(err) {
			if cerr := a.ensureIndex(ctx); cerr != nil {
				slog.Warn("lexical.Search: index create failed", "error", cerr)
				a.recordFailure()
				return nil, nil, nil
			}
			resp, err = a.client.Search(ctx, &opensearchapi.SearchReq{
				Indices: []string{IndexName},
				Body:    bytes.NewReader(body),
			})
		}
		if err != nil {
			slog.Warn("lexical.Search: backend error", "error", err)
			a.recordFailure()
			return nil, nil, nil
		}
	}

	var parsed searchBody
	if err := json.NewDecoder(resp.Inspect().Response.Body).Decode(&parsed); err != nil {
		slog.Warn("lexical.Search: decode error", "error", err)
		a.recordFailure()
		return nil, nil, nil
	}

	chunks := make([]model.Chunk, len(parsed.Hits.Hits))
	scores := make([]float64, len(parsed.Hits.Hits))
	for i, h := range parsed.Hits.Hits {
		chunks[i] = model.Chunk{
			DocID:   h.Source.DocID,
			ChunkID: h.Source.ChunkID,
			Title:   h.Source.Title,
			Text:    h.Source.Text,
			URL:     h.Source.URL,
			Section: h.Source.Section,
			Lang:    h.Source.Lang,
			Tags:    h.Source.Tags,
			Tokens:  h.Source.Tokens,
		}
		scores[i] = h.Score
	}
	return chunks, scores, nil
}

// Facets runs terms aggregations on lang.keyword and tags.keyword scoped to
// the same filters used for search, returning field -> value -> count.
func (a *Adapter) Facets(ctx context.Context, filters model.Filters) (model.Facets, error) {
	body := buildFacetsQuery(filters)

	resp, err := a.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{IndexName},
		Body:    bytes.NewReader(body),
	})
	if err != nil {
		slog.Warn("lexical.Facets: backend error", "error", err)
		a.recordFailure()
		return model.Facets{}, nil
	}

	var parsed searchBody
	if err := json.NewDecoder(resp.Inspect().Response.Body).Decode(&parsed); err != nil {
		slog.Warn("lexical.Facets: decode error", "error", err)
		a.recordFailure()
		return model.Facets{}, nil
	}

	out := model.Facets{}
	for _, field := range []string{"lang", "tags"} {
		agg, ok := parsed.Aggregations[field]
		if !ok {
			continue
		}
		values := make(map[string]int, len(agg.Buckets))
		for _, b := range agg.Buckets {
			values[b.Key] = b.DocCount
		}
		out[field] = values
	}
	return out, nil
}

// Ping checks OpenSearch connectivity for health reporting.
func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.client.Info(ctx, nil); err != nil {
		return fmt.Errorf("lexical.Ping: %w", err)
	}
	return nil
}

func (a *Adapter) ensureIndex(ctx context.Context) error {
	_, err := a.client.Indices.Create(ctx, opensearchapi.IndicesCreateReq{
		Index: IndexName,
		Body:  strings.NewReader(indexMapping),
	})
	return err
}

func (a *Adapter) recordFailure() {
	if a.metrics != nil {
		a.metrics.IncLexicalFailure()
	}
}

func isIndexNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "index_not_found_exception")
}

func buildSearchQuery(query string, size int, filters model.Filters) []byte {
	must := map[string]any{
		"multi_match": map[string]any{
			"query":  query,
			"fields": []string{"title^2", "text^1"},
			"type":   "best_fields",
		},
	}

	q := map[string]any{
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"must":   []any{must},
				"filter": termFilters(filters),
			},
		},
	}
	b, _ := json.Marshal(q)
	return b
}

func buildFacetsQuery(filters model.Filters) []byte {
	q := map[string]any{
		"size": 0,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": termFilters(filters),
			},
		},
		"aggs": map[string]any{
			"lang": map[string]any{
				"terms": map[string]any{"field": "lang.keyword", "size": 50},
			},
			"tags": map[string]any{
				"terms": map[string]any{"field": "tags.keyword", "size": 50},
			},
		},
	}
	b, _ := json.Marshal(q)
	return b
}

// termFilters builds the conjunctive bool.filter array for lang and tags.
func termFilters(filters model.Filters) []any {
	var out []any
	for k, v := range filters {
		switch k {
		case "lang":
			out = append(out, map[string]any{"term": map[string]any{"lang": v}})
		case "tags":
			for _, tag := range strings.Split(v, "|") {
				out = append(out, map[string]any{"term": map[string]any{"tags": tag}})
			}
		}
	}
	return out
}
