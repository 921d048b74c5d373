package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// RemotePredictor calls an HTTP cross-encoder scoring endpoint, following
// the same hand-rolled REST-adapter idiom as the embedding client: a single
// JSON POST, decoded response, no SDK because no stable official Go client
// exists for this endpoint shape.
type RemotePredictor struct {
	endpoint string
	client   *http.Client
}

// NewRemotePredictor creates a RemotePredictor targeting endpoint.
func NewRemotePredictor(endpoint string, client *http.Client) *RemotePredictor {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemotePredictor{endpoint: endpoint, client: client}
}

type predictRequest struct {
	Query string `json:"query"`
	Text  string `json:"text"`
}

type predictResponse struct {
	Score float64 `json:"score"`
}

// Predict implements Predictor by POSTing {query, text} and reading back a
// {score} response.
func (p *RemotePredictor) Predict(ctx context.Context, query, text string) (float64, error) {
	body, err := json.Marshal(predictRequest{Query: query, Text: text})
	if err != nil {
		return 0, fmt.Errorf("rerank.Predict: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("rerank.Predict: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rerank.Predict: call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("rerank.Predict: status %d: %s", resp.StatusCode, b)
	}

	var parsed predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("rerank.Predict: decode: %w", err)
	}
	return parsed.Score, nil
}
