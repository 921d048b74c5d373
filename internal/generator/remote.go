package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// rawAnswer is the JSON shape both remote synthesizers instruct their model
// to emit: an answer plus a citations list keyed by chunk_id and span.
type rawAnswer struct {
	Answer    string `json:"answer"`
	Citations []struct {
		ChunkID string `json:"chunk_id"`
		Span    struct {
			Start int `json:"start"`
			End   int `json:"end"`
		} `json:"span"`
	} `json:"citations"`
}

func parseRawAnswer(raw string) (string, []model.Citation, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		if len(lines) >= 3 {
			cleaned = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	cleaned = strings.TrimSpace(cleaned)

	var parsed rawAnswer
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return "", nil, fmt.Errorf("generator.parseRawAnswer: %w", err)
	}

	citations := make([]model.Citation, len(parsed.Citations))
	for i, c := range parsed.Citations {
		citations[i] = model.Citation{
			ChunkID: c.ChunkID,
			Span:    model.Span{Start: c.Span.Start, End: c.Span.End},
		}
	}
	return parsed.Answer, citations, nil
}

// buildPrompt renders the question and contexts into the instruction
// both remote synthesizers send to their model, matching the synthesis
// contract: answer only from contexts, cite chunk_id + span.
func buildPrompt(question string, contexts []model.RetrievedChunk) string {
	var sb strings.Builder
	sb.WriteString("=== CONTEXT CHUNKS ===\n")
	for _, c := range contexts {
		sb.WriteString(fmt.Sprintf("[chunk_id: %s]\n%s\n\n", c.ChunkID, c.Text))
	}
	sb.WriteString("=== QUESTION ===\n")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer using only the context chunks above. Respond with JSON: " +
		`{"answer": "...", "citations": [{"chunk_id": "...", "span": {"start": 0, "end": 0}}]}`)
	return sb.String()
}

// HFSynthesizer calls a Hugging Face Inference API text-generation
// endpoint, following the embedding/genai REST-adapter idiom: a single
// hand-rolled HTTP POST, since no stable official Go SDK covers this
// endpoint shape.
type HFSynthesizer struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHFSynthesizer creates an HFSynthesizer targeting endpoint with a
// Hugging Face API token.
func NewHFSynthesizer(endpoint, token string, client *http.Client) *HFSynthesizer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HFSynthesizer{endpoint: endpoint, token: token, client: client}
}

type hfRequest struct {
	Inputs string `json:"inputs"`
}

type hfResponseItem struct {
	GeneratedText string `json:"generated_text"`
}

// Synthesize implements Synthesizer.
func (s *HFSynthesizer) Synthesize(ctx context.Context, question string, contexts []model.RetrievedChunk) (string, []model.Citation, error) {
	prompt := buildPrompt(question, contexts)

	body, err := json.Marshal(hfRequest{Inputs: prompt})
	if err != nil {
		return "", nil, fmt.Errorf("generator.HFSynthesizer: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("generator.HFSynthesizer: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("generator.HFSynthesizer: call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", nil, fmt.Errorf("generator.HFSynthesizer: status %d: %s", resp.StatusCode, b)
	}

	var items []hfResponseItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return "", nil, fmt.Errorf("generator.HFSynthesizer: decode: %w", err)
	}
	if len(items) == 0 {
		return "", nil, fmt.Errorf("generator.HFSynthesizer: empty response")
	}
	return parseRawAnswer(items[0].GeneratedText)
}

// APISynthesizer calls a generic chat-completions-shaped HTTP endpoint.
type APISynthesizer struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewAPISynthesizer creates an APISynthesizer targeting endpoint with an
// API key and model name.
func NewAPISynthesizer(endpoint, apiKey, model string, client *http.Client) *APISynthesizer {
	if client == nil {
		client = http.DefaultClient
	}
	return &APISynthesizer{endpoint: endpoint, apiKey: apiKey, model: model, client: client}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Synthesize implements Synthesizer.
func (s *APISynthesizer) Synthesize(ctx context.Context, question string, contexts []model.RetrievedChunk) (string, []model.Citation, error) {
	prompt := buildPrompt(question, contexts)

	reqBody := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", nil, fmt.Errorf("generator.APISynthesizer: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("generator.APISynthesizer: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("generator.APISynthesizer: call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", nil, fmt.Errorf("generator.APISynthesizer: status %d: %s", resp.StatusCode, b)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", nil, fmt.Errorf("generator.APISynthesizer: decode: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", nil, fmt.Errorf("generator.APISynthesizer: empty response")
	}
	return parseRawAnswer(parsed.Choices[0].Message.Content)
}
