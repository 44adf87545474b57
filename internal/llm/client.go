package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/temasamo/tea-diagnosis/pkg/config"

	"go.uber.org/zap"
)

// Provider error kinds. RateLimited is distinct so batch callers can leave
// the document for the next scheduled run instead of burning retries.
var (
	ErrRateLimited = errors.New("llm: rate limited")
	ErrUnavailable = errors.New("llm: provider unavailable")
	ErrEmptyResult = errors.New("llm: empty result")
)

// Message is a single chat-completions message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to an OpenAI-compatible API over plain HTTP.
type Client struct {
	baseURL        string
	apiKey         string
	embeddingModel string
	httpClient     *http.Client
	logger         *zap.Logger
}

func NewClient(cfg *config.OpenAIConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		embeddingModel: cfg.EmbeddingModel,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		logger:         logger,
	}
}

// Embed returns the embedding vector for the given text. The dimensionality
// is whatever the configured model produces (1536 for text-embedding-3-small).
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body := map[string]any{
		"model": c.embeddingModel,
		"input": text,
	}

	payload, err := c.post(ctx, "/embeddings", body)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, ErrEmptyResult
	}

	return out.Data[0].Embedding, nil
}

// Complete runs a chat completion and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, model string, messages []Message, temperature float64) (string, error) {
	body := map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": temperature,
	}

	payload, err := c.post(ctx, "/chat/completions", body)
	if err != nil {
		return "", err
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", ErrEmptyResult
	}

	return out.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("Provider rate limit hit", zap.String("path", path))
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %s", ErrUnavailable, resp.Status)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("llm: request failed: %s", resp.Status)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	return payload, nil
}
