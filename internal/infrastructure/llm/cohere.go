package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"

	"TrendPress/internal/config"
	"TrendPress/internal/ports"
)

// CohereClient implements ports.TextGenerator with the Cohere chat API.
type CohereClient struct {
	client *cohereclient.Client
	model  string
}

var _ ports.TextGenerator = (*CohereClient)(nil)

// NewCohereClient builds a client from configuration. A non-empty Endpoint
// overrides the SDK base URL.
func NewCohereClient(cfg config.TextGenConfig) *CohereClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}

	client := cohereclient.NewClient(
		cohereclient.WithToken(cfg.APIKey),
		cohereclient.WithHTTPClient(httpClient),
	)
	if cfg.Endpoint != "" {
		client = cohereclient.NewClient(
			cohereclient.WithToken(cfg.APIKey),
			cohereclient.WithHTTPClient(httpClient),
			cohereclient.WithBaseURL(cfg.Endpoint),
		)
	}

	return &CohereClient{client: client, model: cfg.Model}
}

// Complete asks the chat endpoint for a single answer.
func (c *CohereClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	req := &cohere.ChatRequest{Message: prompt}
	if c.model != "" {
		model := c.model
		req.Model = &model
	}
	if maxTokens > 0 {
		limit := maxTokens
		req.MaxTokens = &limit
	}

	resp, err := c.client.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("cohere chat: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyCompletion
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
