package ml

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"TrendPress/internal/config"
	"TrendPress/internal/ports"
)

// ImageClient talks to an OpenAI-compatible image generation endpoint.
type ImageClient struct {
	endpoint string
	model    string
	size     string
	apiKey   string
	http     *http.Client
}

var _ ports.ImageGenerator = (*ImageClient)(nil)

// NewImageClient creates a reusable HTTP client.
func NewImageClient(cfg config.ImageGenConfig) *ImageClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ImageClient{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		size:     cfg.Size,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Generate renders one image for prompt and returns the decoded PNG bytes.
func (c *ImageClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	payload := map[string]any{
		"model":           c.model,
		"prompt":          prompt,
		"n":               1,
		"size":            c.size,
		"response_format": "b64_json",
	}

	var resp imageResponse
	if err := c.post(ctx, payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("image response carried no data")
	}

	img, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func (c *ImageClient) post(ctx context.Context, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
