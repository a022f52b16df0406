package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Client reads records from a running status API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient targets a server listening on addr. An addr without a host
// (":8080") or with a wildcard host is dialed on loopback.
func NewClient(addr string) (*Client, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("parse status api addr %q: %w", addr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return &Client{
		baseURL: "http://" + net.JoinHostPort(host, port),
		client:  &http.Client{Timeout: 5 * time.Second},
	}, nil
}

// ListRecords fetches GET /records.
func (c *Client) ListRecords(ctx context.Context) ([]RecordView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/records", nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list records: status %d", resp.StatusCode)
	}

	var views []RecordView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return views, nil
}
