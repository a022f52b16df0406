package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"TrendPress/internal/config"
	"TrendPress/internal/domain"
	"TrendPress/internal/ports"
)

const codeTermExists = "term_exists"

// APIError is the decoded error envelope of the WordPress REST API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	TermID     int64
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("wordpress returned %d", e.StatusCode)
	}
	return fmt.Sprintf("wordpress returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Client implements ports.Publisher over the wp/v2 REST API with application passwords.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

var _ ports.Publisher = (*Client)(nil)

// NewClient builds a client for a base URL such as https://host/wp-json/wp/v2/.
func NewClient(cfg config.WordPressConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Client{
		baseURL:    base,
		username:   cfg.Username,
		password:   cfg.ApplicationPassword,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type postPayload struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}

type tagPayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type mediaPayload struct {
	ID        int64  `json:"id"`
	SourceURL string `json:"source_url"`
}

// CreatePost creates a post and returns its id.
func (c *Client) CreatePost(ctx context.Context, draft domain.PostDraft) (domain.RemotePost, error) {
	body := map[string]any{
		"title":   draft.Title,
		"content": draft.Body,
		"status":  string(draft.Status),
	}

	var out postPayload
	if _, err := c.doJSON(ctx, http.MethodPost, "posts", body, &out); err != nil {
		return domain.RemotePost{}, fmt.Errorf("create post: %w", err)
	}
	if out.ID == 0 {
		return domain.RemotePost{}, fmt.Errorf("create post: response carried no id")
	}
	return domain.RemotePost{ID: out.ID, Link: out.Link}, nil
}

// UpdatePost sends only the fields set on update.
func (c *Client) UpdatePost(ctx context.Context, id int64, update domain.PostUpdate) (domain.RemotePost, error) {
	body := map[string]any{}
	if update.Title != nil {
		body["title"] = *update.Title
	}
	if update.Body != nil {
		body["content"] = *update.Body
	}
	if update.Status != nil {
		body["status"] = string(*update.Status)
	}
	if update.Excerpt != nil {
		body["excerpt"] = *update.Excerpt
	}
	if update.FeaturedMedia != nil {
		body["featured_media"] = *update.FeaturedMedia
	}
	if update.Tags != nil {
		body["tags"] = update.Tags
	}
	if update.Categories != nil {
		body["categories"] = update.Categories
	}

	var out postPayload
	if _, err := c.doJSON(ctx, http.MethodPost, "posts/"+strconv.FormatInt(id, 10), body, &out); err != nil {
		return domain.RemotePost{}, fmt.Errorf("update post %d: %w", id, err)
	}
	if out.ID == 0 {
		out.ID = id
	}
	return domain.RemotePost{ID: out.ID, Link: out.Link}, nil
}

// ListTags fetches one page of the tag vocabulary. TotalPages comes from X-WP-TotalPages.
func (c *Client) ListTags(ctx context.Context, page, perPage int) (domain.TagPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	var out []tagPayload
	header, err := c.doJSON(ctx, http.MethodGet, "tags?"+query.Encode(), nil, &out)
	if err != nil {
		return domain.TagPage{}, fmt.Errorf("list tags page %d: %w", page, err)
	}

	totalPages := 1
	if raw := header.Get("X-WP-TotalPages"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return domain.TagPage{}, fmt.Errorf("parse X-WP-TotalPages %q: %w", raw, err)
		}
		totalPages = parsed
	}

	items := make([]domain.RemoteTag, 0, len(out))
	for _, t := range out {
		items = append(items, domain.RemoteTag{ID: t.ID, Name: t.Name})
	}
	return domain.TagPage{Items: items, TotalPages: totalPages}, nil
}

// CreateTag creates a tag. An already existing term resolves to its id.
func (c *Client) CreateTag(ctx context.Context, name string) (domain.RemoteTag, error) {
	var out tagPayload
	_, err := c.doJSON(ctx, http.MethodPost, "tags", map[string]string{"name": name}, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeTermExists && apiErr.TermID != 0 {
			return domain.RemoteTag{ID: apiErr.TermID, Name: name}, nil
		}
		return domain.RemoteTag{}, fmt.Errorf("create tag %q: %w", name, err)
	}
	if out.ID == 0 {
		return domain.RemoteTag{}, fmt.Errorf("create tag %q: response carried no id", name)
	}
	if out.Name == "" {
		out.Name = name
	}
	return domain.RemoteTag{ID: out.ID, Name: out.Name}, nil
}

// UploadMedia posts raw PNG bytes to the media library.
func (c *Client) UploadMedia(ctx context.Context, filename string, data []byte) (domain.RemoteMedia, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "media", bytes.NewReader(data))
	if err != nil {
		return domain.RemoteMedia{}, err
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(filename)))

	var out mediaPayload
	if _, err := c.do(req, &out); err != nil {
		return domain.RemoteMedia{}, fmt.Errorf("upload media: %w", err)
	}
	if out.ID == 0 {
		return domain.RemoteMedia{}, fmt.Errorf("upload media: response carried no id")
	}
	return domain.RemoteMedia{ID: out.ID, SourceURL: out.SourceURL}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, v any) (http.Header, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, v)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, v any) (http.Header, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeAPIError(resp)
	}

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.Header, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		return apiErr
	}
	apiErr.Code = envelope.Code
	apiErr.Message = envelope.Message

	var data struct {
		TermID int64 `json:"term_id"`
	}
	if len(envelope.Data) > 0 && json.Unmarshal(envelope.Data, &data) == nil {
		apiErr.TermID = data.TermID
	}
	return apiErr
}
