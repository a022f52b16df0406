package parser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"TrendPress/internal/domain"
	"TrendPress/internal/scanner"
)

// RSSScanner reads topics from RSS or Atom feeds, e.g. /r/<sub>/new/.rss.
type RSSScanner struct {
	client *http.Client
	parser *gofeed.Parser
}

var _ scanner.Scanner = (*RSSScanner)(nil)

// NewRSSScanner wires an HTTP client.
func NewRSSScanner(client *http.Client) *RSSScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &RSSScanner{client: client, parser: gofeed.NewParser()}
}

// Name identifies the strategy inside the registry.
func (r *RSSScanner) Name() string {
	return "rss"
}

// Scan returns up to req.Limit feed items per category in feed order.
func (r *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Topic, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("no categories provided for site %s", req.SiteName)
	}

	var results []domain.Topic
	for _, cat := range req.Categories {
		feed, err := r.fetchFeed(ctx, cat.URL)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat.Name, err)
		}

		source := sourceName(req.SiteName, cat.Name)
		count := 0
		for _, item := range feed.Items {
			if req.Limit > 0 && count >= req.Limit {
				break
			}
			title := strings.TrimSpace(item.Title)
			if title == "" {
				continue
			}
			id := item.GUID
			if id == "" {
				id = item.Link
			}
			results = append(results, domain.Topic{
				ID:     id,
				Text:   title,
				URL:    item.Link,
				Source: source,
			})
			count++
		}
	}

	return results, nil
}

func (r *RSSScanner) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	feed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}
