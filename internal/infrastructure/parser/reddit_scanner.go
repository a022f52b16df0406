package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TrendPress/internal/domain"
	"TrendPress/internal/scanner"
)

const (
	redditBaseURL = "https://old.reddit.com"
	userAgent     = "TrendPress/1.0"
)

// RedditScanner reads the newest submissions from subreddit listing pages.
type RedditScanner struct {
	client *http.Client
}

var _ scanner.Scanner = (*RedditScanner)(nil)

// NewRedditScanner wires an HTTP client.
func NewRedditScanner(client *http.Client) *RedditScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &RedditScanner{client: client}
}

// Name identifies the strategy inside the registry.
func (r *RedditScanner) Name() string {
	return "reddit-html"
}

// Scan returns up to req.Limit submissions per category, newest first.
func (r *RedditScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Topic, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("no categories provided for site %s", req.SiteName)
	}

	var results []domain.Topic
	for _, cat := range req.Categories {
		pageURL, err := buildListingURL(cat.URL, req.Limit)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat.Name, err)
		}

		doc, err := r.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat.Name, err)
		}

		results = append(results, extractSubmissions(doc, req.Limit, sourceName(req.SiteName, cat.Name))...)
	}

	return results, nil
}

func (r *RedditScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func extractSubmissions(doc *goquery.Document, limit int, source string) []domain.Topic {
	var topics []domain.Topic

	doc.Find("#siteTable div.thing").EachWithBreak(func(_ int, thing *goquery.Selection) bool {
		if promoted, _ := thing.Attr("data-promoted"); promoted == "true" {
			return true
		}
		if thing.HasClass("stickied") {
			return true
		}

		topic, ok := parseSubmission(thing, source)
		if !ok {
			return true
		}
		topics = append(topics, topic)
		return limit <= 0 || len(topics) < limit
	})

	return topics
}

func parseSubmission(thing *goquery.Selection, source string) (domain.Topic, bool) {
	title := strings.TrimSpace(thing.Find("a.title").First().Text())
	if title == "" {
		return domain.Topic{}, false
	}

	id, _ := thing.Attr("data-fullname")
	link, _ := thing.Attr("data-permalink")
	if link == "" {
		link, _ = thing.Find("a.title").First().Attr("href")
	}
	if strings.HasPrefix(link, "/") {
		link = redditBaseURL + link
	}
	if id == "" {
		id = link
	}

	return domain.Topic{
		ID:     id,
		Text:   title,
		URL:    link,
		Source: source,
	}, true
}

func buildListingURL(base string, limit int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid category url %s: %w", base, err)
	}

	if limit > 0 {
		query := parsed.Query()
		query.Set("limit", strconv.Itoa(limit))
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

func sourceName(site, category string) string {
	if category == "" {
		return site
	}
	return fmt.Sprintf("%s/%s", site, category)
}
