package parser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"TrendPress/internal/config"
	"TrendPress/internal/domain"
	"TrendPress/internal/ports"
	"TrendPress/internal/scanner"
)

// StrategySource implements TopicSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	logger   *zap.Logger
}

var _ ports.TopicSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, log *zap.Logger) *StrategySource {
	if log == nil {
		log = zap.NewNop()
	}
	return &StrategySource{
		registry: reg,
		sites:    sites,
		logger:   log,
	}
}

// ListRecentTopics asks every configured site for its limit newest topics.
// Topics repeated across sites are reported once.
func (s *StrategySource) ListRecentTopics(ctx context.Context, limit int) ([]domain.Topic, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.logger.Debug("list recent topics", zap.Int("sites", len(s.sites)), zap.Int("limit", limit))

	var aggregated []domain.Topic
	seen := map[string]struct{}{}
	for _, site := range s.sites {
		strategy, err := s.registry.Resolve(site.Scanner)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Name, err)
		}

		req := scanner.Request{
			Limit:      limit,
			SiteName:   site.Name,
			Options:    site.Options,
			Categories: toScannerCategories(site.Categories),
		}

		results, err := strategy.Scan(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("scan site %s: %w", site.Name, err)
		}

		for _, topic := range results {
			if _, ok := seen[topic.Text]; ok {
				continue
			}
			seen[topic.Text] = struct{}{}
			if topic.Source == "" {
				topic.Source = site.Name
			}
			aggregated = append(aggregated, topic)
		}
		s.logger.Debug("site produced topics", zap.String("site", site.Name), zap.Int("count", len(results)))
	}

	return aggregated, nil
}

func toScannerCategories(cfg []config.CategoryConfig) []scanner.Category {
	categories := make([]scanner.Category, 0, len(cfg))
	for _, cat := range cfg {
		categories = append(categories, scanner.Category{
			Name: cat.Name,
			URL:  cat.URL,
		})
	}
	return categories
}
