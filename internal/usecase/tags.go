package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"TrendPress/internal/ports"
)

// TagReconciler maps tag names onto the remote vocabulary, creating the
// names it lacks. Matching is exact and case-sensitive.
type TagReconciler struct {
	publisher ports.Publisher
	perPage   int
	logger    *zap.Logger
}

// NewTagReconciler wires the publisher; perPage defaults to 10.
func NewTagReconciler(publisher ports.Publisher, perPage int, log *zap.Logger) *TagReconciler {
	if perPage <= 0 {
		perPage = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TagReconciler{publisher: publisher, perPage: perPage, logger: log}
}

// ParseTags splits a comma separated list, trimming names and dropping
// empty entries and repeats.
func ParseTags(raw string) []string {
	var names []string
	seen := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Resolve returns one remote id per name, in input order.
func (t *TagReconciler) Resolve(ctx context.Context, names []string) ([]int64, error) {
	vocabulary, err := t.vocabulary(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(names))
	for _, name := range names {
		if id, ok := vocabulary[name]; ok {
			ids = append(ids, id)
			continue
		}

		tag, err := t.publisher.CreateTag(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("create tag %q: %w", name, err)
		}
		t.logger.Debug("tag created", zap.String("tag", name), zap.Int64("tag_id", tag.ID))
		vocabulary[name] = tag.ID
		ids = append(ids, tag.ID)
	}
	return ids, nil
}

func (t *TagReconciler) vocabulary(ctx context.Context) (map[string]int64, error) {
	vocabulary := map[string]int64{}
	for page, total := 1, 1; page <= total; page++ {
		result, err := t.publisher.ListTags(ctx, page, t.perPage)
		if err != nil {
			return nil, fmt.Errorf("list tags: %w", err)
		}
		total = result.TotalPages
		if len(result.Items) == 0 {
			break
		}
		for _, tag := range result.Items {
			if _, ok := vocabulary[tag.Name]; !ok {
				vocabulary[tag.Name] = tag.ID
			}
		}
	}
	return vocabulary, nil
}
