package aggregator

import (
	"context"
	"sort"

	"github.com/johnrirwin/topicbuddy/internal/logging"
	"github.com/johnrirwin/topicbuddy/internal/models"
)

// Source yields raw candidates for a config and never fails.
// *sources.Registry satisfies it.
type Source interface {
	Fetch(ctx context.Context, cfg models.SourceConfig) []models.CandidateItem
}

// ProgressFunc is called once per processed (enabled) config with the number
// of items that survived filtering.
type ProgressFunc func(cfg models.SourceConfig, kept int)

// Aggregator runs fetch, enrichment and filtering for a set of configs. It
// holds no state between calls and never touches the persisted store.
type Aggregator struct {
	source   Source
	enricher *Enricher
	logger   *logging.Logger
}

func New(source Source, enricher *Enricher, logger *logging.Logger) *Aggregator {
	return &Aggregator{
		source:   source,
		enricher: enricher,
		logger:   logger,
	}
}

// FetchFeed returns the merged, de-duplicated candidates of every enabled
// config, freshest first.
func (a *Aggregator) FetchFeed(ctx context.Context, configs []models.SourceConfig) []models.CandidateItem {
	return a.FetchFeedWithProgress(ctx, configs, nil)
}

func (a *Aggregator) FetchFeedWithProgress(ctx context.Context, configs []models.SourceConfig, onSource ProgressFunc) []models.CandidateItem {
	allItems := make([]models.CandidateItem, 0)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		raw := a.source.Fetch(ctx, cfg)
		enriched := a.enricher.Enrich(ctx, raw)
		kept := Normalize(enriched, cfg)

		a.logger.Info("Processed source", logging.WithFields(map[string]interface{}{
			"source_config_id": cfg.ID,
			"source":           cfg.Name,
			"type":             string(cfg.Type),
			"fetched":          len(raw),
			"kept":             len(kept),
		}))

		allItems = append(allItems, kept...)
		if onSource != nil {
			onSource(cfg, len(kept))
		}
	}

	deduped := deduplicate(allItems)
	SortByFreshness(deduped)
	return deduped
}

// deduplicate keeps the first occurrence of each original_id.
func deduplicate(items []models.CandidateItem) []models.CandidateItem {
	seen := make(map[string]bool, len(items))
	result := make([]models.CandidateItem, 0, len(items))

	for _, item := range items {
		if seen[item.OriginalID] {
			continue
		}
		seen[item.OriginalID] = true
		result = append(result, item)
	}

	return result
}

// SortByFreshness orders items by published_at descending. Items without a
// timestamp go last; ties keep their input order.
func SortByFreshness(items []models.CandidateItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].PublishedAt, items[j].PublishedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
