package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/johnrirwin/topicbuddy/internal/logging"
	"github.com/johnrirwin/topicbuddy/internal/models"
	"github.com/johnrirwin/topicbuddy/internal/ratelimit"
)

var ErrEnrichmentFailed = errors.New("enrichment failed")

// DetailFetcher looks up fresh stats and tags for one item on a platform.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, originalID string) (*models.ItemDetail, error)
}

// Enricher performs one detail lookup per item, sequentially, waiting on
// "detail:{platform}" in the limiter before each call. Items whose platform
// has no registered fetcher pass through untouched.
type Enricher struct {
	fetchers map[string]DetailFetcher
	limiter  *ratelimit.Limiter
	logger   *logging.Logger
}

func NewEnricher(limiter *ratelimit.Limiter, logger *logging.Logger) *Enricher {
	return &Enricher{
		fetchers: make(map[string]DetailFetcher),
		limiter:  limiter,
		logger:   logger,
	}
}

func (e *Enricher) Register(platform string, f DetailFetcher) {
	e.fetchers[platform] = f
}

// Enrich updates items in place and returns them. A failed lookup is logged
// and the item is kept as fetched.
func (e *Enricher) Enrich(ctx context.Context, items []models.CandidateItem) []models.CandidateItem {
	if e == nil {
		return items
	}

	for i := range items {
		if err := e.enrichOne(ctx, &items[i]); err != nil {
			e.logger.Warn("Enrichment failed, keeping item as fetched", logging.WithFields(map[string]interface{}{
				"original_id": items[i].OriginalID,
				"platform":    items[i].Platform,
				"error":       err.Error(),
			}))
		}
	}
	return items
}

func (e *Enricher) enrichOne(ctx context.Context, item *models.CandidateItem) error {
	if item.Platform == "" || item.OriginalID == "" {
		return nil
	}
	fetcher, ok := e.fetchers[item.Platform]
	if !ok {
		return nil
	}

	if e.limiter != nil {
		if err := e.limiter.WaitContext(ctx, "detail:"+item.Platform); err != nil {
			return fmt.Errorf("%w: %v", ErrEnrichmentFailed, err)
		}
	}

	detail, err := fetcher.FetchDetail(ctx, item.OriginalID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEnrichmentFailed, err)
	}
	if detail == nil {
		return fmt.Errorf("%w: empty detail for %s", ErrEnrichmentFailed, item.OriginalID)
	}

	applyDetail(item, detail)
	return nil
}

func applyDetail(item *models.CandidateItem, detail *models.ItemDetail) {
	item.Metrics = item.Metrics.Merge(detail.Metrics)
	item.Labels = normalizeTags(detail.Tags)

	if detail.Title != "" {
		item.Title = detail.Title
	}
	if detail.Summary != "" {
		item.Summary = detail.Summary
	}
}

// normalizeTags trims, NFC-normalizes and de-duplicates tag names. The result
// is never nil.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = norm.NFC.String(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
