package sources

import (
	"context"

	"github.com/johnrirwin/topicbuddy/internal/logging"
	"github.com/johnrirwin/topicbuddy/internal/models"
	"github.com/johnrirwin/topicbuddy/internal/ratelimit"
)

// Registry dispatches a source config to the ordered fetcher chain for its
// type. Fetch never fails: upstream errors are logged and yield no items.
type Registry struct {
	chains map[models.SourceType][]Fetcher
	logger *logging.Logger
}

func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		chains: make(map[models.SourceType][]Fetcher),
		logger: logger,
	}
}

// Register appends fetchers to the chain for t. Earlier fetchers win.
func (r *Registry) Register(t models.SourceType, fetchers ...Fetcher) {
	r.chains[t] = append(r.chains[t], fetchers...)
}

// Chain returns the fetcher names registered for t, in order.
func (r *Registry) Chain(t models.SourceType) []string {
	names := make([]string, 0, len(r.chains[t]))
	for _, f := range r.chains[t] {
		names = append(names, f.Name())
	}
	return names
}

// Fetch tries each fetcher in the chain until one returns items.
func (r *Registry) Fetch(ctx context.Context, cfg models.SourceConfig) []models.CandidateItem {
	chain, ok := r.chains[cfg.Type]
	if !ok || len(chain) == 0 {
		r.logger.Warn("No fetcher registered for source type", logging.WithFields(map[string]interface{}{
			"source_config_id": cfg.ID,
			"type":             string(cfg.Type),
		}))
		return []models.CandidateItem{}
	}

	for _, fetcher := range chain {
		if ctx.Err() != nil {
			break
		}

		items, err := fetcher.Fetch(ctx, cfg)
		if err != nil {
			r.logger.Warn("Source fetch failed", logging.WithFields(map[string]interface{}{
				"source_config_id": cfg.ID,
				"source":           cfg.Name,
				"fetcher":          fetcher.Name(),
				"error":            err.Error(),
			}))
			continue
		}
		if len(items) > 0 {
			r.logger.Debug("Fetched source", logging.WithFields(map[string]interface{}{
				"source_config_id": cfg.ID,
				"fetcher":          fetcher.Name(),
				"count":            len(items),
			}))
			return items
		}
	}

	return []models.CandidateItem{}
}

// Options configures the default registry.
type Options struct {
	Fetcher         FetcherConfig
	BilibiliBaseURL string
	RSSHubBaseURL   string
}

// NewDefaultRegistry wires the built-in adapters:
//
//	bilibili_user: Bilibili API, then RSSHub
//	rss_feed:      RSS/Atom
//	hot_list:      HTML hot list
func NewDefaultRegistry(opts Options, limiter *ratelimit.Limiter, logger *logging.Logger) (*Registry, *BilibiliClient) {
	client := NewBilibiliClient(opts.BilibiliBaseURL, limiter, opts.Fetcher)
	rss := NewRSSFetcher(limiter, opts.Fetcher)

	r := NewRegistry(logger)
	r.Register(models.SourceTypeBilibiliUser,
		NewBilibiliUserFetcher(client),
		NewRSSHubFallback(opts.RSSHubBaseURL, rss),
	)
	r.Register(models.SourceTypeRSSFeed, rss)
	r.Register(models.SourceTypeHotList, NewHotListFetcher(limiter, opts.Fetcher))
	return r, client
}
