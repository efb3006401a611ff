package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/johnrirwin/topicbuddy/internal/aggregator"
	"github.com/johnrirwin/topicbuddy/internal/events"
	"github.com/johnrirwin/topicbuddy/internal/logging"
	"github.com/johnrirwin/topicbuddy/internal/models"
)

// Feed runs the fetch, enrich and filter pipeline for a set of configs.
// *aggregator.Aggregator satisfies it.
type Feed interface {
	FetchFeedWithProgress(ctx context.Context, configs []models.SourceConfig, onSource aggregator.ProgressFunc) []models.CandidateItem
}

// Strategy publishes one persona's candidates. onSource must be called once
// per enabled config passed in.
type Strategy interface {
	Mode() Mode
	SyncPersona(ctx context.Context, persona models.Persona, configs []models.SourceConfig, onSource aggregator.ProgressFunc) (int, error)
}

// CachePublisher replaces the persona's snapshot with a fresh pool.
type CachePublisher struct {
	feed      Feed
	snapshots *Snapshots
	events    events.Publisher
	logger    *logging.Logger
}

func NewCachePublisher(feed Feed, snapshots *Snapshots, publisher events.Publisher, logger *logging.Logger) *CachePublisher {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &CachePublisher{feed: feed, snapshots: snapshots, events: publisher, logger: logger}
}

func (p *CachePublisher) Mode() Mode { return ModeCache }

func (p *CachePublisher) SyncPersona(ctx context.Context, persona models.Persona, configs []models.SourceConfig, onSource aggregator.ProgressFunc) (int, error) {
	items := p.feed.FetchFeedWithProgress(ctx, configs, onSource)

	names := make(map[int64]string, len(configs))
	for _, cfg := range configs {
		names[cfg.ID] = cfg.Type.DisplayName()
	}
	for i := range items {
		items[i].SourceName = names[items[i].SourceConfigID]
	}
	aggregator.SortByFreshness(items)

	if err := p.snapshots.Publish(ctx, persona.ID, items); err != nil {
		return 0, err
	}

	p.logger.Info("Published persona snapshot", logging.WithFields(map[string]interface{}{
		"persona_id": persona.ID,
		"persona":    persona.Name,
		"items":      len(items),
	}))

	emit(ctx, p.events, p.logger, models.SyncEvent{
		Type:      models.EventSnapshotPublished,
		Mode:      string(ModeCache),
		RunID:     RunIDFromContext(ctx),
		PersonaID: persona.ID,
		ItemCount: len(items),
	})
	return len(items), nil
}

// PersistPublisher reconciles each config's items into the topic store after
// clearing that config's unreviewed rows.
type PersistPublisher struct {
	feed       Feed
	topics     TopicRepository
	reconciler *Reconciler
	events     events.Publisher
	logger     *logging.Logger
}

func NewPersistPublisher(feed Feed, topics TopicRepository, publisher events.Publisher, logger *logging.Logger) *PersistPublisher {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &PersistPublisher{
		feed:       feed,
		topics:     topics,
		reconciler: NewReconciler(topics, logger),
		events:     publisher,
		logger:     logger,
	}
}

func (p *PersistPublisher) Mode() Mode { return ModePersist }

// SyncPersona skips a config whose purge fails and reports it in the
// returned error after the remaining configs ran.
func (p *PersistPublisher) SyncPersona(ctx context.Context, persona models.Persona, configs []models.SourceConfig, onSource aggregator.ProgressFunc) (int, error) {
	var errs []error
	total := 0

	for _, cfg := range configs {
		if err := p.purge(ctx, cfg.ID); err != nil {
			errs = append(errs, err)
			p.logger.Warn("Skipping source after purge failure", logging.WithFields(map[string]interface{}{
				"source_config_id": cfg.ID,
				"error":            err.Error(),
			}))
			if onSource != nil {
				onSource(cfg, 0)
			}
			continue
		}

		items := p.feed.FetchFeedWithProgress(ctx, []models.SourceConfig{cfg}, onSource)
		result := p.reconciler.Reconcile(ctx, items)
		total += len(items)

		p.logger.Info("Persisted source", logging.WithFields(map[string]interface{}{
			"persona_id":       persona.ID,
			"source_config_id": cfg.ID,
			"inserted":         result.Inserted,
			"updated":          result.Updated,
			"failed":           result.Failed,
		}))

		emit(ctx, p.events, p.logger, models.SyncEvent{
			Type:      models.EventSourcePersisted,
			Mode:      string(ModePersist),
			RunID:     RunIDFromContext(ctx),
			PersonaID: persona.ID,
			ItemCount: result.Inserted + result.Updated,
		})
	}

	return total, errors.Join(errs...)
}

func (p *PersistPublisher) purge(ctx context.Context, sourceConfigID int64) error {
	if _, err := p.topics.PurgeNew(ctx, sourceConfigID); err != nil {
		return fmt.Errorf("purge source config %d: %w", sourceConfigID, err)
	}
	if _, err := p.topics.PurgeOrphanNew(ctx); err != nil {
		return fmt.Errorf("purge orphans: %w", err)
	}
	return nil
}

func emit(ctx context.Context, publisher events.Publisher, logger *logging.Logger, event models.SyncEvent) {
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish sync event", logging.WithFields(map[string]interface{}{
			"type":  event.Type,
			"error": err.Error(),
		}))
	}
}
