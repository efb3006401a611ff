// Package syncer drives discovery runs across every persona and publishes
// the results through a mode-specific strategy.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/johnrirwin/topicbuddy/internal/events"
	"github.com/johnrirwin/topicbuddy/internal/logging"
	"github.com/johnrirwin/topicbuddy/internal/models"
)

var ErrSyncInProgress = errors.New("sync already in progress")

type runIDKey struct{}

// RunIDFromContext returns the id of the run executing under ctx.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Orchestrator runs at most one sync at a time, whoever triggers it.
type Orchestrator struct {
	personas  PersonaRepository
	strategy  Strategy
	snapshots *Snapshots
	events    events.Publisher
	state     *State
	logger    *logging.Logger
	wg        sync.WaitGroup
}

func NewOrchestrator(personas PersonaRepository, strategy Strategy, snapshots *Snapshots, publisher events.Publisher, logger *logging.Logger) *Orchestrator {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Orchestrator{
		personas:  personas,
		strategy:  strategy,
		snapshots: snapshots,
		events:    publisher,
		state:     NewState(),
		logger:    logger,
	}
}

// Run blocks until a full pass completes. It returns ErrSyncInProgress when
// another run holds the guard.
func (o *Orchestrator) Run(ctx context.Context) error {
	runID, ok := o.state.TryStart(o.strategy.Mode())
	if !ok {
		return ErrSyncInProgress
	}
	return o.run(ctx, runID)
}

// Start claims the guard synchronously and runs in the background. The run
// outlives ctx's cancellation. It returns false when a run is active.
func (o *Orchestrator) Start(ctx context.Context) bool {
	runID, ok := o.state.TryStart(o.strategy.Mode())
	if !ok {
		return false
	}

	runCtx := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.run(runCtx, runID); err != nil {
			o.logger.Error("Sync run failed", logging.WithFields(map[string]interface{}{
				"run_id": runID,
				"error":  err.Error(),
			}))
		}
	}()
	return true
}

// Wait blocks until background runs started with Start have returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) Status() models.SyncStatus {
	return o.state.Snapshot()
}

// PersonaFeed returns the persona's published pool, empty on a miss or an
// unreadable snapshot.
func (o *Orchestrator) PersonaFeed(ctx context.Context, personaID int64) []models.CandidateItem {
	items, err := o.snapshots.Load(ctx, personaID)
	if err != nil {
		o.logger.Warn("Failed to load persona feed", logging.WithFields(map[string]interface{}{
			"persona_id": personaID,
			"error":      err.Error(),
		}))
	}
	return items
}

func (o *Orchestrator) run(ctx context.Context, runID string) (err error) {
	log := o.logger.With(logging.Fields{"run_id": runID, "mode": string(o.strategy.Mode())})
	ctx = context.WithValue(ctx, runIDKey{}, runID)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panicked: %v", r)
			o.state.Finish("Sync failed")
		}
	}()

	personas, err := o.personas.ListPersonas(ctx)
	if err != nil {
		o.state.Finish("Sync failed: could not load personas")
		return fmt.Errorf("load personas: %w", err)
	}

	total := 0
	for _, p := range personas {
		total += len(p.EnabledSourceConfigs())
	}
	o.state.SetTotal(total)
	log.Info("Sync started", logging.WithFields(map[string]interface{}{
		"personas": len(personas),
		"sources":  total,
	}))

	items := 0
	for _, persona := range personas {
		// A persona without enabled sources still syncs so its old pool is replaced.
		configs := persona.EnabledSourceConfigs()

		o.state.SetMessage(fmt.Sprintf("Syncing %s", persona.Name))
		onSource := func(cfg models.SourceConfig, kept int) {
			o.state.Advance(fmt.Sprintf("Syncing %s: %s", persona.Name, configLabel(cfg)))
		}

		n, err := o.strategy.SyncPersona(ctx, persona, configs, onSource)
		items += n
		if err != nil {
			log.Error("Persona sync failed", logging.WithFields(map[string]interface{}{
				"persona_id": persona.ID,
				"persona":    persona.Name,
				"error":      err.Error(),
			}))
		}
	}

	o.state.Finish("Sync completed")
	log.Info("Sync completed", logging.WithField("items", items))

	emit(ctx, o.events, o.logger, models.SyncEvent{
		Type:      models.EventSyncCompleted,
		Mode:      string(o.strategy.Mode()),
		RunID:     runID,
		ItemCount: items,
	})
	return nil
}

func configLabel(cfg models.SourceConfig) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return cfg.Type.DisplayName()
}
