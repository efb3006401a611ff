// Package scheduler triggers sync runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/johnrirwin/topicbuddy/internal/logging"
)

// DefaultSchedule runs at midnight and noon.
const DefaultSchedule = "0 0,12 * * *"

// Trigger starts a run and reports whether it was accepted.
// *syncer.Orchestrator satisfies it.
type Trigger interface {
	Start(ctx context.Context) bool
}

// Scheduler fires the trigger on a standard five-field cron expression. A tick
// that lands while a run is active is skipped.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	entryID  cron.EntryID
	schedule string
	trigger  Trigger
	logger   *logging.Logger
}

func New(schedule string, trigger Trigger, logger *logging.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		cron:     cron.New(),
		schedule: schedule,
		trigger:  trigger,
		logger:   logger,
	}
}

// Start registers the job and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(s.schedule, s.Fire)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = id
	s.cron.Start()
	s.logger.Info("Sync scheduler started", logging.WithField("schedule", s.schedule))
	return nil
}

// Fire runs one scheduled tick.
func (s *Scheduler) Fire() {
	if !s.trigger.Start(context.Background()) {
		s.logger.Info("Scheduled sync skipped: a sync is already running")
		return
	}
	s.logger.Info("Scheduled sync started")
}

// Next returns the next activation time, zero before Start.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Stop halts the cron loop and waits for a running tick to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
