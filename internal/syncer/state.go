package syncer

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnrirwin/topicbuddy/internal/models"
)

// Mode selects how a sync run publishes its results.
type Mode string

const (
	ModeCache   Mode = "cache"
	ModePersist Mode = "persist"
)

// ParseMode maps a config string to a Mode, defaulting to cache.
func ParseMode(s string) Mode {
	if Mode(s) == ModePersist {
		return ModePersist
	}
	return ModeCache
}

// State is the run guard and progress record shared by every trigger.
type State struct {
	mu         sync.Mutex
	running    bool
	current    int
	total      int
	message    string
	mode       Mode
	runID      string
	startedAt  time.Time
	finishedAt time.Time
}

func NewState() *State {
	return &State{message: "Idle"}
}

// TryStart claims the guard. It returns false while another run holds it.
func (s *State) TryStart(mode Mode) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return "", false
	}

	s.running = true
	s.current = 0
	s.total = 0
	s.mode = mode
	s.runID = uuid.New().String()
	s.startedAt = time.Now().UTC()
	s.finishedAt = time.Time{}
	s.message = "Starting sync..."
	return s.runID, true
}

func (s *State) SetTotal(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = n
}

// Advance counts one processed config.
func (s *State) Advance(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current++
	s.message = msg
}

func (s *State) SetMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = msg
}

// Finish releases the guard.
func (s *State) Finish(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.message = msg
	s.finishedAt = time.Now().UTC()
}

func (s *State) Snapshot() models.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := models.SyncStatus{
		IsSyncing:    s.running,
		CurrentCount: s.current,
		TotalCount:   s.total,
		LastMessage:  s.message,
		Mode:         string(s.mode),
		RunID:        s.runID,
	}
	if s.total > 0 {
		status.Progress = s.current * 100 / s.total
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		status.StartedAt = &started
	}
	if !s.finishedAt.IsZero() {
		finished := s.finishedAt
		status.FinishedAt = &finished
	}
	return status
}
