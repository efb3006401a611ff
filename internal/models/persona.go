package models

import "time"

// Persona groups source configs and selection preferences.
type Persona struct {
	ID            int64          `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	Description   string         `json:"description,omitempty" yaml:"description"`
	Interests     []string       `json:"interests" yaml:"interests"`
	Depth         int            `json:"depth" yaml:"depth"`
	CustomPrompt  string         `json:"custom_prompt,omitempty" yaml:"custom_prompt"`
	SourceConfigs []SourceConfig `json:"source_configs" yaml:"sources"`
}

// EnabledSourceConfigs returns the persona's enabled configs in order.
func (p Persona) EnabledSourceConfigs() []SourceConfig {
	enabled := make([]SourceConfig, 0, len(p.SourceConfigs))
	for _, cfg := range p.SourceConfigs {
		if cfg.Enabled {
			enabled = append(enabled, cfg)
		}
	}
	return enabled
}

// SyncStatus is the externally visible progress of the sync orchestrator.
type SyncStatus struct {
	IsSyncing    bool       `json:"is_syncing"`
	Progress     int        `json:"progress"`
	CurrentCount int        `json:"current_count"`
	TotalCount   int        `json:"total_count"`
	LastMessage  string     `json:"last_message"`
	Mode         string     `json:"mode,omitempty"`
	RunID        string     `json:"run_id,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// SyncEvent is emitted to downstream consumers as a run progresses.
type SyncEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	Mode      string    `json:"mode"`
	PersonaID int64     `json:"persona_id,omitempty"`
	ItemCount int       `json:"item_count"`
	At        time.Time `json:"at"`
}

const (
	EventSnapshotPublished = "sync.snapshot_published"
	EventSourcePersisted   = "sync.source_persisted"
	EventSyncCompleted     = "sync.completed"
)
