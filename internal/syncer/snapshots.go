package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/johnrirwin/topicbuddy/internal/cache"
	"github.com/johnrirwin/topicbuddy/internal/models"
)

// DefaultSnapshotTTL bounds how long a published pool stays readable.
const DefaultSnapshotTTL = 12 * time.Hour

// SnapshotKey is the cache key of a persona's candidate pool.
func SnapshotKey(personaID int64) string {
	return fmt.Sprintf("persona:%d", personaID)
}

// Snapshots reads and replaces per-persona candidate pools in the cache.
type Snapshots struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewSnapshots(c cache.Cache, ttl time.Duration) *Snapshots {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &Snapshots{cache: c, ttl: ttl}
}

// Publish overwrites the persona's pool with items, even when empty.
func (s *Snapshots) Publish(ctx context.Context, personaID int64, items []models.CandidateItem) error {
	if items == nil {
		items = []models.CandidateItem{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode snapshot for persona %d: %w", personaID, err)
	}
	if err := s.cache.SetWithTTL(ctx, SnapshotKey(personaID), payload, s.ttl); err != nil {
		return fmt.Errorf("publish snapshot for persona %d: %w", personaID, err)
	}
	return nil
}

// Load returns the persona's pool. A miss yields an empty list.
func (s *Snapshots) Load(ctx context.Context, personaID int64) ([]models.CandidateItem, error) {
	items := []models.CandidateItem{}

	payload, ok, err := s.cache.Get(ctx, SnapshotKey(personaID))
	if err != nil {
		return items, fmt.Errorf("read snapshot for persona %d: %w", personaID, err)
	}
	if !ok {
		return items, nil
	}
	if err := json.Unmarshal(payload, &items); err != nil {
		return []models.CandidateItem{}, fmt.Errorf("decode snapshot for persona %d: %w", personaID, err)
	}
	if items == nil {
		items = []models.CandidateItem{}
	}
	return items, nil
}
