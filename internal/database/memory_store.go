package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/johnrirwin/topicbuddy/internal/models"
)

// MemoryStore is an in-process implementation of the persona and topic
// stores. The server uses it when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	personas []models.Persona
	topics   map[int64]*models.Topic
	byOrigID map[string]int64
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		topics:   make(map[int64]*models.Topic),
		byOrigID: make(map[string]int64),
		nextID:   1,
	}
}

func (s *MemoryStore) ListPersonas(ctx context.Context) ([]models.Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Persona, len(s.personas))
	for i, p := range s.personas {
		p.SourceConfigs = append([]models.SourceConfig(nil), p.SourceConfigs...)
		out[i] = p
	}
	return out, nil
}

// SeedPersonas replaces personas with matching ids and appends the rest.
func (s *MemoryStore) SeedPersonas(ctx context.Context, personas []models.Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range personas {
		p.SourceConfigs = append([]models.SourceConfig(nil), p.SourceConfigs...)
		for i := range p.SourceConfigs {
			p.SourceConfigs[i].PersonaID = p.ID
		}

		replaced := false
		for i := range s.personas {
			if s.personas[i].ID == p.ID {
				s.personas[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			s.personas = append(s.personas, p)
		}
	}

	sort.Slice(s.personas, func(i, j int) bool { return s.personas[i].ID < s.personas[j].ID })
	return nil
}

// DeleteSourceConfig removes a config and orphans its topics, as the
// Postgres foreign key does.
func (s *MemoryStore) DeleteSourceConfig(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pi := range s.personas {
		configs := s.personas[pi].SourceConfigs[:0]
		for _, cfg := range s.personas[pi].SourceConfigs {
			if cfg.ID != id {
				configs = append(configs, cfg)
			}
		}
		s.personas[pi].SourceConfigs = configs
	}

	for _, t := range s.topics {
		if t.SourceConfigID != nil && *t.SourceConfigID == id {
			t.SourceConfigID = nil
		}
	}
	return nil
}

func (s *MemoryStore) PurgeNew(ctx context.Context, sourceConfigID int64) (int64, error) {
	return s.purge(func(t *models.Topic) bool {
		return t.SourceConfigID != nil && *t.SourceConfigID == sourceConfigID
	}), nil
}

func (s *MemoryStore) PurgeOrphanNew(ctx context.Context) (int64, error) {
	return s.purge(func(t *models.Topic) bool {
		return t.SourceConfigID == nil
	}), nil
}

func (s *MemoryStore) purge(match func(*models.Topic) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.topics {
		if t.Status == models.TopicStatusNew && match(t) {
			delete(s.byOrigID, t.OriginalID)
			delete(s.topics, id)
			n++
		}
	}
	return n
}

func (s *MemoryStore) FindByOriginalID(ctx context.Context, originalID string) (*models.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byOrigID[originalID]
	if !ok {
		return nil, nil
	}
	return cloneTopic(s.topics[id]), nil
}

func (s *MemoryStore) UpdateObservation(ctx context.Context, topic *models.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.topics[topic.ID]
	if !ok {
		return fmt.Errorf("update topic %d: not found", topic.ID)
	}
	existing.SourceConfigID = cloneID(topic.SourceConfigID)
	existing.Author = topic.Author
	existing.Metrics = topic.Metrics.Clone()
	existing.Thumbnail = topic.Thumbnail
	return nil
}

func (s *MemoryStore) InsertWithTags(ctx context.Context, topic *models.Topic, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byOrigID[topic.OriginalID]; exists {
		return fmt.Errorf("insert topic %s: duplicate original_id", topic.OriginalID)
	}
	if topic.Status == "" {
		topic.Status = models.TopicStatusNew
	}
	if topic.SavedAt.IsZero() {
		topic.SavedAt = time.Now().UTC()
	}

	topic.ID = s.nextID
	s.nextID++
	topic.Tags = dedupeTags(tags)

	s.topics[topic.ID] = cloneTopic(topic)
	s.byOrigID[topic.OriginalID] = topic.ID
	return nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, originalID string, status models.TopicStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byOrigID[originalID]
	if !ok {
		return fmt.Errorf("set status of topic %s: %w", originalID, ErrTopicNotFound)
	}
	topic := s.topics[id]
	if status == models.TopicStatusSaved && topic.Status != models.TopicStatusSaved {
		topic.SavedAt = time.Now().UTC()
	}
	topic.Status = status
	return nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context) (map[models.TopicStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.TopicStatus]int)
	for _, t := range s.topics {
		counts[t.Status]++
	}
	return counts, nil
}

// Topics returns copies of every stored topic ordered by id.
func (s *MemoryStore) Topics() []models.Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Topic, 0, len(s.topics))
	for _, t := range s.topics {
		out = append(out, *cloneTopic(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneTopic(t *models.Topic) *models.Topic {
	c := *t
	c.SourceConfigID = cloneID(t.SourceConfigID)
	c.Metrics = t.Metrics.Clone()
	c.Tags = append([]string{}, t.Tags...)
	if t.PublishedAt != nil {
		ts := *t.PublishedAt
		c.PublishedAt = &ts
	}
	return &c
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func dedupeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
