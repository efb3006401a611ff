package syncer

import (
	"context"

	"github.com/johnrirwin/topicbuddy/internal/models"
)

// PersonaRepository loads personas together with all of their configs.
type PersonaRepository interface {
	ListPersonas(ctx context.Context) ([]models.Persona, error)
}

// TopicRepository is the persisted topic store used by persist mode.
// FindByOriginalID returns nil, nil when the topic does not exist.
type TopicRepository interface {
	PurgeNew(ctx context.Context, sourceConfigID int64) (int64, error)
	PurgeOrphanNew(ctx context.Context) (int64, error)
	FindByOriginalID(ctx context.Context, originalID string) (*models.Topic, error)
	UpdateObservation(ctx context.Context, topic *models.Topic) error
	InsertWithTags(ctx context.Context, topic *models.Topic, tags []string) error
}
