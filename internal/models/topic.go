package models

import "time"

// TopicStatus is the lifecycle state of a persisted topic.
type TopicStatus string

const (
	TopicStatusNew      TopicStatus = "new"
	TopicStatusSaved    TopicStatus = "saved"
	TopicStatusRejected TopicStatus = "rejected"
)

// Topic is a durable candidate. OriginalID is unique across the store.
type Topic struct {
	ID             int64       `json:"id"`
	SourceConfigID *int64      `json:"source_config_id"`
	OriginalID     string      `json:"original_id"`
	Title          string      `json:"title"`
	URL            string      `json:"url"`
	Summary        string      `json:"summary,omitempty"`
	Thumbnail      string      `json:"thumbnail,omitempty"`
	Author         string      `json:"author,omitempty"`
	Metrics        Metrics     `json:"metrics"`
	Status         TopicStatus `json:"status"`
	PublishedAt    *time.Time  `json:"published_at"`
	SavedAt        time.Time   `json:"saved_at"`
	Tags           []string    `json:"tags"`
}

// NewTopicFromCandidate builds a fresh "new" topic from a pipeline item.
func NewTopicFromCandidate(item CandidateItem, now time.Time) *Topic {
	configID := item.SourceConfigID
	return &Topic{
		SourceConfigID: &configID,
		OriginalID:     item.OriginalID,
		Title:          item.Title,
		URL:            item.URL,
		Summary:        item.Summary,
		Thumbnail:      item.Thumbnail,
		Author:         item.Author,
		Metrics:        item.Metrics.Clone(),
		Status:         TopicStatusNew,
		PublishedAt:    item.PublishedAt,
		SavedAt:        now,
	}
}
