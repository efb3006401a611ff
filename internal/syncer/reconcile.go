package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johnrirwin/topicbuddy/internal/logging"
	"github.com/johnrirwin/topicbuddy/internal/models"
)

var ErrReconciliationFailed = errors.New("reconciliation failed")

// ReconcileResult counts the outcome of one Reconcile call.
type ReconcileResult struct {
	Inserted int
	Updated  int
	Failed   int
}

// Reconciler merges pipeline items into the topic store keyed by
// original_id. Existing rows keep their status and saved_at.
type Reconciler struct {
	topics TopicRepository
	logger *logging.Logger
	now    func() time.Time
}

func NewReconciler(topics TopicRepository, logger *logging.Logger) *Reconciler {
	return &Reconciler{
		topics: topics,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile processes items in order. A failed item is logged and counted
// and does not stop the rest.
func (r *Reconciler) Reconcile(ctx context.Context, items []models.CandidateItem) ReconcileResult {
	var result ReconcileResult

	for _, item := range items {
		inserted, err := r.reconcileOne(ctx, item)
		if err != nil {
			result.Failed++
			r.logger.Warn("Failed to reconcile item", logging.WithFields(map[string]interface{}{
				"original_id":      item.OriginalID,
				"source_config_id": item.SourceConfigID,
				"error":            err.Error(),
			}))
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	return result
}

func (r *Reconciler) reconcileOne(ctx context.Context, item models.CandidateItem) (bool, error) {
	existing, err := r.topics.FindByOriginalID(ctx, item.OriginalID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrReconciliationFailed, err)
	}

	if existing != nil {
		if existing.SourceConfigID == nil || *existing.SourceConfigID != item.SourceConfigID {
			configID := item.SourceConfigID
			existing.SourceConfigID = &configID
		}
		existing.Author = item.Author
		existing.Metrics = item.Metrics.Clone()
		existing.Thumbnail = item.Thumbnail

		if err := r.topics.UpdateObservation(ctx, existing); err != nil {
			return false, fmt.Errorf("%w: %v", ErrReconciliationFailed, err)
		}
		return false, nil
	}

	topic := models.NewTopicFromCandidate(item, r.now())
	if err := r.topics.InsertWithTags(ctx, topic, item.Labels); err != nil {
		return false, fmt.Errorf("%w: %v", ErrReconciliationFailed, err)
	}
	return true, nil
}
