package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/johnrirwin/topicbuddy/internal/database"
	"github.com/johnrirwin/topicbuddy/internal/logging"
	"github.com/johnrirwin/topicbuddy/internal/models"
)

// TopicReviewer records reviewer decisions on persisted topics.
type TopicReviewer interface {
	SetStatus(ctx context.Context, originalID string, status models.TopicStatus) error
	CountByStatus(ctx context.Context) (map[models.TopicStatus]int, error)
}

type TopicsAPI struct {
	topics TopicReviewer
	logger *logging.Logger
}

func NewTopicsAPI(topics TopicReviewer, logger *logging.Logger) *TopicsAPI {
	return &TopicsAPI{topics: topics, logger: logger}
}

func (api *TopicsAPI) RegisterRoutes(mux *http.ServeMux, corsMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("/api/v1/topics/stats", corsMiddleware(api.handleStats))
	mux.HandleFunc("/api/v1/topics/", corsMiddleware(api.handleTopicStatus))
}

func (api *TopicsAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counts, err := api.topics.CountByStatus(r.Context())
	if err != nil {
		api.logger.Error("Count topics failed", logging.WithField("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to count topics")
		return
	}

	response := map[string]int{
		string(models.TopicStatusNew):      counts[models.TopicStatusNew],
		string(models.TopicStatusSaved):    counts[models.TopicStatusSaved],
		string(models.TopicStatusRejected): counts[models.TopicStatusRejected],
	}
	writeJSON(w, http.StatusOK, response)
}

// handleTopicStatus serves PUT /api/v1/topics/{original_id}/status.
func (api *TopicsAPI) handleTopicStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/topics/")
	originalID, ok := strings.CutSuffix(path, "/status")
	if !ok || originalID == "" || strings.Contains(originalID, "/") {
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}

	var body struct {
		Status models.TopicStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	switch body.Status {
	case models.TopicStatusNew, models.TopicStatusSaved, models.TopicStatusRejected:
	default:
		writeError(w, http.StatusBadRequest, "invalid_status", "status must be new, saved or rejected")
		return
	}

	if err := api.topics.SetStatus(r.Context(), originalID, body.Status); err != nil {
		if errors.Is(err, database.ErrTopicNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "topic not found")
			return
		}
		api.logger.Error("Set topic status failed", logging.WithFields(map[string]interface{}{
			"original_id": originalID,
			"error":       err.Error(),
		}))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update topic")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"original_id": originalID,
		"status":      string(body.Status),
	})
}
