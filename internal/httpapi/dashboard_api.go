package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/johnrirwin/topicbuddy/internal/logging"
	"github.com/johnrirwin/topicbuddy/internal/ratelimit"
)

// DashboardAPI exposes sync triggering, progress polling and persona feeds.
type DashboardAPI struct {
	syncSvc    SyncService
	limiter    ratelimit.RateLimiter
	manualSync bool
	logger     *logging.Logger
}

func NewDashboardAPI(syncSvc SyncService, limiter ratelimit.RateLimiter, manualSync bool, logger *logging.Logger) *DashboardAPI {
	return &DashboardAPI{
		syncSvc:    syncSvc,
		limiter:    limiter,
		manualSync: manualSync,
		logger:     logger,
	}
}

func (api *DashboardAPI) RegisterRoutes(mux *http.ServeMux, corsMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("/api/v1/dashboard/sync", corsMiddleware(api.handleSync))
	mux.HandleFunc("/api/v1/dashboard/sync/status", corsMiddleware(api.handleSyncStatus))
	mux.HandleFunc("/api/v1/dashboard/feed", corsMiddleware(api.handleFeed))
}

type syncResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func (api *DashboardAPI) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !api.manualSync {
		writeError(w, http.StatusForbidden, "manual_sync_disabled", "manual sync is disabled")
		return
	}

	clientIP := getClientIP(r)
	if api.limiter != nil && !api.limiter.Allow("sync:"+clientIP) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "sync was triggered too recently")
		return
	}

	if !api.syncSvc.Start(r.Context()) {
		writeJSON(w, http.StatusOK, syncResponse{OK: false, Message: "Sync already in progress"})
		return
	}

	api.logger.Info("Manual sync triggered", logging.WithField("client_ip", clientIP))
	writeJSON(w, http.StatusOK, syncResponse{OK: true, Message: "Sync started in background"})
}

func (api *DashboardAPI) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, api.syncSvc.Status())
}

func (api *DashboardAPI) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("persona_id"))
	personaID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || personaID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_persona_id", "persona_id must be a positive integer")
		return
	}

	writeJSON(w, http.StatusOK, api.syncSvc.PersonaFeed(r.Context(), personaID))
}
