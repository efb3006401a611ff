package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/johnrirwin/topicbuddy/internal/logging"
	"github.com/johnrirwin/topicbuddy/internal/models"
	"github.com/johnrirwin/topicbuddy/internal/ratelimit"
)

// SyncService is the trigger surface of the sync orchestrator.
// *syncer.Orchestrator satisfies it.
type SyncService interface {
	Start(ctx context.Context) bool
	Status() models.SyncStatus
	PersonaFeed(ctx context.Context, personaID int64) []models.CandidateItem
}

type Server struct {
	syncSvc     SyncService
	topics      TopicReviewer
	syncLimiter ratelimit.RateLimiter
	manualSync  bool
	logger      *logging.Logger
	server      *http.Server
}

// New builds the API server. topics and syncLimiter may be nil; a nil
// limiter leaves manual triggers unthrottled.
func New(syncSvc SyncService, topics TopicReviewer, syncLimiter ratelimit.RateLimiter, manualSync bool, logger *logging.Logger) *Server {
	return &Server{
		syncSvc:     syncSvc,
		topics:      topics,
		syncLimiter: syncLimiter,
		manualSync:  manualSync,
		logger:      logger,
	}
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	dashboardAPI := NewDashboardAPI(s.syncSvc, s.syncLimiter, s.manualSync, s.logger)
	dashboardAPI.RegisterRoutes(mux, s.corsMiddleware)

	if s.topics != nil {
		topicsAPI := NewTopicsAPI(s.topics, s.logger)
		topicsAPI.RegisterRoutes(mux, s.corsMiddleware)
	}

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info("HTTP API server starting", logging.WithField("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

func getClientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	remoteAddr := strings.TrimSpace(r.RemoteAddr)
	if idx := strings.LastIndex(remoteAddr, ":"); idx != -1 {
		return remoteAddr[:idx]
	}
	return remoteAddr
}
