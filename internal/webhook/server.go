package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/acounsel/asfour/pkg/utils"
)

// Server is the webhook HTTP server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *zap.Logger
}

// HealthResponse is the response structure for health check endpoints
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// NewServer creates the webhook server and registers all routes.
func NewServer(port int, h *Handler, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	server := &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		mux:    mux,
		logger: logger,
	}

	mux.HandleFunc("/health", server.handleHealth)
	mux.HandleFunc("/ready", server.handleReady)

	mux.HandleFunc("POST /webhooks/{orgID}/message", h.InboundMessage)
	mux.HandleFunc("POST /webhooks/{orgID}/voice", h.Voice)
	mux.HandleFunc("POST /webhooks/{orgID}/voice/status", h.VoiceStatus)
	mux.HandleFunc("POST /webhooks/{orgID}/status", h.Status)
	mux.HandleFunc("GET /webhooks/{orgID}/voice-call/{messageID}", h.VoiceCall)
	mux.HandleFunc("POST /webhooks/{orgID}/voice-call/{messageID}", h.VoiceCall)

	mux.HandleFunc("POST /account-request", h.HandleAccountRequest)
	mux.HandleFunc("POST /orgs/{orgID}/messages", h.CreateMessage)
	mux.HandleFunc("POST /orgs/{orgID}/contacts/import", h.ImportContacts)
	mux.HandleFunc("GET /orgs/{orgID}/messages/{messageID}/logs", h.MessageLogs)
	mux.HandleFunc("GET /orgs/{orgID}/responses", h.Responses)
	mux.HandleFunc("GET /jobs/{jobID}", h.JobProgress)

	return server
}

// RegisterMetricsHandler adds the /metrics endpoint handler.
// Should only be called if metrics are enabled.
func (s *Server) RegisterMetricsHandler(handler http.Handler) {
	s.logger.Info("Registering /metrics endpoint")
	s.mux.Handle("/metrics", handler)
}

// Start begins the HTTP server
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting webhook server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Webhook server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping webhook server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles the /health endpoint for liveness probes
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "UP",
		Version: "1.0.0",
	}

	utils.WriteJSONResponse(w, http.StatusOK, resp)
}

// handleReady handles the /ready endpoint for readiness probes
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "READY",
		Details: map[string]string{
			"timestamp": utils.FormatISO8601(utils.Now()),
		},
	}

	utils.WriteJSONResponse(w, http.StatusOK, resp)
}
