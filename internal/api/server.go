package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/pii-masker/internal/config"
	"github.com/raaihank/pii-masker/internal/logger"
	"github.com/raaihank/pii-masker/internal/privacy"
	"github.com/raaihank/pii-masker/internal/security"
	"github.com/raaihank/pii-masker/internal/stats"
	"github.com/raaihank/pii-masker/internal/web"
	"github.com/raaihank/pii-masker/internal/websocket"
)

// Version is reported by /info
var Version = "0.1.0"

const statusInterval = 30 * time.Second

// Server is the masking HTTP service
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	masker    *privacy.Masker
	recorder  stats.Recorder
	limiter   *security.RateLimiter
	router    *mux.Router
	server    *http.Server
	wsHub     *websocket.Hub
	startedAt time.Time
}

// New creates a new server instance
func New(cfg *config.Config, masker *privacy.Masker, recorder stats.Recorder, log *logger.Logger) *Server {
	if recorder == nil {
		recorder = stats.Nop{}
	}

	hub := websocket.NewHub(&websocket.HubConfig{
		BroadcastMasks:       cfg.WebSocket.Events.BroadcastMasks,
		BroadcastRequests:    cfg.WebSocket.Events.BroadcastRequests,
		BroadcastSystem:      cfg.WebSocket.Events.BroadcastSystem,
		BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
		MaxConnections:       cfg.WebSocket.MaxConnections,
		AllowedOrigins:       cfg.WebSocket.AllowedOrigins,
		Username:             cfg.WebSocket.Username,
		Password:             cfg.WebSocket.Password,
		TrustProxy:           cfg.Server.TrustProxy,
	}, log.WithComponent("websocket").Logger)

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("api"),
		masker:    masker,
		recorder:  recorder,
		limiter:   security.NewRateLimiter(cfg.RateLimit),
		router:    mux.NewRouter(),
		wsHub:     hub,
		startedAt: time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	s.router.HandleFunc("/", web.ServeDashboard).Methods(http.MethodGet)
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods(http.MethodGet)

	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.loggingMiddleware)
	v1.Use(s.rateLimitMiddleware)
	v1.Use(s.bodyLimitMiddleware)
	v1.HandleFunc("/mask/{kind}", s.handleMaskValue).Methods(http.MethodPost)
	v1.HandleFunc("/records", s.handleMaskRecords).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	// Subrouters report method mismatches themselves, so both need the handler
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	s.router.MethodNotAllowedHandler = methodNotAllowed
	v1.MethodNotAllowedHandler = methodNotAllowed
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the hub and background routines, then serves HTTP until Stop
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting masking server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("privacy_enabled", s.masker.Enabled()),
		zap.Strings("enabled_rules", s.masker.GetEnabledRules()),
	)

	go s.wsHub.Run(ctx)
	s.limiter.StartCleanupRoutine(10*time.Minute, ctx.Done())
	go s.broadcastStatus(ctx)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping masking server")
	return s.server.Shutdown(ctx)
}

// broadcastStatus periodically publishes a system status event
func (s *Server) broadcastStatus(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wsHub.BroadcastEvent(websocket.Event{
				Type:      websocket.EventTypeSystemStatus,
				Timestamp: time.Now(),
				Data:      s.systemStatus(ctx),
			})
		}
	}
}

func (s *Server) systemStatus(ctx context.Context) websocket.SystemStatusEvent {
	status := websocket.SystemStatusEvent{
		Status:           "healthy",
		Uptime:           time.Since(s.startedAt).Round(time.Second).String(),
		ActiveRules:      s.masker.GetEnabledRules(),
		ConnectedClients: s.wsHub.ClientCount(),
	}

	snap, err := s.recorder.Snapshot(ctx)
	if err != nil {
		s.logger.Warn("Failed to read stats snapshot", zap.Error(err))
		status.Status = "degraded"
		return status
	}
	status.TotalProcessed = snap.Total
	status.TotalMasked = snap.Masked
	return status
}
