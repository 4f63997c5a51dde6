package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"qr-scan-station/internal/config"
	"qr-scan-station/internal/station"
)

// Server exposes the station's scanning and result views plus the user
// actions over a local HTTP + WebSocket control surface
type Server struct {
	config      *config.Config
	logger      *logrus.Logger
	router      *mux.Router
	httpServer  *http.Server
	station     *station.Station
	ws          *wsHub
	imageClient *http.Client
}

// NewServer creates a new control surface server for the given station
func NewServer(cfg *config.Config, st *station.Station, logger *logrus.Logger) *Server {
	server := &Server{
		config:  cfg,
		logger:  logger,
		router:  mux.NewRouter(),
		station: st,
		imageClient: &http.Client{
			Timeout: time.Duration(cfg.ImageFetchTimeout) * time.Second,
		},
	}

	server.ws = newWSHub(st, logger)

	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:      server.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return server
}

// setupMiddleware configures the middleware chain
func (s *Server) setupMiddleware() {
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.loggingMiddleware)
	if s.config.APIAuthSecret != "" {
		s.router.Use(s.authMiddleware)
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/image", s.handleImage).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	scan := api.PathPrefix("/scan").Subrouter()
	scan.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	scan.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)
	scan.HandleFunc("/switch", s.handleSwitch).Methods(http.MethodPost)
	scan.HandleFunc("/retry", s.handleRetry).Methods(http.MethodPost)
	scan.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
	scan.HandleFunc("/copy", s.handleCopy).Methods(http.MethodPost)
}

// Handler returns the server's HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until the context is cancelled or
// the server fails
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting control surface server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Control surface server shutting down")
		return s.Shutdown()
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.ws.closeAll()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Control surface server stopped")
	return nil
}
