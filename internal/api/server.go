// Package api provides the HTTP REST API of the netrecon engine. It starts
// and cancels scans, serves their results and network graphs, reports the
// gateway, exposes Prometheus metrics and streams scan progress over a
// WebSocket.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	apihandlers "github.com/anstrom/netrecon/internal/api/handlers"
	"github.com/anstrom/netrecon/internal/api/middleware"
	"github.com/anstrom/netrecon/internal/config"
	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/metrics"
)

// Server timeout constants.
const (
	serverShutdownTimeout = 30 * time.Second
	readTimeout           = 10 * time.Second
	idleTimeout           = 60 * time.Second
	maxHeaderBytes        = 1 << 20
)

// Options are the collaborators the server is built from. Database, Results
// and Schedules may be nil; their endpoints then report that the feature is
// not configured.
type Options struct {
	Config    *config.Config
	Scans     apihandlers.ScanService
	Results   apihandlers.ResultStore
	Database  apihandlers.DatabasePinger
	Gateway   apihandlers.GatewayDetector
	Schedules apihandlers.ScheduleService
	Metrics   *metrics.PrometheusMetrics
	Version   string
}

// Server represents the API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     *config.Config
	logger     *logging.Logger
	metrics    *metrics.PrometheusMetrics
	hub        *apihandlers.WebSocketHandler
	startTime  time.Time
}

// New creates a new API server instance.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("api server requires a configuration")
	}
	if opts.Scans == nil {
		return nil, fmt.Errorf("api server requires a scan service")
	}

	s := &Server{
		router:    mux.NewRouter(),
		config:    opts.Config,
		logger:    logging.WithComponent("api"),
		metrics:   opts.Metrics,
		hub:       apihandlers.NewWebSocketHandler(),
		startTime: time.Now(),
	}
	opts.Scans.OnProgress(s.hub.ScanProgress)

	s.setupMiddleware()
	s.setupRoutes(opts)

	s.httpServer = &http.Server{
		Addr:              opts.Config.APIAddress(),
		Handler:           s.handler(),
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}
	return s, nil
}

// handler wraps the router in CORS handling. gorilla's CORS handler answers
// preflight requests itself, so it sits outside the router where OPTIONS
// requests have no matching route.
func (s *Server) handler() http.Handler {
	origins := s.config.API.AllowedOrigins
	if len(origins) == 0 {
		return s.router
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", middleware.RequestIDHeader}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.ExposedHeaders([]string{middleware.RequestIDHeader, "Location"}),
	)(s.router)
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes(opts Options) {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	health := apihandlers.NewHealthHandler(opts.Database, opts.Scans, opts.Version)
	api.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	api.HandleFunc("/liveness", health.Liveness).Methods(http.MethodGet)
	api.HandleFunc("/status", health.Status).Methods(http.MethodGet)
	api.HandleFunc("/version", health.Version).Methods(http.MethodGet)

	scans := apihandlers.NewScanHandler(opts.Scans, opts.Results, opts.Config.ScanConfig, opts.Config.API.MaxRequestSize)
	api.HandleFunc("/scans", scans.ListScans).Methods(http.MethodGet)
	api.HandleFunc("/scans", scans.CreateScan).Methods(http.MethodPost)
	api.HandleFunc("/scans/{id}", scans.GetScan).Methods(http.MethodGet)
	api.HandleFunc("/scans/{id}", scans.CancelScan).Methods(http.MethodDelete)
	api.HandleFunc("/scans/{id}/graph", scans.GetGraph).Methods(http.MethodGet)

	if opts.Gateway != nil {
		gateway := apihandlers.NewGatewayHandler(opts.Gateway)
		api.HandleFunc("/gateway", gateway.GetGateway).Methods(http.MethodGet)
	}

	if opts.Schedules != nil {
		schedules := apihandlers.NewScheduleHandler(opts.Schedules)
		api.HandleFunc("/schedules", schedules.ListSchedules).Methods(http.MethodGet)
		api.HandleFunc("/schedules/{id}/run", schedules.RunSchedule).Methods(http.MethodPost)
		api.HandleFunc("/schedules/{id}/enable", schedules.EnableSchedule).Methods(http.MethodPost)
		api.HandleFunc("/schedules/{id}/disable", schedules.DisableSchedule).Methods(http.MethodPost)
	}

	api.HandleFunc("/ws", s.hub.ScanWebSocket).Methods(http.MethodGet)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

// setupMiddleware configures middleware for the API server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Logging(s.logger))
	if s.metrics != nil {
		s.router.Use(middleware.Metrics(s.metrics))
	}
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.RequestTimeout(s.config.API.RequestTimeout))
	s.router.Use(middleware.ContentType())
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("API server failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.logger.Info("Starting API server", "address", listener.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		s.hub.Shutdown()
		return err
	}
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	s.hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped", "uptime", time.Since(s.startTime).Round(time.Second))
	return nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.httpServer.Addr
}
