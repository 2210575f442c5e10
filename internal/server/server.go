// Package server hosts the HTTP API: router, middleware, health and
// metrics endpoints, static files and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/atmo-climate/atmo/internal/db"
	"github.com/atmo-climate/atmo/internal/gateway"
	"github.com/atmo-climate/atmo/internal/observability"
)

// Config holds server configuration.
type Config struct {
	Port           int
	StaticDir      string        // served under /static when set
	AllowAll       bool          // allow all CORS origins (dev mode)
	RequestTimeout time.Duration // deadline for non-streaming routes, 0 for none
}

// Server is the HTTP front end of the question gateway.
type Server struct {
	cfg        Config
	db         *db.DB
	gateway    *gateway.Gateway
	metrics    *observability.Collector
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a new server with all dependencies. metrics may be nil.
func New(cfg Config, database *db.DB, gw *gateway.Gateway, metrics *observability.Collector, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		db:      database,
		gateway: gw,
		metrics: metrics,
		logger:  logger,
	}

	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.metrics != nil {
		r.Use(s.metrics.Instrument)
	}
	r.Use(observability.Logger(s.logger))
	r.Use(middleware.Recoverer)

	// CORS
	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{gateway.SessionHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
		corsOpts.AllowCredentials = false
	}
	r.Use(cors.Handler(corsOpts))

	if s.gateway != nil {
		gateway.RegisterStreamRoutes(r, s.gateway)
	}

	// Everything that does not stream an answer gets the request timeout.
	r.Group(func(r chi.Router) {
		if s.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		}

		r.Get("/healthz", s.handleHealth)

		if s.metrics != nil {
			r.Handle("/metrics", s.metrics.Handler())
		}

		if s.cfg.StaticDir != "" {
			fs := http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.StaticDir)))
			r.Handle("/static/*", fs)
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/static/index.html", http.StatusFound)
			})
		}

		if s.gateway != nil {
			gateway.RegisterSessionRoutes(r, s.gateway)
		}
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := `{"status":"ok"}`
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body = `{"status":"degraded"}`
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port. It returns nil after a
// graceful Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	// Answers stream for as long as the model takes, so there is no
	// write timeout.
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("atmo server listening", zap.String("addr", ln.Addr().String()))
	if s.cfg.StaticDir != "" {
		if _, err := os.Stat(s.cfg.StaticDir); err != nil {
			s.logger.Warn("static directory unavailable", zap.String("dir", s.cfg.StaticDir), zap.Error(err))
		}
	}
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
