// Package server wires the form flow, metrics, health and static assets onto
// a chi router and owns the HTTP server lifecycle.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/formflow/form-app/internal/flow"
	"github.com/formflow/form-app/internal/metrics"
)

// Config holds tunable parameters for the HTTP server.
type Config struct {
	ListenAddr   string        // address to listen on, e.g. ":3000"
	ReadTimeout  time.Duration // full request read deadline
	WriteTimeout time.Duration // response write deadline
	IdleTimeout  time.Duration // keep-alive idle deadline
	PingTimeout  time.Duration // bound on the health check's store ping
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":3000",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		PingTimeout:  2 * time.Second,
	}
}

// Pinger reports whether the session store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components mounted by the server.
type Deps struct {
	Flow   *flow.Controller
	Health Pinger
	Assets http.Handler

	// Submit wraps the POST step handlers, e.g. rate limiting.
	Submit []func(http.Handler) http.Handler

	// DebugEndpoints mounts /debug/sessions.
	DebugEndpoints bool
}

// Server serves the form flow over HTTP.
type Server struct {
	config     Config
	deps       Deps
	log        logrus.FieldLogger
	handler    http.Handler
	httpServer *http.Server
	startedAt  time.Time

	drained   chan struct{} // closed once Shutdown has returned
	drainOnce sync.Once
}

// New creates a Server and builds its router.
func New(config Config, deps Deps, log logrus.FieldLogger) *Server {
	s := &Server{
		config:    config,
		deps:      deps,
		log:       log.WithField("component", "http"),
		startedAt: time.Now(),
		drained:   make(chan struct{}),
	}
	s.handler = s.routes()
	s.httpServer = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      s.handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(metrics.Instrument)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	if s.deps.Assets != nil {
		r.Method(http.MethodGet, "/assets/*", s.deps.Assets)
	}
	if s.deps.Flow != nil {
		s.deps.Flow.Register(r, s.deps.Submit...)
		if s.deps.DebugEndpoints {
			r.Get("/debug/sessions", s.deps.Flow.DebugSessions)
		}
	}
	return r
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and blocks until the server stops.
// It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.config.ListenAddr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called. After a
// Shutdown it returns only once in-flight requests have drained or the
// shutdown deadline has passed, so callers may release shared clients.
func (s *Server) Serve(ln net.Listener) error {
	s.log.WithField("addr", ln.Addr().String()).Info("server listening")
	err := s.httpServer.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: http server error: %w", err)
	}
	<-s.drained
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.drainOnce.Do(func() { close(s.drained) })

	s.log.Info("shutting down server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

// handleHealth responds with the server's health status as JSON, including
// store reachability and uptime. A failed store ping answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status string `json:"status"`
		Store  string `json:"store"`
		Uptime string `json:"uptime"`
	}{
		Status: "ok",
		Store:  "ok",
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	}
	code := http.StatusOK

	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.PingTimeout)
		defer cancel()
		if err := s.deps.Health.Ping(ctx); err != nil {
			s.log.WithError(err).Warn("health check: store ping failed")
			resp.Status = "degraded"
			resp.Store = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.WithError(err).Debug("write health response")
	}
}
