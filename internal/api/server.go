// Package api serves the search engine and waitlist over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/guoyu-zhang/say-like-a-native/internal/config"
	"github.com/guoyu-zhang/say-like-a-native/internal/search"
	"github.com/guoyu-zhang/say-like-a-native/internal/telemetry"
	"github.com/guoyu-zhang/say-like-a-native/internal/waitlist"
)

// Counter reports how many segments are indexed.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Deps are the services behind the HTTP surface. Engine and Waitlist are
// required; Metrics and Store are optional.
type Deps struct {
	Engine   *search.Engine
	Waitlist *waitlist.Waitlist
	Metrics  *telemetry.QueryMetrics
	Store    Counter
}

// Server is the HTTP API.
type Server struct {
	deps    Deps
	cfg     config.ServerConfig
	handler http.Handler
}

// NewServer wires the routes and middleware.
func NewServer(deps Deps, cfg config.ServerConfig) (*Server, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine: %w", search.ErrNilDependency)
	}
	if deps.Waitlist == nil {
		return nil, fmt.Errorf("waitlist: %w", search.ErrNilDependency)
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{config.DefaultAllowedOrigin}
	}
	s := &Server{deps: deps, cfg: cfg}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(requestID, accessLog)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/autocomplete", s.handleAutocomplete).Methods(http.MethodGet)
	r.HandleFunc("/video-search", s.handleVideoSearch).Methods(http.MethodGet)
	r.HandleFunc("/waitlist", s.handleWaitlistAdd).Methods(http.MethodPost)
	r.HandleFunc("/waitlist", s.handleWaitlistList).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, detail("not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, detail("method not allowed"))
	})

	// CORS and recovery wrap the router so preflight requests and unmatched
	// routes pass through them too.
	return recoverer(cors(s.cfg.AllowedOrigins)(r))
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on cfg.Addr until ctx is cancelled, then shuts down
// gracefully within cfg.ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// Requests must outlive ctx so in-flight ones finish during shutdown.
	base := context.WithoutCancel(ctx)
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return base },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http_server_started", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	slog.Info("http_server_stopping", slog.Duration("timeout", timeout))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
