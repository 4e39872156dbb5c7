// Package health provides the HTTP health and metrics endpoint.
//
// Docker and Kubernetes use /healthz and /readyz to monitor the daemon's
// liveness. When the daemon is running and ready to accept messages, both
// return 200 OK. /metrics exposes the Prometheus registry the OpenTelemetry
// exporter writes to.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check reports a component's state for /readyz. A nil error means healthy.
type Check func(ctx context.Context) error

// Server is a lightweight HTTP server that exposes /healthz, /readyz and /metrics.
type Server struct {
	port     int
	gatherer prometheus.Gatherer
	ready    atomic.Bool

	mu     sync.Mutex
	checks map[string]Check
	server *http.Server
}

// New creates a new health check server. A nil gatherer serves the default
// Prometheus registry.
func New(port int, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{port: port, gatherer: gatherer, checks: make(map[string]Check)}
}

// SetReady marks the daemon as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// AddCheck registers a named readiness check.
func (s *Server) AddCheck(name string, c Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = c
}

type status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func writeStatus(w http.ResponseWriter, code int, st status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(st)
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, status{Status: "not_ready"})
			return
		}
		writeStatus(w, http.StatusOK, status{Status: "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, status{Status: "not_ready"})
			return
		}
		st, ok := s.runChecks(r.Context())
		if !ok {
			writeStatus(w, http.StatusServiceUnavailable, st)
			return
		}
		writeStatus(w, http.StatusOK, st)
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) runChecks(ctx context.Context) (status, bool) {
	s.mu.Lock()
	checks := make(map[string]Check, len(s.checks))
	for name, c := range s.checks {
		checks[name] = c
	}
	s.mu.Unlock()

	st := status{Status: "ok"}
	ok := true
	if len(checks) > 0 {
		st.Checks = make(map[string]string, len(checks))
	}
	for name, c := range checks {
		if err := c(ctx); err != nil {
			st.Checks[name] = err.Error()
			st.Status = "degraded"
			ok = false
			continue
		}
		st.Checks[name] = "ok"
	}
	return st, ok
}

// ListenAndServe starts the health check HTTP server.
// It blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("health server: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve runs the server on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	slog.Info("health server listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(lis); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
