package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

// StatusFunc returns the document served on /status
type StatusFunc func() any

// Server exposes /metrics, /status and /healthz while a session runs
type Server struct {
	addr      string
	collector *Collector
	status    StatusFunc

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener

	logger logging.Logger
}

func NewServer(addr string, collector *Collector, status StatusFunc, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &Server{
		addr:      addr,
		collector: collector,
		status:    status,
		logger: logger.WithFields(logging.Fields{
			"component": "metrics_server",
		}),
	}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestMiddleware(s.collector))
	r.Get("/metrics", s.collector.Handler().ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", s.handleStatus)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		http.Error(w, "no session", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		s.logger.Error(err, "Failed to encode status")
	}
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	s.mu.Lock()
	s.srv = srv
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(err, "Metrics server error")
		}
	}()

	s.logger.Info("Metrics server started", logging.Fields{
		"addr": listener.Addr().String(),
	})
	return nil
}

// Addr returns the bound address, or the configured one before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown drains connections. It is a no-op if the server was never started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("Metrics server stopped")
	return nil
}
