// Package server is the HTTP surface: task submission and lookup, health and
// metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"evently/internal/core"
	"evently/internal/metrics"
	"evently/internal/publish"
	"evently/internal/queue"
	"evently/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxBodyBytes    = 1 << 20
	requestIDHeader = "X-Request-Id"
)

type Config struct {
	Addr string
}

type Server struct {
	config    Config
	producer  *core.Producer
	store     storage.StorageInterface
	queue     queue.Queue
	metrics   *metrics.Metrics
	publisher publish.Publisher
	logger    *slog.Logger
	server    *http.Server
}

type Deps struct {
	Producer  *core.Producer
	Store     storage.StorageInterface
	Queue     queue.Queue
	Metrics   *metrics.Metrics
	Publisher publish.Publisher
	Logger    *slog.Logger
}

func New(config Config, deps Deps) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Server{
		config:    config,
		producer:  deps.Producer,
		store:     deps.Store,
		queue:     deps.Queue,
		metrics:   deps.Metrics,
		publisher: deps.Publisher,
		logger:    deps.Logger.With("component", "server"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tasks", s.handleCreateTasks)
	mux.HandleFunc("GET /tasks", s.handleListTasks)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("GET /events", s.handleListEvents)
	mux.HandleFunc("GET /events/{id}", s.handleGetEvent)
	mux.HandleFunc("POST /events/{id}/publish", s.handlePublishEvent)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return s.withRequestLog(mux)
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("server: failed to listen on %s: %w", s.config.Addr, err)
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		s.logger.Info("Server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server stopped with error", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, rid)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		s.logger.Debug("HTTP request",
			"rid", rid,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
