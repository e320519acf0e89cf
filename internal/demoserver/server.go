// Package demoserver is an in-process backend with sample data. It is only
// started when demo mode is switched on.
package demoserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kingrea/opex/internal/workflow"
)

// Server wraps the HTTP listener and handlers backing the demo backend.
type Server struct {
	settings Settings
	store    *Store
	catalog  workflow.Catalog
	repo     *Repository
	logger   zerolog.Logger
	clock    func() time.Time

	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
}

// Option customizes server construction.
type Option func(*Server)

// WithStore replaces the seeded store.
func WithStore(store *Store) Option {
	return func(s *Server) {
		if store != nil {
			s.store = store
		}
	}
}

// WithCatalog sets the stage catalog.
func WithCatalog(catalog workflow.Catalog) Option {
	return func(s *Server) { s.catalog = catalog }
}

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a demo server. State is loaded from the snapshot when
// persistence is on, else seeded.
func NewServer(settings Settings, opts ...Option) (*Server, error) {
	settings.normalize()
	s := &Server{
		settings: settings,
		catalog:  workflow.Default(),
		logger:   zerolog.Nop(),
		clock:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if settings.StatePath != "" {
		s.repo = NewRepository(settings.StatePath)
	}
	if s.store == nil {
		state, err := s.initialState()
		if err != nil {
			return nil, err
		}
		s.store = NewStore(s.catalog, state, s.clock)
	}
	return s, nil
}

func (s *Server) initialState() (State, error) {
	if s.repo != nil {
		state, err := s.repo.Load()
		if err == nil {
			return state, nil
		}
		if !errors.Is(err, ErrStateNotFound) {
			return State{}, fmt.Errorf("demoserver: load state: %w", err)
		}
	}
	return Seed(s.catalog, s.clock()), nil
}

// Store exposes the dataset.
func (s *Server) Store() *Store { return s.store }

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.Handle("GET /api/initiatives", s.authed(s.handleListInitiatives))
	mux.Handle("POST /api/initiatives", s.authed(s.handleCreateInitiative))
	mux.Handle("GET /api/initiatives/{id}", s.authed(s.handleGetInitiative))
	mux.Handle("PUT /api/initiatives/{id}", s.authed(s.handleUpdateInitiative))
	mux.Handle("GET /api/users", s.authed(s.handleListUsers))

	mux.Handle("GET /api/workflow-transactions/visible/{id}", s.authed(s.handleVisible))
	mux.Handle("GET /api/workflow-transactions/current-pending/{id}", s.authed(s.handleCurrentPending))
	mux.Handle("GET /api/workflow-transactions/progress/{id}", s.authed(s.handleProgress))
	mux.Handle("POST /api/workflow-transactions/{id}/process", s.authed(s.handleProcess))

	mux.Handle("GET /api/timeline-tracker/{id}", s.authed(s.handleTimeline))
	mux.Handle("GET /api/timeline-tracker/{id}/all-completed", s.authed(s.handleTimelineCompleted))
	mux.Handle("GET /api/monthly-monitoring/{id}", s.authed(s.handleMonitoring))
	mux.Handle("POST /api/monthly-monitoring/fa-approve", s.authed(s.handleFAApprove))

	mux.Handle("GET /api/files/initiative/{id}", s.authed(s.handleListFiles))
	mux.Handle("POST /api/files/upload/{id}", s.authed(s.handleUpload))
	mux.Handle("GET /api/files/download/{id}", s.authed(s.handleDownload))
	mux.Handle("DELETE /api/files/{id}", s.authed(s.handleDeleteFile))
	return mux
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("demoserver: server already started")
	}
	listener, err := net.Listen("tcp", s.settings.Addr)
	if err != nil {
		return fmt.Errorf("demoserver: listen %s: %w", s.settings.Addr, err)
	}
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.listener = listener
	s.server = server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("demoserver: serve")
		}
	}()
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("demoserver: listening")
	return nil
}

// Shutdown stops accepting connections and saves state when persistence is on.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return s.persist()
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return s.persist()
}

// BaseURL returns the origin of the running server.
func (s *Server) BaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return "http://" + s.settings.Addr
	}
	return "http://" + s.listener.Addr().String()
}

func (s *Server) persist() error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.Save(s.store.Snapshot()); err != nil {
		return fmt.Errorf("demoserver: save state: %w", err)
	}
	return nil
}

// saveAfterMutation writes the snapshot, logging instead of failing the request.
func (s *Server) saveAfterMutation() {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(s.store.Snapshot()); err != nil {
		s.logger.Warn().Err(err).Msg("demoserver: save state")
	}
}
