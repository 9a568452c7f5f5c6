package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/keyvaldb/keyval/lib/fts"
	"github.com/keyvaldb/keyval/lib/kv"
	"github.com/keyvaldb/keyval/rpc/common"
)

// Server is the keyval HTTP API server.
type Server struct {
	config common.ServerConfig
	logger zerolog.Logger
	store  *kv.Store
	fts    *fts.Manager
	router chi.Router
}

// NewServer creates an HTTP server exposing the given engine components.
//
// Usage:
//
//	s := server.NewServer(config, store, indexes, logger)
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewServer(config common.ServerConfig, store *kv.Store, indexes *fts.Manager, logger zerolog.Logger) *Server {
	s := &Server{
		config: config,
		logger: logger,
		store:  store,
		fts:    indexes,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/atomic", s.handleAtomic)
		r.Post("/get", s.handleGet)
		r.Post("/list", s.handleList)
		r.Get("/indexes", s.handleListIndexes)
		r.Post("/indexes", s.handleCreateIndex)
		r.Delete("/indexes", s.handleRemoveIndex)
		r.Post("/search", s.handleSearch)
		r.Get("/metrics", s.handleMetricsJSON)
	})
	r.Get("/metrics", s.handleMetricsPrometheus)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.router = r
	return s
}

// Handler returns the server's HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully.
func (s *Server) Serve() error {
	srv := &http.Server{
		Addr:    s.config.Endpoint,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("endpoint", s.config.Endpoint).Msg("keyval server listening")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		s.logger.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

// handleMetricsPrometheus renders the engine's operation metrics followed by
// Go process metrics, both in Prometheus exposition format.
func (s *Server) handleMetricsPrometheus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.store.Metrics().WritePrometheus(w, "keyval")
	metrics.WriteProcessMetrics(w)
}
