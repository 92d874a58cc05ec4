// Package server wires routes and middleware and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/listing-discovery/internal/core/config"
	"github.com/mohammed-shakir/listing-discovery/internal/core/health"
	"github.com/mohammed-shakir/listing-discovery/internal/core/middleware"
	"github.com/mohammed-shakir/listing-discovery/internal/core/router"
)

type Deps struct {
	Handlers *router.Handlers
	Metrics  http.Handler
	Checks   map[string]health.Check
}

// NewHandler builds the router with every route mounted
func NewHandler(cfg config.Config, logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.CORSOrigin))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Checks, 2*time.Second))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Group(func(api chi.Router) {
		api.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		api.Get("/search", d.Handlers.Search)
		api.Get("/suggest", d.Handlers.Suggest)
		api.Post("/suggest/select", d.Handlers.Select)
		api.Get("/facets", d.Handlers.Facets)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(cfg, logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
