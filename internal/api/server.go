// Package api exposes the subscription management surface and serves the
// price documents verbatim. It mutates subscriber state only through the
// registry, concurrently with the background loops.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	"github.com/rs/zerolog"

	"fuelwatch/internal/config"
	"fuelwatch/internal/notifier"
	"fuelwatch/internal/storage"
)

// Server hosts the subscription HTTP API.
type Server struct {
	cfg      config.HTTPConfig
	store    *storage.Store
	registry *storage.Registry
	notifier notifier.Notifier
	logger   zerolog.Logger
}

// NewServer wires handler dependencies.
func NewServer(cfg config.HTTPConfig, store *storage.Store, registry *storage.Registry, n notifier.Notifier, logger zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		registry: registry,
		notifier: n,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the chi router with the middleware stack and all routes.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	c := corslib.New(corslib.Options{
		AllowedOrigins: s.cfg.CORSAllowOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})
	r.Use(c.Handler)

	if s.cfg.RateLimitEnabled {
		r.Use(rateLimitMiddleware(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow))
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/fuel_prices.json", s.handleDaily)
	r.Get("/data.json", s.handleHistory)

	r.Post("/send_code", s.handleSendCode)
	r.Post("/subscribe", s.handleSubscribe)
	r.Post("/unsubscribe", s.handleUnsubscribe)

	return r
}

// Run serves until ctx is cancelled, then drains with a short shutdown
// grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("subscription api listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
