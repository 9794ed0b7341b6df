// Package httpapi exposes the ops surface operators need to run Argus:
// liveness/readiness checks and a Prometheus scrape endpoint. Adapted
// from janitrai-scoop/backend/internal/httpapi/server.go's Echo
// bootstrap — stripped of the delivery product's story/collection JSON
// API (out of scope per spec §1) but keeping its middleware stack,
// structured request logging, and graceful-shutdown shape.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"horse.fit/argus/internal/db"
)

type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server is Argus's ops-only HTTP surface: no business-domain routes, no
// authentication, since nothing outside the operator's own network is
// expected to reach it (spec §1's delivery/HTTP-subscription surface is
// out of scope).
type Server struct {
	pool     *db.Pool
	registry *prometheus.Registry
	logger   zerolog.Logger
	opts     Options
}

func NewServer(pool *db.Pool, registry *prometheus.Registry, logger zerolog.Logger, opts Options) *Server {
	if strings.TrimSpace(opts.Addr) == "" {
		opts.Addr = ":8090"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Server{pool: pool, registry: registry, logger: logger, opts: opts}
}

// Start runs the server until ctx is cancelled, then shuts it down
// gracefully within ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().Err(v.Error).Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Dur("latency", v.Latency).Str("request_id", v.RequestID).Msg("http request failed")
				return nil
			}
			s.logger.Info().Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Dur("latency", v.Latency).Str("request_id", v.RequestID).Msg("http request")
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealthz)
	e.GET("/readyz", s.handleReadyz)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	httpServer := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("ops server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", s.opts.Addr).Msg("argus ops server started")
	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start ops server: %w", err)
	}
	s.logger.Info().Msg("argus ops server stopped")
	return nil
}

// handleHealthz reports process liveness only — no dependency checks.
func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz additionally checks the Persistent Store is reachable, so
// a load balancer or orchestrator can hold traffic until migrations and
// the connection pool are up.
func (s *Server) handleReadyz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := s.pool.QueryRow(ctx, "SELECT 1").Scan(new(int)); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
