package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/ehr/fieldtriage/internal/domain/assessment"
	"github.com/ehr/fieldtriage/internal/platform/db"
	"github.com/ehr/fieldtriage/internal/platform/middleware"
	"github.com/ehr/fieldtriage/internal/transport"
)

const version = "0.1.0"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the handover API for nearby devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(runServer)
		},
	}
}

// newServer builds the echo instance. pool may be nil when no remote store
// is configured.
func newServer(a *app, pool *pgxpool.Pool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(a.metrics.MetricsMiddleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("256K", "1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{echo.HeaderContentType, middleware.RequestIDHeader, assessment.AuthorHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
			"device":  a.deviceID,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}
	e.GET("/metrics", a.metrics.Handler())

	apiV1 := e.Group("/api/v1")
	if a.cfg.RequestTimeout > 0 {
		apiV1.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))
	}
	h := assessment.NewHandler(a.svc, a.codec, assessment.HandlerOptions{
		DeviceID:      a.deviceID,
		DefaultAuthor: a.cfg.AuthorName,
		QRSize:        a.cfg.QRSize,
		RenderQR:      transport.RenderQR,
	})
	h.RegisterRoutes(apiV1)
	return e
}

func runServer(a *app) error {
	logger := a.logger

	// The remote store is optional for the handover API.
	var pool *pgxpool.Pool
	if a.cfg.DatabaseURL != "" {
		p, err := db.NewPool(context.Background(), a.cfg.DatabaseURL, a.cfg.DBMaxConns, a.cfg.DBMinConns)
		if err != nil {
			logger.Warn().Err(err).Msg("remote store unavailable, serving without /health/db")
		} else {
			pool = p
			defer pool.Close()
			logger.Info().Msg("connected to remote store")
		}
	}

	e := newServer(a, pool)

	// Graceful shutdown
	errc := make(chan error, 1)
	go func() {
		addr := ":" + a.cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		return err
	}

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
