// Package main is the entry point for the runcoach API server.
//
// It loads configuration, wires the sync pipeline and the read-side
// repositories, mounts the /v1 handlers on the core chassis and serves
// HTTP until SIGINT or SIGTERM, then drains in-flight requests.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"runcoach/internal/api/handlers"
	"runcoach/internal/app"
	"runcoach/internal/config"
	"runcoach/internal/core"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(os.Stdout, cfg.LogLevel, cfg.Environment)
	slog.SetDefault(logger)
	logger.Info("runcoach API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// No code provider: the server must never block on console input.
	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return fmt.Errorf("initialising: %w", err)
	}
	defer a.Close()

	srv, err := newServer(a)
	if err != nil {
		return err
	}
	return serve(ctx, srv, cfg, logger)
}

// newServer mounts the runcoach handlers on the core chassis.
func newServer(a *app.App) (*core.Server, error) {
	srv, err := core.NewServer(a.Config, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	srv.HealthProbes = []core.HealthProbe{core.PingProbe{Label: "database", Target: a.Pool}}
	if a.Metrics.HTTP != nil {
		srv.Metrics = a.Metrics.HTTP
		srv.MetricsHandler = promhttp.HandlerFor(a.Metrics.Registry, promhttp.HandlerOpts{})
	}

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		handlers.NewSyncHandler(a.Syncer, srv.Validator, a.Logger).RegisterRoutes,
		handlers.NewActivityHandler(a.Activities, a.Logger).RegisterRoutes,
		handlers.NewStatsHandler(a.Stats, srv.Validator, a.Logger).RegisterRoutes,
		handlers.NewGoalHandler(a.Goals, srv.Validator, a.Logger).RegisterRoutes,
	)
	srv.MountRoutes()
	return srv, nil
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down
// within the configured grace period.
func serve(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}
