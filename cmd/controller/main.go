// Package main is the entry point for the simplane controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"simplane/internal/app"
	"simplane/internal/config"
	"simplane/internal/controller"
	"simplane/internal/controller/handlers"
	"simplane/internal/logger"
	"simplane/internal/observability"

	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file (default: simplane.yaml in current directory)")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	lg, closeLog, err := logger.New(logger.Options{Level: level.String(), File: cfg.LogFile})
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer closeLog()
	lg = lg.With("service", "simplane-controller")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "simplane-controller", cfg.OTELEndpoint)
	if err != nil {
		lg.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			lg.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		lg.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			lg.Warn("failed to shutdown metrics", "error", err)
		}
	}()

	a, err := app.Build(ctx, cfg, lg)
	if err != nil {
		lg.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Queue depth is sampled only when scraped.
	if _, err := observability.RegisterStateGauges(func(ctx context.Context) (int, int, error) {
		queued, running, err := a.Tracker.Pending(ctx)
		return len(queued), len(running), err
	}); err != nil {
		lg.Warn("failed to register state gauges", "error", err)
	}

	var pinger handlers.Pinger
	if a.Archive != nil {
		pinger = a.Archive
	}
	h := handlers.New(a.Tracker, pinger, lg)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, h, controller.Options{
		InternalToken:   cfg.InternalToken,
		SubmitRateLimit: cfg.SubmitRateLimit,
		SubmitRateBurst: cfg.SubmitRateBurst,
		Metrics:         metricsHandler,
		Logger:          lg,
	})
	if cfg.InternalToken == "" {
		lg.Warn("internal_token is empty; the internal API is disabled and monitors must run in-process")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("simplane controller starting",
			"addr", addr,
			"launcher", a.Launcher.Name(),
			"root_dir", cfg.RootDir,
			"archive", a.Archive != nil,
		)
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		lg.Error("controller stopped", "error", err)
		os.Exit(1)
	}
	lg.Info("controller exited properly")
}
