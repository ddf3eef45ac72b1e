// Package main is the entry point for the simplane monitor.
// The monitor follows submitted simulations on the cluster and drives their
// lifecycle transitions.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"simplane/internal/app"
	"simplane/internal/config"
	"simplane/internal/logger"
	"simplane/internal/monitor"
	"simplane/internal/observability"

	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file (default: simplane.yaml in current directory)")
	metricsAddr := flag.String("metrics-addr", ":6162", "Address for the monitor's /metrics endpoint")
	local := flag.Bool("local", false, "Drive transitions in-process instead of through the controller")
	flag.Parse()

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
	lg = lg.With("service", "simplane-monitor")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "simplane-monitor", cfg.OTELEndpoint)
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

	var tr monitor.Tracker = a.Tracker
	if !*local {
		if cfg.InternalToken == "" {
			lg.Error("internal_token is required unless --local is set")
			os.Exit(1)
		}
		tr = monitor.NewControllerClient(cfg.ControllerURL, cfg.InternalToken)
		lg.Info("reporting to controller", "controller_url", cfg.ControllerURL)
	}

	mon := monitor.New(tr, a.Launcher, a.Store, monitor.Config{
		PollInterval: cfg.MonitorPollInterval,
		MaxBackoff:   cfg.MonitorMaxBackoff,
		ScoreFile:    cfg.ScoreFile,
		WatchDir:     filepath.Join(cfg.RootDir, "simulations"),
	}, lg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := mon.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("monitor metrics listening", "addr", *metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		lg.Error("monitor stopped", "error", err)
		os.Exit(1)
	}
	<-mon.Done()
	lg.Info("monitor exited properly")
}
