// Package app assembles the tracker and its collaborators from configuration.
// Both the controller and an in-process monitor are built from it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"simplane/internal/avatar"
	"simplane/internal/config"
	"simplane/internal/launcher"
	"simplane/internal/progress"
	"simplane/internal/store/fs"
	"simplane/internal/store/postgres"
	"simplane/internal/tracker"
)

// App holds the wired components.
type App struct {
	Store    *fs.Store
	Launcher launcher.Launcher
	// Archive is nil when no database is configured.
	Archive *postgres.Store
	Tracker *tracker.Tracker
}

// NewLauncher selects the execution backend named in the config.
func NewLauncher(cfg *config.Config, logger *slog.Logger) (launcher.Launcher, error) {
	switch cfg.Launcher {
	case "slurm":
		return launcher.NewSlurmLauncher(cfg.SlurmWorkDir, nil), nil
	case "docker":
		return launcher.NewDockerLauncher(cfg.DockerImage)
	case "kubernetes":
		return launcher.NewKubernetesLauncher(launcher.KubernetesConfig{
			Namespace:      cfg.KubernetesNamespace,
			ServiceAccount: cfg.KubernetesServiceAccount,
			Image:          cfg.DockerImage,
			VolumeClaim:    cfg.KubernetesVolumeClaim,
			MountPath:      cfg.RootDir,
			CPULimit:       cfg.KubernetesCPULimit,
			MemoryLimit:    cfg.KubernetesMemoryLimit,
		}, logger)
	case "dev":
		return launcher.DevLauncher{}, nil
	default:
		return nil, fmt.Errorf("unknown launcher %q", cfg.Launcher)
	}
}

// Build opens the job store and, when configured, the results archive, then
// creates the tracker.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	st, err := fs.New(fs.Options{
		Root:        cfg.RootDir,
		FrameHeight: cfg.FrameHeight,
		CacheSize:   cfg.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	l, err := NewLauncher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create %s launcher: %w", cfg.Launcher, err)
	}

	est, err := progress.New(progress.Config{
		TotalTimesteps:      cfg.NumberTimesteps,
		SubstepsPerTimestep: cfg.JobStepCount,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create progress estimator: %w", err)
	}

	renderer, err := launcher.NewRenderer(cfg.BatchTemplate)
	if err != nil {
		return nil, fmt.Errorf("load batch template: %w", err)
	}

	a := &App{Store: st, Launcher: l}
	deps := tracker.Deps{
		Store:     st,
		Estimator: est,
		Avatars:   avatar.New(cfg.AvatarPoolSize, rand.NewPCG(rand.Uint64(), rand.Uint64())),
		Launcher:  l,
		Renderer:  renderer,
		Logger:    logger,
	}

	if cfg.DatabaseURL != "" {
		archive, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to results archive: %w", err)
		}
		a.Archive = archive
		deps.Archive = archive
	}

	a.Tracker, err = tracker.New(deps, tracker.Config{
		NodesPerJob:     cfg.NodesPerJob,
		CoresPerNode:    cfg.CoresPerNode,
		Timesteps:       cfg.NumberTimesteps,
		SolverCommand:   cfg.SolverCommand,
		SolverScoreFile: cfg.ScoreFile,
		LeaderboardSize: cfg.LeaderboardSize,
	})
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	return a, nil
}

// Close releases the archive connection.
func (a *App) Close() error {
	if a.Archive != nil {
		return a.Archive.Close()
	}
	return nil
}
