// Package tracker is the simulation lifecycle facade. It is the only caller
// of the job store's write operations and the only caller of the launcher.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"simplane/internal/avatar"
	"simplane/internal/launcher"
	"simplane/internal/progress"
	"simplane/internal/ranking"
	"simplane/internal/status"
	"simplane/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the tunables the tracker passes to the batch template and the
// visibility rules.
type Config struct {
	NodesPerJob   int
	CoresPerNode  int
	Timesteps     int
	SolverCommand string
	// SolverScoreFile is the file the solver is told to write its result to.
	SolverScoreFile string
	// LeaderboardSize is the number of top-scored jobs that stay on screen
	// and therefore keep their avatar.
	LeaderboardSize int
	Env             map[string]string
}

// Deps are the collaborators a Tracker is built from. Archive is optional.
type Deps struct {
	Store     store.JobStore
	Estimator *progress.Estimator
	Avatars   *avatar.Allocator
	Launcher  launcher.Launcher
	Renderer  *launcher.Renderer
	Archive   store.ResultArchive
	Logger    *slog.Logger
}

// Tracker coordinates submissions, state transitions and queries.
type Tracker struct {
	store     store.JobStore
	resolver  *status.Resolver
	estimator *progress.Estimator
	avatars   *avatar.Allocator
	ranking   *ranking.Service
	launcher  launcher.Launcher
	renderer  *launcher.Renderer
	archive   store.ResultArchive
	cfg       Config
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *trackerMetrics

	// submitMu serializes id and avatar allocation.
	submitMu sync.Mutex
}

type trackerMetrics struct {
	submissions    metric.Int64Counter
	submitFailures metric.Int64Counter
	poolExhausted  metric.Int64Counter
	completions    metric.Int64Counter
}

func newTrackerMetrics() (*trackerMetrics, error) {
	meter := otel.Meter("simplane/tracker")

	var m trackerMetrics
	var err error
	if m.submissions, err = meter.Int64Counter("simplane_submissions_total",
		metric.WithDescription("Simulations accepted by the launcher")); err != nil {
		return nil, err
	}
	if m.submitFailures, err = meter.Int64Counter("simplane_submission_failures_total",
		metric.WithDescription("Simulations the launcher rejected")); err != nil {
		return nil, err
	}
	if m.poolExhausted, err = meter.Int64Counter("simplane_avatar_pool_exhausted_total",
		metric.WithDescription("Submissions refused because every avatar was visible")); err != nil {
		return nil, err
	}
	if m.completions, err = meter.Int64Counter("simplane_completions_total",
		metric.WithDescription("Simulations marked finished")); err != nil {
		return nil, err
	}
	return &m, nil
}

// New creates a Tracker.
func New(deps Deps, cfg Config) (*Tracker, error) {
	if deps.Store == nil || deps.Estimator == nil || deps.Avatars == nil || deps.Launcher == nil || deps.Renderer == nil {
		return nil, errors.New("tracker: store, estimator, avatars, launcher and renderer are required")
	}
	if cfg.NodesPerJob <= 0 {
		cfg.NodesPerJob = 1
	}
	if cfg.CoresPerNode <= 0 {
		cfg.CoresPerNode = 1
	}
	if cfg.SolverScoreFile == "" {
		cfg.SolverScoreFile = store.DefaultSolverScoreFile
	}
	if cfg.LeaderboardSize < 0 {
		cfg.LeaderboardSize = 0
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m, err := newTrackerMetrics()
	if err != nil {
		return nil, fmt.Errorf("tracker metrics: %w", err)
	}

	resolver := status.NewResolver(deps.Store)
	return &Tracker{
		store:     deps.Store,
		resolver:  resolver,
		estimator: deps.Estimator,
		avatars:   deps.Avatars,
		ranking:   ranking.New(resolver, deps.Store),
		launcher:  deps.Launcher,
		renderer:  deps.Renderer,
		archive:   deps.Archive,
		cfg:       cfg,
		logger:    logger.With("component", "tracker"),
		tracer:    otel.Tracer("simplane/tracker"),
		metrics:   m,
	}, nil
}

// SubmitRequest is a new simulation from the capture station.
type SubmitRequest struct {
	Name    string
	Contact string
	Contour []store.Point
}

// SubmitResult describes an accepted simulation.
type SubmitResult struct {
	ID       int
	AvatarID int
	Handle   string
}

// Submit persists a new simulation, hands it to the launcher and marks it
// created. If the launcher fails the job stays in the pre-created state and
// the SubmissionError is returned; it is never retried here.
func (t *Tracker) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	ctx, span := t.tracer.Start(ctx, "tracker.Submit")
	defer span.End()

	t.submitMu.Lock()
	defer t.submitMu.Unlock()

	inUse, err := t.visibleAvatars(ctx)
	if err != nil {
		return nil, t.fail(span, err)
	}
	avatarID, err := t.avatars.Allocate(inUse)
	if err != nil {
		if errors.Is(err, avatar.ErrPoolExhausted) {
			t.metrics.poolExhausted.Add(ctx, 1)
			t.logger.Warn("avatar pool exhausted", "visible", len(inUse), "pool_size", t.avatars.Size())
		}
		return nil, t.fail(span, err)
	}

	id, err := t.store.CreateJob(ctx, req.Name, req.Contact, req.Contour)
	if err != nil {
		return nil, t.fail(span, err)
	}
	span.SetAttributes(attribute.Int("simulation.id", id), attribute.Int("simulation.avatar_id", avatarID))

	if err := t.store.SetAvatar(ctx, id, avatarID); err != nil {
		return nil, t.fail(span, err)
	}
	if err := t.store.WriteOutline(ctx, id, req.Contour); err != nil {
		return nil, t.fail(span, err)
	}

	desc, err := t.writeBatch(ctx, id)
	if err != nil {
		return nil, t.fail(span, err)
	}

	handle, err := t.launcher.Submit(ctx, desc)
	if err != nil {
		t.metrics.submitFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("launcher", t.launcher.Name())))
		t.logger.Error("submission failed; job left uncreated", "simulation_id", id, "launcher", t.launcher.Name(), "error", err)
		return nil, t.fail(span, err)
	}

	if err := t.store.FinalizeSubmission(ctx, id, handle); err != nil {
		return nil, t.fail(span, err)
	}

	t.metrics.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("launcher", t.launcher.Name())))
	t.logger.Info("simulation submitted", "simulation_id", id, "avatar_id", avatarID, "handle", handle)

	return &SubmitResult{ID: id, AvatarID: avatarID, Handle: handle}, nil
}

func (t *Tracker) writeBatch(ctx context.Context, id int) (launcher.Descriptor, error) {
	dir := t.store.Dir(id)
	params := launcher.BatchParams{
		SimulationID:  id,
		Nodes:         t.cfg.NodesPerJob,
		Cores:         t.cfg.NodesPerJob * t.cfg.CoresPerNode,
		Timesteps:     t.cfg.Timesteps,
		WorkDir:       dir,
		OutputPath:    filepath.Join(dir, store.LogFile),
		OutlinePath:   filepath.Join(dir, store.OutlineFile),
		HostsPath:     filepath.Join(dir, store.HostsFile),
		StartedPath:   filepath.Join(dir, store.SentinelStarted),
		ScorePath:     filepath.Join(dir, t.cfg.SolverScoreFile),
		SolverCommand: t.cfg.SolverCommand,
	}

	script, err := t.renderer.Render(params)
	if err != nil {
		return launcher.Descriptor{}, err
	}
	path, err := t.store.WriteArtifact(ctx, id, store.BatchFile, script)
	if err != nil {
		return launcher.Descriptor{}, err
	}

	return launcher.Descriptor{
		SimulationID: id,
		WorkDir:      dir,
		ScriptPath:   path,
		OutputPath:   params.OutputPath,
		Nodes:        params.Nodes,
		Cores:        params.Cores,
		Env:          t.cfg.Env,
	}, nil
}

func (t *Tracker) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// visibleAvatars collects avatars of queued, running and leaderboard jobs.
func (t *Tracker) visibleAvatars(ctx context.Context) ([]int, error) {
	queued, err := t.resolver.QueuedJobs(ctx)
	if err != nil {
		return nil, err
	}
	running, err := t.resolver.RunningJobs(ctx)
	if err != nil {
		return nil, err
	}
	top, err := t.ranking.TopByScore(ctx, t.cfg.LeaderboardSize)
	if err != nil {
		return nil, err
	}

	ids := append(queued, running...)
	for _, j := range top {
		ids = append(ids, j.ID)
	}

	inUse := make([]int, 0, len(ids))
	for _, id := range ids {
		a, err := t.store.Avatar(ctx, id)
		if err != nil {
			return nil, err
		}
		if a > 0 {
			inUse = append(inUse, a)
		}
	}
	return inUse, nil
}

// NextAvatar previews the avatar a submission made now could receive.
// Nothing is reserved.
func (t *Tracker) NextAvatar(ctx context.Context) (int, error) {
	inUse, err := t.visibleAvatars(ctx)
	if err != nil {
		return 0, err
	}
	return t.avatars.Allocate(inUse)
}
