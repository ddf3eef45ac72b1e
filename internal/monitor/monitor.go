// Package monitor advances simulations through their lifecycle by polling
// the launcher and watching the job directories for changes.
package monitor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"simplane/internal/launcher"
	"simplane/internal/store"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracker is the subset of lifecycle operations the monitor drives.
type Tracker interface {
	Pending(ctx context.Context) (queued, running []*store.Job, err error)
	Unscored(ctx context.Context) ([]*store.Job, error)
	MarkStarted(ctx context.Context, id int, handle string) error
	Complete(ctx context.Context, id int, score *float64) error
}

// Config holds configuration for the monitor.
type Config struct {
	PollInterval time.Duration
	MaxBackoff   time.Duration // Maximum backoff when nothing changes (default: 30s)
	// ScoreFile is the file the solver writes its result to, relative to the
	// job directory.
	ScoreFile string
	// WatchDir is the simulations directory. Empty disables file watching.
	WatchDir string
}

// Monitor runs the poll loop.
type Monitor struct {
	tracker  Tracker
	launcher launcher.Launcher
	files    ArtifactOpener
	config   Config
	logger   *slog.Logger
	tracer   trace.Tracer
	done     chan struct{}
}

// New creates a Monitor.
func New(t Tracker, l launcher.Launcher, files ArtifactOpener, config Config, logger *slog.Logger) *Monitor {
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.ScoreFile == "" {
		config.ScoreFile = store.DefaultSolverScoreFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		tracker:  t,
		launcher: l,
		files:    files,
		config:   config,
		logger:   logger.With("component", "monitor"),
		tracer:   otel.Tracer("simplane/monitor"),
		done:     make(chan struct{}),
	}
}

// Run polls until the context is cancelled. Changes in the watched
// directory trigger an immediate poll; otherwise the interval backs off
// while nothing changes.
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.done)

	m.logger.Info("monitor starting", "launcher", m.launcher.Name(), "poll_interval", m.config.PollInterval)

	pollNow := make(chan struct{}, 1)
	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
			// Already a poll pending
		}
	}

	if m.config.WatchDir != "" {
		watcher, err := m.watch(ctx, triggerPoll)
		if err != nil {
			m.logger.Warn("file watching disabled", "dir", m.config.WatchDir, "error", err)
		} else {
			defer watcher.Close()
		}
	}

	currentBackoff := m.config.PollInterval
	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return ctx.Err()

		case <-time.After(currentBackoff):
			triggerPoll()

		case <-pollNow:
			changed, err := m.Poll(ctx)
			if err != nil {
				m.logger.Error("poll failed", "error", err)
			}
			if changed == 0 {
				currentBackoff *= 2
				if currentBackoff > m.config.MaxBackoff {
					currentBackoff = m.config.MaxBackoff
				}
				continue
			}
			currentBackoff = m.config.PollInterval
		}
	}
}

// Done returns a channel that is closed when Run has returned.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Poll makes one pass over pending and unscored simulations and returns
// the number of transitions it applied. Failures on individual jobs are
// logged and do not stop the pass.
func (m *Monitor) Poll(ctx context.Context) (int, error) {
	ctx, span := m.tracer.Start(ctx, "monitor.Poll")
	defer span.End()

	queued, running, err := m.tracker.Pending(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	changed := 0
	for _, job := range queued {
		state, err := m.launcher.Status(ctx, job.ExternalHandle)
		if err != nil {
			m.logger.Warn("launcher status failed", "simulation_id", job.ID, "handle", job.ExternalHandle, "error", err)
			continue
		}
		if !state.Started() {
			continue
		}
		if err := m.tracker.MarkStarted(ctx, job.ID, job.ExternalHandle); err != nil {
			m.logger.Error("failed to mark started", "simulation_id", job.ID, "error", err)
			continue
		}
		changed++
		if state.Terminal() && m.finish(ctx, job, state) {
			changed++
		}
	}

	for _, job := range running {
		state, err := m.launcher.Status(ctx, job.ExternalHandle)
		if err != nil {
			m.logger.Warn("launcher status failed", "simulation_id", job.ID, "handle", job.ExternalHandle, "error", err)
			continue
		}
		if m.finish(ctx, job, state) {
			changed++
		}
	}

	unscored, err := m.tracker.Unscored(ctx)
	if err != nil {
		span.RecordError(err)
		return changed, err
	}
	for _, job := range unscored {
		score, err := readScore(ctx, m.files, job.ID, m.config.ScoreFile)
		if err != nil {
			m.logger.Warn("failed to read score", "simulation_id", job.ID, "error", err)
			continue
		}
		if score == nil {
			continue
		}
		if err := m.tracker.Complete(ctx, job.ID, score); err != nil {
			m.logger.Error("failed to record late score", "simulation_id", job.ID, "error", err)
			continue
		}
		changed++
	}

	span.SetAttributes(
		attribute.Int("monitor.queued", len(queued)),
		attribute.Int("monitor.running", len(running)),
		attribute.Int("monitor.changed", changed),
	)
	return changed, nil
}

// finish completes a running job when the launcher reports it done. A
// launcher that cannot see the job (dev mode, purged accounting) defers to
// the score file: its appearance means the solver finished.
func (m *Monitor) finish(ctx context.Context, job *store.Job, state launcher.RemoteState) bool {
	var score *float64
	switch state {
	case launcher.RemoteCompleted, launcher.RemoteUnknown:
		s, err := readScore(ctx, m.files, job.ID, m.config.ScoreFile)
		if err != nil {
			m.logger.Warn("failed to read score", "simulation_id", job.ID, "error", err)
			return false
		}
		if s == nil && state == launcher.RemoteUnknown {
			return false
		}
		if s == nil {
			m.logger.Warn("simulation completed without a score file", "simulation_id", job.ID, "score_file", m.config.ScoreFile)
		}
		score = s
	case launcher.RemoteFailed:
		m.logger.Warn("simulation failed on the cluster", "simulation_id", job.ID, "handle", job.ExternalHandle)
	default:
		return false
	}

	if err := m.tracker.Complete(ctx, job.ID, score); err != nil {
		m.logger.Error("failed to complete simulation", "simulation_id", job.ID, "error", err)
		return false
	}
	return true
}

// watch subscribes to the simulations directory and every job directory in
// it. New job directories are added as they appear.
func (m *Monitor) watch(ctx context.Context, trigger func()) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(m.config.WatchDir); err != nil {
		watcher.Close()
		return nil, err
	}

	entries, err := os.ReadDir(m.config.WatchDir)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			m.addWatch(watcher, filepath.Join(m.config.WatchDir, e.Name()))
		}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if m.relevant(watcher, ev) {
					trigger()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Warn("watcher error", "error", err)
			}
		}
	}()
	return watcher, nil
}

func (m *Monitor) addWatch(w *fsnotify.Watcher, dir string) {
	if err := w.Add(dir); err != nil {
		m.logger.Debug("cannot watch job directory", "dir", dir, "error", err)
	}
}

// relevant reports whether an event can change what a poll would do.
func (m *Monitor) relevant(w *fsnotify.Watcher, ev fsnotify.Event) bool {
	if filepath.Dir(ev.Name) == filepath.Clean(m.config.WatchDir) {
		if ev.Has(fsnotify.Create) {
			m.addWatch(w, ev.Name)
		}
		return false
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	switch filepath.Base(ev.Name) {
	case store.SentinelCreated, store.SentinelStarted, store.SentinelFinished, m.config.ScoreFile:
		return true
	}
	return false
}
