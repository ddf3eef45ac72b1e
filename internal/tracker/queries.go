package tracker

import (
	"bufio"
	"context"
	"errors"
	iofs "io/fs"

	"simplane/internal/status"
	"simplane/internal/store"
)

// JobView is a job together with its derived state.
type JobView struct {
	*store.Job
	State         status.State
	Progress      int
	Nodes         []string
	ReadyToExport bool
}

// Job returns a created job with its state, progress and node list.
func (t *Tracker) Job(ctx context.Context, id int) (*JobView, error) {
	job, err := t.store.ReadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	state, err := t.resolver.State(ctx, id)
	if err != nil {
		return nil, err
	}
	pct, err := t.progressFor(ctx, id, state)
	if err != nil {
		return nil, err
	}
	nodes, err := t.store.Nodes(ctx, id)
	if err != nil {
		return nil, err
	}
	exports, err := t.store.ReadyToExport(ctx)
	if err != nil {
		return nil, err
	}

	view := &JobView{Job: job, State: state, Progress: pct, Nodes: nodes}
	for _, e := range exports {
		if e == id {
			view.ReadyToExport = true
			break
		}
	}
	return view, nil
}

// Queued returns queued jobs, newest first.
func (t *Tracker) Queued(ctx context.Context) ([]*store.Job, error) {
	ids, err := t.resolver.QueuedJobs(ctx)
	if err != nil {
		return nil, err
	}
	return t.readAll(ctx, ids)
}

// Running returns running jobs, most recently started first.
func (t *Tracker) Running(ctx context.Context) ([]*store.Job, error) {
	ids, err := t.resolver.RunningJobs(ctx)
	if err != nil {
		return nil, err
	}
	return t.readAll(ctx, ids)
}

// Finished returns finished jobs, highest id first.
func (t *Tracker) Finished(ctx context.Context) ([]*store.Job, error) {
	ids, err := t.resolver.FinishedJobs(ctx)
	if err != nil {
		return nil, err
	}
	return t.readAll(ctx, ids)
}

func (t *Tracker) readAll(ctx context.Context, ids []int) ([]*store.Job, error) {
	jobs := make([]*store.Job, 0, len(ids))
	for _, id := range ids {
		job, err := t.store.ReadJob(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Progress returns the estimated completion percentage. Finished jobs are
// always 100.
func (t *Tracker) Progress(ctx context.Context, id int) (int, error) {
	state, err := t.resolver.State(ctx, id)
	if err != nil {
		return 0, err
	}
	return t.progressFor(ctx, id, state)
}

func (t *Tracker) progressFor(ctx context.Context, id int, state status.State) (int, error) {
	switch state {
	case status.StateAbsent:
		return 0, store.ErrNotFound
	case status.StateFinished:
		return 100, nil
	default:
		return t.estimator.ForJob(ctx, t.store, id)
	}
}

// TopByScore returns the n lowest-drag finished jobs.
func (t *Tracker) TopByScore(ctx context.Context, n int) ([]*store.Job, error) {
	return t.ranking.TopByScore(ctx, n)
}

// MostRecent returns the n most recent finished jobs.
func (t *Tracker) MostRecent(ctx context.Context, n int) ([]*store.Job, error) {
	return t.ranking.MostRecentFinished(ctx, n)
}

// Archive lists archived results, newest first. It returns nil when no
// archive is configured.
func (t *Tracker) Archive(ctx context.Context, limit int) ([]store.Result, error) {
	if t.archive == nil {
		return nil, nil
	}
	return t.archive.ListResults(ctx, limit)
}

// LogTail returns up to n trailing lines of the job log. A log that does not
// exist yet yields no lines.
func (t *Tracker) LogTail(ctx context.Context, id, n int) ([]string, error) {
	if _, err := t.store.ReadJob(ctx, id); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []string{}, nil
	}

	rc, err := t.store.OpenArtifact(ctx, id, store.LogFile)
	if errors.Is(err, iofs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	ring := make([]string, 0, n)
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, &store.IOError{Op: "read log", ID: id, Err: err}
	}
	return ring, nil
}
