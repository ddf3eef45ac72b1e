package tracker

import (
	"context"
	"errors"
	"time"

	"simplane/internal/status"
	"simplane/internal/store"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MarkStarted moves a queued job to running. An empty handle falls back to
// the one recorded at submission.
func (t *Tracker) MarkStarted(ctx context.Context, id int, handle string) error {
	job, err := t.store.ReadJob(ctx, id)
	if err != nil {
		return err
	}
	if handle == "" {
		handle = job.ExternalHandle
	}
	if err := t.store.SetStarted(ctx, id, handle); err != nil {
		return err
	}
	t.logger.Info("simulation started", "simulation_id", id, "handle", handle)
	return nil
}

// Complete records the score, when there is one, and marks the job
// finished. The score is written before the finished marker so a reader
// never sees a finished job that should have a score but does not.
func (t *Tracker) Complete(ctx context.Context, id int, score *float64) error {
	ctx, span := t.tracer.Start(ctx, "tracker.Complete")
	defer span.End()
	span.SetAttributes(attribute.Int("simulation.id", id))

	job, err := t.store.ReadJob(ctx, id)
	if err != nil {
		return t.fail(span, err)
	}
	sentinels, err := t.store.Sentinels(ctx, id)
	if err != nil {
		return t.fail(span, err)
	}

	if score != nil {
		if err := t.store.RecordScore(ctx, id, *score); err != nil {
			return t.fail(span, err)
		}
		job.Score = score
	}
	if !sentinels.Started {
		if err := t.store.SetStarted(ctx, id, job.ExternalHandle); err != nil {
			return t.fail(span, err)
		}
	}
	if err := t.store.SetFinished(ctx, id); err != nil {
		return t.fail(span, err)
	}

	outcome := "scored"
	if score == nil {
		outcome = "unscored"
	}
	t.metrics.completions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	if t.archive != nil {
		// The job directory is authoritative; the archive only mirrors it.
		if err := t.archive.RecordResult(ctx, resultFor(job)); err != nil {
			span.RecordError(err)
			t.logger.Error("failed to archive result", "simulation_id", id, "error", err)
		}
	}

	if score != nil {
		t.logger.Info("simulation finished", "simulation_id", id, "score", *score)
	} else {
		t.logger.Warn("simulation finished without a score", "simulation_id", id)
	}
	return nil
}

func resultFor(job *store.Job) store.Result {
	return store.Result{
		SimulationID: job.ID,
		Name:         job.Name,
		Contact:      job.Contact,
		AvatarID:     job.AvatarID,
		Score:        job.Score,
		Handle:       job.ExternalHandle,
		FinishedAt:   time.Now().UTC(),
	}
}

// MarkReadyToExport queues a job for export.
func (t *Tracker) MarkReadyToExport(ctx context.Context, id int) error {
	if _, err := t.store.ReadJob(ctx, id); err != nil {
		return err
	}
	return t.store.SetReadyToExport(ctx, id)
}

// ClearReadyToExport removes a job from the export queue.
func (t *Tracker) ClearReadyToExport(ctx context.Context, id int) error {
	return t.store.ClearReadyToExport(ctx, id)
}

// NextToExport returns the lowest id waiting for export. ok is false when
// the queue is empty.
func (t *Tracker) NextToExport(ctx context.Context) (id int, ok bool, err error) {
	ids, err := t.store.ReadyToExport(ctx)
	if err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

// State resolves the lifecycle state of a job.
func (t *Tracker) State(ctx context.Context, id int) (status.State, error) {
	return t.resolver.State(ctx, id)
}

// Pending returns queued and running jobs, the set the monitor polls.
func (t *Tracker) Pending(ctx context.Context) (queued, running []*store.Job, err error) {
	if queued, err = t.Queued(ctx); err != nil {
		return nil, nil, err
	}
	if running, err = t.Running(ctx); err != nil {
		return nil, nil, err
	}
	return queued, running, nil
}

// Unscored returns finished jobs that have no score recorded.
func (t *Tracker) Unscored(ctx context.Context) ([]*store.Job, error) {
	finished, err := t.Finished(ctx)
	if err != nil {
		return nil, err
	}
	out := finished[:0]
	for _, j := range finished {
		if j.Score == nil {
			out = append(out, j)
		}
	}
	return out, nil
}

// IsNotFound reports whether err means the job does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
