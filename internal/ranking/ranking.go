// Package ranking orders finished simulations for the leaderboard and the
// history view.
package ranking

import (
	"context"
	"errors"
	"sort"

	"simplane/internal/store"
)

// FinishedLister lists finished simulation ids.
type FinishedLister interface {
	FinishedJobs(ctx context.Context) ([]int, error)
}

// JobReader loads a simulation.
type JobReader interface {
	ReadJob(ctx context.Context, id int) (*store.Job, error)
}

// Service answers ranking queries. It reads the store on every call because
// the leaderboard has to reflect new scores immediately.
type Service struct {
	finished FinishedLister
	jobs     JobReader
}

// New creates a ranking Service.
func New(finished FinishedLister, jobs JobReader) *Service {
	return &Service{finished: finished, jobs: jobs}
}

// TopByScore returns up to n finished jobs with a recorded score, lowest
// drag first. Equal scores are ordered by id.
func (s *Service) TopByScore(ctx context.Context, n int) ([]*store.Job, error) {
	jobs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	scored := jobs[:0]
	for _, j := range jobs {
		if j.Score != nil {
			scored = append(scored, j)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := *scored[i].Score, *scored[j].Score
		if a != b {
			return a < b
		}
		return scored[i].ID < scored[j].ID
	})

	return truncate(scored, n), nil
}

// MostRecentFinished returns up to n finished jobs, highest id first.
func (s *Service) MostRecentFinished(ctx context.Context, n int) ([]*store.Job, error) {
	jobs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID > jobs[j].ID })
	return truncate(jobs, n), nil
}

// load reads every finished job, skipping ids that have no valid record.
func (s *Service) load(ctx context.Context) ([]*store.Job, error) {
	ids, err := s.finished.FinishedJobs(ctx)
	if err != nil {
		return nil, err
	}

	jobs := make([]*store.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.jobs.ReadJob(ctx, id)
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

func truncate(jobs []*store.Job, n int) []*store.Job {
	if n < 0 {
		n = 0
	}
	if len(jobs) > n {
		jobs = jobs[:n]
	}
	return jobs
}
