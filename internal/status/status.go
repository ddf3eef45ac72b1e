// Package status derives a simulation's lifecycle state from its sentinels.
//
// All callers go through Resolve instead of inspecting marker files, so the
// mapping from markers to states lives in one table.
package status

import (
	"context"
	"sort"

	"simplane/internal/store"
)

// State is the resolved lifecycle state of a simulation.
type State string

const (
	StateAbsent   State = "absent"
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateFinished State = "finished"
)

// Resolve maps observed sentinels to a state. Markers are monotonic, so any
// prefix of writes maps to a valid state. Combinations that normal operation
// never produces (started without created, finished without started) resolve
// to the furthest state reached rather than failing, since markers can be
// touched by hand.
func Resolve(s store.Sentinels) State {
	switch {
	case s.Finished:
		return StateFinished
	case s.Started:
		return StateRunning
	case s.Created:
		return StateQueued
	default:
		return StateAbsent
	}
}

// SentinelReader is the subset of the job store the resolver needs.
type SentinelReader interface {
	ListIDs(ctx context.Context) ([]int, error)
	Sentinels(ctx context.Context, id int) (store.Sentinels, error)
}

// Resolver answers state queries against the job store. It holds no state
// between calls.
type Resolver struct {
	store SentinelReader
}

// NewResolver creates a Resolver.
func NewResolver(s SentinelReader) *Resolver {
	return &Resolver{store: s}
}

// State resolves the state of a single job.
func (r *Resolver) State(ctx context.Context, id int) (State, error) {
	s, err := r.store.Sentinels(ctx, id)
	if err != nil {
		return StateAbsent, err
	}
	return Resolve(s), nil
}

type observed struct {
	id        int
	sentinels store.Sentinels
}

func (r *Resolver) collect(ctx context.Context, want State) ([]observed, error) {
	ids, err := r.store.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	var out []observed
	for _, id := range ids {
		s, err := r.store.Sentinels(ctx, id)
		if err != nil {
			return nil, err
		}
		if Resolve(s) == want {
			out = append(out, observed{id: id, sentinels: s})
		}
	}
	return out, nil
}

// QueuedJobs returns queued ids, newest submission first.
func (r *Resolver) QueuedJobs(ctx context.Context) ([]int, error) {
	jobs, err := r.collect(ctx, StateQueued)
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].id > jobs[j].id })
	return ids(jobs), nil
}

// RunningJobs returns running ids, most recently started first.
// Ties on the start time fall back to descending id.
func (r *Resolver) RunningJobs(ctx context.Context) ([]int, error) {
	jobs, err := r.collect(ctx, StateRunning)
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool {
		a, b := jobs[i].sentinels.StartedAt, jobs[j].sentinels.StartedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return jobs[i].id > jobs[j].id
	})
	return ids(jobs), nil
}

// FinishedJobs returns finished ids, highest id first.
func (r *Resolver) FinishedJobs(ctx context.Context) ([]int, error) {
	jobs, err := r.collect(ctx, StateFinished)
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].id > jobs[j].id })
	return ids(jobs), nil
}

func ids(jobs []observed) []int {
	out := make([]int, len(jobs))
	for i, j := range jobs {
		out[i] = j.id
	}
	return out
}
