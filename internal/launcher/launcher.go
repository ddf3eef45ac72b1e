// Package launcher submits simulation batch jobs to an execution backend and
// reports their remote state.
package launcher

import (
	"context"
	"fmt"
	"sort"
)

// Launcher defines the interface for execution backends.
// Implementations include Slurm, Docker, Kubernetes and a no-op dev backend.
type Launcher interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// Submit hands a rendered batch descriptor to the backend and returns
	// the external handle the backend assigned.
	Submit(ctx context.Context, d Descriptor) (string, error)

	// Status reports what the backend knows about a handle.
	Status(ctx context.Context, handle string) (RemoteState, error)
}

// Descriptor contains the parameters for submitting a simulation.
type Descriptor struct {
	SimulationID int
	// WorkDir is the job directory. Backends run the script from it.
	WorkDir string
	// ScriptPath is the rendered batch file inside WorkDir.
	ScriptPath string
	// OutputPath is where the solver log must be written.
	OutputPath string
	Nodes      int
	Cores      int
	Env        map[string]string
}

// RemoteState is the execution state reported by a backend.
type RemoteState string

const (
	RemoteUnknown   RemoteState = "unknown"
	RemotePending   RemoteState = "pending"
	RemoteRunning   RemoteState = "running"
	RemoteCompleted RemoteState = "completed"
	RemoteFailed    RemoteState = "failed"
)

// Started reports whether the backend has begun executing the job.
func (s RemoteState) Started() bool {
	return s == RemoteRunning || s == RemoteCompleted || s == RemoteFailed
}

// Terminal reports whether the job will not change state again.
func (s RemoteState) Terminal() bool {
	return s == RemoteCompleted || s == RemoteFailed
}

// SubmissionError is returned when a backend rejects a job or its output
// cannot be understood. The job directory is left in place for inspection.
type SubmissionError struct {
	Launcher string
	Output   string
	Err      error
}

func (e *SubmissionError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s submission failed: %v: %s", e.Launcher, e.Err, e.Output)
	}
	return fmt.Sprintf("%s submission failed: %v", e.Launcher, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func envList(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, m[k]))
	}
	return env
}
