package launcher

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

var submittedRe = regexp.MustCompile(`^Submitted batch job ([0-9]+)`)

// CommandRunner executes a command in dir and returns its combined output.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// SlurmLauncher submits batch files with sbatch and polls squeue and sacct.
type SlurmLauncher struct {
	workDir string
	run     CommandRunner
}

// NewSlurmLauncher creates a launcher that runs the Slurm client tools from
// workDir. A nil runner uses os/exec.
func NewSlurmLauncher(workDir string, run CommandRunner) *SlurmLauncher {
	if run == nil {
		run = execRunner
	}
	return &SlurmLauncher{workDir: workDir, run: run}
}

func (s *SlurmLauncher) Name() string { return "slurm" }

// Submit runs sbatch on the descriptor's batch file and parses the job id
// from its acknowledgement.
func (s *SlurmLauncher) Submit(ctx context.Context, d Descriptor) (string, error) {
	dir := s.workDir
	if dir == "" {
		dir = d.WorkDir
	}

	out, err := s.run(ctx, dir, "sbatch", d.ScriptPath)
	output := strings.TrimSpace(string(out))
	if err != nil {
		return "", &SubmissionError{Launcher: s.Name(), Output: output, Err: err}
	}

	handle, ok := parseSubmitted(out)
	if !ok {
		return "", &SubmissionError{
			Launcher: s.Name(),
			Output:   output,
			Err:      errors.New("unrecognised sbatch output"),
		}
	}
	return handle, nil
}

func parseSubmitted(out []byte) (string, bool) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if m := submittedRe.FindStringSubmatch(strings.TrimSpace(sc.Text())); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// Status asks squeue first. Jobs that have left the queue are looked up in
// the accounting database.
func (s *SlurmLauncher) Status(ctx context.Context, handle string) (RemoteState, error) {
	out, err := s.run(ctx, s.workDir, "squeue", "-h", "-j", handle, "-o", "%T")
	if err == nil {
		if state := firstField(out); state != "" {
			return slurmState(state), nil
		}
	}
	// squeue exits non-zero for ids it no longer tracks.

	out, err = s.run(ctx, s.workDir, "sacct", "-n", "-X", "-P", "-j", handle, "-o", "State")
	if err != nil {
		return RemoteUnknown, fmt.Errorf("sacct %s: %w", handle, err)
	}
	state := firstField(out)
	if state == "" {
		return RemoteUnknown, nil
	}
	return slurmState(state), nil
}

func firstField(out []byte) string {
	for _, line := range strings.Split(string(out), "\n") {
		if f := strings.Fields(line); len(f) > 0 {
			return f[0]
		}
	}
	return ""
}

func slurmState(s string) RemoteState {
	switch strings.TrimSuffix(strings.ToUpper(s), "+") {
	case "PENDING", "CONFIGURING", "REQUEUED", "RESIZING":
		return RemotePending
	case "RUNNING", "COMPLETING", "SUSPENDED", "STAGE_OUT":
		return RemoteRunning
	case "COMPLETED":
		return RemoteCompleted
	case "FAILED", "CANCELLED", "TIMEOUT", "NODE_FAIL", "OUT_OF_MEMORY",
		"PREEMPTED", "BOOT_FAIL", "DEADLINE":
		return RemoteFailed
	default:
		return RemoteUnknown
	}
}
