// Package progress estimates how far a running simulation has got by reading
// the solver log.
//
// The estimate weighs every solver timestep and every job step equally. That
// is not a physical measure of remaining work; it is a cheap, monotonic
// indicator for the queue display.
package progress

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"simplane/internal/store"
)

const (
	DefaultCoarseMarker = "MAIN:  Time:"
	DefaultStepPattern  = `Starting Step [0-9]`

	maxLineSize = 1024 * 1024
)

var counterPattern = regexp.MustCompile(`^(\d+)/(\d+)$`)

// Config describes the solver run the log belongs to.
type Config struct {
	// TotalTimesteps is assumed when the log has no coarse marker yet.
	TotalTimesteps int
	// SubstepsPerTimestep is the number of job steps the batch script runs.
	SubstepsPerTimestep int
	// CoarseMarker prefixes lines carrying a "completed/total" counter.
	CoarseMarker string
	// StepPattern matches lines that announce a new job step.
	StepPattern string
}

// Counts are the raw counters extracted from a log.
type Counts struct {
	CompletedSteps    int
	TotalSteps        int
	CompletedSubsteps int
}

// ParseError describes a log line that could not be interpreted. It is only
// logged; estimation falls back to zero progress.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("progress: line %d: %s", e.Line, e.Reason)
}

// LogOpener opens a job's solver log.
type LogOpener interface {
	OpenArtifact(ctx context.Context, id int, name string) (io.ReadCloser, error)
}

// Estimator turns solver logs into a completion percentage.
type Estimator struct {
	cfg    Config
	step   *regexp.Regexp
	logger *slog.Logger
}

// New creates an Estimator. It fails only when StepPattern does not compile.
func New(cfg Config, logger *slog.Logger) (*Estimator, error) {
	if cfg.CoarseMarker == "" {
		cfg.CoarseMarker = DefaultCoarseMarker
	}
	if cfg.StepPattern == "" {
		cfg.StepPattern = DefaultStepPattern
	}
	step, err := regexp.Compile(cfg.StepPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid step pattern: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{cfg: cfg, step: step, logger: logger}, nil
}

// Parse scans a log and extracts counters. A non-nil ParseError means the
// coarse counter was unusable and has been reset; Counts is still valid.
func (e *Estimator) Parse(r io.Reader) (Counts, error) {
	counts := Counts{TotalSteps: e.cfg.TotalTimesteps}

	var lastMarker string
	var lastMarkerLine int

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.Contains(line, e.cfg.CoarseMarker) {
			lastMarker = line
			lastMarkerLine = lineNo
		}
		if e.step.MatchString(line) {
			counts.CompletedSubsteps++
		}
	}
	if err := sc.Err(); err != nil {
		return Counts{TotalSteps: e.cfg.TotalTimesteps}, &ParseError{Line: lineNo + 1, Reason: err.Error()}
	}

	if lastMarker == "" {
		return counts, nil
	}

	completed, total, ok := parseCounter(lastMarker, e.cfg.CoarseMarker)
	if !ok {
		return counts, &ParseError{Line: lastMarkerLine, Reason: "malformed step counter"}
	}
	counts.CompletedSteps = completed
	counts.TotalSteps = total
	return counts, nil
}

// parseCounter finds the first "c/t" token after the marker.
func parseCounter(line, marker string) (int, int, bool) {
	_, rest, _ := strings.Cut(line, marker)
	for _, field := range strings.Fields(rest) {
		m := counterPattern.FindStringSubmatch(field)
		if m == nil {
			continue
		}
		completed, err1 := strconv.Atoi(m[1])
		total, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return completed, total, true
	}
	return 0, 0, false
}

// Percentage combines counters into a value in [0, 100].
//
// When the solver reports every timestep done, the final job step is still
// pending bookkeeping, so both step counters drop by one and the result is
// held at 99 at most. A live log therefore never reads 100.
func Percentage(c Counts, substepsPerTimestep int) int {
	steps, total := c.CompletedSteps, c.TotalSteps

	edge := steps == total
	if edge {
		steps--
		total--
	}

	done := steps + c.CompletedSubsteps
	todo := total + substepsPerTimestep
	if todo <= 0 || done <= 0 {
		return 0
	}

	pct := 100 * done / todo
	switch {
	case edge && pct >= 100:
		return 99
	case pct > 100:
		return 100
	}
	return pct
}

// Estimate parses a log and returns the percentage, degrading to the counts
// that could be read when parsing fails.
func (e *Estimator) Estimate(r io.Reader) int {
	counts, err := e.Parse(r)
	if err != nil {
		e.logger.Warn("Unable to parse solver log", "error", err)
	}
	return Percentage(counts, e.cfg.SubstepsPerTimestep)
}

// ForJob estimates progress from a job's log in the store. A log that does
// not exist yet, or cannot be read, yields 0. Other filesystem errors are
// returned.
func (e *Estimator) ForJob(ctx context.Context, logs LogOpener, id int) (int, error) {
	rc, err := logs.OpenArtifact(ctx, id, store.LogFile)
	if err != nil {
		switch {
		case errors.Is(err, iofs.ErrNotExist):
			return 0, nil
		case errors.Is(err, iofs.ErrPermission):
			e.logger.Warn("Solver log is not readable", "simulation_id", id, "error", err)
			return 0, nil
		default:
			return 0, err
		}
	}
	defer rc.Close()

	return e.Estimate(rc), nil
}
