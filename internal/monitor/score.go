package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"strconv"
	"strings"
)

// ArtifactOpener opens files in a job directory.
type ArtifactOpener interface {
	OpenArtifact(ctx context.Context, id int, name string) (io.ReadCloser, error)
}

// ParseScore returns the last numeric field of the last non-empty line.
// ok is false when the input holds no such value.
func ParseScore(r io.Reader) (score float64, ok bool, err error) {
	var last string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	if err := sc.Err(); err != nil {
		return 0, false, err
	}

	fields := strings.Fields(last)
	for i := len(fields) - 1; i >= 0; i-- {
		if v, err := strconv.ParseFloat(fields[i], 64); err == nil {
			return v, true, nil
		}
	}
	return 0, false, nil
}

// readScore loads the solver's score file for a job. A missing or
// unparsable file yields nil.
func readScore(ctx context.Context, files ArtifactOpener, id int, name string) (*float64, error) {
	rc, err := files.OpenArtifact(ctx, id, name)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	v, ok, err := ParseScore(rc)
	if err != nil {
		return nil, fmt.Errorf("read score for simulation %d: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	return &v, nil
}
