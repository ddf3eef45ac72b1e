package fs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"strconv"
	"strings"

	"simplane/internal/store"
)

// WriteOutline persists the contour as "x y" lines with the vertical axis
// mirrored against the frame height, which is the solver's convention.
func (s *Store) WriteOutline(ctx context.Context, id int, contour []store.Point) error {
	var buf bytes.Buffer
	for _, p := range contour {
		fmt.Fprintf(&buf, "%d %d\n", p.X, s.frameHeight-p.Y)
	}
	_, err := s.WriteArtifact(ctx, id, store.OutlineFile, buf.Bytes())
	return err
}

// ReadOutline reads the outline file and mirrors it back to frame coordinates.
func (s *Store) ReadOutline(ctx context.Context, id int) ([]store.Point, error) {
	data, err := os.ReadFile(s.path(id, store.OutlineFile))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, &store.IOError{Op: "read outline", ID: id, Err: err}
	}

	var points []store.Point
	sc := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, &store.IOError{Op: "read outline", ID: id, Err: fmt.Errorf("line %d: expected 2 fields, got %d", line, len(fields))}
		}
		x, errX := strconv.Atoi(fields[0])
		y, errY := strconv.Atoi(fields[1])
		if errX != nil || errY != nil {
			return nil, &store.IOError{Op: "read outline", ID: id, Err: fmt.Errorf("line %d: non-integer coordinate", line)}
		}
		points = append(points, store.Point{X: x, Y: s.frameHeight - y})
	}
	if err := sc.Err(); err != nil {
		return nil, &store.IOError{Op: "read outline", ID: id, Err: err}
	}
	return points, nil
}
