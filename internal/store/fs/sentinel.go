package fs

import (
	"context"
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"simplane/internal/store"
)

// Sentinels stats the lifecycle markers of a job. A missing directory is not
// an error; it simply has no markers.
func (s *Store) Sentinels(ctx context.Context, id int) (store.Sentinels, error) {
	var out store.Sentinels
	var err error

	if out.Created, _, err = s.stat(id, store.SentinelCreated); err != nil {
		return out, err
	}
	if out.Started, out.StartedAt, err = s.stat(id, store.SentinelStarted); err != nil {
		return out, err
	}
	if out.Finished, _, err = s.stat(id, store.SentinelFinished); err != nil {
		return out, err
	}
	return out, nil
}

// SetStarted writes the started marker. An existing marker is left untouched
// so its modification time keeps reflecting the first start.
func (s *Store) SetStarted(ctx context.Context, id int, handle string) error {
	if s.exists(id, store.SentinelStarted) {
		return nil
	}
	_, err := s.WriteArtifact(ctx, id, store.SentinelStarted, []byte(handle))
	return err
}

// SetFinished writes the finished marker.
func (s *Store) SetFinished(ctx context.Context, id int) error {
	return s.touch(id, store.SentinelFinished)
}

// SetReadyToExport marks a job as waiting for export.
func (s *Store) SetReadyToExport(ctx context.Context, id int) error {
	return s.touch(id, store.SentinelExport)
}

// ClearReadyToExport removes the export marker; a missing marker is fine.
func (s *Store) ClearReadyToExport(ctx context.Context, id int) error {
	err := os.Remove(s.path(id, store.SentinelExport))
	if err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return &store.IOError{Op: "clear export marker", ID: id, Err: err}
	}
	return nil
}

// ReadyToExport lists jobs carrying the export marker, lowest id first.
func (s *Store) ReadyToExport(ctx context.Context) ([]int, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*", store.SentinelExport))
	if err != nil {
		return nil, &store.IOError{Op: "list export markers", Err: err}
	}

	ids := make([]int, 0, len(paths))
	for _, p := range paths {
		id, err := strconv.Atoi(filepath.Base(filepath.Dir(p)))
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// touch creates an empty marker file if it does not exist.
func (s *Store) touch(id int, name string) error {
	f, err := os.OpenFile(s.path(id, name), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &store.IOError{Op: "write " + name, ID: id, Err: err}
	}
	if err := f.Close(); err != nil {
		return &store.IOError{Op: "write " + name, ID: id, Err: err}
	}
	return nil
}

func (s *Store) exists(id int, name string) bool {
	ok, _, _ := s.stat(id, name)
	return ok
}

func (s *Store) stat(id int, name string) (bool, time.Time, error) {
	info, err := os.Stat(s.path(id, name))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, &store.IOError{Op: "stat " + name, ID: id, Err: err}
	}
	return true, info.ModTime(), nil
}
