// Package fs implements the job store on a directory tree of sentinel files.
//
// Each simulation lives in <root>/simulations/<id>/. The layout is a durable
// contract with the batch script and any out-of-process reader, so file names
// and formats must not change.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"simplane/internal/store"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"
)

const (
	defaultFrameHeight = 480
	defaultCacheSize   = 20
	maxCreateAttempts  = 100
)

// Options configures a Store.
type Options struct {
	// Root is the base directory; jobs are kept under Root/simulations.
	Root string
	// FrameHeight is the vertical extent used to mirror outline coordinates.
	FrameHeight int
	// CacheSize bounds the number of jobs kept in the read-through cache.
	CacheSize int
}

// Store is the filesystem-backed job store.
// It is safe for concurrent use provided each job directory has one writer.
type Store struct {
	dir         string
	frameHeight int
	cache       *lru.Cache[int, *store.Job]
	now         func() time.Time
}

var _ store.JobStore = (*Store)(nil)

// New creates the simulations directory if needed and returns a Store.
func New(opts Options) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("store root directory is required")
	}
	if opts.FrameHeight <= 0 {
		opts.FrameHeight = defaultFrameHeight
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}

	dir := filepath.Join(opts.Root, "simulations")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &store.IOError{Op: "create store directory", Err: err}
	}

	cache, err := lru.New[int, *store.Job](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create job cache: %w", err)
	}

	return &Store{
		dir:         dir,
		frameHeight: opts.FrameHeight,
		cache:       cache,
		now:         time.Now,
	}, nil
}

// Dir returns the directory for a job.
func (s *Store) Dir(id int) string {
	return filepath.Join(s.dir, strconv.Itoa(id))
}

func (s *Store) path(id int, name string) string {
	return filepath.Join(s.Dir(id), name)
}

// CreateJob allocates max(existing)+1 and writes the metadata blob.
// Directory creation is exclusive, so a concurrent creator that claimed the
// same id pushes this call to the next one.
func (s *Store) CreateJob(ctx context.Context, name, contact string, contour []store.Point) (int, error) {
	ids, err := s.ListIDs(ctx)
	if err != nil {
		return 0, err
	}

	next := 1
	if len(ids) > 0 {
		next = ids[len(ids)-1] + 1
	}

	var id int
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		err := os.Mkdir(s.Dir(next), 0o755)
		if err == nil {
			id = next
			break
		}
		if !errors.Is(err, iofs.ErrExist) {
			return 0, &store.IOError{Op: "create job directory", ID: next, Err: err}
		}
		next++
	}
	if id == 0 {
		return 0, &store.IOError{Op: "allocate id", Err: fmt.Errorf("gave up after %d attempts", maxCreateAttempts)}
	}

	job := &store.Job{
		ID:        id,
		Name:      name,
		Contact:   contact,
		Contour:   append([]store.Point(nil), contour...),
		CreatedAt: s.now().UTC(),
	}
	if err := s.writeMetadata(job); err != nil {
		// A directory without a created marker is invisible, removal is best effort.
		_ = os.RemoveAll(s.Dir(id))
		return 0, err
	}

	return id, nil
}

// FinalizeSubmission stores the external handle and marks the job created.
// The created marker is written last so readers never see a created job
// without its data.
func (s *Store) FinalizeSubmission(ctx context.Context, id int, handle string) error {
	job, err := s.readMetadata(id)
	if err != nil {
		return err
	}
	job.ExternalHandle = handle

	if _, err := s.WriteArtifact(ctx, id, store.HandleFile, []byte(handle)); err != nil {
		return err
	}
	if err := s.writeMetadata(job); err != nil {
		return err
	}
	s.cache.Remove(id)

	return s.touch(id, store.SentinelCreated)
}

// ReadJob loads a created job. Only the metadata blob is cached; the score
// and avatar files may be written by other processes and are read fresh.
func (s *Store) ReadJob(ctx context.Context, id int) (*store.Job, error) {
	created, _, err := s.stat(id, store.SentinelCreated)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, store.ErrNotFound
	}

	cached, ok := s.cache.Get(id)
	if !ok {
		cached, err = s.readMetadata(id)
		if err != nil {
			return nil, err
		}
		// The directory name wins over the blob in case files were moved by hand.
		cached.ID = id
		s.cache.Add(id, cached)
	}

	job := cloneJob(cached)
	if job.Score, err = s.readScore(id); err != nil {
		return nil, err
	}
	if job.AvatarID, err = s.Avatar(ctx, id); err != nil {
		return nil, err
	}
	return job, nil
}

// RecordScore overwrites the score file.
func (s *Store) RecordScore(ctx context.Context, id int, score float64) error {
	data := strconv.FormatFloat(score, 'g', -1, 64)
	if _, err := s.WriteArtifact(ctx, id, store.ScoreFile, []byte(data)); err != nil {
		return err
	}
	s.cache.Remove(id)
	return nil
}

// ListIDs returns the ids of all job directories in ascending order.
// Entries whose names are not positive integers are skipped.
func (s *Store) ListIDs(ctx context.Context) ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, &store.IOError{Op: "list jobs", Err: err}
	}

	ids := make([]int, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.Atoi(e.Name())
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	return ids, nil
}

// SetAvatar writes the avatar file.
func (s *Store) SetAvatar(ctx context.Context, id, avatarID int) error {
	if _, err := s.WriteArtifact(ctx, id, store.AvatarFile, []byte(strconv.Itoa(avatarID))); err != nil {
		return err
	}
	s.cache.Remove(id)
	return nil
}

// Avatar reads the avatar file, returning 0 if it does not exist.
func (s *Store) Avatar(ctx context.Context, id int) (int, error) {
	data, err := os.ReadFile(s.path(id, store.AvatarFile))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return 0, nil
		}
		return 0, &store.IOError{Op: "read avatar", ID: id, Err: err}
	}

	line, _, _ := strings.Cut(string(data), "\n")
	avatarID, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, nil
	}
	return avatarID, nil
}

// WriteArtifact writes data to a temporary file and renames it into place.
func (s *Store) WriteArtifact(ctx context.Context, id int, name string, data []byte) (string, error) {
	target := s.path(id, name)
	if err := writeAtomic(target, data); err != nil {
		return "", &store.IOError{Op: "write " + name, ID: id, Err: err}
	}
	return target, nil
}

// OpenArtifact opens a file from the job directory.
// A missing file yields an error matching fs.ErrNotExist.
func (s *Store) OpenArtifact(ctx context.Context, id int, name string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(id, name))
	if err != nil {
		return nil, &store.IOError{Op: "open " + name, ID: id, Err: err}
	}
	return f, nil
}

// Nodes reads the host list written by the batch script.
func (s *Store) Nodes(ctx context.Context, id int) ([]string, error) {
	data, err := os.ReadFile(s.path(id, store.HostsFile))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, &store.IOError{Op: "read hosts", ID: id, Err: err}
	}

	var nodes []string
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		nodes = append(nodes, fields[0])
	}
	return nodes, nil
}

func (s *Store) writeMetadata(job *store.Job) error {
	data, err := yaml.Marshal(job)
	if err != nil {
		return &store.IOError{Op: "encode metadata", ID: job.ID, Err: err}
	}
	if err := writeAtomic(s.path(job.ID, store.MetadataFile), data); err != nil {
		return &store.IOError{Op: "write metadata", ID: job.ID, Err: err}
	}
	return nil
}

func (s *Store) readMetadata(id int) (*store.Job, error) {
	data, err := os.ReadFile(s.path(id, store.MetadataFile))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, &store.IOError{Op: "read metadata", ID: id, Err: err}
	}

	var job store.Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, &store.IOError{Op: "decode metadata", ID: id, Err: err}
	}
	return &job, nil
}

// readScore returns nil when no score was recorded. An unparsable file is
// treated as absent since ranking can only use numeric scores.
func (s *Store) readScore(id int) (*float64, error) {
	data, err := os.ReadFile(s.path(id, store.ScoreFile))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, &store.IOError{Op: "read score", ID: id, Err: err}
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return nil, nil
	}
	return &v, nil
}

// writeAtomic writes to a sibling temp file and renames it over the target.
func writeAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, target)
}

func cloneJob(j *store.Job) *store.Job {
	c := *j
	c.Contour = append([]store.Point(nil), j.Contour...)
	if j.Score != nil {
		v := *j.Score
		c.Score = &v
	}
	return &c
}
