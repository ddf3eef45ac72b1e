package tracker

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"simplane/internal/avatar"
	"simplane/internal/launcher"
	"simplane/internal/progress"
	"simplane/internal/status"
	"simplane/internal/store"
	"simplane/internal/store/fs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLauncher struct {
	handles []string
	err     error
	calls   []launcher.Descriptor
}

func (f *fakeLauncher) Name() string { return "fake" }

func (f *fakeLauncher) Submit(ctx context.Context, d launcher.Descriptor) (string, error) {
	f.calls = append(f.calls, d)
	if f.err != nil {
		return "", f.err
	}
	if len(f.handles) == 0 {
		return "h", nil
	}
	h := f.handles[0]
	f.handles = f.handles[1:]
	return h, nil
}

func (f *fakeLauncher) Status(ctx context.Context, handle string) (launcher.RemoteState, error) {
	return launcher.RemoteUnknown, nil
}

type fakeArchive struct {
	results []store.Result
	err     error
}

func (f *fakeArchive) RecordResult(ctx context.Context, r store.Result) error {
	f.results = append(f.results, r)
	return f.err
}

func (f *fakeArchive) ListResults(ctx context.Context, limit int) ([]store.Result, error) {
	return f.results, nil
}

func (f *fakeArchive) Ping(ctx context.Context) error { return nil }

type fixture struct {
	tracker  *Tracker
	store    *fs.Store
	launcher *fakeLauncher
	archive  *fakeArchive
}

func newFixture(t *testing.T, poolSize int, cfg Config) *fixture {
	t.Helper()

	st, err := fs.New(fs.Options{Root: t.TempDir()})
	require.NoError(t, err)
	est, err := progress.New(progress.Config{TotalTimesteps: 10, SubstepsPerTimestep: 5}, nil)
	require.NoError(t, err)
	renderer, err := launcher.NewRenderer("")
	require.NoError(t, err)

	fl := &fakeLauncher{}
	fa := &fakeArchive{}
	tr, err := New(Deps{
		Store:     st,
		Estimator: est,
		Avatars:   avatar.New(poolSize, rand.NewPCG(1, 1)),
		Launcher:  fl,
		Renderer:  renderer,
		Archive:   fa,
	}, cfg)
	require.NoError(t, err)

	return &fixture{tracker: tr, store: st, launcher: fl, archive: fa}
}

func submit(t *testing.T, f *fixture, name string) *SubmitResult {
	t.Helper()
	res, err := f.tracker.Submit(context.Background(), SubmitRequest{
		Name:    name,
		Contact: name + "@example.org",
		Contour: []store.Point{{X: 1, Y: 2}},
	})
	require.NoError(t, err)
	return res
}

func score(v float64) *float64 { return &v }

func TestLifecycleScenario(t *testing.T) {
	f := newFixture(t, avatar.DefaultPoolSize, Config{LeaderboardSize: 10})
	f.launcher.handles = []string{"42"}
	ctx := context.Background()

	res, err := f.tracker.Submit(ctx, SubmitRequest{
		Name:    "Ada",
		Contact: "ada@example.org",
		Contour: []store.Point{{X: 10, Y: 20}, {X: 30, Y: 40}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ID)
	assert.Equal(t, "42", res.Handle)

	state, err := f.tracker.State(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, status.StateQueued, state)

	outline, err := os.ReadFile(filepath.Join(f.store.Dir(res.ID), store.OutlineFile))
	require.NoError(t, err)
	assert.Equal(t, "10 460\n30 440\n", string(outline))

	require.NoError(t, f.tracker.MarkStarted(ctx, res.ID, ""))
	state, _ = f.tracker.State(ctx, res.ID)
	assert.Equal(t, status.StateRunning, state)

	started, err := os.ReadFile(filepath.Join(f.store.Dir(res.ID), store.SentinelStarted))
	require.NoError(t, err)
	assert.Equal(t, "42", string(started))

	require.NoError(t, f.tracker.Complete(ctx, res.ID, score(7.5)))
	state, _ = f.tracker.State(ctx, res.ID)
	assert.Equal(t, status.StateFinished, state)

	top, err := f.tracker.TopByScore(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, res.ID, top[0].ID)
	assert.Equal(t, 7.5, *top[0].Score)
	assert.Equal(t, res.AvatarID, top[0].AvatarID)

	require.Len(t, f.archive.results, 1)
	assert.Equal(t, "42", f.archive.results[0].Handle)
}

func TestSubmit_RendersBatchFile(t *testing.T) {
	f := newFixture(t, avatar.DefaultPoolSize, Config{NodesPerJob: 2, CoresPerNode: 16, Timesteps: 10, SolverCommand: "srun solver"})

	res := submit(t, f, "a")

	require.Len(t, f.launcher.calls, 1)
	d := f.launcher.calls[0]
	assert.Equal(t, res.ID, d.SimulationID)
	assert.Equal(t, 32, d.Cores)
	assert.Equal(t, filepath.Join(f.store.Dir(res.ID), store.BatchFile), d.ScriptPath)

	script, err := os.ReadFile(d.ScriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(script), "#SBATCH --ntasks=32")
	assert.Contains(t, string(script), "srun solver")
	assert.Contains(t, string(script), `--score "`+filepath.Join(f.store.Dir(res.ID), store.DefaultSolverScoreFile)+`"`)
	assert.NotContains(t, string(script), store.ScoreFile)
}

func TestSubmit_LauncherFailureLeavesJobUncreated(t *testing.T) {
	f := newFixture(t, avatar.DefaultPoolSize, Config{})
	f.launcher.err = &launcher.SubmissionError{Launcher: "fake", Err: errors.New("queue closed")}
	ctx := context.Background()

	_, err := f.tracker.Submit(ctx, SubmitRequest{Name: "a"})

	var subErr *launcher.SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Len(t, f.launcher.calls, 1)

	ids, err := f.store.ListIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{1}, ids)

	state, err := f.tracker.State(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, status.StateAbsent, state)

	_, err = f.tracker.Job(ctx, 1)
	assert.True(t, IsNotFound(err))

	queued, err := f.tracker.Queued(ctx)
	require.NoError(t, err)
	assert.Empty(t, queued)

	// The next submission gets a fresh id.
	f.launcher.err = nil
	res := submit(t, f, "b")
	assert.Equal(t, 2, res.ID)
}

func TestSubmit_PoolExhausted(t *testing.T) {
	f := newFixture(t, 2, Config{})
	ctx := context.Background()

	a := submit(t, f, "a")
	b := submit(t, f, "b")
	assert.NotEqual(t, a.AvatarID, b.AvatarID)

	_, err := f.tracker.Submit(ctx, SubmitRequest{Name: "c"})
	assert.ErrorIs(t, err, avatar.ErrPoolExhausted)

	ids, err := f.store.ListIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2, "an exhausted pool must not leave a job directory behind")

	_, err = f.tracker.NextAvatar(ctx)
	assert.ErrorIs(t, err, avatar.ErrPoolExhausted)

	// An unscored finished job is no longer visible, so its avatar frees up.
	require.NoError(t, f.tracker.Complete(ctx, a.ID, nil))
	c := submit(t, f, "c")
	assert.Equal(t, a.AvatarID, c.AvatarID)
}

func TestSubmit_ConcurrentSubmissionsGetDistinctIDsAndAvatars(t *testing.T) {
	f := newFixture(t, avatar.DefaultPoolSize, Config{LeaderboardSize: 10})
	ctx := context.Background()

	const n = 8
	results := make([]*SubmitResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.tracker.Submit(ctx, SubmitRequest{
				Name:    "visitor",
				Contour: []store.Point{{X: 1, Y: 2}},
			})
		}(i)
	}
	wg.Wait()

	ids := map[int]bool{}
	avatars := map[int]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		ids[results[i].ID] = true
		avatars[results[i].AvatarID] = true
	}
	assert.Len(t, ids, n)
	assert.Len(t, avatars, n)
}

func TestSubmit_LeaderboardKeepsAvatar(t *testing.T) {
	f := newFixture(t, 2, Config{LeaderboardSize: 1})
	ctx := context.Background()

	a := submit(t, f, "a")
	submit(t, f, "b")
	require.NoError(t, f.tracker.Complete(ctx, a.ID, score(1.25)))

	_, err := f.tracker.Submit(ctx, SubmitRequest{Name: "c"})
	assert.ErrorIs(t, err, avatar.ErrPoolExhausted)
}

func TestComplete_QueuedJobIsStartedFirst(t *testing.T) {
	f := newFixture(t, avatar.DefaultPoolSize, Config{})
	ctx := context.Background()
	res := submit(t, f, "a")

	require.NoError(t, f.tracker.Complete(ctx, res.ID, score(2)))

	s, err := f.store.Sentinels(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, s.Created)
	assert.True(t, s.Started)
	assert.True(t, s.Finished)
}

func TestComplete_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, avatar.DefaultPoolSize, Config{})
	f.archive.err = errors.New("connection refused")
	ctx := context.Background()
	res := submit(t, f, "a")

	require.NoError(t, f.tracker.Complete(ctx, res.ID, score(3)))

	state, _ := f.tracker.State(ctx, res.ID)
	assert.Equal(t, status.StateFinished, state)
}

func TestComplete_UnknownJob(t *testing.T) {
	f := newFixture(t, avatar.DefaultPoolSize, Config{})
	err := f.tracker.Complete(context.Background(), 99, score(1))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUnscored(t *testing.T) {
	f := newFixture(t, avatar.DefaultPoolSize, Config{})
	ctx := context.Background()
	a := submit(t, f, "a")
	b := submit(t, f, "b")
	require.NoError(t, f.tracker.Complete(ctx, a.ID, nil))
	require.NoError(t, f.tracker.Complete(ctx, b.ID, score(4)))

	jobs, err := f.tracker.Unscored(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, a.ID, jobs[0].ID)
}

func TestProgress(t *testing.T) {
	f := newFixture(t, avatar.DefaultPoolSize, Config{})
	ctx := context.Background()
	res := submit(t, f, "a")

	pct, err := f.tracker.Progress(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, pct)

	require.NoError(t, f.tracker.MarkStarted(ctx, res.ID, ""))
	_, err = f.store.WriteArtifact(ctx, res.ID, store.LogFile, []byte("MAIN:  Time: 6/10 0.6\nStarting Step 1\nStarting Step 2\nStarting Step 3\n"))
	require.NoError(t, err)

	pct, err = f.tracker.Progress(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, pct)

	require.NoError(t, f.tracker.Complete(ctx, res.ID, nil))
	pct, err = f.tracker.Progress(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, pct)

	_, err = f.tracker.Progress(ctx, 1234)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJobView(t *testing.T) {
	f := newFixture(t, avatar.DefaultPoolSize, Config{})
	ctx := context.Background()
	res := submit(t, f, "a")

	_, err := f.store.WriteArtifact(ctx, res.ID, store.HostsFile, []byte("node01\nnode02\n"))
	require.NoError(t, err)
	require.NoError(t, f.tracker.MarkReadyToExport(ctx, res.ID))

	view, err := f.tracker.Job(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", view.Name)
	assert.Equal(t, status.StateQueued, view.State)
	assert.Equal(t, []string{"node01", "node02"}, view.Nodes)
	assert.True(t, view.ReadyToExport)
	assert.Equal(t, res.AvatarID, view.AvatarID)
}

func TestListings(t *testing.T) {
	f := newFixture(t, avatar.DefaultPoolSize, Config{})
	ctx := context.Background()
	for _, n := range []string{"a", "b", "c", "d"} {
		submit(t, f, n)
	}
	require.NoError(t, f.tracker.MarkStarted(ctx, 2, ""))
	require.NoError(t, f.tracker.Complete(ctx, 1, score(5)))

	queued, err := f.tracker.Queued(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3}, jobIDs(queued))

	running, err := f.tracker.Running(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, jobIDs(running))

	finished, err := f.tracker.Finished(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, jobIDs(finished))

	recent, err := f.tracker.MostRecent(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, jobIDs(recent))
}

func jobIDs(jobs []*store.Job) []int {
	out := make([]int, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}

func TestExportQueue(t *testing.T) {
	f := newFixture(t, avatar.DefaultPoolSize, Config{})
	ctx := context.Background()
	for _, n := range []string{"a", "b", "c"} {
		submit(t, f, n)
	}

	_, ok, err := f.tracker.NextToExport(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.tracker.MarkReadyToExport(ctx, 3))
	id, ok, err := f.tracker.NextToExport(ctx)
	require.NoError(t, err)
	require.True(t, ok, "a single queued export must be returned")
	assert.Equal(t, 3, id)

	require.NoError(t, f.tracker.MarkReadyToExport(ctx, 2))
	id, _, _ = f.tracker.NextToExport(ctx)
	assert.Equal(t, 2, id)

	require.NoError(t, f.tracker.ClearReadyToExport(ctx, 2))
	id, _, _ = f.tracker.NextToExport(ctx)
	assert.Equal(t, 3, id)

	assert.ErrorIs(t, f.tracker.MarkReadyToExport(ctx, 77), store.ErrNotFound)
}

func TestLogTail(t *testing.T) {
	f := newFixture(t, avatar.DefaultPoolSize, Config{})
	ctx := context.Background()
	res := submit(t, f, "a")

	lines, err := f.tracker.LogTail(ctx, res.ID, 5)
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = f.store.WriteArtifact(ctx, res.ID, store.LogFile, []byte("one\ntwo\nthree\nfour\n"))
	require.NoError(t, err)

	lines, err = f.tracker.LogTail(ctx, res.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"three", "four"}, lines)

	lines, err = f.tracker.LogTail(ctx, res.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three", "four"}, lines)

	_, err = f.tracker.LogTail(ctx, 404, 2)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestArchive(t *testing.T) {
	f := newFixture(t, avatar.DefaultPoolSize, Config{})
	ctx := context.Background()
	res := submit(t, f, "a")
	require.NoError(t, f.tracker.Complete(ctx, res.ID, score(0.8)))

	results, err := f.tracker.Archive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, res.ID, results[0].SimulationID)
	assert.Equal(t, 0.8, *results[0].Score)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Config{})
	assert.Error(t, err)
}
