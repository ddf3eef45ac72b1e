package monitor_test

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"simplane/internal/avatar"
	"simplane/internal/launcher"
	"simplane/internal/monitor"
	"simplane/internal/progress"
	"simplane/internal/status"
	"simplane/internal/store"
	"simplane/internal/store/fs"
	"simplane/internal/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clusterLauncher hands out fixed handles and reports whatever state the
// test sets for them.
type clusterLauncher struct {
	mu     sync.Mutex
	states map[string]launcher.RemoteState
}

func (c *clusterLauncher) Name() string { return "cluster" }

func (c *clusterLauncher) Submit(ctx context.Context, d launcher.Descriptor) (string, error) {
	return "job-" + filepath.Base(d.WorkDir), nil
}

func (c *clusterLauncher) Status(ctx context.Context, handle string) (launcher.RemoteState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[handle]; ok {
		return s, nil
	}
	return launcher.RemotePending, nil
}

func (c *clusterLauncher) set(handle string, s launcher.RemoteState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[handle] = s
}

func newTracker(t *testing.T, root string, l launcher.Launcher) (*tracker.Tracker, *fs.Store) {
	t.Helper()

	st, err := fs.New(fs.Options{Root: root})
	require.NoError(t, err)
	est, err := progress.New(progress.Config{TotalTimesteps: 10, SubstepsPerTimestep: 5}, nil)
	require.NoError(t, err)
	renderer, err := launcher.NewRenderer("")
	require.NoError(t, err)

	tr, err := tracker.New(tracker.Deps{
		Store:     st,
		Estimator: est,
		Avatars:   avatar.New(avatar.DefaultPoolSize, rand.NewPCG(3, 3)),
		Launcher:  l,
		Renderer:  renderer,
	}, tracker.Config{Timesteps: 10, SolverCommand: "solver", LeaderboardSize: 10})
	require.NoError(t, err)
	return tr, st
}

var scoreFlag = regexp.MustCompile(`--score "([^"]+)"`)

func TestLifecycle_SolverScoreReachesLeaderboard(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	cluster := &clusterLauncher{states: map[string]launcher.RemoteState{}}

	// The controller and a local monitor run as separate processes over the
	// same directory tree, each with its own store cache.
	controller, controllerStore := newTracker(t, root, cluster)
	monitorTracker, monitorStore := newTracker(t, root, cluster)

	res, err := controller.Submit(ctx, tracker.SubmitRequest{
		Name:    "Ada",
		Contour: []store.Point{{X: 1, Y: 2}, {X: 3, Y: 4}},
	})
	require.NoError(t, err)

	// Warm the controller's cache before anything changes on disk.
	state, err := controller.State(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, status.StateQueued, state)
	queued, err := controller.Queued(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Nil(t, queued[0].Score)
	top, err := controller.TopByScore(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, top)

	script, err := os.ReadFile(filepath.Join(controllerStore.Dir(res.ID), store.BatchFile))
	require.NoError(t, err)
	m := scoreFlag.FindSubmatch(script)
	require.NotNil(t, m, "batch file passes no score path")
	scorePath := string(m[1])
	assert.Equal(t, filepath.Join(controllerStore.Dir(res.ID), store.DefaultSolverScoreFile), scorePath)

	// The batch script marks the job started, then the solver writes its result.
	require.NoError(t, os.WriteFile(filepath.Join(controllerStore.Dir(res.ID), store.SentinelStarted), []byte(res.Handle), 0o644))
	require.NoError(t, os.WriteFile(scorePath, []byte("# step drag\n10 0.41\n"), 0o644))
	cluster.set(res.Handle, launcher.RemoteCompleted)

	mon := monitor.New(monitorTracker, cluster, monitorStore, monitor.Config{}, nil)
	changed, err := mon.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	state, err = controller.State(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, status.StateFinished, state)

	top, err = controller.TopByScore(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, res.ID, top[0].ID)
	require.NotNil(t, top[0].Score)
	assert.Equal(t, 0.41, *top[0].Score)
	assert.Equal(t, res.AvatarID, top[0].AvatarID)

	unscored, err := monitorTracker.Unscored(ctx)
	require.NoError(t, err)
	assert.Empty(t, unscored)
}
