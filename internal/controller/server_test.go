package controller

import (
	"bytes"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"

	"simplane/internal/avatar"
	"simplane/internal/controller/handlers"
	"simplane/internal/launcher"
	"simplane/internal/progress"
	"simplane/internal/store/fs"
	"simplane/internal/tracker"
	"simplane/pkg/api"
)

const testToken = "monitor-token"

func newTestServer(t *testing.T, poolSize int, opts Options) *httptest.Server {
	t.Helper()

	st, err := fs.New(fs.Options{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	est, err := progress.New(progress.Config{TotalTimesteps: 10, SubstepsPerTimestep: 3}, nil)
	if err != nil {
		t.Fatalf("estimator: %v", err)
	}
	renderer, err := launcher.NewRenderer("")
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	tr, err := tracker.New(tracker.Deps{
		Store:     st,
		Estimator: est,
		Avatars:   avatar.New(poolSize, rand.NewPCG(7, 7)),
		Launcher:  launcher.DevLauncher{},
		Renderer:  renderer,
	}, tracker.Config{LeaderboardSize: 5})
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}

	opts.InternalToken = testToken
	srv := httptest.NewServer(NewRouter(handlers.New(tr, nil, nil), opts))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body any, token string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: got status %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
}

var contour = []api.Point{{X: 10, Y: 20}, {X: 30, Y: 40}, {X: 50, Y: 10}}

func TestSimulationLifecycle(t *testing.T) {
	srv := newTestServer(t, avatar.DefaultPoolSize, Options{})

	resp := do(t, http.MethodPost, srv.URL+"/simulations", api.SubmitSimulationRequest{
		Name:    "Ada",
		Contact: "ada@example.org",
		Contour: contour,
	}, "")
	expectStatus(t, resp, http.StatusCreated)
	created := decode[api.SubmitSimulationResponse](t, resp)
	if created.ID != 1 || created.Handle != "dev-1" || created.AvatarID < 1 {
		t.Fatalf("unexpected submission: %+v", created)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}

	queued := decode[[]api.Simulation](t, do(t, http.MethodGet, srv.URL+"/simulations/queued", nil, ""))
	if len(queued) != 1 || queued[0].ID != 1 {
		t.Fatalf("expected simulation 1 queued, got %+v", queued)
	}

	// The internal API needs the monitor's token.
	expectStatus(t, do(t, http.MethodPut, srv.URL+"/internal/simulations/1/started", api.MarkStartedRequest{}, ""), http.StatusUnauthorized)
	expectStatus(t, do(t, http.MethodPut, srv.URL+"/internal/simulations/1/started", api.MarkStartedRequest{}, testToken), http.StatusNoContent)

	running := decode[[]api.Simulation](t, do(t, http.MethodGet, srv.URL+"/simulations/running", nil, ""))
	if len(running) != 1 {
		t.Fatalf("expected simulation 1 running, got %+v", running)
	}

	score := 0.5
	expectStatus(t, do(t, http.MethodPut, srv.URL+"/internal/simulations/1/result", api.RecordResultRequest{Score: &score}, testToken), http.StatusNoContent)

	detail := decode[api.SimulationDetail](t, do(t, http.MethodGet, srv.URL+"/simulations/1", nil, ""))
	if detail.State != "finished" || detail.Progress != 100 {
		t.Errorf("expected finished at 100%%, got %s at %d", detail.State, detail.Progress)
	}
	if detail.Score == nil || *detail.Score != 0.5 || len(detail.Contour) != 3 {
		t.Errorf("unexpected detail: %+v", detail)
	}

	top := decode[[]api.Simulation](t, do(t, http.MethodGet, srv.URL+"/simulations/min_drag/3", nil, ""))
	if len(top) != 1 || top[0].ID != 1 {
		t.Errorf("expected simulation 1 on the leaderboard, got %+v", top)
	}

	expectStatus(t, do(t, http.MethodGet, srv.URL+"/exports/next", nil, ""), http.StatusNoContent)
	expectStatus(t, do(t, http.MethodPut, srv.URL+"/simulations/1/export", nil, ""), http.StatusNoContent)
	next := decode[api.NextExportResponse](t, do(t, http.MethodGet, srv.URL+"/exports/next", nil, ""))
	if next.ID != 1 {
		t.Errorf("expected simulation 1 next for export, got %d", next.ID)
	}

	logs := decode[api.LogTailResponse](t, do(t, http.MethodGet, srv.URL+"/simulations/1/log", nil, ""))
	if logs.Lines == nil || len(logs.Lines) != 0 {
		t.Errorf("expected an empty log, got %+v", logs.Lines)
	}

	expectStatus(t, do(t, http.MethodGet, srv.URL+"/simulations/99", nil, ""), http.StatusNotFound)
	expectStatus(t, do(t, http.MethodGet, srv.URL+"/simulations/99/progress", nil, ""), http.StatusNotFound)
	expectStatus(t, do(t, http.MethodGet, srv.URL+"/healthz", nil, ""), http.StatusOK)
	expectStatus(t, do(t, http.MethodGet, srv.URL+"/readyz", nil, ""), http.StatusOK)
}

func TestSubmit_PoolExhausted(t *testing.T) {
	srv := newTestServer(t, 1, Options{})
	req := api.SubmitSimulationRequest{Name: "Ada", Contour: contour}

	expectStatus(t, do(t, http.MethodPost, srv.URL+"/simulations", req, ""), http.StatusCreated)

	resp := do(t, http.MethodPost, srv.URL+"/simulations", req, "")
	expectStatus(t, resp, http.StatusConflict)
	if e := decode[api.ErrorResponse](t, resp); e.Code != api.CodePoolExhausted {
		t.Errorf("expected %s, got %+v", api.CodePoolExhausted, e)
	}

	expectStatus(t, do(t, http.MethodGet, srv.URL+"/avatars/next", nil, ""), http.StatusConflict)
}

func TestSubmit_RateLimited(t *testing.T) {
	srv := newTestServer(t, avatar.DefaultPoolSize, Options{SubmitRateLimit: 0.001, SubmitRateBurst: 1})
	req := api.SubmitSimulationRequest{Name: "Ada", Contour: contour}

	expectStatus(t, do(t, http.MethodPost, srv.URL+"/simulations", req, ""), http.StatusCreated)
	resp := do(t, http.MethodPost, srv.URL+"/simulations", req, "")
	expectStatus(t, resp, http.StatusTooManyRequests)
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// Reads are not throttled.
	expectStatus(t, do(t, http.MethodGet, srv.URL+"/simulations/queued", nil, ""), http.StatusOK)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("simplane_up 1\n"))
	})
	srv := newTestServer(t, avatar.DefaultPoolSize, Options{Metrics: metrics})

	expectStatus(t, do(t, http.MethodGet, srv.URL+"/metrics", nil, ""), http.StatusOK)
}
