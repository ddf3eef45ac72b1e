package handlers

import (
	"context"
	"net/http"
	"time"

	"simplane/internal/status"
	"simplane/internal/store"
	"simplane/internal/tracker"

	"github.com/go-chi/chi/v5"
)

// Mock Service
type mockService struct {
	// Submit Hooks
	submitResp *tracker.SubmitResult
	submitErr  error

	// Query Hooks
	jobResp      *tracker.JobView
	jobErr       error
	stateResp    status.State
	progressResp int
	progressErr  error
	logResp      []string
	logErr       error
	listResp     []*store.Job
	listErr      error
	avatarResp   int
	avatarErr    error
	archiveResp  []store.Result
	archiveErr   error

	// Transition Hooks
	markStartedErr error
	completeErr    error
	exportErr      error
	nextExportID   int
	nextExportOK   bool

	// Spies (to verify arguments passed by handlers)
	capturedSubmit tracker.SubmitRequest
	capturedID     int
	capturedN      int
	capturedHandle string
	capturedScore  *float64
	exportCleared  bool
}

func (m *mockService) Submit(ctx context.Context, req tracker.SubmitRequest) (*tracker.SubmitResult, error) {
	m.capturedSubmit = req
	return m.submitResp, m.submitErr
}

func (m *mockService) Job(ctx context.Context, id int) (*tracker.JobView, error) {
	m.capturedID = id
	return m.jobResp, m.jobErr
}

func (m *mockService) State(ctx context.Context, id int) (status.State, error) {
	return m.stateResp, nil
}

func (m *mockService) Progress(ctx context.Context, id int) (int, error) {
	m.capturedID = id
	return m.progressResp, m.progressErr
}

func (m *mockService) LogTail(ctx context.Context, id, n int) ([]string, error) {
	m.capturedID = id
	m.capturedN = n
	return m.logResp, m.logErr
}

func (m *mockService) Queued(ctx context.Context) ([]*store.Job, error) {
	return m.listResp, m.listErr
}

func (m *mockService) Running(ctx context.Context) ([]*store.Job, error) {
	return m.listResp, m.listErr
}

func (m *mockService) Finished(ctx context.Context) ([]*store.Job, error) {
	return m.listResp, m.listErr
}

func (m *mockService) TopByScore(ctx context.Context, n int) ([]*store.Job, error) {
	m.capturedN = n
	return m.listResp, m.listErr
}

func (m *mockService) MostRecent(ctx context.Context, n int) ([]*store.Job, error) {
	m.capturedN = n
	return m.listResp, m.listErr
}

func (m *mockService) NextAvatar(ctx context.Context) (int, error) {
	return m.avatarResp, m.avatarErr
}

func (m *mockService) MarkStarted(ctx context.Context, id int, handle string) error {
	m.capturedID = id
	m.capturedHandle = handle
	return m.markStartedErr
}

func (m *mockService) Complete(ctx context.Context, id int, score *float64) error {
	m.capturedID = id
	m.capturedScore = score
	return m.completeErr
}

func (m *mockService) MarkReadyToExport(ctx context.Context, id int) error {
	m.capturedID = id
	return m.exportErr
}

func (m *mockService) ClearReadyToExport(ctx context.Context, id int) error {
	m.capturedID = id
	m.exportCleared = true
	return m.exportErr
}

func (m *mockService) NextToExport(ctx context.Context) (int, bool, error) {
	return m.nextExportID, m.nextExportOK, m.exportErr
}

func (m *mockService) Archive(ctx context.Context, limit int) ([]store.Result, error) {
	m.capturedN = limit
	return m.archiveResp, m.archiveErr
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

// withParams attaches chi route parameters given as name, value pairs.
func withParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func floatPtr(v float64) *float64 { return &v }

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
