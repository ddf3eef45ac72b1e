package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"simplane/internal/store"
	"simplane/pkg/api"
)

// ControllerClient drives lifecycle transitions through the controller's
// internal API, for monitors that do not share the controller's process.
type ControllerClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ Tracker = (*ControllerClient)(nil)

// NewControllerClient creates a client for the controller at baseURL,
// authenticating internal calls with token.
func NewControllerClient(baseURL, token string) *ControllerClient {
	return &ControllerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *ControllerClient) Pending(ctx context.Context) (queued, running []*store.Job, err error) {
	if queued, err = c.list(ctx, "/simulations/queued"); err != nil {
		return nil, nil, err
	}
	if running, err = c.list(ctx, "/simulations/running"); err != nil {
		return nil, nil, err
	}
	return queued, running, nil
}

func (c *ControllerClient) Unscored(ctx context.Context) ([]*store.Job, error) {
	finished, err := c.list(ctx, "/simulations/finished")
	if err != nil {
		return nil, err
	}
	out := finished[:0]
	for _, j := range finished {
		if j.Score == nil {
			out = append(out, j)
		}
	}
	return out, nil
}

func (c *ControllerClient) MarkStarted(ctx context.Context, id int, handle string) error {
	path := fmt.Sprintf("/internal/simulations/%d/started", id)
	return c.put(ctx, path, api.MarkStartedRequest{Handle: handle})
}

func (c *ControllerClient) Complete(ctx context.Context, id int, score *float64) error {
	path := fmt.Sprintf("/internal/simulations/%d/result", id)
	return c.put(ctx, path, api.RecordResultRequest{Score: score})
}

func (c *ControllerClient) list(ctx context.Context, path string) ([]*store.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s returned status %d", path, resp.StatusCode)
	}

	var sims []api.Simulation
	if err := json.NewDecoder(resp.Body).Decode(&sims); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	jobs := make([]*store.Job, len(sims))
	for i, s := range sims {
		jobs[i] = &store.Job{
			ID:             s.ID,
			Name:           s.Name,
			Contact:        s.Contact,
			AvatarID:       s.AvatarID,
			ExternalHandle: s.Handle,
			Score:          s.Score,
			CreatedAt:      s.CreatedAt,
		}
	}
	return jobs, nil
}

func (c *ControllerClient) put(ctx context.Context, path string, body any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return store.ErrNotFound
	}
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("PUT %s returned status %d", path, resp.StatusCode)
	}
	return nil
}
