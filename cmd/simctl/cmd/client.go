package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"simplane/pkg/api"
)

// SimClient handles API calls to the simplane controller.
type SimClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSimClient creates a new client for the controller at baseURL.
func NewSimClient(baseURL string) *SimClient {
	return &SimClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do sends a request and decodes the response into out when it is non-nil.
// It returns the status code so callers can tell 200 from 204.
func (c *SimClient) do(method, path string, body, out any, accept ...int) (int, error) {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if len(accept) == 0 {
		accept = []int{http.StatusOK}
	}
	respBody, _ := io.ReadAll(resp.Body)
	if !slices.Contains(accept, resp.StatusCode) {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var er api.ErrorResponse
		if json.Unmarshal(respBody, &er) == nil && er.Error != "" {
			apiErr.Message = er.Error
			apiErr.Code = er.Code
		}
		return resp.StatusCode, apiErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Submit sends POST /simulations.
func (c *SimClient) Submit(req api.SubmitSimulationRequest) (*api.SubmitSimulationResponse, error) {
	var result api.SubmitSimulationResponse
	if _, err := c.do(http.MethodPost, "/simulations", req, &result, http.StatusCreated); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSimulation sends GET /simulations/{id}.
func (c *SimClient) GetSimulation(id int) (*api.SimulationDetail, error) {
	var result api.SimulationDetail
	if _, err := c.do(http.MethodGet, fmt.Sprintf("/simulations/%d", id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetProgress sends GET /simulations/{id}/progress.
func (c *SimClient) GetProgress(id int) (*api.ProgressResponse, error) {
	var result api.ProgressResponse
	if _, err := c.do(http.MethodGet, fmt.Sprintf("/simulations/%d/progress", id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetLog sends GET /simulations/{id}/log?lines=N.
func (c *SimClient) GetLog(id, lines int) ([]string, error) {
	var result api.LogTailResponse
	if _, err := c.do(http.MethodGet, fmt.Sprintf("/simulations/%d/log?lines=%d", id, lines), nil, &result); err != nil {
		return nil, err
	}
	return result.Lines, nil
}

// List sends GET to a listing endpoint such as /simulations/queued.
func (c *SimClient) List(path string) ([]api.Simulation, error) {
	var result []api.Simulation
	if _, err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// NextAvatar sends GET /avatars/next.
func (c *SimClient) NextAvatar() (int, error) {
	var result api.AvatarResponse
	if _, err := c.do(http.MethodGet, "/avatars/next", nil, &result); err != nil {
		return 0, err
	}
	return result.AvatarID, nil
}

// MarkExport sends PUT /simulations/{id}/export.
func (c *SimClient) MarkExport(id int) error {
	_, err := c.do(http.MethodPut, fmt.Sprintf("/simulations/%d/export", id), nil, nil, http.StatusNoContent)
	return err
}

// ClearExport sends DELETE /simulations/{id}/export.
func (c *SimClient) ClearExport(id int) error {
	_, err := c.do(http.MethodDelete, fmt.Sprintf("/simulations/%d/export", id), nil, nil, http.StatusNoContent)
	return err
}

// NextExport sends GET /exports/next. ok is false when the queue is empty.
func (c *SimClient) NextExport() (id int, ok bool, err error) {
	var result api.NextExportResponse
	status, err := c.do(http.MethodGet, "/exports/next", nil, &result, http.StatusOK, http.StatusNoContent)
	if err != nil {
		return 0, false, err
	}
	if status == http.StatusNoContent {
		return 0, false, nil
	}
	return result.ID, true, nil
}
