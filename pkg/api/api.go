// Package api contains shared JSON request/response structs.
// This package is shared between simctl, the monitor and the controller.
package api

import "time"

// Point is a contour vertex in capture-frame pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// SubmitSimulationRequest is the request body for submitting a simulation.
type SubmitSimulationRequest struct {
	Name    string  `json:"name" validate:"required,max=200"`
	Contact string  `json:"contact" validate:"max=200"`
	Contour []Point `json:"contour" validate:"required,min=3,max=20000"`
}

// SubmitSimulationResponse is the response body after submitting a simulation.
type SubmitSimulationResponse struct {
	ID       int    `json:"id"`
	AvatarID int    `json:"avatar_id"`
	Handle   string `json:"handle"`
}

// Simulation represents a simulation in list responses.
type Simulation struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	AvatarID  int       `json:"avatar_id"`
	Handle    string    `json:"handle,omitempty"`
	Score     *float64  `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SimulationDetail is the response body for a single simulation.
type SimulationDetail struct {
	Simulation
	State         string   `json:"state"`
	Progress      int      `json:"progress"`
	Nodes         []string `json:"nodes,omitempty"`
	ReadyToExport bool     `json:"ready_to_export"`
	Contour       []Point  `json:"contour,omitempty"`
}

// ProgressResponse is the response body for progress queries.
type ProgressResponse struct {
	ID       int    `json:"id"`
	State    string `json:"state"`
	Progress int    `json:"progress"`
}

// LogTailResponse is the response body for log queries.
type LogTailResponse struct {
	ID    int      `json:"id"`
	Lines []string `json:"lines"`
}

// AvatarResponse is the response body for an avatar preview.
type AvatarResponse struct {
	AvatarID int `json:"avatar_id"`
}

// NextExportResponse is the response body for the export queue head.
type NextExportResponse struct {
	ID int `json:"id"`
}

// ArchivedResult represents a row of the results archive.
type ArchivedResult struct {
	SimulationID int       `json:"simulation_id"`
	Name         string    `json:"name"`
	Contact      string    `json:"contact,omitempty"`
	AvatarID     int       `json:"avatar_id"`
	Score        *float64  `json:"score,omitempty"`
	Handle       string    `json:"handle,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// MarkStartedRequest is sent by the monitor when the launcher reports that a
// simulation has begun.
type MarkStartedRequest struct {
	Handle string `json:"handle"`
}

// RecordResultRequest is sent by the monitor when a simulation ends. A nil
// score marks the simulation finished without a result.
type RecordResultRequest struct {
	Score *float64 `json:"score"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes returned in ErrorResponse.Code.
const (
	CodePoolExhausted   = "avatar_pool_exhausted"
	CodeSubmissionError = "submission_failed"
	CodeNotFound        = "not_found"
	CodeInvalidRequest  = "invalid_request"
	CodeRateLimited     = "rate_limited"
)
