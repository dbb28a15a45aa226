package models

// DispatchRequest is the payload for POST /api/v1/dispatch.
type DispatchRequest struct {
	// Query is the search string forwarded to the remote workflow.
	Query string `json:"query" binding:"required"`
}

// DispatchResponse is the response for POST /api/v1/dispatch.
type DispatchResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`

	// RunsToday is the counter value after this dispatch.
	RunsToday int `json:"runs_today,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// ResultsResponse lists run output files for GET /api/v1/results.
type ResultsResponse struct {
	Success bool     `json:"success"`
	Files   []string `json:"files"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// ErrorResponse is the generic failure envelope.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}
