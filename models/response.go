package models

// ErrorResponse is returned for requests rejected before a stream opens.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status         string       `json:"status"`
	Uptime         string       `json:"uptime"`
	Version        string       `json:"version"`
	ActiveSessions int          `json:"active_sessions"`
	Search         string       `json:"search"`
	AI             string       `json:"ai"`
	Stats          SessionStats `json:"stats"`
}

// SessionStats summarizes sessions served since start-up.
type SessionStats struct {
	Started  int64 `json:"started"`
	Finished int64 `json:"finished"`
	Products int64 `json:"products"`
}
