package api

import "github.com/azybler/routeviz/pkg/session"

// CreateSessionRequest is the optional JSON body for POST /api/v1/sessions.
// Query is a shared-link query string such as "graph=x&fromId=1&toId=2".
type CreateSessionRequest struct {
	Query string `json:"query"`
}

// ClickRequest is the JSON body for POST /api/v1/sessions/{id}/click.
// Coordinates are in the planar space of the loaded graph.
type ClickRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// QueryRequest is the JSON body for PUT /api/v1/sessions/{id}/query.
type QueryRequest struct {
	Query string `json:"query"`
}

// FinderRequest is the JSON body for PUT /api/v1/sessions/{id}/finder.
type FinderRequest struct {
	Finder string `json:"finder"`
}

// GraphRequest is the JSON body for PUT /api/v1/sessions/{id}/graph.
type GraphRequest struct {
	Graph string `json:"graph"`
}

// SessionResponse wraps a session snapshot.
type SessionResponse struct {
	Session session.View `json:"session"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// GraphsResponse is the JSON response for GET /api/v1/graphs.
type GraphsResponse struct {
	Default string   `json:"default"`
	Graphs  []string `json:"graphs"`
}

// FindersResponse is the JSON response for GET /api/v1/finders.
type FindersResponse struct {
	Default string       `json:"default"`
	Finders []FinderJSON `json:"finders"`
}

// FinderJSON describes one pathfinding strategy.
type FinderJSON struct {
	Key     string `json:"key"`
	Optimal bool   `json:"optimal"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}
