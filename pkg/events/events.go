// Package events carries route-planner notifications: a synchronous
// in-process Bus for observers inside a session and a Publisher for
// forwarding selected events to external consumers.
package events

import "context"

// Event topic constants
const (
	TopicEndpointChanged = "routeviz.endpoint.changed"
	TopicRouteResolved   = "routeviz.route.resolved"
	TopicFinderChanged   = "routeviz.finder.changed"
	TopicGraphLoaded     = "routeviz.graph.loaded"
	TopicGraphLoadFailed = "routeviz.graph.load_failed"
)

// Event is anything published on a Bus.
type Event interface {
	Topic() string
}

// Endpoint roles.
const (
	RoleStart = "start"
	RoleEnd   = "end"
)

// Event types

type EndpointChanged struct {
	SessionID string  `json:"session_id"`
	Role      string  `json:"role"`
	PointID   int64   `json:"point_id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Visible   bool    `json:"visible"`
}

func (EndpointChanged) Topic() string { return TopicEndpointChanged }

type RouteResolved struct {
	SessionID string  `json:"session_id"`
	Finder    string  `json:"finder"`
	FromID    int64   `json:"from_id"`
	ToID      int64   `json:"to_id"`
	Found     bool    `json:"found"`
	NodeCount int     `json:"node_count"`
	Length    float64 `json:"length"`
	TookMS    float64 `json:"took_ms"`
}

func (RouteResolved) Topic() string { return TopicRouteResolved }

type FinderChanged struct {
	SessionID string `json:"session_id"`
	Finder    string `json:"finder"`
}

func (FinderChanged) Topic() string { return TopicFinderChanged }

type GraphLoaded struct {
	SessionID string `json:"session_id"`
	Graph     string `json:"graph"`
	Nodes     uint32 `json:"nodes"`
	Links     uint32 `json:"links"`
}

func (GraphLoaded) Topic() string { return TopicGraphLoaded }

type GraphLoadFailed struct {
	SessionID string `json:"session_id"`
	Graph     string `json:"graph"`
	Error     string `json:"error"`
}

func (GraphLoadFailed) Topic() string { return TopicGraphLoadFailed }

// Publisher is the interface for emitting events to external consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
