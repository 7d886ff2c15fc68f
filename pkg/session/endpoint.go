package session

import (
	"github.com/azybler/routeviz/pkg/events"
	"github.com/azybler/routeviz/pkg/graph"
)

// EndpointState is the observable state of a route endpoint.
// PointID -1 with Visible false is the unset state.
type EndpointState struct {
	PointID      int64   `json:"pointId"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Visible      bool    `json:"visible"`
	BeingDragged bool    `json:"beingDragged"`
}

// unsetEndpoint is the initial state of every endpoint.
var unsetEndpoint = EndpointState{PointID: -1}

// Endpoint is one end of the route. It changes only through SetFrom and
// Clear, and publishes an EndpointChanged event on every transition.
type Endpoint struct {
	role      string
	sessionID string
	bus       *events.Bus
	state     EndpointState
}

// NewEndpoint returns an unset endpoint publishing on bus.
func NewEndpoint(role, sessionID string, bus *events.Bus) *Endpoint {
	return &Endpoint{
		role:      role,
		sessionID: sessionID,
		bus:       bus,
		state:     unsetEndpoint,
	}
}

// Role is events.RoleStart or events.RoleEnd.
func (e *Endpoint) Role() string { return e.role }

// Bound reports whether the endpoint is attached to a node.
func (e *Endpoint) Bound() bool { return e.state.Visible }

// Snapshot returns a copy of the current state.
func (e *Endpoint) Snapshot() EndpointState { return e.state }

// SetFrom binds the endpoint to n. Rebinding to the same node still
// publishes.
func (e *Endpoint) SetFrom(n graph.Node) {
	e.state = EndpointState{
		PointID: int64(n.ID),
		X:       n.X,
		Y:       n.Y,
		Visible: true,
	}
	e.publish()
}

// Clear returns the endpoint to the unset state.
func (e *Endpoint) Clear() {
	e.state = unsetEndpoint
	e.publish()
}

func (e *Endpoint) publish() {
	e.bus.Publish(events.EndpointChanged{
		SessionID: e.sessionID,
		Role:      e.role,
		PointID:   e.state.PointID,
		X:         e.state.X,
		Y:         e.state.Y,
		Visible:   e.state.Visible,
	})
}
