package session

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/azybler/routeviz/pkg/events"
	"github.com/azybler/routeviz/pkg/routing"
)

// Query keys.
const (
	keyGraph  = "graph"
	keyFromID = "fromId"
	keyToID   = "toId"
	keyFinder = "finder"
)

// ExternalState is the shareable part of a session, encoded as a URL query
// string. Ids of -1 mean unset.
type ExternalState struct {
	Graph  string `json:"graph"`
	FromID int64  `json:"fromId"`
	ToID   int64  `json:"toId"`
	Finder string `json:"finder"`
}

// DefaultState returns the state of a fresh session.
func DefaultState(graphName string, finder routing.Kind) ExternalState {
	return ExternalState{
		Graph:  graphName,
		FromID: -1,
		ToID:   -1,
		Finder: string(finder),
	}
}

// ParseQuery decodes raw over defaults. Missing keys keep their default;
// unparsable or negative ids become -1. The finder is not validated here.
func ParseQuery(raw string, defaults ExternalState) (ExternalState, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return defaults, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	st := defaults
	if v := values.Get(keyGraph); v != "" {
		st.Graph = v
	}
	if values.Has(keyFromID) {
		st.FromID = parseID(values.Get(keyFromID))
	}
	if values.Has(keyToID) {
		st.ToID = parseID(values.Get(keyToID))
	}
	if v := values.Get(keyFinder); v != "" {
		st.Finder = v
	}
	return st, nil
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return -1
	}
	return id
}

// Encode renders the state as a query string, keys sorted.
func (st ExternalState) Encode() string {
	values := url.Values{}
	values.Set(keyGraph, st.Graph)
	values.Set(keyFromID, strconv.FormatInt(st.FromID, 10))
	values.Set(keyToID, strconv.FormatInt(st.ToID, 10))
	values.Set(keyFinder, st.Finder)
	return values.Encode()
}

// QuerySync keeps ExternalState in step with the endpoints and the active
// finder. Outbound writes come from bus events; inbound changes are
// classified by Diff and applied by the session.
type QuerySync struct {
	state ExternalState
	muted bool
}

// NewQuerySync subscribes to bus and starts from initial.
func NewQuerySync(initial ExternalState, bus *events.Bus) *QuerySync {
	q := &QuerySync{state: initial}
	bus.Subscribe(events.TopicEndpointChanged, q.onEndpointChanged)
	bus.Subscribe(events.TopicFinderChanged, q.onFinderChanged)
	return q
}

// State returns the current external state.
func (q *QuerySync) State() ExternalState { return q.state }

// Replace overwrites the whole state.
func (q *QuerySync) Replace(st ExternalState) { q.state = st }

// SetGraph records a graph selection and resets both ids.
func (q *QuerySync) SetGraph(name string) {
	q.state.Graph = name
	q.state.FromID = -1
	q.state.ToID = -1
}

// Muted runs fn without writing endpoint changes back to the state.
func (q *QuerySync) Muted(fn func()) {
	prev := q.muted
	q.muted = true
	defer func() { q.muted = prev }()
	fn()
}

func (q *QuerySync) onEndpointChanged(ev events.Event) {
	if q.muted {
		return
	}
	e := ev.(events.EndpointChanged)
	id := int64(-1)
	if e.Visible {
		id = e.PointID
	}
	switch e.Role {
	case events.RoleStart:
		q.state.FromID = id
	case events.RoleEnd:
		q.state.ToID = id
	}
}

func (q *QuerySync) onFinderChanged(ev events.Event) {
	q.state.Finder = ev.(events.FinderChanged).Finder
}

// Changes classifies the difference between two states.
type Changes struct {
	Graph     bool
	Finder    bool
	Endpoints bool
}

// Diff compares the current state with next.
func (q *QuerySync) Diff(next ExternalState) Changes {
	return Changes{
		Graph:     next.Graph != q.state.Graph,
		Finder:    next.Finder != q.state.Finder,
		Endpoints: next.FromID != q.state.FromID || next.ToID != q.state.ToID,
	}
}
