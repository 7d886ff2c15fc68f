package session

import "errors"

var (
	// ErrGraphLoadFailed wraps loader failures reported through progress.
	ErrGraphLoadFailed = errors.New("could not load the graph")
	// ErrPathfindingInternal wraps any failure inside a strategy's Find.
	// It never escapes the resolver.
	ErrPathfindingInternal = errors.New("pathfinding internal error")
	// ErrInvalidQuery is returned for a query string that does not parse.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrUnknownGraph is returned when selecting a dataset that is not
	// configured.
	ErrUnknownGraph = errors.New("unknown graph")
	// ErrNotFound is returned for an unknown session id.
	ErrNotFound = errors.New("session not found")
	// ErrTooManySessions is returned when a Manager is full.
	ErrTooManySessions = errors.New("too many sessions")
	// ErrClosed is returned by a closed Session.
	ErrClosed = errors.New("session closed")
)
