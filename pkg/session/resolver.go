package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/azybler/routeviz/pkg/events"
	"github.com/azybler/routeviz/pkg/geo"
	"github.com/azybler/routeviz/pkg/idgen"
	"github.com/azybler/routeviz/pkg/routing"
)

// RouteState is the resolver's view of the current route.
type RouteState int

const (
	// StateIdle means no search was attempted: an endpoint is unset or no
	// graph is loaded.
	StateIdle RouteState = iota
	// StateFound means the last search returned a path.
	StateFound
	// StateNoPath means the last search found nothing or failed.
	StateNoPath
)

func (s RouteState) String() string {
	switch s {
	case StateFound:
		return "found"
	case StateNoPath:
		return "no_path"
	}
	return "idle"
}

func (s RouteState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PathEntry is one drawn route in the history.
type PathEntry struct {
	ID      string      `json:"id"`
	Points  []geo.Point `json:"points"`
	Path    string      `json:"path"`
	Color   string      `json:"color"`
	Opacity float64     `json:"opacity"`
	Width   float64     `json:"width"`
}

// RouteView is what a renderer needs to draw the current route.
type RouteView struct {
	State    RouteState  `json:"state"`
	Nodes    []uint32    `json:"nodes"`
	Points   []geo.Point `json:"points"`
	SVGPath  string      `json:"svgPath"`
	SVGPaths []PathEntry `json:"svgPaths"`
	NoPath   bool        `json:"noPath"`
}

// Path styling cycles through fixed palettes so consecutive routes stay
// distinguishable.
var (
	pathColors    = []string{"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4", "#42d4f4", "#f032e6", "#9a6324"}
	pathOpacities = []float64{0.8, 0.6, 0.7, 0.5}
	pathWidths    = []float64{40, 25, 60, 30, 50}
)

// Resolver recomputes the route whenever an endpoint changes or the finder
// is switched. Failures never escape: they end in StateNoPath.
type Resolver struct {
	sessionID    string
	bus          *events.Bus
	start, end   *Endpoint
	logger       *slog.Logger
	historyLimit int

	registry *routing.Registry
	kind     routing.Kind

	state   RouteState
	path    []uint32
	points  []geo.Point
	history []PathEntry
	styled  int // entries ever added, drives the palettes

	lastSearchTook time.Duration
	pathLength     float64
	recomputations int

	batching int
	dirty    bool
	// ctx bounds the searches of the operation in progress; see Within.
	ctx context.Context
}

// NewResolver creates a resolver for the two endpoints and subscribes it to
// their change events.
func NewResolver(sessionID string, bus *events.Bus, start, end *Endpoint, kind routing.Kind, historyLimit int, logger *slog.Logger) *Resolver {
	if historyLimit < 1 {
		historyLimit = 1
	}
	r := &Resolver{
		sessionID:    sessionID,
		bus:          bus,
		start:        start,
		end:          end,
		logger:       logger,
		historyLimit: historyLimit,
		kind:         kind,
	}
	bus.Subscribe(events.TopicEndpointChanged, func(events.Event) { r.request() })
	return r
}

// Bind installs the strategies of a newly loaded graph, or removes them
// when reg is nil. It does not recompute.
func (r *Resolver) Bind(reg *routing.Registry) {
	r.registry = reg
}

// Kind returns the active finder.
func (r *Resolver) Kind() routing.Kind { return r.kind }

// SetKind switches the active finder and recomputes once. Selecting the
// active finder again is a no-op.
func (r *Resolver) SetKind(kind routing.Kind) {
	if kind == r.kind {
		return
	}
	r.kind = kind
	r.bus.Publish(events.FinderChanged{SessionID: r.sessionID, Finder: string(kind)})
	r.request()
}

// Batch runs fn and recomputes at most once afterwards, however many
// changes fn makes.
func (r *Resolver) Batch(fn func()) {
	r.batching++
	defer func() {
		r.batching--
		if r.batching == 0 && r.dirty {
			r.dirty = false
			r.Recompute(r.context())
		}
	}()
	fn()
}

// Within runs fn with ctx bounding every search fn triggers.
func (r *Resolver) Within(ctx context.Context, fn func()) {
	prev := r.ctx
	r.ctx = ctx
	defer func() { r.ctx = prev }()
	fn()
}

func (r *Resolver) context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

func (r *Resolver) request() {
	if r.batching > 0 {
		r.dirty = true
		return
	}
	r.Recompute(r.context())
}

// Reset drops the current route and its history.
func (r *Resolver) Reset() {
	r.setIdle()
	r.history = nil
	r.lastSearchTook = 0
}

// ClearHistory drops every drawn route.
func (r *Resolver) ClearHistory() {
	r.history = nil
}

// Recompute brings the route in line with the current endpoints and finder.
// A search cut short by ctx ends in StateNoPath like any other failure.
func (r *Resolver) Recompute(ctx context.Context) {
	r.recomputations++
	from, to := r.start.Snapshot(), r.end.Snapshot()
	if !from.Visible || !to.Visible || r.registry == nil {
		r.setIdle()
		r.publish(from, to, 0)
		return
	}

	started := time.Now()
	path, err := r.find(ctx, uint32(from.PointID), uint32(to.PointID))
	took := time.Since(started)
	r.lastSearchTook = took
	searchDuration.WithLabelValues(string(r.kind)).Observe(took.Seconds())

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.logger.Info("pathfinding interrupted",
			"session", r.sessionID, "finder", r.kind,
			"from", from.PointID, "to", to.PointID, "err", err)
		searchTotal.WithLabelValues(string(r.kind), "canceled").Inc()
		r.setNoPath()
	case err != nil:
		r.logger.Warn("pathfinding failed",
			"session", r.sessionID, "finder", r.kind,
			"from", from.PointID, "to", to.PointID, "err", err)
		searchTotal.WithLabelValues(string(r.kind), "error").Inc()
		r.setNoPath()
	case len(path) == 0:
		searchTotal.WithLabelValues(string(r.kind), "no_path").Inc()
		r.setNoPath()
	default:
		searchTotal.WithLabelValues(string(r.kind), "found").Inc()
		r.setFound(path)
	}
	r.publish(from, to, took)
}

// find runs the active strategy, turning errors and panics into
// ErrPathfindingInternal.
func (r *Resolver) find(ctx context.Context, from, to uint32) (path []uint32, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			path, err = nil, fmt.Errorf("%w: panic: %v", ErrPathfindingInternal, rec)
		}
	}()

	s, err := r.registry.Get(r.kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPathfindingInternal, err)
	}
	path, err = s.Find(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPathfindingInternal, err)
	}
	return path, nil
}

func (r *Resolver) setIdle() {
	r.state = StateIdle
	r.path = nil
	r.points = nil
	r.pathLength = 0
}

func (r *Resolver) setNoPath() {
	r.state = StateNoPath
	r.path = nil
	r.points = nil
	r.pathLength = 0
}

func (r *Resolver) setFound(path []uint32) {
	g := r.registry.Graph()
	r.state = StateFound
	r.path = path
	r.points = routing.PathPoints(g, path)
	r.pathLength = routing.PathLength(g, path)

	id, err := idgen.Path()
	if err != nil {
		id = "p-" + strconv.Itoa(r.styled)
	}
	n := r.styled
	r.styled++
	r.history = append(r.history, PathEntry{
		ID:      id,
		Points:  r.points,
		Path:    svgPath(r.points),
		Color:   pathColors[n%len(pathColors)],
		Opacity: pathOpacities[n%len(pathOpacities)],
		Width:   pathWidths[n%len(pathWidths)],
	})
	if over := len(r.history) - r.historyLimit; over > 0 {
		r.history = append([]PathEntry(nil), r.history[over:]...)
	}
}

func (r *Resolver) publish(from, to EndpointState, took time.Duration) {
	r.bus.Publish(events.RouteResolved{
		SessionID: r.sessionID,
		Finder:    string(r.kind),
		FromID:    from.PointID,
		ToID:      to.PointID,
		Found:     r.state == StateFound,
		NodeCount: len(r.path),
		Length:    r.pathLength,
		TookMS:    float64(took.Microseconds()) / 1000,
	})
}

// View returns a copy of the current route.
func (r *Resolver) View() RouteView {
	return RouteView{
		State:    r.state,
		Nodes:    append([]uint32(nil), r.path...),
		Points:   append([]geo.Point(nil), r.points...),
		SVGPath:  svgPath(r.points),
		SVGPaths: append([]PathEntry(nil), r.history...),
		NoPath:   r.state == StateNoPath,
	}
}

// svgPath renders points as "Mx0,y0 x1,y1 ...". No points render as "".
func svgPath(points []geo.Point) string {
	if len(points) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, p := range points {
		if i == 0 {
			sb.WriteByte('M')
		} else {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatFloat(p[0], 'f', -1, 64))
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatFloat(p[1], 'f', -1, 64))
	}
	return sb.String()
}
