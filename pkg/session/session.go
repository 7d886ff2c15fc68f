// Package session holds the per-user route planning state: the loaded graph,
// the two route endpoints, the resolver that keeps the route current, and
// the shareable query-string state.
//
// A Session is an event loop: every exported method and every asynchronous
// completion runs under one mutex, so components inside a session need no
// locking of their own.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"sync"

	"github.com/paulmach/orb"

	"github.com/azybler/routeviz/pkg/events"
	"github.com/azybler/routeviz/pkg/graph"
	"github.com/azybler/routeviz/pkg/loader"
	"github.com/azybler/routeviz/pkg/routing"
	"github.com/azybler/routeviz/pkg/spatial"
)

// Options configures a Session. Loader is required.
type Options struct {
	Loader    loader.Loader
	Scheduler Scheduler        // default GoScheduler
	Publisher events.Publisher // default NoopPublisher
	Logger    *slog.Logger     // default slog.Default()

	DefaultGraph  string
	DefaultFinder routing.Kind
	// Graphs lists the selectable datasets. Empty allows any name.
	Graphs       []string
	HistoryLimit int
	Nearest      spatial.NearestOptions
}

func (o Options) withDefaults() Options {
	if o.Scheduler == nil {
		o.Scheduler = GoScheduler{}
	}
	if o.Publisher == nil {
		o.Publisher = &events.NoopPublisher{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.DefaultGraph == "" {
		o.DefaultGraph = "amsterdam-roads"
	}
	if o.DefaultFinder == "" {
		o.DefaultFinder = routing.KindNBA
	}
	if o.HistoryLimit < 1 {
		o.HistoryLimit = 8
	}
	if o.Nearest.InitialRadius <= 0 {
		o.Nearest = spatial.DefaultNearestOptions()
	}
	return o
}

// Progress describes the state of the current graph load.
type Progress struct {
	Loading   bool   `json:"loading"`
	Message   string `json:"message"`
	Completed string `json:"completed"`
	TreeReady bool   `json:"treeReady"`
	Error     string `json:"error,omitempty"`
}

// Stats summarizes the loaded graph and the last search.
type Stats struct {
	Visible         bool    `json:"visible"`
	GraphNodeCount  string  `json:"graphNodeCount"`
	GraphLinksCount string  `json:"graphLinksCount"`
	LastSearchTook  float64 `json:"lastSearchTook"` // milliseconds
	PathLength      float64 `json:"pathLength"`
	PathLengthText  string  `json:"pathLengthText"`
	Recomputations  int     `json:"recomputations"`
}

// GraphInfo describes the loaded dataset.
type GraphInfo struct {
	Name   string    `json:"name"`
	Loaded bool      `json:"loaded"`
	BBox   orb.Bound `json:"bbox"`
}

// View is a consistent snapshot of a session.
type View struct {
	ID       string        `json:"id"`
	Query    string        `json:"query"`
	State    ExternalState `json:"state"`
	Graph    GraphInfo     `json:"graph"`
	Start    EndpointState `json:"start"`
	End      EndpointState `json:"end"`
	Route    RouteView     `json:"route"`
	Stats    Stats         `json:"stats"`
	Progress Progress      `json:"progress"`
}

// Session is the owned application state of one route planner user.
type Session struct {
	id   string
	opts Options
	log  *slog.Logger

	mu     sync.Mutex
	closed bool

	bus      *events.Bus
	start    *Endpoint
	end      *Endpoint
	resolver *Resolver
	query    *QuerySync

	// Replaced wholesale on every load.
	loaded   *loader.Loaded
	index    *spatial.Index
	registry *routing.Registry
	progress Progress

	generation uint64
	cancelLoad context.CancelFunc
}

// New creates a session in its initial state. Call Start to load a graph.
func New(id string, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		id:   id,
		opts: opts,
		log:  opts.Logger.With("session", id),
		bus:  events.NewBus(),
	}
	s.start = NewEndpoint(events.RoleStart, id, s.bus)
	s.end = NewEndpoint(events.RoleEnd, id, s.bus)
	s.resolver = NewResolver(id, s.bus, s.start, s.end, opts.DefaultFinder, opts.HistoryLimit, s.log)
	s.query = NewQuerySync(DefaultState(opts.DefaultGraph, opts.DefaultFinder), s.bus)

	for _, topic := range []string{events.TopicRouteResolved, events.TopicFinderChanged, events.TopicGraphLoaded, events.TopicGraphLoadFailed} {
		s.bus.Subscribe(topic, s.forward)
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// forward relays an event to the external publisher.
func (s *Session) forward(ev events.Event) {
	if err := s.opts.Publisher.Publish(context.Background(), ev.Topic(), ev); err != nil {
		s.log.Warn("publish event failed", "topic", ev.Topic(), "err", err)
	}
}

// Start applies the initial query string (for example from a shared link)
// and begins loading its graph. Ids in the query are restored once the
// graph has loaded.
func (s *Session) Start(rawQuery string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	st, err := ParseQuery(rawQuery, s.query.State())
	if err != nil {
		return err
	}
	kind, err := routing.ParseKind(st.Finder)
	if err != nil {
		return err
	}
	if err := s.checkGraph(st.Graph); err != nil {
		return err
	}

	s.query.Replace(st)
	s.resolver.kind = kind
	s.loadGraph(st.Graph)
	return nil
}

func (s *Session) checkGraph(name string) error {
	if len(s.opts.Graphs) > 0 && !slices.Contains(s.opts.Graphs, name) {
		return fmt.Errorf("%w: %q", ErrUnknownGraph, name)
	}
	return nil
}

// loadGraph starts an asynchronous load, superseding any load in flight.
// Callers hold mu.
func (s *Session) loadGraph(name string) {
	s.generation++
	gen := s.generation
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelLoad = cancel

	s.loaded = nil
	s.index = nil
	s.registry = nil
	s.resolver.Bind(nil)
	s.query.Muted(func() {
		s.resolver.Batch(func() {
			s.start.Clear()
			s.end.Clear()
		})
	})
	s.resolver.Reset()
	s.progress = Progress{Loading: true, Message: "Loading " + name, Completed: "0%"}

	s.log.Info("loading graph", "graph", name, "generation", gen)
	s.opts.Scheduler.Go(func() {
		loaded, err := s.opts.Loader.Load(ctx, name, s.loadProgress(gen))
		s.finishLoad(ctx, gen, name, loaded, err)
	})
}

func (s *Session) loadProgress(gen uint64) loader.ProgressSink {
	return func(p loader.Progress) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.generation {
			return
		}
		s.progress.Message = p.Message
		if p.Total > 0 {
			s.progress.Completed = percent(int(p.Done), int(p.Total))
		}
	}
}

func (s *Session) finishLoad(ctx context.Context, gen uint64, name string, loaded *loader.Loaded, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.closed {
		graphLoadTotal.WithLabelValues("stale").Inc()
		s.log.Debug("discarding stale graph load", "graph", name, "generation", gen)
		return
	}

	if err != nil {
		graphLoadTotal.WithLabelValues("error").Inc()
		s.log.Error("graph load failed", "graph", name, "err", err)
		s.progress = Progress{
			Message: "Could not load the graph",
			Error:   fmt.Errorf("%w: %w", ErrGraphLoadFailed, err).Error(),
		}
		s.bus.Publish(events.GraphLoadFailed{SessionID: s.id, Graph: name, Error: err.Error()})
		return
	}
	graphLoadTotal.WithLabelValues("ok").Inc()

	g := loaded.Graph
	s.loaded = loaded
	s.registry = routing.NewRegistry(g, routing.Options{})
	s.resolver.Bind(s.registry)
	s.index = loaded.Index
	if s.index == nil {
		s.index = spatial.NewIndex(loaded.Points)
	}
	s.progress = Progress{Loading: false, Message: "Initializing tree for point & click", Completed: "0%"}
	s.log.Info("graph loaded", "graph", name, "nodes", g.NumNodes, "links", g.LinkCount())
	s.bus.Publish(events.GraphLoaded{SessionID: s.id, Graph: name, Nodes: g.NumNodes, Links: g.LinkCount()})

	s.resolver.Within(ctx, s.restoreEndpoints)

	index := s.index
	s.opts.Scheduler.Go(func() {
		err := index.Build(ctx, s.indexProgress(gen))
		s.finishIndex(gen, err)
	})
}

func (s *Session) indexProgress(gen uint64) spatial.ProgressFunc {
	return func(done, total int) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.generation {
			return
		}
		s.progress.Completed = percent(done, total)
	}
}

func (s *Session) finishIndex(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	if err != nil {
		s.log.Warn("index build aborted", "err", err)
		return
	}
	s.progress.Completed = "100%"
	s.progress.TreeReady = true
}

// restoreEndpoints binds the endpoints to the ids in the external state.
// Ids that do not name a node leave the endpoint unset and are reset to -1.
// Callers hold mu.
func (s *Session) restoreEndpoints() {
	st := s.query.State()
	s.resolver.Batch(func() {
		s.bindOrClear(s.start, st.FromID)
		s.bindOrClear(s.end, st.ToID)
	})
}

func (s *Session) bindOrClear(e *Endpoint, id int64) {
	if s.loaded != nil {
		if n, ok := s.loaded.Graph.Node(id); ok {
			e.SetFrom(n)
			return
		}
	}
	if id >= 0 {
		s.log.Debug("ignoring unknown node id", "role", e.Role(), "id", id)
	}
	e.Clear()
}

// HandleClick applies the selection cycle at (x, y): bind start, then end,
// then clear both. It fails with spatial.ErrIndexNotReady until the graph
// and its index are ready. ctx bounds the resulting search.
func (s *Session) HandleClick(ctx context.Context, x, y float64) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx); err != nil {
		return View{}, err
	}

	var err error
	s.resolver.Within(ctx, func() {
		switch {
		case !s.start.Bound():
			err = s.bindNearest(s.start, x, y)
		case !s.end.Bound():
			err = s.bindNearest(s.end, x, y)
		default:
			s.clearRoute()
		}
	})
	if err != nil {
		return View{}, err
	}
	return s.view(), nil
}

// enter rejects calls on a closed session or with an expired ctx, before
// anything changes. Callers hold mu.
func (s *Session) enter(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	return ctx.Err()
}

func (s *Session) bindNearest(e *Endpoint, x, y float64) error {
	if s.index == nil || !s.index.Ready() {
		return spatial.ErrIndexNotReady
	}
	id, err := s.index.FindNearestPointWith(x, y, s.opts.Nearest)
	if err != nil {
		return err
	}
	n, _ := s.loaded.Graph.Node(int64(id))
	e.SetFrom(n)
	return nil
}

// ClearRoute unsets both endpoints. Clearing an empty route is harmless.
func (s *Session) ClearRoute() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearRoute()
	return s.view()
}

func (s *Session) clearRoute() {
	s.resolver.Batch(func() {
		s.start.Clear()
		s.end.Clear()
	})
	s.resolver.ClearHistory()
}

// SelectAlgorithm switches the finder. An unknown key returns
// routing.ErrUnknownAlgorithm and leaves the session untouched.
func (s *Session) SelectAlgorithm(ctx context.Context, key string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx); err != nil {
		return View{}, err
	}
	kind, err := routing.ParseKind(key)
	if err != nil {
		return View{}, err
	}
	s.resolver.Within(ctx, func() { s.resolver.SetKind(kind) })
	return s.view(), nil
}

// SelectGraph switches to another dataset, resetting both ids.
func (s *Session) SelectGraph(name string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return View{}, ErrClosed
	}
	if err := s.checkGraph(name); err != nil {
		return View{}, err
	}
	s.query.SetGraph(name)
	s.loadGraph(name)
	return s.view(), nil
}

// ApplyQuery applies an inbound query string, as when the URL changes.
func (s *Session) ApplyQuery(ctx context.Context, raw string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx); err != nil {
		return View{}, err
	}
	next, err := ParseQuery(raw, s.query.State())
	if err != nil {
		return View{}, err
	}
	if err := s.apply(ctx, next); err != nil {
		return View{}, err
	}
	return s.view(), nil
}

// Apply applies an inbound external state.
func (s *Session) Apply(ctx context.Context, next ExternalState) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx); err != nil {
		return View{}, err
	}
	if err := s.apply(ctx, next); err != nil {
		return View{}, err
	}
	return s.view(), nil
}

func (s *Session) apply(ctx context.Context, next ExternalState) error {
	kind, err := routing.ParseKind(next.Finder)
	if err != nil {
		return err
	}
	changes := s.query.Diff(next)

	if changes.Graph {
		if err := s.checkGraph(next.Graph); err != nil {
			return err
		}
		s.resolver.kind = kind
		s.query.Replace(next)
		s.query.SetGraph(next.Graph)
		s.loadGraph(next.Graph)
		return nil
	}

	s.resolver.Within(ctx, func() {
		s.resolver.Batch(func() {
			if changes.Finder {
				s.resolver.SetKind(kind)
			}
			if changes.Endpoints {
				s.query.Replace(next)
				if s.loaded != nil {
					s.restoreEndpoints()
				}
			}
		})
	})
	return nil
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (s *Session) view() View {
	st := s.query.State()
	route := s.resolver.View()
	v := View{
		ID:    s.id,
		Query: st.Encode(),
		State: st,
		Graph: GraphInfo{Name: st.Graph},
		Start: s.start.Snapshot(),
		End:   s.end.Snapshot(),
		Route: route,
		Stats: Stats{
			Visible:        route.State == StateFound,
			LastSearchTook: float64(s.resolver.lastSearchTook.Microseconds()) / 1000,
			PathLength:     s.resolver.pathLength,
			PathLengthText: withCommas(int64(math.Round(s.resolver.pathLength))),
			Recomputations: s.resolver.recomputations,
		},
		Progress: s.progress,
	}
	if s.loaded != nil {
		g := s.loaded.Graph
		v.Graph.Loaded = true
		v.Graph.BBox = s.loaded.BBox
		v.Stats.GraphNodeCount = withCommas(int64(g.NumNodes))
		v.Stats.GraphLinksCount = withCommas(int64(g.LinkCount()))
	}
	return v
}

// Graph returns the loaded graph, or nil while loading.
func (s *Session) Graph() *graph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded == nil {
		return nil
	}
	return s.loaded.Graph
}

// Close cancels any load in flight. Further calls fail with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
}

func percent(done, total int) string {
	if total <= 0 {
		return "0%"
	}
	return strconv.Itoa(int(math.Round(100*float64(done)/float64(total)))) + "%"
}

// withCommas groups digits in threes: 1234567 -> "1,234,567".
func withCommas(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := s[0] == '-'
	if neg {
		s = s[1:]
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
