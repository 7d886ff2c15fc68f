package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/azybler/routeviz/pkg/events"
	"github.com/azybler/routeviz/pkg/graph"
	"github.com/azybler/routeviz/pkg/loader"
)

// manualScheduler queues tasks until the test runs them.
type manualScheduler struct {
	mu    sync.Mutex
	queue []func()
}

func (m *manualScheduler) Go(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, fn)
}

// RunNext runs the oldest queued task and reports whether there was one.
func (m *manualScheduler) RunNext() bool {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return false
	}
	fn := m.queue[0]
	m.queue = m.queue[1:]
	m.mu.Unlock()
	fn()
	return true
}

// RunAll runs tasks, including ones queued while running, until none remain.
func (m *manualScheduler) RunAll() {
	for m.RunNext() {
	}
}

func (m *manualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// memLoader serves datasets from memory.
type memLoader struct {
	graphs map[string]*graph.Graph
}

func (l *memLoader) Load(ctx context.Context, name string, sink loader.ProgressSink) (*loader.Loaded, error) {
	g, ok := l.graphs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", loader.ErrGraphNotFound, name)
	}
	if sink != nil {
		sink(loader.Progress{Message: "Loading " + name, Done: 1, Total: 2})
	}
	return loader.NewLoaded(g), nil
}

// recordingPublisher records forwarded topics.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

var _ events.Publisher = (*recordingPublisher)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// cityGraph has 14 nodes:
//
//	5 (0,0) --- 12 (100,0)       direct link, length 100
//	5 --- 6 (50,50) --- 12       detour
//	5 --- 11 --- 10 --- 9 --- 8 --- 7   spur going north
//	0 --- 1 --- 2 --- 3 --- 4    separate cluster far away
//	13                           isolated
func cityGraph() *graph.Graph {
	b := graph.NewBuilder()
	coords := [][2]float64{
		{1000, 1000}, {1050, 1000}, {1100, 1000}, {1150, 1000}, {1200, 1000}, // 0..4
		{0, 0},       // 5
		{50, 50},     // 6
		{0, 600},     // 7
		{0, 500},     // 8
		{0, 400},     // 9
		{0, 300},     // 10
		{0, 200},     // 11
		{100, 0},     // 12
		{5000, 5000}, // 13
	}
	for _, c := range coords {
		b.AddNode(c[0], c[1])
	}
	for _, l := range [][2]uint32{
		{0, 1}, {1, 2}, {2, 3}, {3, 4},
		{5, 12}, {5, 6}, {6, 12},
		{5, 11}, {11, 10}, {10, 9}, {9, 8}, {8, 7},
	} {
		b.AddLink(l[0], l[1])
	}
	return b.Build()
}

// villageGraph is a second, smaller dataset.
func villageGraph() *graph.Graph {
	b := graph.NewBuilder()
	b.AddNode(0, 0)
	b.AddNode(10, 0)
	b.AddNode(20, 0)
	b.AddLink(0, 1)
	b.AddLink(1, 2)
	return b.Build()
}

type fixture struct {
	s     *Session
	sched *manualScheduler
	pub   *recordingPublisher
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{sched: &manualScheduler{}, pub: &recordingPublisher{}}
	opts := Options{
		Loader: &memLoader{graphs: map[string]*graph.Graph{
			"city":    cityGraph(),
			"village": villageGraph(),
		}},
		Scheduler:     f.sched,
		Publisher:     f.pub,
		Logger:        discardLogger(),
		DefaultGraph:  "city",
		DefaultFinder: "nba",
		Graphs:        []string{"city", "village", "ghost"},
	}
	for _, m := range mutate {
		m(&opts)
	}
	f.s = New("s-test", opts)
	t.Cleanup(f.s.Close)
	return f
}

// started starts the session with rawQuery and runs every async task.
func (f *fixture) started(t *testing.T, rawQuery string) View {
	t.Helper()
	if err := f.s.Start(rawQuery); err != nil {
		t.Fatalf("Start(%q): %v", rawQuery, err)
	}
	f.sched.RunAll()
	return f.s.View()
}
