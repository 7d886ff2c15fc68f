package loader

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azybler/routeviz/pkg/graph"
)

func writeGraph(t *testing.T, dir, name string) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder()
	b.AddNode(0, 0)
	b.AddNode(30, 40)
	b.AddNode(-10, 5)
	b.AddLink(0, 1)
	b.AddLink(1, 2)
	g := b.Build()
	require.NoError(t, graph.WriteBinary(filepath.Join(dir, name+FileSuffix), g))
	return g
}

func TestDirLoader(t *testing.T) {
	dir := t.TempDir()
	want := writeGraph(t, dir, "tiny")

	var reports []Progress
	l := NewDirLoader(dir)
	got, err := l.Load(context.Background(), "tiny", func(p Progress) {
		reports = append(reports, p)
	})
	require.NoError(t, err)

	assert.Equal(t, want.NumNodes, got.Graph.NumNodes)
	assert.Equal(t, want.NumEdges, got.Graph.NumEdges)
	assert.Equal(t, []float64{0, 0, 30, 40, -10, 5}, got.Points)
	assert.Equal(t, -10.0, got.BBox.Min[0])
	assert.Equal(t, 40.0, got.BBox.Max[1])
	assert.Equal(t, 3, got.Index.Len())
	assert.False(t, got.Index.Ready())

	require.NotEmpty(t, reports)
	last := reports[len(reports)-1]
	assert.Equal(t, last.Total, last.Done)
}

func TestDirLoaderNotFound(t *testing.T) {
	l := NewDirLoader(t.TempDir())
	for _, name := range []string{"missing", "", "../etc/passwd", ".."} {
		_, err := l.Load(context.Background(), name, nil)
		assert.ErrorIs(t, err, ErrGraphNotFound, name)
	}
}

func TestDirLoaderCancelled(t *testing.T) {
	dir := t.TempDir()
	writeGraph(t, dir, "tiny")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDirLoader(dir).Load(ctx, "tiny", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// countingLoader is a Loader that counts calls and can be made to fail.
// With a gate it blocks until the gate closes or ctx ends.
type countingLoader struct {
	calls     atomic.Int32
	cancelled atomic.Int32
	fail      error
	gate      chan struct{}
}

func (c *countingLoader) Load(ctx context.Context, name string, sink ProgressSink) (*Loaded, error) {
	c.calls.Add(1)
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			c.cancelled.Add(1)
			return nil, ctx.Err()
		}
	}
	if c.fail != nil {
		return nil, c.fail
	}
	if sink != nil {
		sink(Progress{Message: "Loading " + name, Done: 1, Total: 1})
	}
	b := graph.NewBuilder()
	b.AddNode(1, 1)
	return NewLoaded(b.Build()), nil
}

func TestCachedMemoizes(t *testing.T) {
	inner := &countingLoader{}
	c := NewCached(inner)

	a, err := c.Load(context.Background(), "x", nil)
	require.NoError(t, err)
	b, err := c.Load(context.Background(), "x", nil)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, int32(1), inner.calls.Load())

	c.Forget("x")
	_, err = c.Load(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	boom := errors.New("boom")
	inner := &countingLoader{fail: boom}
	c := NewCached(inner)

	_, err := c.Load(context.Background(), "x", nil)
	assert.ErrorIs(t, err, boom)
	_, err = c.Load(context.Background(), "x", nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedSharesInflight(t *testing.T) {
	inner := &countingLoader{gate: make(chan struct{})}
	c := NewCached(inner)

	var wg sync.WaitGroup
	results := make([]*Loaded, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := c.Load(context.Background(), "x", nil)
			assert.NoError(t, err)
			results[i] = l
		}()
	}

	// Wait for the first call to reach the inner loader before releasing it.
	require.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(inner.gate)
	wg.Wait()

	assert.Equal(t, int32(1), inner.calls.Load())
	for _, l := range results {
		assert.Same(t, results[0], l)
	}
}

// waiting returns how many callers wait on the in-flight load of name.
func (c *Cached) waiting(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.inflight[name]; ok {
		return len(cl.sinks)
	}
	return 0
}

func TestCachedCallerCancelLeavesOthersLoading(t *testing.T) {
	inner := &countingLoader{gate: make(chan struct{})}
	c := NewCached(inner)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Load(ctxA, "amsterdam-roads", func(Progress) {})
		errA <- err
	}()
	require.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, time.Millisecond)

	var messages []string
	type result struct {
		l   *Loaded
		err error
	}
	resB := make(chan result, 1)
	go func() {
		l, err := c.Load(context.Background(), "amsterdam-roads", func(p Progress) {
			messages = append(messages, p.Message)
		})
		resB <- result{l, err}
	}()
	require.Eventually(t, func() bool { return c.waiting("amsterdam-roads") == 2 }, time.Second, time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(inner.gate)
	r := <-resB
	require.NoError(t, r.err)
	require.NotNil(t, r.l)
	assert.NotNil(t, r.l.Index)
	assert.Equal(t, []string{"Loading amsterdam-roads"}, messages)
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Zero(t, inner.cancelled.Load(), "the shared load outlives one caller")
}

func TestCachedCancelsWhenEveryCallerLeaves(t *testing.T) {
	inner := &countingLoader{gate: make(chan struct{})}
	c := NewCached(inner)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Load(ctx, "x", nil)
		errc <- err
	}()
	require.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	require.Eventually(t, func() bool { return inner.cancelled.Load() == 1 }, time.Second, time.Millisecond)

	// A later caller starts a fresh load.
	close(inner.gate)
	_, err := c.Load(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedRejectsExpiredContext(t *testing.T) {
	inner := &countingLoader{}
	c := NewCached(inner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Load(ctx, "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, inner.calls.Load())
}

func TestS3LoaderKey(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	l, err := NewS3Loader(context.Background(), "graphs", "datasets/", "us-east-1", "http://localhost:9000")
	require.NoError(t, err)
	assert.Equal(t, "datasets/amsterdam-roads.graph.bin", l.Key("amsterdam-roads"))

	_, err = l.Load(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrGraphNotFound)
}
