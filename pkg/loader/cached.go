package loader

import (
	"context"
	"sync"
)

// Cached memoizes successful loads by name so sessions share one copy of
// each dataset, spatial index included. Failed loads are not cached.
//
// Concurrent loads of the same name share one underlying call. That call
// runs detached from any single caller: a caller whose ctx ends stops
// waiting, and the call itself is cancelled only once every caller has left.
type Cached struct {
	inner Loader

	mu       sync.Mutex
	loaded   map[string]*Loaded
	inflight map[string]*call
}

type call struct {
	done   chan struct{}
	cancel context.CancelFunc
	res    *Loaded
	err    error

	// Guarded by Cached.mu.
	sinks  map[int]ProgressSink
	nextID int
}

// NewCached wraps inner.
func NewCached(inner Loader) *Cached {
	return &Cached{
		inner:    inner,
		loaded:   make(map[string]*Loaded),
		inflight: make(map[string]*call),
	}
}

func (c *Cached) Load(ctx context.Context, name string, sink ProgressSink) (*Loaded, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if l, ok := c.loaded[name]; ok {
		c.mu.Unlock()
		return l, nil
	}
	cl, ok := c.inflight[name]
	if !ok {
		callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		cl = &call{
			done:   make(chan struct{}),
			cancel: cancel,
			sinks:  make(map[int]ProgressSink),
		}
		c.inflight[name] = cl
		go c.run(callCtx, name, cl)
	}
	id := cl.nextID
	cl.nextID++
	cl.sinks[id] = sink
	c.mu.Unlock()

	select {
	case <-cl.done:
		return cl.res, cl.err
	case <-ctx.Done():
		c.leave(name, cl, id)
		return nil, ctx.Err()
	}
}

// leave drops a caller from cl, cancelling the call when nobody is left.
func (c *Cached) leave(name string, cl *call, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(cl.sinks, id)
	if len(cl.sinks) > 0 {
		return
	}
	if c.inflight[name] == cl {
		delete(c.inflight, name)
	}
	cl.cancel()
}

func (c *Cached) run(ctx context.Context, name string, cl *call) {
	res, err := c.inner.Load(ctx, name, c.fanOut(cl))

	c.mu.Lock()
	cl.res, cl.err = res, err
	if c.inflight[name] == cl {
		delete(c.inflight, name)
	}
	if err == nil {
		c.loaded[name] = res
	}
	cl.sinks = nil
	c.mu.Unlock()

	cl.cancel()
	close(cl.done)
}

// fanOut forwards progress to every caller still waiting on cl.
func (c *Cached) fanOut(cl *call) ProgressSink {
	return func(p Progress) {
		c.mu.Lock()
		sinks := make([]ProgressSink, 0, len(cl.sinks))
		for _, s := range cl.sinks {
			if s != nil {
				sinks = append(sinks, s)
			}
		}
		c.mu.Unlock()
		for _, s := range sinks {
			s(p)
		}
	}
}

// Forget drops a cached dataset.
func (c *Cached) Forget(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.loaded, name)
}
