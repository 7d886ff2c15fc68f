package events

import (
	"context"
	"sync/atomic"
)

// NoopPublisher discards every forwarded event. The server falls back to it
// when nats.url is empty, so sessions keep publishing to their bus without
// an external sink.
type NoopPublisher struct {
	dropped atomic.Int64
}

// Publish counts the event and drops it.
func (p *NoopPublisher) Publish(_ context.Context, _ string, _ any) error {
	p.dropped.Add(1)
	return nil
}

// Dropped reports how many events were discarded.
func (p *NoopPublisher) Dropped() int64 { return p.dropped.Load() }

func (p *NoopPublisher) Close() error { return nil }
