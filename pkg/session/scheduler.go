package session

// Scheduler runs asynchronous session work (graph loads, index builds).
// Go must not run fn on the calling goroutine: sessions call it while
// holding their lock.
type Scheduler interface {
	Go(fn func())
}

// GoScheduler runs each task on its own goroutine.
type GoScheduler struct{}

func (GoScheduler) Go(fn func()) { go fn() }
