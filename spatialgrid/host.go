package spatialgrid

import (
	"context"
	"runtime"
	"sync"
)

// Host is the scheduling loop a cooperative run yields to. Defer must run f
// no earlier than the host's next turn, and never on the calling stack.
type Host interface {
	Defer(f func())
}

// GoHost yields to the Go scheduler: each deferred function runs on a fresh
// goroutine after a runtime.Gosched.
type GoHost struct{}

// Defer implements Host.
func (GoHost) Defer(f func()) {
	go func() {
		runtime.Gosched()
		f()
	}()
}

// Loop is a single-threaded run loop. Deferred functions queue up in order
// and only run when the owner drives the loop with Run or RunOnce, which
// makes the interleaving of cooperative work explicit.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
	turns int
}

// NewLoop returns an empty loop.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Defer implements Host. It is safe to call from any goroutine.
func (l *Loop) Defer(f func()) {
	l.mu.Lock()
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued functions.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Turns returns how many deferred functions have run so far.
func (l *Loop) Turns() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.turns
}

// RunOnce runs the oldest queued function and reports whether there was one.
func (l *Loop) RunOnce() bool {
	l.mu.Lock()
	if len(l.queue) == 0 {
		l.mu.Unlock()
		return false
	}
	f := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	l.turns++
	l.mu.Unlock()

	f()
	return true
}

// Drain runs queued functions, including ones they defer, until the queue is
// empty.
func (l *Loop) Drain() {
	for l.RunOnce() {
	}
}

// Run keeps the loop going until ctx is done, sleeping while the queue is
// empty. It returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}
