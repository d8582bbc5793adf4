// Package hostloop implements the single-threaded host the bridge delivers
// completions to. Callbacks posted from any goroutine run one at a time on
// the goroutine that calls Run, in the order they were posted.
package hostloop

import (
	"context"
	"errors"
	"sync"
)

var ErrRunning = errors.New("host loop is already running")

// Loop is a cooperative event loop. Work that will post a callback later
// holds a reference with Ref; Run keeps going while references are held or
// callbacks are queued.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	refs    int
	running bool
	wake    chan struct{}
}

func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues fn to run on the loop. It never blocks and is safe to call
// from any goroutine, including the loop itself.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
}

// Ref records outstanding work that keeps Run alive.
func (l *Loop) Ref() {
	l.mu.Lock()
	l.refs++
	l.mu.Unlock()
}

// Unref releases a reference taken with Ref.
func (l *Loop) Unref() {
	l.mu.Lock()
	if l.refs > 0 {
		l.refs--
	}
	l.mu.Unlock()
	l.signal()
}

// Complete posts fn and releases one reference after fn has run. Workers
// use it to hand their result back to the host.
func (l *Loop) Complete(fn func()) {
	l.Post(func() {
		defer l.Unref()
		fn()
	})
}

// Pending returns the number of held references.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refs
}

// Run drains the loop on the calling goroutine. It returns nil once the
// queue is empty and no references are held, or ctx's error if ctx ends
// first. Only one Run may be active at a time.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrRunning
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		idle := len(batch) == 0 && l.refs == 0
		l.mu.Unlock()

		if idle {
			return nil
		}
		if len(batch) > 0 {
			l.drain(batch)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// drain runs batch in order. If a callback panics, the callbacks after it
// go back to the front of the queue before the panic propagates, so a later
// Run still delivers them and releases their references.
func (l *Loop) drain(batch []func()) {
	i := 0
	defer func() {
		if i >= len(batch) {
			return
		}
		l.mu.Lock()
		l.queue = append(append([]func(){}, batch[i+1:]...), l.queue...)
		l.mu.Unlock()
	}()
	for ; i < len(batch); i++ {
		batch[i]()
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
