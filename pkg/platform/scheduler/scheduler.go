// Package scheduler provides a cancellable fixed-interval task.
//
// External progress (registrar order status, certificate issuance) is observed
// by polling. Owning the timer here keeps the polling cadence out of business
// logic and lets tests drive ticks through a fake ticker instead of sleeping.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// Signal is returned by the task func to control the loop.
type Signal int

const (
	// Continue keeps the task running.
	Continue Signal = iota
	// Done stops the task; the terminal condition was observed.
	Done
)

// Func is the unit of work run on each tick.
type Func func(ctx context.Context) Signal

// Ticker abstracts time.Ticker so tests can inject ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory builds a Ticker for a given interval.
type TickerFactory func(interval time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(interval time.Duration) Ticker {
	return realTicker{t: time.NewTicker(interval)}
}

// Task runs a Func at a fixed interval until it reports Done, the context is
// cancelled, or Stop is called.
type Task struct {
	interval  time.Duration
	fn        Func
	newTicker TickerFactory
	immediate bool

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Task.
type Option func(*Task)

// WithImmediate runs the first tick as soon as the task starts instead of
// waiting one interval. The purchase flow wants a status the moment the user
// returns from checkout, not three seconds later.
func WithImmediate() Option {
	return func(t *Task) { t.immediate = true }
}

// WithTickerFactory injects a fake ticker for tests.
func WithTickerFactory(factory TickerFactory) Option {
	return func(t *Task) {
		if factory != nil {
			t.newTicker = factory
		}
	}
}

// New creates a task; it does nothing until Start is called.
func New(interval time.Duration, fn Func, opts ...Option) *Task {
	t := &Task{
		interval:  interval,
		fn:        fn,
		newTicker: newRealTicker,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the task loop. Calling Start twice, or after Stop, is a no-op.
func (t *Task) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.stopped {
		return
	}
	t.started = true
	ctx, t.cancel = context.WithCancel(ctx)
	go t.run(ctx)
}

func (t *Task) run(ctx context.Context) {
	defer close(t.done)

	if t.immediate {
		if t.fn(ctx) == Done || ctx.Err() != nil {
			return
		}
	}

	ticker := t.newTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if t.fn(ctx) == Done {
				return
			}
		}
	}
}

// Stop cancels the task and waits for the loop to exit. Safe to call multiple
// times and before Start (a stopped task will refuse a later Start).
func (t *Task) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	started := t.started
	cancel := t.cancel
	t.mu.Unlock()

	if started {
		cancel()
		<-t.done
	}
}

// Done is closed when the loop has exited, whether by Done signal, context
// cancellation, or Stop.
func (t *Task) Done() <-chan struct{} { return t.done }
