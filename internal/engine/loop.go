package engine

import (
	"context"
	"time"
)

// submitBuffer bounds how many external requests can queue while a
// tick is in progress. Ticks are microseconds of work, so this is
// headroom rather than backpressure.
const submitBuffer = 256

// Loop is the single-goroutine cooperative scheduler. All engine state
// is confined to the goroutine running Run(); external callers reach it
// by submitting closures, and time-based work happens in tick handlers
// driven by one shared ticker.
//
// The loop itself never sleeps inside a handler: handlers inspect state
// and return, and suspended work is revisited on a later tick.
type Loop struct {
	interval time.Duration
	work     chan func()
	ticks    []func(now time.Time)
	started  chan struct{}
	done     chan struct{}
}

// NewLoop creates a loop with the given tick interval.
func NewLoop(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	return &Loop{
		interval: interval,
		work:     make(chan func(), submitBuffer),
		started:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnTick registers a handler invoked once per tick. Must be called
// before Run; there is no removal.
func (l *Loop) OnTick(fn func(now time.Time)) {
	l.ticks = append(l.ticks, fn)
}

// Run drives the loop until ctx is cancelled. It blocks; callers run
// it on a dedicated goroutine. Submitted closures and tick handlers
// all execute here, which is what makes the engine's state safe
// without locks.
func (l *Loop) Run(ctx context.Context) {
	close(l.started)
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Drain already-submitted work so synchronous callers
			// blocked on a reply channel are not stranded.
			for {
				select {
				case fn := <-l.work:
					fn()
				default:
					return
				}
			}
		case fn := <-l.work:
			fn()
		case now := <-ticker.C:
			for _, fn := range l.ticks {
				fn(now)
			}
		}
	}
}

// Submit schedules fn to run on the loop goroutine. It must not be
// called from a tick handler or another submitted closure; loop-side
// code calls engine internals directly instead.
func (l *Loop) Submit(fn func()) error {
	select {
	case <-l.started:
	default:
		return ErrNotStarted
	}
	select {
	case <-l.done:
		return ErrNotStarted
	case l.work <- fn:
		return nil
	}
}

// Started is closed when Run begins accepting work.
func (l *Loop) Started() <-chan struct{} { return l.started }

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }
