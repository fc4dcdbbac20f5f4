// Package clock abstracts timers so polling loops are cancellable and
// testable without raw sleeps.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time and interval tickers.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks until stopped.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// New returns the wall clock.
func New() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (rt realTicker) Chan() <-chan time.Time { return rt.t.C }
func (rt realTicker) Stop()                  { rt.t.Stop() }

// Fake is a manually driven clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
	ch  chan time.Time
}

// NewFake creates a Fake clock fixed at now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now, ch: make(chan time.Time, 1)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTicker returns a ticker driven by Tick; the interval is ignored.
func (f *Fake) NewTicker(time.Duration) Ticker {
	return fakeTicker{f: f}
}

// Tick advances the clock by d and delivers one tick.
func (f *Fake) Tick(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	f.mu.Unlock()
	f.ch <- now
}

type fakeTicker struct {
	f *Fake
}

func (ft fakeTicker) Chan() <-chan time.Time { return ft.f.ch }
func (ft fakeTicker) Stop()                  {}
