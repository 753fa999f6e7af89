package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock time and timer creation so timer-driven
// behavior stays deterministic under test.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
	NewTicker(d time.Duration) Ticker
}

// Timer is a single-shot timer handle.
type Timer interface {
	Stop() bool
}

// Ticker delivers periodic ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real reads time from the system clock.
type Real struct{}

// New returns the system clock.
func New() Real { return Real{} }

func (Real) Now() time.Time { return time.Now().UTC() }

func (Real) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

func (Real) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Fake is a manually advanced clock for tests. Timers fire synchronously
// inside Advance in due order; ticker sends are non-blocking.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

// NewFake returns a fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{clock: f, at: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{clock: f, every: d, next: f.now.Add(d), ch: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, t)
	return t
}

// ActiveTickers reports how many tickers have not been stopped.
func (f *Fake) ActiveTickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

// Advance moves the clock forward, firing due timers and ticker sends in
// chronological order. Timer callbacks run without the clock lock held so
// they may schedule further work.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	end := f.now.Add(d)
	for {
		var (
			dueTimer  *fakeTimer
			dueTicker *fakeTicker
			when      time.Time
		)
		for _, t := range f.timers {
			if !t.at.After(end) && (when.IsZero() || t.at.Before(when)) {
				dueTimer, dueTicker, when = t, nil, t.at
			}
		}
		for _, t := range f.tickers {
			if !t.next.After(end) && (when.IsZero() || t.next.Before(when)) {
				dueTimer, dueTicker, when = nil, t, t.next
			}
		}
		if dueTimer == nil && dueTicker == nil {
			break
		}
		f.now = when
		if dueTicker != nil {
			dueTicker.next = dueTicker.next.Add(dueTicker.every)
			select {
			case dueTicker.ch <- when:
			default:
			}
			continue
		}
		f.removeTimer(dueTimer)
		f.mu.Unlock()
		dueTimer.fn()
		f.mu.Lock()
	}
	f.now = end
	f.mu.Unlock()
}

func (f *Fake) removeTimer(t *fakeTimer) {
	for i, cur := range f.timers {
		if cur == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return
		}
	}
}

func (f *Fake) removeTicker(t *fakeTicker) {
	for i, cur := range f.tickers {
		if cur == t {
			f.tickers = append(f.tickers[:i], f.tickers[i+1:]...)
			return
		}
	}
}

type fakeTimer struct {
	clock *Fake
	at    time.Time
	fn    func()
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	for _, cur := range t.clock.timers {
		if cur == t {
			t.clock.removeTimer(t)
			return true
		}
	}
	return false
}

type fakeTicker struct {
	clock *Fake
	every time.Duration
	next  time.Time
	ch    chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.clock.removeTicker(t)
}
