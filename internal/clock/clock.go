// Package clock abstracts the time source used by arbitration timeouts,
// liveness reaping and observer polling so tests can drive them
// deterministically.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is the subset of the time package the arbiter depends on.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f once d has elapsed. Stop on the returned Timer
	// cancels a call that has not started.
	AfterFunc(d time.Duration, f func()) Timer
	// NewTicker delivers ticks every d on the returned Ticker's channel.
	NewTicker(d time.Duration) Ticker
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop reports whether it prevented the call.
	Stop() bool
}

// Ticker delivers periodic ticks. The channel has capacity one and drops
// ticks the consumer has not read.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Fake is a manually advanced Clock. Time stands still until Advance is
// called; due callbacks then run synchronously on the caller's goroutine
// in deadline order. Callbacks must not call Advance.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	at       time.Time
	every    time.Duration
	fn       func()
	ch       chan time.Time
	stopped  bool
	fired    bool
	sequence uint64
}

// NewFake returns a Fake reading start.
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
	w := f.addLocked(d, 0)
	w.fn = fn
	return fakeTimer{f, w}
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	w := f.addLocked(d, d)
	w.ch = make(chan time.Time, 1)
	return fakeTicker{f, w}
}

func (f *Fake) addLocked(d, every time.Duration) *fakeWaiter {
	f.seq++
	w := &fakeWaiter{at: f.now.Add(d), every: every, sequence: f.seq}
	f.waiters = append(f.waiters, w)
	return w
}

// Pending returns the number of timers and tickers still scheduled.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.waiters {
		if !w.stopped && !w.fired {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing everything that falls due.
// A ticker spanning several intervals fires once per interval.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		w := f.nextDueLocked(target)
		if w == nil {
			break
		}
		f.now = w.at
		if w.every > 0 {
			w.at = w.at.Add(w.every)
			select {
			case w.ch <- f.now:
			default:
			}
			continue
		}
		w.fired = true
		fn := w.fn
		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}
	f.now = target
	f.compactLocked()
	f.mu.Unlock()
}

func (f *Fake) nextDueLocked(target time.Time) *fakeWaiter {
	var due []*fakeWaiter
	for _, w := range f.waiters {
		if !w.stopped && !w.fired && !w.at.After(target) {
			due = append(due, w)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].sequence < due[j].sequence
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

func (f *Fake) compactLocked() {
	live := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.stopped && !w.fired {
			live = append(live, w)
		}
	}
	f.waiters = live
}

type fakeTimer struct {
	f *Fake
	w *fakeWaiter
}

func (t fakeTimer) Stop() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.w.stopped || t.w.fired {
		return false
	}
	t.w.stopped = true
	return true
}

type fakeTicker struct {
	f *Fake
	w *fakeWaiter
}

func (t fakeTicker) C() <-chan time.Time { return t.w.ch }

func (t fakeTicker) Stop() {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	t.w.stopped = true
}
