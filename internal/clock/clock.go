// Package clock provides Clock implementations.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock tells time and schedules deadlines.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled call that can be cancelled.
type Timer interface {
	// Stop prevents the call from firing. It returns false if the call already fired
	// or was stopped.
	Stop() bool
}

// Real uses the system clock.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc calls f in its own goroutine after d.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Fake provides a controllable clock for testing. Scheduled calls fire
// synchronously from Advance and Set, in deadline order.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	timers  []*fakeTimer
}

// NewFake creates a fake clock set to the given time.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// AfterFunc schedules f to run once the fake time reaches now+d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{clock: f, deadline: f.current.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Set sets the fake current time and fires due timers.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.current = t
	due := f.takeDue()
	f.mu.Unlock()

	for _, timer := range due {
		timer.fn()
	}
}

// Advance moves the fake time forward by duration d and fires due timers.
func (f *Fake) Advance(d time.Duration) {
	f.Set(f.Now().Add(d))
}

// Pending returns the number of scheduled timers that have not fired.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *Fake) takeDue() []*fakeTimer {
	var due, rest []*fakeTimer
	for _, t := range f.timers {
		if !t.deadline.After(f.current) {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	f.timers = rest

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	return due
}

func (f *Fake) remove(t *fakeTimer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, candidate := range f.timers {
		if candidate == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return true
		}
	}
	return false
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	fn       func()
}

func (t *fakeTimer) Stop() bool {
	return t.clock.remove(t)
}
