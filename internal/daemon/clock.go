package daemon

import "time"

// Clock abstracts timer creation so debounce timing is testable
// without real filesystem delays.
type Clock interface {
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of time.Timer the debounce loop uses.
type Timer interface {
	C() <-chan time.Time
	Reset(d time.Duration) bool
	Stop() bool
}

// RealClock backs timers with the wall clock.
type RealClock struct{}

// NewTimer implements Clock.
func (RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) C() <-chan time.Time        { return r.t.C }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }
func (r *realTimer) Stop() bool                 { return r.t.Stop() }
