// Package clock provides the one-shot and periodic timer primitive used by
// the FSMs, the TIE database's aging loop, and the flooding engine's queue
// servicing and TIDE generation timers.
package clock

import "time"

// Timer is a single expiration source. It wraps time.Timer/time.Ticker so
// that owners can Stop and Reset it without worrying about draining a
// channel that may already have fired — the pattern described in spec.md §5
// ("Cancellation"): on Stop, any already-fired-but-unprocessed expiry is
// dropped.
type Timer struct {
	// C fires once per expiration. For a periodic timer it fires
	// repeatedly; for a one-shot it fires exactly once unless reset.
	C <-chan time.Time

	periodic bool
	interval time.Duration
	t        *time.Timer
	tk       *time.Ticker
	stopped  bool
}

// AfterFunc-free one-shot and periodic constructors; callers select on C
// themselves, matching the cooperative event-loop model of spec.md §5
// (suspension only at loop iteration boundaries).

// NewOneShot returns a Timer that fires once after d.
func NewOneShot(d time.Duration) *Timer {
	t := time.NewTimer(d)
	return &Timer{C: t.C, t: t, interval: d}
}

// NewPeriodic returns a Timer that fires every d until stopped.
func NewPeriodic(d time.Duration) *Timer {
	tk := time.NewTicker(d)
	return &Timer{C: tk.C, tk: tk, periodic: true, interval: d}
}

// Stop halts the timer. Safe to call multiple times. Per spec.md §5, a
// fired-but-unread expiry on the channel is considered dropped by
// convention: callers must not read from C after calling Stop.
func (tm *Timer) Stop() {
	if tm.stopped {
		return
	}
	tm.stopped = true
	if tm.periodic {
		tm.tk.Stop()
		return
	}
	tm.t.Stop()
}

// Reset restarts the timer with its current interval (one-shot) or
// immediately resumes the periodic cadence. Calling Reset after Stop
// reactivates the timer.
func (tm *Timer) Reset() {
	tm.stopped = false
	if tm.periodic {
		tm.tk.Reset(tm.interval)
		return
	}
	tm.t.Reset(tm.interval)
}

// ResetTo restarts a one-shot timer with a new interval, e.g. when a
// neighbor's advertised hold time changes.
func (tm *Timer) ResetTo(d time.Duration) {
	tm.interval = d
	tm.Reset()
}

// Stopped reports whether Stop has been called more recently than Reset.
func (tm *Timer) Stopped() bool {
	return tm.stopped
}
