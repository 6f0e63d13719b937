package registry

import "time"

// Clock abstracts wall time and one-shot timers so auto-completion can be
// driven by simulated time in tests. AfterFunc returns a cancellation handle
// that is stored alongside the session it belongs to.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) TimerHandle
}

type TimerHandle interface {
	// Stop cancels the timer; it reports false if the timer already fired.
	Stop() bool
}

type realClock struct{}

// NewClock returns the wall clock.
func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) TimerHandle {
	return time.AfterFunc(d, fn)
}
