// File path: internal/form/scheduler.go
package form

import "time"

// CancelFunc cancels a scheduled callback. Cancelling after the callback has
// started is a no-op.
type CancelFunc func()

// Scheduler abstracts the debounce and backoff timers so tests can advance
// virtual time deterministically instead of sleeping on wall-clock timers.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) CancelFunc
}

type timerScheduler struct{}

// NewTimerScheduler returns the production scheduler backed by time.AfterFunc.
func NewTimerScheduler() Scheduler {
	return timerScheduler{}
}

func (timerScheduler) Schedule(delay time.Duration, fn func()) CancelFunc {
	timer := time.AfterFunc(delay, fn)
	return func() { timer.Stop() }
}
