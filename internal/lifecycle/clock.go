package lifecycle

import "time"

// Timer is a cancellable delayed callback. Stop and Reset follow the
// semantics of time.Timer for AfterFunc timers.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

// Clock supplies current time and delayed callbacks. It is injected so
// tests can simulate time passage deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// SystemClock returns the Clock backed by the time package.
func SystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
