// Package clock abstracts time and deferred execution so that the chat and
// call state machines can be driven by virtual time in tests.
package clock

import "time"

// Clock supplies the current time and cancelable deferred callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending deferred callback. Stop reports whether the callback
// was canceled before it ran.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

// System returns a Clock backed by the time package.
func System() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
