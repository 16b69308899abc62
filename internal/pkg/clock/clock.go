// Package clock provides the wall-clock collaborator used for every window
// and deadline check. All lifecycle guards read server time through this
// interface so tests can substitute a deterministic source.
package clock

import "time"

// Clock supplies the current server time.
type Clock interface {
	Now() time.Time
}

// Func adapts a plain function to the Clock interface.
type Func func() time.Time

// Now implements Clock.
func (f Func) Now() time.Time { return f() }

// System returns a Clock backed by time.Now.
func System() Clock {
	return Func(time.Now)
}
