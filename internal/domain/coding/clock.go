package coding

import "time"

// Timer is the slice of *time.Timer the debounce logic needs.
type Timer interface {
	Stop() bool
}

// Clock arms debounce timers. The production clock delegates to
// time.AfterFunc; tests substitute a hand-driven fake so debounce behavior
// is deterministic.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock returns the time.AfterFunc-backed clock.
func RealClock() Clock { return realClock{} }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
