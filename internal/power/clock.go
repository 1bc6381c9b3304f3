package power

import "time"

// Clock abstracts the timer functions of package time so tests can control
// when the active timeout fires.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

// Timer is the subset of *time.Timer the machine uses.
type Timer interface {
	Stop() bool
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

func (wallClock) Now() time.Time { return time.Now() }

// WallClock is the Clock backed by package time.
var WallClock Clock = wallClock{}
