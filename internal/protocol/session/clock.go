package session

import "time"

// Clock is the time source for every session timer.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// RealClock is the production Clock backed by the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// timerHandle pairs a scheduled timer with the id the fire path checks against.
type timerHandle struct {
	id    uint64
	timer Timer
}

func (h *timerHandle) stop() {
	if h != nil && h.timer != nil {
		h.timer.Stop()
	}
}
