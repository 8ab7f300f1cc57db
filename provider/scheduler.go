package provider

import "time"

// Clock abstracts time so tests can advance virtual time deterministically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Scheduler abstracts recurring background ticks (health checks, metrics
// decay, history pruning). Every returns a stop function.
type Scheduler interface {
	Every(d time.Duration, fn func()) (stop func())
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewClock returns the wall clock
func NewClock() Clock { return realClock{} }

type tickerScheduler struct{}

func (tickerScheduler) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

// NewScheduler returns a ticker-backed scheduler
func NewScheduler() Scheduler { return tickerScheduler{} }
