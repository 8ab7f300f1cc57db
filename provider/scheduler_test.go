package provider

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickerScheduler_Every(t *testing.T) {
	var ticks atomic.Int32
	stop := NewScheduler().Every(5*time.Millisecond, func() { ticks.Add(1) })

	assert.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, 5*time.Millisecond)

	// a tick already in flight when stop is called may still land, so let
	// it drain before taking the settled count
	stop()
	time.Sleep(25 * time.Millisecond)
	settled := ticks.Load()
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, settled, ticks.Load())
}

func TestRealClock(t *testing.T) {
	clock := NewClock()

	before := time.Now()
	now := clock.Now()
	assert.False(t, now.Before(before))

	select {
	case <-clock.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("clock.After never fired")
	}
}
