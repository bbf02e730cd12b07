package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquire_AdmitsUpToLimitImmediately(t *testing.T) {
	l := New(map[string]int{"/quote": 5}, 1)
	start := time.Now()
	for i := 0; i < 5; i++ {
		l.Acquire("/quote")
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestAcquire_BlocksUntilWindowSlides(t *testing.T) {
	l := New(map[string]int{"/quote": 2}, 1)
	l.Acquire("/quote")
	l.Acquire("/quote")

	done := make(chan time.Time)
	start := time.Now()
	go func() {
		l.Acquire("/quote")
		done <- time.Now()
	}()

	select {
	case finish := <-done:
		// The first grant was taken just before start, so the slot frees up
		// one full window after it.
		assert.GreaterOrEqual(t, finish.Sub(start), window-time.Second)
	case <-time.After(window + 5*time.Second):
		t.Fatal("third acquire never returned")
	}
}

func TestUnregisteredEndpoint_UsesDefaultCell(t *testing.T) {
	l := New(nil, 3)
	assert.Equal(t, 3, l.Limit("/unregistered"))
	assert.Equal(t, 3, l.Limit(DefaultKey))
}

func TestThrottle_ShrinksByTwentyPercentWithFloorOne(t *testing.T) {
	l := New(map[string]int{"/quote": 2}, 1)
	l.Throttle("/quote") // floor(2*0.8) = 1
	assert.Equal(t, 1, l.Limit("/quote"))
	l.Throttle("/quote") // floor(1*0.8) = 0 -> clamped to 1
	assert.Equal(t, 1, l.Limit("/quote"))
}

func TestThrottle_NeverGrowsBack(t *testing.T) {
	l := New(map[string]int{"/quote": 10}, 1)
	l.Throttle("/quote")
	shrunk := l.Limit("/quote")
	assert.Less(t, shrunk, 10)
	// Acquiring and releasing pressure never restores the limit on its own.
	l.Acquire("/quote")
	assert.Equal(t, shrunk, l.Limit("/quote"))
}
