// Package ratelimit implements the sliding-window admission controller spec'd
// for the scan pipeline: at most r requests granted to an endpoint within any
// trailing 60-second window, with adaptive shrink on upstream 429s.
package ratelimit

import (
	"sync"
	"time"

	"boxscan/internal/metrics"
)

const window = 60 * time.Second

// DefaultKey is the cell used for endpoint keys that were never registered.
const DefaultKey = "default"

type cell struct {
	mu      sync.Mutex
	limit   int
	granted []time.Time
}

// Limiter is a process-wide, per-endpoint sliding-window admission
// controller. The registry lock only guards lookup/installation of cells;
// each cell has its own lock, and no lock is ever held across a sleep.
type Limiter struct {
	regMu sync.Mutex
	cells map[string]*cell
}

// New creates a limiter pre-populated with the given endpoint -> requests-
// per-minute budgets. Keys not present here resolve to DefaultKey, which is
// registered with defaultLimit if not already present.
func New(limits map[string]int, defaultLimit int) *Limiter {
	if defaultLimit < 1 {
		defaultLimit = 1
	}
	l := &Limiter{cells: make(map[string]*cell, len(limits)+1)}
	for k, v := range limits {
		l.cells[k] = &cell{limit: clampLimit(v)}
	}
	if _, ok := l.cells[DefaultKey]; !ok {
		l.cells[DefaultKey] = &cell{limit: defaultLimit}
	}
	return l
}

func clampLimit(r int) int {
	if r < 1 {
		return 1
	}
	return r
}

func (l *Limiter) cellFor(endpoint string) *cell {
	l.regMu.Lock()
	defer l.regMu.Unlock()
	c, ok := l.cells[endpoint]
	if !ok {
		c = l.cells[DefaultKey]
	}
	return c
}

// Acquire blocks until a slot opens for endpoint, evicting grants older than
// the trailing 60s window and retrying the sleep computation each time it
// wakes. The cell lock is released before any sleep.
func (l *Limiter) Acquire(endpoint string) {
	c := l.cellFor(endpoint)
	for {
		c.mu.Lock()
		now := time.Now()
		c.evictLocked(now)
		if len(c.granted) < c.limit {
			c.granted = append(c.granted, now)
			c.mu.Unlock()
			return
		}
		wait := c.granted[0].Add(window).Sub(now)
		c.mu.Unlock()
		if wait > 0 {
			time.Sleep(wait)
		}
	}
}

func (c *cell) evictLocked(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(c.granted) && c.granted[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		c.granted = c.granted[i:]
	}
}

// Throttle reacts to an upstream 429 for endpoint by shrinking its budget to
// max(1, floor(0.8*r)). The limit never grows back on its own.
func (l *Limiter) Throttle(endpoint string) {
	c := l.cellFor(endpoint)
	c.mu.Lock()
	defer c.mu.Unlock()
	shrunk := int(float64(c.limit) * 0.8)
	if shrunk < 1 {
		shrunk = 1
	}
	c.limit = shrunk
	metrics.ObserveThrottle(endpoint)
}

// Limit returns the current per-minute budget for endpoint (for observability).
func (l *Limiter) Limit(endpoint string) int {
	c := l.cellFor(endpoint)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit
}
