// Package expiry classifies option expiries as weekly or monthly and filters
// them down to the set a scan cycle should actually cover.
package expiry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"boxscan/internal/calendar"
	"boxscan/internal/model"
)

// InstrumentSource is the slice of the instrument store the classifier needs.
type InstrumentSource interface {
	ByExchange(exchange string) ([]*model.Instrument, error)
}

// Class is the expiry classification: monthly, weekly, or neither.
type Class int

const (
	Neither Class = iota
	Weekly
	Monthly
)

// Classify returns Monthly when t is the last Thursday of its month, Weekly
// when it is an earlier Thursday, and Neither otherwise.
func Classify(t time.Time) Class {
	if t.Weekday() != time.Thursday {
		return Neither
	}
	if calendar.IsLastThursday(t) {
		return Monthly
	}
	return Weekly
}

// Classifier computes and filters expiries for (underlying, exchange) pairs,
// caching the filtered result per composite key until Clear is called.
type Classifier struct {
	source InstrumentSource
	loc    *time.Location
	now    func() time.Time

	mu    sync.Mutex
	cache map[string][]time.Time
}

// New creates a Classifier over source. loc is the exchange-local timezone
// expiry dates are interpreted in.
func New(source InstrumentSource, loc *time.Location) *Classifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Classifier{source: source, loc: loc, now: time.Now, cache: map[string][]time.Time{}}
}

// Expiries returns (weekly, monthly) sorted ascending for (underlying,
// exchange), restricted by includeWeekly/includeMonthly.
func (c *Classifier) Expiries(underlying, exchange string, includeWeekly, includeMonthly bool) (weekly, monthly []time.Time, err error) {
	instruments, err := c.source.ByExchange(exchange)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch instruments for %s: %w", exchange, err)
	}

	underlyingLower := strings.ToLower(underlying)
	seen := map[int64]bool{}
	now := c.now()

	for _, inst := range instruments {
		if inst.Kind != model.KindOption {
			continue
		}
		symLower := strings.ToLower(inst.Symbol)
		matchesUnderlying := strings.ToLower(inst.Underlying) == underlyingLower
		matchesSymbol := strings.HasPrefix(symLower, underlyingLower) &&
			(strings.HasSuffix(symLower, "ce") || strings.HasSuffix(symLower, "pe"))
		if !matchesUnderlying && !matchesSymbol {
			continue
		}
		exp := inst.Expiry()
		if exp.IsZero() || !exp.After(now) {
			continue
		}
		key := exp.Unix()
		if seen[key] {
			continue
		}
		seen[key] = true

		switch Classify(exp) {
		case Monthly:
			if includeMonthly {
				monthly = append(monthly, exp)
			}
		case Weekly:
			if includeWeekly {
				weekly = append(weekly, exp)
			}
		}
	}

	sort.Slice(weekly, func(i, j int) bool { return weekly[i].Before(weekly[j]) })
	sort.Slice(monthly, func(i, j int) bool { return monthly[i].Before(monthly[j]) })
	return weekly, monthly, nil
}

// Filter drops expiries outside [minDays, maxDays] from now, sorts ascending,
// and truncates to maxCount. The result is cached per (underlying, exchange)
// until Clear is called.
func (c *Classifier) Filter(underlying, exchange string, expiries []time.Time, minDays, maxDays, maxCount int) []time.Time {
	key := underlying + "|" + exchange
	c.mu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	now := c.now()
	var filtered []time.Time
	for _, e := range expiries {
		days := int(e.Sub(now).Hours() / 24)
		if days < minDays || days > maxDays {
			continue
		}
		filtered = append(filtered, e)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Before(filtered[j]) })
	if maxCount > 0 && len(filtered) > maxCount {
		filtered = filtered[:maxCount]
	}

	c.mu.Lock()
	c.cache[key] = filtered
	c.mu.Unlock()
	return filtered
}

// Clear invalidates every cached filter result.
func (c *Classifier) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = map[string][]time.Time{}
}
