package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	mu    sync.Mutex
	index int64
	count int64
	// dropped is set by Cleanup once the counter is out of the map.
	dropped bool
}

// MemoryLimiter keeps per-key counters in process memory. Counters for
// different keys never contend with each other; the map lock is only held
// to find or create a counter.
type MemoryLimiter struct {
	policy   Policy
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time

	// afterLookup runs between finding a counter and incrementing it.
	afterLookup func()
}

// NewMemoryLimiter returns a limiter for p using the wall clock.
func NewMemoryLimiter(p Policy) *MemoryLimiter {
	return NewMemoryLimiterWithClock(p, time.Now)
}

// NewMemoryLimiterWithClock is NewMemoryLimiter with an injectable clock.
func NewMemoryLimiterWithClock(p Policy, now func() time.Time) *MemoryLimiter {
	return &MemoryLimiter{
		policy:   p,
		counters: make(map[string]*counter),
		now:      now,
	}
}

func (l *MemoryLimiter) Policy() Policy { return l.policy }

// Allow never fails; the error is always nil.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	idx, resetAt := windowBounds(l.now(), l.policy.Window)

	for {
		l.mu.Lock()
		c, ok := l.counters[key]
		if !ok {
			c = &counter{index: idx}
			l.counters[key] = c
		}
		l.mu.Unlock()

		if l.afterLookup != nil {
			l.afterLookup()
		}

		c.mu.Lock()
		if c.dropped {
			// Cleanup removed it after the lookup; a hit counted here would
			// be lost, so look the key up again.
			c.mu.Unlock()
			continue
		}
		if c.index != idx {
			c.index = idx
			c.count = 0
		}
		c.count++
		count := c.count
		c.mu.Unlock()

		return decide(l.policy, count, resetAt), nil
	}
}

// Cleanup drops counters from windows that have already closed and returns
// how many were removed.
func (l *MemoryLimiter) Cleanup() int {
	idx, _ := windowBounds(l.now(), l.policy.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, c := range l.counters {
		c.mu.Lock()
		if c.index < idx {
			c.dropped = true
			delete(l.counters, key)
			removed++
		}
		c.mu.Unlock()
	}
	return removed
}

// Len reports the number of tracked partitions.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}
