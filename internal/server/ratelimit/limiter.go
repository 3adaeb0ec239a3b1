// Package ratelimit implements fixed-window request counting per key.
//
// Windows are aligned to multiples of the window length since the Unix
// epoch, so every partition resets at the same instant. A client can
// therefore burst up to twice the limit across a boundary; that is the
// accepted cost of fixed windows. Requests over budget are rejected
// immediately, never queued.
package ratelimit

import (
	"context"
	"time"
)

// Policy is the budget applied to one protected route.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time left until the current window closes, rounded up
// to whole seconds and never less than one second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return (wait + time.Second - 1).Truncate(time.Second)
}

// Limiter counts requests for a single Policy.
type Limiter interface {
	Policy() Policy
	Allow(ctx context.Context, key string) (Decision, error)
}

// windowBounds returns the index and end of the window containing now.
func windowBounds(now time.Time, window time.Duration) (int64, time.Time) {
	idx := now.UnixNano() / int64(window)
	return idx, time.Unix(0, (idx+1)*int64(window))
}

func decide(p Policy, count int64, resetAt time.Time) Decision {
	remaining := int64(p.Limit) - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(p.Limit),
		Limit:     p.Limit,
		Remaining: int(remaining),
		ResetAt:   resetAt,
	}
}
