package ratelimiter

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
)

// WindowCount is the post-increment count of one window.
type WindowCount struct {
	Window  Window
	Ceiling int64
	Count   int64
}

// Remaining is the budget left in the window, or -1 when the window has no ceiling.
func (c WindowCount) Remaining() int64 {
	if c.Ceiling == 0 {
		return -1
	}
	if c.Count >= c.Ceiling {
		return 0
	}
	return c.Ceiling - c.Count
}

// Result describes an allowed call.
type Result struct {
	Tier   string
	Time   time.Time
	Counts []WindowCount
}

// Tightest returns the enforced window with the least remaining budget.
func (r *Result) Tightest() (WindowCount, bool) {
	var (
		best  WindowCount
		found bool
	)
	for _, c := range r.Counts {
		if c.Ceiling == 0 {
			continue
		}
		if !found || c.Remaining() < best.Remaining() {
			best, found = c, true
		}
	}
	return best, found
}

// DailyUsage is the number of calls counted on one calendar day.
type DailyUsage struct {
	Date  civil.Date `json:"date"`
	Count int64      `json:"count"`
}

// Limiter is implemented by *RateLimiter.
type Limiter interface {
	CheckLimit(ctx context.Context, zone, key, tierName string) (*Result, error)
	GetUsageSince(ctx context.Context, zone, key string, since civil.Date) ([]DailyUsage, error)
}
