package ratelimiter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClockPolicy selects where CheckLimit and GetUsageSince read the current time from.
type ClockPolicy uint8

const (
	// StoreClock asks Redis for the time so that every client sharing the store agrees on buckets.
	StoreClock ClockPolicy = iota
	// LocalClock uses the process clock.
	LocalClock
)

func (p ClockPolicy) String() string {
	switch p {
	case StoreClock:
		return "store"
	case LocalClock:
		return "local"
	default:
		return fmt.Sprintf("clock(%d)", uint8(p))
	}
}

// ParseClockPolicy accepts "store" (or "redis") and "local".
func ParseClockPolicy(s string) (ClockPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "store", "redis":
		return StoreClock, nil
	case "local":
		return LocalClock, nil
	default:
		return 0, fmt.Errorf("unknown clock policy %q: %w", s, ErrInvalidConfig)
	}
}

// Clock is the source of "now".
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

// ClockFunc adapts a plain function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now(context.Context) (time.Time, error) {
	return f().UTC(), nil
}

type storeClock struct {
	client redis.Cmdable
}

func (c storeClock) Now(ctx context.Context) (time.Time, error) {
	t, err := c.client.Time(ctx).Result()
	if err != nil {
		return time.Time{}, storeError("time", err)
	}
	return t.UTC(), nil
}

func newClock(p ClockPolicy, client redis.Cmdable, now func() time.Time) (Clock, error) {
	switch p {
	case StoreClock:
		return storeClock{client: client}, nil
	case LocalClock:
		if now == nil {
			now = time.Now
		}
		return ClockFunc(now), nil
	default:
		return nil, fmt.Errorf("unknown clock policy %s: %w", p, ErrInvalidConfig)
	}
}
