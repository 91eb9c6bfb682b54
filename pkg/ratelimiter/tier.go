package ratelimiter

import (
	"fmt"
	"time"
)

// Window is the granularity of a fixed-window counter.
type Window uint8

const (
	Minute Window = iota
	Hour
	Day
)

// windows lists every granularity in evaluation order.
var windows = [...]Window{Minute, Hour, Day}

func (w Window) String() string {
	switch w {
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	default:
		return fmt.Sprintf("window(%d)", uint8(w))
	}
}

// Expiry is the TTL set on a counter after each increment. Day counters never expire.
func (w Window) Expiry() time.Duration {
	switch w {
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	default:
		return 0
	}
}

// End returns the instant at which the bucket containing t rolls over.
func (w Window) End(t time.Time) time.Time {
	t = t.UTC()
	switch w {
	case Minute:
		return t.Truncate(time.Minute).Add(time.Minute)
	case Hour:
		return t.Truncate(time.Hour).Add(time.Hour)
	default:
		y, m, d := t.Date()
		return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
	}
}

// Tier is a named set of ceilings. A zero ceiling disables enforcement for that window.
type Tier struct {
	Name      string `yaml:"name" json:"name"`
	PerMinute int64  `yaml:"per_minute" json:"per_minute"`
	PerHour   int64  `yaml:"per_hour" json:"per_hour"`
	PerDay    int64  `yaml:"per_day" json:"per_day"`
}

// Ceiling returns the tier's ceiling for w.
func (t Tier) Ceiling(w Window) int64 {
	switch w {
	case Minute:
		return t.PerMinute
	case Hour:
		return t.PerHour
	case Day:
		return t.PerDay
	default:
		return 0
	}
}

// Unlimited reports whether no window of the tier has a ceiling.
func (t Tier) Unlimited() bool {
	return t.PerMinute == 0 && t.PerHour == 0 && t.PerDay == 0
}

func (t Tier) validate() error {
	if t.Name == "" {
		return fmt.Errorf("tier name is empty: %w", ErrInvalidConfig)
	}
	for _, w := range windows {
		if t.Ceiling(w) < 0 {
			return fmt.Errorf("tier %q: per-%s ceiling must be >= 0: %w", t.Name, w, ErrInvalidConfig)
		}
	}
	return nil
}
