package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ensure that RateLimiter satisfies an interface Limiter
var _ Limiter = &RateLimiter{}

// Options configure a RateLimiter.
type Options struct {
	Tiers  []Tier
	Prefix string
	Clock  ClockPolicy
	// TrackDailyUsage makes every call count against its day counter, even for
	// tiers without a daily ceiling, so that GetUsageSince can report it.
	TrackDailyUsage bool
	// MaxUsageDays caps the number of days GetUsageSince reads in one call.
	// Defaults to DefaultMaxUsageDays.
	MaxUsageDays int
	// Now is the time source of LocalClock. Defaults to time.Now.
	Now    func() time.Time
	Logger *zap.Logger
}

// DefaultMaxUsageDays is the GetUsageSince range used when Options.MaxUsageDays is zero.
const DefaultMaxUsageDays = 366

// RateLimiter enforces per-minute, per-hour and per-day ceilings using fixed-window
// counters in Redis. It keeps no state besides its configuration and is safe for
// concurrent use; every increment goes through a single MULTI/EXEC transaction.
type RateLimiter struct {
	client          redis.Cmdable
	tiers           map[string]Tier
	prefix          string
	clock           Clock
	trackDailyUsage bool
	maxUsageDays    int
	logger          *zap.Logger
}

func NewRateLimiter(client redis.Cmdable, opts Options) (*RateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil: %w", ErrInvalidConfig)
	}

	tiers := make(map[string]Tier, len(opts.Tiers))
	for _, t := range opts.Tiers {
		if err := t.validate(); err != nil {
			return nil, err
		}
		if _, dup := tiers[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tier %q: %w", t.Name, ErrInvalidConfig)
		}
		tiers[t.Name] = t
	}

	clock, err := newClock(opts.Clock, client, opts.Now)
	if err != nil {
		return nil, err
	}

	maxUsageDays := opts.MaxUsageDays
	switch {
	case maxUsageDays < 0:
		return nil, fmt.Errorf("max usage days must be >= 0, got %d: %w", maxUsageDays, ErrInvalidConfig)
	case maxUsageDays == 0:
		maxUsageDays = DefaultMaxUsageDays
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		client:          client,
		tiers:           tiers,
		prefix:          opts.Prefix,
		clock:           clock,
		trackDailyUsage: opts.TrackDailyUsage,
		maxUsageDays:    maxUsageDays,
		logger:          logger,
	}, nil
}

// Tier returns the registered tier called name.
func (rl *RateLimiter) Tier(name string) (Tier, bool) {
	t, ok := rl.tiers[name]
	return t, ok
}

// TrackDailyUsage reports whether day counters are kept for GetUsageSince.
func (rl *RateLimiter) TrackDailyUsage() bool {
	return rl.trackDailyUsage
}

// CheckLimit counts one call by (zone, key) against the windows of tierName.
//
// All counters are incremented before any is compared, so a call rejected on the
// minute window still consumes its hour and day budgets. The first window whose
// count is above its ceiling, in minute, hour, day order, is reported as a
// *QuotaExceededError.
func (rl *RateLimiter) CheckLimit(ctx context.Context, zone, key, tierName string) (*Result, error) {
	tier, ok := rl.tiers[tierName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tierName)
	}
	if zone == "" || key == "" {
		return nil, ErrEmptyKey
	}

	now, err := rl.clock.Now(ctx)
	if err != nil {
		rl.logger.Debug("Failed to read clock", zap.Error(err))
		return nil, err
	}

	active := rl.activeWindows(tier)
	result := &Result{
		Tier:   tier.Name,
		Time:   now,
		Counts: make([]WindowCount, 0, len(active)),
	}
	if len(active) == 0 {
		return result, nil
	}

	incrs := make([]*redis.IntCmd, len(active))
	_, err = rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, w := range active {
			k := counterKey(rl.prefix, zone, key, w, now)
			incrs[i] = pipe.Incr(ctx, k)
			if ttl := w.Expiry(); ttl > 0 {
				pipe.Expire(ctx, k, ttl)
			}
		}
		return nil
	})
	if err != nil {
		rl.logger.Debug("Failed to execute counter transaction",
			zap.String("zone", zone), zap.String("key", key), zap.Error(err))
		return nil, storeError("incr", err)
	}

	for i, w := range active {
		result.Counts = append(result.Counts, WindowCount{
			Window:  w,
			Ceiling: tier.Ceiling(w),
			Count:   incrs[i].Val(),
		})
	}

	for _, c := range result.Counts {
		if c.Ceiling == 0 || c.Count <= c.Ceiling {
			continue
		}
		reset := c.Window.End(now)
		rl.logger.Debug("Quota exceeded",
			zap.String("zone", zone),
			zap.String("key", key),
			zap.String("tier", tier.Name),
			zap.Stringer("window", c.Window),
			zap.Int64("ceiling", c.Ceiling),
			zap.Int64("observed", c.Count))
		return nil, &QuotaExceededError{
			Tier:       tier.Name,
			Window:     c.Window,
			Ceiling:    c.Ceiling,
			Observed:   c.Count,
			Reset:      reset,
			RetryAfter: reset.Sub(now),
		}
	}

	return result, nil
}

// activeWindows lists the windows that get incremented for tier, in evaluation order.
func (rl *RateLimiter) activeWindows(tier Tier) []Window {
	active := make([]Window, 0, len(windows))
	for _, w := range windows {
		if tier.Ceiling(w) > 0 || (w == Day && rl.trackDailyUsage) {
			active = append(active, w)
		}
	}
	return active
}
