package ratelimiter

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// GetUsageSince returns the day counters of (zone, key) for every date from since
// through today inclusive, in ascending order. Days without calls count 0.
// Ranges longer than the limiter's maximum fail with ErrUsageRangeTooLarge.
func (rl *RateLimiter) GetUsageSince(ctx context.Context, zone, key string, since civil.Date) ([]DailyUsage, error) {
	if !rl.trackDailyUsage {
		return nil, ErrDailyTrackingDisabled
	}
	if zone == "" || key == "" {
		return nil, ErrEmptyKey
	}

	now, err := rl.clock.Now(ctx)
	if err != nil {
		rl.logger.Debug("Failed to read clock", zap.Error(err))
		return nil, err
	}
	today := civil.DateOf(now)
	if since.After(today) {
		return []DailyUsage{}, nil
	}

	days := today.DaysSince(since) + 1
	if days > rl.maxUsageDays {
		return nil, fmt.Errorf("%w: %d days requested, at most %d", ErrUsageRangeTooLarge, days, rl.maxUsageDays)
	}
	gets := make([]*redis.StringCmd, days)
	_, err = rl.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i := range gets {
			gets[i] = pipe.Get(ctx, dayKey(rl.prefix, zone, key, since.AddDays(i)))
		}
		return nil
	})
	// redis.Nil only means some day has no counter
	if err != nil && !errors.Is(err, redis.Nil) {
		rl.logger.Debug("Failed to read day counters",
			zap.String("zone", zone), zap.String("key", key), zap.Error(err))
		return nil, storeError("get", err)
	}

	usage := make([]DailyUsage, 0, days)
	for i, get := range gets {
		count, err := get.Int64()
		if errors.Is(err, redis.Nil) {
			count = 0
		} else if err != nil {
			return nil, storeError("get", err)
		}
		usage = append(usage, DailyUsage{Date: since.AddDays(i), Count: count})
	}
	return usage, nil
}
