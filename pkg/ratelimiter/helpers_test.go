package ratelimiter

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var (
	simpleMinuteTier      = Tier{Name: "10/minute", PerMinute: 10}
	simpleHourTier        = Tier{Name: "10/hour", PerHour: 10}
	simpleDailyTier       = Tier{Name: "10/day", PerDay: 10}
	longMinuteShortHour   = Tier{Name: "long_min_short_hour", PerMinute: 100, PerHour: 10}
	everythingSetShortDay = Tier{Name: "everything_set", PerMinute: 100, PerHour: 100, PerDay: 10}
	unlimitedTier         = Tier{Name: "unlimited"}
	testTiers             = []Tier{simpleMinuteTier, simpleHourTier, simpleDailyTier, longMinuteShortHour, everythingSetShortDay, unlimitedTier}
	defaultTestTime       = time.Date(2022, 5, 10, 9, 15, 0, 0, time.UTC)
)

// frozenClock is a controllable local clock that keeps miniredis TTLs in step.
type frozenClock struct {
	now    time.Time
	server *miniredis.Miniredis
}

func (c *frozenClock) Now() time.Time {
	return c.now
}

func (c *frozenClock) Set(t time.Time) {
	if d := t.Sub(c.now); d > 0 {
		c.server.FastForward(d)
	}
	c.now = t
}

func (c *frozenClock) Advance(d time.Duration) {
	c.Set(c.now.Add(d))
}

type testEnv struct {
	server *miniredis.Miniredis
	client *redis.Client
	clock  *frozenClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{
		Addr:       server.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	return &testEnv{
		server: server,
		client: client,
		clock:  &frozenClock{now: defaultTestTime, server: server},
	}
}

// limiter builds a limiter over the env. LocalClock limiters read the env's frozen clock.
func (e *testEnv) limiter(t *testing.T, opts Options) *RateLimiter {
	t.Helper()

	if opts.Tiers == nil {
		opts.Tiers = testTiers
	}
	if opts.Clock == LocalClock && opts.Now == nil {
		opts.Now = e.clock.Now
	}
	rl, err := NewRateLimiter(e.client, opts)
	require.NoError(t, err)
	return rl
}
