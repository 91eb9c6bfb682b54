package ratelimiter

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_End(t *testing.T) {
	at := time.Date(2022, 12, 31, 23, 59, 30, 0, time.UTC)

	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), Minute.End(at))
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), Hour.End(at))
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), Day.End(at))

	at = time.Date(2022, 5, 10, 9, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2022, 5, 10, 9, 16, 0, 0, time.UTC), Minute.End(at))
	assert.Equal(t, time.Date(2022, 5, 10, 10, 0, 0, 0, time.UTC), Hour.End(at))
	assert.Equal(t, time.Date(2022, 5, 11, 0, 0, 0, 0, time.UTC), Day.End(at))
}

func TestWindow_String(t *testing.T) {
	assert.Equal(t, "minute", Minute.String())
	assert.Equal(t, "hour", Hour.String())
	assert.Equal(t, "day", Day.String())
	assert.Equal(t, "window(7)", Window(7).String())
}

func TestTier_Validate(t *testing.T) {
	assert.NoError(t, Tier{Name: "free"}.validate())
	assert.NoError(t, Tier{Name: "gold", PerMinute: 1, PerHour: 2, PerDay: 3}.validate())
	assert.ErrorIs(t, Tier{}.validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Tier{Name: "bad", PerHour: -1}.validate(), ErrInvalidConfig)
}

func TestTier_Unlimited(t *testing.T) {
	assert.True(t, unlimitedTier.Unlimited())
	assert.False(t, simpleDailyTier.Unlimited())
}

func TestWindowCount_Remaining(t *testing.T) {
	assert.Equal(t, int64(-1), WindowCount{Window: Day, Count: 5}.Remaining())
	assert.Equal(t, int64(7), WindowCount{Window: Minute, Ceiling: 10, Count: 3}.Remaining())
	assert.Equal(t, int64(0), WindowCount{Window: Minute, Ceiling: 10, Count: 10}.Remaining())
}

func TestResult_Tightest(t *testing.T) {
	r := &Result{Counts: []WindowCount{
		{Window: Minute, Ceiling: 100, Count: 5},
		{Window: Hour, Ceiling: 10, Count: 5},
		{Window: Day, Count: 5},
	}}
	c, ok := r.Tightest()
	require.True(t, ok)
	assert.Equal(t, Hour, c.Window)

	_, ok = (&Result{Counts: []WindowCount{{Window: Day, Count: 1}}}).Tightest()
	assert.False(t, ok)
}

func TestParseClockPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ClockPolicy
		wantErr bool
	}{
		{in: "", want: StoreClock},
		{in: "store", want: StoreClock},
		{in: "Redis", want: StoreClock},
		{in: " local ", want: LocalClock},
		{in: "ntp", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClockPolicy(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) ClockPolicy {
	t.Helper()
	p, err := ParseClockPolicy(s)
	require.NoError(t, err)
	return p
}

func TestClockFunc_UTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	now, err := ClockFunc(func() time.Time {
		return time.Date(2022, 5, 11, 3, 0, 0, 0, loc)
	}).Now(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.UTC, now.Location())
	assert.Equal(t, civil.Date{Year: 2022, Month: 5, Day: 10}, civil.DateOf(now))
}

func TestCounterKey(t *testing.T) {
	at := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "rl:api:abc:m4", counterKey("rl", "api", "abc", Minute, at))
	assert.Equal(t, "rl:api:abc:h3", counterKey("rl", "api", "abc", Hour, at))
	assert.Equal(t, "rl:api:abc:d20200102", counterKey("rl", "api", "abc", Day, at))
	assert.Equal(t, ":api:abc:d20200102", dayKey("", "api", "abc", civil.Date{Year: 2020, Month: 1, Day: 2}))
}

func TestQuotaExceededError(t *testing.T) {
	var err error = &QuotaExceededError{Tier: "t", Window: Hour, Ceiling: 10, Observed: 11}
	assert.EqualError(t, err, "exceeded limit of 10/hour: 11")
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	qe, ok := IsQuotaExceeded(err)
	require.True(t, ok)
	assert.Equal(t, int64(11), qe.Observed)

	_, ok = IsQuotaExceeded(ErrUnknownTier)
	assert.False(t, ok)
}
