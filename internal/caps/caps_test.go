package caps

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnforcer(t *testing.T) (*Enforcer, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewEnforcer(client), mr
}

func intPtr(v int) *int { return &v }

func TestCheckAndIncrementDailyCap(t *testing.T) {
	e, _ := setupEnforcer(t)
	ctx := context.Background()

	first, err := e.CheckAndIncrement(ctx, "R1", intPtr(1), nil)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, int64(1), first.DayCount)

	second, err := e.CheckAndIncrement(ctx, "R1", intPtr(1), nil)
	require.NoError(t, err)
	assert.False(t, second.Allowed)
	assert.Equal(t, ReasonDailyCapExceeded, second.Reason)
	// The denied attempt still lands in the counter.
	assert.Equal(t, int64(2), second.DayCount)
}

func TestCheckAndIncrementMonthlyCap(t *testing.T) {
	e, _ := setupEnforcer(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := e.CheckAndIncrement(ctx, "R1", nil, intPtr(2))
		require.NoError(t, err)
		assert.True(t, res.Allowed, "attempt %d should be allowed", i+1)
	}

	res, err := e.CheckAndIncrement(ctx, "R1", nil, intPtr(2))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, ReasonMonthlyCapExceeded, res.Reason)
	assert.Equal(t, int64(3), res.MonthCount)
}

func TestCheckAndIncrementNoCapsSkipsRedis(t *testing.T) {
	e, mr := setupEnforcer(t)

	res, err := e.CheckAndIncrement(context.Background(), "R1", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Empty(t, mr.Keys(), "uncapped rules must not create counters")
}

func TestCheckAndIncrementOnlyCappedPeriodCounts(t *testing.T) {
	e, mr := setupEnforcer(t)
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	_, err := e.CheckAndIncrement(context.Background(), "R1", intPtr(5), nil)
	require.NoError(t, err)

	assert.True(t, mr.Exists("cap:R1:day:2026-03-15"))
	assert.False(t, mr.Exists("cap:R1:month:2026-03"))
}

func TestCheckAndIncrementBothCaps(t *testing.T) {
	e, _ := setupEnforcer(t)
	ctx := context.Background()

	// Daily 2, monthly 3: third attempt trips the daily cap first.
	for i := 0; i < 2; i++ {
		res, err := e.CheckAndIncrement(ctx, "R1", intPtr(2), intPtr(3))
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := e.CheckAndIncrement(ctx, "R1", intPtr(2), intPtr(3))
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, ReasonDailyCapExceeded, res.Reason)
	// Both counters reflect the denied attempt.
	assert.Equal(t, int64(3), res.DayCount)
	assert.Equal(t, int64(3), res.MonthCount)
}

func TestDayKeyRollsOverWithDate(t *testing.T) {
	e, mr := setupEnforcer(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	res, err := e.CheckAndIncrement(ctx, "R1", intPtr(1), nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// Next calendar day: fresh key, cap available again.
	now = time.Date(2026, 3, 16, 0, 1, 0, 0, time.UTC)
	res, err = e.CheckAndIncrement(ctx, "R1", intPtr(1), nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.DayCount)

	assert.True(t, mr.Exists("cap:R1:day:2026-03-15"))
	assert.True(t, mr.Exists("cap:R1:day:2026-03-16"))
}

func TestCounterTTLSetOnFirstIncrement(t *testing.T) {
	e, mr := setupEnforcer(t)
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	_, err := e.CheckAndIncrement(context.Background(), "R1", intPtr(10), intPtr(100))
	require.NoError(t, err)

	assert.Equal(t, 48*time.Hour, mr.TTL("cap:R1:day:2026-03-15"))
	assert.Equal(t, 35*24*time.Hour, mr.TTL("cap:R1:month:2026-03"))
}

func TestRulesDoNotShareCounters(t *testing.T) {
	e, _ := setupEnforcer(t)
	ctx := context.Background()

	res, err := e.CheckAndIncrement(ctx, "R1", intPtr(1), nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// A different rule has its own counter.
	res, err = e.CheckAndIncrement(ctx, "R2", intPtr(1), nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheckAndIncrementRedisDown(t *testing.T) {
	e, mr := setupEnforcer(t)
	mr.Close()

	_, err := e.CheckAndIncrement(context.Background(), "R1", intPtr(1), nil)
	assert.Error(t, err)
}

func TestCurrentUsage(t *testing.T) {
	e, _ := setupEnforcer(t)
	ctx := context.Background()

	usage, err := e.CurrentUsage(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.Day)
	assert.Equal(t, int64(0), usage.Month)

	for i := 0; i < 3; i++ {
		_, err := e.CheckAndIncrement(ctx, "R1", intPtr(10), intPtr(100))
		require.NoError(t, err)
	}

	usage, err = e.CurrentUsage(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), usage.Day)
	assert.Equal(t, int64(3), usage.Month)
}
