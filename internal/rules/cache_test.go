package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/lead-router/internal/domain"
)

type fakeSource struct {
	rules   []domain.AssignmentRule
	err     error
	fetches int
}

func (f *fakeSource) Fetch(ctx context.Context) ([]domain.AssignmentRule, error) {
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return f.rules, nil
}

func TestCacheColdFetchFailureIsAnError(t *testing.T) {
	// With nothing cached, an empty default would silently unassign real
	// leads. The error lets the queue redeliver instead.
	src := &fakeSource{err: errors.New("source down")}
	cache := NewCache(src, time.Minute)

	_, err := cache.Get(context.Background())
	assert.Error(t, err)
}

func TestCacheWithinTTLDoesNotRefetch(t *testing.T) {
	src := &fakeSource{rules: []domain.AssignmentRule{rule("R1", 1, "331")}}
	cache := NewCache(src, time.Minute)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	first, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, src.fetches)

	now = now.Add(30 * time.Second)
	second, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 1, src.fetches)
}

func TestCacheRefetchesAfterTTL(t *testing.T) {
	src := &fakeSource{rules: []domain.AssignmentRule{rule("R1", 1, "331")}}
	cache := NewCache(src, time.Minute)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	_, err := cache.Get(context.Background())
	require.NoError(t, err)

	src.rules = []domain.AssignmentRule{rule("R1", 1, "331"), rule("R2", 2, "90")}
	now = now.Add(61 * time.Second)

	got, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, src.fetches)
}

func TestCacheServesStaleOnRefreshFailure(t *testing.T) {
	src := &fakeSource{rules: []domain.AssignmentRule{rule("R1", 1, "331")}}
	cache := NewCache(src, time.Minute)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	_, err := cache.Get(context.Background())
	require.NoError(t, err)

	src.err = errors.New("source down")
	now = now.Add(10 * time.Minute)

	got, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "R1", got[0].RuleID)
}

func TestActiveForFunnelFiltersCachedSet(t *testing.T) {
	other := rule("R2", 1, "90")
	other.FunnelID = "solar"
	src := &fakeSource{rules: []domain.AssignmentRule{rule("R1", 1, "331"), other}}
	cache := NewCache(src, time.Minute)

	got, err := cache.ActiveForFunnel(context.Background(), "roofing")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "R1", got[0].RuleID)
}
