package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/lead-router/internal/domain"
	"github.com/ignite/lead-router/internal/pkg/logger"
)

// Cache serves the rule set with a TTL-bounded staleness window. A failed
// refresh serves the last-known-good set. Unlike the flag cache there is no
// safe default before the first fetch: an empty rule set would resolve real
// leads to a terminal unassigned state, so a cold cache with a dead source
// returns an error and lets the queue redeliver.
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu          sync.RWMutex
	current     []domain.AssignmentRule
	lastFetch   time.Time
	everFetched bool
}

// NewCache wraps a source with a TTL cache.
func NewCache(source Source, ttl time.Duration) *Cache {
	return &Cache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Get returns the current rule set, refreshing when the TTL has lapsed.
func (c *Cache) Get(ctx context.Context) ([]domain.AssignmentRule, error) {
	c.mu.RLock()
	fresh := c.everFetched && c.now().Sub(c.lastFetch) < c.ttl
	current := c.current
	c.mu.RUnlock()

	if fresh {
		return current, nil
	}

	rs, err := c.source.Fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.everFetched {
			logger.Warn("rule refresh failed, serving stale set", "error", err.Error(), "rules", fmt.Sprintf("%d", len(c.current)))
			return c.current, nil
		}
		return nil, fmt.Errorf("loading rules with empty cache: %w", err)
	}

	c.current = rs
	c.lastFetch = c.now()
	c.everFetched = true
	return rs, nil
}

// ActiveForFunnel returns the cached rules filtered for one funnel.
func (c *Cache) ActiveForFunnel(ctx context.Context, funnelID string) ([]domain.AssignmentRule, error) {
	all, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}
	return FilterForFunnel(all, funnelID), nil
}
