package flags

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/lead-router/internal/pkg/logger"
)

// Cache serves the flag set with a TTL-bounded staleness window. Reads within
// the TTL are served from memory; after expiry the next read refetches. A
// failed refetch keeps serving the last-known-good set so a config outage
// degrades to staleness, not to an outage of the pipeline itself.
//
// Concurrent readers crossing the TTL boundary may each trigger a fetch. The
// fetch is read-only, so duplicated work is harmless and not worth a
// single-flight gate.
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu          sync.RWMutex
	current     Flags
	lastFetch   time.Time
	everFetched bool
	lastErr     error
}

// NewCache wraps a source with a TTL cache.
func NewCache(source Source, ttl time.Duration) *Cache {
	return &Cache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Get returns the current flag set. It never fails: before the first
// successful fetch it returns the all-off defaults.
func (c *Cache) Get(ctx context.Context) Flags {
	c.mu.RLock()
	fresh := c.everFetched && c.now().Sub(c.lastFetch) < c.ttl
	current := c.current
	c.mu.RUnlock()

	if fresh {
		return current
	}

	f, err := c.source.Fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastErr = err
		if c.everFetched {
			logger.Warn("flag refresh failed, serving stale set", "error", err.Error())
			return c.current
		}
		logger.Warn("flag fetch failed with no cached set, serving defaults", "error", err.Error())
		return Defaults()
	}

	c.current = f
	c.lastFetch = c.now()
	c.everFetched = true
	c.lastErr = nil
	return f
}

// AssignmentEnabled reports whether the assignment service may run.
func (c *Cache) AssignmentEnabled(ctx context.Context) bool {
	return c.Get(ctx).EnableAssignmentService
}

// NotificationEnabled reports whether the notification service may run.
func (c *Cache) NotificationEnabled(ctx context.Context) bool {
	return c.Get(ctx).EnableNotificationService
}

// AnalyticsEnabled reports whether the analytics export may run.
func (c *Cache) AnalyticsEnabled(ctx context.Context) bool {
	return c.Get(ctx).EnableAnalyticsExport
}

// Snapshot reports the cached set and source health without triggering a
// fetch. Used by the ops API.
func (c *Cache) Snapshot() (f Flags, fetchedAt time.Time, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.everFetched {
		return Defaults(), time.Time{}, c.lastErr
	}
	return c.current, c.lastFetch, c.lastErr
}
