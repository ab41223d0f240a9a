// Package caps enforces per-rule daily and monthly assignment caps against
// Redis. The check-and-increment is a single Lua script, so concurrent
// handlers racing for the same rule's last slot cannot both win.
package caps

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denial reasons returned when a period cap is exceeded.
const (
	ReasonDailyCapExceeded   = "daily_cap_exceeded"
	ReasonMonthlyCapExceeded = "monthly_cap_exceeded"
)

// Counter key TTLs. Period rollover happens through the date in the key, the
// TTL only keeps dead keys from accumulating.
const (
	dayKeyTTLSeconds   = 48 * 60 * 60
	monthKeyTTLSeconds = 35 * 24 * 60 * 60
)

// Lua script for the atomic cap check. Counters are incremented FIRST and the
// post-increment value compared against the limit, so an over-cap attempt is
// still reflected in the counter. A limit below zero means the period is
// uncapped and its key is left untouched.
const capCheckLuaScript = `
local dayKey = KEYS[1]
local monthKey = KEYS[2]
local dayLimit = tonumber(ARGV[1])
local monthLimit = tonumber(ARGV[2])
local dayTTL = tonumber(ARGV[3])
local monthTTL = tonumber(ARGV[4])

local dayVal = 0
local monthVal = 0

if dayLimit >= 0 then
    dayVal = redis.call("INCRBY", dayKey, 1)
    if dayVal == 1 then
        redis.call("EXPIRE", dayKey, dayTTL)
    end
end

if monthLimit >= 0 then
    monthVal = redis.call("INCRBY", monthKey, 1)
    if monthVal == 1 then
        redis.call("EXPIRE", monthKey, monthTTL)
    end
end

if dayLimit >= 0 and dayVal > dayLimit then
    return {0, 1, dayVal, monthVal}
end
if monthLimit >= 0 and monthVal > monthLimit then
    return {0, 2, dayVal, monthVal}
end

return {1, 0, dayVal, monthVal}
`

// Result reports the outcome of one cap check.
type Result struct {
	Allowed    bool
	Reason     string
	DayCount   int64
	MonthCount int64
}

// Usage reports the current counter values for a rule, for the ops API.
type Usage struct {
	Day   int64 `json:"day"`
	Month int64 `json:"month"`
}

// Enforcer runs atomic cap checks against Redis.
type Enforcer struct {
	redis *redis.Client
	now   func() time.Time

	capCheckScript *redis.Script
}

// NewEnforcer creates an enforcer with a pre-compiled Lua script.
func NewEnforcer(redisClient *redis.Client) *Enforcer {
	return &Enforcer{
		redis:          redisClient,
		now:            time.Now,
		capCheckScript: redis.NewScript(capCheckLuaScript),
	}
}

// Connect dials Redis, verifies the connection, and returns an enforcer.
func Connect(ctx context.Context, addr, password string, db int) (*Enforcer, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Printf("[CapEnforcer] Connected to Redis at %s", addr)

	return NewEnforcer(client), nil
}

// CheckAndIncrement atomically counts an assignment attempt against the
// rule's caps. A nil cap means unlimited for that period and leaves its
// counter untouched; with both caps nil Redis is not contacted at all.
func (e *Enforcer) CheckAndIncrement(ctx context.Context, ruleID string, dailyCap, monthlyCap *int) (Result, error) {
	if dailyCap == nil && monthlyCap == nil {
		return Result{Allowed: true}, nil
	}

	now := e.now().UTC()
	dayKey := fmt.Sprintf("cap:%s:day:%s", ruleID, now.Format("2006-01-02"))
	monthKey := fmt.Sprintf("cap:%s:month:%s", ruleID, now.Format("2006-01"))

	dayLimit := -1
	if dailyCap != nil {
		dayLimit = *dailyCap
	}
	monthLimit := -1
	if monthlyCap != nil {
		monthLimit = *monthlyCap
	}

	raw, err := e.capCheckScript.Run(ctx, e.redis,
		[]string{dayKey, monthKey},
		dayLimit,
		monthLimit,
		dayKeyTTLSeconds,
		monthKeyTTLSeconds,
	).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("cap check failed for rule %s: %w", ruleID, err)
	}

	res := Result{
		Allowed:    raw[0].(int64) == 1,
		DayCount:   raw[2].(int64),
		MonthCount: raw[3].(int64),
	}
	switch raw[1].(int64) {
	case 1:
		res.Reason = ReasonDailyCapExceeded
	case 2:
		res.Reason = ReasonMonthlyCapExceeded
	}
	return res, nil
}

// CurrentUsage reads the counters for a rule without incrementing. Missing
// keys read as zero.
func (e *Enforcer) CurrentUsage(ctx context.Context, ruleID string) (Usage, error) {
	now := e.now().UTC()
	dayKey := fmt.Sprintf("cap:%s:day:%s", ruleID, now.Format("2006-01-02"))
	monthKey := fmt.Sprintf("cap:%s:month:%s", ruleID, now.Format("2006-01"))

	pipe := e.redis.Pipeline()
	dayCmd := pipe.Get(ctx, dayKey)
	monthCmd := pipe.Get(ctx, monthKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Usage{}, fmt.Errorf("reading cap usage for rule %s: %w", ruleID, err)
	}

	day, _ := dayCmd.Int64()
	month, _ := monthCmd.Int64()
	return Usage{Day: day, Month: month}, nil
}

// Close closes the Redis connection.
func (e *Enforcer) Close() error {
	return e.redis.Close()
}
