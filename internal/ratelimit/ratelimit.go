// Package ratelimit implements fixed-window request counting on the shared
// store. Counters live under ratelimit:{action}:{identifier}:{window_start}
// with a TTL of one window, so stale windows clean themselves up.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/casperarmani/backendmultchat/internal/redisstore"
)

var limiterRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ratelimit_rejections_total",
	Help: "Total number of requests rejected by the rate limiter",
}, []string{"action"})

// Rule is the per-action limit within one fixed window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// DefaultRule applies to actions without an explicit rule.
var DefaultRule = Rule{Limit: 60, Window: time.Minute}

// Limiter checks per-(action, identifier) fixed-window counters. The
// increment-and-compare is a single atomic INCR, so two concurrent hits can
// never both observe a pre-increment count.
type Limiter struct {
	rdb    *redisstore.Client
	rules  map[string]Rule
	logger zerolog.Logger

	now func() time.Time
}

// New creates a limiter with per-action rules. Actions not present in rules
// fall back to DefaultRule.
func New(rdb *redisstore.Client, rules map[string]Rule, logger zerolog.Logger) *Limiter {
	return &Limiter{
		rdb:    rdb,
		rules:  rules,
		logger: logger.With().Str("component", "ratelimit").Logger(),
		now:    time.Now,
	}
}

func (l *Limiter) rule(action string) Rule {
	if r, ok := l.rules[action]; ok && r.Limit > 0 && r.Window > 0 {
		return r
	}
	return DefaultRule
}

// Allow increments the counter for the current window and reports whether
// the caller is still inside the action's limit. The count resets at window
// boundaries. A store error is returned as-is; auth call sites fail closed.
func (l *Limiter) Allow(ctx context.Context, action, identifier string) (bool, error) {
	r := l.rule(action)

	windowStart := l.now().Truncate(r.Window).Unix()
	counterKey := fmt.Sprintf("ratelimit:%s:%s:%d", action, identifier, windowStart)

	count, err := l.rdb.Incr(ctx, counterKey).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: incr %s: %w", counterKey, err)
	}
	// First hit in the window owns setting the expiry.
	if count == 1 {
		if err := l.rdb.Expire(ctx, counterKey, r.Window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: expire %s: %w", counterKey, err)
		}
	}

	if count > int64(r.Limit) {
		limiterRejections.WithLabelValues(action).Inc()
		l.logger.Debug().
			Str("action", action).
			Str("identifier", identifier).
			Int64("count", count).
			Int("limit", r.Limit).
			Msg("Rate limit exceeded")
		return false, nil
	}
	return true, nil
}
