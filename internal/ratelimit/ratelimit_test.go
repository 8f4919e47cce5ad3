package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casperarmani/backendmultchat/internal/redisstore"
)

func newTestLimiter(t *testing.T, rules map[string]Rule) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := &redisstore.Client{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, rules, zerolog.Nop()), mr
}

// TestAllowWithinLimit verifies exactly limit requests pass per window and
// the next one is rejected.
func TestAllowWithinLimit(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, map[string]Rule{"login": {Limit: 5, Window: time.Minute}})

	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, "login", "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}

	ok, err := l.Allow(ctx, "login", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestIdentifiersIsolated verifies one identifier exhausting its budget never
// affects another.
func TestIdentifiersIsolated(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, map[string]Rule{"login": {Limit: 1, Window: time.Minute}})

	ok, err := l.Allow(ctx, "login", "10.0.0.1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = l.Allow(ctx, "login", "10.0.0.1")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = l.Allow(ctx, "login", "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestActionsIsolated verifies different actions count independently for the
// same identifier.
func TestActionsIsolated(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, map[string]Rule{
		"login":  {Limit: 1, Window: time.Minute},
		"signup": {Limit: 1, Window: time.Minute},
	})

	ok, err := l.Allow(ctx, "login", "10.0.0.1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Allow(ctx, "signup", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestWindowRollover verifies the count resets at the window boundary.
func TestWindowRollover(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, map[string]Rule{"login": {Limit: 1, Window: time.Minute}})

	base := time.Date(2026, 1, 10, 12, 0, 30, 0, time.UTC)
	l.now = func() time.Time { return base }

	ok, err := l.Allow(ctx, "login", "10.0.0.1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = l.Allow(ctx, "login", "10.0.0.1")
	require.NoError(t, err)
	require.False(t, ok)

	// Next window, fresh counter.
	l.now = func() time.Time { return base.Add(time.Minute) }
	ok, err = l.Allow(ctx, "login", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestCounterCarriesTTL verifies the first hit in a window sets the expiry so
// stale counters clean themselves up.
func TestCounterCarriesTTL(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLimiter(t, map[string]Rule{"login": {Limit: 5, Window: time.Minute}})

	base := time.Date(2026, 1, 10, 12, 0, 30, 0, time.UTC)
	l.now = func() time.Time { return base }

	_, err := l.Allow(ctx, "login", "10.0.0.1")
	require.NoError(t, err)

	key := fmt.Sprintf("ratelimit:login:10.0.0.1:%d", base.Truncate(time.Minute).Unix())
	assert.Equal(t, time.Minute, mr.TTL(key))
}

// TestUnknownActionUsesDefault verifies actions without a rule fall back to
// the default rather than being unlimited.
func TestUnknownActionUsesDefault(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, nil)

	for i := 0; i < DefaultRule.Limit; i++ {
		ok, err := l.Allow(ctx, "export", "u1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := l.Allow(ctx, "export", "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestConcurrentAllows verifies the atomic increment never lets concurrent
// hits both claim the same slot.
func TestConcurrentAllows(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, map[string]Rule{"message_processing": {Limit: 10, Window: time.Minute}})

	const requests = 30
	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Allow(ctx, "message_processing", "user:u1")
			assert.NoError(t, err)
			if ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), allowed.Load())
}

// TestStoreErrorSurfaces verifies an unreachable store is an explicit error,
// so auth call sites can fail closed.
func TestStoreErrorSurfaces(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLimiter(t, nil)
	mr.Close()

	_, err := l.Allow(ctx, "login", "10.0.0.1")
	assert.Error(t, err)
}
