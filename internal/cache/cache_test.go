package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casperarmani/backendmultchat/internal/redisstore"
)

const testDefaultTTL = 5 * time.Minute

func newTestCache(t *testing.T) (*Cache, *redisstore.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := &redisstore.Client{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, testDefaultTTL, zerolog.Nop()), rdb, mr
}

type historyEntry struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// TestSetGetRoundTrip verifies a stored value comes back structurally equal.
func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t)

	in := []historyEntry{{Message: "hi", Type: "user"}, {Message: "hello", Type: "bot"}}
	require.NoError(t, c.Set(ctx, "chat_history:u1", in, 0))

	var out []historyEntry
	assert.True(t, c.Get(ctx, "chat_history:u1", &out))
	assert.Equal(t, in, out)
}

// TestGetMissing verifies an absent key is a miss.
func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t)

	var out []historyEntry
	assert.False(t, c.Get(ctx, "chat_history:u1", &out))
}

// TestDefaultAndExplicitTTL verifies the TTL fallback and per-call override.
func TestDefaultAndExplicitTTL(t *testing.T) {
	ctx := context.Background()
	c, _, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, "a", "v", 0))
	assert.Equal(t, testDefaultTTL, mr.TTL("cache:a"))

	require.NoError(t, c.Set(ctx, "b", "v", time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("cache:b"))
}

// TestEntryExpires verifies entries vanish after their TTL.
func TestEntryExpires(t *testing.T) {
	ctx := context.Background()
	c, _, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, "a", "v", time.Minute))
	mr.FastForward(time.Minute + time.Second)

	var out string
	assert.False(t, c.Get(ctx, "a", &out))
}

// TestMalformedEntryDropped verifies a value that no longer parses is deleted
// and reported as a miss.
func TestMalformedEntryDropped(t *testing.T) {
	ctx := context.Background()
	c, rdb, mr := newTestCache(t)

	require.NoError(t, rdb.Set(ctx, "cache:bad", "{not json", time.Minute).Err())

	var out historyEntry
	assert.False(t, c.Get(ctx, "bad", &out))
	assert.False(t, mr.Exists("cache:bad"))
}

// TestStoreErrorIsMiss verifies the cache fails open: an unreachable store
// degrades to a miss so callers fall through to the authoritative source.
func TestStoreErrorIsMiss(t *testing.T) {
	ctx := context.Background()
	c, _, mr := newTestCache(t)
	mr.Close()

	var out historyEntry
	assert.False(t, c.Get(ctx, "a", &out))
}

// TestInvalidate verifies explicit invalidation removes exactly the named
// keys.
func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	c, _, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, "chat_history:u1", "v", 0))
	require.NoError(t, c.Set(ctx, "video_history:u1", "v", 0))

	require.NoError(t, c.Invalidate(ctx, "chat_history:u1"))
	assert.False(t, mr.Exists("cache:chat_history:u1"))
	assert.True(t, mr.Exists("cache:video_history:u1"))

	// Invalidating an absent key is harmless.
	assert.NoError(t, c.Invalidate(ctx, "chat_history:u1"))
	assert.NoError(t, c.Invalidate(ctx))
}

// TestInvalidateScope verifies every key mentioning the scope id goes away.
func TestInvalidateScope(t *testing.T) {
	ctx := context.Background()
	c, _, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, "chat_history:u1", "v", 0))
	require.NoError(t, c.Set(ctx, "video_history:u1", "v", 0))
	require.NoError(t, c.Set(ctx, "chat_history:u2", "v", 0))

	removed, err := c.InvalidateScope(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.False(t, mr.Exists("cache:chat_history:u1"))
	assert.False(t, mr.Exists("cache:video_history:u1"))
	assert.True(t, mr.Exists("cache:chat_history:u2"))

	_, err = c.InvalidateScope(ctx, "")
	assert.Error(t, err)
}

// TestStats verifies the in-process hit/miss counters.
func TestStats(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t)

	var out string
	c.Get(ctx, "a", &out)
	require.NoError(t, c.Set(ctx, "a", "v", 0))
	c.Get(ctx, "a", &out)
	c.Get(ctx, "a", &out)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}
