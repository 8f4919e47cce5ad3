package session

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

const (
	testLifetime  = time.Hour
	testThreshold = 5 * time.Minute
)

func newTestStore(t *testing.T) (*Store, *redisstore.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := &redisstore.Client{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, testLifetime, testThreshold, zerolog.Nop()), rdb, mr
}

// TestCreateValidateRoundTrip verifies a created session comes back intact
// with the full lifetime as TTL.
func TestCreateValidateRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _, mr := newTestStore(t)

	require.NoError(t, store.Create(ctx, "tok1", Session{UserID: "u1", Email: "a@b.com"}))
	assert.Equal(t, testLifetime, mr.TTL("session:tok1"))

	sess, err := store.Validate(ctx, "tok1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, "a@b.com", sess.Email)
	assert.NotZero(t, sess.LastRefresh)
}

// TestCreateRejectsEmptyIdentity verifies sessions without an id or user are
// refused.
func TestCreateRejectsEmptyIdentity(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	assert.Error(t, store.Create(ctx, "", Session{UserID: "u1"}))
	assert.Error(t, store.Create(ctx, "tok1", Session{}))
}

// TestValidateMissing verifies an unknown token is invalid without being an
// error.
func TestValidateMissing(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	sess, err := store.Validate(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, sess)
}

// TestValidateMalformed verifies a record that no longer parses is treated
// as absent.
func TestValidateMalformed(t *testing.T) {
	ctx := context.Background()
	store, rdb, _ := newTestStore(t)

	require.NoError(t, rdb.Set(ctx, "session:bad", "{not json", testLifetime).Err())
	sess, err := store.Validate(ctx, "bad")
	assert.NoError(t, err)
	assert.Nil(t, sess)

	// Parses, but carries no user id.
	require.NoError(t, rdb.Set(ctx, "session:anon", `{"email":"a@b.com"}`, testLifetime).Err())
	sess, err = store.Validate(ctx, "anon")
	assert.NoError(t, err)
	assert.Nil(t, sess)
}

// TestSessionExpires verifies an idle session disappears once the lifetime
// passes.
func TestSessionExpires(t *testing.T) {
	ctx := context.Background()
	store, _, mr := newTestStore(t)

	require.NoError(t, store.Create(ctx, "tok1", Session{UserID: "u1"}))
	mr.FastForward(testLifetime + time.Second)

	sess, err := store.Validate(ctx, "tok1")
	assert.NoError(t, err)
	assert.Nil(t, sess)
}

// TestRefreshWithinThresholdIsNoop verifies a refresh inside the staleness
// threshold leaves the record untouched, so redundant refreshes are cheap.
func TestRefreshWithinThresholdIsNoop(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	base := time.Now()
	store.now = func() time.Time { return base }
	require.NoError(t, store.Create(ctx, "tok1", Session{UserID: "u1"}))

	store.now = func() time.Time { return base.Add(testThreshold - time.Second) }
	ok, err := store.Refresh(ctx, "tok1")
	require.NoError(t, err)
	assert.True(t, ok)

	sess, err := store.Validate(ctx, "tok1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, float64(base.Unix()), sess.LastRefresh)
}

// TestRefreshPastThresholdExtends verifies a refresh past the threshold bumps
// last_refresh and resets the TTL to the full lifetime.
func TestRefreshPastThresholdExtends(t *testing.T) {
	ctx := context.Background()
	store, _, mr := newTestStore(t)

	base := time.Now()
	store.now = func() time.Time { return base }
	require.NoError(t, store.Create(ctx, "tok1", Session{UserID: "u1"}))

	// Let half the lifetime elapse, then refresh.
	mr.FastForward(30 * time.Minute)
	store.now = func() time.Time { return base.Add(30 * time.Minute) }

	ok, err := store.Refresh(ctx, "tok1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, testLifetime, mr.TTL("session:tok1"))

	sess, err := store.Validate(ctx, "tok1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, float64(base.Add(30*time.Minute).Unix()), sess.LastRefresh)
}

// TestRefreshMissing verifies refreshing an expired session reports absence
// instead of resurrecting it.
func TestRefreshMissing(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	ok, err := store.Refresh(ctx, "gone")
	assert.NoError(t, err)
	assert.False(t, ok)
}

// TestDelete verifies logout removes the session immediately.
func TestDelete(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	require.NoError(t, store.Create(ctx, "tok1", Session{UserID: "u1"}))
	require.NoError(t, store.Delete(ctx, "tok1"))

	sess, err := store.Validate(ctx, "tok1")
	assert.NoError(t, err)
	assert.Nil(t, sess)

	// Deleting an absent session is not an error.
	assert.NoError(t, store.Delete(ctx, "tok1"))
}

// TestSweepExpired verifies the sweep removes only records that lost their
// TTL and leaves healthy sessions alone.
func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	store, rdb, mr := newTestStore(t)

	require.NoError(t, store.Create(ctx, "healthy", Session{UserID: "u1"}))
	// A record that slipped in without an expiry.
	require.NoError(t, rdb.Set(ctx, "session:stale", `{"id":"u2"}`, 0).Err())

	removed, err := store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.False(t, mr.Exists("session:stale"))
	assert.True(t, mr.Exists("session:healthy"))
}

// TestActiveCount verifies the live session estimate.
func TestActiveCount(t *testing.T) {
	ctx := context.Background()
	store, rdb, _ := newTestStore(t)

	require.NoError(t, store.Create(ctx, "tok1", Session{UserID: "u1"}))
	require.NoError(t, store.Create(ctx, "tok2", Session{UserID: "u2"}))
	// Unrelated keys don't count.
	require.NoError(t, rdb.Set(ctx, "cache:chat_history:u1", "[]", time.Minute).Err())

	count, err := store.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// TestGenerateToken verifies tokens are unique and URL-safe.
func TestGenerateToken(t *testing.T) {
	tok1, err := GenerateToken()
	require.NoError(t, err)
	tok2, err := GenerateToken()
	require.NoError(t, err)

	assert.NotEqual(t, tok1, tok2)
	assert.NotContains(t, tok1, "=")
	assert.NotContains(t, tok1, "/")
	assert.GreaterOrEqual(t, len(tok1), 40)
}
