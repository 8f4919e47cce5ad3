package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/casperarmani/backendmultchat/internal/redisstore"
)

const keyPrefix = "session:"

// Store persists sessions under a TTL equal to the absolute lifetime and
// pushes the TTL forward once staleness passes the refresh threshold.
type Store struct {
	rdb              *redisstore.Client
	lifetime         time.Duration
	refreshThreshold time.Duration
	logger           zerolog.Logger

	now func() time.Time
}

// NewStore creates a session store. The refresh threshold must be strictly
// less than the lifetime so refresh happens before expiry.
func NewStore(rdb *redisstore.Client, lifetime, refreshThreshold time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		rdb:              rdb,
		lifetime:         lifetime,
		refreshThreshold: refreshThreshold,
		logger:           logger.With().Str("component", "sessions").Logger(),
		now:              time.Now,
	}
}

// Lifetime returns the absolute session lifetime.
func (s *Store) Lifetime() time.Duration {
	return s.lifetime
}

func key(id string) string {
	return keyPrefix + id
}

// Create stores a session record with the absolute lifetime as TTL.
func (s *Store) Create(ctx context.Context, id string, sess Session) error {
	if id == "" || sess.UserID == "" {
		return fmt.Errorf("session: missing id or user id")
	}
	if sess.LastRefresh == 0 {
		sess.LastRefresh = float64(s.now().Unix())
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}

	if err := s.rdb.Set(ctx, key(id), data, s.lifetime).Err(); err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

// Validate looks a session up by id. A missing key, an expired key and a
// malformed record are all (nil, nil): indistinguishable from "never
// existed". The error return is only a store-level failure; auth call sites
// fail closed on it.
func (s *Store) Validate(ctx context.Context, id string) (*Session, error) {
	data, err := s.rdb.Get(ctx, key(id)).Bytes()
	if err != nil {
		if redisstore.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: validate: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		s.logger.Warn().Err(err).Msg("Malformed session record")
		return nil, nil
	}
	if sess.UserID == "" {
		s.logger.Warn().Msg("Session record missing user id")
		return nil, nil
	}

	return &sess, nil
}

// Refresh resets the TTL to the full lifetime and bumps last_refresh, but
// only once the time since the previous refresh exceeds the threshold.
// Calls inside the threshold are no-ops, so concurrent redundant refreshes
// of one session at worst repeat the same write. Returns whether the
// session still exists.
func (s *Store) Refresh(ctx context.Context, id string) (bool, error) {
	sess, err := s.Validate(ctx, id)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, nil
	}

	now := s.now()
	if now.Sub(time.Unix(int64(sess.LastRefresh), 0)) <= s.refreshThreshold {
		return true, nil
	}

	sess.LastRefresh = float64(now.Unix())
	data, err := json.Marshal(sess)
	if err != nil {
		return false, fmt.Errorf("session: marshal: %w", err)
	}
	if err := s.rdb.Set(ctx, key(id), data, s.lifetime).Err(); err != nil {
		return false, fmt.Errorf("session: refresh: %w", err)
	}
	return true, nil
}

// Delete removes a session immediately. Used on logout; no grace period.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// SweepExpired removes session keys that carry no TTL. Entries normally
// expire on their own; this is a defensive pass for records the TTL
// mechanism missed, not the primary expiration path. Returns the number of
// keys removed.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	var removed int

	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		ttl, err := s.rdb.TTL(ctx, k).Result()
		if err != nil {
			return removed, fmt.Errorf("session: sweep ttl %s: %w", k, err)
		}
		// -1 means the key exists without an expiry
		if ttl == -1 {
			if err := s.rdb.Del(ctx, k).Err(); err != nil {
				return removed, fmt.Errorf("session: sweep delete %s: %w", k, err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("session: sweep scan: %w", err)
	}

	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Swept sessions without TTL")
	}
	return removed, nil
}

// ActiveCount estimates how many sessions are live. Read-only.
func (s *Store) ActiveCount(ctx context.Context) (int, error) {
	var count int
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("session: count scan: %w", err)
	}
	return count, nil
}
