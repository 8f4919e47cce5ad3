// Package sweepers hosts periodic maintenance loops.
package sweepers

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/rs/zerolog"

	"github.com/casperarmani/backendmultchat/internal/redisstore"
	"github.com/casperarmani/backendmultchat/internal/session"
)

const sweepLockKey = "lock:session_sweep"

// SessionSweeper periodically removes session records the TTL mechanism
// missed. Sessions normally expire on their own; this is defensive cleanup,
// not the primary expiration path. A store-side lock keeps multiple process
// instances from sweeping concurrently.
type SessionSweeper struct {
	store    *session.Store
	locker   *redislock.Client
	logger   zerolog.Logger
	interval time.Duration
	stopChan chan struct{}
}

// NewSessionSweeper creates a sweeper over the given session store.
func NewSessionSweeper(store *session.Store, locker *redislock.Client, logger zerolog.Logger, interval time.Duration) *SessionSweeper {
	return &SessionSweeper{
		store:    store,
		locker:   locker,
		logger:   logger.With().Str("component", "session_sweeper").Logger(),
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic sweep and blocks until stopped.
func (s *SessionSweeper) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("Starting session sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Session sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Session sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Session sweep failed")
			}
		}
	}
}

// Stop signals the sweeper to stop.
func (s *SessionSweeper) Stop() {
	close(s.stopChan)
}

// Sweep runs one cleanup pass. When another instance holds the lock the
// pass is skipped; its sweep covers the same keys.
func (s *SessionSweeper) Sweep(ctx context.Context) error {
	lock, err := s.locker.Obtain(ctx, sweepLockKey, s.interval/2, nil)
	if err == redislock.ErrNotObtained {
		s.logger.Debug().Msg("Sweep lock held elsewhere, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	defer lock.Release(ctx)

	removed, err := s.store.SweepExpired(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Session sweep complete")
	}
	return nil
}

// NewLocker builds the lock client on the shared store.
func NewLocker(rdb *redisstore.Client) *redislock.Client {
	return redislock.New(rdb)
}
