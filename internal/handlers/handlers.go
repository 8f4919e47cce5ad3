// Package handlers holds the HTTP surface. Handlers are thin: they compose
// backbone calls (sessions, cache, queue, rate limits) with the external
// persistence collaborator and hold no domain logic of their own.
package handlers

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/casperarmani/backendmultchat/config"
	"github.com/casperarmani/backendmultchat/internal/cache"
	"github.com/casperarmani/backendmultchat/internal/health"
	"github.com/casperarmani/backendmultchat/internal/persist"
	"github.com/casperarmani/backendmultchat/internal/ratelimit"
	"github.com/casperarmani/backendmultchat/internal/session"
	"github.com/casperarmani/backendmultchat/internal/taskqueue"
)

// Persistence is the slice of the external storage API the handlers use.
type Persistence interface {
	SignIn(ctx context.Context, email, password string) (*persist.User, error)
	SignUp(ctx context.Context, email, password string) (*persist.User, error)
	InsertChatMessage(ctx context.Context, userID, message, chatType, conversationID string) error
	ChatHistory(ctx context.Context, userID string, limit int) ([]persist.ChatMessage, error)
	VideoAnalysisHistory(ctx context.Context, userID string, limit int) ([]persist.VideoAnalysis, error)
	TokenBalance(ctx context.Context, userID string) (int, error)
}

// Handlers bundles the dependencies of the HTTP surface.
type Handlers struct {
	cfg      *config.Config
	sessions *session.Store
	cache    *cache.Cache
	queue    *taskqueue.Queue
	limiter  *ratelimit.Limiter
	monitor  *health.Monitor
	persist  Persistence
	logger   zerolog.Logger

	// Collapses concurrent cache-miss loads for the same key into one
	// persistence call.
	loads singleflight.Group
}

// New wires the handler set.
func New(
	cfg *config.Config,
	sessions *session.Store,
	c *cache.Cache,
	queue *taskqueue.Queue,
	limiter *ratelimit.Limiter,
	monitor *health.Monitor,
	p Persistence,
	logger zerolog.Logger,
) *Handlers {
	return &Handlers{
		cfg:      cfg,
		sessions: sessions,
		cache:    c,
		queue:    queue,
		limiter:  limiter,
		monitor:  monitor,
		persist:  p,
		logger:   logger.With().Str("component", "handlers").Logger(),
	}
}
