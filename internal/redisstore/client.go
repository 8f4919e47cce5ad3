// Package redisstore owns the single Redis connection pool shared by the
// task queue, session store, response cache and rate limiter.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/casperarmani/backendmultchat/config"
)

// Client wraps the pooled go-redis client. The pool is created once at
// startup and injected into every subsystem; nothing holds a connection
// across a blocking call.
type Client struct {
	*goredis.Client
}

// New connects to Redis and verifies reachability before returning.
func New(cfg config.RedisConfig) (*Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	return &Client{Client: client}, nil
}

// PingLatency measures one round trip to the store.
func (c *Client) PingLatency(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.Ping(ctx).Err(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// IsNotFound reports whether err is, or wraps, the store's key-missing
// sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, goredis.Nil)
}
