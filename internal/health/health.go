// Package health aggregates store connectivity and queue/cache statistics
// for operational visibility. Everything here is read-only: collecting a
// snapshot never mutates state.
package health

import (
	"context"
	"time"

	"github.com/casperarmani/backendmultchat/internal/cache"
	"github.com/casperarmani/backendmultchat/internal/redisstore"
	"github.com/casperarmani/backendmultchat/internal/session"
	"github.com/casperarmani/backendmultchat/internal/taskqueue"
)

// Status values reported by Health.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// degradedLatency is the ping round-trip above which the store counts as
// degraded rather than healthy.
const degradedLatency = 100 * time.Millisecond

// Report is the health probe result.
type Report struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Redis     RedisReport `json:"redis"`
}

// RedisReport describes store reachability.
type RedisReport struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Metrics is the operational snapshot served by the metrics endpoint.
type Metrics struct {
	Timestamp      time.Time        `json:"timestamp"`
	QueueDepths    map[string]int64 `json:"queue_depths"`
	Cache          cache.Stats      `json:"cache"`
	ActiveSessions int              `json:"active_sessions"`
}

// Monitor probes the shared store and aggregates subsystem statistics.
type Monitor struct {
	rdb      *redisstore.Client
	queue    *taskqueue.Queue
	cache    *cache.Cache
	sessions *session.Store
}

// NewMonitor wires the monitor to the subsystems it reports on.
func NewMonitor(rdb *redisstore.Client, queue *taskqueue.Queue, c *cache.Cache, sessions *session.Store) *Monitor {
	return &Monitor{rdb: rdb, queue: queue, cache: c, sessions: sessions}
}

// Health runs a reachability and latency probe against the store.
func (m *Monitor) Health(ctx context.Context) Report {
	report := Report{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
	}

	latency, err := m.rdb.PingLatency(ctx)
	if err != nil {
		report.Status = StatusUnhealthy
		report.Redis = RedisReport{Status: StatusUnhealthy, Error: err.Error()}
		return report
	}

	report.Redis = RedisReport{Status: StatusHealthy, LatencyMS: latency.Milliseconds()}
	if latency > degradedLatency {
		report.Status = StatusDegraded
		report.Redis.Status = StatusDegraded
	}
	return report
}

// Collect gathers queue depths, cache counters and the active session
// estimate. Partial failures leave the affected section zeroed rather than
// failing the whole snapshot.
func (m *Monitor) Collect(ctx context.Context) (Metrics, error) {
	metrics := Metrics{
		Timestamp: time.Now().UTC(),
		Cache:     m.cache.Stats(),
	}

	depths, err := m.queue.Depths(ctx)
	if err != nil {
		return metrics, err
	}
	metrics.QueueDepths = depths

	count, err := m.sessions.ActiveCount(ctx)
	if err != nil {
		return metrics, err
	}
	metrics.ActiveSessions = count

	return metrics, nil
}
