// Package taskqueue implements the Redis-backed priority work queues that
// decouple slow inference from the request/response cycle. Each
// (priority, type) pair is an independent FIFO list; RPUSH appends at the
// tail, LPOP removes the head atomically, so each popped task goes to
// exactly one consumer even with several processes draining the same queue.
package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/casperarmani/backendmultchat/internal/redisstore"
)

var (
	tasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskqueue_enqueued_total",
		Help: "Total number of tasks enqueued by type and priority",
	}, []string{"type", "priority"})

	tasksDequeued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskqueue_dequeued_total",
		Help: "Total number of tasks dequeued by queue key",
	}, []string{"queue"})

	tasksMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskqueue_malformed_total",
		Help: "Total number of dequeued entries that failed to decode",
	})
)

// Queue provides enqueue/dequeue over the shared store.
type Queue struct {
	rdb    *redisstore.Client
	logger zerolog.Logger
}

// New creates a task queue on the shared store client.
func New(rdb *redisstore.Client, logger zerolog.Logger) *Queue {
	return &Queue{
		rdb:    rdb,
		logger: logger.With().Str("component", "taskqueue").Logger(),
	}
}

// Enqueue serializes the payload, assigns an id and appends the task to the
// tail of the (priority, type) list. A store failure surfaces to the caller;
// silently dropping user-initiated work is worse than an explicit error.
func (q *Queue) Enqueue(ctx context.Context, taskType TaskType, payload any, priority TaskPriority) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal task payload: %w", err)
	}

	task := Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Priority:   priority,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}

	key := QueueKey(priority, taskType)
	if err := q.rdb.RPush(ctx, key, data).Err(); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", key, err)
	}

	tasksEnqueued.WithLabelValues(string(taskType), string(priority)).Inc()
	q.logger.Debug().
		Str("task_id", task.ID).
		Str("queue", key).
		Msg("Task enqueued")

	return task.ID, nil
}

// Dequeue atomically pops the head of one named list. An empty queue is a
// normal no-work result (nil, nil), not an error. An entry that fails to
// decode is dropped and counted; treating it as absence keeps one poisoned
// record from wedging the consumer.
func (q *Queue) Dequeue(ctx context.Context, queueKey string) (*Task, error) {
	data, err := q.rdb.LPop(ctx, queueKey).Bytes()
	if err != nil {
		if redisstore.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue %s: %w", queueKey, err)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		tasksMalformed.Inc()
		q.logger.Warn().
			Err(err).
			Str("queue", queueKey).
			Msg("Dropping malformed task")
		return nil, nil
	}

	tasksDequeued.WithLabelValues(queueKey).Inc()
	return &task, nil
}

// Depth returns the number of pending tasks in one (priority, type) list.
func (q *Queue) Depth(ctx context.Context, priority TaskPriority, taskType TaskType) (int64, error) {
	return q.rdb.LLen(ctx, QueueKey(priority, taskType)).Result()
}

// Depths returns the pending count for every (priority, type) list, keyed by
// the store key. Read-only; used by the metrics endpoint and the CLI.
func (q *Queue) Depths(ctx context.Context) (map[string]int64, error) {
	depths := make(map[string]int64)
	for _, key := range QueueKeys() {
		n, err := q.rdb.LLen(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("queue depth %s: %w", key, err)
		}
		depths[key] = n
	}
	return depths, nil
}
