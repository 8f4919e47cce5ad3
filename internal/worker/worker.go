// Package worker runs the background consumer loop that drains the task
// queues and dispatches each task to its registered handler.
package worker

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/casperarmani/backendmultchat/internal/taskqueue"
)

var (
	tasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_tasks_processed_total",
		Help: "Total number of tasks processed by type",
	}, []string{"type"})

	tasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_tasks_failed_total",
		Help: "Total number of tasks whose handler returned an error",
	}, []string{"type"})
)

// HandlerFunc processes one dequeued task. The task is already removed from
// the store when the handler runs; an error means the work is lost, not
// retried.
type HandlerFunc func(ctx context.Context, task *taskqueue.Task) error

// Worker polls every (priority, type) queue in descending priority order and
// dispatches tasks to handlers registered per type. One failing task never
// stops the loop.
type Worker struct {
	queue        *taskqueue.Queue
	handlers     map[taskqueue.TaskType]HandlerFunc
	pollInterval time.Duration
	logger       zerolog.Logger
	tracer       trace.Tracer
}

// New creates a worker. Register handlers before calling Run.
func New(queue *taskqueue.Queue, pollInterval time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		queue:        queue,
		handlers:     make(map[taskqueue.TaskType]HandlerFunc),
		pollInterval: pollInterval,
		logger:       logger.With().Str("component", "worker").Logger(),
		tracer:       otel.Tracer("worker"),
	}
}

// Register installs the handler for a task type, replacing any previous one.
func (w *Worker) Register(taskType taskqueue.TaskType, h HandlerFunc) {
	w.handlers[taskType] = h
}

// Run loops until ctx is cancelled. Each cycle polls the queues from highest
// priority down and processes at most one task, then rescans from the top,
// so no lower-priority task is taken while a higher-priority one is pending.
// When every queue is empty it sleeps for the poll interval to bound store
// polling load.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Dur("poll_interval", w.pollInterval).Msg("Starting consumer loop")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Consumer loop stopping")
			return ctx.Err()
		default:
		}

		if processed := w.RunCycle(ctx); processed {
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Consumer loop stopping")
			return ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}
}

// RunCycle makes one pass over the queues in priority order and processes
// the first task found. It reports whether any task was processed.
func (w *Worker) RunCycle(ctx context.Context) bool {
	for _, key := range taskqueue.QueueKeys() {
		task, err := w.queue.Dequeue(ctx, key)
		if err != nil {
			w.logger.Error().Err(err).Str("queue", key).Msg("Dequeue failed")
			return false
		}
		if task == nil {
			continue
		}

		w.process(ctx, task)
		return true
	}
	return false
}

// process dispatches one task. Handler failures are logged and counted but
// never requeued: the task was removed at dequeue and the loss window is
// accepted (at-most-once).
func (w *Worker) process(ctx context.Context, task *taskqueue.Task) {
	ctx, span := w.tracer.Start(ctx, "worker.process",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("task.type", string(task.Type)),
			attribute.String("task.priority", string(task.Priority)),
		))
	defer span.End()

	handler, ok := w.handlers[task.Type]
	if !ok {
		w.logger.Warn().
			Str("task_id", task.ID).
			Str("type", string(task.Type)).
			Msg("No handler registered, dropping task")
		return
	}

	start := time.Now()
	if err := handler(ctx, task); err != nil {
		span.RecordError(err)
		tasksFailed.WithLabelValues(string(task.Type)).Inc()
		w.logger.Warn().
			Err(err).
			Str("task_id", task.ID).
			Str("type", string(task.Type)).
			Msg("Task handler failed, work is lost")
		return
	}

	tasksProcessed.WithLabelValues(string(task.Type)).Inc()
	w.logger.Debug().
		Str("task_id", task.ID).
		Str("type", string(task.Type)).
		Dur("elapsed", time.Since(start)).
		Msg("Task processed")
}
