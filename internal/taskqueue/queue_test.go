package taskqueue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casperarmani/backendmultchat/internal/redisstore"
)

func newTestQueue(t *testing.T) (*Queue, *redisstore.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := &redisstore.Client{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, zerolog.Nop()), rdb, mr
}

// TestEnqueueDequeueFIFO verifies that tasks pushed to the same queue come
// back in insertion order with their payloads intact.
func TestEnqueueDequeueFIFO(t *testing.T) {
	ctx := context.Background()
	queue, _, _ := newTestQueue(t)

	id1, err := queue.Enqueue(ctx, TaskMessageProcessing, MessagePayload{Message: "first", UserID: "u1"}, PriorityHigh)
	require.NoError(t, err)
	id2, err := queue.Enqueue(ctx, TaskMessageProcessing, MessagePayload{Message: "second", UserID: "u1"}, PriorityHigh)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	key := QueueKey(PriorityHigh, TaskMessageProcessing)

	task, err := queue.Dequeue(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, id1, task.ID)
	assert.Equal(t, TaskMessageProcessing, task.Type)
	assert.Equal(t, PriorityHigh, task.Priority)

	payload, err := task.DecodePayload()
	require.NoError(t, err)
	msg, ok := payload.(*MessagePayload)
	require.True(t, ok)
	assert.Equal(t, "first", msg.Message)
	assert.Equal(t, "u1", msg.UserID)

	task, err = queue.Dequeue(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, id2, task.ID)
}

// TestDequeueEmpty verifies that an empty queue is a no-work result, not an
// error.
func TestDequeueEmpty(t *testing.T) {
	ctx := context.Background()
	queue, _, _ := newTestQueue(t)

	task, err := queue.Dequeue(ctx, QueueKey(PriorityHigh, TaskMessageProcessing))
	assert.NoError(t, err)
	assert.Nil(t, task)
}

// TestDequeueMalformed verifies that an entry that fails to decode is dropped
// rather than wedging the consumer.
func TestDequeueMalformed(t *testing.T) {
	ctx := context.Background()
	queue, rdb, _ := newTestQueue(t)

	key := QueueKey(PriorityHigh, TaskMessageProcessing)
	require.NoError(t, rdb.RPush(ctx, key, "{not json").Err())
	_, err := queue.Enqueue(ctx, TaskMessageProcessing, MessagePayload{Message: "good", UserID: "u1"}, PriorityHigh)
	require.NoError(t, err)

	task, err := queue.Dequeue(ctx, key)
	assert.NoError(t, err)
	assert.Nil(t, task)

	// The poisoned entry is gone; the next pop returns the good task.
	task, err = queue.Dequeue(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, TaskMessageProcessing, task.Type)
}

// TestSamePriorityDifferentTypeIsolated verifies that tasks of different
// types never share a list even at the same priority.
func TestSamePriorityDifferentTypeIsolated(t *testing.T) {
	ctx := context.Background()
	queue, _, _ := newTestQueue(t)

	_, err := queue.Enqueue(ctx, TaskMessageProcessing, MessagePayload{Message: "m", UserID: "u1"}, PriorityHigh)
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, TaskVideoProcessing, VideoProcessingPayload{FileID: "f1", UserID: "u1"}, PriorityHigh)
	require.NoError(t, err)

	n, err := queue.Depth(ctx, PriorityHigh, TaskMessageProcessing)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = queue.Depth(ctx, PriorityHigh, TaskVideoProcessing)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// TestQueueKeysPriorityOrder verifies that keys come out high before medium
// before low, the order the consumer drains them in.
func TestQueueKeysPriorityOrder(t *testing.T) {
	keys := QueueKeys()
	require.Len(t, keys, len(Priorities)*len(TaskTypes))

	assert.Equal(t, "queue:high:message_processing", keys[0])
	assert.Equal(t, "queue:high:video_processing", keys[1])
	assert.Equal(t, "queue:high:video_analysis", keys[2])
	assert.Equal(t, "queue:medium:message_processing", keys[3])
	assert.Equal(t, "queue:low:video_analysis", keys[len(keys)-1])
}

// TestDepths verifies the full depth snapshot covers every queue.
func TestDepths(t *testing.T) {
	ctx := context.Background()
	queue, _, _ := newTestQueue(t)

	_, err := queue.Enqueue(ctx, TaskMessageProcessing, MessagePayload{Message: "m", UserID: "u1"}, PriorityHigh)
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, TaskVideoAnalysis, VideoAnalysisPayload{FileID: "f1", UserID: "u1"}, PriorityMedium)
	require.NoError(t, err)

	depths, err := queue.Depths(ctx)
	require.NoError(t, err)
	assert.Len(t, depths, len(QueueKeys()))
	assert.Equal(t, int64(1), depths["queue:high:message_processing"])
	assert.Equal(t, int64(1), depths["queue:medium:video_analysis"])
	assert.Equal(t, int64(0), depths["queue:low:message_processing"])
}

// TestEnqueueStoreError verifies that a store failure surfaces to the caller
// instead of silently dropping the task.
func TestEnqueueStoreError(t *testing.T) {
	ctx := context.Background()
	queue, _, mr := newTestQueue(t)
	mr.Close()

	_, err := queue.Enqueue(ctx, TaskMessageProcessing, MessagePayload{Message: "m", UserID: "u1"}, PriorityHigh)
	assert.Error(t, err)
}

// TestDecodePayloadUnknownType verifies the type tag is validated.
func TestDecodePayloadUnknownType(t *testing.T) {
	task := &Task{Type: "reindex", Payload: []byte(`{}`)}
	_, err := task.DecodePayload()
	assert.Error(t, err)
}
