package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/casperarmani/backendmultchat/internal/taskqueue"
)

var (
	enqueuePriority string
	enqueuePayload  string
)

// enqueueCmd represents the enqueue command
var enqueueCmd = &cobra.Command{
	Use:   "enqueue <type>",
	Short: "Enqueue a task for the consumer to process",
	Long: `Push a task onto the given queue. The payload is raw JSON and must
match the task type's expected shape.`,
	Example: `  chat-backend enqueue message_processing --payload '{"message":"ping","user_id":"u1"}'
  chat-backend enqueue video_processing --priority medium --payload '{"file_id":"f1","filename":"demo.mp4","user_id":"u1"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)

	enqueueCmd.Flags().StringVar(&enqueuePriority, "priority", "high", "Queue priority (high, medium, low)")
	enqueueCmd.Flags().StringVar(&enqueuePayload, "payload", "{}", "Task payload as raw JSON")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	taskType := taskqueue.TaskType(args[0])
	valid := false
	for _, t := range taskqueue.TaskTypes {
		if t == taskType {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown task type: %s", taskType)
	}

	priority := taskqueue.TaskPriority(enqueuePriority)
	switch priority {
	case taskqueue.PriorityHigh, taskqueue.PriorityMedium, taskqueue.PriorityLow:
	default:
		return fmt.Errorf("invalid priority: %s", enqueuePriority)
	}

	if !json.Valid([]byte(enqueuePayload)) {
		return fmt.Errorf("payload is not valid JSON")
	}

	queue := taskqueue.New(rdb, logger)
	start := time.Now()
	id, err := queue.Enqueue(ctx, taskType, json.RawMessage(enqueuePayload), priority)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	logger.Info().
		Str("id", id).
		Str("type", string(taskType)).
		Str("priority", string(priority)).
		Dur("took", time.Since(start)).
		Msg("Task enqueued")
	return nil
}
