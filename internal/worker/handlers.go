package worker

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/casperarmani/backendmultchat/internal/cache"
	"github.com/casperarmani/backendmultchat/internal/taskqueue"
)

// messageTokenCost is the metered price of one processed chat message.
const messageTokenCost = 1

// Responder produces a chat reply for a queued user message. Implemented by
// the inference collaborator; this package only sees the interface.
type Responder interface {
	SendMessage(ctx context.Context, message, conversationID, userID string) (string, error)
}

// Analyzer runs video analysis for a stored upload.
type Analyzer interface {
	AnalyzeVideo(ctx context.Context, fileID, filename, userID string) (analysis string, metadata map[string]string, err error)
}

// HistoryStore persists chat and analysis results to the authoritative
// external storage and records metered token usage.
type HistoryStore interface {
	InsertChatMessage(ctx context.Context, userID, message, chatType, conversationID string) error
	InsertVideoAnalysis(ctx context.Context, userID, filename, analysis string, metadata map[string]string) error
	DeductTokens(ctx context.Context, userID string, tokens int) error
}

// MessageHandler returns the handler for message-processing tasks: run
// inference, persist the bot reply, charge the metered token cost, then
// invalidate the caches the reply affects. Invalidation follows the persist
// in the same logical operation.
func MessageHandler(responder Responder, store HistoryStore, c *cache.Cache) HandlerFunc {
	return func(ctx context.Context, task *taskqueue.Task) error {
		payload, err := task.DecodePayload()
		if err != nil {
			return err
		}
		p, ok := payload.(*taskqueue.MessagePayload)
		if !ok || p.UserID == "" || p.Message == "" {
			return fmt.Errorf("message task %s: incomplete payload", task.ID)
		}

		reply, err := responder.SendMessage(ctx, p.Message, p.ConversationID, p.UserID)
		if err != nil {
			return fmt.Errorf("message task %s: inference: %w", task.ID, err)
		}

		if err := store.InsertChatMessage(ctx, p.UserID, reply, "bot", p.ConversationID); err != nil {
			return fmt.Errorf("message task %s: persist reply: %w", task.ID, err)
		}
		if err := store.DeductTokens(ctx, p.UserID, messageTokenCost); err != nil {
			return fmt.Errorf("message task %s: deduct tokens: %w", task.ID, err)
		}

		keys := []string{"chat_history:" + p.UserID, "token_balance:" + p.UserID}
		if p.ConversationID != "" {
			keys = append(keys, "conversation:"+p.ConversationID)
		}
		return c.Invalidate(ctx, keys...)
	}
}

// VideoProcessingHandler returns the handler for video-processing tasks:
// analyze the upload, then hand the result off as a medium-priority
// video-analysis task.
func VideoProcessingHandler(analyzer Analyzer, queue *taskqueue.Queue) HandlerFunc {
	return func(ctx context.Context, task *taskqueue.Task) error {
		payload, err := task.DecodePayload()
		if err != nil {
			return err
		}
		p, ok := payload.(*taskqueue.VideoProcessingPayload)
		if !ok || p.FileID == "" || p.UserID == "" {
			return fmt.Errorf("video task %s: incomplete payload", task.ID)
		}

		analysis, metadata, err := analyzer.AnalyzeVideo(ctx, p.FileID, p.Filename, p.UserID)
		if err != nil {
			return fmt.Errorf("video task %s: analyze: %w", task.ID, err)
		}

		metadata = withFilename(metadata, p.Filename)
		_, err = queue.Enqueue(ctx, taskqueue.TaskVideoAnalysis, taskqueue.VideoAnalysisPayload{
			FileID:   p.FileID,
			Analysis: analysis,
			Metadata: metadata,
			UserID:   p.UserID,
		}, taskqueue.PriorityMedium)
		if err != nil {
			return fmt.Errorf("video task %s: enqueue analysis: %w", task.ID, err)
		}
		return nil
	}
}

// VideoAnalysisHandler returns the handler for video-analysis tasks: persist
// the analysis row, charge usage by video length, and drop the user's cached
// video history and balance.
func VideoAnalysisHandler(store HistoryStore, c *cache.Cache) HandlerFunc {
	return func(ctx context.Context, task *taskqueue.Task) error {
		payload, err := task.DecodePayload()
		if err != nil {
			return err
		}
		p, ok := payload.(*taskqueue.VideoAnalysisPayload)
		if !ok || p.UserID == "" {
			return fmt.Errorf("analysis task %s: incomplete payload", task.ID)
		}

		filename := p.Metadata["filename"]
		if err := store.InsertVideoAnalysis(ctx, p.UserID, filename, p.Analysis, p.Metadata); err != nil {
			return fmt.Errorf("analysis task %s: persist: %w", task.ID, err)
		}
		if err := store.DeductTokens(ctx, p.UserID, videoTokenCost(p.Metadata)); err != nil {
			return fmt.Errorf("analysis task %s: deduct tokens: %w", task.ID, err)
		}

		return c.Invalidate(ctx, "video_history:"+p.UserID, "token_balance:"+p.UserID)
	}
}

// videoTokenCost meters one token per second of video. Unknown or
// unparseable duration charges the one-token minimum.
func videoTokenCost(metadata map[string]string) int {
	d, err := time.ParseDuration(metadata["duration"])
	if err != nil || d <= 0 {
		return messageTokenCost
	}
	return int(math.Ceil(d.Seconds()))
}

func withFilename(metadata map[string]string, filename string) map[string]string {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	if _, ok := metadata["filename"]; !ok && filename != "" {
		metadata["filename"] = filename
	}
	return metadata
}
