package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casperarmani/backendmultchat/internal/middleware"
	"github.com/casperarmani/backendmultchat/internal/persist"
	"github.com/casperarmani/backendmultchat/internal/taskqueue"
)

const (
	chatHistoryLimit  = 50
	videoHistoryLimit = 10
)

// ChatHistory serves the user's chat history, cache-aside: check the cache,
// on miss read the authoritative store and populate it.
func (h *Handlers) ChatHistory(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"history": []persist.ChatMessage{}})
		return
	}

	cacheKey := "chat_history:" + identity.UserID

	var history []persist.ChatMessage
	if h.cache.Get(c.Request.Context(), cacheKey, &history) {
		c.JSON(http.StatusOK, gin.H{"history": history})
		return
	}

	v, err, _ := h.loads.Do(cacheKey, func() (any, error) {
		// The load is shared with concurrent requests for the same key,
		// so it must outlive this request's cancellation.
		ctx := context.WithoutCancel(c.Request.Context())
		rows, err := h.persist.ChatHistory(ctx, identity.UserID, chatHistoryLimit)
		if err != nil {
			return nil, err
		}
		if err := h.cache.Set(ctx, cacheKey, rows, h.cfg.Cache.HistoryTTL); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to cache chat history")
		}
		return rows, nil
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load chat history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load chat history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": v.([]persist.ChatMessage)})
}

// VideoAnalysisHistory serves the user's analysis history, cache-aside.
func (h *Handlers) VideoAnalysisHistory(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"history": []persist.VideoAnalysis{}})
		return
	}

	cacheKey := "video_history:" + identity.UserID

	var history []persist.VideoAnalysis
	if h.cache.Get(c.Request.Context(), cacheKey, &history) {
		c.JSON(http.StatusOK, gin.H{"history": history})
		return
	}

	v, err, _ := h.loads.Do(cacheKey, func() (any, error) {
		ctx := context.WithoutCancel(c.Request.Context())
		rows, err := h.persist.VideoAnalysisHistory(ctx, identity.UserID, videoHistoryLimit)
		if err != nil {
			return nil, err
		}
		if err := h.cache.Set(ctx, cacheKey, rows, h.cfg.Cache.HistoryTTL); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to cache video history")
		}
		return rows, nil
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load video history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load video history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": v.([]persist.VideoAnalysis)})
}

// SendMessage accepts a user message: rate-limit it, verify the token
// balance, queue it for the background consumer, then optimistically
// persist the user's own message and drop the caches it affects. The bot
// reply is written by the consumer when processing completes.
func (h *Handlers) SendMessage(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	message := c.PostForm("message")
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message cannot be empty"})
		return
	}
	conversationID := c.PostForm("conversation_id")

	allowed, err := h.limiter.Allow(c.Request.Context(), "message_processing", "user:"+identity.UserID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Rate limit check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
		return
	}
	if !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many messages. Please wait a moment before sending more."})
		return
	}

	balance, err := h.tokenBalance(c, identity.UserID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read token balance")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read token balance"})
		return
	}
	if balance <= 0 {
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "Insufficient tokens"})
		return
	}

	// An enqueue failure rejects the request: silently dropping the
	// message would be worse than an explicit error.
	taskID, err := h.queue.Enqueue(c.Request.Context(), taskqueue.TaskMessageProcessing, taskqueue.MessagePayload{
		Message:        message,
		ConversationID: conversationID,
		UserID:         identity.UserID,
	}, taskqueue.PriorityHigh)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to queue message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue message"})
		return
	}

	// Store the user's own message immediately for better UX; the queued
	// task only produces the bot reply.
	if err := h.persist.InsertChatMessage(c.Request.Context(), identity.UserID, message, "user", conversationID); err != nil {
		h.logger.Error().Err(err).Str("task_id", taskID).Msg("Failed to persist user message")
	}

	keys := []string{"chat_history:" + identity.UserID}
	if conversationID != "" {
		keys = append(keys, "conversation:"+conversationID)
	}
	if err := h.cache.Invalidate(c.Request.Context(), keys...); err != nil {
		h.logger.Warn().Err(err).Msg("Cache invalidation failed")
	}

	c.JSON(http.StatusOK, gin.H{
		"response":        "Message received and queued for processing...",
		"conversation_id": conversationID,
		"token_balance":   balance,
	})
}

// UserTokens serves the user's token balance through the short-TTL cache.
func (h *Handlers) UserTokens(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	balance, err := h.tokenBalance(c, identity.UserID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read token balance")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read token balance"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token_balance": balance})
}

// tokenBalance reads the balance cache-aside with the short volatile TTL.
func (h *Handlers) tokenBalance(c *gin.Context, userID string) (int, error) {
	cacheKey := "token_balance:" + userID

	var balance int
	if h.cache.Get(c.Request.Context(), cacheKey, &balance) {
		return balance, nil
	}

	v, err, _ := h.loads.Do(cacheKey, func() (any, error) {
		ctx := context.WithoutCancel(c.Request.Context())
		balance, err := h.persist.TokenBalance(ctx, userID)
		if err != nil {
			return 0, err
		}
		if err := h.cache.Set(ctx, cacheKey, balance, h.cfg.Cache.BalanceTTL); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to cache token balance")
		}
		return balance, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}
