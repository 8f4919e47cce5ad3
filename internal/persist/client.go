// Package persist is the REST client for the external persistence layer
// (chat history, video analysis rows, token balances, credential sign-in).
// It is a collaborator of the backbone, not part of it: everything stored
// here is the authoritative copy the response cache is rebuilt from.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/casperarmani/backendmultchat/config"
)

// User is the identity returned by SignIn.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ChatMessage is one persisted chat history row.
type ChatMessage struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Message        string    `json:"message"`
	ChatType       string    `json:"chat_type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// VideoAnalysis is one persisted analysis row.
type VideoAnalysis struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	UploadFileName string    `json:"upload_file_name"`
	Analysis       string    `json:"analysis"`
	VideoDuration  string    `json:"video_duration,omitempty"`
	VideoFormat    string    `json:"video_format,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// RequestError is returned when the persistence API answers outside 2xx
// after all retries.
type RequestError struct {
	Path     string
	Status   int
	Attempts int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("persistence %s failed with HTTP %d after %d attempts", e.Path, e.Status, e.Attempts)
}

// Client talks to the persistence API with client-side throttling and
// retry on transient failures.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	logger     zerolog.Logger
}

// NewClient creates a persistence client from configuration.
func NewClient(cfg config.PersistenceConfig, logger zerolog.Logger) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.InitialBackoff,
		maxBackoff: cfg.MaxBackoff,
		logger:     logger.With().Str("component", "persist").Logger(),
	}
}

// SignIn verifies credentials against the auth backend.
func (c *Client) SignIn(ctx context.Context, email, password string) (*User, error) {
	var user User
	err := c.doJSON(ctx, http.MethodPost, "/auth/sign_in", map[string]string{
		"email":    email,
		"password": password,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SignUp registers a new account with the auth backend.
func (c *Client) SignUp(ctx context.Context, email, password string) (*User, error) {
	var user User
	err := c.doJSON(ctx, http.MethodPost, "/auth/sign_up", map[string]string{
		"email":    email,
		"password": password,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// InsertChatMessage appends one row to the user's chat history.
func (c *Client) InsertChatMessage(ctx context.Context, userID, message, chatType, conversationID string) error {
	body := map[string]string{
		"user_id":   userID,
		"message":   message,
		"chat_type": chatType,
	}
	if conversationID != "" {
		body["conversation_id"] = conversationID
	}
	return c.doJSON(ctx, http.MethodPost, "/chat_history", body, nil)
}

// ChatHistory reads the most recent chat rows for a user.
func (c *Client) ChatHistory(ctx context.Context, userID string, limit int) ([]ChatMessage, error) {
	var rows []ChatMessage
	path := fmt.Sprintf("/chat_history?user_id=%s&limit=%d", userID, limit)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertVideoAnalysis appends one analysis row.
func (c *Client) InsertVideoAnalysis(ctx context.Context, userID, filename, analysis string, metadata map[string]string) error {
	return c.doJSON(ctx, http.MethodPost, "/video_analysis", map[string]any{
		"user_id":          userID,
		"upload_file_name": filename,
		"analysis":         analysis,
		"video_duration":   metadata["duration"],
		"video_format":     metadata["format"],
	}, nil)
}

// VideoAnalysisHistory reads the most recent analysis rows for a user.
func (c *Client) VideoAnalysisHistory(ctx context.Context, userID string, limit int) ([]VideoAnalysis, error) {
	var rows []VideoAnalysis
	path := fmt.Sprintf("/video_analysis?user_id=%s&limit=%d", userID, limit)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// TokenBalance reads the user's current token balance.
func (c *Client) TokenBalance(ctx context.Context, userID string) (int, error) {
	var resp struct {
		Balance int `json:"balance"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/tokens/"+userID, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

// DeductTokens records token usage for a completed operation.
func (c *Client) DeductTokens(ctx context.Context, userID string, tokens int) error {
	return c.doJSON(ctx, http.MethodPost, "/tokens/"+userID+"/usage", map[string]int{
		"tokens": tokens,
	}, nil)
}

// doJSON performs one API call with throttling and retry. Retryable: 429
// and 5xx. Other statuses fail immediately.
func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("persist: marshal %s: %w", path, err)
		}
	}

	var lastStatus int
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay(attempt)):
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return fmt.Errorf("persist: build request %s: %w", path, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("apikey", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn().Err(err).Str("path", path).Int("attempt", attempt+1).Msg("Persistence request failed")
			lastStatus = 0
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			defer resp.Body.Close()
			if dest == nil {
				io.Copy(io.Discard, resp.Body)
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
				return fmt.Errorf("persist: decode %s: %w", path, err)
			}
			return nil
		}

		lastStatus = resp.StatusCode
		resp.Body.Close()

		if !retryableStatus(resp.StatusCode) {
			return &RequestError{Path: path, Status: resp.StatusCode, Attempts: attempt + 1}
		}
	}

	return &RequestError{Path: path, Status: lastStatus, Attempts: c.maxRetries + 1}
}

// retryDelay is exponential backoff capped at maxBackoff.
func (c *Client) retryDelay(attempt int) time.Duration {
	delay := float64(c.backoff) * math.Pow(2, float64(attempt-1))
	if capped := float64(c.maxBackoff); delay > capped {
		delay = capped
	}
	return time.Duration(delay)
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}
