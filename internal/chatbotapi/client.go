// Package chatbotapi is the HTTP adapter for the chat/video inference
// collaborator. Model specifics stay behind the service it calls; this is a
// thin request/response wrapper implementing the worker interfaces.
package chatbotapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/casperarmani/backendmultchat/config"
)

// Client posts task payloads to the inference service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates an inference client from configuration.
func New(cfg config.ChatbotConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// SendMessage runs chat inference for one user message.
func (c *Client) SendMessage(ctx context.Context, message, conversationID, userID string) (string, error) {
	var resp struct {
		Response string `json:"response"`
	}
	err := c.post(ctx, "/v1/chat", map[string]string{
		"message":         message,
		"conversation_id": conversationID,
		"user_id":         userID,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// AnalyzeVideo runs video analysis for a stored upload.
func (c *Client) AnalyzeVideo(ctx context.Context, fileID, filename, userID string) (string, map[string]string, error) {
	var resp struct {
		Analysis string            `json:"analysis"`
		Metadata map[string]string `json:"metadata"`
	}
	err := c.post(ctx, "/v1/analyze", map[string]string{
		"file_id":  fileID,
		"filename": filename,
		"user_id":  userID,
	}, &resp)
	if err != nil {
		return "", nil, err
	}
	return resp.Analysis, resp.Metadata, nil
}

func (c *Client) post(ctx context.Context, path string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("chatbot: marshal %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("chatbot: build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chatbot: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chatbot: %s returned HTTP %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("chatbot: decode %s: %w", path, err)
	}
	return nil
}
