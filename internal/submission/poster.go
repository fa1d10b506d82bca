// Package submission delivers finished session payloads to the logging
// endpoint over HTTP. Delivery is best-effort: the widget's in-memory
// session and the bridge remain authoritative when the endpoint is down.
package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Poster is the interface the widget flushes through.
type Poster interface {
	SubmitChatData(ctx context.Context, sessionID string, data any) error
}

// Client posts to POST {baseURL}/api/v1/chat-data with the submitChatData
// action envelope.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type chatDataRequest struct {
	SessionID string `json:"sessionId"`
	Action    string `json:"action"`
	Data      any    `json:"data"`
}

func (c *Client) SubmitChatData(ctx context.Context, sessionID string, data any) error {
	body, err := json.Marshal(chatDataRequest{
		SessionID: sessionID,
		Action:    "submitChatData",
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("marshal chat data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat-data", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post chat data: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chat data endpoint returned %d", resp.StatusCode)
	}
	return nil
}
