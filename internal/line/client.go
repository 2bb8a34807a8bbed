package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	replyEndpoint = "/v2/bot/message/reply"
	pushEndpoint  = "/v2/bot/message/push"
)

// Sender delivers outbound messages to the platform. Reply consumes a
// single-use reply token; Push addresses a user directly.
type Sender interface {
	Reply(ctx context.Context, replyToken string, msgs ...Message) error
	Push(ctx context.Context, to string, msgs ...Message) error
}

// Client is a lightweight LINE Messaging API client using net/http.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a LINE API client authenticated with the channel
// access token.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.line.me"
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Reply sends messages bound to a reply token.
func (c *Client) Reply(ctx context.Context, replyToken string, msgs ...Message) error {
	return c.send(ctx, replyEndpoint, map[string]any{
		"replyToken": replyToken,
		"messages":   msgs,
	})
}

// Push sends messages directly to a user.
func (c *Client) Push(ctx context.Context, to string, msgs ...Message) error {
	return c.send(ctx, pushEndpoint, map[string]any{
		"to":       to,
		"messages": msgs,
	})
}

func (c *Client) send(ctx context.Context, path string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("line send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("line send: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}
