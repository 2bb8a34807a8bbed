package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// GeminiClient calls the Generative Language API with server-sent-event
// streaming. Sessions have no server-side counterpart on this API; the
// client keeps a local registry so EnsureSession stays idempotent per the
// Backend contract.
type GeminiClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client

	mu       sync.Mutex
	sessions map[string]struct{}
}

// NewGeminiClient creates a Gemini backend client. Construct once at process
// start and inject; the client is reused for the process lifetime.
func NewGeminiClient(apiKey, model, baseURL string, timeout time.Duration) *GeminiClient {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		sessions:   make(map[string]struct{}),
	}
}

// EnsureSession registers a session if absent; an existing session is not
// an error.
func (c *GeminiClient) EnsureSession(_ context.Context, userID, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[userID+":"+sessionID] = struct{}{}
	return nil
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text         string          `json:"text,omitempty"`
	FunctionCall json.RawMessage `json:"functionCall,omitempty"`
}

type geminiChunk struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Invoke streams one generation. Text parts are emitted as they arrive; a
// terminal event carries the accumulated final text. A part carrying a
// function call is surfaced as ToolInvoked.
func (c *GeminiClient) Invoke(ctx context.Context, req InvokeRequest, onEvent func(StreamEvent)) error {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Prompt}},
		}},
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gemini: HTTP 429: %w", ErrQuotaExhausted)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if bytes.Contains(detail, []byte("RESOURCE_EXHAUSTED")) {
			return fmt.Errorf("gemini: HTTP %d: %w", resp.StatusCode, ErrQuotaExhausted)
		}
		return fmt.Errorf("gemini: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	var finalText strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var chunk geminiChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			if chunk.Error.Status == "RESOURCE_EXHAUSTED" || chunk.Error.Code == 429 {
				return fmt.Errorf("gemini: %s: %w", chunk.Error.Message, ErrQuotaExhausted)
			}
			return fmt.Errorf("gemini: %s: %s", chunk.Error.Status, chunk.Error.Message)
		}
		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				if len(part.FunctionCall) > 0 && onEvent != nil {
					onEvent(StreamEvent{ToolInvoked: true})
				}
				if part.Text != "" {
					finalText.WriteString(part.Text)
					if onEvent != nil {
						onEvent(StreamEvent{Text: part.Text})
					}
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("gemini stream: %w", err)
	}

	if onEvent != nil {
		onEvent(StreamEvent{Text: finalText.String(), Final: true})
	}
	return nil
}
