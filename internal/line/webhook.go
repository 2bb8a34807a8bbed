package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/wasinlab/linerelay/internal/guard"
)

// maxWebhookBody bounds the request body read to keep a hostile payload from
// exhausting memory.
const maxWebhookBody = 1 << 20

// Dispatch hands an accepted event to the backend-invocation pipeline.
// Implementations must be non-blocking; the webhook response is decoupled
// from delivery success.
type Dispatch func(userID, replyToken, text string)

// Handler is the webhook intake. It validates and filters incoming events,
// applies dedup and throttle admission, and dispatches accepted events
// without awaiting their pipelines.
type Handler struct {
	dedup         *guard.DedupGuard
	throttle      *guard.ThrottleGuard
	channelSecret string
	defaultUserID string
	dispatch      Dispatch
	limiter       *rate.Limiter
}

// NewHandler creates the webhook intake. channelSecret enables signature
// verification when non-empty. rateLimitRPM caps accepted requests per
// minute; zero disables the limiter.
func NewHandler(dedup *guard.DedupGuard, throttle *guard.ThrottleGuard, channelSecret, defaultUserID string, rateLimitRPM int, dispatch Dispatch) *Handler {
	var limiter *rate.Limiter
	if rateLimitRPM > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(rateLimitRPM)/60.0), rateLimitRPM)
	}
	return &Handler{
		dedup:         dedup,
		throttle:      throttle,
		channelSecret: channelSecret,
		defaultUserID: defaultUserID,
		dispatch:      dispatch,
		limiter:       limiter,
	}
}

// ServeHTTP handles POST /webhook. The platform gets a fast acknowledgment
// regardless of backend latency: "ok" if at least one event was dispatched,
// "ignored" otherwise, "bad_request" only on an unparseable body.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if h.limiter != nil && !h.limiter.Allow() {
		writeStatus(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "bad_request")
		return
	}

	if h.channelSecret != "" && !h.verifySignature(body, r.Header.Get("X-Line-Signature")) {
		slog.Warn("webhook signature verification failed")
		writeStatus(w, http.StatusForbidden, "forbidden")
		return
	}

	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeStatus(w, http.StatusBadRequest, "bad_request")
		return
	}

	accepted := false
	for _, ev := range req.Events {
		if h.handleEvent(ev) {
			accepted = true
		}
	}

	if accepted {
		writeStatus(w, http.StatusOK, "ok")
		return
	}
	writeStatus(w, http.StatusOK, "ignored")
}

// handleEvent processes one event independently; a skipped or failed event
// never aborts its siblings. Returns true when a pipeline was dispatched.
func (h *Handler) handleEvent(ev Event) bool {
	if ev.Type != "message" || ev.Message == nil || ev.Message.Type != "text" {
		return false
	}

	userID := ev.Source.UserID
	if userID == "" {
		userID = h.defaultUserID
	}
	text := ev.Message.Text

	key := dedupKey(ev, userID, text)
	if h.dedup.Seen(key) {
		slog.Info("skip duplicate event", "dedup_key", key)
		return false
	}

	if !h.throttle.TryAdmit(userID) {
		slog.Info("skip throttled user", "user_id", userID, "window", guard.ThrottleWindow)
		return false
	}

	if ev.ReplyToken == "" {
		slog.Warn("no reply token for event", "webhook_event_id", ev.WebhookEventID)
		return false
	}

	h.dispatch(userID, ev.ReplyToken, text)
	return true
}

// dedupKey derives the idempotency key: the platform event ID when present,
// else user+message ID, else user+text hash.
func dedupKey(ev Event, userID, text string) string {
	if ev.WebhookEventID != "" {
		return ev.WebhookEventID
	}
	if ev.Message != nil && ev.Message.ID != "" {
		return fmt.Sprintf("%s:%s", userID, ev.Message.ID)
	}
	hash := fnv.New64a()
	hash.Write([]byte(text))
	return fmt.Sprintf("%s:%x", userID, hash.Sum64())
}

// verifySignature checks the X-Line-Signature header: base64 of the
// HMAC-SHA256 of the raw body keyed with the channel secret.
func (h *Handler) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.channelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
