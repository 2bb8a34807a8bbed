package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/wasinlab/linerelay/internal/line"
	"github.com/wasinlab/linerelay/internal/providers"
	"github.com/wasinlab/linerelay/internal/store"
)

type fakeBackend struct {
	events []providers.StreamEvent
	err    error
	prompt string
}

func (f *fakeBackend) EnsureSession(ctx context.Context, userID, sessionID string) error {
	return nil
}

func (f *fakeBackend) Invoke(ctx context.Context, req providers.InvokeRequest, onEvent func(providers.StreamEvent)) error {
	f.prompt = req.Prompt
	for _, ev := range f.events {
		onEvent(ev)
	}
	return f.err
}

type sentMessage struct {
	via        string // "reply" or "push"
	replyToken string
	to         string
	msg        line.Message
}

type fakeSender struct {
	sent     []sentMessage
	replyErr error
	pushErr  error
}

func (f *fakeSender) Reply(ctx context.Context, replyToken string, msgs ...line.Message) error {
	if f.replyErr != nil {
		return f.replyErr
	}
	for _, m := range msgs {
		f.sent = append(f.sent, sentMessage{via: "reply", replyToken: replyToken, msg: m})
	}
	return nil
}

func (f *fakeSender) Push(ctx context.Context, to string, msgs ...line.Message) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	for _, m := range msgs {
		f.sent = append(f.sent, sentMessage{via: "push", to: to, msg: m})
	}
	return nil
}

type memLog struct {
	turns []store.Turn
}

func (m *memLog) AddTurn(userID, role, text string, at time.Time) error {
	m.turns = append(m.turns, store.Turn{Role: role, Text: text})
	return nil
}

func (m *memLog) RecentTurns(userID string, limit int) ([]store.Turn, error) {
	return nil, nil
}

func (m *memLog) lastAssistant() string {
	for i := len(m.turns) - 1; i >= 0; i-- {
		if m.turns[i].Role == "assistant" {
			return m.turns[i].Text
		}
	}
	return ""
}

func TestPipeline_ToolDelivered(t *testing.T) {
	backend := &fakeBackend{events: []providers.StreamEvent{{ToolInvoked: true}}}
	sender := &fakeSender{}
	mem := &memLog{}

	NewPipeline(backend, sender, mem).Process(context.Background(), "u1", "tok", "สวัสดี")

	if len(sender.sent) != 0 {
		t.Fatalf("tool-delivered path must not send, sent %d", len(sender.sent))
	}
	if mem.lastAssistant() != memToolDelivered {
		t.Errorf("assistant memory = %q", mem.lastAssistant())
	}
}

func TestPipeline_ParsedTextReplied(t *testing.T) {
	backend := &fakeBackend{events: []providers.StreamEvent{
		{Text: "```json\n{\"type\":\"text\",\"text\":\"hi\"}\n```", Final: true},
	}}
	sender := &fakeSender{}
	mem := &memLog{}

	NewPipeline(backend, sender, mem).Process(context.Background(), "u1", "tok", "hello")

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	got := sender.sent[0]
	if got.via != "reply" || got.replyToken != "tok" {
		t.Errorf("delivered via %s/%s, want reply/tok", got.via, got.replyToken)
	}
	if got.msg.Type != "text" || got.msg.Text != "hi" {
		t.Errorf("message = %+v", got.msg)
	}
	if mem.lastAssistant() != "hi" {
		t.Errorf("assistant memory = %q", mem.lastAssistant())
	}
}

func TestPipeline_ParsedFlexReplied(t *testing.T) {
	backend := &fakeBackend{events: []providers.StreamEvent{
		{Text: `{"type":"flex","altText":"a","contents":{"type":"bubble"}}`, Final: true},
	}}
	sender := &fakeSender{}
	mem := &memLog{}

	NewPipeline(backend, sender, mem).Process(context.Background(), "u1", "tok", "ขอการ์ด")

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	if sender.sent[0].msg.Type != "flex" {
		t.Errorf("message type = %q, want flex", sender.sent[0].msg.Type)
	}
	if mem.lastAssistant() != memFlexDelivered {
		t.Errorf("assistant memory = %q", mem.lastAssistant())
	}
}

func TestPipeline_DemoCardOnQuotaExhaustion(t *testing.T) {
	backend := &fakeBackend{err: fmt.Errorf("gemini: %w", providers.ErrQuotaExhausted)}
	sender := &fakeSender{}
	mem := &memLog{}

	NewPipeline(backend, sender, mem).Process(context.Background(), "u1", "tok", "ขอคูปองหน่อย")

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	got := sender.sent[0]
	if got.via != "reply" {
		t.Errorf("delivered via %s, want reply", got.via)
	}
	want := line.DemoFlex()
	if got.msg.Type != "flex" || got.msg.AltText != want.AltText {
		t.Errorf("message = %+v, want demo card", got.msg)
	}
	if string(got.msg.Contents) != string(want.Contents) {
		t.Error("demo card contents differ from the fixed payload")
	}
	if mem.lastAssistant() != memDemoOnQuota {
		t.Errorf("assistant memory = %q", mem.lastAssistant())
	}
}

func TestPipeline_DemoCardOnUnparsedCardIntent(t *testing.T) {
	backend := &fakeBackend{events: []providers.StreamEvent{
		{Text: "here is your promotion, no payload though", Final: true},
	}}
	sender := &fakeSender{}
	mem := &memLog{}

	NewPipeline(backend, sender, mem).Process(context.Background(), "u1", "tok", "ขอโปรโมชั่น")

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	got := sender.sent[0]
	if got.via != "push" || got.to != "u1" {
		t.Errorf("delivered via %s/%s, want push/u1", got.via, got.to)
	}
	if got.msg.Type != "flex" {
		t.Errorf("message type = %q, want flex", got.msg.Type)
	}
	if mem.lastAssistant() != memDemoOnIntent {
		t.Errorf("assistant memory = %q", mem.lastAssistant())
	}
}

func TestPipeline_RawTextFallback(t *testing.T) {
	backend := &fakeBackend{events: []providers.StreamEvent{
		{Text: "just words, nothing structured", Final: true},
	}}
	sender := &fakeSender{}
	mem := &memLog{}

	NewPipeline(backend, sender, mem).Process(context.Background(), "u1", "tok", "hello")

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	got := sender.sent[0]
	if got.via != "push" {
		t.Errorf("raw text fallback via %s, want push", got.via)
	}
	if got.msg.Text != "just words, nothing structured" {
		t.Errorf("text = %q", got.msg.Text)
	}
}

func TestPipeline_ApologyWhenBackendSilent(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection refused")}
	sender := &fakeSender{}
	mem := &memLog{}

	NewPipeline(backend, sender, mem).Process(context.Background(), "u1", "tok", "hello")

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	if sender.sent[0].msg.Text != apologyText {
		t.Errorf("text = %q, want apology", sender.sent[0].msg.Text)
	}
	if mem.lastAssistant() != apologyText {
		t.Errorf("assistant memory = %q", mem.lastAssistant())
	}
}

func TestPipeline_DeliveryFailureFallsThrough(t *testing.T) {
	// S1 reply fails; the chain must still reach S4 and push the raw text.
	backend := &fakeBackend{events: []providers.StreamEvent{
		{Text: `{"type":"text","text":"hi"}`, Final: true},
	}}
	sender := &fakeSender{replyErr: errors.New("HTTP 400")}
	mem := &memLog{}

	NewPipeline(backend, sender, mem).Process(context.Background(), "u1", "tok", "hello")

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	got := sender.sent[0]
	if got.via != "push" {
		t.Errorf("fallback via %s, want push", got.via)
	}
	if !strings.Contains(got.msg.Text, "hi") {
		t.Errorf("fallback text = %q", got.msg.Text)
	}
}

func TestPipeline_PromptShaping(t *testing.T) {
	backend := &fakeBackend{events: []providers.StreamEvent{{Text: "ok", Final: true}}}
	sender := &fakeSender{}

	NewPipeline(backend, sender, nil).Process(context.Background(), "u1", "tok", "ขอคูปอง")
	if !strings.Contains(backend.prompt, "JSON message object") {
		t.Error("card-intent prompt missing flex instruction")
	}

	backend2 := &fakeBackend{events: []providers.StreamEvent{{Text: "ok", Final: true}}}
	NewPipeline(backend2, sender, nil).Process(context.Background(), "u1", "tok", "สวัสดี")
	if strings.Contains(backend2.prompt, "JSON message object") {
		t.Error("plain prompt carries flex instruction")
	}
}
