package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wasinlab/linerelay/internal/line"
	"github.com/wasinlab/linerelay/internal/providers"
	"github.com/wasinlab/linerelay/internal/store"
)

// apologyText is the terminal fallback when the backend produced nothing.
const apologyText = "ขออภัย เกิดข้อผิดพลาดในการส่งข้อความ ลองใหม่อีกครั้งนะครับ/ค่ะ"

// Synthetic assistant memory entries recorded for non-text delivery paths.
const (
	memToolDelivered = "(ส่งข้อความผ่านเครื่องมือสำเร็จ)"
	memFlexDelivered = "(ส่ง Flex message สำเร็จ)"
	memDemoOnQuota   = "(ส่ง Flex ตัวอย่างแบบสำรอง เนื่องจากโควต้าหมด)"
	memDemoOnIntent  = "(ส่ง Flex demo เนื่องจากขอ Flex แต่ไม่ได้รับ JSON message)"
)

// MemoryLog is the conversation memory surface the pipeline writes and reads.
// Failures are swallowed: a lost turn never blocks reply delivery.
type MemoryLog interface {
	AddTurn(userID, role, text string, at time.Time) error
	RecentTurns(userID string, limit int) ([]store.Turn, error)
}

// Pipeline runs the backend invocation and the ordered delivery fallback
// chain for one accepted event. The backend and sender are injected at
// construction; memory may be nil (degraded, context-free operation).
type Pipeline struct {
	backend providers.Backend
	sender  line.Sender
	memory  MemoryLog
}

// NewPipeline wires the delivery pipeline.
func NewPipeline(backend providers.Backend, sender line.Sender, memory MemoryLog) *Pipeline {
	return &Pipeline{backend: backend, sender: sender, memory: memory}
}

// Dispatch starts an independent, non-blocking unit of work for one event.
// The pipeline outlives the webhook response and runs to a terminal fallback
// state; there is no external cancellation.
func (p *Pipeline) Dispatch(userID, replyToken, text string) {
	go p.Process(context.Background(), userID, replyToken, text)
}

// Process executes prompt shaping, the backend invocation, and the fallback
// chain. Nothing raises past this boundary.
func (p *Pipeline) Process(ctx context.Context, userID, replyToken, text string) {
	runID := uuid.NewString()
	log := slog.With("run_id", runID, "user_id", userID)
	log.Info("pipeline start", "preview", line.TruncateRunes(text, 50))

	sessionID := userID
	if err := p.backend.EnsureSession(ctx, userID, sessionID); err != nil {
		log.Warn("ensure session failed", "error", err)
	}

	memoryContext := ""
	if p.memory != nil {
		turns, err := p.memory.RecentTurns(userID, DefaultMemoryLimit)
		if err != nil {
			log.Warn("memory read failed", "error", err)
		} else {
			memoryContext = BuildMemoryContext(turns)
		}
	}

	wantsCard := WantsCard(text)
	prompt := BuildPrompt(memoryContext, text, wantsCard)
	p.recordTurn(log, userID, "user", text)

	var finalText string
	toolDone := false
	quotaExhausted := false

	err := p.backend.Invoke(ctx, providers.InvokeRequest{
		UserID:    userID,
		SessionID: sessionID,
		Prompt:    prompt,
	}, func(ev providers.StreamEvent) {
		if ev.ToolInvoked {
			toolDone = true
		}
		if ev.Final && ev.Text != "" {
			finalText = ev.Text
		}
	})
	if err != nil {
		log.Error("backend invocation failed", "error", err)
		if providers.IsQuotaExhausted(err) {
			quotaExhausted = true
		}
	}

	// The backend's own tool call already delivered the message.
	if toolDone {
		log.Info("delivered via backend tool")
		p.recordTurn(log, userID, "assistant", memToolDelivered)
		return
	}

	// Structured message parsed from the backend's final text.
	var parsed map[string]any
	if finalText != "" {
		parsed = ParseMessageObject(finalText)
		if parsed == nil {
			log.Debug("final text not parseable as message object", "preview", line.TruncateRunes(finalText, 200))
		} else if msg, ok := CoerceMessage(parsed); ok && msg.Validate() == nil {
			if err := p.deliver(ctx, userID, replyToken, msg); err != nil {
				log.Warn("parsed message delivery failed", "type", msg.Type, "error", err)
			} else {
				log.Info("delivered parsed message", "type", msg.Type)
				entry := memFlexDelivered
				if msg.Type == "text" {
					entry = msg.Text
				}
				p.recordTurn(log, userID, "assistant", entry)
				return
			}
		} else {
			log.Debug("parsed object is not a valid message", "preview", line.TruncateRunes(finalText, 200))
		}
	}

	// Quota exhausted and the user clearly wanted a card.
	if quotaExhausted && wantsCard {
		if err := p.deliver(ctx, userID, replyToken, line.DemoFlex()); err != nil {
			log.Warn("demo card delivery failed", "error", err)
		} else {
			log.Info("delivered demo card on quota exhaustion")
			p.recordTurn(log, userID, "assistant", memDemoOnQuota)
			return
		}
	}

	// Card intent with a response that produced no structured message.
	if wantsCard && finalText != "" && parsed == nil {
		if err := p.sender.Push(ctx, userID, line.DemoFlex()); err != nil {
			log.Warn("demo card push failed", "error", err)
		} else {
			log.Info("delivered demo card on unparsed card intent")
			p.recordTurn(log, userID, "assistant", memDemoOnIntent)
			return
		}
	}

	// Raw text or apology. Terminal regardless of outcome.
	textToSend := finalText
	if textToSend == "" {
		textToSend = apologyText
	}
	if err := p.sender.Push(ctx, userID, line.NewText(textToSend)); err != nil {
		log.Warn("text fallback failed", "error", err)
	} else {
		log.Info("delivered text fallback", "preview", line.TruncateRunes(textToSend, 80))
	}
	p.recordTurn(log, userID, "assistant", textToSend)
}

// deliver replies when a token is available, otherwise pushes.
func (p *Pipeline) deliver(ctx context.Context, userID, replyToken string, msg line.Message) error {
	if replyToken != "" {
		return p.sender.Reply(ctx, replyToken, msg)
	}
	return p.sender.Push(ctx, userID, msg)
}

func (p *Pipeline) recordTurn(log *slog.Logger, userID, role, text string) {
	if p.memory == nil {
		return
	}
	if err := p.memory.AddTurn(userID, role, text, time.Now()); err != nil {
		log.Warn("memory write failed", "role", role, "error", err)
	}
}
