// Package line implements the LINE Messaging API surface of linerelay:
// outbound message types, the reply/push REST client, and the inbound
// webhook handler.
package line

import (
	"encoding/json"
	"fmt"
)

// Message size limits imposed by the LINE Messaging API.
const (
	MaxTextRunes    = 5000
	MaxAltTextRunes = 400
)

const defaultAltText = "ข้อความสำคัญ"

// Message is one outbound LINE message: a tagged variant of plain text
// ("text") or a flex container ("flex"). Contents is opaque to linerelay
// beyond being a JSON object; the platform validates its structure.
type Message struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	AltText  string          `json:"altText,omitempty"`
	Contents json.RawMessage `json:"contents,omitempty"`
}

// NewText builds a plain text message, truncated to the platform limit.
func NewText(text string) Message {
	return Message{Type: "text", Text: TruncateRunes(text, MaxTextRunes)}
}

// NewFlex builds a flex message. An empty altText gets a generic default,
// truncation keeps it within the platform limit.
func NewFlex(altText string, contents json.RawMessage) Message {
	if altText == "" {
		altText = defaultAltText
	}
	return Message{Type: "flex", AltText: TruncateRunes(altText, MaxAltTextRunes), Contents: contents}
}

// Validate checks the variant invariant: exactly one recognized type tag with
// its required fields present. An invalid message must not be sent.
func (m Message) Validate() error {
	switch m.Type {
	case "text":
		if m.Text == "" {
			return fmt.Errorf("text message missing text")
		}
	case "flex":
		if m.AltText == "" || len(m.Contents) == 0 {
			return fmt.Errorf("flex message missing altText or contents")
		}
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

// TruncateRunes shortens s to at most max runes without splitting one.
func TruncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// demoFlexContents is the fixed demonstration bubble pushed when the backend
// is out of quota (or returned nothing usable) and the user clearly asked
// for a card.
const demoFlexContents = `{
  "type": "bubble",
  "body": {
    "type": "box",
    "layout": "vertical",
    "contents": [
      {"type": "text", "text": "ตัวอย่างโปรโมชัน", "weight": "bold", "size": "lg"},
      {"type": "text", "text": "ส่วนลดพิเศษ 20% สำหรับลูกค้าใหม่", "wrap": true, "size": "sm", "color": "#555555"},
      {"type": "separator", "margin": "md"},
      {"type": "button", "style": "primary", "margin": "md", "action": {"type": "uri", "label": "ดูรายละเอียด", "uri": "https://example.com/"}}
    ]
  }
}`

// DemoFlex returns the canned demonstration card.
func DemoFlex() Message {
	return NewFlex("ตัวอย่างโปรโมชัน - ดูรายละเอียด", json.RawMessage(demoFlexContents))
}
