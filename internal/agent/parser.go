package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/wasinlab/linerelay/internal/line"
)

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n\\s*```")

// ParseMessageObject extracts an outbound-message-shaped object from a raw
// backend response. Backends wrap JSON in prose or fences unpredictably, so
// the search is deliberately lenient: a fenced block first, then a bare scan
// from the first '{'. A shape is only accepted with a "type" discriminator,
// either directly or nested under a "message" field. Returns nil when
// nothing parses.
func ParseMessageObject(text string) map[string]any {
	if block := codeBlockRe.FindStringSubmatch(text); len(block) >= 2 {
		if obj := decodeMessageObject(strings.TrimSpace(block[1])); obj != nil {
			return obj
		}
	}

	if start := strings.Index(text, "{"); start >= 0 {
		if obj := decodeMessageObject(text[start:]); obj != nil {
			return obj
		}
	}

	return nil
}

func decodeMessageObject(raw string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	if nested, ok := obj["message"].(map[string]any); ok {
		return nested
	}
	if _, ok := obj["type"]; ok {
		return obj
	}
	return nil
}

// CoerceMessage turns a parsed object into a sendable Message. Accepts
// {"type":"text","text":...} and any object carrying altText+contents as a
// flex container. Returns false for anything else.
func CoerceMessage(obj map[string]any) (line.Message, bool) {
	mtype, _ := obj["type"].(string)
	if strings.ToLower(mtype) == "text" {
		if text, ok := obj["text"].(string); ok {
			return line.NewText(text), true
		}
		return line.Message{}, false
	}

	if _, hasContents := obj["contents"]; hasContents {
		if _, hasAlt := obj["altText"]; hasAlt {
			contents, err := json.Marshal(obj["contents"])
			if err != nil {
				return line.Message{}, false
			}
			altText, _ := obj["altText"].(string)
			return line.NewFlex(altText, contents), true
		}
	}

	return line.Message{}, false
}
