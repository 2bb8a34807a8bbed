// Package agent runs the backend-invocation pipeline for one accepted
// webhook event: prompt shaping, backend streaming, response parsing, and
// the ordered delivery fallback chain.
package agent

import "strings"

// cardKeywords are exact-substring matches signalling that the user asked
// for a flex card rather than plain text.
var cardKeywords = []string{
	"เฟล็ก",
	"เฟลก",
	"การ์ด",
	"เมนู",
	"โปร",
	"โปรโมชัน",
	"โปรโมชั่น",
	"คูปอง",
}

// WantsCard is the card-intent heuristic: case-insensitive "flex" plus the
// fixed keyword set. Consulted both before invocation (instruction
// selection) and after (demo-card fallbacks).
func WantsCard(text string) bool {
	if strings.Contains(strings.ToLower(text), "flex") {
		return true
	}
	for _, kw := range cardKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
