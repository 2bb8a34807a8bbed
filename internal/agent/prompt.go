package agent

import (
	"strings"

	"github.com/wasinlab/linerelay/internal/line"
	"github.com/wasinlab/linerelay/internal/store"
)

// DefaultMemoryLimit is how many recent turns feed the prompt context.
const DefaultMemoryLimit = 8

// maxTurnRunes bounds each turn's contribution to the context summary.
const maxTurnRunes = 300

const (
	memoryHeader  = "บริบทก่อนหน้า (สรุปย่อ):"
	roleUserLabel = "ผู้ใช้"
	roleBotLabel  = "บอท"
)

// flexInstruction demands a strict JSON message object when the user asked
// for a card.
const flexInstruction = `
คุณต้องตอบกลับเป็น JSON message object สำหรับ LINE Messaging API เท่านั้น
โครงสร้างต้องเป็นดังนี้:
{
    "message": {
        "type": "flex",
        "altText": "ข้อความทางเลือก",
        "contents": {
            // Flex Message Container object
        }
    }
}

ห้ามตอบเป็นข้อความปกติเด็ดขาด ต้องเป็น JSON เท่านั้น
`

// toolInstruction steers the backend toward invoking its delivery tool
// directly for ordinary messages.
const toolInstruction = "\nกรุณาเรียกเครื่องมือส่งข้อความโดยตรงในการตอบกลับ"

// BuildMemoryContext assembles a bounded textual summary of prior turns,
// oldest to newest, each truncated to 300 runes. Returns "" when there is
// nothing usable.
func BuildMemoryContext(turns []store.Turn) string {
	var lines []string
	for _, t := range turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		label := roleBotLabel
		if strings.EqualFold(t.Role, "user") {
			label = roleUserLabel
		}
		if truncated := line.TruncateRunes(text, maxTurnRunes); truncated != text {
			text = truncated + "..."
		}
		lines = append(lines, label+": "+text)
	}
	if len(lines) == 0 {
		return ""
	}
	return memoryHeader + "\n" + strings.Join(lines, "\n")
}

// BuildPrompt shapes the backend prompt: prior context when available, the
// latest question, and the response-format instruction picked by card intent.
func BuildPrompt(memoryContext, userText string, wantsCard bool) string {
	instruction := toolInstruction
	sep := ""
	if wantsCard {
		instruction = flexInstruction
		sep = "\n"
	}
	if memoryContext != "" {
		return memoryContext + "\n\nคำถามล่าสุด: " + userText + sep + instruction
	}
	return userText + sep + instruction
}
