package line

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"valid text", NewText("hi"), false},
		{"valid flex", NewFlex("alt", json.RawMessage(`{"type":"bubble"}`)), false},
		{"demo flex", DemoFlex(), false},
		{"empty text", Message{Type: "text"}, true},
		{"flex without contents", Message{Type: "flex", AltText: "a"}, true},
		{"unknown type", Message{Type: "sticker"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewTextTruncates(t *testing.T) {
	msg := NewText(strings.Repeat("ก", MaxTextRunes+100))
	if n := len([]rune(msg.Text)); n != MaxTextRunes {
		t.Errorf("text length = %d runes, want %d", n, MaxTextRunes)
	}
}

func TestNewFlexDefaultsAltText(t *testing.T) {
	msg := NewFlex("", json.RawMessage(`{}`))
	if msg.AltText == "" {
		t.Error("empty altText not defaulted")
	}
	long := NewFlex(strings.Repeat("a", MaxAltTextRunes+50), json.RawMessage(`{}`))
	if len([]rune(long.AltText)) != MaxAltTextRunes {
		t.Errorf("altText not truncated to %d runes", MaxAltTextRunes)
	}
}

func TestDemoFlexContentsIsValidJSON(t *testing.T) {
	var obj map[string]any
	if err := json.Unmarshal(DemoFlex().Contents, &obj); err != nil {
		t.Fatalf("demo contents not valid JSON: %v", err)
	}
	if obj["type"] != "bubble" {
		t.Errorf("demo container type = %v, want bubble", obj["type"])
	}
}

func TestMessageJSONShape(t *testing.T) {
	b, err := json.Marshal(NewText("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"text","text":"hi"}` {
		t.Errorf("text message JSON = %s", b)
	}

	b, err = json.Marshal(NewFlex("a", json.RawMessage(`{"k":1}`)))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"flex","altText":"a","contents":{"k":1}}` {
		t.Errorf("flex message JSON = %s", b)
	}
}
