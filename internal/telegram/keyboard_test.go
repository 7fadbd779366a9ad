package telegram

import (
	"errors"
	"strings"
	"testing"
)

// TestKeyboardRows verifies row and grid assembly.
func TestKeyboardRows(t *testing.T) {
	kb := NewKeyboard().
		Row(Button("a", "cb:a"), Button("b", "cb:b")).
		Grid(2, Button("1", "cb:1"), Button("2", "cb:2"), Button("3", "cb:3")).
		Markup()

	if kb == nil {
		t.Fatal("nil markup")
	}
	if len(kb.InlineKeyboard) != 3 {
		t.Fatalf("rows = %d, want 3", len(kb.InlineKeyboard))
	}
	if len(kb.InlineKeyboard[0]) != 2 || len(kb.InlineKeyboard[1]) != 2 || len(kb.InlineKeyboard[2]) != 1 {
		t.Errorf("row widths = %d/%d/%d",
			len(kb.InlineKeyboard[0]), len(kb.InlineKeyboard[1]), len(kb.InlineKeyboard[2]))
	}
	if kb.InlineKeyboard[0][0].CallbackData != "cb:a" {
		t.Errorf("callback data = %q", kb.InlineKeyboard[0][0].CallbackData)
	}
}

// TestKeyboardEmpty verifies that a keyboard with no rows yields nil
// markup so callers can pass it straight to the API.
func TestKeyboardEmpty(t *testing.T) {
	if kb := NewKeyboard().Markup(); kb != nil {
		t.Errorf("empty keyboard markup = %+v", kb)
	}
	if kb := NewKeyboard().Row().Markup(); kb != nil {
		t.Errorf("empty row markup = %+v", kb)
	}
}

// TestButtonCallbackLimit verifies the 64-byte callback data cap.
func TestButtonCallbackLimit(t *testing.T) {
	long := "prefix:" + strings.Repeat("x", 80)
	b := Button("label", long)
	if len(b.CallbackData) != MaxCallbackData {
		t.Errorf("callback data len = %d, want %d", len(b.CallbackData), MaxCallbackData)
	}

	ok := Button("label", "rate_gen:abc:beautiful")
	if ok.CallbackData != "rate_gen:abc:beautiful" {
		t.Errorf("short data altered: %q", ok.CallbackData)
	}
}

// TestTruncateLabel verifies display-width truncation of values.
func TestTruncateLabel(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 12, "short"},
		{"exactly12chr", 12, "exactly12chr"},
		{"a very long prompt value", 12, "a very long…"},
		{"", 12, ""},
	}
	for _, tt := range tests {
		if got := TruncateLabel(tt.in, tt.width); got != tt.want {
			t.Errorf("TruncateLabel(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

// TestEditErrorClassification verifies the Bot API error string matching
// used to pick edit fallbacks.
func TestEditErrorClassification(t *testing.T) {
	tests := []struct {
		err         error
		notEditable bool
		notModified bool
	}{
		{errors.New("telego: editMessageText: api: 400 Bad Request: message can't be edited"), true, false},
		{errors.New("api: 400 Bad Request: message to edit not found"), true, false},
		{errors.New("api: 400 Bad Request: message is not modified"), false, true},
		{errors.New("api: 429 Too Many Requests"), false, false},
		{nil, false, false},
	}
	for _, tt := range tests {
		if got := IsNotEditable(tt.err); got != tt.notEditable {
			t.Errorf("IsNotEditable(%v) = %v", tt.err, got)
		}
		if got := IsNotModified(tt.err); got != tt.notModified {
			t.Errorf("IsNotModified(%v) = %v", tt.err, got)
		}
	}
}
