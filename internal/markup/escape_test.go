package markup

import (
	"strings"
	"testing"
)

// TestEscape verifies that every MarkdownV2 reserved character is escaped
// and ordinary text passes through untouched.
func TestEscape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello world", "hello world"},
		{"a.b", `a\.b`},
		{"1+1=2", `1\+1\=2`},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
		{"100% fine", "100% fine"},
		{"emoji 😻 stays", "emoji 😻 stays"},
	}
	for _, tt := range tests {
		if got := Escape(tt.in).String(); got != tt.want {
			t.Errorf("Escape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestCode verifies inline code escaping, which only touches backtick and
// backslash.
func TestCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "`plain`"},
		{"a.b-c", "`a.b-c`"},
		{"tick ` inside", "`tick \\` inside`"},
		{`back \ slash`, "`back \\\\ slash`"},
	}
	for _, tt := range tests {
		if got := Code(tt.in).String(); got != tt.want {
			t.Errorf("Code(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestEntities verifies bold and italic wrapping with inner escaping.
func TestEntities(t *testing.T) {
	if got := Bold("v1.2").String(); got != `*v1\.2*` {
		t.Errorf("Bold = %q", got)
	}
	if got := Italic("a_b").String(); got != `_a\_b_` {
		t.Errorf("Italic = %q", got)
	}
	joined := Join(Bold("x"), Raw(" "), Escape("y.z"))
	if joined.String() != `*x* y\.z` {
		t.Errorf("Join = %q", joined)
	}
}

// TestRedactFileURL verifies that Telegram file URLs, which carry the bot
// token, are replaced before any text can be echoed to a chat.
func TestRedactFileURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no url",
			in:   "nothing to hide",
			want: "nothing to hide",
		},
		{
			name: "bare url",
			in:   "https://api.telegram.org/file/bot123:ABC/photos/file_1.jpg",
			want: "(telegram file)",
		},
		{
			name: "url mid sentence",
			in:   "image https://api.telegram.org/file/bot123:ABC/p.jpg here",
			want: "image (telegram file) here",
		},
		{
			name: "two urls",
			in:   "a https://api.telegram.org/file/botX/1.jpg b https://api.telegram.org/file/botX/2.jpg",
			want: "a (telegram file) b (telegram file)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactFileURL(tt.in)
			if got != tt.want {
				t.Errorf("RedactFileURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if strings.Contains(got, "api.telegram.org/file") {
				t.Errorf("token-bearing url survived redaction: %q", got)
			}
		})
	}
}

// TestAbbreviateAddress verifies wallet address shortening.
func TestAbbreviateAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0xABCDEF0123456789ABCDEF0123456789ABCDWXYZ", "0xABCDEF…WXYZ"},
		{"0xshort", "0xshort"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := AbbreviateAddress(tt.in); got != tt.want {
			t.Errorf("AbbreviateAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
