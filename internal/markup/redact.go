package markup

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// fileURLMarker identifies Telegram file-download URLs, which embed the bot
// token in the path and must never be echoed back to a chat.
const fileURLMarker = "https://api.telegram.org/file/bot"

// RedactFileURL replaces every Telegram file URL in s with "(telegram file)".
// The replacement spans from the marker to the next whitespace or end of
// string.
func RedactFileURL(s string) string {
	if !strings.Contains(s, fileURLMarker) {
		return s
	}
	var b strings.Builder
	rest := s
	for {
		i := strings.Index(rest, fileURLMarker)
		if i < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:i])
		b.WriteString("(telegram file)")
		rest = rest[i:]
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			return b.String()
		}
		rest = rest[end:]
	}
}

// AbbreviateAddress shortens a wallet address for display, keeping the 0x
// prefix with the first six and last four hex characters.
func AbbreviateAddress(addr string) string {
	if len(addr) < 14 {
		return addr
	}
	return addr[:8] + "…" + addr[len(addr)-4:]
}

// Clip bounds s to max bytes without splitting a UTF-8 sequence, appending
// an ellipsis when cut.
func Clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
