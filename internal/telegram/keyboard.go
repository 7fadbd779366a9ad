package telegram

import (
	"log/slog"

	"github.com/mattn/go-runewidth"
	"github.com/mymmrac/telego"
)

// MaxCallbackData is the Bot API limit on callback data bytes.
const MaxCallbackData = 64

// Button builds an inline callback button. Oversized callback data is a
// programming error in the callback grammar; it is truncated to keep the
// API call valid and logged loudly so it gets fixed.
func Button(label, data string) telego.InlineKeyboardButton {
	if len(data) > MaxCallbackData {
		slog.Error("callback data over limit, truncating", "data", data, "len", len(data))
		data = data[:MaxCallbackData]
	}
	return telego.InlineKeyboardButton{Text: label, CallbackData: data}
}

// URLButton builds an inline link button.
func URLButton(label, url string) telego.InlineKeyboardButton {
	return telego.InlineKeyboardButton{Text: label, URL: url}
}

// Keyboard assembles an inline keyboard from rows.
type Keyboard struct {
	rows [][]telego.InlineKeyboardButton
}

// NewKeyboard returns an empty keyboard builder.
func NewKeyboard() *Keyboard { return &Keyboard{} }

// Row appends one row of buttons. Empty rows are dropped.
func (k *Keyboard) Row(buttons ...telego.InlineKeyboardButton) *Keyboard {
	if len(buttons) > 0 {
		k.rows = append(k.rows, buttons)
	}
	return k
}

// Grid appends buttons in rows of the given width.
func (k *Keyboard) Grid(width int, buttons ...telego.InlineKeyboardButton) *Keyboard {
	if width < 1 {
		width = 1
	}
	for len(buttons) > 0 {
		n := width
		if n > len(buttons) {
			n = len(buttons)
		}
		k.rows = append(k.rows, buttons[:n])
		buttons = buttons[n:]
	}
	return k
}

// Markup returns the built keyboard, or nil when no rows were added.
func (k *Keyboard) Markup() *telego.InlineKeyboardMarkup {
	if len(k.rows) == 0 {
		return nil
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: k.rows}
}

// TruncateLabel shortens a value for button labels to width display cells,
// appending an ellipsis when cut. Width is measured with runewidth so CJK
// and emoji values truncate cleanly.
func TruncateLabel(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
