// Package delivery turns completed generation records into chat messages:
// the result card with its rating and action row, and the follow-up edits
// that keep the card's tweak and rerun counters current.
package delivery

import (
	"strconv"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
	"github.com/nextlevelbuilder/musebot/internal/markup"
	"github.com/nextlevelbuilder/musebot/internal/telegram"
)

// Card media kinds.
const (
	KindPhoto     = "photo"
	KindAnimation = "animation"
	KindVideo     = "video"
	KindText      = "text"
)

// Button glyphs. The tweak and rerun glyphs double as counter prefixes:
// pressed counts render as ✎1, ✎2 and ↻1, ↻2.
const (
	GlyphTweak = "✎"
	GlyphRerun = "↻"
)

// captionLimit leaves headroom under Telegram's 1024-char caption cap for
// the tool name line and escaping growth.
const captionLimit = 800

// Card is a renderable delivery for one completed generation.
type Card struct {
	Kind     string
	FileURL  string
	Text     markup.Safe
	Keyboard *telego.InlineKeyboardMarkup
}

// Build renders the delivery card for a completed generation record.
func Build(rec *dataapi.GenerationRecord) *Card {
	kind, fileURL := pickMedia(rec)
	card := &Card{
		Kind:     kind,
		FileURL:  fileURL,
		Keyboard: Keyboard(rec.ID),
	}

	prompt := rec.Metadata.UserInputPrompt
	if prompt == "" {
		if v, ok := rec.RequestPayload["input_prompt"].(string); ok {
			prompt = v
		}
	}
	prompt = markup.Clip(markup.RedactFileURL(prompt), captionLimit)

	parts := []markup.Safe{markup.Bold(rec.ToolDisplayName)}
	if prompt != "" {
		parts = append(parts, markup.Raw("\n"), markup.Escape(prompt))
	}
	if kind == KindText {
		if text := responseText(rec); text != "" {
			parts = append(parts, markup.Raw("\n\n"), markup.Escape(markup.RedactFileURL(text)))
		}
	}
	card.Text = markup.Join(parts...)
	return card
}

// Keyboard builds the fresh card keyboard: a rating row and the action
// row with hide, info, tweak, and rerun.
func Keyboard(generationID string) *telego.InlineKeyboardMarkup {
	return telegram.NewKeyboard().
		Row(
			telegram.Button("😻", "rate_gen:"+generationID+":beautiful"),
			telegram.Button("😹", "rate_gen:"+generationID+":funny"),
			telegram.Button("😿", "rate_gen:"+generationID+":negative"),
		).
		Row(
			telegram.Button("✖️", "hide_menu"),
			telegram.Button("ℹ️", "view_gen_info:"+generationID),
			telegram.Button(GlyphTweak, "tweak_gen:"+generationID),
			telegram.Button(GlyphRerun, "rerun_gen:"+generationID),
		).
		Markup()
}

func pickMedia(rec *dataapi.GenerationRecord) (string, string) {
	for _, item := range rec.Responses {
		for _, img := range item.Data.Images {
			// Some tools return gifs under images.
			if isAnimation(img) {
				return KindAnimation, img.URL
			}
			return KindPhoto, img.URL
		}
		for _, anim := range item.Data.Animations {
			return KindAnimation, anim.URL
		}
		for _, vid := range item.Data.Videos {
			return KindVideo, vid.URL
		}
	}
	return KindText, ""
}

func isAnimation(ref dataapi.MediaRef) bool {
	if strings.Contains(ref.ContentType, "gif") {
		return true
	}
	u := strings.ToLower(ref.URL)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.HasSuffix(u, ".gif")
}

func responseText(rec *dataapi.GenerationRecord) string {
	var parts []string
	for _, item := range rec.Responses {
		if item.Data.Text != "" {
			parts = append(parts, item.Data.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// CounterLabel renders a glyph button label with a press count. A count of
// zero is the bare glyph.
func CounterLabel(glyph string, count int) string {
	if count <= 0 {
		return glyph
	}
	return glyph + strconv.Itoa(count)
}

// ParseCounter reads the press count out of a glyph button label. The bare
// glyph parses as zero.
func ParseCounter(label, glyph string) (int, bool) {
	if !strings.HasPrefix(label, glyph) {
		return 0, false
	}
	rest := label[len(glyph):]
	if rest == "" {
		return 0, true
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IncrementTweak returns a copy of kb with the tweak counter bumped by
// one. The second result is false when no tweak button is present.
func IncrementTweak(kb *telego.InlineKeyboardMarkup) (*telego.InlineKeyboardMarkup, bool) {
	if kb == nil {
		return nil, false
	}
	out := cloneKeyboard(kb)
	for i, row := range out.InlineKeyboard {
		for j, btn := range row {
			count, ok := ParseCounter(btn.Text, GlyphTweak)
			if !ok {
				continue
			}
			out.InlineKeyboard[i][j].Text = CounterLabel(GlyphTweak, count+1)
			return out, true
		}
	}
	return out, false
}

// SetRerunCount returns a copy of kb with the rerun button showing count
// presses and carrying the bumped count in its callback data. The second
// result is false when no rerun button is present.
func SetRerunCount(kb *telego.InlineKeyboardMarkup, generationID string, count int) (*telego.InlineKeyboardMarkup, bool) {
	if kb == nil {
		return nil, false
	}
	out := cloneKeyboard(kb)
	for i, row := range out.InlineKeyboard {
		for j, btn := range row {
			if !strings.HasPrefix(btn.CallbackData, "rerun_gen:") {
				continue
			}
			out.InlineKeyboard[i][j].Text = CounterLabel(GlyphRerun, count)
			out.InlineKeyboard[i][j].CallbackData = "rerun_gen:" + generationID + ":" + strconv.Itoa(count)
			return out, true
		}
	}
	return out, false
}

func cloneKeyboard(kb *telego.InlineKeyboardMarkup) *telego.InlineKeyboardMarkup {
	rows := make([][]telego.InlineKeyboardButton, len(kb.InlineKeyboard))
	for i, row := range kb.InlineKeyboard {
		rows[i] = make([]telego.InlineKeyboardButton, len(row))
		copy(rows[i], row)
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}
