package features

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
	"github.com/nextlevelbuilder/musebot/internal/dispatch"
	"github.com/nextlevelbuilder/musebot/internal/identity"
	"github.com/nextlevelbuilder/musebot/internal/markup"
	"github.com/nextlevelbuilder/musebot/internal/state"
	"github.com/nextlevelbuilder/musebot/internal/telegram"
)

const loraPageSize = 6

// loraCategories drive the browse menu. Keys travel in callback data;
// favorites is resolved per account by the data service.
var loraCategories = []struct{ key, label string }{
	{"memes", "😂 Memes"},
	{"character", "🧑 Character"},
	{"style", "🎨 Style"},
	{"popular", "🔥 Popular"},
	{"recent", "🆕 Recent"},
	{"favorites", "❤️ Favorites"},
}

// loraCheckpoints are the filter values of the listing's checkpoint row.
// All maps to an unfiltered query.
var loraCheckpoints = []string{"All", "SDXL", "SD1.5", "FLUX"}

// handleLoras serves /lora and /loras with the category menu.
func (h *Handlers) handleLoras(ctx context.Context, msg *telego.Message, _ string, _ []string) error {
	return h.renderLoraTop(ctx, msg.Chat.ID, 0)
}

// loraCallback routes lora:* presses.
func (h *Handlers) loraCallback(ctx context.Context, p *dispatch.Press) error {
	rest := strings.TrimPrefix(p.Data(), "lora:")
	switch {
	case rest == "top":
		return h.renderLoraTop(ctx, p.ChatID(), p.MessageID())
	case rest == "import":
		return h.loraImportPrompt(ctx, p)
	case strings.HasPrefix(rest, "cat:"):
		parts := strings.Split(strings.TrimPrefix(rest, "cat:"), ":")
		if len(parts) != 3 {
			slog.Warn("malformed lora listing data", "data", p.Data())
			return nil
		}
		page, err := strconv.Atoi(parts[2])
		if err != nil {
			slog.Warn("malformed lora listing data", "data", p.Data())
			return nil
		}
		return h.renderLoraList(ctx, p, parts[0], parts[1], page)
	case strings.HasPrefix(rest, "view:"):
		return h.renderLoraDetail(ctx, p, strings.TrimPrefix(rest, "view:"))
	case strings.HasPrefix(rest, "fav:"):
		return h.toggleLoraFavorite(ctx, p, strings.TrimPrefix(rest, "fav:"))
	default:
		slog.Warn("unrouted lora action", "data", p.Data())
		return nil
	}
}

// renderLoraTop paints the category menu.
func (h *Handlers) renderLoraTop(ctx context.Context, chatID int64, messageID int) error {
	buttons := make([]telego.InlineKeyboardButton, 0, len(loraCategories))
	for _, cat := range loraCategories {
		buttons = append(buttons, telegram.Button(cat.label, "lora:cat:"+cat.key+":All:0"))
	}
	kb := telegram.NewKeyboard()
	kb.Grid(2, buttons...)
	kb.Row(telegram.Button("📥 Import", "lora:import"))
	kb.Row(telegram.Button("⬅️ Back", "menu:main"))

	text := markup.Join(
		markup.Bold("🎨 LoRAs"), markup.Raw("\n"),
		markup.Escape("Pick a category to browse."),
	)
	return h.paint(ctx, chatID, messageID, text, kb.Markup())
}

// renderLoraList paints one page of a category with the checkpoint filter
// row on top.
func (h *Handlers) renderLoraList(ctx context.Context, p *dispatch.Press, category, checkpoint string, pageNum int) error {
	checkpointParam := checkpoint
	if checkpoint == "All" {
		checkpointParam = ""
	}
	page, err := h.api.Loras(ctx, dataapi.LoraListParams{
		Category:        category,
		Checkpoint:      checkpointParam,
		Page:            pageNum,
		PageSize:        loraPageSize,
		MasterAccountID: p.MasterAccountID,
	})
	if err != nil {
		slog.Error("lora listing failed", "category", category, "error", err)
		p.Alert(ctx, genErrText)
		return nil
	}

	kb := telegram.NewKeyboard()
	filter := make([]telego.InlineKeyboardButton, 0, len(loraCheckpoints))
	for _, cp := range loraCheckpoints {
		label := cp
		if cp == checkpoint {
			label = "• " + cp
		}
		filter = append(filter, telegram.Button(label, "lora:cat:"+category+":"+cp+":0"))
	}
	kb.Row(filter...)

	items := make([]telego.InlineKeyboardButton, 0, len(page.Items))
	for _, lora := range page.Items {
		items = append(items, telegram.Button(lora.Name, "lora:view:"+lora.Slug))
	}
	kb.Grid(2, items...)

	if page.TotalPages > 1 {
		prefix := "lora:cat:" + category + ":" + checkpoint + ":"
		var nav []telego.InlineKeyboardButton
		if page.Page > 0 {
			nav = append(nav, telegram.Button("⬅️", prefix+strconv.Itoa(page.Page-1)))
		}
		nav = append(nav, telegram.Button(fmt.Sprintf("%d of %d", page.Page+1, page.TotalPages), prefix+strconv.Itoa(page.Page)))
		if page.Page < page.TotalPages-1 {
			nav = append(nav, telegram.Button("➡️", prefix+strconv.Itoa(page.Page+1)))
		}
		kb.Row(nav...)
	}
	kb.Row(telegram.Button("⬅️ Back", "lora:top"))

	parts := []markup.Safe{markup.Bold("🎨 " + loraCategoryLabel(category)), markup.Raw("\n")}
	if len(page.Items) == 0 {
		parts = append(parts, markup.Escape("Nothing here yet."))
	} else {
		parts = append(parts, markup.Escape("Pick a LoRA for details."))
	}
	return h.paintOver(ctx, p, markup.Join(parts...), kb.Markup())
}

// renderLoraDetail paints one LoRA's card, with the preview image when the
// listing carries one.
func (h *Handlers) renderLoraDetail(ctx context.Context, p *dispatch.Press, slug string) error {
	lora, err := h.api.Lora(ctx, slug)
	if err != nil {
		if dataapi.IsNotFound(err) {
			p.Alert(ctx, "This LoRA is no longer available.")
		} else {
			slog.Error("lora fetch failed", "slug", slug, "error", err)
			p.Alert(ctx, genErrText)
		}
		return nil
	}

	favLabel := "❤️ Favorite"
	if favs, err := h.api.LoraFavorites(ctx, p.MasterAccountID); err != nil {
		slog.Warn("favorites load failed", "error", err)
	} else if containsID(favs, lora.ID) {
		favLabel = "💔 Unfavorite"
	}

	parts := []markup.Safe{markup.Bold(lora.Name), markup.Raw("\n")}
	if lora.Checkpoint != "" {
		parts = append(parts, markup.Escapef("Checkpoint: %s", lora.Checkpoint), markup.Raw("\n"))
	}
	if lora.UsageCount > 0 {
		parts = append(parts, markup.Escapef("Used %d times", lora.UsageCount), markup.Raw("\n"))
	}
	if lora.Description != "" {
		parts = append(parts, markup.Italic(lora.Description), markup.Raw("\n"))
	}
	if len(lora.TriggerWords) > 0 {
		parts = append(parts,
			markup.Escape("Triggers: "),
			markup.Code(strings.Join(lora.TriggerWords, ", ")),
			markup.Raw("\n"),
		)
	}
	text := markup.Join(parts...)

	backData := "lora:top"
	if lora.Category != "" {
		backData = "lora:cat:" + lora.Category + ":All:0"
	}
	kb := telegram.NewKeyboard().
		Row(telegram.Button(favLabel, "lora:fav:"+lora.Slug)).
		Row(telegram.Button("⬅️ Back", backData)).
		Markup()

	if lora.PreviewURL == "" {
		return h.paintOver(ctx, p, text, kb)
	}

	// Preview cards replace the text menu with a photo message.
	if p.Message != nil {
		if err := h.tg.DeleteMessage(ctx, p.ChatID(), p.MessageID()); err != nil {
			slog.Warn("lora menu delete failed", "error", err)
		}
	}
	_, err = h.tg.SendPhoto(ctx, telegram.MediaParams{
		ChatID:   p.ChatID(),
		FileURL:  lora.PreviewURL,
		Caption:  text,
		Keyboard: kb,
	})
	if err != nil {
		return fmt.Errorf("send lora preview: %w", err)
	}
	return nil
}

// toggleLoraFavorite flips the favorite state and relabels the button in
// place.
func (h *Handlers) toggleLoraFavorite(ctx context.Context, p *dispatch.Press, slug string) error {
	lora, err := h.api.Lora(ctx, slug)
	if err != nil {
		if dataapi.IsNotFound(err) {
			p.Alert(ctx, "This LoRA is no longer available.")
		} else {
			slog.Error("lora fetch failed", "slug", slug, "error", err)
			p.Alert(ctx, genErrText)
		}
		return nil
	}
	favs, err := h.api.LoraFavorites(ctx, p.MasterAccountID)
	if err != nil {
		slog.Error("favorites load failed", "error", err)
		p.Alert(ctx, genErrText)
		return nil
	}

	var newLabel string
	if containsID(favs, lora.ID) {
		if err := h.api.RemoveLoraFavorite(ctx, p.MasterAccountID, lora.ID); err != nil {
			return fmt.Errorf("remove favorite: %w", err)
		}
		p.Toast(ctx, "💔 Removed from favorites")
		newLabel = "❤️ Favorite"
	} else {
		if err := h.api.AddLoraFavorite(ctx, p.MasterAccountID, lora.ID); err != nil {
			return fmt.Errorf("add favorite: %w", err)
		}
		p.Toast(ctx, "❤️ Added to favorites")
		newLabel = "💔 Unfavorite"
	}

	if p.Message == nil || p.Message.ReplyMarkup == nil {
		return nil
	}
	kb, ok := relabelButton(p.Message.ReplyMarkup, "lora:fav:"+lora.Slug, newLabel)
	if !ok {
		return nil
	}
	err = h.tg.EditReplyMarkup(ctx, p.ChatID(), p.MessageID(), kb)
	if err != nil && !telegram.IsNotModified(err) {
		slog.Warn("favorite relabel failed", "error", err)
	}
	return nil
}

// loraImportPrompt asks for a URL to submit for import review.
func (h *Handlers) loraImportPrompt(ctx context.Context, p *dispatch.Press) error {
	prompt, err := h.tg.SendMessage(ctx, telegram.SendParams{
		ChatID: p.ChatID(),
		Text:   markup.Escape("Reply to this message with a link to the LoRA you want imported."),
	})
	if err != nil {
		return fmt.Errorf("send import prompt: %w", err)
	}
	h.state.Replies.Put(
		state.MessageRef{ChatID: prompt.Chat.ID, MessageID: prompt.MessageID},
		state.LoraImportURL{MasterAccountID: p.MasterAccountID},
	)
	return nil
}

// loraImportReply validates the URL and files the import request.
func (h *Handlers) loraImportReply(ctx context.Context, msg *telego.Message, masterAccountID string, rc state.ReplyContext) error {
	req, ok := rc.(state.LoraImportURL)
	if !ok || msg.ReplyToMessage == nil {
		return nil
	}
	promptRef := state.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ReplyToMessage.MessageID}
	if req.MasterAccountID != masterAccountID {
		h.state.Replies.Put(promptRef, rc)
		return nil
	}

	raw := strings.TrimSpace(msg.Text)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		h.state.Replies.Put(promptRef, rc)
		return h.sendText(ctx, msg.Chat.ID, msg.MessageID,
			markup.Escape("That doesn't look like a link. Please reply with the LoRA's URL."))
	}

	err = h.api.LogEvent(ctx, dataapi.Event{
		Type:            "lora_import_requested",
		MasterAccountID: masterAccountID,
		SourcePlatform:  identity.Platform,
		Payload:         map[string]any{"url": u.String()},
	})
	if err != nil {
		return fmt.Errorf("file import request: %w", err)
	}
	return h.sendText(ctx, msg.Chat.ID, msg.MessageID,
		markup.Escape("📥 Import request received. We'll review it shortly."))
}

func loraCategoryLabel(key string) string {
	for _, cat := range loraCategories {
		if cat.key == key {
			return cat.label
		}
	}
	return key
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// relabelButton returns a copy of kb with the text of the button whose
// callback data matches replaced. The second result is false on no match.
func relabelButton(kb *telego.InlineKeyboardMarkup, data, label string) (*telego.InlineKeyboardMarkup, bool) {
	rows := make([][]telego.InlineKeyboardButton, len(kb.InlineKeyboard))
	found := false
	for i, row := range kb.InlineKeyboard {
		rows[i] = make([]telego.InlineKeyboardButton, len(row))
		copy(rows[i], row)
		for j, btn := range rows[i] {
			if btn.CallbackData == data {
				rows[i][j].Text = label
				found = true
			}
		}
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}, found
}
