package features

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
	"github.com/nextlevelbuilder/musebot/internal/dispatch"
	"github.com/nextlevelbuilder/musebot/internal/markup"
	"github.com/nextlevelbuilder/musebot/internal/state"
	"github.com/nextlevelbuilder/musebot/internal/telegram"
	"github.com/nextlevelbuilder/musebot/internal/tools"
)

// infoValueWidth bounds parameter values on the info screen so a long
// prompt cannot crowd out the rest of the card.
const infoValueWidth = 120

// genInfo handles view_gen_info:<genId>: replace the card body with the
// generation's inputs, outputs, and lineage.
func (h *Handlers) genInfo(ctx context.Context, p *dispatch.Press) error {
	genID := strings.TrimPrefix(p.Data(), "view_gen_info:")
	rec, ok := h.fetchGeneration(ctx, p, genID)
	if !ok {
		return nil
	}
	text, kb := h.infoScreen(rec, "restore_delivery:"+genID)
	return h.editBody(ctx, p, text, kb)
}

// spellStep handles view_spell_step:<genId>:<idx>: show the info screen of
// one step of a spell, with Back leading to the parent's info.
func (h *Handlers) spellStep(ctx context.Context, p *dispatch.Press) error {
	rest := strings.TrimPrefix(p.Data(), "view_spell_step:")
	i := strings.LastIndex(rest, ":")
	if i <= 0 {
		slog.Warn("malformed spell step data", "data", p.Data())
		return nil
	}
	parentID := rest[:i]
	idx, err := strconv.Atoi(rest[i+1:])
	if err != nil {
		slog.Warn("malformed spell step data", "data", p.Data())
		return nil
	}

	parent, ok := h.fetchGeneration(ctx, p, parentID)
	if !ok {
		return nil
	}
	steps := parent.Metadata.StepGenerationIDs
	if idx < 0 || idx >= len(steps) {
		p.Alert(ctx, genMissingText)
		return nil
	}
	step, ok := h.fetchGeneration(ctx, p, steps[idx])
	if !ok {
		return nil
	}
	text, kb := h.infoScreen(step, "view_gen_info:"+parentID)
	return h.editBody(ctx, p, text, kb)
}

// restoreDelivery handles restore_delivery:<genId>: drop whatever menu has
// taken over the card and deliver the generation again from its record.
func (h *Handlers) restoreDelivery(ctx context.Context, p *dispatch.Press) error {
	genID := strings.TrimPrefix(p.Data(), "restore_delivery:")
	rec, ok := h.fetchGeneration(ctx, p, genID)
	if !ok {
		return nil
	}

	// Leaving the menu abandons any live tweak draft for this card.
	h.state.Tweaks.Delete(state.SessionKey(genID, p.MasterAccountID))

	if p.Message != nil {
		if err := h.tg.DeleteMessage(ctx, p.ChatID(), p.MessageID()); err != nil {
			slog.Warn("menu delete failed", "error", err)
		}
	}

	replyTo := rec.Metadata.TelegramMessageID
	if rec.Metadata.Notification != nil {
		replyTo = rec.Metadata.Notification.ReplyToMessageID
	}
	if _, err := h.deliver.SendCard(ctx, rec, p.ChatID(), replyTo); err != nil {
		return fmt.Errorf("restore delivery: %w", err)
	}
	return nil
}

// fetchGeneration loads a record, alerting the presser on failure. Unlike
// fetchAncestor it does not require the tool to still exist: the info
// screen renders records of retired tools too.
func (h *Handlers) fetchGeneration(ctx context.Context, p *dispatch.Press, genID string) (*dataapi.GenerationRecord, bool) {
	rec, err := h.api.Generation(ctx, genID)
	if err != nil {
		if dataapi.IsNotFound(err) {
			p.Alert(ctx, genMissingText)
		} else {
			slog.Error("generation fetch failed", "generation_id", genID, "error", err)
			p.Alert(ctx, genErrText)
		}
		return nil, false
	}
	return rec, true
}

// infoScreen renders a generation's info body and keyboard. backData is
// the callback wired to the Back button.
func (h *Handlers) infoScreen(rec *dataapi.GenerationRecord, backData string) (markup.Safe, *telego.InlineKeyboardMarkup) {
	title := rec.ToolDisplayName
	if rec.Metadata.IsSpell && rec.Metadata.SpellName != "" {
		title = rec.Metadata.SpellName
	}
	if title == "" {
		title = "Generation"
	}

	parts := []markup.Safe{
		markup.Raw("ℹ️ "), markup.Bold(title), markup.Raw("\n"),
		markup.Escapef("Status: %s", rec.Status), markup.Raw("\n"),
	}
	if !rec.CreatedAt.IsZero() {
		parts = append(parts, markup.Escapef("Created: %s", rec.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")), markup.Raw("\n"))
	}
	switch {
	case rec.Metadata.IsTweaked && rec.Metadata.TweakedFrom != "":
		parts = append(parts, markup.Escapef("Tweaked from %s", rec.Metadata.TweakedFrom), markup.Raw("\n"))
	case rec.Metadata.IsRerun && rec.Metadata.RerunFrom != "":
		parts = append(parts, markup.Escapef("Rerun %d of %s", rec.Metadata.RerunCount, rec.Metadata.RerunFrom), markup.Raw("\n"))
	}

	if lines := h.inputLines(rec); len(lines) > 0 {
		parts = append(parts, markup.Raw("\n"), markup.Escape("Inputs:"), markup.Raw("\n"))
		parts = append(parts, lines...)
	}
	parts = append(parts, markup.Raw("\n"), markup.Escapef("Outputs: %s", outputSummary(rec)), markup.Raw("\n"))

	kb := telegram.NewKeyboard()
	if n := len(rec.Metadata.StepGenerationIDs); n > 0 {
		buttons := make([]telego.InlineKeyboardButton, 0, n)
		for i := range rec.Metadata.StepGenerationIDs {
			buttons = append(buttons, telegram.Button(
				fmt.Sprintf("Step %d", i+1),
				"view_spell_step:"+rec.ID+":"+strconv.Itoa(i),
			))
		}
		kb.Grid(3, buttons...)
	}
	kb.Row(telegram.Button("⬅️ Back", backData))
	return markup.Join(parts...), kb.Markup()
}

// inputLines renders the request payload as bullet lines, substituting the
// recorded user prompt for the prompt key and skipping internal fields.
func (h *Handlers) inputLines(rec *dataapi.GenerationRecord) []markup.Safe {
	promptKey := "input_prompt"
	if tool := h.tools.ForRecord(rec.ToolDisplayName, rec.ToolID); tool != nil {
		promptKey = tool.PromptKey()
	}

	keys := make([]string, 0, len(rec.RequestPayload))
	for k := range rec.RequestPayload {
		if strings.HasPrefix(k, "__") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]markup.Safe, 0, len(keys))
	for _, k := range keys {
		value := tools.FormatValue(rec.RequestPayload[k])
		if k == promptKey && rec.Metadata.UserInputPrompt != "" {
			value = rec.Metadata.UserInputPrompt
		}
		value = markup.Clip(markup.RedactFileURL(value), infoValueWidth)
		lines = append(lines, markup.Join(
			markup.Escapef("• %s: ", k),
			markup.Code(value),
			markup.Raw("\n"),
		))
	}
	return lines
}

// outputSummary counts a record's outputs by kind. Artifact URLs never
// appear on the info screen.
func outputSummary(rec *dataapi.GenerationRecord) string {
	var images, animations, videos, texts int
	for _, item := range rec.Responses {
		images += len(item.Data.Images)
		animations += len(item.Data.Animations)
		videos += len(item.Data.Videos)
		if item.Data.Text != "" {
			texts++
		}
	}
	var parts []string
	if images > 0 {
		parts = append(parts, plural(images, "image"))
	}
	if animations > 0 {
		parts = append(parts, plural(animations, "animation"))
	}
	if videos > 0 {
		parts = append(parts, plural(videos, "video"))
	}
	if texts > 0 {
		parts = append(parts, plural(texts, "text"))
	}
	if len(parts) == 0 {
		return "none yet"
	}
	return strings.Join(parts, ", ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}

// editBody swaps the visible text of the pressed message, falling back to
// a fresh message when the original refuses edits.
func (h *Handlers) editBody(ctx context.Context, p *dispatch.Press, text markup.Safe, kb *telego.InlineKeyboardMarkup) error {
	if p.Message == nil {
		p.Alert(ctx, genErrText)
		return nil
	}
	var err error
	if p.Message.Text != "" {
		err = h.tg.EditMessageText(ctx, p.ChatID(), p.MessageID(), text, kb)
	} else {
		err = h.tg.EditMessageCaption(ctx, p.ChatID(), p.MessageID(), text, kb)
	}
	if err == nil || telegram.IsNotModified(err) {
		return nil
	}
	if telegram.IsNotEditable(err) {
		_, sendErr := h.tg.SendMessage(ctx, telegram.SendParams{ChatID: p.ChatID(), Text: text, Keyboard: kb})
		return sendErr
	}
	return err
}
