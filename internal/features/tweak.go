package features

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
	"github.com/nextlevelbuilder/musebot/internal/delivery"
	"github.com/nextlevelbuilder/musebot/internal/dispatch"
	"github.com/nextlevelbuilder/musebot/internal/markup"
	"github.com/nextlevelbuilder/musebot/internal/state"
	"github.com/nextlevelbuilder/musebot/internal/telegram"
	"github.com/nextlevelbuilder/musebot/internal/tools"
)

// Width budget for the value part of a parameter button label.
const valueLabelWidth = 12

const notYoursText = "This menu isn't for you."

// openTweak handles tweak_gen:<genId>: it seeds a fresh session from the
// ancestor record and overlays the tweak menu on the delivery card.
func (h *Handlers) openTweak(ctx context.Context, p *dispatch.Press) error {
	genID := strings.TrimPrefix(p.Data(), "tweak_gen:")
	return h.openTweakAt(ctx, p, genID)
}

func (h *Handlers) openTweakAt(ctx context.Context, p *dispatch.Press, genID string) error {
	if p.Message == nil {
		p.Alert(ctx, genErrText)
		return nil
	}
	rec, tool, ok := h.fetchAncestor(ctx, p, genID)
	if !ok {
		return nil
	}

	sess := h.newTweakSession(rec, tool, p.MasterAccountID)
	key := state.SessionKey(genID, p.MasterAccountID)
	token := h.state.Tokens.Acquire(key)
	kb := h.tweakKeyboard(token, tool, sess)
	orig := p.Message.ReplyMarkup

	// Overlay the card's keyboard in place. Messages the platform refuses
	// to edit (too old) get a standalone menu replying to the original
	// command instead.
	err := h.tg.EditReplyMarkup(ctx, p.ChatID(), p.MessageID(), kb)
	switch {
	case err == nil || telegram.IsNotModified(err):
		h.state.Tweaks.Put(sess)
		h.state.Tweaks.SetMenu(key, p.ChatID(), p.MessageID(), false, orig)
	case telegram.IsNotEditable(err):
		replyTo := 0
		if p.Message.ReplyToMessage != nil {
			replyTo = p.Message.ReplyToMessage.MessageID
		}
		msg, sendErr := h.tg.SendMessage(ctx, telegram.SendParams{
			ChatID:   p.ChatID(),
			ReplyTo:  replyTo,
			Text:     markup.Escapef("✎ Tweaking %s", tool.DisplayName),
			Keyboard: kb,
		})
		if sendErr != nil {
			return fmt.Errorf("send tweak menu: %w", sendErr)
		}
		h.state.Tweaks.Put(sess)
		h.state.Tweaks.SetMenu(key, msg.Chat.ID, msg.MessageID, true, orig)
	default:
		return fmt.Errorf("overlay tweak menu: %w", err)
	}
	return nil
}

// renderTweakMenu handles tweak_gen_menu_render:<genId>: it repaints the
// menu from the live session, or starts one when none exists.
func (h *Handlers) renderTweakMenu(ctx context.Context, p *dispatch.Press) error {
	genID := strings.TrimPrefix(p.Data(), "tweak_gen_menu_render:")
	key := state.SessionKey(genID, p.MasterAccountID)
	sess, ok := h.state.Tweaks.Get(key)
	if !ok {
		return h.openTweakAt(ctx, p, genID)
	}
	tool := h.tools.ForRecord(sess.ToolDisplayName, sess.ToolID)
	if tool == nil {
		p.Alert(ctx, toolGoneText)
		return nil
	}
	token := h.state.Tokens.Acquire(key)
	err := h.tg.EditReplyMarkup(ctx, sess.MenuChatID, sess.MenuMessageID, h.tweakKeyboard(token, tool, sess))
	if err != nil && !telegram.IsNotModified(err) {
		return fmt.Errorf("render tweak menu: %w", err)
	}
	return nil
}

// tweakParamPrompt handles tpe_<token>_<param>: it sends a prompt message
// carrying a reply context for the new value.
func (h *Handlers) tweakParamPrompt(ctx context.Context, p *dispatch.Press) error {
	token, param, ok := splitParamData(p.Data())
	if !ok {
		slog.Warn("malformed tweak param data", "data", p.Data())
		return nil
	}
	key, ok := h.state.Tokens.SessionKey(token)
	if !ok {
		h.expireTweakMenu(ctx, p)
		return nil
	}
	sess, ok := h.state.Tweaks.Get(key)
	if !ok {
		h.expireTweakMenu(ctx, p)
		return nil
	}
	if sess.MasterAccountID != p.MasterAccountID {
		p.Toast(ctx, notYoursText)
		return nil
	}
	tool := h.tools.ForRecord(sess.ToolDisplayName, sess.ToolID)
	if tool == nil {
		p.Alert(ctx, toolGoneText)
		return nil
	}
	spec, ok := tool.InputSchema[param]
	if !ok {
		p.Alert(ctx, "Unknown parameter.")
		return nil
	}

	current := "Not set"
	if v, ok := sess.Draft[param]; ok {
		current = markup.RedactFileURL(tools.FormatValue(v))
	}

	text := markup.Join(
		markup.Code(param), markup.Raw("\n"),
		markup.Escape("Current value: "), markup.Code(current), markup.Raw("\n"),
	)
	if spec.Description != "" {
		text = markup.Join(text, markup.Italic(spec.Description), markup.Raw("\n"))
	}
	text = markup.Join(text, markup.Raw("\n"), markup.Escape("Reply to this message with the new value."))

	prompt, err := h.tg.SendMessage(ctx, telegram.SendParams{ChatID: p.ChatID(), Text: text})
	if err != nil {
		return fmt.Errorf("send param prompt: %w", err)
	}
	h.state.Replies.Put(
		state.MessageRef{ChatID: prompt.Chat.ID, MessageID: prompt.MessageID},
		state.TweakParamEdit{
			MasterAccountID: p.MasterAccountID,
			SessionKey:      key,
			GenerationID:    sess.GenerationID,
			Param:           param,
		},
	)
	return nil
}

// tweakParamReply consumes the user's value reply: validate, write into the
// draft, drop the prompt scaffolding, and repaint the menu.
func (h *Handlers) tweakParamReply(ctx context.Context, msg *telego.Message, masterAccountID string, rc state.ReplyContext) error {
	edit, ok := rc.(state.TweakParamEdit)
	if !ok || msg.ReplyToMessage == nil {
		return nil
	}
	promptRef := state.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ReplyToMessage.MessageID}
	if edit.MasterAccountID != masterAccountID {
		// Someone else replied to the prompt; keep it armed for the owner.
		h.state.Replies.Put(promptRef, rc)
		return nil
	}

	sess, ok := h.state.Tweaks.Get(edit.SessionKey)
	if !ok {
		return h.sendText(ctx, msg.Chat.ID, msg.MessageID, markup.Escape(tweakExpiredToast))
	}
	tool := h.tools.ForRecord(sess.ToolDisplayName, sess.ToolID)
	if tool == nil {
		return h.sendText(ctx, msg.Chat.ID, msg.MessageID, markup.Escape(toolGoneText))
	}

	value, err := tools.ParseValue(tool.InputSchema[edit.Param], strings.TrimSpace(msg.Text))
	if err != nil {
		// Invalid value: surface inline and re-arm the prompt so the user
		// can reply again. The session is untouched.
		h.state.Replies.Put(promptRef, rc)
		return h.sendText(ctx, msg.Chat.ID, msg.MessageID, markup.Escape(err.Error()))
	}

	if !h.state.Tweaks.SetParam(edit.SessionKey, edit.Param, value) {
		return h.sendText(ctx, msg.Chat.ID, msg.MessageID, markup.Escape(tweakExpiredToast))
	}

	h.dropScaffolding(ctx, msg)

	sess, ok = h.state.Tweaks.Get(edit.SessionKey)
	if !ok {
		return nil
	}
	token := h.state.Tokens.Acquire(edit.SessionKey)
	err = h.tg.EditReplyMarkup(ctx, sess.MenuChatID, sess.MenuMessageID, h.tweakKeyboard(token, tool, sess))
	if err != nil && !telegram.IsNotModified(err) {
		slog.Warn("tweak menu refresh failed", "error", err)
	}
	return nil
}

// applyTweak handles tweak_apply:<token>: submit the draft, drop the
// session, and put the delivery card's keyboard back with the tweak
// counter bumped.
func (h *Handlers) applyTweak(ctx context.Context, p *dispatch.Press) error {
	token := strings.TrimPrefix(p.Data(), "tweak_apply:")
	key, ok := h.state.Tokens.SessionKey(token)
	if !ok {
		h.expireTweakMenu(ctx, p)
		return nil
	}
	sess, ok := h.state.Tweaks.Get(key)
	if !ok {
		h.expireTweakMenu(ctx, p)
		return nil
	}
	if sess.MasterAccountID != p.MasterAccountID {
		p.Toast(ctx, notYoursText)
		return nil
	}

	rec, tool, ok := h.fetchAncestor(ctx, p, sess.GenerationID)
	if !ok {
		return nil
	}

	if _, err := h.submit.Tweak(ctx, tool, rec, p.MasterAccountID, sess.Draft, sess.MenuChatID, sess.MenuMessageID); err != nil {
		// Session stays so the user can press Send again.
		slog.Error("tweak submission failed", "generation_id", sess.GenerationID, "error", err)
		p.Alert(ctx, genErrText)
		return nil
	}

	h.state.Tweaks.Delete(key)
	p.Toast(ctx, "🚀 sent")

	if sess.IsNewMenu {
		if err := h.tg.DeleteMessage(ctx, sess.MenuChatID, sess.MenuMessageID); err != nil {
			slog.Warn("tweak menu delete failed", "error", err)
		}
		return nil
	}
	kb := sess.OrigKeyboard
	if bumped, ok := delivery.IncrementTweak(kb); ok {
		kb = bumped
	} else {
		slog.Warn("tweak counter button not found", "generation_id", sess.GenerationID)
	}
	err := h.tg.EditReplyMarkup(ctx, sess.MenuChatID, sess.MenuMessageID, kb)
	if err != nil && !telegram.IsNotModified(err) {
		slog.Warn("card keyboard restore failed", "error", err)
	}
	return nil
}

// cancelTweak handles tweak_cancel:<token>: discard the draft and rebuild
// the menu from ancestor defaults in place.
func (h *Handlers) cancelTweak(ctx context.Context, p *dispatch.Press) error {
	token := strings.TrimPrefix(p.Data(), "tweak_cancel:")
	key, ok := h.state.Tokens.SessionKey(token)
	if !ok {
		h.expireTweakMenu(ctx, p)
		return nil
	}
	sess, ok := h.state.Tweaks.Get(key)
	if !ok {
		h.expireTweakMenu(ctx, p)
		return nil
	}
	if sess.MasterAccountID != p.MasterAccountID {
		p.Toast(ctx, notYoursText)
		return nil
	}

	h.state.Tweaks.Delete(key)

	rec, tool, ok := h.fetchAncestor(ctx, p, sess.GenerationID)
	if !ok {
		return nil
	}

	fresh := h.newTweakSession(rec, tool, p.MasterAccountID)
	fresh.MenuChatID = sess.MenuChatID
	fresh.MenuMessageID = sess.MenuMessageID
	fresh.IsNewMenu = sess.IsNewMenu
	fresh.OrigKeyboard = sess.OrigKeyboard
	h.state.Tweaks.Put(fresh)

	newToken := h.state.Tokens.Acquire(key)
	err := h.tg.EditReplyMarkup(ctx, sess.MenuChatID, sess.MenuMessageID, h.tweakKeyboard(newToken, tool, fresh))
	if err != nil && !telegram.IsNotModified(err) {
		slog.Warn("tweak menu reset failed", "error", err)
	}
	p.Toast(ctx, "Changes discarded")
	return nil
}

// fetchAncestor loads a generation and resolves its tool, alerting the
// presser on the standard failure modes.
func (h *Handlers) fetchAncestor(ctx context.Context, p *dispatch.Press, genID string) (*dataapi.GenerationRecord, *tools.Definition, bool) {
	rec, err := h.api.Generation(ctx, genID)
	if err != nil {
		if dataapi.IsNotFound(err) {
			p.Alert(ctx, genMissingText)
		} else {
			slog.Error("generation fetch failed", "generation_id", genID, "error", err)
			p.Alert(ctx, genErrText)
		}
		return nil, nil, false
	}
	tool := h.tools.ForRecord(rec.ToolDisplayName, rec.ToolID)
	if tool == nil {
		p.Alert(ctx, toolGoneText)
		return nil, nil, false
	}
	return rec, tool, true
}

// newTweakSession seeds a draft from the ancestor's payload, preferring
// the recorded user prompt over whatever the payload carries under the
// prompt key.
func (h *Handlers) newTweakSession(rec *dataapi.GenerationRecord, tool *tools.Definition, masterAccountID string) *state.TweakSession {
	draft := make(map[string]any, len(rec.RequestPayload)+1)
	for k, v := range rec.RequestPayload {
		draft[k] = v
	}
	if rec.Metadata.UserInputPrompt != "" {
		draft[tool.PromptKey()] = rec.Metadata.UserInputPrompt
	}
	return &state.TweakSession{
		GenerationID:    rec.ID,
		MasterAccountID: masterAccountID,
		ToolID:          tool.ToolID,
		ToolDisplayName: tool.DisplayName,
		Draft:           draft,
	}
}

// tweakKeyboard renders the parameter menu: one button per schema input
// labeled with its draft value, then the control rows. Send appears only
// once the draft has pending changes.
func (h *Handlers) tweakKeyboard(token string, tool *tools.Definition, sess *state.TweakSession) *telego.InlineKeyboardMarkup {
	kb := telegram.NewKeyboard()
	for _, name := range paramOrder(tool) {
		value := "Not set"
		if v, ok := sess.Draft[name]; ok {
			value = tools.FormatValue(v)
		}
		label := name + ": " + telegram.TruncateLabel(value, valueLabelWidth)
		kb.Row(telegram.Button(label, "tpe_"+token+"_"+name))
	}
	var controls []telego.InlineKeyboardButton
	if sess.Dirty {
		controls = append(controls, telegram.Button("🚀 Send", "tweak_apply:"+token))
	}
	controls = append(controls, telegram.Button("✖️ Cancel", "tweak_cancel:"+token))
	kb.Row(controls...)
	kb.Row(telegram.Button("⬅️ Back", "restore_delivery:"+sess.GenerationID))
	return kb.Markup()
}

// paramOrder lists schema parameters with the prompt input first and
// advanced ones last.
func paramOrder(tool *tools.Definition) []string {
	prompt := tool.PromptKey()
	var basic, advanced []string
	for name, spec := range tool.InputSchema {
		switch {
		case name == prompt:
		case spec.Advanced:
			advanced = append(advanced, name)
		default:
			basic = append(basic, name)
		}
	}
	sort.Strings(basic)
	sort.Strings(advanced)
	out := make([]string, 0, len(tool.InputSchema))
	if _, ok := tool.InputSchema[prompt]; ok {
		out = append(out, prompt)
	}
	out = append(out, basic...)
	return append(out, advanced...)
}

// expireTweakMenu labels a stale menu and drops its keyboard. Media cards
// take the label in their caption, text menus in their body.
func (h *Handlers) expireTweakMenu(ctx context.Context, p *dispatch.Press) {
	p.Toast(ctx, tweakExpiredToast)
	if p.Message == nil {
		return
	}
	text := markup.Escape(tweakExpiredText)
	var err error
	if p.Message.Text != "" {
		err = h.tg.EditMessageText(ctx, p.ChatID(), p.MessageID(), text, nil)
	} else {
		err = h.tg.EditMessageCaption(ctx, p.ChatID(), p.MessageID(), text, nil)
	}
	if err != nil && !telegram.IsNotEditable(err) && !telegram.IsNotModified(err) {
		slog.Warn("expired menu edit failed", "error", err)
	}
}

// splitParamData parses tpe_<token>_<param>. Tokens never contain an
// underscore, so the first one after the prefix ends the token.
func splitParamData(data string) (token, param string, ok bool) {
	rest := strings.TrimPrefix(data, "tpe_")
	i := strings.Index(rest, "_")
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// sendText is a small helper for one-off replies.
func (h *Handlers) sendText(ctx context.Context, chatID int64, replyTo int, text markup.Safe) error {
	_, err := h.tg.SendMessage(ctx, telegram.SendParams{ChatID: chatID, ReplyTo: replyTo, Text: text})
	return err
}
