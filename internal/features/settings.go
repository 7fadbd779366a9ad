package features

import (
	"context"
	"fmt"
	"log/slog"
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

const (
	// settingsTopTools is how many most-used tools the settings front page
	// offers as shortcuts.
	settingsTopTools = 4
	settingsPageSize = 6
)

// handleSettings serves /settings with a fresh settings menu.
func (h *Handlers) handleSettings(ctx context.Context, msg *telego.Message, masterAccountID string, _ []string) error {
	return h.renderSettingsMain(ctx, masterAccountID, msg.Chat.ID, 0)
}

// settingsCallback routes set_* presses: the front page, the paginated
// tool list, one tool's parameters, and single parameter prompts.
func (h *Handlers) settingsCallback(ctx context.Context, p *dispatch.Press) error {
	rest := strings.TrimPrefix(p.Data(), "set_")
	switch {
	case rest == "main":
		return h.renderSettingsMain(ctx, p.MasterAccountID, p.ChatID(), p.MessageID())
	case rest == "close":
		if p.Message == nil {
			return nil
		}
		if err := h.tg.DeleteMessage(ctx, p.ChatID(), p.MessageID()); err != nil {
			slog.Warn("settings close failed", "error", err)
		}
		return nil
	case strings.HasPrefix(rest, "tools_"):
		page, err := strconv.Atoi(strings.TrimPrefix(rest, "tools_"))
		if err != nil {
			slog.Warn("malformed settings page", "data", p.Data())
			return nil
		}
		return h.renderAllTools(ctx, p.ChatID(), p.MessageID(), page)
	case strings.HasPrefix(rest, "tool_"):
		tool := h.tools.ByCallbackKey(strings.TrimPrefix(rest, "tool_"))
		if tool == nil {
			p.Alert(ctx, toolGoneText)
			return nil
		}
		return h.renderToolParams(ctx, p.MasterAccountID, tool, p.ChatID(), p.MessageID())
	case strings.HasPrefix(rest, "param_"):
		tool, param := h.tools.SplitCallbackKey(strings.TrimPrefix(rest, "param_"))
		if tool == nil {
			p.Alert(ctx, toolGoneText)
			return nil
		}
		if param == "" {
			slog.Warn("malformed settings param data", "data", p.Data())
			return nil
		}
		return h.settingsParamPrompt(ctx, p, tool, param)
	default:
		slog.Warn("unrouted settings action", "data", p.Data())
		return nil
	}
}

// renderSettingsMain paints the settings front page: the user's most-used
// tools as shortcuts plus the full catalog behind All Tools.
func (h *Handlers) renderSettingsMain(ctx context.Context, masterAccountID string, chatID int64, messageID int) error {
	usage, err := h.api.MostFrequentTools(ctx, masterAccountID, settingsTopTools*3)
	if err != nil {
		// The shortcut row is a convenience; the menu works without it.
		slog.Warn("most frequent tools failed", "error", err)
	}

	var shortcuts []telego.InlineKeyboardButton
	for _, u := range usage {
		tool := h.tools.ByID(u.ToolID)
		if tool == nil {
			continue
		}
		shortcuts = append(shortcuts, telegram.Button(tool.DisplayName, "set_tool_"+tools.CallbackKey(tool.DisplayName)))
		if len(shortcuts) == settingsTopTools {
			break
		}
	}

	kb := telegram.NewKeyboard()
	kb.Grid(2, shortcuts...)
	kb.Row(telegram.Button("🧰 All Tools", "set_tools_0"))
	kb.Row(
		telegram.Button("⬅️ Back", "menu:main"),
		telegram.Button("✖️ Close", "set_close"),
	)

	text := markup.Join(
		markup.Bold("⚙️ Settings"), markup.Raw("\n"),
		markup.Escape("Pick a tool to set its default parameters."),
	)
	return h.paint(ctx, chatID, messageID, text, kb.Markup())
}

// renderAllTools paints one page of the tool catalog.
func (h *Handlers) renderAllTools(ctx context.Context, chatID int64, messageID int, page int) error {
	all := h.tools.All()
	pages := (len(all) + settingsPageSize - 1) / settingsPageSize
	if pages == 0 {
		pages = 1
	}
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}

	start := page * settingsPageSize
	end := start + settingsPageSize
	if end > len(all) {
		end = len(all)
	}

	kb := telegram.NewKeyboard()
	buttons := make([]telego.InlineKeyboardButton, 0, end-start)
	for _, tool := range all[start:end] {
		buttons = append(buttons, telegram.Button(tool.DisplayName, "set_tool_"+tools.CallbackKey(tool.DisplayName)))
	}
	kb.Grid(2, buttons...)
	if pages > 1 {
		var nav []telego.InlineKeyboardButton
		if page > 0 {
			nav = append(nav, telegram.Button("⬅️", "set_tools_"+strconv.Itoa(page-1)))
		}
		nav = append(nav, telegram.Button(fmt.Sprintf("%d of %d", page+1, pages), "set_tools_"+strconv.Itoa(page)))
		if page < pages-1 {
			nav = append(nav, telegram.Button("➡️", "set_tools_"+strconv.Itoa(page+1)))
		}
		kb.Row(nav...)
	}
	kb.Row(
		telegram.Button("⬅️ Back", "set_main"),
		telegram.Button("✖️ Close", "set_close"),
	)

	text := markup.Join(
		markup.Bold("🧰 All Tools"), markup.Raw("\n"),
		markup.Escape("Pick a tool to set its default parameters."),
	)
	return h.paint(ctx, chatID, messageID, text, kb.Markup())
}

// renderToolParams paints one tool's parameter menu with the stored
// preference values on the buttons.
func (h *Handlers) renderToolParams(ctx context.Context, masterAccountID string, tool *tools.Definition, chatID int64, messageID int) error {
	prefs, err := h.api.ToolPreferences(ctx, masterAccountID, tool.DisplayName)
	if err != nil && !dataapi.IsNotFound(err) {
		slog.Warn("preference load failed", "tool", tool.DisplayName, "error", err)
	}

	key := tools.CallbackKey(tool.DisplayName)
	kb := telegram.NewKeyboard()
	for _, name := range paramOrder(tool) {
		if name == tool.PromptKey() {
			// Prompts come with each command, not from stored defaults.
			continue
		}
		value := "Not set"
		if v, ok := prefs[name]; ok {
			value = tools.FormatValue(v)
		} else if d := tool.InputSchema[name].Default; d != nil {
			value = tools.FormatValue(d)
		}
		label := name + ": " + telegram.TruncateLabel(value, valueLabelWidth)
		kb.Row(telegram.Button(label, "set_param_"+key+"_"+name))
	}
	kb.Row(
		telegram.Button("⬅️ Back", "set_main"),
		telegram.Button("✖️ Close", "set_close"),
	)

	text := markup.Join(
		markup.Bold("⚙️ "+tool.DisplayName), markup.Raw("\n"),
		markup.Escape("Pick a parameter to change its default."),
	)
	return h.paint(ctx, chatID, messageID, text, kb.Markup())
}

// settingsParamPrompt asks for a new default value for one parameter and
// arms a reply context pointing back at this menu.
func (h *Handlers) settingsParamPrompt(ctx context.Context, p *dispatch.Press, tool *tools.Definition, param string) error {
	spec, ok := tool.InputSchema[param]
	if !ok {
		p.Alert(ctx, "Unknown parameter.")
		return nil
	}

	current := "Not set"
	prefs, err := h.api.ToolPreferences(ctx, p.MasterAccountID, tool.DisplayName)
	if err != nil && !dataapi.IsNotFound(err) {
		slog.Warn("preference load failed", "tool", tool.DisplayName, "error", err)
	}
	if v, ok := prefs[param]; ok {
		current = markup.RedactFileURL(tools.FormatValue(v))
	} else if spec.Default != nil {
		current = tools.FormatValue(spec.Default)
	}

	text := markup.Join(
		markup.Bold(param), markup.Raw("\n"),
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
		state.SettingsParamEdit{
			MasterAccountID: p.MasterAccountID,
			ToolName:        tool.DisplayName,
			Param:           param,
			MenuChatID:      p.ChatID(),
			MenuMessageID:   p.MessageID(),
		},
	)
	return nil
}

// settingsParamReply consumes the new default value: validate, store, and
// repaint the parameter menu.
func (h *Handlers) settingsParamReply(ctx context.Context, msg *telego.Message, masterAccountID string, rc state.ReplyContext) error {
	edit, ok := rc.(state.SettingsParamEdit)
	if !ok || msg.ReplyToMessage == nil {
		return nil
	}
	promptRef := state.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ReplyToMessage.MessageID}
	if edit.MasterAccountID != masterAccountID {
		h.state.Replies.Put(promptRef, rc)
		return nil
	}

	tool := h.tools.ByDisplayName(edit.ToolName)
	if tool == nil {
		return h.sendText(ctx, msg.Chat.ID, msg.MessageID, markup.Escape(toolGoneText))
	}

	value, err := tools.ParseValue(tool.InputSchema[edit.Param], strings.TrimSpace(msg.Text))
	if err != nil {
		h.state.Replies.Put(promptRef, rc)
		return h.sendText(ctx, msg.Chat.ID, msg.MessageID, markup.Escape(err.Error()))
	}

	if err := h.api.SetToolPreference(ctx, masterAccountID, edit.ToolName, edit.Param, value); err != nil {
		return fmt.Errorf("store preference: %w", err)
	}

	h.dropScaffolding(ctx, msg)
	return h.renderToolParams(ctx, masterAccountID, tool, edit.MenuChatID, edit.MenuMessageID)
}
