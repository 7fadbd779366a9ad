package features

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
	"github.com/nextlevelbuilder/musebot/internal/derive"
	"github.com/nextlevelbuilder/musebot/internal/identity"
	"github.com/nextlevelbuilder/musebot/internal/markup"
)

// dynamicCommand is the dispatch fallback for tool commands published by
// the registry: /<command> <prompt> submits a fresh generation with the
// user's stored preferences underneath the typed prompt.
func (h *Handlers) dynamicCommand(ctx context.Context, msg *telego.Message, masterAccountID string) (bool, error) {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if !strings.HasPrefix(text, "/") {
		return false, nil
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false, nil
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	tool := h.tools.ByCommand(cmd)
	if tool == nil {
		return false, nil
	}

	prompt := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
	if prompt == "" {
		err := h.sendText(ctx, msg.Chat.ID, msg.MessageID, markup.Escapef("Usage: /%s <prompt>", cmd))
		return true, err
	}

	prefs, err := h.api.ToolPreferences(ctx, masterAccountID, tool.DisplayName)
	if err != nil && !dataapi.IsNotFound(err) {
		slog.Warn("preference load failed, using defaults", "tool", tool.DisplayName, "error", err)
	}
	defaults := make(map[string]any)
	for name, spec := range tool.InputSchema {
		if spec.Default != nil {
			defaults[name] = spec.Default
		}
	}
	inputs := derive.MergePreferences(defaults, prefs)
	inputs[tool.PromptKey()] = prompt

	pc := &dataapi.PlatformContext{
		Platform:  identity.Platform,
		UserID:    msg.From.ID,
		Username:  msg.From.Username,
		FirstName: msg.From.FirstName,
		ChatID:    msg.Chat.ID,
		ChatType:  msg.Chat.Type,
		MessageID: msg.MessageID,
	}
	notif := &dataapi.NotificationContext{ChatID: msg.Chat.ID, ReplyToMessageID: msg.MessageID}

	if _, err := h.submit.Fresh(ctx, tool, masterAccountID, inputs, pc, notif); err != nil {
		return true, fmt.Errorf("submit %s: %w", tool.DisplayName, err)
	}

	ack := markup.Escapef("⏳ %s is running. I'll reply here when it's ready.", tool.DisplayName)
	if err := h.sendText(ctx, msg.Chat.ID, msg.MessageID, ack); err != nil {
		slog.Warn("submission ack failed", "error", err)
	}
	return true, nil
}
