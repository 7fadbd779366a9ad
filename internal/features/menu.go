package features

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/dispatch"
	"github.com/nextlevelbuilder/musebot/internal/markup"
	"github.com/nextlevelbuilder/musebot/internal/telegram"
)

// handleStart serves /start and /menu with the main hub.
func (h *Handlers) handleStart(ctx context.Context, msg *telego.Message, masterAccountID string, _ []string) error {
	return h.renderHub(ctx, masterAccountID, msg.Chat.ID, 0)
}

// handleStatus serves /status with a standalone status report.
func (h *Handlers) handleStatus(ctx context.Context, msg *telego.Message, masterAccountID string, _ []string) error {
	return h.renderStatus(ctx, masterAccountID, msg.Chat.ID, 0, false)
}

// menuCallback routes menu:* presses between the hub screens.
func (h *Handlers) menuCallback(ctx context.Context, p *dispatch.Press) error {
	switch strings.TrimPrefix(p.Data(), "menu:") {
	case "main":
		return h.renderHub(ctx, p.MasterAccountID, p.ChatID(), p.MessageID())
	case "settings":
		return h.renderSettingsMain(ctx, p.MasterAccountID, p.ChatID(), p.MessageID())
	case "status":
		return h.renderStatus(ctx, p.MasterAccountID, p.ChatID(), p.MessageID(), true)
	case "wallets":
		return h.renderWallets(ctx, p.MasterAccountID, p.ChatID(), p.MessageID(), true)
	case "loras":
		return h.renderLoraTop(ctx, p.ChatID(), p.MessageID())
	case "collections":
		return h.renderCollections(ctx, p.MasterAccountID, p.ChatID(), p.MessageID(), 0)
	case "training":
		return h.renderTrainings(ctx, p.MasterAccountID, p.ChatID(), p.MessageID())
	default:
		slog.Warn("unrouted menu action", "data", p.Data())
		return nil
	}
}

// renderHub paints the main menu with a one-line account summary on top.
func (h *Handlers) renderHub(ctx context.Context, masterAccountID string, chatID int64, messageID int) error {
	parts := []markup.Safe{markup.Bold("🎨 MuseBot"), markup.Raw("\n")}
	if report, err := h.api.StatusReport(ctx, masterAccountID); err != nil {
		slog.Warn("status report failed", "error", err)
	} else {
		parts = append(parts, markup.Escapef("✨ %d points · %d exp", report.Points, report.Exp), markup.Raw("\n"))
	}
	parts = append(parts, markup.Escape("What would you like to do?"))

	kb := telegram.NewKeyboard().Grid(2,
		telegram.Button("⚙️ Settings", "menu:settings"),
		telegram.Button("📊 Status", "menu:status"),
		telegram.Button("👛 Wallets", "menu:wallets"),
		telegram.Button("🎨 LoRAs", "menu:loras"),
		telegram.Button("🗂 Collections", "menu:collections"),
		telegram.Button("🧪 Training", "menu:training"),
	)
	return h.paint(ctx, chatID, messageID, markup.Join(parts...), kb.Markup())
}

// renderStatus paints the account's points, wallet, and live tasks.
func (h *Handlers) renderStatus(ctx context.Context, masterAccountID string, chatID int64, messageID int, backToHub bool) error {
	report, err := h.api.StatusReport(ctx, masterAccountID)
	if err != nil {
		slog.Error("status report failed", "error", err)
		return h.paint(ctx, chatID, messageID, markup.Escape(genErrText), nil)
	}

	parts := []markup.Safe{
		markup.Bold("📊 Status"), markup.Raw("\n"),
		markup.Escapef("✨ %d points · %d exp", report.Points, report.Exp), markup.Raw("\n"),
	}
	if report.WalletAddress != "" {
		parts = append(parts, markup.Escapef("👛 %s", markup.AbbreviateAddress(report.WalletAddress)), markup.Raw("\n"))
	}
	parts = append(parts, markup.Raw("\n"))
	if len(report.LiveTasks) == 0 {
		parts = append(parts, markup.Escape("No tasks running."))
	} else {
		parts = append(parts, markup.Escape("Running tasks:"), markup.Raw("\n"))
		for _, task := range report.LiveTasks {
			name := task.ToolDisplayName
			if name == "" {
				name = "generation"
			}
			parts = append(parts, markup.Escapef("• %s: %s", name, task.Status), markup.Raw("\n"))
		}
	}

	var kb *telego.InlineKeyboardMarkup
	if backToHub {
		kb = telegram.NewKeyboard().Row(telegram.Button("⬅️ Back", "menu:main")).Markup()
	}
	return h.paint(ctx, chatID, messageID, markup.Join(parts...), kb)
}

// handleHelp serves /help: the fixed commands plus one line per live tool.
func (h *Handlers) handleHelp(ctx context.Context, msg *telego.Message, _ string, _ []string) error {
	var b strings.Builder
	b.WriteString("Commands:\n")
	b.WriteString("/menu - main menu\n")
	b.WriteString("/status - points and running tasks\n")
	b.WriteString("/settings - default tool parameters\n")
	b.WriteString("/wallet - linked wallets\n")
	b.WriteString("/link <address> - link a wallet\n")
	b.WriteString("/loras - browse LoRA models\n")
	b.WriteString("/collections - your collections\n")
	b.WriteString("/train - model training\n")
	b.WriteString("/help - this message\n")

	tools := h.tools.All()
	if len(tools) > 0 {
		b.WriteString("\nTools:\n")
		for _, tool := range tools {
			if tool.CommandName == "" {
				continue
			}
			b.WriteString("/" + tool.CommandName + " <prompt>")
			if tool.Description != "" {
				b.WriteString(" - " + tool.Description)
			}
			b.WriteString("\n")
		}
	}

	text := markup.Join(markup.Bold("🎨 MuseBot Help"), markup.Raw("\n"), markup.Escape(b.String()))
	return h.sendText(ctx, msg.Chat.ID, msg.MessageID, text)
}

// maxBotCommands is the Bot API limit on the command menu.
const maxBotCommands = 100

// SyncCommands publishes the command menu: the static commands first,
// then one entry per tool that carries a command name.
func (h *Handlers) SyncCommands(ctx context.Context) error {
	commands := []telego.BotCommand{
		{Command: "menu", Description: "Open the main menu"},
		{Command: "status", Description: "Points and running tasks"},
		{Command: "settings", Description: "Default tool parameters"},
		{Command: "wallet", Description: "Linked wallets"},
		{Command: "link", Description: "Link a wallet address"},
		{Command: "loras", Description: "Browse LoRA models"},
		{Command: "collections", Description: "Your collections"},
		{Command: "train", Description: "Model training"},
		{Command: "help", Description: "List commands and tools"},
	}
	for _, tool := range h.tools.All() {
		if tool.CommandName == "" {
			continue
		}
		if len(commands) == maxBotCommands {
			slog.Warn("command menu truncated", "dropped_at", tool.CommandName)
			break
		}
		desc := tool.Description
		if desc == "" {
			desc = tool.DisplayName
		}
		commands = append(commands, telego.BotCommand{
			Command:     strings.ToLower(tool.CommandName),
			Description: desc,
		})
	}
	return h.tg.SetCommands(ctx, commands)
}
