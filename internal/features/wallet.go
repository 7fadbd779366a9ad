package features

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
	"github.com/nextlevelbuilder/musebot/internal/dispatch"
	"github.com/nextlevelbuilder/musebot/internal/markup"
	"github.com/nextlevelbuilder/musebot/internal/telegram"
)

// handleWallet serves /wallet with the linked wallet list.
func (h *Handlers) handleWallet(ctx context.Context, msg *telego.Message, masterAccountID string, _ []string) error {
	return h.renderWallets(ctx, masterAccountID, msg.Chat.ID, 0, false)
}

// walletCallback routes wallet:* presses.
func (h *Handlers) walletCallback(ctx context.Context, p *dispatch.Press) error {
	rest := strings.TrimPrefix(p.Data(), "wallet:")
	switch {
	case rest == "list":
		return h.renderWallets(ctx, p.MasterAccountID, p.ChatID(), p.MessageID(), true)
	case rest == "add":
		text := markup.Join(
			markup.Bold("➕ Link a wallet"), markup.Raw("\n"),
			markup.Escape("Send /link followed by the wallet address, for example:"), markup.Raw("\n"),
			markup.Code("/link 0x1234…abcd"),
		)
		kb := telegram.NewKeyboard().Row(telegram.Button("⬅️ Back", "wallet:list")).Markup()
		return h.paint(ctx, p.ChatID(), p.MessageID(), text, kb)
	case strings.HasPrefix(rest, "view:"):
		return h.renderWalletDetail(ctx, p, strings.TrimPrefix(rest, "view:"))
	default:
		slog.Warn("unrouted wallet action", "data", p.Data())
		return nil
	}
}

// renderWallets paints the account's linked wallets. The primary wallet
// carries a star.
func (h *Handlers) renderWallets(ctx context.Context, masterAccountID string, chatID int64, messageID int, withBack bool) error {
	wallets, err := h.api.Wallets(ctx, masterAccountID)
	if err != nil {
		slog.Error("wallet list failed", "error", err)
		return h.paint(ctx, chatID, messageID, markup.Escape(genErrText), nil)
	}

	kb := telegram.NewKeyboard()
	for _, w := range wallets {
		label := markup.AbbreviateAddress(w.Address)
		if w.IsPrimary {
			label = "★ " + label
		}
		kb.Row(telegram.Button(label, "wallet:view:"+w.Address))
	}
	kb.Row(telegram.Button("➕ Add wallet", "wallet:add"))
	if withBack {
		kb.Row(telegram.Button("⬅️ Back", "menu:main"))
	}

	parts := []markup.Safe{markup.Bold("👛 Wallets"), markup.Raw("\n")}
	if len(wallets) == 0 {
		parts = append(parts, markup.Escape("No wallets linked yet."))
	} else {
		parts = append(parts, markup.Escapef("%d linked.", len(wallets)))
	}
	return h.paint(ctx, chatID, messageID, markup.Join(parts...), kb.Markup())
}

// renderWalletDetail paints one wallet. The address is looked up in the
// account's own list, so nobody can page through other users' wallets.
func (h *Handlers) renderWalletDetail(ctx context.Context, p *dispatch.Press, address string) error {
	wallets, err := h.api.Wallets(ctx, p.MasterAccountID)
	if err != nil {
		slog.Error("wallet list failed", "error", err)
		p.Alert(ctx, genErrText)
		return nil
	}
	var w *dataapi.Wallet
	for i := range wallets {
		if strings.EqualFold(wallets[i].Address, address) {
			w = &wallets[i]
			break
		}
	}
	if w == nil {
		p.Alert(ctx, "This wallet is no longer linked.")
		return nil
	}

	parts := []markup.Safe{
		markup.Bold("👛 Wallet"), markup.Raw("\n"),
		markup.Code(w.Address), markup.Raw("\n"),
	}
	if w.ChainID != "" {
		parts = append(parts, markup.Escapef("Chain: %s", w.ChainID), markup.Raw("\n"))
	}
	if w.IsPrimary {
		parts = append(parts, markup.Escape("★ Primary wallet"), markup.Raw("\n"))
	}
	if !w.LinkedAt.IsZero() {
		parts = append(parts, markup.Escapef("Linked: %s", w.LinkedAt.UTC().Format("2006-01-02")), markup.Raw("\n"))
	}

	kb := telegram.NewKeyboard().Row(telegram.Button("⬅️ Back", "wallet:list")).Markup()
	return h.paint(ctx, p.ChatID(), p.MessageID(), markup.Join(parts...), kb)
}
