package features

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
	"github.com/nextlevelbuilder/musebot/internal/dispatch"
	"github.com/nextlevelbuilder/musebot/internal/identity"
	"github.com/nextlevelbuilder/musebot/internal/markup"
	"github.com/nextlevelbuilder/musebot/internal/telegram"
)

var walletAddressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// handleLink serves /link <address>: ask the data service to link the
// wallet and walk the user through whichever verification mode it picks.
func (h *Handlers) handleLink(ctx context.Context, msg *telego.Message, masterAccountID string, match []string) error {
	address := ""
	if len(match) > 1 {
		address = match[1]
	}
	if address == "" {
		return h.sendText(ctx, msg.Chat.ID, msg.MessageID,
			markup.Escape("Usage: /link <wallet address>"))
	}
	if !walletAddressRe.MatchString(address) {
		return h.sendText(ctx, msg.Chat.ID, msg.MessageID,
			markup.Escape("That doesn't look like a wallet address. Expected 0x followed by 40 hex characters."))
	}

	res, err := h.api.RequestPlatformLink(ctx, dataapi.PlatformLinkRequest{
		MasterAccountID: masterAccountID,
		WalletAddress:   address,
		Platform:        identity.Platform,
	})
	if err != nil {
		if dataapi.IsConflict(err) {
			return h.sendText(ctx, msg.Chat.ID, msg.MessageID,
				markup.Escape("A link request for this wallet is already pending. Hang tight."))
		}
		return fmt.Errorf("request platform link: %w", err)
	}

	switch res.Mode {
	case dataapi.LinkModeApproval:
		return h.startApprovalFlow(ctx, msg, address, res)
	case dataapi.LinkModeMagicAmount:
		return h.startMagicAmountFlow(ctx, msg, masterAccountID, address, res)
	default:
		slog.Warn("unknown link mode", "mode", res.Mode)
		return h.sendText(ctx, msg.Chat.ID, msg.MessageID, markup.Escape(genErrText))
	}
}

// startApprovalFlow messages the wallet's current holder with approve,
// reject, and report buttons, then acknowledges the requester.
func (h *Handlers) startApprovalFlow(ctx context.Context, msg *telego.Message, address string, res *dataapi.PlatformLinkResult) error {
	if res.Holder == nil || res.Holder.ChatID == 0 || res.RequestID == "" {
		return h.sendText(ctx, msg.Chat.ID, msg.MessageID,
			markup.Escape("This wallet is held by another account that can't be reached right now. Please try again later."))
	}

	kb := telegram.NewKeyboard().
		Row(
			telegram.Button("✅ Approve", "link:approve:"+res.RequestID),
			telegram.Button("❌ Reject", "link:reject:"+res.RequestID),
		).
		Row(telegram.Button("🚨 Report", "link:report:"+res.RequestID)).
		Markup()

	text := markup.Join(
		markup.Bold("🔗 Link request"), markup.Raw("\n"),
		markup.Escape("Another account wants to take over wallet"), markup.Raw("\n"),
		markup.Code(address), markup.Raw("\n"),
		markup.Escape("Approve only if this is you."),
	)
	_, err := h.tg.SendMessage(ctx, telegram.SendParams{
		ChatID:   res.Holder.ChatID,
		Text:     text,
		Keyboard: kb,
	})
	if err != nil {
		return fmt.Errorf("deliver approval request: %w", err)
	}

	return h.sendText(ctx, msg.Chat.ID, msg.MessageID,
		markup.Escape("This wallet is already linked to another account. We've asked its holder to approve the transfer; you'll hear back once they decide."))
}

// startMagicAmountFlow sends the exact-amount deposit instructions the
// user must follow to prove ownership.
func (h *Handlers) startMagicAmountFlow(ctx context.Context, msg *telego.Message, masterAccountID, address string, res *dataapi.PlatformLinkResult) error {
	magic := res.Magic
	if magic == nil {
		chainID := h.cfg.Snapshot().Link.DefaultChainID
		var err error
		magic, err = h.api.RequestMagicAmount(ctx, masterAccountID, address, chainID)
		if err != nil {
			return fmt.Errorf("request magic amount: %w", err)
		}
	}

	foundation, chain := h.cfg.Snapshot().Link.FoundationAddress(magic.ChainID)
	if foundation == "" {
		return fmt.Errorf("no foundation address configured for chain %q", chain)
	}

	text := markup.Join(
		markup.Bold("🔮 Verify your wallet"), markup.Raw("\n"),
		markup.Escapef("To prove you own %s, send exactly", markup.AbbreviateAddress(address)), markup.Raw("\n"),
		markup.Code(magic.MagicAmountWei+" wei"), markup.Raw("\n"),
		markup.Escape("from that wallet to"), markup.Raw("\n"),
		markup.Code(foundation), markup.Raw("\n"),
		markup.Escapef("on chain %s before %s.", chain, magic.ExpiresAt.UTC().Format("15:04 UTC, Jan 2")), markup.Raw("\n"),
		markup.Escape("The link completes automatically once the deposit is seen."),
	)
	return h.sendText(ctx, msg.Chat.ID, msg.MessageID, text)
}

// linkCallback routes link:<action>:<requestId> presses from the holder's
// approval message.
func (h *Handlers) linkCallback(ctx context.Context, p *dispatch.Press) error {
	parts := strings.SplitN(strings.TrimPrefix(p.Data(), "link:"), ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		slog.Warn("malformed link action data", "data", p.Data())
		return nil
	}
	action, requestID := parts[0], parts[1]
	switch action {
	case "approve", "reject", "report":
	default:
		slog.Warn("unknown link action", "action", action)
		return nil
	}

	res, err := h.api.ResolveLinkRequest(ctx, requestID, action)
	if err != nil {
		if dataapi.IsNotFound(err) {
			p.Alert(ctx, "This link request has already been settled.")
			return nil
		}
		return fmt.Errorf("resolve link request: %w", err)
	}

	var outcome string
	switch action {
	case "approve":
		outcome = "✅ Link approved. The wallet now belongs to the requesting account."
	case "reject":
		outcome = "❌ Link rejected. The wallet stays with you."
	case "report":
		outcome = "🚨 Reported. Thanks for letting us know."
		if res.Banned {
			outcome += " The requesting account has been banned."
		}
	}
	p.Toast(ctx, outcome)

	if p.Message == nil {
		return nil
	}
	err = h.tg.EditMessageText(ctx, p.ChatID(), p.MessageID(), markup.Escape(outcome), nil)
	if err != nil && !telegram.IsNotEditable(err) && !telegram.IsNotModified(err) {
		slog.Warn("link outcome edit failed", "error", err)
	}
	return nil
}
