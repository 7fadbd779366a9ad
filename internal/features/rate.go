package features

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/musebot/internal/dispatch"
	"github.com/nextlevelbuilder/musebot/internal/telegram"
)

// rate handles rate_gen:<genId>:<kind>: record the reaction and answer
// with the matching emoji burst. Ratings stay open to everyone in group
// chats, so the record keeps who reacted, not just that someone did.
func (h *Handlers) rate(ctx context.Context, p *dispatch.Press) error {
	parts := strings.Split(p.Data(), ":")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		slog.Warn("malformed rating data", "data", p.Data())
		return nil
	}
	genID, kind := parts[1], parts[2]

	if err := h.api.RateGeneration(ctx, genID, kind, p.MasterAccountID); err != nil {
		slog.Error("rating failed", "generation_id", genID, "kind", kind, "error", err)
		p.Alert(ctx, genErrText)
		return nil
	}
	p.Toast(ctx, ratingToast(kind))
	return nil
}

func ratingToast(kind string) string {
	switch kind {
	case "beautiful":
		return "😻😻😻"
	case "funny":
		return "😹😹😹"
	case "sad", "negative":
		return "😿😿😿"
	default:
		return "😶😶😶"
	}
}

// hideMenu handles hide_menu: strip the card's keyboard. The card itself
// stays; only the buttons go away.
func (h *Handlers) hideMenu(ctx context.Context, p *dispatch.Press) error {
	if p.Message == nil {
		p.Ack(ctx)
		return nil
	}
	err := h.tg.EditReplyMarkup(ctx, p.ChatID(), p.MessageID(), nil)
	if err != nil && !telegram.IsNotEditable(err) && !telegram.IsNotModified(err) {
		return err
	}
	return nil
}
