package features

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/musebot/internal/delivery"
	"github.com/nextlevelbuilder/musebot/internal/dispatch"
	"github.com/nextlevelbuilder/musebot/internal/telegram"
)

// rerun handles rerun_gen:<genId>[:<count>]: resubmit the ancestor with a
// varied seed and advance the card's rerun counter.
func (h *Handlers) rerun(ctx context.Context, p *dispatch.Press) error {
	genID, presses := parseRerunData(p.Data())
	if genID == "" {
		slog.Warn("malformed rerun data", "data", p.Data())
		return nil
	}

	rec, tool, ok := h.fetchAncestor(ctx, p, genID)
	if !ok {
		return nil
	}

	if _, err := h.submit.Rerun(ctx, tool, rec, p.MasterAccountID); err != nil {
		slog.Error("rerun submission failed", "generation_id", genID, "error", err)
		p.Alert(ctx, genErrText)
		return nil
	}
	p.Toast(ctx, "↻ rerunning…")

	// Counter updates are best effort; the rerun itself already went out.
	if p.Message == nil {
		return nil
	}
	kb, ok := delivery.SetRerunCount(p.Message.ReplyMarkup, genID, presses+1)
	if !ok {
		slog.Warn("rerun counter button not found", "generation_id", genID)
		return nil
	}
	err := h.tg.EditReplyMarkup(ctx, p.ChatID(), p.MessageID(), kb)
	if err != nil && !telegram.IsNotModified(err) {
		slog.Warn("rerun counter update failed", "generation_id", genID, "error", err)
	}
	return nil
}

// parseRerunData splits rerun callback data into the generation id and the
// press count so far. Fresh cards carry no count suffix.
func parseRerunData(data string) (string, int) {
	rest := strings.TrimPrefix(data, "rerun_gen:")
	if rest == "" {
		return "", 0
	}
	if i := strings.LastIndex(rest, ":"); i > 0 {
		if n, err := strconv.Atoi(rest[i+1:]); err == nil {
			return rest[:i], n
		}
	}
	return rest, 0
}
