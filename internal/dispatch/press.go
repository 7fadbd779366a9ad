package dispatch

import (
	"context"
	"log/slog"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/telegram"
)

// Press is one callback button press moving through the dispatcher. It
// tracks whether the query has been answered so every press is
// acknowledged exactly once: handlers answer with Ack, Toast, or Alert,
// and the dispatcher acks any press its handler left unanswered.
type Press struct {
	Query           telego.CallbackQuery
	Message         *telego.Message
	MasterAccountID string

	tg       telegram.API
	answered bool
}

// Data returns the callback data of the press.
func (p *Press) Data() string { return p.Query.Data }

// ChatID returns the chat the pressed message lives in, or 0 when the
// message is inaccessible.
func (p *Press) ChatID() int64 {
	if p.Query.Message != nil {
		return p.Query.Message.GetChat().ID
	}
	return 0
}

// MessageID returns the pressed message's id, or 0 when inaccessible.
func (p *Press) MessageID() int {
	if p.Query.Message != nil {
		return p.Query.Message.GetMessageID()
	}
	return 0
}

// Answered reports whether the callback query has been acknowledged.
func (p *Press) Answered() bool { return p.answered }

// Ack silently acknowledges the press.
func (p *Press) Ack(ctx context.Context) { p.answer(ctx, "", false) }

// Toast acknowledges with a transient notification.
func (p *Press) Toast(ctx context.Context, text string) { p.answer(ctx, text, false) }

// Alert acknowledges with a modal alert.
func (p *Press) Alert(ctx context.Context, text string) { p.answer(ctx, text, true) }

func (p *Press) answer(ctx context.Context, text string, alert bool) {
	if p.answered {
		return
	}
	p.answered = true
	if err := p.tg.AnswerCallback(ctx, p.Query.ID, text, alert); err != nil {
		// Answers expire server-side after a few seconds; late failures
		// are expected and harmless.
		slog.Debug("answer callback failed", "error", err, "query_id", p.Query.ID)
	}
}

// accessibleMessage unwraps the callback's message when Telegram still
// exposes its content.
func accessibleMessage(q telego.CallbackQuery) *telego.Message {
	if msg, ok := q.Message.(*telego.Message); ok {
		return msg
	}
	return nil
}
