// Package telegram wraps the Bot API behind a small transport interface.
// All outbound traffic passes through here: messages only accept
// markup.Safe text, sends are rate limited, and edit failures are
// classified so callers can fall back instead of guessing.
package telegram

import (
	"context"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/markup"
)

// SendParams describes an outbound text message.
type SendParams struct {
	ChatID   int64
	ReplyTo  int
	Text     markup.Safe
	Keyboard *telego.InlineKeyboardMarkup
}

// MediaParams describes an outbound media message sent by URL.
type MediaParams struct {
	ChatID   int64
	ReplyTo  int
	FileURL  string
	Caption  markup.Safe
	Keyboard *telego.InlineKeyboardMarkup
}

// API is the transport surface the dispatch and feature layers use.
// Production traffic goes through Client; tests use the recorder in
// telegramtest.
type API interface {
	Username() string
	SendMessage(ctx context.Context, p SendParams) (*telego.Message, error)
	SendPhoto(ctx context.Context, p MediaParams) (*telego.Message, error)
	SendAnimation(ctx context.Context, p MediaParams) (*telego.Message, error)
	SendVideo(ctx context.Context, p MediaParams) (*telego.Message, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text markup.Safe, kb *telego.InlineKeyboardMarkup) error
	EditMessageCaption(ctx context.Context, chatID int64, messageID int, caption markup.Safe, kb *telego.InlineKeyboardMarkup) error
	EditReplyMarkup(ctx context.Context, chatID int64, messageID int, kb *telego.InlineKeyboardMarkup) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, queryID, text string, alert bool) error
	SetCommands(ctx context.Context, commands []telego.BotCommand) error
}
