package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/musebot/internal/config"
	"github.com/nextlevelbuilder/musebot/internal/markup"
)

// Client is the production transport over the Bot API. A shared rate
// limiter paces all outbound calls so bursts of deliveries stay inside
// Telegram's global send budget.
type Client struct {
	bot         *telego.Bot
	limiter     *rate.Limiter
	linkPreview bool
}

// NewClient connects to the Bot API with the configured token.
func NewClient(cfg config.TelegramConfig) (*Client, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	perSec := cfg.SendRatePerSec
	if perSec <= 0 {
		perSec = 25
	}
	burst := cfg.SendBurst
	if burst <= 0 {
		burst = 5
	}

	return &Client{
		bot:         bot,
		limiter:     rate.NewLimiter(rate.Limit(perSec), burst),
		linkPreview: cfg.LinkPreview != nil && *cfg.LinkPreview,
	}, nil
}

// Bot exposes the underlying telego bot for the update poller.
func (c *Client) Bot() *telego.Bot { return c.bot }

// Username returns the bot's username.
func (c *Client) Username() string { return c.bot.Username() }

func (c *Client) replyParams(messageID int) *telego.ReplyParameters {
	if messageID == 0 {
		return nil
	}
	return &telego.ReplyParameters{
		MessageID:                messageID,
		AllowSendingWithoutReply: true,
	}
}

func (c *Client) previewOptions() *telego.LinkPreviewOptions {
	if c.linkPreview {
		return nil
	}
	return &telego.LinkPreviewOptions{IsDisabled: true}
}

// SendMessage sends a MarkdownV2 text message.
func (c *Client) SendMessage(ctx context.Context, p SendParams) (*telego.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	msg, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:             tu.ID(p.ChatID),
		Text:               p.Text.String(),
		ParseMode:          telego.ModeMarkdownV2,
		ReplyParameters:    c.replyParams(p.ReplyTo),
		ReplyMarkup:        keyboardOrNil(p.Keyboard),
		LinkPreviewOptions: c.previewOptions(),
	})
	if err != nil {
		return nil, fmt.Errorf("send message to chat %d: %w", p.ChatID, err)
	}
	return msg, nil
}

// SendPhoto sends a photo by URL with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, p MediaParams) (*telego.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	msg, err := c.bot.SendPhoto(ctx, &telego.SendPhotoParams{
		ChatID:          tu.ID(p.ChatID),
		Photo:           tu.FileFromURL(p.FileURL),
		Caption:         p.Caption.String(),
		ParseMode:       telego.ModeMarkdownV2,
		ReplyParameters: c.replyParams(p.ReplyTo),
		ReplyMarkup:     keyboardOrNil(p.Keyboard),
	})
	if err != nil {
		return nil, fmt.Errorf("send photo to chat %d: %w", p.ChatID, err)
	}
	return msg, nil
}

// SendAnimation sends an animation by URL with an optional caption.
func (c *Client) SendAnimation(ctx context.Context, p MediaParams) (*telego.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	msg, err := c.bot.SendAnimation(ctx, &telego.SendAnimationParams{
		ChatID:          tu.ID(p.ChatID),
		Animation:       tu.FileFromURL(p.FileURL),
		Caption:         p.Caption.String(),
		ParseMode:       telego.ModeMarkdownV2,
		ReplyParameters: c.replyParams(p.ReplyTo),
		ReplyMarkup:     keyboardOrNil(p.Keyboard),
	})
	if err != nil {
		return nil, fmt.Errorf("send animation to chat %d: %w", p.ChatID, err)
	}
	return msg, nil
}

// SendVideo sends a video by URL with an optional caption.
func (c *Client) SendVideo(ctx context.Context, p MediaParams) (*telego.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	msg, err := c.bot.SendVideo(ctx, &telego.SendVideoParams{
		ChatID:          tu.ID(p.ChatID),
		Video:           tu.FileFromURL(p.FileURL),
		Caption:         p.Caption.String(),
		ParseMode:       telego.ModeMarkdownV2,
		ReplyParameters: c.replyParams(p.ReplyTo),
		ReplyMarkup:     keyboardOrNil(p.Keyboard),
	})
	if err != nil {
		return nil, fmt.Errorf("send video to chat %d: %w", p.ChatID, err)
	}
	return msg, nil
}

// EditMessageText edits a text message in place.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text markup.Safe, kb *telego.InlineKeyboardMarkup) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:             tu.ID(chatID),
		MessageID:          messageID,
		Text:               text.String(),
		ParseMode:          telego.ModeMarkdownV2,
		ReplyMarkup:        kb,
		LinkPreviewOptions: c.previewOptions(),
	})
	if err != nil {
		return fmt.Errorf("edit message %d in chat %d: %w", messageID, chatID, err)
	}
	return nil
}

// EditMessageCaption edits a media message's caption in place.
func (c *Client) EditMessageCaption(ctx context.Context, chatID int64, messageID int, caption markup.Safe, kb *telego.InlineKeyboardMarkup) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.bot.EditMessageCaption(ctx, &telego.EditMessageCaptionParams{
		ChatID:      tu.ID(chatID),
		MessageID:   messageID,
		Caption:     caption.String(),
		ParseMode:   telego.ModeMarkdownV2,
		ReplyMarkup: kb,
	})
	if err != nil {
		return fmt.Errorf("edit caption of message %d in chat %d: %w", messageID, chatID, err)
	}
	return nil
}

// EditReplyMarkup replaces a message's inline keyboard. A nil keyboard
// removes it.
func (c *Client) EditReplyMarkup(ctx context.Context, chatID int64, messageID int, kb *telego.InlineKeyboardMarkup) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.bot.EditMessageReplyMarkup(ctx, &telego.EditMessageReplyMarkupParams{
		ChatID:      tu.ID(chatID),
		MessageID:   messageID,
		ReplyMarkup: kb,
	})
	if err != nil {
		return fmt.Errorf("edit keyboard of message %d in chat %d: %w", messageID, chatID, err)
	}
	return nil
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	}); err != nil {
		return fmt.Errorf("delete message %d in chat %d: %w", messageID, chatID, err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query, optionally with a toast or
// modal alert.
func (c *Client) AnswerCallback(ctx context.Context, queryID, text string, alert bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
		ShowAlert:       alert,
	}); err != nil {
		return fmt.Errorf("answer callback %s: %w", queryID, err)
	}
	return nil
}

// SetCommands publishes the bot's command menu.
func (c *Client) SetCommands(ctx context.Context, commands []telego.BotCommand) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: commands}); err != nil {
		return fmt.Errorf("set bot commands: %w", err)
	}
	return nil
}

// keyboardOrNil avoids sending a typed-nil ReplyMarkup interface value.
func keyboardOrNil(kb *telego.InlineKeyboardMarkup) telego.ReplyMarkup {
	if kb == nil {
		return nil
	}
	return kb
}

// IsNotEditable reports whether an edit failed because the target message
// cannot be edited at all (too old, wrong type, or already gone). Callers
// fall back to sending a fresh message.
func IsNotEditable(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "message can't be edited") ||
		strings.Contains(s, "message to edit not found") ||
		strings.Contains(s, "there is no text in the message to edit")
}

// IsNotModified reports whether an edit failed only because the content
// was identical. Safe to ignore.
func IsNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
