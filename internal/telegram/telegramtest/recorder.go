// Package telegramtest provides an in-memory transport recorder used by
// dispatch and feature tests in place of the Bot API.
package telegramtest

import (
	"context"
	"sync"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/markup"
	"github.com/nextlevelbuilder/musebot/internal/telegram"
)

// SentMessage is one recorded outbound message.
type SentMessage struct {
	Kind      string
	ChatID    int64
	ReplyTo   int
	Text      string
	FileURL   string
	Keyboard  *telego.InlineKeyboardMarkup
	MessageID int
}

// Edit is one recorded message edit. Kind is text, caption, or markup.
type Edit struct {
	Kind      string
	ChatID    int64
	MessageID int
	Text      string
	Keyboard  *telego.InlineKeyboardMarkup
}

// Deleted is one recorded message deletion.
type Deleted struct {
	ChatID    int64
	MessageID int
}

// Answer is one recorded callback acknowledgment.
type Answer struct {
	QueryID string
	Text    string
	Alert   bool
}

// Recorder implements telegram.API and records every call. Inject errors
// through the Fail fields to exercise fallback paths.
type Recorder struct {
	mu sync.Mutex

	BotUsername string
	nextID      int

	Sent     []SentMessage
	Edits    []Edit
	Deletes  []Deleted
	Answers  []Answer
	Commands [][]telego.BotCommand

	FailSend        error
	FailEditText    error
	FailEditCaption error
	FailEditMarkup  error
	FailDelete      error
}

var _ telegram.API = (*Recorder)(nil)

// New returns an empty recorder.
func New() *Recorder {
	return &Recorder{BotUsername: "musebot_test_bot", nextID: 1000}
}

// Username returns the configured test bot name.
func (r *Recorder) Username() string { return r.BotUsername }

func (r *Recorder) send(kind string, chatID int64, replyTo int, text, fileURL string, kb *telego.InlineKeyboardMarkup) (*telego.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSend != nil {
		return nil, r.FailSend
	}
	r.nextID++
	sent := SentMessage{
		Kind:      kind,
		ChatID:    chatID,
		ReplyTo:   replyTo,
		Text:      text,
		FileURL:   fileURL,
		Keyboard:  kb,
		MessageID: r.nextID,
	}
	r.Sent = append(r.Sent, sent)
	return &telego.Message{
		MessageID:   sent.MessageID,
		Chat:        telego.Chat{ID: chatID, Type: telego.ChatTypePrivate},
		Text:        text,
		ReplyMarkup: kb,
	}, nil
}

func (r *Recorder) SendMessage(ctx context.Context, p telegram.SendParams) (*telego.Message, error) {
	return r.send("text", p.ChatID, p.ReplyTo, p.Text.String(), "", p.Keyboard)
}

func (r *Recorder) SendPhoto(ctx context.Context, p telegram.MediaParams) (*telego.Message, error) {
	return r.send("photo", p.ChatID, p.ReplyTo, p.Caption.String(), p.FileURL, p.Keyboard)
}

func (r *Recorder) SendAnimation(ctx context.Context, p telegram.MediaParams) (*telego.Message, error) {
	return r.send("animation", p.ChatID, p.ReplyTo, p.Caption.String(), p.FileURL, p.Keyboard)
}

func (r *Recorder) SendVideo(ctx context.Context, p telegram.MediaParams) (*telego.Message, error) {
	return r.send("video", p.ChatID, p.ReplyTo, p.Caption.String(), p.FileURL, p.Keyboard)
}

func (r *Recorder) EditMessageText(ctx context.Context, chatID int64, messageID int, text markup.Safe, kb *telego.InlineKeyboardMarkup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailEditText != nil {
		return r.FailEditText
	}
	r.Edits = append(r.Edits, Edit{Kind: "text", ChatID: chatID, MessageID: messageID, Text: text.String(), Keyboard: kb})
	return nil
}

func (r *Recorder) EditMessageCaption(ctx context.Context, chatID int64, messageID int, caption markup.Safe, kb *telego.InlineKeyboardMarkup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailEditCaption != nil {
		return r.FailEditCaption
	}
	r.Edits = append(r.Edits, Edit{Kind: "caption", ChatID: chatID, MessageID: messageID, Text: caption.String(), Keyboard: kb})
	return nil
}

func (r *Recorder) EditReplyMarkup(ctx context.Context, chatID int64, messageID int, kb *telego.InlineKeyboardMarkup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailEditMarkup != nil {
		return r.FailEditMarkup
	}
	r.Edits = append(r.Edits, Edit{Kind: "markup", ChatID: chatID, MessageID: messageID, Keyboard: kb})
	return nil
}

func (r *Recorder) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailDelete != nil {
		return r.FailDelete
	}
	r.Deletes = append(r.Deletes, Deleted{ChatID: chatID, MessageID: messageID})
	return nil
}

func (r *Recorder) AnswerCallback(ctx context.Context, queryID, text string, alert bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Answers = append(r.Answers, Answer{QueryID: queryID, Text: text, Alert: alert})
	return nil
}

func (r *Recorder) SetCommands(ctx context.Context, commands []telego.BotCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Commands = append(r.Commands, commands)
	return nil
}

// LastSent returns the most recent outbound message, or nil.
func (r *Recorder) LastSent() *SentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Sent) == 0 {
		return nil
	}
	sent := r.Sent[len(r.Sent)-1]
	return &sent
}

// LastEdit returns the most recent edit, or nil.
func (r *Recorder) LastEdit() *Edit {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Edits) == 0 {
		return nil
	}
	edit := r.Edits[len(r.Edits)-1]
	return &edit
}

// LastAnswer returns the most recent callback acknowledgment, or nil.
func (r *Recorder) LastAnswer() *Answer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Answers) == 0 {
		return nil
	}
	ans := r.Answers[len(r.Answers)-1]
	return &ans
}

// EditsFor returns every edit applied to one message, oldest first.
func (r *Recorder) EditsFor(chatID int64, messageID int) []Edit {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Edit
	for _, e := range r.Edits {
		if e.ChatID == chatID && e.MessageID == messageID {
			out = append(out, e)
		}
	}
	return out
}

// DeletedRefs reports whether a message was deleted.
func (r *Recorder) DeletedRefs(chatID int64, messageID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.Deletes {
		if d.ChatID == chatID && d.MessageID == messageID {
			return true
		}
	}
	return false
}
