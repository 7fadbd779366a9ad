// Package dispatch routes incoming Telegram updates to feature handlers.
// Text messages flow through command regexes, then pending reply contexts,
// then the dynamic tool commands. Button presses route by callback data
// prefix behind an authorization gate.
package dispatch

import (
	"context"
	"log/slog"
	"regexp"
	"runtime/debug"
	"strings"

	"github.com/mymmrac/telego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/musebot/internal/markup"
	"github.com/nextlevelbuilder/musebot/internal/state"
	"github.com/nextlevelbuilder/musebot/internal/telegram"
)

// User-facing dispatch messages.
const (
	notYoursText     = "This menu isn't for you."
	identityFailText = "Sorry, we couldn't identify your account. Please try again later."
	genericErrText   = "Something went wrong. Please try again."
)

// CommandHandler handles a matched slash command. match holds the regex
// submatches, match[0] being the full normalized text.
type CommandHandler func(ctx context.Context, msg *telego.Message, masterAccountID string, match []string) error

// CallbackHandler handles a button press routed by callback prefix.
type CallbackHandler func(ctx context.Context, p *Press) error

// ReplyHandler handles a reply to a prompt message whose stored context
// was consumed for this dispatch.
type ReplyHandler func(ctx context.Context, msg *telego.Message, masterAccountID string, rc state.ReplyContext) error

// DynamicHandler is consulted for text that matched nothing else. It
// reports whether it handled the message.
type DynamicHandler func(ctx context.Context, msg *telego.Message, masterAccountID string) (bool, error)

// Identity resolves Telegram users to master account ids.
type Identity interface {
	Resolve(ctx context.Context, user *telego.User, chatID int64, messageID int) (string, error)
}

type commandRoute struct {
	pattern string
	re      *regexp.Regexp
	handler CommandHandler
}

type callbackRoute struct {
	prefix  string
	handler CallbackHandler
}

// Dispatcher owns the routing tables and drives every update through
// identity resolution, routing, and panic containment.
type Dispatcher struct {
	tg       telegram.API
	identity Identity
	replies  *state.ReplyContextStore
	tracer   trace.Tracer

	commands      []commandRoute
	callbacks     []callbackRoute
	replyHandlers map[state.ReplyKind]ReplyHandler
	dynamic       DynamicHandler
}

// New builds a dispatcher over the transport, identity resolver, and
// reply context store.
func New(tg telegram.API, identity Identity, replies *state.ReplyContextStore) *Dispatcher {
	return &Dispatcher{
		tg:            tg,
		identity:      identity,
		replies:       replies,
		tracer:        otel.Tracer("musebot/dispatch"),
		replyHandlers: make(map[state.ReplyKind]ReplyHandler),
	}
}

// HandleCommand registers a regex route for text commands. Routes match in
// registration order; the first match wins. The pattern is compiled at
// registration and panics on error, which surfaces bad routes at startup.
func (d *Dispatcher) HandleCommand(pattern string, h CommandHandler) {
	d.commands = append(d.commands, commandRoute{
		pattern: pattern,
		re:      regexp.MustCompile(pattern),
		handler: h,
	})
}

// HandleCallbackPrefix registers a handler for callback data starting with
// prefix. Registering the same prefix twice replaces the handler with a
// warning.
func (d *Dispatcher) HandleCallbackPrefix(prefix string, h CallbackHandler) {
	for i, route := range d.callbacks {
		if route.prefix == prefix {
			slog.Warn("callback prefix already registered, replacing", "prefix", prefix)
			d.callbacks[i].handler = h
			return
		}
	}
	d.callbacks = append(d.callbacks, callbackRoute{prefix: prefix, handler: h})
}

// HandleReply registers the handler for one reply context kind.
func (d *Dispatcher) HandleReply(kind state.ReplyKind, h ReplyHandler) {
	if _, dup := d.replyHandlers[kind]; dup {
		slog.Warn("reply kind already registered, replacing", "kind", kind)
	}
	d.replyHandlers[kind] = h
}

// SetDynamic installs the dynamic command fallback.
func (d *Dispatcher) SetDynamic(h DynamicHandler) { d.dynamic = h }

// HandleUpdate routes one update. Safe for concurrent calls; panics in
// handlers are contained per update.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update telego.Update) {
	ctx, span := d.tracer.Start(ctx, "dispatch.update",
		trace.WithAttributes(attribute.Int("telegram.update_id", update.UpdateID)))
	defer span.End()

	switch {
	case update.CallbackQuery != nil:
		d.handleCallback(ctx, span, *update.CallbackQuery)
	case update.Message != nil:
		d.handleMessage(ctx, span, update.Message)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, span trace.Span, msg *telego.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("message handler panic",
				"panic", r,
				"chat_id", msg.Chat.ID,
				"stack", string(debug.Stack()))
			d.apologize(ctx, msg, genericErrText)
		}
	}()

	span.SetAttributes(
		attribute.String("telegram.update_type", "message"),
		attribute.Int64("telegram.chat_id", msg.Chat.ID),
	)

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	maid, err := d.identity.Resolve(ctx, msg.From, msg.Chat.ID, msg.MessageID)
	if err != nil {
		slog.Error("identity resolution failed", "error", err, "user_id", msg.From.ID)
		d.apologize(ctx, msg, identityFailText)
		return
	}

	if strings.HasPrefix(text, "/") {
		normalized, mine := d.normalizeCommand(text)
		if !mine {
			// Addressed to a different bot in the chat.
			return
		}
		for _, route := range d.commands {
			m := route.re.FindStringSubmatch(normalized)
			if m == nil {
				continue
			}
			span.SetAttributes(attribute.String("dispatch.route", "command"))
			if err := route.handler(ctx, msg, maid, m); err != nil {
				slog.Error("command handler failed",
					"pattern", route.pattern,
					"chat_id", msg.Chat.ID,
					"error", err)
				d.apologize(ctx, msg, genericErrText)
			}
			return
		}
	} else if msg.ReplyToMessage != nil {
		ref := state.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ReplyToMessage.MessageID}
		if rc, ok := d.replies.Consume(ref); ok {
			span.SetAttributes(attribute.String("dispatch.route", "reply"))
			d.dispatchReply(ctx, msg, maid, rc)
			return
		}
	}

	if d.dynamic == nil {
		return
	}
	handled, err := d.dynamic(ctx, msg, maid)
	if err != nil {
		slog.Error("dynamic handler failed", "chat_id", msg.Chat.ID, "error", err)
		d.apologize(ctx, msg, genericErrText)
		return
	}
	if handled {
		span.SetAttributes(attribute.String("dispatch.route", "dynamic"))
	}
}

func (d *Dispatcher) dispatchReply(ctx context.Context, msg *telego.Message, maid string, rc state.ReplyContext) {
	h := d.replyHandlers[rc.Kind()]
	if h == nil {
		slog.Warn("no handler for reply context", "kind", rc.Kind())
		return
	}
	if err := h(ctx, msg, maid, rc); err != nil {
		slog.Error("reply handler failed", "kind", rc.Kind(), "error", err)
		d.apologize(ctx, msg, genericErrText)
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, span trace.Span, q telego.CallbackQuery) {
	msg := accessibleMessage(q)
	p := &Press{Query: q, Message: msg, tg: d.tg}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("callback handler panic",
				"panic", r,
				"data", q.Data,
				"stack", string(debug.Stack()))
			p.Alert(ctx, genericErrText)
		}
	}()

	span.SetAttributes(
		attribute.String("telegram.update_type", "callback"),
		attribute.String("telegram.callback_prefix", callbackPrefix(q.Data)),
	)

	maid, err := d.identity.Resolve(ctx, &q.From, p.ChatID(), p.MessageID())
	if err != nil {
		slog.Error("identity resolution failed", "error", err, "user_id", q.From.ID)
		p.Alert(ctx, identityFailText)
		return
	}
	p.MasterAccountID = maid

	if !d.authorized(q, msg) {
		p.Toast(ctx, notYoursText)
		return
	}

	for _, route := range d.callbacks {
		if !strings.HasPrefix(q.Data, route.prefix) {
			continue
		}
		if err := route.handler(ctx, p); err != nil {
			slog.Error("callback handler failed",
				"prefix", route.prefix,
				"data", q.Data,
				"error", err)
			if !p.Answered() {
				p.Alert(ctx, genericErrText)
			}
		}
		// Exactly one answer per press: ack anything the handler left open.
		p.Ack(ctx)
		return
	}

	slog.Warn("unrouted callback", "data", q.Data)
	p.Ack(ctx)
}

// authorized enforces menu ownership: when the pressed bot message replies
// to a user's command, only that user may press its buttons. Rating
// buttons stay open to everyone in group chats.
func (d *Dispatcher) authorized(q telego.CallbackQuery, msg *telego.Message) bool {
	if msg == nil || msg.ReplyToMessage == nil || msg.ReplyToMessage.From == nil {
		return true
	}
	commander := msg.ReplyToMessage.From
	if commander.IsBot || commander.ID == q.From.ID {
		return true
	}
	if strings.HasPrefix(q.Data, "rate_gen:") && isGroupChat(msg.Chat.Type) {
		return true
	}
	return false
}

func isGroupChat(chatType string) bool {
	return chatType == telego.ChatTypeGroup || chatType == telego.ChatTypeSupergroup
}

// normalizeCommand strips an @botname suffix from the command token. The
// second result is false when the command addresses a different bot.
func (d *Dispatcher) normalizeCommand(text string) (string, bool) {
	cmd := text
	rest := ""
	if i := strings.IndexAny(text, " \n"); i >= 0 {
		cmd, rest = text[:i], text[i:]
	}
	at := strings.Index(cmd, "@")
	if at < 0 {
		return text, true
	}
	if !strings.EqualFold(cmd[at+1:], d.tg.Username()) {
		return "", false
	}
	return cmd[:at] + rest, true
}

func (d *Dispatcher) apologize(ctx context.Context, msg *telego.Message, text string) {
	_, err := d.tg.SendMessage(ctx, telegram.SendParams{
		ChatID:  msg.Chat.ID,
		ReplyTo: msg.MessageID,
		Text:    markup.Escape(text),
	})
	if err != nil {
		slog.Error("failed to send error reply", "chat_id", msg.Chat.ID, "error", err)
	}
}

func callbackPrefix(data string) string {
	if i := strings.IndexAny(data, ":_"); i >= 0 {
		return data[:i]
	}
	return data
}
