// Package notifier subscribes to the execution service's completion
// event stream over WebSocket and hands finished generations to the
// deliverer. The subscription is the only push channel into the bot;
// everything else is request/response.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// Event types published by the execution service. Types added later are
// skipped, so older bots keep working against a newer executor.
const (
	eventCompleted = "generation.completed"
	eventFailed    = "generation.failed"
)

const (
	readLimit     = 1 << 20 // 1MB
	maxBackoff    = 60 * time.Second
	handleTimeout = 30 * time.Second
)

// clientKeyHeader authenticates the bot to the execution service, same
// key as the data API.
const clientKeyHeader = "X-Internal-Client-Key"

// Sink receives delivery work for finished generations. Implemented by
// the delivery package.
type Sink interface {
	DeliverCompleted(ctx context.Context, generationID string) error
	NotifyFailure(ctx context.Context, generationID string) error
}

// Notifier maintains the event stream subscription, reconnecting with
// capped exponential backoff when the connection drops.
type Notifier struct {
	url       string
	clientKey string
	sink      Sink
}

// New builds a notifier for the given ws(s):// endpoint.
func New(url, clientKey string, sink Sink) *Notifier {
	return &Notifier{url: url, clientKey: clientKey, sink: sink}
}

type event struct {
	Type         string `json:"type"`
	GenerationID string `json:"generationId"`
	RunID        string `json:"runId,omitempty"`
}

// Run connects and consumes events until ctx is done. Every lost
// connection is retried; the delay doubles per consecutive failure up
// to a minute and resets once a dial succeeds.
func (n *Notifier) Run(ctx context.Context) error {
	attempt := 0
	for {
		connected, err := n.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			attempt = 0
		}
		attempt++

		delay := min(time.Duration(1<<uint(attempt))*time.Second, maxBackoff)
		slog.Warn("notifier reconnecting",
			"attempt", attempt,
			"delay", delay,
			"error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// listen dials the stream and consumes it until the connection drops or
// ctx is cancelled. connected reports whether the dial itself succeeded.
func (n *Notifier) listen(ctx context.Context) (connected bool, err error) {
	h := http.Header{}
	h.Set(clientKeyHeader, n.clientKey)

	conn, _, err := websocket.Dial(ctx, n.url, &websocket.DialOptions{HTTPHeader: h})
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", n.url, err)
	}
	conn.SetReadLimit(readLimit)
	defer conn.Close(websocket.StatusNormalClosure, "")

	slog.Info("notifier connected", "url", n.url)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if code := websocket.CloseStatus(err); code >= 0 {
				return true, fmt.Errorf("stream closed (%d): %w", code, err)
			}
			return true, err
		}
		n.handle(ctx, data)
	}
}

// handle dispatches one event. Errors never tear the stream down: a
// failed delivery is logged and the record's deliveryStatus keeps it
// from being half-sent on a later replay.
func (n *Notifier) handle(ctx context.Context, data []byte) {
	var ev event
	if err := json.Unmarshal(data, &ev); err != nil {
		slog.Warn("notifier: undecodable event", "error", err)
		return
	}
	if ev.GenerationID == "" {
		slog.Warn("notifier: event without generation id", "type", ev.Type)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	switch ev.Type {
	case eventCompleted:
		if err := n.sink.DeliverCompleted(ctx, ev.GenerationID); err != nil {
			slog.Error("delivery failed",
				"generation_id", ev.GenerationID,
				"run_id", ev.RunID,
				"error", err)
		}
	case eventFailed:
		if err := n.sink.NotifyFailure(ctx, ev.GenerationID); err != nil {
			slog.Error("failure notice failed",
				"generation_id", ev.GenerationID,
				"run_id", ev.RunID,
				"error", err)
		}
	default:
		slog.Debug("notifier: unknown event type skipped", "type", ev.Type)
	}
}
