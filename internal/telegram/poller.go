package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mymmrac/telego"
)

// dedupeSize bounds the recent update id cache. Telegram redelivers
// updates after reconnects; the cache keeps those from double-dispatching.
const dedupeSize = 2048

// Handler consumes one update. Implementations must be safe for
// concurrent calls.
type Handler interface {
	HandleUpdate(ctx context.Context, update telego.Update)
}

// Poller runs long polling and fans updates out to a worker pool.
type Poller struct {
	client  *Client
	handler Handler
	workers int
	timeout int
	seen    *lru.Cache[int, struct{}]
}

// NewPoller builds a poller with the configured worker count and long
// poll timeout.
func NewPoller(client *Client, handler Handler, workers, timeoutSec int) *Poller {
	if workers <= 0 {
		workers = 8
	}
	if timeoutSec <= 0 {
		timeoutSec = 30
	}
	seen, _ := lru.New[int, struct{}](dedupeSize)
	return &Poller{
		client:  client,
		handler: handler,
		workers: workers,
		timeout: timeoutSec,
		seen:    seen,
	}
}

// Run polls for updates until ctx is done. Updates are dispatched from a
// fixed pool of workers; the per-chat ordering Telegram provides is traded
// for throughput, which the interaction model tolerates.
func (p *Poller) Run(ctx context.Context) error {
	updates, err := p.client.Bot().UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: p.timeout,
		AllowedUpdates: []string{
			"message",
			"callback_query",
		},
	})
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}
	slog.Info("telegram polling started",
		"username", p.client.Username(),
		"workers", p.workers)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for update := range updates {
				if existed, _ := p.seen.ContainsOrAdd(update.UpdateID, struct{}{}); existed {
					slog.Debug("duplicate update skipped", "update_id", update.UpdateID)
					continue
				}
				p.handler.HandleUpdate(ctx, update)
			}
		}()
	}
	wg.Wait()

	slog.Info("telegram polling stopped")
	return ctx.Err()
}
