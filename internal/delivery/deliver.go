package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
	"github.com/nextlevelbuilder/musebot/internal/markup"
	"github.com/nextlevelbuilder/musebot/internal/telegram"
)

// API is the slice of the data service the deliverer needs.
type API interface {
	Generation(ctx context.Context, id string) (*dataapi.GenerationRecord, error)
	UpdateGeneration(ctx context.Context, id string, patch map[string]any) error
}

// Deliverer sends finished generations to their originating chats.
type Deliverer struct {
	api API
	tg  telegram.API
}

// NewDeliverer builds a deliverer over the data service and transport.
func NewDeliverer(api API, tg telegram.API) *Deliverer {
	return &Deliverer{api: api, tg: tg}
}

// DeliverCompleted fetches a completed generation and sends its result
// card. Records already marked delivered are skipped, so replayed
// completion events cannot double-post.
func (d *Deliverer) DeliverCompleted(ctx context.Context, generationID string) error {
	rec, err := d.api.Generation(ctx, generationID)
	if err != nil {
		return fmt.Errorf("load generation %s: %w", generationID, err)
	}
	if rec.DeliveryStatus == dataapi.DeliveryDelivered {
		slog.Debug("generation already delivered", "generation_id", generationID)
		return nil
	}
	if rec.Status != dataapi.StatusCompleted {
		slog.Warn("completion event for non-completed generation",
			"generation_id", generationID,
			"status", rec.Status)
		return nil
	}

	chatID, replyTo := target(rec)
	if chatID == 0 {
		slog.Warn("generation has no delivery target", "generation_id", generationID)
		d.markDelivery(ctx, rec.ID, dataapi.DeliveryFailed)
		return nil
	}

	if _, err := d.SendCard(ctx, rec, chatID, replyTo); err != nil {
		d.markDelivery(ctx, rec.ID, dataapi.DeliveryFailed)
		return fmt.Errorf("deliver generation %s: %w", generationID, err)
	}

	d.markDelivery(ctx, rec.ID, dataapi.DeliveryDelivered)
	slog.Info("generation delivered",
		"generation_id", generationID,
		"chat_id", chatID,
		"tool", rec.ToolDisplayName)
	return nil
}

// NotifyFailure tells the originating chat that a generation failed.
// Failure notices follow the same once-only rule as result cards.
func (d *Deliverer) NotifyFailure(ctx context.Context, generationID string) error {
	rec, err := d.api.Generation(ctx, generationID)
	if err != nil {
		return fmt.Errorf("load generation %s: %w", generationID, err)
	}
	if rec.DeliveryStatus == dataapi.DeliveryDelivered {
		slog.Debug("failure already notified", "generation_id", generationID)
		return nil
	}

	chatID, replyTo := target(rec)
	if chatID == 0 {
		slog.Warn("failed generation has no delivery target", "generation_id", generationID)
		return nil
	}

	text := markup.Escapef("😿 %s failed.", rec.ToolDisplayName)
	if rec.StatusReason != "" {
		reason := markup.RedactFileURL(rec.StatusReason)
		text = markup.Join(text, markup.Raw("\n"), markup.Escape(reason))
	}
	_, err = d.tg.SendMessage(ctx, telegram.SendParams{
		ChatID:  chatID,
		ReplyTo: replyTo,
		Text:    text,
	})
	if err != nil {
		return fmt.Errorf("notify failure for %s: %w", generationID, err)
	}

	d.markDelivery(ctx, rec.ID, dataapi.DeliveryDelivered)
	return nil
}

// SendCard renders and sends the result card for rec. Used by delivery
// and by the restore action that rebuilds a card after a sub-menu.
func (d *Deliverer) SendCard(ctx context.Context, rec *dataapi.GenerationRecord, chatID int64, replyTo int) (*telego.Message, error) {
	card := Build(rec)
	switch card.Kind {
	case KindPhoto:
		return d.tg.SendPhoto(ctx, telegram.MediaParams{
			ChatID:   chatID,
			ReplyTo:  replyTo,
			FileURL:  card.FileURL,
			Caption:  card.Text,
			Keyboard: card.Keyboard,
		})
	case KindAnimation:
		return d.tg.SendAnimation(ctx, telegram.MediaParams{
			ChatID:   chatID,
			ReplyTo:  replyTo,
			FileURL:  card.FileURL,
			Caption:  card.Text,
			Keyboard: card.Keyboard,
		})
	case KindVideo:
		return d.tg.SendVideo(ctx, telegram.MediaParams{
			ChatID:   chatID,
			ReplyTo:  replyTo,
			FileURL:  card.FileURL,
			Caption:  card.Text,
			Keyboard: card.Keyboard,
		})
	default:
		return d.tg.SendMessage(ctx, telegram.SendParams{
			ChatID:   chatID,
			ReplyTo:  replyTo,
			Text:     card.Text,
			Keyboard: card.Keyboard,
		})
	}
}

func (d *Deliverer) markDelivery(ctx context.Context, id, status string) {
	if err := d.api.UpdateGeneration(ctx, id, map[string]any{"deliveryStatus": status}); err != nil {
		slog.Warn("failed to update delivery status",
			"generation_id", id,
			"status", status,
			"error", err)
	}
}

// target picks the chat and reply anchor for a record, preferring the
// notification context recorded at submission.
func target(rec *dataapi.GenerationRecord) (int64, int) {
	meta := rec.Metadata
	if meta.Notification != nil && meta.Notification.ChatID != 0 {
		return meta.Notification.ChatID, meta.Notification.ReplyToMessageID
	}
	if meta.TelegramChatID != 0 {
		return meta.TelegramChatID, meta.TelegramMessageID
	}
	if meta.PlatformContext != nil && meta.PlatformContext.ChatID != 0 {
		return meta.PlatformContext.ChatID, meta.PlatformContext.MessageID
	}
	return 0, 0
}
