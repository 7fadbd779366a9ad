package delivery

import (
	"context"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
	"github.com/nextlevelbuilder/musebot/internal/telegram/telegramtest"
)

type fakeAPI struct {
	recs    map[string]*dataapi.GenerationRecord
	patches []map[string]any
}

func (f *fakeAPI) Generation(ctx context.Context, id string) (*dataapi.GenerationRecord, error) {
	rec, ok := f.recs[id]
	if !ok {
		return nil, &dataapi.APIError{Status: 404, Message: "generation not found"}
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeAPI) UpdateGeneration(ctx context.Context, id string, patch map[string]any) error {
	f.patches = append(f.patches, patch)
	if rec, ok := f.recs[id]; ok {
		if status, ok := patch["deliveryStatus"].(string); ok {
			rec.DeliveryStatus = status
		}
	}
	return nil
}

// TestDeliverCompleted verifies the happy path: card sent to the
// notification target and the record marked delivered.
func TestDeliverCompleted(t *testing.T) {
	api := &fakeAPI{recs: map[string]*dataapi.GenerationRecord{"gen-1": completedRecord()}}
	rec := telegramtest.New()
	d := NewDeliverer(api, rec)

	if err := d.DeliverCompleted(context.Background(), "gen-1"); err != nil {
		t.Fatalf("DeliverCompleted: %v", err)
	}

	sent := rec.LastSent()
	if sent == nil {
		t.Fatal("nothing sent")
	}
	if sent.Kind != "photo" || sent.ChatID != 555 || sent.ReplyTo != 90 {
		t.Errorf("sent = %+v", sent)
	}
	if sent.Keyboard == nil {
		t.Error("card sent without keyboard")
	}
	if api.recs["gen-1"].DeliveryStatus != dataapi.DeliveryDelivered {
		t.Errorf("delivery status = %q", api.recs["gen-1"].DeliveryStatus)
	}
}

// TestDeliverSkipsDelivered verifies that a replayed completion event
// cannot produce a second card.
func TestDeliverSkipsDelivered(t *testing.T) {
	done := completedRecord()
	done.DeliveryStatus = dataapi.DeliveryDelivered
	api := &fakeAPI{recs: map[string]*dataapi.GenerationRecord{"gen-1": done}}
	rec := telegramtest.New()
	d := NewDeliverer(api, rec)

	if err := d.DeliverCompleted(context.Background(), "gen-1"); err != nil {
		t.Fatalf("DeliverCompleted: %v", err)
	}
	if len(rec.Sent) != 0 {
		t.Errorf("redelivered: %+v", rec.Sent)
	}
	if len(api.patches) != 0 {
		t.Errorf("status rewritten: %+v", api.patches)
	}
}

// TestDeliverNonCompleted verifies that a stale completion event for a
// still-running record sends nothing.
func TestDeliverNonCompleted(t *testing.T) {
	running := completedRecord()
	running.Status = dataapi.StatusRunning
	api := &fakeAPI{recs: map[string]*dataapi.GenerationRecord{"gen-1": running}}
	rec := telegramtest.New()
	d := NewDeliverer(api, rec)

	if err := d.DeliverCompleted(context.Background(), "gen-1"); err != nil {
		t.Fatalf("DeliverCompleted: %v", err)
	}
	if len(rec.Sent) != 0 {
		t.Errorf("sent for non-completed record: %+v", rec.Sent)
	}
}

// TestDeliverTargetFallback verifies the chat target chain when no
// notification context was recorded.
func TestDeliverTargetFallback(t *testing.T) {
	legacy := completedRecord()
	legacy.Metadata.Notification = nil
	legacy.Metadata.TelegramChatID = 777
	legacy.Metadata.TelegramMessageID = 12
	api := &fakeAPI{recs: map[string]*dataapi.GenerationRecord{"gen-1": legacy}}
	rec := telegramtest.New()
	d := NewDeliverer(api, rec)

	if err := d.DeliverCompleted(context.Background(), "gen-1"); err != nil {
		t.Fatalf("DeliverCompleted: %v", err)
	}
	sent := rec.LastSent()
	if sent == nil || sent.ChatID != 777 || sent.ReplyTo != 12 {
		t.Errorf("sent = %+v", sent)
	}
}

// TestNotifyFailure verifies the failure notice content and once-only
// marking.
func TestNotifyFailure(t *testing.T) {
	failed := completedRecord()
	failed.Status = dataapi.StatusFailed
	failed.StatusReason = "out of credits"
	api := &fakeAPI{recs: map[string]*dataapi.GenerationRecord{"gen-1": failed}}
	rec := telegramtest.New()
	d := NewDeliverer(api, rec)

	if err := d.NotifyFailure(context.Background(), "gen-1"); err != nil {
		t.Fatalf("NotifyFailure: %v", err)
	}
	sent := rec.LastSent()
	if sent == nil || sent.Kind != "text" {
		t.Fatalf("sent = %+v", sent)
	}
	if !strings.Contains(sent.Text, "😿") || !strings.Contains(sent.Text, "out of credits") {
		t.Errorf("failure text = %q", sent.Text)
	}
	if api.recs["gen-1"].DeliveryStatus != dataapi.DeliveryDelivered {
		t.Errorf("delivery status = %q", api.recs["gen-1"].DeliveryStatus)
	}

	if err := d.NotifyFailure(context.Background(), "gen-1"); err != nil {
		t.Fatalf("second NotifyFailure: %v", err)
	}
	if len(rec.Sent) != 1 {
		t.Errorf("failure notified twice: %+v", rec.Sent)
	}
}
