package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
)

type fakeUsers struct {
	calls  int
	err    error
	lastPC *dataapi.PlatformContext
	events []dataapi.Event
}

func (f *fakeUsers) FindOrCreateUser(ctx context.Context, platform, platformID string, pc *dataapi.PlatformContext) (*dataapi.ResolveResult, error) {
	f.calls++
	f.lastPC = pc
	if f.err != nil {
		return nil, f.err
	}
	return &dataapi.ResolveResult{MasterAccountID: "maid-" + platformID, IsNewUser: f.calls == 1}, nil
}

func (f *fakeUsers) LogEvent(ctx context.Context, ev dataapi.Event) error {
	f.events = append(f.events, ev)
	return nil
}

// TestResolveCaches verifies that repeated resolves for the same user hit
// the data service only once.
func TestResolveCaches(t *testing.T) {
	src := &fakeUsers{}
	r := NewResolver(src)
	user := &telego.User{ID: 777, Username: "alice", FirstName: "Alice"}

	for i := 0; i < 3; i++ {
		maid, err := r.Resolve(context.Background(), user, -100, 5)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if maid != "maid-777" {
			t.Errorf("maid = %q", maid)
		}
	}
	if src.calls != 1 {
		t.Errorf("data service calls = %d, want 1", src.calls)
	}
	if src.lastPC == nil || src.lastPC.Username != "alice" || src.lastPC.ChatID != -100 {
		t.Errorf("platform context = %+v", src.lastPC)
	}
	if len(src.events) != 1 || src.events[0].Type != "session_started" {
		t.Errorf("events = %+v, want one session_started", src.events)
	}
}

// TestResolveErrorNotCached verifies that failures are not cached and the
// next attempt retries the data service.
func TestResolveErrorNotCached(t *testing.T) {
	src := &fakeUsers{err: errors.New("service down")}
	r := NewResolver(src)
	user := &telego.User{ID: 1}

	if _, err := r.Resolve(context.Background(), user, 1, 1); err == nil {
		t.Fatal("expected error")
	}

	src.err = nil
	maid, err := r.Resolve(context.Background(), user, 1, 1)
	if err != nil || maid != "maid-1" {
		t.Errorf("retry = %q, %v", maid, err)
	}
	if src.calls != 2 {
		t.Errorf("calls = %d, want 2", src.calls)
	}
}

// TestForget verifies cache invalidation.
func TestForget(t *testing.T) {
	src := &fakeUsers{}
	r := NewResolver(src)
	user := &telego.User{ID: 9}

	if _, err := r.Resolve(context.Background(), user, 1, 1); err != nil {
		t.Fatal(err)
	}
	r.Forget(9)
	if _, err := r.Resolve(context.Background(), user, 1, 1); err != nil {
		t.Fatal(err)
	}
	if src.calls != 2 {
		t.Errorf("calls = %d, want 2 after Forget", src.calls)
	}
}

// TestResolveNilUser verifies the guard for updates without a sender.
func TestResolveNilUser(t *testing.T) {
	r := NewResolver(&fakeUsers{})
	if _, err := r.Resolve(context.Background(), nil, 1, 1); err == nil {
		t.Error("expected error for nil user")
	}
}
