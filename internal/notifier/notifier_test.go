package notifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

type recordingSink struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	calls     chan string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{calls: make(chan string, 16)}
}

func (s *recordingSink) DeliverCompleted(ctx context.Context, id string) error {
	s.mu.Lock()
	s.completed = append(s.completed, id)
	s.mu.Unlock()
	s.calls <- "completed:" + id
	return nil
}

func (s *recordingSink) NotifyFailure(ctx context.Context, id string) error {
	s.mu.Lock()
	s.failed = append(s.failed, id)
	s.mu.Unlock()
	s.calls <- "failed:" + id
	return nil
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitCalls(t *testing.T, ch <-chan string, want ...string) {
	t.Helper()
	for _, w := range want {
		select {
		case got := <-ch:
			if got != w {
				t.Fatalf("call = %q, want %q", got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
}

// TestRunDispatchesEvents verifies the auth header, routing of completed
// and failed events to the sink, and that unknown or malformed frames
// are skipped without breaking the stream.
func TestRunDispatchesEvents(t *testing.T) {
	headerCh := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headerCh <- r.Header.Get("X-Internal-Client-Key")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()

		frames := []string{
			`{"type":"generation.completed","generationId":"gen-1","runId":"run-9"}`,
			`not json at all`,
			`{"type":"render.progress","generationId":"gen-2"}`,
			`{"type":"generation.failed","generationId":"gen-3"}`,
		}
		for _, f := range frames {
			if err := conn.Write(context.Background(), websocket.MessageText, []byte(f)); err != nil {
				return
			}
		}
		conn.Read(context.Background()) // hold open until the client goes away
	}))
	defer srv.Close()

	sink := newRecordingSink()
	n := New(wsURL(srv), "svc-key", sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	waitCalls(t, sink.calls, "completed:gen-1", "failed:gen-3")

	if got := <-headerCh; got != "svc-key" {
		t.Errorf("client key header = %q", got)
	}
	sink.mu.Lock()
	if len(sink.completed) != 1 || len(sink.failed) != 1 {
		t.Errorf("completed = %v failed = %v", sink.completed, sink.failed)
	}
	sink.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

// TestRunStopsDuringBackoff verifies cancellation is honored while
// waiting to reconnect after a failed dial.
func TestRunStopsDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New(wsURL(srv), "svc-key", newRecordingSink())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	time.Sleep(50 * time.Millisecond) // let the first dial fail
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop during backoff")
	}
}

// TestHandleSkipsEventsWithoutID verifies an event missing its
// generation id never reaches the sink.
func TestHandleSkipsEventsWithoutID(t *testing.T) {
	sink := newRecordingSink()
	n := New("ws://unused", "k", sink)

	n.handle(context.Background(), []byte(`{"type":"generation.completed"}`))
	n.handle(context.Background(), []byte(`{"type":"generation.failed","generationId":""}`))

	select {
	case got := <-sink.calls:
		t.Errorf("sink called with %q", got)
	default:
	}
}
