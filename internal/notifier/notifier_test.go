package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"edgegrid/internal/events"
	"edgegrid/internal/models"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func reply(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(`{"ok":true}`)), Header: make(http.Header)}
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestTelegramSend(t *testing.T) {
	var gotURL string
	var got map[string]any
	tg := NewTelegram("tok", "42")
	tg.HTTP = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		_ = json.NewDecoder(req.Body).Decode(&got)
		return reply(http.StatusOK), nil
	})}
	if err := tg.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotURL != "https://api.telegram.org/bottok/sendMessage" {
		t.Fatalf("url = %s", gotURL)
	}
	if got["chat_id"] != "42" || got["text"] != "hello" {
		t.Fatalf("payload = %#v", got)
	}
}

func TestTelegramStatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		tg := NewTelegram("tok", "42")
		tg.HTTP = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return reply(tt.status), nil
		})}
		err := tg.Send(context.Background(), "x")
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("status %d: err = %v, want StatusError", tt.status, err)
		}
		if se.Retryable() != tt.retryable {
			t.Fatalf("status %d: retryable = %v, want %v", tt.status, se.Retryable(), tt.retryable)
		}
	}
	if err := NewTelegram("", "").Send(context.Background(), "x"); err == nil {
		t.Fatal("expected error when not configured")
	}
}

type fakeSender struct {
	mu    sync.Mutex
	errs  []error
	calls int
	sent  []string
}

func (f *fakeSender) Send(_ context.Context, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, msg)
	return nil
}

func broadcastEvent(p models.Priority) events.Event {
	ctx := events.WithActor(context.Background(), "op-3")
	return events.New(ctx, time.Now(), events.BroadcastSent, events.EntityBroadcast, "b1", map[string]any{
		"body":             "Road closed on Main St",
		"channels":         []models.Channel{models.ChannelMobile, models.ChannelRadio},
		"priority":         p,
		"duration_minutes": 30,
	})
}

func TestRelayFiltersByPriority(t *testing.T) {
	r := NewRelay(&fakeSender{}, testLogger())
	r.Publish(context.Background(), broadcastEvent(models.PriorityLow))
	r.Publish(context.Background(), broadcastEvent(models.PriorityMedium))
	r.Publish(context.Background(), events.Event{Kind: events.AlertCreated})
	if n := len(r.queue); n != 0 {
		t.Fatalf("queued = %d, want 0", n)
	}
	r.Publish(context.Background(), broadcastEvent(models.PriorityCritical))
	msg := <-r.queue
	want := "[CRITICAL] Road closed on Main St\nChannels: mobile, radio | Duration: 30 min | Issued by op-3"
	if msg != want {
		t.Fatalf("msg = %q, want %q", msg, want)
	}
}

func TestRelayRetriesTransientFailures(t *testing.T) {
	out := &fakeSender{errs: []error{errors.New("connection reset"), &StatusError{Code: 502}}}
	r := NewRelay(out, testLogger())
	r.initial = time.Millisecond
	if err := r.deliver(context.Background(), "hi"); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if out.calls != 3 || len(out.sent) != 1 {
		t.Fatalf("calls = %d sent = %v, want 3 calls and one delivery", out.calls, out.sent)
	}
}

func TestRelayStopsOnPermanentFailure(t *testing.T) {
	out := &fakeSender{errs: []error{&StatusError{Code: 403}}}
	r := NewRelay(out, testLogger())
	if err := r.deliver(context.Background(), "hi"); err == nil {
		t.Fatal("expected error")
	}
	if out.calls != 1 {
		t.Fatalf("calls = %d, want 1", out.calls)
	}
}

func TestRelayRunDelivers(t *testing.T) {
	out := &fakeSender{}
	r := NewRelay(out, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()
	r.Publish(ctx, broadcastEvent(models.PriorityHigh))

	deadline := time.After(2 * time.Second)
	for {
		out.mu.Lock()
		n := len(out.sent)
		out.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("relay did not deliver")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
