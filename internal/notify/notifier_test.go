package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	if r.err != nil {
		return r.err
	}
	r.titles = append(r.titles, title)
	return nil
}

func (r *recordingSender) Name() string { return r.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersByEvent(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"arb_detected"}, discard())

	if err := n.Notify(context.Background(), "arb_detected", "hit", "body"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := n.Notify(context.Background(), "feed_idle", "idle", "body"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(s.titles) != 1 || s.titles[0] != "hit" {
		t.Errorf("delivered titles = %v, want only the allowed event", s.titles)
	}
}

func TestNotifyEmptyFilterAllowsEverything(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discard())

	for _, event := range []string{"arb_detected", "feed_idle", "whatever"} {
		if err := n.Notify(context.Background(), event, event, "body"); err != nil {
			t.Fatalf("Notify(%s): %v", event, err)
		}
	}
	if len(s.titles) != 3 {
		t.Errorf("delivered %d notifications, want 3", len(s.titles))
	}
}

func TestNotifyContinuesPastFailingSender(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), "arb_detected", "title", "body")
	if err == nil {
		t.Fatal("expected combined error from failing sender")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("error %q does not name the failing sender", err)
	}
	if len(good.titles) != 1 {
		t.Error("healthy sender skipped after failure")
	}
}

func TestNotifierNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, discard())
	if err := n.Notify(context.Background(), "arb_detected", "t", "m"); err != nil {
		t.Fatalf("Notify with no senders: %v", err)
	}
}
