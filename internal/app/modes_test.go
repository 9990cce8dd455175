package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ewhitmore/forexbot/internal/config"
	"github.com/ewhitmore/forexbot/internal/domain"
)

type stubDetector struct {
	opp *domain.Opportunity
	err error
}

func (s *stubDetector) HandleQuotes(ctx context.Context, quotes []domain.Quote, receivedAt time.Time) (*domain.Opportunity, error) {
	return s.opp, s.err
}

type stubReporter struct {
	reported []*domain.Opportunity
}

func (s *stubReporter) Report(ctx context.Context, opp *domain.Opportunity) {
	s.reported = append(s.reported, opp)
}

func testApp() *App {
	cfg := config.Defaults()
	return New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testBatch() []domain.Quote {
	return []domain.Quote{{
		Pair:      domain.Pair{Base: "USD", Quote: "EUR"},
		Rate:      0.9,
		Timestamp: time.Now().UTC(),
	}}
}

// A detector error is fatal to the run: the handler must surface it on the
// fatal channel and must not keep reporting.
func TestBatchHandlerPropagatesDetectorFailure(t *testing.T) {
	det := &stubDetector{
		err: fmt.Errorf("arbitrage: USD has no predecessor: %w", domain.ErrInvariantViolation),
	}
	rep := &stubReporter{}
	fatal := make(chan error, 1)

	handle := testApp().batchHandler(det, rep, nil, fatal)
	handle(context.Background(), testBatch(), time.Now().UTC())

	select {
	case err := <-fatal:
		if !errors.Is(err, domain.ErrInvariantViolation) {
			t.Fatalf("fatal error = %v, want ErrInvariantViolation", err)
		}
	default:
		t.Fatal("detector failure was not surfaced on the fatal channel")
	}
	if len(rep.reported) != 0 {
		t.Errorf("reported %d opportunities after a fatal detector error", len(rep.reported))
	}
}

// Repeated failures must not block the handler once the fatal slot is full.
func TestBatchHandlerDoesNotBlockOnSecondFailure(t *testing.T) {
	det := &stubDetector{err: fmt.Errorf("detect: %w", domain.ErrInvariantViolation)}
	fatal := make(chan error, 1)

	handle := testApp().batchHandler(det, &stubReporter{}, nil, fatal)
	handle(context.Background(), testBatch(), time.Now().UTC())

	done := make(chan struct{})
	go func() {
		handle(context.Background(), testBatch(), time.Now().UTC())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler blocked with the fatal channel already full")
	}
}

func TestBatchHandlerReportsDetections(t *testing.T) {
	opp := &domain.Opportunity{ID: "op-1"}
	det := &stubDetector{opp: opp}
	rep := &stubReporter{}
	fatal := make(chan error, 1)

	handle := testApp().batchHandler(det, rep, nil, fatal)
	handle(context.Background(), testBatch(), time.Now().UTC())

	if len(rep.reported) != 1 || rep.reported[0] != opp {
		t.Fatalf("reported = %v, want exactly the detected opportunity", rep.reported)
	}
	select {
	case err := <-fatal:
		t.Fatalf("unexpected fatal error: %v", err)
	default:
	}
}
