package arbitrage

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/ewhitmore/forexbot/internal/domain"
)

func testDetector() *Detector {
	return NewDetector(Config{
		Base:          "USD",
		Tolerance:     1e-6,
		InForceWindow: 1500 * time.Millisecond,
		MaxQuoteSkew:  2 * time.Second,
		TradeAmount:   100,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandleQuotesDetectsProfitableCycle(t *testing.T) {
	d := testDetector()

	// 0.7 * 2.0 * 0.8 = 1.12 > 1: a negative cycle through USD.
	quotes := []domain.Quote{
		{Timestamp: t0, Pair: domain.Pair{Base: "USD", Quote: "GBP"}, Rate: 0.7},
		{Timestamp: t0, Pair: domain.Pair{Base: "GBP", Quote: "AUD"}, Rate: 2.0},
		{Timestamp: t0, Pair: domain.Pair{Base: "AUD", Quote: "USD"}, Rate: 0.8},
	}

	opp, err := d.HandleQuotes(context.Background(), quotes, t0)
	if err != nil {
		t.Fatalf("HandleQuotes: %v", err)
	}
	if opp == nil {
		t.Fatal("no opportunity reported for a profitable cycle")
	}
	if opp.Base != "USD" {
		t.Errorf("Base = %s, want USD", opp.Base)
	}
	if opp.ID == "" {
		t.Error("opportunity ID is empty")
	}
	if len(opp.Steps) != len(opp.Cycle)+1 {
		t.Errorf("got %d steps for a %d-hop cycle, want %d", len(opp.Steps), len(opp.Cycle), len(opp.Cycle)+1)
	}

	// Steps must start and end at the base and compound consistently.
	if opp.Steps[0].From != "USD" {
		t.Errorf("first step starts at %s, want USD", opp.Steps[0].From)
	}
	if last := opp.Steps[len(opp.Steps)-1]; last.To != "USD" {
		t.Errorf("last step ends at %s, want USD", last.To)
	}
	amount := opp.StartAmount
	for _, s := range opp.Steps {
		amount *= s.Rate
	}
	if !approx(amount, opp.EndAmount, 1e-9) {
		t.Errorf("EndAmount = %v, compounded steps give %v", opp.EndAmount, amount)
	}

	st := d.Status()
	if st.QuotesApplied != 3 {
		t.Errorf("QuotesApplied = %d, want 3", st.QuotesApplied)
	}
	if st.Detections != 1 {
		t.Errorf("Detections = %d, want 1", st.Detections)
	}
	if !st.LastDetection.Equal(t0) {
		t.Errorf("LastDetection = %v, want %v", st.LastDetection, t0)
	}
}

func TestHandleQuotesNoArbitrage(t *testing.T) {
	d := testDetector()

	// A single quoted market only ever yields the zero-sum two-cycle,
	// which the tolerance suppresses.
	quotes := []domain.Quote{
		{Timestamp: t0, Pair: domain.Pair{Base: "USD", Quote: "EUR"}, Rate: 0.9},
	}

	opp, err := d.HandleQuotes(context.Background(), quotes, t0)
	if err != nil {
		t.Fatalf("HandleQuotes: %v", err)
	}
	if opp != nil {
		t.Fatalf("opportunity %+v reported with no arbitrage present", opp)
	}
}

func TestHandleQuotesSkipsOutOfSequence(t *testing.T) {
	d := testDetector()

	quotes := []domain.Quote{
		{Timestamp: t0.Add(-5 * time.Second), Pair: domain.Pair{Base: "USD", Quote: "EUR"}, Rate: 0.9},
		{Timestamp: t0.Add(5 * time.Second), Pair: domain.Pair{Base: "USD", Quote: "JPY"}, Rate: 150},
	}

	if _, err := d.HandleQuotes(context.Background(), quotes, t0); err != nil {
		t.Fatalf("HandleQuotes: %v", err)
	}

	st := d.Status()
	if st.QuotesSkipped != 2 {
		t.Errorf("QuotesSkipped = %d, want 2", st.QuotesSkipped)
	}
	if st.QuotesApplied != 0 {
		t.Errorf("QuotesApplied = %d, want 0", st.QuotesApplied)
	}
	if st.Edges != 0 {
		t.Errorf("Edges = %d, want 0", st.Edges)
	}
}

func TestHandleQuotesEvictsStaleMarkets(t *testing.T) {
	d := testDetector()

	if _, err := d.HandleQuotes(context.Background(), []domain.Quote{
		{Timestamp: t0, Pair: domain.Pair{Base: "USD", Quote: "EUR"}, Rate: 0.9},
	}, t0); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if st := d.Status(); st.Markets != 1 {
		t.Fatalf("Markets = %d after first batch, want 1", st.Markets)
	}

	// An empty batch past the in-force window sweeps the market out.
	later := t0.Add(1500*time.Millisecond + time.Millisecond)
	if _, err := d.HandleQuotes(context.Background(), nil, later); err != nil {
		t.Fatalf("empty batch: %v", err)
	}

	st := d.Status()
	if st.Markets != 0 {
		t.Errorf("Markets = %d after window elapsed, want 0", st.Markets)
	}
	if st.Edges != 0 {
		t.Errorf("Edges = %d after window elapsed, want 0", st.Edges)
	}
}

func TestOpportunityProfit(t *testing.T) {
	opp := domain.Opportunity{StartAmount: 100, EndAmount: 112}
	if !approx(opp.Profit(), 12, 1e-9) {
		t.Errorf("Profit = %v, want 12", opp.Profit())
	}
	if !approx(opp.ProfitRatio(), 1.12, 1e-9) {
		t.Errorf("ProfitRatio = %v, want 1.12", opp.ProfitRatio())
	}
}

func TestStepRateMatchesWeight(t *testing.T) {
	d := testDetector()

	opp, err := d.HandleQuotes(context.Background(), []domain.Quote{
		{Timestamp: t0, Pair: domain.Pair{Base: "USD", Quote: "GBP"}, Rate: 0.7},
		{Timestamp: t0, Pair: domain.Pair{Base: "GBP", Quote: "AUD"}, Rate: 2.0},
		{Timestamp: t0, Pair: domain.Pair{Base: "AUD", Quote: "USD"}, Rate: 0.8},
	}, t0)
	if err != nil || opp == nil {
		t.Fatalf("HandleQuotes: opp=%v err=%v", opp, err)
	}

	for _, s := range opp.Steps {
		if !approx(s.Rate, math.Pow(10, -s.Weight), 1e-12) {
			t.Errorf("step %s->%s: rate %v does not match weight %v", s.From, s.To, s.Rate, s.Weight)
		}
	}
}
