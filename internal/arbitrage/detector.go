package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ewhitmore/forexbot/internal/domain"
	"github.com/ewhitmore/forexbot/internal/graph"
)

// Config holds the detection parameters.
type Config struct {
	// Base is the currency every reported cycle starts and ends in.
	Base domain.Currency

	// Tolerance is the floating-point epsilon for the relaxation test; only
	// improvements greater than this count, so near-zero cycles are not
	// reported as arbitrage.
	Tolerance float64

	// InForceWindow is how long a quote's edges stay in the graph before
	// being evicted as stale.
	InForceWindow time.Duration

	// MaxQuoteSkew is the maximum difference between a quote's own timestamp
	// and the batch receive time before the quote is dropped as out of
	// sequence.
	MaxQuoteSkew time.Duration

	// TradeAmount is the notional used to report compounded value across a
	// detected cycle.
	TradeAmount float64
}

// Status is a point-in-time snapshot of the detector for the status endpoint.
type Status struct {
	Base          domain.Currency `json:"base"`
	Vertices      int             `json:"vertices"`
	Edges         int             `json:"edges"`
	Markets       int             `json:"markets"`
	QuotesApplied int64           `json:"quotes_applied"`
	QuotesSkipped int64           `json:"quotes_skipped"`
	Detections    int64           `json:"detections"`
	LastDetection time.Time       `json:"last_detection"`
}

// Detector owns the currency graph and the staleness tracker and runs one
// detection pass per quote batch: apply, evict, search, reconstruct. All
// graph access is serialized behind the detector's mutex, which is the single
// mutual-exclusion boundary between the feed goroutine and HTTP status reads.
type Detector struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	graph   *graph.Graph
	tracker *Tracker

	quotesApplied int64
	quotesSkipped int64
	detections    int64
	lastDetection time.Time
}

// NewDetector creates a Detector with an empty graph.
func NewDetector(cfg Config, logger *slog.Logger) *Detector {
	g := graph.New()
	return &Detector{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "detector")),
		graph:   g,
		tracker: NewTracker(g),
	}
}

// HandleQuotes runs one full detection pass over a decoded quote batch
// received at receivedAt. It applies in-sequence quotes, evicts stale
// markets, runs the shortest-path engine from the base currency, and, when a
// negative-cycle witness comes back, reconstructs and prices the trading
// cycle. It returns nil when no arbitrage is present. A non-nil error always
// wraps domain.ErrInvariantViolation and is fatal to the caller.
func (d *Detector) HandleQuotes(ctx context.Context, quotes []domain.Quote, receivedAt time.Time) (*domain.Opportunity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, q := range quotes {
		skew := receivedAt.Sub(q.Timestamp)
		if skew < 0 {
			skew = -skew
		}
		if skew > d.cfg.MaxQuoteSkew {
			d.quotesSkipped++
			d.logger.DebugContext(ctx, "ignoring out of sequence quote",
				slog.String("pair", q.Pair.String()),
				slog.Duration("skew", skew),
			)
			continue
		}
		d.tracker.ApplyQuote(q)
		d.quotesApplied++
	}

	for _, stale := range d.tracker.EvictStale(receivedAt, d.cfg.InForceWindow) {
		d.logger.InfoContext(ctx, "removed stale quote",
			slog.String("market", stale.Market.String()),
			slog.Duration("age", stale.Age),
		)
	}

	_, pred, witness := graph.ShortestPaths(d.graph, d.cfg.Base, d.cfg.Tolerance)
	if witness == nil {
		return nil, nil
	}

	cycle, err := ReconstructCycle(pred, d.graph, d.cfg.Base)
	if err != nil {
		return nil, err
	}

	opp, err := d.price(cycle, receivedAt)
	if err != nil {
		return nil, err
	}

	d.detections++
	d.lastDetection = receivedAt
	d.logger.InfoContext(ctx, "arbitrage detected",
		slog.String("base", string(opp.Base)),
		slog.Int("legs", len(opp.Steps)),
		slog.Float64("start_amount", opp.StartAmount),
		slog.Float64("end_amount", opp.EndAmount),
	)
	return opp, nil
}

// price turns a reconstructed cycle into an Opportunity by reading each leg's
// weight back out of the graph and compounding the configured notional. Every
// leg, including the wraparound back to the base currency, must exist; a
// missing one means the reconstructor's contract was broken.
func (d *Detector) price(cycle []domain.Currency, detectedAt time.Time) (*domain.Opportunity, error) {
	seq := append([]domain.Currency{d.cfg.Base}, cycle...)
	steps := make([]domain.Step, 0, len(seq))
	amount := d.cfg.TradeAmount

	for i := range seq {
		from := seq[i]
		to := seq[(i+1)%len(seq)] // wraps back to the base currency
		w, err := d.graph.Weight(from, to)
		if err != nil {
			return nil, fmt.Errorf("arbitrage: cycle leg %s->%s missing from graph: %w", from, to, domain.ErrInvariantViolation)
		}
		rate := math.Pow(10, -w)
		amount *= rate
		steps = append(steps, domain.Step{From: from, To: to, Weight: w, Rate: rate})
	}

	return &domain.Opportunity{
		ID:          uuid.Must(uuid.NewRandom()).String(),
		Base:        d.cfg.Base,
		Cycle:       cycle,
		Steps:       steps,
		StartAmount: d.cfg.TradeAmount,
		EndAmount:   amount,
		DetectedAt:  detectedAt,
	}, nil
}

// Status returns a consistent snapshot of detector counters and graph size.
func (d *Detector) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Base:          d.cfg.Base,
		Vertices:      d.graph.VertexCount(),
		Edges:         d.graph.EdgeCount(),
		Markets:       d.tracker.MarketCount(),
		QuotesApplied: d.quotesApplied,
		QuotesSkipped: d.quotesSkipped,
		Detections:    d.detections,
		LastDetection: d.lastDetection,
	}
}
