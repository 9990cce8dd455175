package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ewhitmore/forexbot/internal/arbitrage"
	"github.com/ewhitmore/forexbot/internal/domain"
	"github.com/ewhitmore/forexbot/internal/feed"
	"github.com/ewhitmore/forexbot/internal/server"
	"github.com/ewhitmore/forexbot/internal/server/handler"
	"github.com/ewhitmore/forexbot/internal/server/ws"
)

// SubscribeMode runs the full detection loop: subscribe to the provider's UDP
// quote feed, apply each batch to the exchange graph, and report every
// profitable cycle to the configured sinks. This is the primary mode.
func (a *App) SubscribeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting subscribe mode",
		slog.String("provider", a.cfg.Provider.Addr),
		slog.String("base_currency", a.cfg.Detector.BaseCurrency),
	)

	// The subscriber owns the lifecycle: when the feed goes quiet and the
	// subscriber returns, everything else shuts down too.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	det := arbitrage.NewDetector(arbitrage.Config{
		Base:          domain.Currency(strings.ToUpper(a.cfg.Detector.BaseCurrency)),
		Tolerance:     a.cfg.Detector.Tolerance,
		InForceWindow: a.cfg.Detector.InForceWindow.Duration,
		MaxQuoteSkew:  a.cfg.Detector.MaxQuoteSkew.Duration,
		TradeAmount:   a.cfg.Detector.TradeAmount,
	}, a.logger)

	// WebSocket hub: only when the HTTP server is on. The reporter pushes
	// detections into it directly, so no Redis bridge here — wiring the bus
	// as well would deliver every detection twice.
	var hub *ws.Hub
	var broadcaster arbitrage.Broadcaster
	if a.cfg.Server.Enabled {
		hub = ws.NewHub(nil, a.logger, ws.Config{
			Mode:         a.cfg.Mode,
			BaseCurrency: a.cfg.Detector.BaseCurrency,
			StartedAt:    time.Now().UTC(),
		})
		broadcaster = hub
		g.Go(func() error {
			err := hub.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	rep := arbitrage.NewReporter(deps.OpportunityStore, deps.SignalBus, broadcaster, deps.Notifier, a.logger)

	// A detector error means the engine/reconstructor contract is broken;
	// it must end the run, not be logged away. The feed handler has no error
	// return, so the failure travels through this channel into the group.
	detectFailed := make(chan error, 1)
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case err := <-detectFailed:
			return fmt.Errorf("app: detection: %w", err)
		}
	})

	onBatch := a.batchHandler(det, rep, deps.RateCache, detectFailed)

	sub := feed.NewSubscriber(
		a.cfg.Provider.Addr,
		a.cfg.Provider.ListenAddr,
		a.cfg.Provider.RenewEvery.Duration,
		a.cfg.Provider.IdleTimeout.Duration,
		onBatch,
		a.logger,
	)
	g.Go(func() error {
		defer sub.Close()
		defer cancel()
		err := sub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Archival loop: periodically export aged opportunity rows to object
	// storage, guarded by a distributed lock when Redis is available so only
	// one instance archives at a time.
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, det, hub)
	}

	return g.Wait()
}

// quoteDetector and opportunityReporter are the slices of the detector and
// reporter the batch handler needs.
type quoteDetector interface {
	HandleQuotes(ctx context.Context, quotes []domain.Quote, receivedAt time.Time) (*domain.Opportunity, error)
}

type opportunityReporter interface {
	Report(ctx context.Context, opp *domain.Opportunity)
}

// batchHandler builds the per-datagram callback: cache the raw rates, run a
// detection pass, and report any opportunity. A cache write failure only
// costs the dashboard a data point and is logged; a detector error is sent
// to fatal and ends the run.
func (a *App) batchHandler(det quoteDetector, rep opportunityReporter, rates domain.RateCache, fatal chan<- error) feed.QuoteBatchHandler {
	return func(ctx context.Context, quotes []domain.Quote, receivedAt time.Time) {
		if rates != nil {
			for _, q := range quotes {
				if err := rates.SetRate(ctx, q.Pair, q.Rate, q.Timestamp); err != nil {
					a.logger.WarnContext(ctx, "rate cache update failed",
						slog.String("pair", q.Pair.String()),
						slog.String("error", err.Error()),
					)
				}
			}
		}

		opp, err := det.HandleQuotes(ctx, quotes, receivedAt)
		if err != nil {
			a.logger.ErrorContext(ctx, "detection pass failed",
				slog.Int("quotes", len(quotes)),
				slog.String("error", err.Error()),
			)
			select {
			case fatal <- err:
			default:
			}
			return
		}
		if opp != nil {
			rep.Report(ctx, opp)
		}
	}
}

// MonitorMode serves the read-only API over previously recorded detections:
// the HTTP endpoints backed by Postgres plus the WebSocket hub bridging live
// events from Redis. No quote feed is consumed and no detection runs.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	if deps.SignalBus == nil {
		a.logger.WarnContext(ctx, "monitor mode without redis: websocket clients will see no live events")
	}

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:         a.cfg.Mode,
		BaseCurrency: a.cfg.Detector.BaseCurrency,
		StartedAt:    time.Now().UTC(),
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Monitor mode exists to serve the API, so the server runs regardless of
	// server.enabled.
	a.startHTTPServer(ctx, g, deps, nil, hub)

	return g.Wait()
}

// runArchiveLoop exports rows older than the retention window on every tick.
// When a lock manager is available the run is skipped if another instance
// already holds the archive lock.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	runOnce := func() {
		if deps.LockManager != nil {
			release, err := deps.LockManager.Acquire(ctx, "archive", interval)
			if err != nil {
				if errors.Is(err, domain.ErrLockHeld) {
					a.logger.DebugContext(ctx, "archive lock held elsewhere, skipping run")
				} else {
					a.logger.WarnContext(ctx, "archive lock acquire failed",
						slog.String("error", err.Error()),
					)
				}
				return
			}
			defer release()
		}

		cutoff := time.Now().UTC().Add(-retention)
		archived, err := deps.Archiver.ArchiveBefore(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive run failed",
				slog.Time("cutoff", cutoff),
				slog.String("error", err.Error()),
			)
			return
		}
		if archived > 0 {
			a.logger.InfoContext(ctx, "archived aged opportunities",
				slog.Int64("rows", archived),
				slog.Time("cutoff", cutoff),
			)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runOnce()
		}
	}
}

// startHTTPServer adds the HTTP server goroutines to the given errgroup. det
// and hub may be nil; the corresponding endpoints degrade gracefully. The
// server is shut down when the context is cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	det handler.DetectorStatus,
	hub *ws.Hub,
) {
	oh := handler.NewOpportunityHandler(deps.OpportunityStore, a.logger)
	if deps.SignalBus != nil {
		oh = oh.WithStreamHistory(deps.SignalBus)
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:        handler.NewHealthHandler(),
			Status:        handler.NewStatusHandler(det, a.cfg.Mode, time.Now().UTC()),
			Opportunities: oh,
			Hub:           hub,
		},
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
