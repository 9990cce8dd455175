// Package app owns the application lifecycle: it wires the quote subscriber,
// detector, stores, caches, archiver, and notifier together and runs them in
// the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ewhitmore/forexbot/internal/config"
)

// App holds the configuration, the root logger, and the cleanup functions
// accumulated while wiring. Closers run in reverse order on shutdown.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	closeOnce sync.Once
	closers   []func()
}

// New creates an App. Nothing is wired until Run.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies and blocks in the selected mode until the context
// is cancelled or the quote feed goes quiet.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)

	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", mode),
		slog.String("log_level", a.cfg.LogLevel),
	)
	a.logger.DebugContext(ctx, "active configuration",
		slog.Any("config", config.RedactedConfig(a.cfg)))

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch mode {
	case "subscribe":
		return a.SubscribeMode(ctx, deps)
	case "monitor":
		return a.MonitorMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close releases wired resources in reverse order. Safe to call more than
// once; only the first call does anything.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.logger.Info("shutting down application")
		for i := len(a.closers) - 1; i >= 0; i-- {
			a.closers[i]()
		}
		a.closers = nil
	})
}
