package arbitrage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ewhitmore/forexbot/internal/domain"
)

// Channel and stream names for opportunity payloads on the signal bus.
const (
	OpportunityChannel = "arbitrage"
	OpportunityStream  = "arbitrage:history"
)

// Broadcaster pushes an opportunity payload to connected WebSocket clients.
type Broadcaster interface {
	Broadcast(channel string, payload []byte)
}

// Alerter delivers human-readable notifications (Telegram, Discord).
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Reporter fans a detected opportunity out to every configured sink: the
// opportunity store, the signal bus, the WebSocket hub, and the notifier.
// Every sink is optional; sink failures are logged and do not stop delivery
// to the remaining sinks, since a missed record must not halt detection.
type Reporter struct {
	store   domain.OpportunityStore
	bus     domain.SignalBus
	hub     Broadcaster
	alerter Alerter
	logger  *slog.Logger
}

// NewReporter creates a Reporter; any sink may be nil.
func NewReporter(store domain.OpportunityStore, bus domain.SignalBus, hub Broadcaster, alerter Alerter, logger *slog.Logger) *Reporter {
	return &Reporter{
		store:   store,
		bus:     bus,
		hub:     hub,
		alerter: alerter,
		logger:  logger.With(slog.String("component", "reporter")),
	}
}

// Report delivers opp to all sinks.
func (r *Reporter) Report(ctx context.Context, opp *domain.Opportunity) {
	payload, err := json.Marshal(opp)
	if err != nil {
		r.logger.ErrorContext(ctx, "marshal opportunity failed",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if r.store != nil {
		if err := r.store.Insert(ctx, *opp); err != nil {
			r.logger.WarnContext(ctx, "store opportunity failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if r.bus != nil {
		if err := r.bus.Publish(ctx, OpportunityChannel, payload); err != nil {
			r.logger.WarnContext(ctx, "publish opportunity failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := r.bus.StreamAppend(ctx, OpportunityStream, payload); err != nil {
			r.logger.WarnContext(ctx, "append opportunity to stream failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if r.hub != nil {
		r.hub.Broadcast(OpportunityChannel, payload)
	}

	if r.alerter != nil {
		title := fmt.Sprintf("Arbitrage: %s cycle, %.2f -> %.2f %s",
			opp.Base, opp.StartAmount, opp.EndAmount, opp.Base)
		if err := r.alerter.Notify(ctx, "arbitrage", title, DescribeTrade(opp)); err != nil {
			r.logger.WarnContext(ctx, "notify opportunity failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// DescribeTrade renders the conversion sequence as a human-readable trade
// narrative, one exchange per line.
func DescribeTrade(opp *domain.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "start with %.4f %s\n", opp.StartAmount, opp.Base)
	amount := opp.StartAmount
	for _, s := range opp.Steps {
		amount *= s.Rate
		fmt.Fprintf(&b, "exchange %s for %s at %.6f --> %.4f %s\n",
			s.From, s.To, s.Rate, amount, s.To)
	}
	return b.String()
}
