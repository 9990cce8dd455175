package domain

import (
	"context"
	"time"
)

// RateCache exposes the latest observed rate per market to out-of-process
// consumers (dashboards, other bots). The in-process engine never reads it.
type RateCache interface {
	SetRate(ctx context.Context, pair Pair, rate float64, ts time.Time) error
	GetRate(ctx context.Context, pair Pair) (float64, time.Time, error)
}

// StreamMessage is a single entry read back from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides ephemeral pub/sub and durable, ordered streams for
// detected-opportunity payloads.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// LockManager hands out distributed locks so periodic jobs run on exactly one
// instance at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
