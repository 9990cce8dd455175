package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ewhitmore/forexbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RateCache implements domain.RateCache using Redis hashes. Each directed
// pair's latest rate is stored as a hash at key "rate:{BASE/QUOTE}" with
// fields "rate" and "ts" (Unix nanosecond timestamp). Keys expire on their
// own so a dead feed does not leave rates behind forever.
type RateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// rateTTL keeps published rates around long enough for dashboards while
// still letting them lapse when the feed stops.
const rateTTL = time.Minute

// NewRateCache creates a RateCache backed by the given Client.
func NewRateCache(c *Client) *RateCache {
	return &RateCache{rdb: c.Underlying(), ttl: rateTTL}
}

func rateKey(pair domain.Pair) string {
	return "rate:" + pair.String()
}

// SetRate stores the latest rate and quote timestamp for a directed pair.
func (rc *RateCache) SetRate(ctx context.Context, pair domain.Pair, rate float64, ts time.Time) error {
	key := rateKey(pair)
	fields := map[string]interface{}{
		"rate": strconv.FormatFloat(rate, 'f', -1, 64),
		"ts":   strconv.FormatInt(ts.UnixNano(), 10),
	}
	pipe := rc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, rc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set rate %s: %w", pair, err)
	}
	return nil
}

// GetRate retrieves the latest rate and quote timestamp for a directed pair.
// It returns domain.ErrNotFound when the key does not exist.
func (rc *RateCache) GetRate(ctx context.Context, pair domain.Pair) (float64, time.Time, error) {
	vals, err := rc.rdb.HGetAll(ctx, rateKey(pair)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get rate %s: %w", pair, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	rateStr, ok := vals["rate"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	rate, err := strconv.ParseFloat(rateStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse rate %s: %w", pair, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", pair, err)
	}

	return rate, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.RateCache = (*RateCache)(nil)
