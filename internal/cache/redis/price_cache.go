package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avelichka/ladderd/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each ticker's mid price is stored as a hash at key "mid:{ticker}" with
// fields "mid" and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func midKey(ticker string) string {
	return "mid:" + ticker
}

// SetMid stores the latest mid price and timestamp for a ticker.
func (pc *PriceCache) SetMid(ctx context.Context, ticker string, mid float64, ts time.Time) error {
	key := midKey(ticker)
	fields := map[string]interface{}{
		"mid": strconv.FormatFloat(mid, 'f', -1, 64),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set mid %s: %w", ticker, err)
	}
	return nil
}

// GetMid retrieves the latest mid price and timestamp for a ticker.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetMid(ctx context.Context, ticker string) (float64, time.Time, error) {
	key := midKey(ticker)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get mid %s: %w", ticker, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	midStr, ok := vals["mid"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	mid, err := strconv.ParseFloat(midStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse mid %s: %w", ticker, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", ticker, err)
	}

	return mid, time.Unix(0, tsNano), nil
}

// GetMids retrieves the latest mid prices for multiple tickers using a
// pipeline. Tickers whose keys do not exist are silently omitted from the
// result map.
func (pc *PriceCache) GetMids(ctx context.Context, tickers []string) (map[string]float64, error) {
	if len(tickers) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(tickers))
	for _, t := range tickers {
		cmds[t] = pipe.HGetAll(ctx, midKey(t))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get mids pipeline: %w", err)
	}

	result := make(map[string]float64, len(tickers))
	for t, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if len(vals) == 0 {
			continue
		}
		midStr, ok := vals["mid"]
		if !ok {
			continue
		}
		mid, err := strconv.ParseFloat(midStr, 64)
		if err != nil {
			continue
		}
		result[t] = mid
	}

	return result, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
