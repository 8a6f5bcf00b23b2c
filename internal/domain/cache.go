package domain

import (
	"context"
	"time"
)

// BookCache stores live orderbook state per ticker.
type BookCache interface {
	SetSnapshot(ctx context.Context, state BookState) error
	GetSnapshot(ctx context.Context, ticker string) (BookState, error)
	UpdateLevel(ctx context.Context, ticker string, side Side, price, size float64) error
	GetBBO(ctx context.Context, ticker string) (bestBid, bestAsk float64, err error)
}

// PriceCache provides fast access to the latest mid prices.
type PriceCache interface {
	SetMid(ctx context.Context, ticker string, mid float64, ts time.Time) error
	GetMid(ctx context.Context, ticker string) (float64, time.Time, error)
	GetMids(ctx context.Context, tickers []string) (map[string]float64, error)
}

// MarketCache provides fast market metadata lookups.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, ticker string) (Market, error)
	Invalidate(ctx context.Context, ticker string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
