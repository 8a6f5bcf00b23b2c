package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// BookEventStore persists raw orderbook events.
type BookEventStore interface {
	InsertBatch(ctx context.Context, events []BookEvent) error
	ListByTicker(ctx context.Context, ticker string, opts ListOpts) ([]BookEvent, error)
	GetLastTimestamp(ctx context.Context, ticker string) (int64, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]BookEvent, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// TradeEventStore persists raw trade prints.
type TradeEventStore interface {
	InsertBatch(ctx context.Context, trades []TradeEvent) error
	ListByTicker(ctx context.Context, ticker string, opts ListOpts) ([]TradeEvent, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]TradeEvent, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// CandleStore persists sampled candles per ticker and timeframe.
type CandleStore interface {
	UpsertBatch(ctx context.Context, ticker string, timeframe int64, candles []Candle) error
	List(ctx context.Context, ticker string, timeframe int64, opts ListOpts) ([]Candle, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]CandleRow, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// MarketStore persists perpetual market metadata.
type MarketStore interface {
	UpsertBatch(ctx context.Context, markets []Market) error
	GetByTicker(ctx context.Context, ticker string) (Market, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// Run records one recorder session and its row counts.
type Run struct {
	ID        string // uuid
	Mode      string
	Tickers   []string
	StartedAt time.Time
	StoppedAt *time.Time
	BookRows  int64
	TradeRows int64
}

// RunStore persists recorder session metadata.
type RunStore interface {
	Create(ctx context.Context, run Run) error
	Finish(ctx context.Context, id string, stoppedAt time.Time, bookRows, tradeRows int64) error
	GetLatest(ctx context.Context) (Run, error)
	List(ctx context.Context, opts ListOpts) ([]Run, error)
}
