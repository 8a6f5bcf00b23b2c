package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avelichka/ladderd/internal/domain"
)

// MarketFetcher retrieves perpetual market metadata from the indexer.
type MarketFetcher interface {
	GetPerpetualMarkets(ctx context.Context) ([]domain.Market, error)
}

// MarketRefresher keeps the market store and cache in sync with the
// indexer's perpetual market listing.
type MarketRefresher struct {
	fetcher MarketFetcher
	store   domain.MarketStore
	cache   domain.MarketCache
	logger  *slog.Logger
}

// NewMarketRefresher creates a MarketRefresher. cache may be nil, in
// which case only the store is updated.
func NewMarketRefresher(fetcher MarketFetcher, store domain.MarketStore, cache domain.MarketCache, logger *slog.Logger) *MarketRefresher {
	return &MarketRefresher{
		fetcher: fetcher,
		store:   store,
		cache:   cache,
		logger:  logger.With(slog.String("component", "market_refresher")),
	}
}

// Run executes a single refresh: fetch every perpetual market, upsert
// the batch into the store and rewrite the cache entries.
func (m *MarketRefresher) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("market refresher context cancelled: %w", err)
	}

	markets, err := m.fetcher.GetPerpetualMarkets(ctx)
	if err != nil {
		return fmt.Errorf("fetching perpetual markets: %w", err)
	}
	if len(markets) == 0 {
		m.logger.Warn("indexer returned no markets")
		return nil
	}

	if err := m.store.UpsertBatch(ctx, markets); err != nil {
		return fmt.Errorf("upserting %d markets: %w", len(markets), err)
	}

	cached := 0
	if m.cache != nil {
		for _, mk := range markets {
			if err := m.cache.Set(ctx, mk); err != nil {
				m.logger.Warn("market cache write failed",
					slog.String("ticker", mk.Ticker),
					slog.String("error", err.Error()),
				)
				continue
			}
			cached++
		}
	}

	m.logger.Info("markets refreshed",
		slog.Int("total", len(markets)),
		slog.Int("cached", cached),
	)
	return nil
}

// RunLoop runs the refresher on a repeating interval until the context
// is cancelled.
func (m *MarketRefresher) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if err := m.Run(ctx); err != nil {
		m.logger.Error("market refresh failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("market refresher stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := m.Run(ctx); err != nil {
				m.logger.Error("market refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}
