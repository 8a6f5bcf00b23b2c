// Package service holds the read-path coordination between stores and
// caches that the HTTP handlers sit on.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/avelichka/ladderd/internal/domain"
)

// MarketService serves perpetual market metadata, checking the cache
// before the persistent store.
type MarketService struct {
	markets domain.MarketStore
	cache   domain.MarketCache
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil, in which
// case every read goes to the store.
func NewMarketService(markets domain.MarketStore, cache domain.MarketCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		markets: markets,
		cache:   cache,
		logger:  logger,
	}
}

// GetMarket retrieves a market by ticker, checking the cache first and
// falling back to the persistent store on a miss.
func (s *MarketService) GetMarket(ctx context.Context, ticker string) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, ticker); err == nil {
			return m, nil
		}
	}

	m, err := s.markets.GetByTicker(ctx, ticker)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %q: %w", ticker, err)
	}

	// Back-fill the cache; log but do not fail on cache write errors.
	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("ticker", ticker),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	return m, nil
}

// ListActive returns active markets directly from the persistent store.
func (s *MarketService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list active: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the persistent store.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}
