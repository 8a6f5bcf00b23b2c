package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avelichka/ladderd/internal/domain"
)

// PriceService serves the cached price surface: latest mids, best
// bid/offer and the last published book state. The write path is the
// live feed; this is the read side for handlers and other processes.
type PriceService struct {
	prices domain.PriceCache
	books  domain.BookCache
	logger *slog.Logger
}

// NewPriceService creates a PriceService over the given caches.
func NewPriceService(prices domain.PriceCache, books domain.BookCache, logger *slog.Logger) *PriceService {
	return &PriceService{
		prices: prices,
		books:  books,
		logger: logger,
	}
}

// GetMid returns the latest cached mid and its timestamp for one ticker.
func (s *PriceService) GetMid(ctx context.Context, ticker string) (float64, time.Time, error) {
	mid, ts, err := s.prices.GetMid(ctx, ticker)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("price_service: get mid for %q: %w", ticker, err)
	}
	return mid, ts, nil
}

// GetMids returns the latest cached mids for multiple tickers. Missing
// tickers are omitted from the returned map.
func (s *PriceService) GetMids(ctx context.Context, tickers []string) (map[string]float64, error) {
	mids, err := s.prices.GetMids(ctx, tickers)
	if err != nil {
		return nil, fmt.Errorf("price_service: get mids: %w", err)
	}
	return mids, nil
}

// GetBBO returns the best bid and ask for ticker from the book cache.
func (s *PriceService) GetBBO(ctx context.Context, ticker string) (float64, float64, error) {
	bestBid, bestAsk, err := s.books.GetBBO(ctx, ticker)
	if err != nil {
		return 0, 0, fmt.Errorf("price_service: get BBO for %q: %w", ticker, err)
	}
	return bestBid, bestAsk, nil
}
