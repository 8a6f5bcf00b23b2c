package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avelichka/ladderd/internal/domain"
)

// PriceService defines the cached price reads the handler requires.
type PriceService interface {
	GetMid(ctx context.Context, ticker string) (float64, time.Time, error)
	GetMids(ctx context.Context, tickers []string) (map[string]float64, error)
	GetBBO(ctx context.Context, ticker string) (float64, float64, error)
}

// PriceHandler serves the cached price surface.
type PriceHandler struct {
	prices PriceService
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler with the given service.
func NewPriceHandler(prices PriceService, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		prices: prices,
		logger: logger,
	}
}

// GetMids returns the latest cached mids for a comma-separated ticker
// list. Tickers without a cached mid are omitted.
// GET /api/prices?tickers=BTC-USD,ETH-USD
func (h *PriceHandler) GetMids(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tickers")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "tickers query parameter is required")
		return
	}

	tickers := strings.Split(raw, ",")
	for i := range tickers {
		tickers[i] = strings.TrimSpace(tickers[i])
	}

	mids, err := h.prices.GetMids(r.Context(), tickers)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get mids failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get prices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"mids": mids})
}

// GetPrice returns the latest cached mid with its timestamp and BBO for
// one ticker.
// GET /api/prices/{ticker}
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	ticker := pathParam(r, "ticker")

	mid, ts, err := h.prices.GetMid(r.Context(), ticker)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no cached price")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get price failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get price")
		return
	}

	resp := map[string]any{
		"ticker": ticker,
		"mid":    mid,
		"ts":     ts.UTC().Format(time.RFC3339Nano),
	}

	// BBO is best-effort; the book cache may lag the price cache.
	if bestBid, bestAsk, bboErr := h.prices.GetBBO(r.Context(), ticker); bboErr == nil {
		resp["best_bid"] = bestBid
		resp["best_ask"] = bestAsk
	}

	writeJSON(w, http.StatusOK, resp)
}
