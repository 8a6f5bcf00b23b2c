package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/avelichka/ladderd/internal/candle"
	"github.com/avelichka/ladderd/internal/domain"
)

// SeriesSource defines the live candle reads the handler needs. The
// market manager satisfies it.
type SeriesSource interface {
	Series(ticker string, tf int64) ([]domain.Candle, error)
}

// CandleHandler serves candle series, live from the aggregation engine
// and historical from the persistent store.
type CandleHandler struct {
	states SeriesSource
	store  domain.CandleStore
	logger *slog.Logger
}

// NewCandleHandler creates a CandleHandler. store may be nil, which
// disables the history endpoint.
func NewCandleHandler(states SeriesSource, store domain.CandleStore, logger *slog.Logger) *CandleHandler {
	return &CandleHandler{
		states: states,
		store:  store,
		logger: logger,
	}
}

// candlesResponse wraps a candle series with its key.
type candlesResponse struct {
	Ticker    string          `json:"ticker"`
	Timeframe string          `json:"timeframe"`
	Candles   []domain.Candle `json:"candles"`
}

// parseTF resolves the tf query parameter. Empty means the engine
// default (0); otherwise tokens like "60", "1m", "4h" are accepted.
func parseTF(r *http.Request) (int64, error) {
	token := r.URL.Query().Get("tf")
	if token == "" {
		return 0, nil
	}
	return candle.ParseTimeframe(token)
}

// GetCandles returns the live aggregated series for one ticker.
// GET /api/candles/{ticker}?tf=1m&limit=200
func (h *CandleHandler) GetCandles(w http.ResponseWriter, r *http.Request) {
	ticker := pathParam(r, "ticker")

	tf, err := parseTF(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid timeframe")
		return
	}

	series, err := h.states.Series(ticker, tf)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownTicker) {
			writeError(w, http.StatusNotFound, "unknown ticker")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get candles failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get candles")
		return
	}
	if series == nil {
		writeError(w, http.StatusNotFound, "timeframe not maintained")
		return
	}

	if limit := parseIntQuery(r, "limit", 0); limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}

	label := r.URL.Query().Get("tf")
	if label == "" {
		label = "default"
	}
	writeJSON(w, http.StatusOK, candlesResponse{
		Ticker:    ticker,
		Timeframe: label,
		Candles:   series,
	})
}

// GetCandleHistory returns persisted candles from the store, outside
// the in-memory window.
// GET /api/candles/{ticker}/history?tf=1m&since=1700000000&until=1700086400&limit=500
func (h *CandleHandler) GetCandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "candle history not available")
		return
	}

	ticker := pathParam(r, "ticker")
	tf, err := parseTF(r)
	if err != nil || tf == 0 {
		writeError(w, http.StatusBadRequest, "tf is required, e.g. tf=1m")
		return
	}

	opts := parseListOpts(r)
	if since, ok := parseTSQuery(r, "since"); ok {
		t := time.Unix(since, 0).UTC()
		opts.Since = &t
	}
	if until, ok := parseTSQuery(r, "until"); ok {
		t := time.Unix(until, 0).UTC()
		opts.Until = &t
	}

	candles, err := h.store.List(r.Context(), ticker, tf, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: candle history failed",
			slog.String("ticker", ticker),
			slog.Int64("timeframe", tf),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load candle history")
		return
	}

	writeJSON(w, http.StatusOK, candlesResponse{
		Ticker:    ticker,
		Timeframe: candle.FormatTimeframe(tf),
		Candles:   candles,
	})
}
