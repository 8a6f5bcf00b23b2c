package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/avelichka/ladderd/internal/domain"
)

// StateSource defines the live-state reads the book handler needs. The
// market manager satisfies it.
type StateSource interface {
	BookState(ticker string) (domain.BookState, error)
	Depth(ticker string, side domain.Side, maxLevels int) ([]domain.DepthLevel, error)
	Snapshot(ticker string, ts int64) (domain.Snapshot, error)
	Tickers() []string
}

// BookHandler serves the live orderbook and snapshot endpoints.
type BookHandler struct {
	states StateSource
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler over the given state source.
func NewBookHandler(states StateSource, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		states: states,
		logger: logger,
	}
}

// ListTickers returns the tickers the engine currently tracks.
// GET /api/tickers
func (h *BookHandler) ListTickers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tickers": h.states.Tickers(),
	})
}

// GetBook returns the current book for one ticker, both sides best
// first.
// GET /api/book/{ticker}
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	ticker := pathParam(r, "ticker")

	state, err := h.states.BookState(ticker)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownTicker) {
			writeError(w, http.StatusNotFound, "unknown ticker")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get book failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get book")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// depthResponse carries one or both cumulative-depth sides.
type depthResponse struct {
	Ticker string              `json:"ticker"`
	Bids   []domain.DepthLevel `json:"bids,omitempty"`
	Asks   []domain.DepthLevel `json:"asks,omitempty"`
}

// GetDepth returns cumulative depth for one ticker. With ?side=bid or
// ?side=ask only that side is returned; levels caps the rows per side.
// GET /api/book/{ticker}/depth?side=bid&levels=20
func (h *BookHandler) GetDepth(w http.ResponseWriter, r *http.Request) {
	ticker := pathParam(r, "ticker")
	levels := parseIntQuery(r, "levels", 20)

	resp := depthResponse{Ticker: ticker}
	sides := []domain.Side{domain.SideBid, domain.SideAsk}
	if v := r.URL.Query().Get("side"); v != "" {
		side, err := domain.ParseSide(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "side must be bid or ask")
			return
		}
		sides = []domain.Side{side}
	}

	for _, side := range sides {
		depth, err := h.states.Depth(ticker, side, levels)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownTicker) {
				writeError(w, http.StatusNotFound, "unknown ticker")
				return
			}
			h.logger.ErrorContext(r.Context(), "handler: get depth failed",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to get depth")
			return
		}
		if side == domain.SideBid {
			resp.Bids = depth
		} else {
			resp.Asks = depth
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetSnapshot returns the full derived state for one ticker: book,
// candle series per timeframe and the recent trade tape.
// GET /api/snapshot/{ticker}
func (h *BookHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	ticker := pathParam(r, "ticker")

	snap, err := h.states.Snapshot(ticker, time.Now().Unix())
	if err != nil {
		if errors.Is(err, domain.ErrUnknownTicker) {
			writeError(w, http.StatusNotFound, "unknown ticker")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get snapshot failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get snapshot")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}
