package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	cacheredis "github.com/avelichka/ladderd/internal/cache/redis"
	"github.com/avelichka/ladderd/internal/domain"
)

// TradeTail provides the recorder's in-memory trade history, which
// reaches further back than the snapshot tape.
type TradeTail interface {
	RecentTrades(ticker string, limit int) []domain.TradeEvent
}

// TradeHandler serves recent trades and the durable event stream.
type TradeHandler struct {
	states StateSource
	tail   TradeTail
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler. tail and bus are optional;
// without a tail the snapshot tape is served, without a bus the event
// stream endpoint is disabled.
func NewTradeHandler(states StateSource, tail TradeTail, bus domain.SignalBus, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		states: states,
		tail:   tail,
		bus:    bus,
		logger: logger,
	}
}

// tradesResponse wraps the trade list endpoint output.
type tradesResponse struct {
	Ticker string              `json:"ticker"`
	Trades []domain.TradeEvent `json:"trades"`
}

// ListTrades returns recent trades for one ticker, oldest first. The
// recorder tail is preferred when available.
// GET /api/trades/{ticker}?limit=100
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	ticker := pathParam(r, "ticker")
	limit := parseIntQuery(r, "limit", 100)

	if h.tail != nil {
		if trades := h.tail.RecentTrades(ticker, limit); len(trades) > 0 {
			writeJSON(w, http.StatusOK, tradesResponse{Ticker: ticker, Trades: trades})
			return
		}
	}

	snap, err := h.states.Snapshot(ticker, time.Now().Unix())
	if err != nil {
		if errors.Is(err, domain.ErrUnknownTicker) {
			writeError(w, http.StatusNotFound, "unknown ticker")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	trades := snap.RecentTrades
	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	writeJSON(w, http.StatusOK, tradesResponse{Ticker: ticker, Trades: trades})
}

// streamEvent is one entry read back from the event stream.
type streamEvent struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// ListEvents reads the durable trade event stream for one ticker,
// starting after the given stream ID.
// GET /api/events/{ticker}?after=0&count=100
func (h *TradeHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusNotFound, "event stream not available")
		return
	}

	ticker := pathParam(r, "ticker")
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	count := parseIntQuery(r, "count", 100)
	if count > 1000 {
		count = 1000
	}

	msgs, err := h.bus.StreamRead(r.Context(), cacheredis.EventStream(ticker), after, count)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: stream read failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read event stream")
		return
	}

	events := make([]streamEvent, 0, len(msgs))
	for _, m := range msgs {
		events = append(events, streamEvent{ID: m.ID, Event: json.RawMessage(m.Payload)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticker": ticker,
		"events": events,
	})
}
