package handler

import (
	"net/http"
	"time"

	"github.com/avelichka/ladderd/internal/domain"
)

// FeedStatus reports live-feed connectivity.
type FeedStatus interface {
	Connected() bool
}

// EngineStats reports aggregated ingestion counters across tickers.
type EngineStats interface {
	Stats() (bookEvents, tradeEvents, lastTS int64)
	Tickers() []string
}

// StatusHandler serves the engine status for the dashboard.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	engine    EngineStats
	feed      FeedStatus
}

// NewStatusHandler creates a StatusHandler. engine and feed may be nil
// in modes that run without them.
func NewStatusHandler(mode string, startedAt time.Time, engine EngineStats, feed FeedStatus) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		startedAt: startedAt,
		engine:    engine,
		feed:      feed,
	}
}

// GetStatus responds with the current engine status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := domain.EngineStatus{
		Mode:          h.mode,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	if status.UptimeSeconds < 0 {
		status.UptimeSeconds = 0
	}
	if h.feed != nil {
		status.WSConnected = h.feed.Connected()
	}
	if h.engine != nil {
		status.Tickers = h.engine.Tickers()
		status.BookEvents, status.TradeEvents, status.LastEventTS = h.engine.Stats()
	}

	writeJSON(w, http.StatusOK, status)
}
