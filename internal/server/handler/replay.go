package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/avelichka/ladderd/internal/domain"
)

// ReplayService defines the operations the replay handler exposes over
// a loaded event log.
type ReplayService interface {
	Tickers() []string
	Bounds() (minTS, maxTS int64)
	SnapshotAt(ticker string, target int64) (domain.Snapshot, error)
	AdvanceTo(ticker string, target int64) (domain.Snapshot, error)
}

// ReplayHandler serves snapshot reconstruction over a recorded log.
type ReplayHandler struct {
	svc    ReplayService
	logger *slog.Logger
}

// NewReplayHandler creates a ReplayHandler. svc may be nil when no log
// is loaded; every endpoint then reports that replay is unavailable.
func NewReplayHandler(svc ReplayService, logger *slog.Logger) *ReplayHandler {
	return &ReplayHandler{
		svc:    svc,
		logger: logger,
	}
}

func (h *ReplayHandler) available(w http.ResponseWriter) bool {
	if h.svc == nil {
		writeError(w, http.StatusNotFound, "no replay log loaded")
		return false
	}
	return true
}

// GetInfo returns the tickers present in the loaded log and its time
// bounds.
// GET /api/replay
func (h *ReplayHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	minTS, maxTS := h.svc.Bounds()
	writeJSON(w, http.StatusOK, map[string]any{
		"tickers": h.svc.Tickers(),
		"min_ts":  minTS,
		"max_ts":  maxTS,
	})
}

// GetSnapshotAt cold-rebuilds one ticker's state as of ts.
// GET /api/replay/{ticker}/snapshot?ts=1700000000
func (h *ReplayHandler) GetSnapshotAt(w http.ResponseWriter, r *http.Request) {
	h.serveSnapshot(w, r, func(ticker string, ts int64) (domain.Snapshot, error) {
		return h.svc.SnapshotAt(ticker, ts)
	})
}

// GetAdvanceTo scrubs one ticker's replay cursor to ts. Sequential
// forward requests reuse the cursor; a backward ts replays from the
// start. The result is identical to a cold snapshot at the same ts.
// GET /api/replay/{ticker}/advance?ts=1700000000
func (h *ReplayHandler) GetAdvanceTo(w http.ResponseWriter, r *http.Request) {
	h.serveSnapshot(w, r, func(ticker string, ts int64) (domain.Snapshot, error) {
		return h.svc.AdvanceTo(ticker, ts)
	})
}

func (h *ReplayHandler) serveSnapshot(w http.ResponseWriter, r *http.Request, fn func(string, int64) (domain.Snapshot, error)) {
	if !h.available(w) {
		return
	}

	ticker := pathParam(r, "ticker")
	ts, ok := parseTSQuery(r, "ts")
	if !ok {
		writeError(w, http.StatusBadRequest, "ts query parameter is required")
		return
	}

	snap, err := fn(ticker, ts)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownTicker) {
			writeError(w, http.StatusNotFound, "ticker not in log")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: replay failed",
			slog.String("ticker", ticker),
			slog.Int64("ts", ts),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "replay failed")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}
