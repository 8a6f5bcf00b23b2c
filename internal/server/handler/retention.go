package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// RetentionHandler serves the manual retention trigger endpoint.
type RetentionHandler struct {
	logger    *slog.Logger
	triggerCh chan<- struct{} // when non-nil, sending triggers one retention pass
}

// NewRetentionHandler creates a RetentionHandler with the given logger.
func NewRetentionHandler(logger *slog.Logger) *RetentionHandler {
	return &RetentionHandler{logger: logger}
}

// WithTriggerChannel sets the channel to send on when a trigger is requested.
// The retention cron loop must receive from this channel to run one pass.
func (h *RetentionHandler) WithTriggerChannel(ch chan<- struct{}) *RetentionHandler {
	h.triggerCh = ch
	return h
}

// TriggerRetention enqueues one retention pass. If a trigger channel is
// configured, a non-blocking send is performed so the cron loop runs one
// pass outside its schedule.
// POST /api/retention/trigger
func (h *RetentionHandler) TriggerRetention(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "handler: retention trigger requested")
	if h.triggerCh != nil {
		select {
		case h.triggerCh <- struct{}{}:
		default:
			// already triggered and not yet consumed
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      "retention pass enqueued",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
