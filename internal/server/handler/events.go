package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/betbridge/internal/domain"
)

// EventSource returns the newest lifecycle events, newest first.
type EventSource interface {
	Recent(ctx context.Context, count int) ([]domain.LifecycleEvent, error)
}

// EventHandler serves GET /api/events.
type EventHandler struct {
	source EventSource
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(source EventSource, logger *slog.Logger) *EventHandler {
	return &EventHandler{source: source, logger: logger.With(slog.String("handler", "events"))}
}

// ListEvents returns recent lifecycle events.
// GET /api/events?limit=N
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := h.source.Recent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list events", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if evs == nil {
		evs = []domain.LifecycleEvent{}
	}
	writeJSON(w, http.StatusOK, evs)
}
