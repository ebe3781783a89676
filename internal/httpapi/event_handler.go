package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"brokkoli/internal/models"

	"go.uber.org/zap"
)

const (
	defaultEventCount = 50
	maxEventCount     = 500
)

// EventReader recent status change events
type EventReader interface {
	Recent(ctx context.Context, count int64) ([]models.StatusEvent, error)
}

type EventHandler struct {
	events EventReader
	logger *zap.Logger
}

func NewEventHandler(events EventReader, logger *zap.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

// ListEvents GET /api/v1/events?count=N, newest first
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	count := int64(defaultEventCount)
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, Fail("count must be a positive integer"))
			return
		}
		count = min(n, maxEventCount)
	}

	events, err := h.events.Recent(r.Context(), count)
	if err != nil {
		h.logger.Error("Failed to read status events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(events))
}
