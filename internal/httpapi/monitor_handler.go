package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"brokkoli/internal/entity"
	"brokkoli/internal/models"
	"brokkoli/internal/service"
	"brokkoli/internal/threshold"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 16

// Monitor operations served over HTTP
type Monitor interface {
	Entities(ctx context.Context) ([]models.EntityView, error)
	Entity(ctx context.Context, entityID string) (*models.EntityView, error)
	SetThreshold(ctx context.Context, entityID string, m models.Metric, upd service.ThresholdUpdate) error
	Rebind(ctx context.Context, entityID string, m models.Metric, sourceID string) error
	ForceRefresh(ctx context.Context, entityID string) error
	AddMember(ctx context.Context, groupID, memberID string) error
	RemoveMember(ctx context.Context, groupID, memberID string) error
	Reload(ctx context.Context) (*service.ReloadResult, error)
}

// MonitorHandler read model and operator endpoints
type MonitorHandler struct {
	monitor Monitor
	logger  *zap.Logger
}

func NewMonitorHandler(monitor Monitor, logger *zap.Logger) *MonitorHandler {
	return &MonitorHandler{monitor: monitor, logger: logger}
}

func (h *MonitorHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	views, err := h.monitor.Entities(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if views == nil {
		views = []models.EntityView{}
	}
	writeJSON(w, http.StatusOK, Ok(views))
}

func (h *MonitorHandler) GetEntity(w http.ResponseWriter, r *http.Request, id string) {
	view, err := h.monitor.Entity(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(view))
}

func (h *MonitorHandler) SetThreshold(w http.ResponseWriter, r *http.Request, id, metric string) {
	m, err := models.ParseMetric(metric)
	if err != nil {
		h.fail(w, err)
		return
	}
	var upd service.ThresholdUpdate
	if err := readBodyJSON(r, maxBodyBytes, &upd); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
		return
	}
	if upd.Min == nil && upd.Max == nil && upd.TriggerEnabled == nil {
		writeJSON(w, http.StatusBadRequest, Fail("nothing to update"))
		return
	}
	if err := h.monitor.SetThreshold(r.Context(), id, m, upd); err != nil {
		h.fail(w, err)
		return
	}
	h.respondEntity(w, r, id)
}

// rebindRequest source_id null or "" clears the binding
type rebindRequest struct {
	SourceID *string `json:"source_id"`
}

func (h *MonitorHandler) Rebind(w http.ResponseWriter, r *http.Request, id, metric string) {
	m, err := models.ParseMetric(metric)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req rebindRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
		return
	}
	sourceID := ""
	if req.SourceID != nil {
		sourceID = *req.SourceID
	}
	if err := h.monitor.Rebind(r.Context(), id, m, sourceID); err != nil {
		h.fail(w, err)
		return
	}
	h.respondEntity(w, r, id)
}

func (h *MonitorHandler) Refresh(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.monitor.ForceRefresh(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	h.respondEntity(w, r, id)
}

type memberRequest struct {
	MemberID string `json:"member_id"`
}

func (h *MonitorHandler) AddMember(w http.ResponseWriter, r *http.Request, id string) {
	var req memberRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
		return
	}
	if req.MemberID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("member_id is required"))
		return
	}
	if err := h.monitor.AddMember(r.Context(), id, req.MemberID); err != nil {
		h.fail(w, err)
		return
	}
	h.respondEntity(w, r, id)
}

func (h *MonitorHandler) RemoveMember(w http.ResponseWriter, r *http.Request, id, member string) {
	if err := h.monitor.RemoveMember(r.Context(), id, member); err != nil {
		h.fail(w, err)
		return
	}
	h.respondEntity(w, r, id)
}

// Reload re-reads entity configuration from the database
func (h *MonitorHandler) Reload(w http.ResponseWriter, r *http.Request) {
	res, err := h.monitor.Reload(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

func (h *MonitorHandler) respondEntity(w http.ResponseWriter, r *http.Request, id string) {
	view, err := h.monitor.Entity(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(view))
}

func (h *MonitorHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, Fail(err.Error()))
}

func statusFor(err error) int {
	var syntaxErr *json.SyntaxError
	switch {
	case errors.Is(err, entity.ErrEntityNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrNotGroup),
		errors.Is(err, entity.ErrSelfMembership),
		errors.Is(err, threshold.ErrNoThreshold),
		errors.Is(err, models.ErrUnknownMetric),
		errors.As(err, &syntaxErr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
