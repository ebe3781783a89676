package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"brokkoli/internal/entity"
	"brokkoli/internal/models"
	"brokkoli/internal/service"
	"brokkoli/internal/threshold"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMonitor struct {
	views     map[string]models.EntityView
	updates   []service.ThresholdUpdate
	rebinds   []string
	refreshed []string
	added     []string
	removed   []string
	reloads   int
	err       error
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{views: map[string]models.EntityView{
		"plant_1": {EntityID: "plant_1", Kind: models.KindPlant, DeviceStatus: models.DeviceOk},
		"tent_1":  {EntityID: "tent_1", Kind: models.KindTent, DeviceStatus: models.DeviceUnknown},
	}}
}

func (f *fakeMonitor) Entities(ctx context.Context) ([]models.EntityView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.EntityView{f.views["plant_1"], f.views["tent_1"]}, nil
}

func (f *fakeMonitor) Entity(ctx context.Context, id string) (*models.EntityView, error) {
	v, ok := f.views[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrEntityNotFound, id)
	}
	return &v, nil
}

func (f *fakeMonitor) SetThreshold(ctx context.Context, id string, m models.Metric, upd service.ThresholdUpdate) error {
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, upd)
	return nil
}

func (f *fakeMonitor) Rebind(ctx context.Context, id string, m models.Metric, sourceID string) error {
	f.rebinds = append(f.rebinds, id+"/"+string(m)+"="+sourceID)
	return f.err
}

func (f *fakeMonitor) ForceRefresh(ctx context.Context, id string) error {
	f.refreshed = append(f.refreshed, id)
	return f.err
}

func (f *fakeMonitor) AddMember(ctx context.Context, groupID, memberID string) error {
	if f.err != nil {
		return f.err
	}
	f.added = append(f.added, groupID+"/"+memberID)
	return nil
}

func (f *fakeMonitor) RemoveMember(ctx context.Context, groupID, memberID string) error {
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, groupID+"/"+memberID)
	return nil
}

func (f *fakeMonitor) Reload(ctx context.Context) (*service.ReloadResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.reloads++
	return &service.ReloadResult{Added: []string{"plant_2"}}, nil
}

func newTestRouter(m Monitor) *Router {
	r := NewRouter(zap.NewNop())
	r.RegisterHealthRoutes()
	r.RegisterMonitorRoutes(NewMonitorHandler(m, zap.NewNop()))
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, Result[json.RawMessage]) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var res Result[json.RawMessage]
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	}
	return rec, res
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(newFakeMonitor())

	rec, res := do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ResultSuccess, res.Code)

	rec, _ = do(t, r, http.MethodPost, "/healthz", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListAndGetEntities(t *testing.T) {
	r := newTestRouter(newFakeMonitor())

	rec, res := do(t, r, http.MethodGet, "/api/v1/entities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []models.EntityView
	require.NoError(t, json.Unmarshal(res.Result, &views))
	assert.Len(t, views, 2)

	rec, res = do(t, r, http.MethodGet, "/api/v1/entities/plant_1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view models.EntityView
	require.NoError(t, json.Unmarshal(res.Result, &view))
	assert.Equal(t, "plant_1", view.EntityID)
	assert.Equal(t, models.DeviceOk, view.DeviceStatus)

	rec, res = do(t, r, http.MethodGet, "/api/v1/entities/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ResultError, res.Code)
	assert.Contains(t, res.Message, "ghost")
}

func TestSetThreshold(t *testing.T) {
	m := newFakeMonitor()
	r := newTestRouter(m)

	rec, _ := do(t, r, http.MethodPut, "/api/v1/entities/plant_1/thresholds/Temperature",
		`{"min": 12.5, "trigger_enabled": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, m.updates, 1)
	require.NotNil(t, m.updates[0].Min)
	assert.Equal(t, 12.5, *m.updates[0].Min)
	assert.Nil(t, m.updates[0].Max)
	require.NotNil(t, m.updates[0].TriggerEnabled)
	assert.False(t, *m.updates[0].TriggerEnabled)

	rec, _ = do(t, r, http.MethodPut, "/api/v1/entities/plant_1/thresholds/wind", `{"min": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, r, http.MethodPut, "/api/v1/entities/plant_1/thresholds/ph", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, r, http.MethodPut, "/api/v1/entities/plant_1/thresholds/ph", `{"min":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, r, http.MethodGet, "/api/v1/entities/plant_1/thresholds/ph", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	m.err = fmt.Errorf("%w: power_consumption", threshold.ErrNoThreshold)
	rec, res := do(t, r, http.MethodPut, "/api/v1/entities/plant_1/thresholds/power_consumption", `{"min": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, res.Message, "power_consumption")
}

func TestRebindAndRefresh(t *testing.T) {
	m := newFakeMonitor()
	r := newTestRouter(m)

	rec, _ := do(t, r, http.MethodPut, "/api/v1/entities/plant_1/bindings/moisture", `{"source_id": "sensor.m"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, r, http.MethodPut, "/api/v1/entities/plant_1/bindings/moisture", `{"source_id": null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"plant_1/moisture=sensor.m", "plant_1/moisture="}, m.rebinds)

	rec, _ = do(t, r, http.MethodPost, "/api/v1/entities/tent_1/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"tent_1"}, m.refreshed)
}

func TestMembers(t *testing.T) {
	m := newFakeMonitor()
	r := newTestRouter(m)

	rec, _ := do(t, r, http.MethodPost, "/api/v1/entities/tent_1/members", `{"member_id": "plant_1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"tent_1/plant_1"}, m.added)

	rec, _ = do(t, r, http.MethodPost, "/api/v1/entities/tent_1/members", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, r, http.MethodDelete, "/api/v1/entities/tent_1/members/plant_1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"tent_1/plant_1"}, m.removed)

	m.err = fmt.Errorf("%w: plant_1", entity.ErrNotGroup)
	rec, _ = do(t, r, http.MethodPost, "/api/v1/entities/plant_1/members", `{"member_id": "tent_1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(entity.ErrEntityNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(entity.ErrSelfMembership))
	assert.Equal(t, http.StatusBadRequest, statusFor(models.ErrUnknownMetric))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(service.ErrStopped))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(context.Canceled))
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("boom")))
}

func TestUnknownRoute(t *testing.T) {
	r := newTestRouter(newFakeMonitor())

	rec, _ := do(t, r, http.MethodGet, "/api/v1/entities/plant_1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReload(t *testing.T) {
	m := newFakeMonitor()
	r := newTestRouter(m)

	rec, res := do(t, r, http.MethodPost, "/api/v1/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, m.reloads)
	var got service.ReloadResult
	require.NoError(t, json.Unmarshal(res.Result, &got))
	assert.Equal(t, []string{"plant_2"}, got.Added)

	rec, _ = do(t, r, http.MethodGet, "/api/v1/reload", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	m.err = service.ErrStopped
	rec, _ = do(t, r, http.MethodPost, "/api/v1/reload", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestBodyLimits(t *testing.T) {
	m := newFakeMonitor()
	r := newTestRouter(m)

	big := `{"member_id":"` + strings.Repeat("p", maxBodyBytes) + `"}`
	rec, res := do(t, r, http.MethodPost, "/api/v1/entities/tent_1/members", big)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, res.Message, "exceeds")
	assert.Empty(t, m.added)

	rec, res = do(t, r, http.MethodPut, "/api/v1/entities/plant_1/thresholds/ph", `{"min":"low"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, res.Message, "field min")
	assert.Empty(t, m.updates)
}
