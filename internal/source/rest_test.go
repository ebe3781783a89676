package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"brokkoli/common/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRESTClient_FetchState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/states/sensor.temp":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"entity_id":"sensor.temp","state":"19.5","unit_of_measurement":"°C","device_class":"temperature"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewRESTClient(&config.HostAPIConfig{BaseURL: srv.URL, Token: "secret"}, zap.NewNop())

	st, err := client.FetchState(context.Background(), "sensor.temp")
	require.NoError(t, err)
	assert.Equal(t, "sensor.temp", st.SourceID)
	v, ok := st.Number()
	assert.True(t, ok)
	assert.Equal(t, 19.5, v)
	assert.Equal(t, "°C", st.Unit)
	assert.Equal(t, "temperature", st.DeviceClass)

	_, err = client.FetchState(context.Background(), "sensor.missing")
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestRESTClient_FetchState_NestedAttributes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"entity_id":"sensor.t","state":"70.1","attributes":{"unit_of_measurement":"°F","device_class":"temperature"},"last_updated":"2024-05-01T10:00:00+00:00"}`))
	}))
	defer srv.Close()

	client := NewRESTClient(&config.HostAPIConfig{BaseURL: srv.URL}, zap.NewNop())

	st, err := client.FetchState(context.Background(), "sensor.t")
	require.NoError(t, err)
	assert.Equal(t, "70.1", string(st.State))
	assert.Equal(t, "°F", st.Unit)
	assert.Equal(t, "temperature", st.DeviceClass)
	assert.False(t, st.UpdatedAt.IsZero())
}
