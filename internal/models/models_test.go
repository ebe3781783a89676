package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogue_CoversAllMetrics(t *testing.T) {
	metrics := AllMetrics()
	require.Len(t, metrics, 11)
	for _, m := range metrics {
		info, ok := Info(m)
		require.True(t, ok, m)
		assert.NotEmpty(t, info.Unit, m)
		assert.NotEmpty(t, info.Icon, m)
		assert.GreaterOrEqual(t, info.Decimals, 0, m)
		if info.HardDefault != nil {
			assert.LessOrEqual(t, info.HardDefault.Min, info.HardDefault.Max, m)
		}
	}
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric(" CO2 ")
	require.NoError(t, err)
	assert.Equal(t, MetricCO2, m)

	_, err = ParseMetric("wind")
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestSourceState_SentinelReason(t *testing.T) {
	assert.Equal(t, ReasonUnavailable, SourceState{State: "unavailable"}.SentinelReason())
	assert.Equal(t, ReasonUnavailable, SourceState{State: "Unavailable"}.SentinelReason())
	assert.Equal(t, ReasonUnknownState, SourceState{State: "unknown"}.SentinelReason())
	assert.Equal(t, ReasonUnknownState, SourceState{State: ""}.SentinelReason())
	assert.Equal(t, ReasonOk, SourceState{State: "21.4"}.SentinelReason())
	assert.Equal(t, ReasonOk, SourceState{State: "wet"}.SentinelReason())
}

func TestSourceState_DecodesNumberAndString(t *testing.T) {
	var a, b, c SourceState
	require.NoError(t, json.Unmarshal([]byte(`{"entity_id":"sensor.t","state":21.5,"unit_of_measurement":"°C"}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"entity_id":"sensor.t","state":"unavailable"}`), &b))
	require.NoError(t, json.Unmarshal([]byte(`{"entity_id":"sensor.t","state":null}`), &c))

	v, ok := a.Number()
	assert.True(t, ok)
	assert.Equal(t, 21.5, v)
	assert.Equal(t, "°C", a.Unit)

	assert.Equal(t, ReasonUnavailable, b.SentinelReason())
	assert.Equal(t, ReasonUnknownState, c.SentinelReason())
}

func TestSourceState_DecodesNestedAttributes(t *testing.T) {
	var st SourceState
	require.NoError(t, json.Unmarshal([]byte(`{"entity_id":"sensor.t","state":"70.1","attributes":{"unit_of_measurement":"°F","device_class":"temperature","friendly_name":"Tent"}}`), &st))

	assert.Equal(t, "sensor.t", st.SourceID)
	assert.Equal(t, StateText("70.1"), st.State)
	assert.Equal(t, "°F", st.Unit)
	assert.Equal(t, "temperature", st.DeviceClass)

	var top SourceState
	require.NoError(t, json.Unmarshal([]byte(`{"state":"20","unit_of_measurement":"°C","attributes":{"unit_of_measurement":"°F"}}`), &top))
	assert.Equal(t, "°C", top.Unit)
}

func TestSourceState_NumberRejectsNonFinite(t *testing.T) {
	for _, raw := range []StateText{"nan", "NaN", "inf", "+Inf", "-Infinity"} {
		_, ok := SourceState{State: raw}.Number()
		assert.False(t, ok, string(raw))
	}

	v, ok := SourceState{State: " 1e3 "}.Number()
	assert.True(t, ok)
	assert.Equal(t, 1000.0, v)
}

func TestParseStrategy(t *testing.T) {
	s, ok := ParseStrategy("original")
	assert.True(t, ok)
	assert.Equal(t, StrategyKeepOwn, s)

	_, ok = ParseStrategy("mode")
	assert.False(t, ok)
}
