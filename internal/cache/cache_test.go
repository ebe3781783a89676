package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	rediscommon "brokkoli/common/redis"
	"brokkoli/internal/config"
	"brokkoli/internal/entity"
	"brokkoli/internal/models"
	"brokkoli/internal/threshold"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Monitor.Cache.StateKeyPrefix = "brokkoli:state:"
	cfg.Monitor.Cache.ReadModelKeyPrefix = "brokkoli:entity:"
	cfg.Monitor.Cache.StatusStream = "brokkoli:status"
	return cfg
}

func TestStateManager_SaveLoad(t *testing.T) {
	mr, client := setupTestRedis(t)
	sm := NewStateManager(testConfig(), NewRedisKVStore(client), zap.NewNop())
	ctx := context.Background()

	state := entity.State{
		EntityID: "plant_1",
		Thresholds: map[models.Metric]threshold.Pair{
			models.MetricTemperature: {
				Min:            threshold.Limit{Value: 50, Unit: "°F"},
				Max:            threshold.Limit{Value: 86, Unit: "°F"},
				TriggerEnabled: false,
			},
		},
		Sources: map[models.Metric]string{models.MetricTemperature: "sensor.t"},
	}
	require.NoError(t, sm.Save(ctx, state))
	assert.True(t, mr.Exists("brokkoli:state:plant_1"))
	assert.Equal(t, time.Duration(0), mr.TTL("brokkoli:state:plant_1"))

	got, err := sm.Load(ctx, "plant_1")
	require.NoError(t, err)
	assert.Equal(t, "sensor.t", got.Sources[models.MetricTemperature])
	p := got.Thresholds[models.MetricTemperature]
	assert.Equal(t, 50.0, p.Min.Value)
	assert.Equal(t, "°F", p.Max.Unit)
	assert.False(t, p.TriggerEnabled)

	require.NoError(t, sm.Delete(ctx, "plant_1"))
	_, err = sm.Load(ctx, "plant_1")
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestStateManager_CorruptState(t *testing.T) {
	mr, client := setupTestRedis(t)
	sm := NewStateManager(testConfig(), NewRedisKVStore(client), zap.NewNop())
	require.NoError(t, mr.Set("brokkoli:state:plant_1", "{not json"))

	_, err := sm.Load(context.Background(), "plant_1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStateNotFound)
}

func TestReadModelCache_PutDeleteWithTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	cfg := testConfig()
	cfg.Monitor.Cache.ReadModelTTL = 30 * time.Second
	kv := NewRedisKVStore(client)
	c := NewReadModelCache(cfg, kv, zap.NewNop())
	ctx := context.Background()

	current := 21.5
	view := models.EntityView{
		EntityID:     "plant_1",
		Kind:         models.KindPlant,
		DeviceStatus: models.DeviceOk,
		Metrics: map[models.Metric]models.MetricView{
			models.MetricTemperature: {Current: &current, Unit: "°C", Status: models.MetricOk},
		},
	}
	require.NoError(t, c.Put(ctx, view))
	assert.Equal(t, 30*time.Second, mr.TTL("brokkoli:entity:plant_1"))

	got, err := getJSON[models.EntityView](ctx, kv, "brokkoli:entity:plant_1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceOk, got.DeviceStatus)
	require.NotNil(t, got.Metrics[models.MetricTemperature].Current)
	assert.Equal(t, 21.5, *got.Metrics[models.MetricTemperature].Current)

	require.NoError(t, c.Delete(ctx, "plant_1"))
	_, err = getJSON[models.EntityView](ctx, kv, "brokkoli:entity:plant_1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisKVStore_Miss(t *testing.T) {
	_, client := setupTestRedis(t)
	kv := NewRedisKVStore(client)

	_, err := kv.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Contains(t, err.Error(), "nope")
}

func TestStatusPublisher_Publish(t *testing.T) {
	_, client := setupTestRedis(t)
	p := NewStatusPublisher(testConfig(), client, zap.NewNop())
	ctx := context.Background()

	id, err := p.Publish(ctx, models.StatusEvent{
		EntityID:             "plant_1",
		DeviceStatus:         models.DeviceProblem,
		PreviousDeviceStatus: models.DeviceOk,
		MetricStatus:         map[models.Metric]models.MetricStatus{models.MetricTemperature: models.MetricLow},
		At:                   1700000000,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := rediscommon.ReadLatest(ctx, client, "brokkoli:status", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var event models.StatusEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &event))
	assert.Equal(t, id, event.EventID)
	assert.Equal(t, models.DeviceProblem, event.DeviceStatus)
	assert.Equal(t, models.MetricLow, event.MetricStatus[models.MetricTemperature])
}

func TestStatusPublisher_Recent(t *testing.T) {
	_, client := setupTestRedis(t)
	p := NewStatusPublisher(testConfig(), client, zap.NewNop())
	ctx := context.Background()

	empty, err := p.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, id := range []string{"plant_1", "plant_2"} {
		_, err := p.Publish(ctx, models.StatusEvent{EntityID: id, DeviceStatus: models.DeviceProblem})
		require.NoError(t, err)
	}
	_, err = rediscommon.PublishToStream(ctx, client, "brokkoli:status", map[string]interface{}{"data": "{broken"})
	require.NoError(t, err)

	events, err := p.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "plant_2", events[0].EntityID)
	assert.Equal(t, "plant_1", events[1].EntityID)
	assert.NotEmpty(t, events[0].EventID)
}
