package entity

import (
	"testing"

	"brokkoli/internal/models"
	"brokkoli/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEntity(t *testing.T, hub *source.Store, id string, kind models.EntityKind, members ...string) *Entity {
	t.Helper()
	cfg := models.EntityConfig{EntityID: id, Kind: kind, Members: members}
	e := New(cfg, models.DefaultConfig{}, hub, zap.NewNop())
	e.Setup(cfg, models.DefaultConfig{}, nil)
	return e
}

func TestRegistry_Lifecycle(t *testing.T) {
	hub := source.NewStore(zap.NewNop())
	r := NewRegistry(zap.NewNop())

	p1 := newEntity(t, hub, "p1", models.KindPlant)
	require.NoError(t, r.Register(p1))
	assert.ErrorIs(t, r.Register(p1), ErrDuplicateEntity)

	got, err := r.Lookup("p1")
	require.NoError(t, err)
	assert.Same(t, p1, got)

	_, err = r.Lookup("nope")
	assert.ErrorIs(t, err, ErrEntityNotFound)

	_, err = r.LookupGroup("p1")
	assert.ErrorIs(t, err, ErrNotGroup)
}

func TestRegistry_UnregisterDropsMembershipAndSubscriptions(t *testing.T) {
	hub := source.NewStore(zap.NewNop())
	r := NewRegistry(zap.NewNop())

	p1 := newEntity(t, hub, "p1", models.KindPlant)
	p1.Rebind(models.MetricTemperature, "sensor.t")
	c1 := newEntity(t, hub, "c1", models.KindCycle, "p1")
	require.NoError(t, r.Register(p1))
	require.NoError(t, r.Register(c1))
	assert.Equal(t, 1, hub.ListenerCount("sensor.t"))

	require.NoError(t, r.Unregister("p1"))
	assert.Empty(t, c1.Members())
	assert.Equal(t, 0, hub.ListenerCount("sensor.t"))
	assert.Len(t, r.All(), 1)
	assert.ErrorIs(t, r.Unregister("p1"), ErrEntityNotFound)
}

func TestRegistry_MembersAndGroups(t *testing.T) {
	hub := source.NewStore(zap.NewNop())
	r := NewRegistry(zap.NewNop())

	require.NoError(t, r.Register(newEntity(t, hub, "p1", models.KindPlant)))
	require.NoError(t, r.Register(newEntity(t, hub, "p2", models.KindPlant)))
	tent := newEntity(t, hub, "tent", models.KindTent, "cycle", "p2")
	cycle := newEntity(t, hub, "cycle", models.KindCycle, "p1", "ghost")
	require.NoError(t, r.Register(tent))
	require.NoError(t, r.Register(cycle))

	members := r.MembersOf(cycle)
	require.Len(t, members, 1)
	assert.Equal(t, "p1", members[0].ID())

	groups := r.GroupsOf("p2")
	require.Len(t, groups, 1)
	assert.Equal(t, "tent", groups[0].ID())

	ordered := r.GroupsInDependencyOrder()
	require.Len(t, ordered, 2)
	assert.Equal(t, "cycle", ordered[0].ID())
	assert.Equal(t, "tent", ordered[1].ID())
}

func TestRegistry_DependencyOrderSurvivesCycles(t *testing.T) {
	hub := source.NewStore(zap.NewNop())
	r := NewRegistry(zap.NewNop())

	require.NoError(t, r.Register(newEntity(t, hub, "a", models.KindCycle, "b")))
	require.NoError(t, r.Register(newEntity(t, hub, "b", models.KindCycle, "a")))

	assert.Len(t, r.GroupsInDependencyOrder(), 2)
}
