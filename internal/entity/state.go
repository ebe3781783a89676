package entity

import (
	"time"

	"brokkoli/internal/models"
	"brokkoli/internal/threshold"
)

// State what survives a restart: limits with their unit and bound source ids
type State struct {
	EntityID   string                           `json:"entity_id"`
	Thresholds map[models.Metric]threshold.Pair `json:"thresholds"`
	Sources    map[models.Metric]string         `json:"sources"`
	SavedAt    time.Time                        `json:"saved_at"`
}

// Setup restores persisted state when there is one, otherwise seeds thresholds
// from configuration and binds the configured sources.
func (e *Entity) Setup(cfg models.EntityConfig, defaults models.DefaultConfig, persisted *State) {
	sources := cfg.Sources
	if persisted != nil {
		e.thresholds.Restore(persisted.Thresholds)
		e.restoreUnits(persisted.Thresholds)
		sources = persisted.Sources
	} else {
		e.thresholds.SeedOnCreate(models.AllMetrics(), cfg.Limits, defaults.Limits, cfg.Triggers)
		e.bindingsDirty = true
	}
	e.Bind(sources)
}

// restoreUnits starts temperature bindings in the unit their persisted limits
// are expressed in, so sources that never report a unit keep them consistent.
func (e *Entity) restoreUnits(pairs map[models.Metric]threshold.Pair) {
	for m, p := range pairs {
		if models.TemperatureScale(p.Min.Unit) == "" {
			continue
		}
		if b := e.bindings[m]; b != nil {
			b.RestoreUnit(p.Min.Unit)
		}
	}
}

// Snapshot current persisted form
func (e *Entity) Snapshot(now time.Time) State {
	return State{
		EntityID:   e.id,
		Thresholds: e.thresholds.Snapshot(),
		Sources:    e.Sources(),
		SavedAt:    now,
	}
}
