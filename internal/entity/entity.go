// Package entity holds monitored entities (plants and the groups that
// contain them) and the registry owning their lifecycle.
package entity

import (
	"time"

	"brokkoli/internal/binding"
	"brokkoli/internal/evaluator"
	"brokkoli/internal/models"
	"brokkoli/internal/rounding"
	"brokkoli/internal/source"
	"brokkoli/internal/threshold"

	"go.uber.org/zap"
)

// Entity one plant, cycle or tent. It has a binding for every catalogue metric.
type Entity struct {
	id   string
	name string
	kind models.EntityKind

	bindings     map[models.Metric]*binding.Binding
	thresholds   *threshold.Store
	rounding     *rounding.Policy
	aggregations map[models.Metric]models.Strategy
	members      []string

	statuses map[models.Metric]models.MetricStatus
	reasons  map[models.Metric]models.Reason
	device   models.DeviceStatus

	bindingsDirty bool
	logger        *zap.Logger
}

// New builds an entity from its configuration. Thresholds are neither seeded
// nor restored here; see Setup.
func New(cfg models.EntityConfig, defaults models.DefaultConfig, hub source.Hub, logger *zap.Logger) *Entity {
	e := &Entity{
		id:           cfg.EntityID,
		name:         cfg.Name,
		kind:         cfg.Kind,
		bindings:     make(map[models.Metric]*binding.Binding),
		thresholds:   threshold.NewStore(cfg.EntityID, logger),
		rounding:     rounding.NewPolicy(cfg.Decimals, defaults.Decimals),
		aggregations: make(map[models.Metric]models.Strategy),
		statuses:     make(map[models.Metric]models.MetricStatus),
		reasons:      make(map[models.Metric]models.Reason),
		device:       models.DeviceUnknown,
		logger:       logger,
	}
	if e.kind == "" {
		e.kind = models.KindPlant
	}

	for _, m := range models.AllMetrics() {
		b := binding.New(e.id, m, hub, logger)
		b.OnUnitChange(e.unitChanged)
		if e.kind.IsGroup() {
			info, _ := models.Info(m)
			strategy := info.Strategy
			if s, ok := cfg.Aggregations[m]; ok {
				strategy = s
			}
			e.aggregations[m] = strategy
			if strategy != models.StrategyKeepOwn {
				b.MarkDerived()
			}
		}
		e.bindings[m] = b
		e.statuses[m] = models.MetricUnknown
	}

	for _, id := range cfg.Members {
		e.AddMember(id)
	}
	return e
}

func (e *Entity) unitChanged(m models.Metric, oldUnit, newUnit string) {
	if e.thresholds.ConvertUnit(m, newUnit) {
		e.logger.Info("Thresholds follow sensor unit",
			zap.String("entity_id", e.id),
			zap.String("metric", string(m)),
			zap.String("old_unit", oldUnit),
			zap.String("new_unit", newUnit),
		)
	}
}

func (e *Entity) ID() string              { return e.id }
func (e *Entity) Name() string            { return e.name }
func (e *Entity) Kind() models.EntityKind { return e.kind }
func (e *Entity) IsGroup() bool           { return e.kind.IsGroup() }

// Binding the metric's binding; nil for metrics outside the catalogue
func (e *Entity) Binding(m models.Metric) *binding.Binding {
	return e.bindings[m]
}

func (e *Entity) Thresholds() *threshold.Store { return e.thresholds }
func (e *Entity) Rounding() *rounding.Policy   { return e.rounding }

// Strategy aggregation strategy of m; keep_own for leaves
func (e *Entity) Strategy(m models.Metric) models.Strategy {
	if s, ok := e.aggregations[m]; ok {
		return s
	}
	return models.StrategyKeepOwn
}

// Bind attaches sources and reads them once
func (e *Entity) Bind(sources map[models.Metric]string) {
	for _, m := range models.AllMetrics() {
		e.bindings[m].Bind(sources[m])
		e.bindings[m].Refresh()
	}
}

// Rebind replaces one metric's source and refreshes it
func (e *Entity) Rebind(m models.Metric, sourceID string) {
	b := e.bindings[m]
	if b == nil {
		return
	}
	b.Bind(sourceID)
	b.Refresh()
	e.bindingsDirty = true
}

// Sources currently bound source ids, for persistence
func (e *Entity) Sources() map[models.Metric]string {
	out := make(map[models.Metric]string)
	for m, b := range e.bindings {
		if b.SourceID() != "" {
			out[m] = b.SourceID()
		}
	}
	return out
}

// ForceRefresh every binding pulls its source synchronously
func (e *Entity) ForceRefresh() {
	for _, m := range models.AllMetrics() {
		e.bindings[m].Refresh()
	}
}

// Close drops all source subscriptions
func (e *Entity) Close() {
	for _, b := range e.bindings {
		b.Close()
	}
}

// Members ordered member ids
func (e *Entity) Members() []string {
	return append([]string(nil), e.members...)
}

// AddMember appends id unless present; only groups hold members
func (e *Entity) AddMember(id string) bool {
	if !e.IsGroup() || id == "" || id == e.id || e.HasMember(id) {
		return false
	}
	e.members = append(e.members, id)
	return true
}

// RemoveMember drops id, keeping the order of the rest
func (e *Entity) RemoveMember(id string) bool {
	for i, m := range e.members {
		if m == id {
			e.members = append(e.members[:i], e.members[i+1:]...)
			return true
		}
	}
	return false
}

// SetMembers replaces the member list, keeping the given order; reports whether it changed
func (e *Entity) SetMembers(ids []string) bool {
	if !e.IsGroup() {
		return false
	}
	before := e.members
	e.members = nil
	for _, id := range ids {
		e.AddMember(id)
	}
	if len(before) != len(e.members) {
		return true
	}
	for i := range before {
		if before[i] != e.members[i] {
			return true
		}
	}
	return false
}

func (e *Entity) HasMember(id string) bool {
	for _, m := range e.members {
		if m == id {
			return true
		}
	}
	return false
}

// Evaluate classifies every metric once and stores the outcome
func (e *Entity) Evaluate(ev *evaluator.Evaluator) evaluator.Result {
	metrics := models.AllMetrics()
	readings := make(map[models.Metric]evaluator.Reading, len(metrics))
	for _, m := range metrics {
		b := e.bindings[m]
		readings[m] = evaluator.Reading{Value: b.Value(), Reason: b.Reason()}
	}

	res := ev.Evaluate(e.id, metrics, readings, e.thresholds, e.statuses)
	for m, mr := range res.Metrics {
		e.statuses[m] = mr.Status
		e.reasons[m] = mr.Reason
	}
	e.device = res.Device
	return res
}

// DeviceStatus result of the last Evaluate
func (e *Entity) DeviceStatus() models.DeviceStatus { return e.device }

// MetricStatuses copy of the last per-metric statuses
func (e *Entity) MetricStatuses() map[models.Metric]models.MetricStatus {
	out := make(map[models.Metric]models.MetricStatus, len(e.statuses))
	for m, s := range e.statuses {
		out[m] = s
	}
	return out
}

// Dirty thresholds or bindings changed since MarkClean
func (e *Entity) Dirty() bool {
	return e.bindingsDirty || e.thresholds.Dirty()
}

// MarkClean called after the entity state was persisted
func (e *Entity) MarkClean() {
	e.bindingsDirty = false
	e.thresholds.MarkClean()
}

// View builds the read model with values rounded per metric
func (e *Entity) View(now time.Time) models.EntityView {
	view := models.EntityView{
		EntityID:        e.id,
		Name:            e.name,
		Kind:            e.kind,
		DeviceStatus:    e.device,
		PerMetricStatus: e.MetricStatuses(),
		Metrics:         make(map[models.Metric]models.MetricView, len(e.bindings)),
		Members:         e.Members(),
		UpdatedAt:       now,
	}

	for _, m := range models.AllMetrics() {
		b := e.bindings[m]
		info, _ := models.Info(m)
		mv := models.MetricView{
			Current:  e.rounding.RoundPtr(m, b.Value()),
			Icon:     info.Icon,
			Unit:     b.Unit(),
			Status:   e.statuses[m],
			Reason:   e.reasons[m],
			Decimals: e.rounding.DecimalsFor(m),
		}
		if mv.Reason == "" {
			mv.Reason = b.Reason()
		}
		if id := b.SourceID(); id != "" {
			mv.SourceID = &id
		}
		if p, ok := e.thresholds.Get(m); ok {
			mv.Min = e.rounding.RoundPtr(m, &p.Min.Value)
			mv.Max = e.rounding.RoundPtr(m, &p.Max.Value)
			mv.TriggerEnabled = p.TriggerEnabled
		}
		view.Metrics[m] = mv
	}
	return view
}
