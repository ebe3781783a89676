// Package binding links one metric slot of an entity to an external value source.
package binding

import (
	"brokkoli/internal/models"
	"brokkoli/internal/source"

	"go.uber.org/zap"
)

// UnitChangeFunc called after the binding's unit changed from a non-empty unit
type UnitChangeFunc func(metric models.Metric, oldUnit, newUnit string)

// Binding tracks the current value of (entity, metric).
// Value is nil whenever Reason is not ReasonOk.
type Binding struct {
	entityID string
	metric   models.Metric
	info     models.MetricInfo
	// selfID identifier of this binding's own exposed state; an operator edit
	// of that state arrives here and forces a resync
	selfID   string
	sourceID string

	value  *float64
	raw    string
	unit   string
	reason models.Reason

	// derived the value is written by aggregation and source updates are ignored
	derived bool

	hub          source.Hub
	subs         []source.Subscription
	onUnitChange UnitChangeFunc
	logger       *zap.Logger
}

// New creates an unbound binding; call Bind to attach a source
func New(entityID string, metric models.Metric, hub source.Hub, logger *zap.Logger) *Binding {
	info, _ := models.Info(metric)
	return &Binding{
		entityID: entityID,
		metric:   metric,
		info:     info,
		selfID:   SelfID(entityID, metric),
		unit:     info.Unit,
		reason:   models.ReasonNoSource,
		hub:      hub,
		logger:   logger,
	}
}

// SelfID source id under which the binding's own state is exposed
func SelfID(entityID string, metric models.Metric) string {
	return "brokkoli." + entityID + "_" + string(metric)
}

// OnUnitChange registers the unit change hook
func (b *Binding) OnUnitChange(fn UnitChangeFunc) {
	b.onUnitChange = fn
}

// MarkDerived switches the binding to aggregation-owned mode
func (b *Binding) MarkDerived() {
	b.derived = true
	b.value = nil
	b.raw = ""
	b.reason = models.ReasonEmptyAggregation
}

// Derived reports whether aggregation owns the value
func (b *Binding) Derived() bool { return b.derived }

// Bind replaces the tracked source. The old subscriptions are dropped before
// the new ones exist, so a later notification from the old source is never seen.
// An empty sourceID clears the binding.
func (b *Binding) Bind(sourceID string) {
	b.unsubscribe()

	old := b.sourceID
	b.sourceID = sourceID
	b.value = nil
	b.raw = ""
	if sourceID == "" {
		b.reason = models.ReasonNoSource
	} else {
		b.reason = models.ReasonNotRead
	}
	if b.derived {
		b.reason = models.ReasonEmptyAggregation
	}

	if b.hub != nil {
		b.subs = append(b.subs, b.hub.Subscribe(b.selfID, b.listen))
		if sourceID != "" && sourceID != b.selfID {
			b.subs = append(b.subs, b.hub.Subscribe(sourceID, b.listen))
		}
	}

	if old != sourceID {
		b.logger.Debug("Metric rebound",
			zap.String("entity_id", b.entityID),
			zap.String("metric", string(b.metric)),
			zap.String("old_source_id", old),
			zap.String("source_id", sourceID),
		)
	}
}

// Close drops all subscriptions
func (b *Binding) Close() {
	b.unsubscribe()
}

func (b *Binding) unsubscribe() {
	for _, s := range b.subs {
		s.Unsubscribe()
	}
	b.subs = nil
}

func (b *Binding) listen(sourceID string, state *models.SourceState) {
	if sourceID == b.selfID && sourceID != b.sourceID {
		b.Refresh()
		return
	}
	b.OnSourceChanged(sourceID, state)
}

// OnSourceChanged applies a push notification. It returns false when the
// notification came from a source other than the bound one.
func (b *Binding) OnSourceChanged(sourceID string, state *models.SourceState) bool {
	if sourceID != b.sourceID || sourceID == "" {
		b.logger.Debug("Ignoring stale source notification",
			zap.String("entity_id", b.entityID),
			zap.String("metric", string(b.metric)),
			zap.String("event_source_id", sourceID),
			zap.String("source_id", b.sourceID),
		)
		return false
	}
	if b.derived {
		return false
	}
	b.apply(state)
	return true
}

// Refresh pulls the bound source. An unreadable source leaves the value nil with ReasonNotRead.
func (b *Binding) Refresh() {
	if b.derived {
		return
	}
	if b.sourceID == "" {
		b.value = nil
		b.raw = ""
		b.reason = models.ReasonNoSource
		return
	}
	if b.hub == nil {
		b.value = nil
		b.reason = models.ReasonNotRead
		return
	}
	st, err := b.hub.State(b.sourceID)
	if err != nil {
		b.value = nil
		b.raw = ""
		b.reason = models.ReasonNotRead
		return
	}
	b.apply(&st)
}

func (b *Binding) apply(state *models.SourceState) {
	if state == nil {
		b.value = nil
		b.raw = ""
		b.reason = models.ReasonNotRead
		return
	}
	if r := state.SentinelReason(); r != models.ReasonOk {
		b.value = nil
		b.raw = ""
		b.reason = r
		return
	}

	b.raw = string(state.State)
	if v, ok := state.Number(); ok {
		b.value = &v
		b.reason = models.ReasonOk
	} else {
		b.value = nil
		b.reason = models.ReasonParseFailure
	}

	b.copyUnit(state.Unit)
}

func (b *Binding) copyUnit(unit string) {
	if b.info.FixedUnit || unit == "" || unit == b.unit {
		return
	}
	old := b.unit
	b.unit = unit
	if b.onUnitChange != nil && old != "" {
		b.onUnitChange(b.metric, old, unit)
	}
}

// SetDerived writes an aggregated value; nil means the aggregate is unknown
func (b *Binding) SetDerived(v *float64, reason models.Reason) {
	if v == nil {
		b.value = nil
		b.reason = reason
		return
	}
	val := *v
	b.value = &val
	b.reason = models.ReasonOk
}

// RestoreUnit sets the starting unit without notifying the unit change hook.
// Fixed-unit metrics keep their catalogue unit.
func (b *Binding) RestoreUnit(unit string) {
	if b.info.FixedUnit || unit == "" {
		return
	}
	b.unit = unit
}

// SetUnit used by aggregation to carry the members' unit onto the group
func (b *Binding) SetUnit(unit string) {
	b.copyUnit(unit)
}

// Value current numeric value or nil
func (b *Binding) Value() *float64 {
	if b.value == nil {
		return nil
	}
	v := *b.value
	return &v
}

func (b *Binding) Metric() models.Metric { return b.metric }
func (b *Binding) SourceID() string      { return b.sourceID }
func (b *Binding) SelfID() string        { return b.selfID }
func (b *Binding) Unit() string          { return b.unit }
func (b *Binding) Reason() models.Reason { return b.reason }

// Raw last non-sentinel state text as reported by the source
func (b *Binding) Raw() string { return b.raw }
