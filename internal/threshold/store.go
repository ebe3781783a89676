// Package threshold owns the min/max limits of one entity.
package threshold

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"brokkoli/internal/models"

	"go.uber.org/zap"
)

// ErrNoThreshold the metric has no configured pair
var ErrNoThreshold = errors.New("no threshold configured")

// Bound selects the lower or upper limit
type Bound string

const (
	BoundMin Bound = "min"
	BoundMax Bound = "max"
)

// ParseBound accepts "min" and "max"
func ParseBound(s string) (Bound, error) {
	switch Bound(strings.ToLower(s)) {
	case BoundMin:
		return BoundMin, nil
	case BoundMax:
		return BoundMax, nil
	}
	return "", fmt.Errorf("invalid bound %q", s)
}

// Limit one stored limit with the unit it is expressed in
type Limit struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Pair limits and trigger flag of one metric; also the persisted form
type Pair struct {
	Min            Limit `json:"min"`
	Max            Limit `json:"max"`
	TriggerEnabled bool  `json:"trigger_enabled"`
}

// Store thresholds of one entity
type Store struct {
	entityID     string
	pairs        map[models.Metric]*Pair
	newlyCreated bool
	dirty        bool
	logger       *zap.Logger
}

// NewStore creates an empty store flagged as newly created
func NewStore(entityID string, logger *zap.Logger) *Store {
	return &Store{
		entityID:     entityID,
		pairs:        make(map[models.Metric]*Pair),
		newlyCreated: true,
		logger:       logger,
	}
}

// SeedOnCreate resolves every metric's limits from explicit config, then the
// default node, then the catalogue's hard default. It only runs while the
// store is newly created and clears that flag. Returns the number of pairs seeded.
func (s *Store) SeedOnCreate(
	metrics []models.Metric,
	explicit map[models.Metric]models.Limits,
	defaults map[models.Metric]models.Limits,
	triggers map[models.Metric]bool,
) int {
	if !s.newlyCreated {
		return 0
	}
	s.newlyCreated = false

	seeded := 0
	for _, m := range metrics {
		info, ok := models.Info(m)
		if !ok {
			continue
		}
		limits, ok := resolve(m, info, explicit, defaults)
		if !ok {
			s.logger.Debug("No threshold configured",
				zap.String("entity_id", s.entityID),
				zap.String("metric", string(m)),
			)
			continue
		}
		trigger := true
		if t, ok := triggers[m]; ok {
			trigger = t
		}
		s.pairs[m] = &Pair{
			Min:            Limit{Value: limits.Min, Unit: info.Unit},
			Max:            Limit{Value: limits.Max, Unit: info.Unit},
			TriggerEnabled: trigger,
		}
		seeded++
	}
	s.dirty = seeded > 0

	s.logger.Info("Seeded thresholds",
		zap.String("entity_id", s.entityID),
		zap.Int("seeded_count", seeded),
	)
	return seeded
}

func resolve(m models.Metric, info models.MetricInfo, explicit, defaults map[models.Metric]models.Limits) (models.Limits, bool) {
	if l, ok := explicit[m]; ok {
		return l, true
	}
	if l, ok := defaults[m]; ok {
		return l, true
	}
	if info.HardDefault != nil {
		return *info.HardDefault, true
	}
	return models.Limits{}, false
}

// Restore replaces all pairs with persisted ones and disables seeding
func (s *Store) Restore(persisted map[models.Metric]Pair) {
	s.newlyCreated = false
	s.pairs = make(map[models.Metric]*Pair, len(persisted))
	for m, p := range persisted {
		if !m.Valid() {
			continue
		}
		pair := p
		s.pairs[m] = &pair
	}
	s.dirty = false
}

// IsNewlyCreated true until SeedOnCreate or Restore ran
func (s *Store) IsNewlyCreated() bool { return s.newlyCreated }

// Get returns a copy of the metric's pair
func (s *Store) Get(m models.Metric) (Pair, bool) {
	p, ok := s.pairs[m]
	if !ok {
		return Pair{}, false
	}
	return *p, true
}

// Metrics configured metrics, sorted
func (s *Store) Metrics() []models.Metric {
	out := make([]models.Metric, 0, len(s.pairs))
	for m := range s.pairs {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetValue operator edit of one bound
func (s *Store) SetValue(m models.Metric, bound Bound, value float64) error {
	p, ok := s.pairs[m]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoThreshold, m)
	}
	switch bound {
	case BoundMin:
		p.Min.Value = value
	case BoundMax:
		p.Max.Value = value
	default:
		return fmt.Errorf("invalid bound %q", bound)
	}
	s.dirty = true

	s.logger.Info("Threshold updated",
		zap.String("entity_id", s.entityID),
		zap.String("metric", string(m)),
		zap.String("bound", string(bound)),
		zap.Float64("value", value),
	)
	return nil
}

// Configure creates or replaces a pair; unit is the canonical unit when empty
func (s *Store) Configure(m models.Metric, limits models.Limits, unit string) error {
	info, ok := models.Info(m)
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownMetric, m)
	}
	if unit == "" {
		unit = info.Unit
	}
	trigger := true
	if p, ok := s.pairs[m]; ok {
		trigger = p.TriggerEnabled
	}
	s.pairs[m] = &Pair{
		Min:            Limit{Value: limits.Min, Unit: unit},
		Max:            Limit{Value: limits.Max, Unit: unit},
		TriggerEnabled: trigger,
	}
	s.dirty = true
	return nil
}

// SetTrigger enables or silences a metric's effect on device status
func (s *Store) SetTrigger(m models.Metric, enabled bool) error {
	p, ok := s.pairs[m]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoThreshold, m)
	}
	if p.TriggerEnabled != enabled {
		p.TriggerEnabled = enabled
		s.dirty = true
	}
	return nil
}

// ConvertUnit keeps temperature limits physically equal when the sensor's unit
// changes. Other metrics and unrecognised units are left alone.
func (s *Store) ConvertUnit(m models.Metric, newUnit string) bool {
	if m != models.MetricTemperature {
		return false
	}
	p, ok := s.pairs[m]
	if !ok {
		return false
	}
	if models.TemperatureScale(newUnit) == "" {
		return false
	}

	changed := convertLimit(&p.Min, newUnit)
	changed = convertLimit(&p.Max, newUnit) || changed
	if changed {
		s.dirty = true
		s.logger.Info("Converted temperature thresholds",
			zap.String("entity_id", s.entityID),
			zap.String("unit", newUnit),
			zap.Float64("min", p.Min.Value),
			zap.Float64("max", p.Max.Value),
		)
	}
	return changed
}

func convertLimit(l *Limit, newUnit string) bool {
	if models.TemperatureScale(l.Unit) == models.TemperatureScale(newUnit) {
		return false
	}
	v, ok := models.ConvertTemperature(l.Value, l.Unit, newUnit)
	if !ok {
		return false
	}
	l.Value = v
	l.Unit = newUnit
	return true
}

// Snapshot copies all pairs for persistence
func (s *Store) Snapshot() map[models.Metric]Pair {
	out := make(map[models.Metric]Pair, len(s.pairs))
	for m, p := range s.pairs {
		out[m] = *p
	}
	return out
}

// Dirty pairs changed since the last MarkClean
func (s *Store) Dirty() bool { return s.dirty }

// MarkClean called after the pairs were persisted
func (s *Store) MarkClean() { s.dirty = false }
