// Package aggregation derives group values from member values.
package aggregation

import (
	"math"
	"sort"

	"brokkoli/internal/binding"
	"brokkoli/internal/models"

	"go.uber.org/zap"
)

// Aggregate applies strategy to values. Nil and NaN entries are dropped first;
// if nothing is left the result is nil with ReasonEmptyAggregation.
// StrategyKeepOwn ignores values and returns own.
func Aggregate(strategy models.Strategy, values []*float64, own *float64) (*float64, models.Reason) {
	if strategy == models.StrategyKeepOwn {
		if own == nil {
			return nil, models.ReasonEmptyAggregation
		}
		v := *own
		return &v, models.ReasonOk
	}

	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			continue
		}
		nums = append(nums, *v)
	}
	if len(nums) == 0 {
		return nil, models.ReasonEmptyAggregation
	}

	var out float64
	switch strategy {
	case models.StrategyMedian:
		out = median(nums)
	case models.StrategyMin:
		out = nums[0]
		for _, v := range nums[1:] {
			out = math.Min(out, v)
		}
	case models.StrategyMax:
		out = nums[0]
		for _, v := range nums[1:] {
			out = math.Max(out, v)
		}
	default:
		sum := 0.0
		for _, v := range nums {
			sum += v
		}
		out = sum / float64(len(nums))
	}
	return &out, models.ReasonOk
}

func median(nums []float64) float64 {
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Node what the engine needs from an entity
type Node interface {
	ID() string
	Strategy(m models.Metric) models.Strategy
	Binding(m models.Metric) *binding.Binding
}

// Engine writes aggregated member values into a group's bindings
type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// Run aggregates every metric of group from members. Metrics whose strategy is
// keep_own are left untouched. Returns the number of metrics written.
func (e *Engine) Run(group Node, members []Node) int {
	written := 0
	for _, m := range models.AllMetrics() {
		strategy := group.Strategy(m)
		if strategy == models.StrategyKeepOwn {
			continue
		}
		target := group.Binding(m)
		if target == nil {
			continue
		}

		values, unit := e.collect(m, target.Unit(), members)
		v, reason := Aggregate(strategy, values, nil)
		if unit != "" {
			target.SetUnit(unit)
		}
		target.SetDerived(v, reason)
		written++

		if v == nil {
			e.logger.Debug("Empty aggregation input",
				zap.String("group_id", group.ID()),
				zap.String("metric", string(m)),
				zap.Int("member_count", len(members)),
			)
		}
	}
	return written
}

// collect member values; temperatures are converted to the first member's unit
func (e *Engine) collect(m models.Metric, groupUnit string, members []Node) ([]*float64, string) {
	values := make([]*float64, 0, len(members))
	unit := ""
	for _, member := range members {
		b := member.Binding(m)
		if b == nil {
			continue
		}
		v := b.Value()
		if v == nil {
			continue
		}
		if unit == "" {
			unit = b.Unit()
		}
		if m == models.MetricTemperature && b.Unit() != unit {
			converted, ok := models.ConvertTemperature(*v, b.Unit(), unit)
			if !ok {
				e.logger.Warn("Skipping member with unconvertible unit",
					zap.String("member_id", member.ID()),
					zap.String("unit", b.Unit()),
				)
				continue
			}
			v = &converted
		}
		values = append(values, v)
	}
	if unit == "" {
		unit = groupUnit
	}
	return values, unit
}
