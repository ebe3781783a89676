// Package evaluator classifies metric values against thresholds and derives
// the device status of an entity.
package evaluator

import (
	"math"

	"brokkoli/internal/models"
	"brokkoli/internal/threshold"

	"go.uber.org/zap"
)

// Classify value against [min, max]; nil in any argument yields MetricUnknown
func Classify(value, min, max *float64) models.MetricStatus {
	if value == nil || min == nil || max == nil || math.IsNaN(*value) {
		return models.MetricUnknown
	}
	switch {
	case *value < *min:
		return models.MetricLow
	case *value > *max:
		return models.MetricHigh
	default:
		return models.MetricOk
	}
}

// Reading value and reason of one binding
type Reading struct {
	Value  *float64
	Reason models.Reason
}

// Thresholds read side of a threshold store
type Thresholds interface {
	Get(m models.Metric) (threshold.Pair, bool)
}

// MetricResult outcome for one metric
type MetricResult struct {
	Status models.MetricStatus
	Reason models.Reason
	// Skipped evaluation did not run this cycle; Status is the previous one
	Skipped bool
}

// Result outcome for one entity
type Result struct {
	Metrics map[models.Metric]MetricResult
	Device  models.DeviceStatus
}

// Evaluator stateless; previous statuses are passed in by the caller
type Evaluator struct {
	logger *zap.Logger
}

func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Evaluate runs one pass over metrics and then derives the device status
func (e *Evaluator) Evaluate(
	entityID string,
	metrics []models.Metric,
	readings map[models.Metric]Reading,
	thresholds Thresholds,
	previous map[models.Metric]models.MetricStatus,
) Result {
	res := Result{Metrics: make(map[models.Metric]MetricResult, len(metrics))}

	knownAny := false
	problem := false
	for _, m := range metrics {
		pair, hasPair := thresholds.Get(m)
		mr := e.evaluateMetric(entityID, m, readings[m], pair, hasPair, previous)
		res.Metrics[m] = mr

		if mr.Skipped {
			continue
		}
		if mr.Status != models.MetricUnknown {
			knownAny = true
		}
		if mr.Status.OutOfRange() && pair.TriggerEnabled {
			problem = true
		}
	}

	switch {
	case problem:
		res.Device = models.DeviceProblem
	case knownAny:
		res.Device = models.DeviceOk
	default:
		res.Device = models.DeviceUnknown
	}
	return res
}

func (e *Evaluator) evaluateMetric(
	entityID string,
	m models.Metric,
	r Reading,
	pair threshold.Pair,
	hasPair bool,
	previous map[models.Metric]models.MetricStatus,
) MetricResult {
	if !hasPair {
		return MetricResult{Status: models.MetricUnknown, Reason: models.ReasonNoThreshold}
	}
	if r.Reason == models.ReasonParseFailure {
		prev, ok := previous[m]
		if !ok {
			prev = models.MetricUnknown
		}
		e.logger.Debug("Skipping metric evaluation",
			zap.String("entity_id", entityID),
			zap.String("metric", string(m)),
			zap.String("previous_status", string(prev)),
		)
		return MetricResult{Status: prev, Reason: models.ReasonParseFailure, Skipped: true}
	}
	if r.Value == nil {
		reason := r.Reason
		if reason == "" || reason == models.ReasonOk {
			reason = models.ReasonNoSource
		}
		return MetricResult{Status: models.MetricUnknown, Reason: reason}
	}
	min, max := pair.Min.Value, pair.Max.Value
	return MetricResult{
		Status: Classify(r.Value, &min, &max),
		Reason: models.ReasonOk,
	}
}

// Statuses flattens a result for storage as the next cycle's previous statuses
func (r Result) Statuses() map[models.Metric]models.MetricStatus {
	out := make(map[models.Metric]models.MetricStatus, len(r.Metrics))
	for m, mr := range r.Metrics {
		out[m] = mr.Status
	}
	return out
}
