// Package rounding resolves per-metric display precision.
//
// Overrides come from entity configuration (JSONB), so they may be numbers,
// numeric strings or garbage; anything that is not a non-negative integer
// falls back to the catalogue default.
package rounding

import (
	"math"
	"strconv"
	"strings"

	"brokkoli/internal/models"
)

// maxDecimals largest precision float64 still represents; larger overrides fall back
const maxDecimals = 15

// DecimalsFor returns the precision for metric
func DecimalsFor(metric models.Metric, overrides map[models.Metric]any) int {
	if raw, ok := overrides[metric]; ok {
		if d, ok := coerce(raw); ok {
			return d
		}
	}
	return builtin(metric)
}

// Policy binds the override chain (entity, then shared defaults) for one entity
type Policy struct {
	overrides map[models.Metric]any
	defaults  map[models.Metric]any
}

// NewPolicy entity overrides win over the shared default node
func NewPolicy(overrides, defaults map[models.Metric]any) *Policy {
	return &Policy{overrides: overrides, defaults: defaults}
}

// DecimalsFor entity override, then default-node override, then catalogue
func (p *Policy) DecimalsFor(metric models.Metric) int {
	if p == nil {
		return builtin(metric)
	}
	if raw, ok := p.overrides[metric]; ok {
		if d, ok := coerce(raw); ok {
			return d
		}
	}
	return DecimalsFor(metric, p.defaults)
}

// Round applies the metric precision to v
func (p *Policy) Round(metric models.Metric, v float64) float64 {
	return Round(v, p.DecimalsFor(metric))
}

// RoundPtr nil-safe Round
func (p *Policy) RoundPtr(metric models.Metric, v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := p.Round(metric, *v)
	return &r
}

// Round half away from zero
func Round(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	pow := math.Pow10(decimals)
	return math.Round(v*pow) / pow
}

func builtin(metric models.Metric) int {
	if info, ok := models.Info(metric); ok {
		return info.Decimals
	}
	return 0
}

func coerce(raw any) (int, bool) {
	var f float64
	switch v := raw.(type) {
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || f < 0 || f != math.Trunc(f) || f > maxDecimals {
		return 0, false
	}
	return int(f), true
}
