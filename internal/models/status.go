package models

// MetricStatus per-metric classification
type MetricStatus string

const (
	MetricUnknown MetricStatus = "unknown"
	MetricOk      MetricStatus = "ok"
	MetricLow     MetricStatus = "low"
	MetricHigh    MetricStatus = "high"
)

// OutOfRange Low or High
func (s MetricStatus) OutOfRange() bool {
	return s == MetricLow || s == MetricHigh
}

// DeviceStatus entity-level health
type DeviceStatus string

const (
	DeviceUnknown DeviceStatus = "unknown"
	DeviceOk      DeviceStatus = "ok"
	DeviceProblem DeviceStatus = "problem"
)

// Reason explains why a value or status is what it is.
// Carried from the binding through evaluation into the read model.
type Reason string

const (
	ReasonOk               Reason = "ok"
	ReasonNoSource         Reason = "no_source"
	ReasonUnavailable      Reason = "unavailable"
	ReasonUnknownState     Reason = "unknown_state"
	ReasonNotRead          Reason = "not_read"
	ReasonParseFailure     Reason = "parse_failure"
	ReasonNoThreshold      Reason = "no_threshold"
	ReasonEmptyAggregation Reason = "empty_aggregation"
)

// Strategy aggregation strategy for a group metric
type Strategy string

const (
	StrategyMean    Strategy = "mean"
	StrategyMedian  Strategy = "median"
	StrategyMin     Strategy = "min"
	StrategyMax     Strategy = "max"
	StrategyKeepOwn Strategy = "keep_own"
)

// ParseStrategy maps config spellings to a Strategy; "original" is accepted for keep_own
func ParseStrategy(s string) (Strategy, bool) {
	switch s {
	case "mean", "avg", "average":
		return StrategyMean, true
	case "median":
		return StrategyMedian, true
	case "min":
		return StrategyMin, true
	case "max":
		return StrategyMax, true
	case "keep_own", "keepOwn", "original":
		return StrategyKeepOwn, true
	default:
		return "", false
	}
}
