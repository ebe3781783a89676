package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMetric metric key is not part of the catalogue
var ErrUnknownMetric = errors.New("unknown metric")

// Metric identifies one measured quantity
type Metric string

const (
	MetricTemperature           Metric = "temperature"
	MetricMoisture              Metric = "moisture"
	MetricConductivity          Metric = "conductivity"
	MetricIlluminance           Metric = "illuminance"
	MetricHumidity              Metric = "humidity"
	MetricCO2                   Metric = "co2"
	MetricPH                    Metric = "ph"
	MetricDLI                   Metric = "dli"
	MetricWaterConsumption      Metric = "water_consumption"
	MetricFertilizerConsumption Metric = "fertilizer_consumption"
	MetricPowerConsumption      Metric = "power_consumption"
)

// Limits a min/max literal pair
type Limits struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// MetricInfo static description of a metric
type MetricInfo struct {
	Metric   Metric
	Unit     string // canonical unit
	Decimals int    // default display precision
	Icon     string
	// FixedUnit the unit is dictated by the metric and never copied from the source
	FixedUnit bool
	// HardDefault last-resort thresholds; nil when the metric has no literal default
	HardDefault *Limits
	Strategy    Strategy // default aggregation strategy for groups
}

var catalogue = []MetricInfo{
	{Metric: MetricTemperature, Unit: "°C", Decimals: 1, Icon: "mdi:thermometer", HardDefault: &Limits{Min: 10, Max: 40}, Strategy: StrategyMean},
	{Metric: MetricMoisture, Unit: "%", Decimals: 0, Icon: "mdi:water", FixedUnit: true, HardDefault: &Limits{Min: 20, Max: 60}, Strategy: StrategyMean},
	{Metric: MetricConductivity, Unit: "µS/cm", Decimals: 0, Icon: "mdi:spa-outline", HardDefault: &Limits{Min: 500, Max: 3000}, Strategy: StrategyMean},
	{Metric: MetricIlluminance, Unit: "lx", Decimals: 0, Icon: "mdi:brightness-6", HardDefault: &Limits{Min: 0, Max: 100000}, Strategy: StrategyMean},
	{Metric: MetricHumidity, Unit: "%", Decimals: 0, Icon: "mdi:water-percent", FixedUnit: true, HardDefault: &Limits{Min: 20, Max: 60}, Strategy: StrategyMean},
	{Metric: MetricCO2, Unit: "ppm", Decimals: 0, Icon: "mdi:molecule-co2", FixedUnit: true, HardDefault: &Limits{Min: 400, Max: 2000}, Strategy: StrategyMean},
	{Metric: MetricPH, Unit: "pH", Decimals: 1, Icon: "mdi:ph", FixedUnit: true, HardDefault: &Limits{Min: 5.5, Max: 7.5}, Strategy: StrategyMedian},
	{Metric: MetricDLI, Unit: "mol/d⋅m²", Decimals: 1, Icon: "mdi:counter", FixedUnit: true, HardDefault: &Limits{Min: 2, Max: 30}, Strategy: StrategyMean},
	{Metric: MetricWaterConsumption, Unit: "L", Decimals: 2, Icon: "mdi:water-pump", Strategy: StrategyKeepOwn},
	{Metric: MetricFertilizerConsumption, Unit: "µS/cm", Decimals: 0, Icon: "mdi:chart-line-variant", Strategy: StrategyKeepOwn},
	{Metric: MetricPowerConsumption, Unit: "kWh", Decimals: 2, Icon: "mdi:flash", Strategy: StrategyKeepOwn},
}

var catalogueIndex = func() map[Metric]MetricInfo {
	m := make(map[Metric]MetricInfo, len(catalogue))
	for _, info := range catalogue {
		m[info.Metric] = info
	}
	return m
}()

// AllMetrics returns every metric in catalogue order
func AllMetrics() []Metric {
	out := make([]Metric, 0, len(catalogue))
	for _, info := range catalogue {
		out = append(out, info.Metric)
	}
	return out
}

// Info returns the catalogue entry for m
func Info(m Metric) (MetricInfo, bool) {
	info, ok := catalogueIndex[m]
	return info, ok
}

// ParseMetric resolves a metric key, case-insensitively
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := catalogueIndex[m]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownMetric, s)
	}
	return m, nil
}

// Valid reports whether m is part of the catalogue
func (m Metric) Valid() bool {
	_, ok := catalogueIndex[m]
	return ok
}

func (m Metric) String() string { return string(m) }
