package models

import "strings"

// TemperatureScale "C", "F" or "" for an unrecognised unit
func TemperatureScale(unit string) string {
	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "°C", "C", "℃", "CELSIUS":
		return "C"
	case "°F", "F", "℉", "FAHRENHEIT":
		return "F"
	}
	return ""
}

// ConvertTemperature converts v between two recognised temperature units
func ConvertTemperature(v float64, fromUnit, toUnit string) (float64, bool) {
	from, to := TemperatureScale(fromUnit), TemperatureScale(toUnit)
	if from == "" || to == "" {
		return v, false
	}
	switch {
	case from == to:
		return v, true
	case to == "F":
		return v*9/5 + 32, true
	default:
		return (v - 32) * 5 / 9, true
	}
}
