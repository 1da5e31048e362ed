// Package convert holds the unit conversions and classifications shared by the
// upstream client and the republishing sinks. Everything here is pure.
package convert

import (
	"math"
	"strconv"
	"strings"
)

// Labels returned by CompassLabel outside the 16-point table.
const (
	DirectionUnknown  = "Unknown"
	DirectionVariable = "Variable"
)

var compassPoints = [...]string{
	"N", "NNE", "NE", "ENE",
	"E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW",
	"W", "WNW", "NW", "NNW",
	"N",
}

// CompassLabel classifies a bearing in degrees into one of the 16 compass points.
// NaN and infinite bearings are "Unknown"; buckets outside the table are "Variable".
func CompassLabel(bearing float64) string {
	if math.IsNaN(bearing) || math.IsInf(bearing, 0) {
		return DirectionUnknown
	}
	// Round half-up; math.Round would send -0.5 to -1.
	bucket := int(math.Floor(math.Mod(bearing, 360)/22.5 + 0.5))
	if bucket < 0 || bucket >= len(compassPoints) {
		return DirectionVariable
	}
	return compassPoints[bucket]
}

// CelsiusToFahrenheit converts °C to °F.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// KilometersToMiles converts km (or km/h) to miles (or mph).
func KilometersToMiles(km float64) float64 {
	return km * 0.62137
}

// CentimetersToInches converts cm to in.
func CentimetersToInches(cm float64) float64 {
	return cm * 0.3937008
}

// MillibarsToInches converts mb (hPa) to inHg.
func MillibarsToInches(mb float64) float64 {
	return mb * 0.029529980
}

// MetersPerSecondToKilometersPerHour converts m/s to km/h.
func MetersPerSecondToKilometersPerHour(ms float64) float64 {
	return ms * 3.6
}

// MillimetersToCentimeters converts mm to cm.
func MillimetersToCentimeters(mm float64) float64 {
	return mm / 10
}

// Record is one decoded JSON object, keyed by field name.
type Record map[string]any

// SumField adds up field across records. A present null adds 0. A record where the field
// is missing or not numeric poisons the sum with NaN; callers decide on their own fallback.
func SumField(records []Record, field string) float64 {
	var sum float64
	for _, r := range records {
		raw, present := r[field]
		if present && raw == nil {
			continue
		}
		v, ok := numeric(raw)
		if !ok {
			return math.NaN()
		}
		sum += v
	}
	return sum
}

// Number coerces a decoded JSON value to a float64. Missing, null, non-numeric and
// NaN values all become 0.
func Number(v any) float64 {
	f, ok := numeric(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
