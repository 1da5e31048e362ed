package models

import "fmt"

// Units is the unit system requested from weather.com and used for every numeric
// field of a Report or Forecast.
type Units string

const (
	UnitsSI       Units = "si"        // °C, m/s, mb, mm
	UnitsMetric   Units = "metric"    // °C, km/h, mb, mm
	UnitsImperial Units = "imperial"  // °F, mph, inHg, in
	UnitsUKHybrid Units = "uk-hybrid" // °C, mph, mb, mm
)

// ParseUnits maps a configured unit name to Units. Empty selects UnitsSI.
func ParseUnits(s string) (Units, error) {
	switch u := Units(s); u {
	case "":
		return UnitsSI, nil
	case UnitsSI, UnitsMetric, UnitsImperial, UnitsUKHybrid:
		return u, nil
	default:
		return "", fmt.Errorf("unknown unit system %q (want si, metric, imperial or uk-hybrid)", s)
	}
}

// Code is the weather.com "units" query parameter.
func (u Units) Code() string {
	switch u {
	case UnitsMetric:
		return "m"
	case UnitsImperial:
		return "e"
	case UnitsUKHybrid:
		return "h"
	default:
		return "s"
	}
}

// ObservationKey is the name of the per-unit sub-object in a PWS observation.
func (u Units) ObservationKey() string {
	switch u {
	case UnitsMetric:
		return "metric"
	case UnitsImperial:
		return "imperial"
	case UnitsUKHybrid:
		return "uk_hybrid"
	default:
		return "metric_si"
	}
}
