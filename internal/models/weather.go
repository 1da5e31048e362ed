package models

import "time"

// Report is the canonical current-conditions observation built once per poll cycle.
// Numeric fields are always defined; absent or non-numeric upstream values map to 0.
type Report struct {
	StationID          string    `json:"stationId"`
	ObservationStation string    `json:"observationStation"`
	ObservationTime    string    `json:"observationTime"`
	ObservationTimeUTC time.Time `json:"observationTimeUtc"`
	Units              Units     `json:"units"`

	WindBearing   float64 `json:"windBearing"`
	WindDirection string  `json:"windDirection"`
	WindSpeed     float64 `json:"windSpeed"`
	WindSpeedMax  float64 `json:"windSpeedMax"`

	Humidity       float64 `json:"humidity"`
	SolarRadiation float64 `json:"solarRadiation"`
	UVIndex        float64 `json:"uvIndex"`
	Temperature    float64 `json:"temperature"`
	DewPoint       float64 `json:"dewPoint"`
	AirPressure    float64 `json:"airPressure"`

	RainDay            float64 `json:"rainDay"`
	Precipitation      float64 `json:"precipitation"`
	PrecipitationTotal float64 `json:"precipitationTotal"`

	// Raw is the upstream observation object as received. Sinks may need fields
	// that do not survive normalization.
	Raw map[string]any `json:"raw,omitempty"`
}

// Forecast is one calendar day of the 5-day forecast.
type Forecast struct {
	ForecastDay string    `json:"forecastDay"`
	SunriseTime time.Time `json:"sunriseTime"`
	SunsetTime  time.Time `json:"sunsetTime"`

	CloudCover                float64 `json:"cloudCover"`
	Condition                 string  `json:"condition"`
	ConditionCategory         int     `json:"conditionCategory"`
	ConditionCategoryDetailed int     `json:"conditionCategoryDetailed"`

	Humidity       float64 `json:"humidity"`
	UVIndex        float64 `json:"uvIndex"`
	TemperatureMin float64 `json:"temperatureMin"`
	TemperatureMax float64 `json:"temperatureMax"`

	RainBool      bool    `json:"rainBool"`
	SnowBool      bool    `json:"snowBool"`
	Precipitation float64 `json:"precipitation"`
	RainChance    float64 `json:"rainChance"`

	WindDirection string  `json:"windDirection"`
	WindBearing   float64 `json:"windBearing"`
	WindSpeed     float64 `json:"windSpeed"`
}

// Weather is the value handed to the update callback: the latest report and forecasts.
// Either part may be absent when only one of the two upstream requests completed.
type Weather struct {
	Report    *Report    `json:"report,omitempty"`
	Forecasts []Forecast `json:"forecasts,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Merge overlays newer on w. Parts missing from newer keep the value from w.
func (w Weather) Merge(newer Weather) Weather {
	out := w
	if newer.Report != nil {
		out.Report = newer.Report
	}
	if newer.Forecasts != nil {
		out.Forecasts = newer.Forecasts
	}
	if newer.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = newer.UpdatedAt
	}
	return out
}

// Empty reports whether neither a report nor forecasts are present.
func (w Weather) Empty() bool {
	return w.Report == nil && len(w.Forecasts) == 0
}
