package client

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-bridge/internal/convert"
	"github.com/kjstillabower/weather-bridge/internal/models"
)

const observationTimeLayout = "15:04:05"

type observationResponse struct {
	Observations []map[string]any `json:"observations"`
}

// parseReport maps observations[0] of a PWS current-conditions body. Missing or non-numeric
// values become 0; only an undecodable body or an empty observation list fails.
func (c *WundergroundClient) parseReport(body []byte) (report models.Report, err error) {
	defer recoverParse("report", &err)

	var resp observationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.Report{}, fmt.Errorf("%s: %w: %w", endpointObservation, ErrParse, err)
	}
	if len(resp.Observations) == 0 || resp.Observations[0] == nil {
		return models.Report{}, fmt.Errorf("%s: %w: no observations for station %s", endpointObservation, ErrParse, c.cfg.StationID)
	}
	obs := resp.Observations[0]

	key := c.cfg.Units.ObservationKey()
	values, ok := obs[key].(map[string]any)
	if !ok {
		c.logger.Warn("observation has no unit values",
			zap.String("station", c.cfg.StationID),
			zap.String("units", key),
		)
		values = map[string]any{}
	}

	stationID := stringValue(obs["stationID"])
	if stationID == "" {
		stationID = c.cfg.StationID
	}

	report = models.Report{
		StationID:          stationID,
		ObservationStation: stationID + " : " + stringValue(obs["neighborhood"]),
		Units:              c.cfg.Units,

		WindBearing:  convert.Number(obs["winddir"]),
		WindSpeed:    convert.Number(values["windSpeed"]),
		WindSpeedMax: convert.Number(values["windGust"]),

		Humidity:       convert.Number(obs["humidity"]),
		SolarRadiation: convert.Number(obs["solarRadiation"]),
		UVIndex:        convert.Number(obs["uv"]),
		Temperature:    convert.Number(values["temp"]),
		DewPoint:       convert.Number(values["dewpt"]),
		AirPressure:    convert.Number(values["pressure"]),

		RainDay:            convert.Number(values["precipTotal"]),
		Precipitation:      convert.Number(values["precipRate"]),
		PrecipitationTotal: convert.Number(values["precipTotal"]),

		Raw: obs,
	}
	report.WindDirection = convert.CompassLabel(math.Trunc(report.WindBearing))

	if t, err := time.Parse(time.RFC3339, stringValue(obs["obsTimeUtc"])); err == nil {
		report.ObservationTimeUTC = t.UTC()
		report.ObservationTime = t.In(c.cfg.Location).Format(observationTimeLayout)
	}

	return report, nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// recoverParse turns a mapping panic into ErrParse so a malformed payload never escapes
// as a panic.
func recoverParse(part string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s: %w: mapping panicked: %v", part, ErrParse, r)
	}
}
