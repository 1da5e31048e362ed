package client

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/kjstillabower/weather-bridge/internal/convert"
	"github.com/kjstillabower/weather-bridge/internal/models"
)

const (
	forecastTimeLayout = "2006-01-02T15:04:05-0700"
	maxConditionLength = 64
)

// forecastResponse is the v3 daily forecast. Per-day arrays hold one entry per calendar day;
// daypart arrays hold two (day, night) per calendar day, either of which may be null.
type forecastResponse struct {
	DayOfWeek                 []any             `json:"dayOfWeek"`
	SunriseTimeLocal          []any             `json:"sunriseTimeLocal"`
	SunsetTimeLocal           []any             `json:"sunsetTimeLocal"`
	TemperatureMax            []any             `json:"temperatureMax"`
	TemperatureMin            []any             `json:"temperatureMin"`
	CalendarDayTemperatureMax []any             `json:"calendarDayTemperatureMax"`
	CalendarDayTemperatureMin []any             `json:"calendarDayTemperatureMin"`
	Qpf                       []any             `json:"qpf"`
	QpfSnow                   []any             `json:"qpfSnow"`
	Daypart                   []forecastDaypart `json:"daypart"`
}

type forecastDaypart struct {
	CloudCover            []any `json:"cloudCover"`
	IconCode              []any `json:"iconCode"`
	WxPhraseLong          []any `json:"wxPhraseLong"`
	RelativeHumidity      []any `json:"relativeHumidity"`
	UVIndex               []any `json:"uvIndex"`
	PrecipChance          []any `json:"precipChance"`
	WindDirection         []any `json:"windDirection"`
	WindDirectionCardinal []any `json:"windDirectionCardinal"`
	WindSpeed             []any `json:"windSpeed"`
}

func (c *WundergroundClient) parseForecasts(body []byte, days int) (forecasts []models.Forecast, err error) {
	defer recoverParse("forecast", &err)

	var resp forecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", endpointForecast, ErrParse, err)
	}

	var dp forecastDaypart
	if len(resp.Daypart) > 0 {
		dp = resp.Daypart[0]
	}

	n := len(resp.DayOfWeek)
	if n == 0 {
		n = (len(dp.IconCode) + 1) / 2
	}
	if n == 0 {
		return nil, fmt.Errorf("%s: %w: forecast has no days", endpointForecast, ErrParse)
	}
	n = min(n, days)

	forecasts = make([]models.Forecast, 0, n)
	for d := 0; d < n; d++ {
		forecasts = append(forecasts, c.mapForecastDay(resp, dp, d))
	}
	return forecasts, nil
}

func (c *WundergroundClient) mapForecastDay(resp forecastResponse, dp forecastDaypart, d int) models.Forecast {
	f := models.Forecast{
		ForecastDay: stringValue(at(resp.DayOfWeek, d)),
		SunriseTime: parseLocalTime(at(resp.SunriseTimeLocal, d)),
		SunsetTime:  parseLocalTime(at(resp.SunsetTimeLocal, d)),

		CloudCover: daypartNumber(dp.CloudCover, d),
		Condition:  truncate(daypartLabel(dp.WxPhraseLong, d), maxConditionLength),

		Humidity:       daypartNumber(dp.RelativeHumidity, d),
		UVIndex:        daypartNumber(dp.UVIndex, d),
		TemperatureMax: convert.Number(firstPresent(at(resp.TemperatureMax, d), at(resp.CalendarDayTemperatureMax, d))),
		TemperatureMin: convert.Number(firstPresent(at(resp.TemperatureMin, d), at(resp.CalendarDayTemperatureMin, d))),

		RainChance:    daypartNumber(dp.PrecipChance, d),
		WindDirection: daypartLabel(dp.WindDirectionCardinal, d),
		WindBearing:   daypartNumber(dp.WindDirection, d),
		WindSpeed:     daypartNumber(dp.WindSpeed, d),
	}

	precipitation := convert.SumField([]convert.Record{
		{"amount": at(resp.Qpf, d)},
		{"amount": at(resp.QpfSnow, d)},
	}, "amount")
	if math.IsNaN(precipitation) {
		precipitation = 0
	}
	f.Precipitation = precipitation

	// A day with no icon in either slot stays unclassified rather than mapping to code 0.
	if icon := daypartValue(dp.IconCode, d); icon != nil {
		code := int(convert.Number(icon))
		f.ConditionCategoryDetailed = CategoryOf(c.logger, code, true)
		f.ConditionCategory = f.ConditionCategoryDetailed
		if !c.cfg.DetailedConditions {
			f.ConditionCategory = CategoryOf(nil, code, false)
		}
	}
	f.RainBool = isRain(f.ConditionCategoryDetailed)
	f.SnowBool = isSnow(f.ConditionCategoryDetailed)

	return f
}

// daypartValue picks the day slot of calendar day d, falling back to the night slot.
func daypartValue(values []any, d int) any {
	if v := at(values, 2*d); v != nil {
		return v
	}
	return at(values, 2*d+1)
}

func daypartNumber(values []any, d int) float64 {
	return convert.Number(daypartValue(values, d))
}

func daypartLabel(values []any, d int) string {
	return stringValue(daypartValue(values, d))
}

func at(values []any, i int) any {
	if i < 0 || i >= len(values) {
		return nil
	}
	return values[i]
}

func firstPresent(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func parseLocalTime(v any) time.Time {
	t, err := time.Parse(forecastTimeLayout, stringValue(v))
	if err != nil {
		return time.Time{}
	}
	return t
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
