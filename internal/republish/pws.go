package republish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-bridge/internal/circuitbreaker"
	"github.com/kjstillabower/weather-bridge/internal/convert"
	"github.com/kjstillabower/weather-bridge/internal/models"
)

const (
	DefaultPWSURL = "https://pwsupdate.pwsweather.com/api/v1/submitwx"

	pwsDateLayout = "2006-01-02 15:04:05"
)

var ErrPWSRejected = errors.New("pws rejected submission")

type PWSConfig struct {
	StationID string
	APIKey    string
	URL       string
	Timeout   time.Duration
}

// PWS submits reports to PWS Weather's update endpoint in imperial units.
type PWS struct {
	cfg     PWSConfig
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewPWS(cfg PWSConfig, logger *zap.Logger) (*PWS, error) {
	if cfg.StationID == "" {
		return nil, errors.New("pws: station id is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("pws: api key is required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultPWSURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PWS{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// SetCircuitBreaker guards standalone Notify calls. Inside a Fanout the breaker passed to Add applies.
func (p *PWS) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	p.breaker = cb
}

func (p *PWS) Name() string { return "pws" }

// Notify submits report and logs the outcome. Failures are never returned.
func (p *PWS) Notify(ctx context.Context, report models.Report) {
	deliver(ctx, target{sink: p, breaker: p.breaker}, p.logger, report)
}

// Publish performs one submission. Non-2xx responses are errors.
func (p *PWS) Publish(ctx context.Context, report models.Report) error {
	u, err := url.Parse(p.cfg.URL)
	if err != nil {
		return fmt.Errorf("pws: invalid URL: %w", err)
	}
	u.RawQuery = Query(p.cfg.StationID, p.cfg.APIKey, report).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("pws: create request: %w", err)
	}

	p.logger.Info("posting to PWS", zap.String("station", p.cfg.StationID))
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pws: request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrPWSRejected, resp.StatusCode)
	}
	p.logger.Info("data posted to PWS", zap.Int("status", resp.StatusCode))
	return nil
}

// Query builds the PWS updateraw parameters for report, converting to imperial units.
func Query(stationID, apiKey string, report models.Report) url.Values {
	v := imperialValues(report)

	q := url.Values{}
	q.Set("ID", stationID)
	q.Set("PASSWORD", apiKey)
	q.Set("softwaretype", "Homebridge")
	q.Set("action", "updateraw")
	q.Set("dateutc", dateUTC(report.ObservationTimeUTC))
	q.Set("winddir", formatRaw(report.WindBearing))
	q.Set("windspeedmph", format2(v.windSpeed))
	q.Set("windgustmph", format2(v.windGust))
	q.Set("tempf", format2(v.temp))
	q.Set("rainin", format2(v.precipRate))
	// PWS expects this exact (misspelled) key.
	q.Set("daiyrainin", format2(v.precipTotal))
	q.Set("baromin", format2(v.pressure))
	q.Set("dewptf", format2(v.dewPoint))
	q.Set("humidity", formatRaw(report.Humidity))
	q.Set("solarradiation", formatRaw(report.SolarRadiation))
	q.Set("UV", formatRaw(report.UVIndex))
	return q
}

type imperial struct {
	temp, dewPoint        float64
	windSpeed, windGust   float64
	precipRate            float64
	precipTotal, pressure float64
}

func imperialValues(r models.Report) imperial {
	if r.Units == models.UnitsImperial {
		return imperial{
			temp: r.Temperature, dewPoint: r.DewPoint,
			windSpeed: r.WindSpeed, windGust: r.WindSpeedMax,
			precipRate: r.Precipitation, precipTotal: r.PrecipitationTotal,
			pressure: r.AirPressure,
		}
	}

	mph := func(speed float64) float64 {
		switch r.Units {
		case models.UnitsUKHybrid:
			return speed
		case models.UnitsMetric:
			return convert.KilometersToMiles(speed)
		default:
			return convert.KilometersToMiles(convert.MetersPerSecondToKilometersPerHour(speed))
		}
	}
	inches := func(mm float64) float64 {
		return convert.CentimetersToInches(convert.MillimetersToCentimeters(mm))
	}

	return imperial{
		temp:        convert.CelsiusToFahrenheit(r.Temperature),
		dewPoint:    convert.CelsiusToFahrenheit(r.DewPoint),
		windSpeed:   mph(r.WindSpeed),
		windGust:    mph(r.WindSpeedMax),
		precipRate:  inches(r.Precipitation),
		precipTotal: inches(r.PrecipitationTotal),
		pressure:    convert.MillibarsToInches(r.AirPressure),
	}
}

func dateUTC(t time.Time) string {
	if t.IsZero() {
		return "now"
	}
	return t.UTC().Format(pwsDateLayout)
}

func format2(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func formatRaw(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
