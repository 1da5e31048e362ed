package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-bridge/internal/circuitbreaker"
	"github.com/kjstillabower/weather-bridge/internal/models"
	"github.com/kjstillabower/weather-bridge/internal/observability"
	"github.com/kjstillabower/weather-bridge/internal/validation"
)

const (
	DefaultObservationURL = "https://api.weather.com/v2/pws/observations/current"
	DefaultForecastURL    = "https://api.weather.com/v3/wx/forecast/daily/5day"

	// MaxForecastDays is the length of the daily forecast product.
	MaxForecastDays = 5

	endpointObservation = "observation"
	endpointForecast    = "forecast"
)

var (
	ErrTransport       = errors.New("transport failure")
	ErrUpstreamErrors  = errors.New("upstream reported errors")
	ErrParse           = errors.New("unparseable upstream response")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrStationNotFound = errors.New("station not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrNoGeocode       = errors.New("no geocode configured")
)

// UpdateFunc receives every result of an update cycle. err is non-nil for a failed
// sub-operation, in which case weather is empty.
type UpdateFunc func(err error, weather models.Weather)

// Notifier receives each successfully mapped report. Implementations must not block for long;
// Notify is invoked on its own goroutine.
type Notifier interface {
	Notify(ctx context.Context, report models.Report)
}

// WeatherClient is the upstream surface used by the poller and the read path.
type WeatherClient interface {
	Update(ctx context.Context, forecastDays int, cb UpdateFunc)
	Fetch(ctx context.Context, forecastDays int) (models.Weather, error)
}

type Config struct {
	APIKey             string
	StationID          string
	Geocode            string
	Units              models.Units
	DetailedConditions bool
	ObservationURL     string
	ForecastURL        string
	Timeout            time.Duration
	Location           *time.Location
}

type WundergroundClient struct {
	cfg      Config
	client   *http.Client
	notifier Notifier
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewWundergroundClient validates cfg and fills endpoint, unit and time zone defaults.
// notifier may be nil.
func NewWundergroundClient(cfg Config, notifier Notifier, logger *zap.Logger) (*WundergroundClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	stationID, err := validation.ValidateStationID(cfg.StationID)
	if err != nil {
		return nil, err
	}
	cfg.StationID = stationID
	if cfg.Geocode != "" {
		geocode, err := validation.ValidateGeocode(cfg.Geocode)
		if err != nil {
			return nil, err
		}
		cfg.Geocode = geocode
	}
	if cfg.Units == "" {
		cfg.Units = models.UnitsSI
	}
	if _, err := models.ParseUnits(string(cfg.Units)); err != nil {
		return nil, err
	}
	if cfg.ObservationURL == "" {
		cfg.ObservationURL = DefaultObservationURL
	}
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = DefaultForecastURL
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WundergroundClient{
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// SetCircuitBreaker guards both upstream endpoints with cb. Transport failures and 5xx
// responses count as failures.
func (c *WundergroundClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// ForecastEnabled reports whether a geocode is configured.
func (c *WundergroundClient) ForecastEnabled() bool {
	return c.cfg.Geocode != ""
}

// Update fetches the current observation and, when a geocode is configured, the daily
// forecast. The two requests run concurrently; cb runs once per completed sub-operation,
// never concurrently with itself, and receives a snapshot of everything gathered so far.
// A mapped report is handed to the notifier before cb sees it. Update returns after both
// sub-operations finish.
func (c *WundergroundClient) Update(ctx context.Context, forecastDays int, cb UpdateFunc) {
	acc := &accumulator{cb: cb}
	days := clampDays(forecastDays)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		report, err := c.FetchReport(ctx)
		if err != nil {
			c.logFailure(endpointObservation, err)
			acc.fail(endpointObservation, err)
			return
		}
		c.notify(ctx, report)
		acc.setReport(report)
	}()

	if c.ForecastEnabled() && days > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			forecasts, err := c.FetchForecasts(ctx, days)
			if err != nil {
				c.logFailure(endpointForecast, err)
				acc.fail(endpointForecast, err)
				return
			}
			acc.setForecasts(forecasts)
		}()
	}

	wg.Wait()
}

// Fetch is the joined form of Update: it waits for both requests and returns once.
// It does not notify. A partial result is returned together with the error of the
// failed part.
func (c *WundergroundClient) Fetch(ctx context.Context, forecastDays int) (models.Weather, error) {
	days := clampDays(forecastDays)

	var (
		wg          sync.WaitGroup
		report      models.Report
		forecasts   []models.Forecast
		reportErr   error
		forecastErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		report, reportErr = c.FetchReport(ctx)
	}()
	if c.ForecastEnabled() && days > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			forecasts, forecastErr = c.FetchForecasts(ctx, days)
		}()
	}
	wg.Wait()

	var weather models.Weather
	if reportErr == nil {
		weather.Report = &report
	} else {
		c.logFailure(endpointObservation, reportErr)
	}
	if forecastErr == nil {
		weather.Forecasts = forecasts
	} else {
		c.logFailure(endpointForecast, forecastErr)
	}
	if !weather.Empty() {
		weather.UpdatedAt = time.Now()
	}
	return weather, errors.Join(reportErr, forecastErr)
}

// FetchReport retrieves and maps the station's current observation.
func (c *WundergroundClient) FetchReport(ctx context.Context) (models.Report, error) {
	params := url.Values{}
	params.Set("apiKey", c.cfg.APIKey)
	params.Set("stationId", c.cfg.StationID)
	params.Set("format", "json")
	params.Set("units", c.cfg.Units.Code())
	params.Set("numericPrecision", "decimal")

	body, err := c.get(ctx, endpointObservation, c.cfg.ObservationURL, params)
	if err != nil {
		return models.Report{}, err
	}
	return c.parseReport(body)
}

// FetchForecasts retrieves the daily forecast and maps up to days entries.
func (c *WundergroundClient) FetchForecasts(ctx context.Context, days int) ([]models.Forecast, error) {
	if !c.ForecastEnabled() {
		return nil, ErrNoGeocode
	}
	params := url.Values{}
	params.Set("geocode", c.cfg.Geocode)
	params.Set("format", "json")
	params.Set("units", c.cfg.Units.Code())
	params.Set("language", "en-US")
	params.Set("apiKey", c.cfg.APIKey)

	body, err := c.get(ctx, endpointForecast, c.cfg.ForecastURL, params)
	if err != nil {
		return nil, err
	}
	return c.parseForecasts(body, clampDays(days))
}

// get performs one guarded GET and returns the body of a usable response. Error order:
// transport, upstream "errors" array, HTTP status.
func (c *WundergroundClient) get(ctx context.Context, endpoint, rawURL string, params url.Values) ([]byte, error) {
	var (
		body   []byte
		status int
	)
	call := func() error {
		var err error
		body, status, err = c.roundTrip(ctx, endpoint, rawURL, params)
		if err != nil {
			return err
		}
		if status >= 500 {
			return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, status)
		}
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Call(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		// A 5xx still counts against the breaker, but its errors array is the better report.
		if status >= 500 {
			if domainErr := upstreamErrors(body); domainErr != nil {
				return nil, fmt.Errorf("%s: %w", endpoint, domainErr)
			}
		}
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}

	if status == http.StatusNoContent {
		return nil, fmt.Errorf("%s: %w: no content for station %s", endpoint, ErrStationNotFound, c.cfg.StationID)
	}
	if domainErr := upstreamErrors(body); domainErr != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, domainErr)
	}
	if err := handleErrorResponse(status); err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	return body, nil
}

func (c *WundergroundClient) roundTrip(ctx context.Context, endpoint, rawURL string, params url.Values) ([]byte, int, error) {
	start := time.Now()

	req, err := buildRequest(ctx, rawURL, params)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, 0, fmt.Errorf("%w: request timeout: %w", ErrTransport, err)
		}
		return nil, 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.UpstreamDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response body: %w", ErrTransport, err)
	}
	return body, resp.StatusCode, nil
}

func buildRequest(ctx context.Context, rawURL string, params url.Values) (*http.Request, error) {
	baseURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

// upstreamErrors returns ErrUpstreamErrors when body is JSON carrying a non-empty "errors" array.
func upstreamErrors(body []byte) error {
	var envelope struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Errors) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for i, e := range envelope.Errors {
		if i > 0 {
			buf.WriteString(", ")
		}
		if err := json.Compact(&buf, e); err != nil {
			buf.Write(e)
		}
	}
	return fmt.Errorf("%w: %s", ErrUpstreamErrors, buf.String())
}

func handleErrorResponse(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, statusCode)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrStationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if statusCode < 200 || statusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, statusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

func (c *WundergroundClient) logFailure(endpoint string, err error) {
	category := CategorizeError(err)
	observability.UpstreamErrorsTotal.WithLabelValues(endpoint, string(category)).Inc()
	c.logger.Error("weather update failed",
		zap.String("part", endpoint),
		zap.String("station", c.cfg.StationID),
		zap.String("category", string(category)),
		zap.Error(err),
	)
}

// notify hands report to the notifier on its own goroutine, detached from ctx cancellation.
func (c *WundergroundClient) notify(ctx context.Context, report models.Report) {
	if c.notifier == nil {
		return
	}
	notifyCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("notifier panicked", zap.Any("panic", r), zap.String("station", report.StationID))
			}
		}()
		c.notifier.Notify(notifyCtx, report)
	}()
}

func clampDays(days int) int {
	return max(0, min(days, MaxForecastDays))
}

// accumulator collects the parts of one Update cycle. Callbacks run under mu.
type accumulator struct {
	mu      sync.Mutex
	weather models.Weather
	cb      UpdateFunc
}

func (a *accumulator) setReport(report models.Report) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.weather.Report = &report
	a.weather.UpdatedAt = time.Now()
	a.invoke(endpointObservation, nil, a.snapshot())
}

func (a *accumulator) setForecasts(forecasts []models.Forecast) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.weather.Forecasts = forecasts
	a.weather.UpdatedAt = time.Now()
	a.invoke(endpointForecast, nil, a.snapshot())
}

func (a *accumulator) fail(part string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.invoke(part, err, models.Weather{})
}

func (a *accumulator) invoke(part string, err error, weather models.Weather) {
	result := "success"
	if err != nil {
		result = "error"
	}
	observability.CallbackInvocationsTotal.WithLabelValues(part, result).Inc()
	if a.cb != nil {
		a.cb(err, weather)
	}
}

func (a *accumulator) snapshot() models.Weather {
	out := a.weather
	if a.weather.Report != nil {
		report := *a.weather.Report
		out.Report = &report
	}
	if a.weather.Forecasts != nil {
		out.Forecasts = append([]models.Forecast(nil), a.weather.Forecasts...)
	}
	return out
}
