package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-bridge/internal/cache"
	"github.com/kjstillabower/weather-bridge/internal/client"
	"github.com/kjstillabower/weather-bridge/internal/lifecycle"
	"github.com/kjstillabower/weather-bridge/internal/models"
	"github.com/kjstillabower/weather-bridge/internal/poller"
	"github.com/kjstillabower/weather-bridge/internal/service"
	"github.com/kjstillabower/weather-bridge/internal/traffic"
)

const stackObservation = `{"observations":[{"stationID":"KMAHANOV10","neighborhood":"Hanover","obsTimeUtc":"2024-05-01T16:00:00Z","winddir":200,"humidity":64,"metric":{"temp":14.2,"windSpeed":9,"pressure":1012.3,"precipTotal":1.5}}]}`

const stackForecast = `{"dayOfWeek":["Wednesday"],"calendarDayTemperatureMax":[17],"calendarDayTemperatureMin":[9],"daypart":[{"iconCode":[11,12],"wxPhraseLong":["Showers",null],"cloudCover":[70,80]}]}`

type fakeWeatherCom struct {
	server           *httptest.Server
	observationCalls atomic.Int32
	forecastCalls    atomic.Int32
	failObservation  atomic.Bool
}

func newFakeWeatherCom(t *testing.T) *fakeWeatherCom {
	t.Helper()
	f := &fakeWeatherCom{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/observations"):
			f.observationCalls.Add(1)
			if f.failObservation.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(stackObservation))
		case strings.HasPrefix(r.URL.Path, "/forecast"):
			f.forecastCalls.Add(1)
			_, _ = w.Write([]byte(stackForecast))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

type stack struct {
	upstream *fakeWeatherCom
	poller   *poller.Poller
	router   http.Handler
}

func newStack(t *testing.T) *stack {
	t.Helper()
	traffic.Reset()
	lifecycle.Reset()
	t.Cleanup(func() {
		traffic.Reset()
		lifecycle.Reset()
	})

	upstream := newFakeWeatherCom(t)
	wc, err := client.NewWundergroundClient(client.Config{
		APIKey:         "test-key",
		StationID:      "KMAHANOV10",
		Geocode:        "42.36,-71.06",
		Units:          models.UnitsMetric,
		ObservationURL: upstream.server.URL + "/observations",
		ForecastURL:    upstream.server.URL + "/forecast",
		Timeout:        time.Second,
		Location:       time.UTC,
	}, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWundergroundClient() error = %v", err)
	}

	svc := service.NewWeatherService(wc, cache.NewInMemoryCache(), "KMAHANOV10", 5, time.Hour, time.Second, zap.NewNop())
	p, err := poller.New(wc, svc, poller.Config{Interval: time.Hour, ForecastDays: 5}, zap.NewNop())
	if err != nil {
		t.Fatalf("poller.New() error = %v", err)
	}
	h := NewHandler(svc, &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50, StaleAfter: time.Hour}, zap.NewNop())
	return &stack{upstream: upstream, poller: p, router: NewRouter(h, RouterConfig{RequestTimeout: 2 * time.Second}, zap.NewNop())}
}

func (s *stack) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

// TestStack_PollThenServe verifies a poll cycle fills the cache and reads are served without
// further upstream calls.
func TestStack_PollThenServe(t *testing.T) {
	s := newStack(t)
	s.poller.RunOnce(context.Background())

	w := s.get(t, "/weather/report")
	if w.Code != http.StatusOK {
		t.Fatalf("report status = %d, want 200", w.Code)
	}
	var report models.Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Temperature != 14.2 || report.WindDirection != "SSW" || report.ObservationStation != "KMAHANOV10 : Hanover" {
		t.Errorf("report = %+v", report)
	}

	w = s.get(t, "/weather/forecast?day=0")
	if w.Code != http.StatusOK {
		t.Fatalf("forecast status = %d, want 200", w.Code)
	}
	var day models.Forecast
	if err := json.NewDecoder(w.Body).Decode(&day); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if day.ForecastDay != "Wednesday" || day.TemperatureMax != 17 || !day.RainBool {
		t.Errorf("forecast = %+v", day)
	}

	if got := s.upstream.observationCalls.Load(); got != 1 {
		t.Errorf("observation calls = %d, want 1 (reads served from cache)", got)
	}
	if code := s.get(t, "/health").Code; code != http.StatusOK {
		t.Errorf("health status = %d, want 200", code)
	}
}

// TestStack_ReadThroughOnEmptyCache verifies a read before the first poll fetches upstream.
func TestStack_ReadThroughOnEmptyCache(t *testing.T) {
	s := newStack(t)

	w := s.get(t, "/weather")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got models.Weather
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Report == nil || len(got.Forecasts) != 1 {
		t.Errorf("weather = %+v", got)
	}
	if s.upstream.forecastCalls.Load() != 1 {
		t.Errorf("forecast calls = %d, want 1", s.upstream.forecastCalls.Load())
	}
}

// TestStack_ObservationFailureDegrades verifies a failing observation endpoint is reflected in /health.
func TestStack_ObservationFailureDegrades(t *testing.T) {
	s := newStack(t)
	s.upstream.failObservation.Store(true)

	s.poller.RunOnce(context.Background())
	s.poller.RunOnce(context.Background())

	w := s.get(t, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health status = %d, want 503", w.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}

	// The forecast half still succeeded and is served.
	if code := s.get(t, "/weather/forecast").Code; code != http.StatusOK {
		t.Errorf("forecast status = %d, want 200", code)
	}
}
