package republish

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-bridge/internal/circuitbreaker"
	"github.com/kjstillabower/weather-bridge/internal/models"
)

func siReport() models.Report {
	return models.Report{
		StationID:          "KMAHANOV10",
		ObservationTimeUTC: time.Date(2024, 5, 1, 14, 53, 14, 0, time.UTC),
		Units:              models.UnitsSI,
		WindBearing:        225,
		WindSpeed:          10,   // m/s
		WindSpeedMax:       20,   // m/s
		Temperature:        100,  // °C
		DewPoint:           0,    // °C
		AirPressure:        1000, // mb
		Precipitation:      10,   // mm
		PrecipitationTotal: 25.4, // mm
		Humidity:           65,
		SolarRadiation:     412.7,
		UVIndex:            4,
	}
}

// TestQuery_SIConversion verifies every key and the unit conversions from SI values.
func TestQuery_SIConversion(t *testing.T) {
	q := Query("PWSSTATION", "secret", siReport())

	want := map[string]string{
		"ID":             "PWSSTATION",
		"PASSWORD":       "secret",
		"softwaretype":   "Homebridge",
		"action":         "updateraw",
		"dateutc":        "2024-05-01 14:53:14",
		"winddir":        "225",
		"windspeedmph":   "22.37", // 10 m/s = 36 km/h
		"windgustmph":    "44.74",
		"tempf":          "212.00",
		"dewptf":         "32.00",
		"rainin":         "0.39",
		"daiyrainin":     "1.00",
		"baromin":        "29.53",
		"humidity":       "65",
		"solarradiation": "412.7",
		"UV":             "4",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if len(q) != len(want) {
		t.Errorf("query has %d keys, want %d", len(q), len(want))
	}
	if !strings.Contains(q.Encode(), "dateutc=2024-05-01+14%3A53%3A14") {
		t.Errorf("encoded dateutc not form-encoded: %s", q.Encode())
	}
}

// TestQuery_UnitSystems verifies wind conversion per unit system and imperial pass-through.
func TestQuery_UnitSystems(t *testing.T) {
	tests := []struct {
		name      string
		units     models.Units
		wind      float64
		temp      float64
		wantWind  string
		wantTempF string
	}{
		{"metric km/h", models.UnitsMetric, 100, 0, "62.14", "32.00"},
		{"uk-hybrid mph", models.UnitsUKHybrid, 12.5, 0, "12.50", "32.00"},
		{"imperial pass-through", models.UnitsImperial, 12.5, 54.5, "12.50", "54.50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := models.Report{Units: tt.units, WindSpeed: tt.wind, Temperature: tt.temp}
			q := Query("S", "K", r)
			if got := q.Get("windspeedmph"); got != tt.wantWind {
				t.Errorf("windspeedmph = %q, want %q", got, tt.wantWind)
			}
			if got := q.Get("tempf"); got != tt.wantTempF {
				t.Errorf("tempf = %q, want %q", got, tt.wantTempF)
			}
		})
	}
}

func TestQuery_UnknownTime(t *testing.T) {
	q := Query("S", "K", models.Report{})
	if got := q.Get("dateutc"); got != "now" {
		t.Errorf("dateutc = %q, want now", got)
	}
}

// TestPWS_Publish verifies the GET reaches the endpoint and non-2xx is an error.
func TestPWS_Publish(t *testing.T) {
	var got url.Values
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		got = r.URL.Query()
		w.WriteHeader(status)
	}))
	defer srv.Close()

	p, err := NewPWS(PWSConfig{StationID: "PWSSTATION", APIKey: "secret", URL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("NewPWS() error = %v", err)
	}
	if err := p.Publish(context.Background(), siReport()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got.Get("ID") != "PWSSTATION" || got.Get("tempf") != "212.00" {
		t.Errorf("query = %v", got)
	}

	status = http.StatusUnauthorized
	if err := p.Publish(context.Background(), siReport()); !errors.Is(err, ErrPWSRejected) {
		t.Errorf("Publish() error = %v, want ErrPWSRejected", err)
	}
}

// TestPWS_NotifyLogsFailure verifies Notify swallows errors and logs them.
func TestPWS_NotifyLogsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	p, err := NewPWS(PWSConfig{StationID: "PWSSTATION", APIKey: "secret", URL: srv.URL}, zap.New(core))
	if err != nil {
		t.Fatalf("NewPWS() error = %v", err)
	}
	p.Notify(context.Background(), siReport())

	if logs.FilterMessage("republish failed").Len() != 1 {
		t.Errorf("expected one failure log, got %v", logs.All())
	}
}

// TestPWS_NotifySkippedWhenOpen verifies an open breaker skips the push.
func TestPWS_NotifySkippedWhenOpen(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	p, err := NewPWS(PWSConfig{StationID: "PWSSTATION", APIKey: "secret", URL: srv.URL}, zap.New(core))
	if err != nil {
		t.Fatalf("NewPWS() error = %v", err)
	}
	p.SetCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Minute, Component: "pws"}))

	p.Notify(context.Background(), siReport())
	p.Notify(context.Background(), siReport())

	if hits != 1 {
		t.Errorf("upstream hits = %d, want 1", hits)
	}
	if logs.FilterMessage("republish skipped, circuit open").Len() != 1 {
		t.Errorf("expected one skip log, got %v", logs.All())
	}
}

func TestNewPWS_Validation(t *testing.T) {
	if _, err := NewPWS(PWSConfig{APIKey: "k"}, nil); err == nil {
		t.Error("expected error for missing station id")
	}
	if _, err := NewPWS(PWSConfig{StationID: "S"}, nil); err == nil {
		t.Error("expected error for missing api key")
	}
	p, err := NewPWS(PWSConfig{StationID: "S", APIKey: "k"}, nil)
	if err != nil || p.cfg.URL != DefaultPWSURL {
		t.Errorf("NewPWS() = %+v, %v; want default URL", p, err)
	}
}
