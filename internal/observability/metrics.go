package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/weather-bridge/internal/models"
)

var (
	registry *prometheus.Registry

	// HTTP request rate on the read API. Watch for: 5xx share, sudden drops.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Cache misses pay a full upstream fetch.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Rate limit denials on /weather.
	RateLimitDeniedTotal prometheus.Counter

	// Upstream (weather.com) calls by endpoint (observation, forecast) and status.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: p95 creeping toward the poll interval.
	UpstreamDuration *prometheus.HistogramVec

	// Upstream failures by endpoint and error category (transport, domain, parsing...).
	UpstreamErrorsTotal *prometheus.CounterVec

	// Icon codes with no condition category. Non-zero means the provider added codes.
	UnknownIconCodesTotal *prometheus.CounterVec

	// Pushes to downstream sinks (pws, mqtt, kafka) by outcome.
	RepublishTotal *prometheus.CounterVec

	// Sink push latency.
	RepublishDuration *prometheus.HistogramVec

	// Poll cycles started by the scheduler.
	PollCyclesTotal prometheus.Counter

	// Poll cycle wall time, both sub-requests included.
	PollDuration prometheus.Histogram

	// Update callback invocations by part (report, forecast) and result.
	CallbackInvocationsTotal *prometheus.CounterVec

	// Latest-weather cache hits on the read path.
	CacheHitsTotal prometheus.Counter

	// Cache errors by operation (get, set).
	CacheErrorsTotal *prometheus.CounterVec

	// Circuit breaker state per component: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions per component.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Latest normalized observation, one series per report field. Units follow the
	// configured unit system (see the units label).
	ObservationValue *prometheus.GaugeVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of weather.com API calls",
		},
		[]string{"endpoint", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "weather.com API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status"},
	)
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamErrorsTotal",
			Help: "weather.com API failures by endpoint and error category",
		},
		[]string{"endpoint", "category"},
	)
	UnknownIconCodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unknownIconCodesTotal",
			Help: "Forecast icon codes that matched no condition category",
		},
		[]string{"code"},
	)
	RepublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "republishTotal",
			Help: "Report pushes to downstream sinks by outcome",
		},
		[]string{"sink", "status"},
	)
	RepublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "republishDurationSeconds",
			Help:    "Downstream sink push latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"sink"},
	)
	PollCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pollCyclesTotal",
			Help: "Total number of poll cycles started",
		},
	)
	PollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pollDurationSeconds",
			Help:    "Poll cycle duration in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	CallbackInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callbackInvocationsTotal",
			Help: "Update callback invocations by part and result",
		},
		[]string{"part", "result"},
	)
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Latest-weather cache hits on the read path",
		},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache errors by operation",
		},
		[]string{"operation"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	ObservationValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "observationValue",
			Help: "Latest normalized observation value by field",
		},
		[]string{"station", "field", "units"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight, RateLimitDeniedTotal,
		UpstreamCallsTotal, UpstreamDuration, UpstreamErrorsTotal, UnknownIconCodesTotal,
		RepublishTotal, RepublishDuration,
		PollCyclesTotal, PollDuration, CallbackInvocationsTotal,
		CacheHitsTotal, CacheErrorsTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		ObservationValue,
	)
}

// RecordReport exports the numeric fields of r as observation gauges.
func RecordReport(r models.Report) {
	fields := map[string]float64{
		"temperature":        r.Temperature,
		"dewPoint":           r.DewPoint,
		"humidity":           r.Humidity,
		"airPressure":        r.AirPressure,
		"windSpeed":          r.WindSpeed,
		"windSpeedMax":       r.WindSpeedMax,
		"windBearing":        r.WindBearing,
		"solarRadiation":     r.SolarRadiation,
		"uvIndex":            r.UVIndex,
		"rainDay":            r.RainDay,
		"precipitation":      r.Precipitation,
		"precipitationTotal": r.PrecipitationTotal,
	}
	for field, v := range fields {
		ObservationValue.WithLabelValues(r.StationID, field, string(r.Units)).Set(v)
	}
}

// RecordCircuitBreakerTransition counts a breaker transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toValue float64) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(toValue)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
