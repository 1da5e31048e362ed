package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-bridge/internal/lifecycle"
	"github.com/kjstillabower/weather-bridge/internal/models"
	"github.com/kjstillabower/weather-bridge/internal/observability"
	"github.com/kjstillabower/weather-bridge/internal/traffic"
)

// Version is reported by /health. Overridden at build time with -ldflags.
var Version = "dev"

// WeatherReader serves the latest snapshot. Implemented by service.WeatherService.
type WeatherReader interface {
	GetWeather(ctx context.Context) (models.Weather, error)
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// StaleAfter is how long without a successful poll before reporting stale. 0 disables.
	StaleAfter time.Duration
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather          WeatherReader
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(weather WeatherReader, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weather:      weather,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Limiter        *rate.Limiter // nil disables rate limiting
	RequestTimeout time.Duration
}

// NewRouter wires the read API, health and metrics routes. Rate limiting and the request
// timeout apply to /weather routes only.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	weatherRouter := router.PathPrefix("/weather").Subrouter()
	weatherRouter.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		weatherRouter.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	weatherRouter.HandleFunc("", h.GetWeather).Methods(http.MethodGet)
	weatherRouter.HandleFunc("/report", h.GetReport).Methods(http.MethodGet)
	weatherRouter.HandleFunc("/forecast", h.GetForecast).Methods(http.MethodGet)
	return router
}

// GetWeather handles GET /weather: the full snapshot.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	result, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetReport handles GET /weather/report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	result, ok := h.load(w, r)
	if !ok {
		return
	}
	if result.Report == nil {
		writeError(w, r, http.StatusNotFound, "NO_REPORT", "No observation available yet")
		return
	}
	writeJSON(w, http.StatusOK, result.Report)
}

// GetForecast handles GET /weather/forecast and GET /weather/forecast?day=N (0 is today).
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	day := -1
	if raw := r.URL.Query().Get("day"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "INVALID_DAY", "day must be a non-negative integer")
			return
		}
		day = n
	}

	result, ok := h.load(w, r)
	if !ok {
		return
	}
	if len(result.Forecasts) == 0 {
		writeError(w, r, http.StatusNotFound, "NO_FORECAST", "No forecast available")
		return
	}
	if day < 0 {
		writeJSON(w, http.StatusOK, result.Forecasts)
		return
	}
	if day >= len(result.Forecasts) {
		writeError(w, r, http.StatusNotFound, "DAY_OUT_OF_RANGE", "day "+strconv.Itoa(day)+" is not in the forecast")
		return
	}
	writeJSON(w, http.StatusOK, result.Forecasts[day])
}

// load reads the snapshot, writing the error response itself on failure.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (models.Weather, bool) {
	result, err := h.weather.GetWeather(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return models.Weather{}, false
	}
	return result, true
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(time.Now())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"upstream": "healthy"}
	if result.status == "degraded" || result.status == "stale" {
		checks["upstream"] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   Version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if last := lifecycle.LastPollSuccess(); !last.IsZero() {
		resp["lastPollSuccess"] = last.UTC().Format(time.RFC3339)
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > stale > degraded > healthy.
func (h *Handler) computeHealthStatus(now time.Time) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if lifecycle.IsStale(now, h.healthConfig.StaleAfter) {
		return healthResult{"stale", http.StatusServiceUnavailable, "no_recent_poll"}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 &&
		traffic.Degraded(h.healthConfig.DegradedWindow, float64(h.healthConfig.DegradedErrorPct)) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error body with code, message and the request's correlation id.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError maps a read-path failure to 504 on deadline and 503 otherwise.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context(), nil).Debug("weather read failed", zap.Error(err))
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "Timed out fetching weather data")
		return
	}
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
}
