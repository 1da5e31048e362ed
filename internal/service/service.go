package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-bridge/internal/cache"
	"github.com/kjstillabower/weather-bridge/internal/client"
	"github.com/kjstillabower/weather-bridge/internal/models"
	"github.com/kjstillabower/weather-bridge/internal/observability"
)

// Fetcher is the read-through half of client.WeatherClient.
type Fetcher interface {
	Fetch(ctx context.Context, forecastDays int) (models.Weather, error)
}

var _ Fetcher = client.WeatherClient(nil)

// WeatherService owns the latest-weather snapshot for one station. The poller writes through
// Store; readers go through GetWeather, which falls back to the upstream on a cache miss.
type WeatherService struct {
	client       Fetcher
	cache        cache.Cache
	stationID    string
	forecastDays int
	ttl          time.Duration
	coalescer    *requestCoalescer
	logger       *zap.Logger

	// storeMu serializes the read-merge-write in Store.
	storeMu sync.Mutex
}

// NewWeatherService creates a WeatherService. ttl is the cache expiration for stored snapshots;
// fetchTimeout bounds a coalesced read-through fetch.
func NewWeatherService(c Fetcher, store cache.Cache, stationID string, forecastDays int, ttl, fetchTimeout time.Duration, logger *zap.Logger) *WeatherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherService{
		client:       c,
		cache:        store,
		stationID:    stationID,
		forecastDays: forecastDays,
		ttl:          ttl,
		coalescer:    newRequestCoalescer(fetchTimeout),
		logger:       logger,
	}
}

// StationID returns the station the service serves.
func (s *WeatherService) StationID() string {
	return s.stationID
}

func (s *WeatherService) loggerFor(ctx context.Context) *zap.Logger {
	if id := observability.CorrelationID(ctx); id != "" {
		return s.logger.With(zap.String("correlation_id", id))
	}
	return s.logger
}

// GetWeather returns the cached snapshot, or fetches, stores and returns a fresh one on a miss.
// A partial fetch (one part failed) is stored and returned without error; the error is
// returned only when nothing usable came back.
func (s *WeatherService) GetWeather(ctx context.Context) (models.Weather, error) {
	start := time.Now()
	logger := s.loggerFor(ctx)

	cached, ok, err := s.cache.Get(ctx, s.stationID)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("cache get failed", zap.String("station_id", s.stationID), zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.Inc()
		logger.Debug("weather served", zap.String("station_id", s.stationID), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return cached, nil
	}

	logger.Debug("cache miss, fetching upstream", zap.String("station_id", s.stationID))
	merged, shared, fetchErr := s.coalescer.GetOrDo(ctx, s.stationID, func(callCtx context.Context) (models.Weather, error) {
		fetched, err := s.client.Fetch(callCtx, s.forecastDays)
		if fetched.Empty() {
			return fetched, err
		}
		return s.Store(callCtx, fetched), err
	})
	if merged.Empty() {
		if fetchErr == nil {
			fetchErr = client.ErrParse
		}
		return models.Weather{}, fmt.Errorf("fetch weather for %s: %w", s.stationID, fetchErr)
	}
	if fetchErr != nil {
		logger.Warn("partial upstream fetch", zap.String("station_id", s.stationID), zap.Error(fetchErr))
	}
	logger.Debug("weather served", zap.String("station_id", s.stationID), zap.Bool("cached", false), zap.Bool("coalesced", shared), zap.Duration("duration", time.Since(start)))
	return merged, nil
}

// Store merges w into the cached snapshot, part by part, and returns the merged value.
// Cache failures are logged and counted; the merged value is still returned.
func (s *WeatherService) Store(ctx context.Context, w models.Weather) models.Weather {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	logger := s.loggerFor(ctx)
	current, _, err := s.cache.Get(ctx, s.stationID)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("cache get failed", zap.String("station_id", s.stationID), zap.Error(err))
	}
	merged := current.Merge(w)

	if err := s.cache.Set(ctx, s.stationID, merged, s.ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		logger.Warn("cache set failed", zap.String("station_id", s.stationID), zap.Error(err))
	}
	if w.Report != nil {
		observability.RecordReport(*w.Report)
	}
	return merged
}
