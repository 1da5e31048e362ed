package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-bridge/internal/cache"
	"github.com/kjstillabower/weather-bridge/internal/circuitbreaker"
	"github.com/kjstillabower/weather-bridge/internal/client"
	"github.com/kjstillabower/weather-bridge/internal/config"
	"github.com/kjstillabower/weather-bridge/internal/geocode"
	httphandler "github.com/kjstillabower/weather-bridge/internal/http"
	"github.com/kjstillabower/weather-bridge/internal/lifecycle"
	"github.com/kjstillabower/weather-bridge/internal/models"
	"github.com/kjstillabower/weather-bridge/internal/observability"
	"github.com/kjstillabower/weather-bridge/internal/poller"
	"github.com/kjstillabower/weather-bridge/internal/republish"
	"github.com/kjstillabower/weather-bridge/internal/service"
	"github.com/kjstillabower/weather-bridge/internal/traffic"
)

const inFlightCheckInterval = 100 * time.Millisecond

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	geo, err := geocode.Resolve(geocode.Config{
		Geocode: cfg.Geocode,
		Address: geocode.Address{
			City:    cfg.GeocodeCity,
			State:   cfg.GeocodeState,
			Country: cfg.GeocodeCountry,
		},
		GoogleAPIKey: cfg.GoogleAPIKey,
	}, logger)
	if err != nil {
		logger.Fatal("geocode", zap.Error(err))
	}

	fanout := republish.NewFanout(logger)
	var mqttSink *republish.MQTT
	var kafkaSink *republish.Kafka

	if cfg.PWSEnabled {
		pws, err := republish.NewPWS(republish.PWSConfig{
			StationID: cfg.PWSStationID,
			APIKey:    cfg.PWSAPIKey,
			URL:       cfg.PWSURL,
			Timeout:   cfg.PWSTimeout,
		}, logger)
		if err != nil {
			logger.Fatal("pws sink", zap.Error(err))
		}
		fanout.Add(pws, newBreaker(cfg, "pws", logger))
		logger.Info("sink enabled", zap.String("sink", "pws"), zap.String("pws_station", cfg.PWSStationID))
	}
	if cfg.MQTTEnabled {
		mqttSink = republish.NewMQTT(republish.MQTTConfig{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
			QoS:         byte(cfg.MQTTQoS),
			Retain:      cfg.MQTTRetain,
		}, logger)
		connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := mqttSink.Connect(connectCtx); err != nil {
			// paho keeps retrying in the background; publishes fail until it connects.
			logger.Warn("mqtt initial connect failed", zap.String("broker", cfg.MQTTBroker), zap.Error(err))
		}
		cancel()
		fanout.Add(mqttSink, newBreaker(cfg, "mqtt", logger))
		logger.Info("sink enabled", zap.String("sink", "mqtt"), zap.String("broker", cfg.MQTTBroker))
	}
	if cfg.KafkaEnabled {
		kafkaSink, err = republish.NewKafka(republish.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}, logger)
		if err != nil {
			logger.Fatal("kafka sink", zap.Error(err))
		}
		fanout.Add(kafkaSink, newBreaker(cfg, "kafka", logger))
		logger.Info("sink enabled", zap.String("sink", "kafka"), zap.String("topic", cfg.KafkaTopic))
	}

	var notifier client.Notifier
	if fanout.Len() > 0 {
		notifier = fanout
	}
	weatherClient, err := client.NewWundergroundClient(client.Config{
		APIKey:             cfg.WundergroundAPIKey,
		StationID:          cfg.StationID,
		Geocode:            geo,
		Units:              models.Units(cfg.Units),
		DetailedConditions: cfg.DetailedConditions,
		ObservationURL:     cfg.ObservationURL,
		ForecastURL:        cfg.ForecastURL,
		Timeout:            cfg.UpstreamTimeout,
		Location:           cfg.Location,
	}, notifier, logger)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	weatherClient.SetCircuitBreaker(newBreaker(cfg, "weather_api", logger))

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}
	weatherService := service.NewWeatherService(weatherClient, cacheSvc, cfg.StationID, cfg.ForecastDays, cfg.CacheTTL, cfg.RequestTimeout, logger)

	traffic.SetRetention(cfg.DegradedWindow)
	poll, err := poller.New(weatherClient, weatherService, poller.Config{
		Interval:     cfg.PollInterval,
		Timeout:      cfg.RequestTimeout,
		ForecastDays: cfg.ForecastDays,
	}, logger)
	if err != nil {
		logger.Fatal("poller", zap.Error(err))
	}
	if err := poll.Start(); err != nil {
		logger.Fatal("poller start", zap.Error(err))
	}

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		StaleAfter:       cfg.StaleAfter,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(weatherService, healthConfig, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("station_id", cfg.StationID))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	poll.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if mqttSink != nil {
		mqttSink.Close()
	}
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Error("kafka close", zap.Error(err))
		}
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// newBreaker builds a breaker for component with the configured thresholds and metrics hooks.
func newBreaker(cfg *config.Config, component string, logger *zap.Logger) *circuitbreaker.CircuitBreaker {
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		Component:        component,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), float64(to))
			logger.Warn("circuit breaker state change",
				zap.String("component", component),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	observability.CircuitBreakerState.WithLabelValues(component).Set(0)
	return cb
}
