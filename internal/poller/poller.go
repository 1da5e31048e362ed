// Package poller drives the upstream client on a fixed interval and feeds each update
// callback into the latest-weather store.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-bridge/internal/client"
	"github.com/kjstillabower/weather-bridge/internal/lifecycle"
	"github.com/kjstillabower/weather-bridge/internal/models"
	"github.com/kjstillabower/weather-bridge/internal/observability"
	"github.com/kjstillabower/weather-bridge/internal/traffic"
)

// Updater is the callback half of client.WeatherClient.
type Updater interface {
	Update(ctx context.Context, forecastDays int, cb client.UpdateFunc)
}

// Store receives successful snapshots.
type Store interface {
	Store(ctx context.Context, w models.Weather) models.Weather
}

// Config holds the poll schedule.
type Config struct {
	Interval     time.Duration
	Timeout      time.Duration // per cycle; 0 means no deadline
	ForecastDays int
}

// Poller runs one Update per interval. Cycles never overlap.
type Poller struct {
	scheduler *gocron.Scheduler
	updater   Updater
	store     Store
	cfg       Config
	logger    *zap.Logger
}

// New creates a Poller. The scheduler is not started until Start.
func New(updater Updater, store Store, cfg Config, logger *zap.Logger) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		scheduler: gocron.NewScheduler(time.UTC),
		updater:   updater,
		store:     store,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Start schedules the poll job and starts the scheduler. The first cycle runs immediately.
func (p *Poller) Start() error {
	_, err := p.scheduler.Every(p.cfg.Interval).SingletonMode().Do(func() {
		p.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}
	lifecycle.MarkStarted(time.Now())
	p.scheduler.StartAsync()
	p.logger.Info("poller started", zap.Duration("interval", p.cfg.Interval), zap.Int("forecast_days", p.cfg.ForecastDays))
	return nil
}

// Stop stops the scheduler. A cycle already running is not interrupted.
func (p *Poller) Stop() {
	p.scheduler.Stop()
	p.logger.Info("poller stopped")
}

// RunOnce performs a single poll cycle and returns when every callback has run.
func (p *Poller) RunOnce(ctx context.Context) {
	cycleID := uuid.NewString()
	ctx = observability.WithCorrelationID(ctx, cycleID)
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	logger := p.logger.With(zap.String("correlation_id", cycleID))

	observability.PollCyclesTotal.Inc()
	start := time.Now()
	var successes, failures int

	p.updater.Update(ctx, p.cfg.ForecastDays, func(err error, w models.Weather) {
		if err != nil {
			failures++
			traffic.RecordError()
			logger.Warn("poll update failed", zap.String("category", string(client.CategorizeError(err))), zap.Error(err))
			return
		}
		successes++
		traffic.RecordSuccess()
		lifecycle.RecordPollSuccess(time.Now())
		p.store.Store(ctx, w)
	})

	duration := time.Since(start)
	observability.PollDuration.Observe(duration.Seconds())
	logger.Debug("poll cycle complete",
		zap.Int("successes", successes),
		zap.Int("failures", failures),
		zap.Duration("duration", duration),
	)
}
