// Package republish pushes each mapped report to downstream sinks: PWS Weather, an MQTT
// broker and a Kafka topic.
package republish

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-bridge/internal/circuitbreaker"
	"github.com/kjstillabower/weather-bridge/internal/models"
	"github.com/kjstillabower/weather-bridge/internal/observability"
)

// Sink is one downstream destination for reports.
type Sink interface {
	Name() string
	Publish(ctx context.Context, report models.Report) error
}

type target struct {
	sink    Sink
	breaker *circuitbreaker.CircuitBreaker
}

// Fanout delivers every report to all registered sinks concurrently. A failing or panicking
// sink never affects the others or the caller.
type Fanout struct {
	targets []target
	logger  *zap.Logger
}

func NewFanout(logger *zap.Logger) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{logger: logger}
}

// Add registers sink. breaker may be nil.
func (f *Fanout) Add(sink Sink, breaker *circuitbreaker.CircuitBreaker) {
	f.targets = append(f.targets, target{sink: sink, breaker: breaker})
}

// Len returns the number of registered sinks.
func (f *Fanout) Len() int {
	return len(f.targets)
}

// Notify publishes report to every sink and waits for all of them.
func (f *Fanout) Notify(ctx context.Context, report models.Report) {
	var wg sync.WaitGroup
	for _, t := range f.targets {
		wg.Add(1)
		go func(t target) {
			defer wg.Done()
			deliver(ctx, t, f.logger, report)
		}(t)
	}
	wg.Wait()
}

// deliver runs one guarded publish and records its outcome. Errors are logged, not returned.
func deliver(ctx context.Context, t target, logger *zap.Logger, report models.Report) {
	name := t.sink.Name()
	logger = logger.With(zap.String("sink", name), zap.String("station", report.StationID))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			observability.RepublishTotal.WithLabelValues(name, "panic").Inc()
			logger.Error("republish panicked", zap.Any("panic", r))
		}
	}()

	publish := func() error { return t.sink.Publish(ctx, report) }
	var err error
	if t.breaker != nil {
		err = t.breaker.Call(ctx, publish)
	} else {
		err = publish()
	}
	observability.RepublishDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		observability.RepublishTotal.WithLabelValues(name, "skipped").Inc()
		logger.Warn("republish skipped, circuit open")
	case err != nil:
		observability.RepublishTotal.WithLabelValues(name, "error").Inc()
		logger.Error("republish failed", zap.Error(err))
	default:
		observability.RepublishTotal.WithLabelValues(name, "success").Inc()
		logger.Debug("report republished")
	}
}
