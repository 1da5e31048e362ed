package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/weather-bridge/internal/models"
)

// requestCoalescer collapses concurrent read-through fetches for one station into a single
// upstream call. The shared call is detached from any one caller's cancellation and bounded
// by timeout; each caller still stops waiting when its own ctx ends.
type requestCoalescer struct {
	group   singleflight.Group
	timeout time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{timeout: timeout}
}

// GetOrDo runs fn for key unless a call is already in flight, in which case it waits for
// that call's result. shared reports whether the result was handed to more than one caller.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(context.Context) (models.Weather, error)) (weather models.Weather, shared bool, err error) {
	ch := rc.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
		defer cancel()
		return fn(callCtx)
	})

	select {
	case res := <-ch:
		w, _ := res.Val.(models.Weather)
		return w, res.Shared, res.Err
	case <-ctx.Done():
		return models.Weather{}, false, ctx.Err()
	}
}
