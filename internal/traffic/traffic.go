// Package traffic keeps sliding windows of poll outcomes and read-API rate-limit denials.
// The health check derives the degraded state from the poll error rate.
package traffic

import (
	"sync"
	"time"
)

// DefaultRetention bounds how far back outcomes are kept.
const DefaultRetention = time.Hour

var defaultTracker Tracker

// RecordSuccess records a successful poll callback.
func RecordSuccess() {
	defaultTracker.RecordSuccess()
}

// RecordError records a failed poll callback (transport, upstream or parse error).
func RecordError() {
	defaultTracker.RecordError()
}

// RecordDenied records a read-API rate-limit denial (429).
func RecordDenied() {
	defaultTracker.RecordDenied()
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// ErrorRate returns (errorCount, totalCount) within the window. totalCount = successes + errors.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// Degraded reports whether the poll error percentage over window is at or above thresholdPct.
func Degraded(window time.Duration, thresholdPct float64) bool {
	return defaultTracker.Degraded(window, thresholdPct)
}

// SetRetention sets how long outcomes are kept. Values <= 0 restore DefaultRetention.
func SetRetention(d time.Duration) {
	defaultTracker.SetRetention(d)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains sliding windows of outcome timestamps. The zero value is ready to use.
type Tracker struct {
	mu           sync.Mutex
	retention    time.Duration
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time
}

func (t *Tracker) RecordSuccess() {
	t.recordOutcome(&t.successTimes)
}

func (t *Tracker) RecordError() {
	t.recordOutcome(&t.errorTimes)
}

func (t *Tracker) RecordDenied() {
	t.recordOutcome(&t.deniedTimes)
}

func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countInWindow(t.deniedTimes, time.Now().Add(-window))
}

// ErrorRate returns (errorCount, totalCount) within the window.
// Denials are not poll outcomes and are excluded.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	errCount := countInWindow(t.errorTimes, cutoff)
	successCount := countInWindow(t.successTimes, cutoff)
	return errCount, errCount + successCount
}

// Degraded reports whether errors/total*100 >= thresholdPct within window.
// No outcomes in the window is never degraded.
func (t *Tracker) Degraded(window time.Duration, thresholdPct float64) bool {
	errCount, total := t.ErrorRate(window)
	if total == 0 {
		return false
	}
	return float64(errCount)*100/float64(total) >= thresholdPct
}

func (t *Tracker) SetRetention(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retention = d
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
	t.deniedTimes = nil
}

func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than the retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	maxAge := t.retention
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}
	cutoff := now.Add(-maxAge)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
	prune(&t.deniedTimes)
}
