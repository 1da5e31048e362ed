package lifecycle

import (
	"sync/atomic"
	"time"
)

var (
	shuttingDown atomic.Bool
	startedAt    atomic.Int64
	lastSuccess  atomic.Int64
)

func init() {
	startedAt.Store(time.Now().UnixNano())
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// MarkStarted records when polling began. Staleness is measured from here until the
// first successful poll.
func MarkStarted(t time.Time) {
	startedAt.Store(t.UnixNano())
}

// RecordPollSuccess records the time of a successful poll callback.
func RecordPollSuccess(t time.Time) {
	lastSuccess.Store(t.UnixNano())
}

// LastPollSuccess returns the last successful poll time, or the zero time if none.
func LastPollSuccess() time.Time {
	n := lastSuccess.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// IsStale reports whether no poll succeeded within staleAfter of now. Before the first success
// the reference point is the start time, so a fresh process is not stale.
// staleAfter <= 0 disables the check.
func IsStale(now time.Time, staleAfter time.Duration) bool {
	if staleAfter <= 0 {
		return false
	}
	ref := lastSuccess.Load()
	if ref == 0 {
		ref = startedAt.Load()
	}
	return now.Sub(time.Unix(0, ref)) > staleAfter
}

// Reset clears poll state and restarts the clock. For tests only.
func Reset() {
	shuttingDown.Store(false)
	lastSuccess.Store(0)
	startedAt.Store(time.Now().UnixNano())
}
