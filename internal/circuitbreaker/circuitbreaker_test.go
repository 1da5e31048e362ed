package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// TestCircuitBreaker_OpensAfterThreshold verifies consecutive failures open the circuit
// and later calls fail fast without invoking fn.
func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute, Component: "pws"})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := cb.Call(ctx, func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("Call() #%d error = %v, want errBoom", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Call() on open circuit error = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn called while circuit open")
	}
}

// TestCircuitBreaker_HalfOpenRecovers verifies the circuit probes after Timeout and
// closes after SuccessThreshold successes.
func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	cb := New(Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          20 * time.Millisecond,
		Component:        "weather_api",
		OnStateChange: func(from, to State) {
			mu.Lock()
			transitions = append(transitions, from.String()+"->"+to.String())
			mu.Unlock()
		},
	})
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errBoom })
	time.Sleep(30 * time.Millisecond)
	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("probe Call() error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

// TestCircuitBreaker_CanceledContext verifies fn is skipped when ctx is already done.
func TestCircuitBreaker_CanceledContext(t *testing.T) {
	cb := New(Config{Component: "kafka"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := cb.Call(ctx, func() error { t.Error("fn called"); return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Call() error = %v, want context.Canceled", err)
	}
}

func TestState_String(t *testing.T) {
	if StateHalfOpen.String() != "half_open" || State(9).String() != "unknown" {
		t.Error("unexpected State.String() output")
	}
}
