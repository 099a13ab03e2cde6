package resilience

import (
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3})
	for i := 0; i < 2; i++ {
		cb.RecordFailure()
	}
	if cb.Open() {
		t.Fatal("breaker should not be open before threshold")
	}
	cb.RecordFailure()
	if !cb.Open() {
		t.Fatal("breaker should be open at threshold")
	}
	cb.RecordSuccess()
	if cb.Open() {
		t.Fatal("breaker should reset on success")
	}
}

func TestCircuitBreaker_HalfOpenProbeRecoversOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	cb.RecordFailure()
	if !cb.Open() {
		t.Fatal("breaker should be open after one failure at threshold 1")
	}

	time.Sleep(15 * time.Millisecond)
	if cb.Open() {
		t.Fatal("breaker should let a probe through once ResetTimeout has elapsed")
	}
	if got := cb.State(); got != CircuitHalfOpen {
		t.Fatalf("state = %v, want HalfOpen", got)
	}

	cb.RecordSuccess()
	if got := cb.State(); got != CircuitClosed {
		t.Fatalf("state after successful probe = %v, want Closed", got)
	}
}

func TestCircuitBreaker_HalfOpenProbeReopensOnFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	if cb.Open() {
		t.Fatal("expected probe to be let through")
	}

	cb.RecordFailure()
	if got := cb.State(); got != CircuitOpen {
		t.Fatalf("state after failed probe = %v, want Open", got)
	}
	if !cb.Open() {
		t.Fatal("breaker should be open again immediately after a failed probe")
	}
}

func TestCircuitBreaker_OnStateChangeFires(t *testing.T) {
	var transitions [][2]CircuitState
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, [2]CircuitState{from, to})
		},
	})
	cb.RecordFailure()
	if len(transitions) != 1 || transitions[0][0] != CircuitClosed || transitions[0][1] != CircuitOpen {
		t.Fatalf("transitions = %v, want one Closed->Open transition", transitions)
	}
}
