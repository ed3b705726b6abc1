package scheduler

import "testing"

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3)

	for i := 0; i < 2; i++ {
		if !cb.Allow() {
			t.Fatalf("breaker should stay closed before threshold, iteration %d", i)
		}
		cb.RecordFailure()
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("state = %v, want closed before threshold reached", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open at threshold", cb.State())
	}
	if cb.Allow() {
		t.Fatal("breaker should refuse calls immediately after opening")
	}
}

func TestCircuitBreakerRecordSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(2)
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatal("expected breaker to open after reaching threshold")
	}

	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Fatalf("state = %v, want closed after RecordSuccess", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("expected a closed breaker to allow calls")
	}
}
