package circuitbreaker

import (
	"testing"
	"time"
)

func TestClosedAllowsRequests(t *testing.T) {
	b := New(3, time.Second)
	if !b.Allow("notify") {
		t.Error("closed circuit should allow requests")
	}
	if b.State("notify") != StateClosed {
		t.Error("unknown key should report closed")
	}
}

func TestTripsAfterThreshold(t *testing.T) {
	b := New(3, time.Hour)
	for i := 0; i < 3; i++ {
		b.RecordFailure("notify")
	}
	if b.State("notify") != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", b.State("notify"))
	}
	if b.Allow("notify") {
		t.Error("open circuit should reject requests")
	}
}

func TestHalfOpenProbe(t *testing.T) {
	b := New(2, 10*time.Millisecond)
	b.RecordFailure("notify")
	b.RecordFailure("notify")
	if b.State("notify") != StateOpen {
		t.Fatal("expected open")
	}

	time.Sleep(15 * time.Millisecond)
	if !b.Allow("notify") {
		t.Fatal("expected probe allowed after open duration")
	}
	if b.State("notify") != StateHalfOpen {
		t.Fatalf("expected half_open, got %s", b.State("notify"))
	}
	// Second request rejected while probing.
	if b.Allow("notify") {
		t.Error("half-open circuit should allow only one probe")
	}

	b.RecordSuccess("notify")
	if b.State("notify") != StateClosed {
		t.Errorf("expected closed after probe success, got %s", b.State("notify"))
	}
}

func TestProbeFailureReopens(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	b.RecordFailure("notify")
	time.Sleep(15 * time.Millisecond)
	if !b.Allow("notify") {
		t.Fatal("expected probe allowed")
	}
	b.RecordFailure("notify")
	if b.State("notify") != StateOpen {
		t.Errorf("expected open after probe failure, got %s", b.State("notify"))
	}
}

func TestReset(t *testing.T) {
	b := New(1, time.Hour)
	b.RecordFailure("notify")
	if b.State("notify") != StateOpen {
		t.Fatal("expected open")
	}
	b.Reset("notify")
	if b.State("notify") != StateClosed {
		t.Error("expected closed after reset")
	}
	if !b.Allow("notify") {
		t.Error("expected requests allowed after reset")
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New(3, time.Hour)
	b.RecordFailure("notify")
	b.RecordFailure("notify")
	b.RecordSuccess("notify")
	b.RecordFailure("notify")
	b.RecordFailure("notify")
	if b.State("notify") != StateClosed {
		t.Error("non-consecutive failures should not trip the circuit")
	}
}
