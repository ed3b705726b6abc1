package scheduler

import "testing"

func TestUpstreamLimiterAllowsBurstThenThrottles(t *testing.T) {
	lim := NewUpstreamLimiter(1, 2)

	if !lim.Allow("device-1") {
		t.Fatal("expected first call within burst to be allowed")
	}
	if !lim.Allow("device-1") {
		t.Fatal("expected second call within burst to be allowed")
	}
	if lim.Allow("device-1") {
		t.Fatal("expected third call to exceed burst and be denied")
	}
}

func TestUpstreamLimiterIsPerID(t *testing.T) {
	lim := NewUpstreamLimiter(1, 1)

	if !lim.Allow("device-a") {
		t.Fatal("expected device-a's first call to be allowed")
	}
	if !lim.Allow("device-b") {
		t.Fatal("device-b should have its own independent bucket")
	}
}

func TestUpstreamLimiterForgetResetsBucket(t *testing.T) {
	lim := NewUpstreamLimiter(1, 1)

	lim.Allow("device-1")
	if lim.Allow("device-1") {
		t.Fatal("expected bucket to be exhausted before Forget")
	}
	lim.Forget("device-1")
	if !lim.Allow("device-1") {
		t.Fatal("expected a fresh bucket immediately after Forget")
	}
}
