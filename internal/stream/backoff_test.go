package stream

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	b := DefaultBackoff()
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{-1, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // 32s capped
		{6, 30 * time.Second},
		{100, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := b.Delay(tt.attempts); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempts, got, tt.want)
		}
	}
}

func TestBackoffDelay_ExponentCapBelowMax(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Hour, CapExponent: 3}
	for attempts := 3; attempts < 10; attempts++ {
		if got := b.Delay(attempts); got != 800*time.Millisecond {
			t.Errorf("Delay(%d) = %s, want 800ms", attempts, got)
		}
	}
}

func TestBackoffDelay_MonotonicThenCapped(t *testing.T) {
	b := DefaultBackoff()
	prev := time.Duration(0)
	for attempts := 0; attempts < 40; attempts++ {
		got := b.Delay(attempts)
		if got < prev {
			t.Fatalf("Delay(%d) = %s decreased from %s", attempts, got, prev)
		}
		if got > b.Max {
			t.Fatalf("Delay(%d) = %s exceeds max %s", attempts, got, b.Max)
		}
		prev = got
	}
}
