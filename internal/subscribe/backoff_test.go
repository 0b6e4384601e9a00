package subscribe

import (
	"testing"
	"time"
)

func TestBackoffDoublesUpToCap(t *testing.T) {
	b := newBackoff(BackoffConfig{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2})

	want := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond,
		50 * time.Millisecond,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, w, got)
		}
	}
	if b.Attempts() != len(want) {
		t.Fatalf("expected %d attempts, got %d", len(want), b.Attempts())
	}
}

func TestBackoffReset(t *testing.T) {
	b := newBackoff(BackoffConfig{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2})
	b.Next()
	b.Next()

	b.Reset()
	if b.Attempts() != 0 {
		t.Fatalf("expected attempts reset, got %d", b.Attempts())
	}
	if got := b.Next(); got != 10*time.Millisecond {
		t.Fatalf("expected initial delay after reset, got %s", got)
	}
}

func TestBackoffJitterStaysInRange(t *testing.T) {
	// Jitter 0.5 stretches each delay by at most half of itself.
	for i := 0; i < 25; i++ {
		b := newBackoff(BackoffConfig{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2, Jitter: 0.5})
		d := b.Next()
		if d < 100*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("jittered delay %s outside [100ms, 150ms]", d)
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := newBackoff(BackoffConfig{})
	if b.initial != defaultBackoffInitial || b.max != defaultBackoffMax || b.multiplier != defaultBackoffMultiplier {
		t.Fatalf("unexpected defaults: %+v", b)
	}
	if got := b.Next(); got != defaultBackoffInitial {
		t.Fatalf("expected %s first delay, got %s", defaultBackoffInitial, got)
	}
}

func TestBackoffRejectsShrinkingMultiplier(t *testing.T) {
	// A multiplier at or below 1 would stop the delay from growing.
	b := newBackoff(BackoffConfig{Initial: 10 * time.Millisecond, Max: time.Second, Multiplier: 1})
	b.Next()
	if got := b.Next(); got != 20*time.Millisecond {
		t.Fatalf("expected doubled delay, got %s", got)
	}
}

func TestBackoffNegativeJitterClamped(t *testing.T) {
	b := newBackoff(BackoffConfig{Initial: 10 * time.Millisecond, Max: time.Second, Multiplier: 2, Jitter: -1})
	if got := b.Next(); got != 10*time.Millisecond {
		t.Fatalf("expected exact delay with clamped jitter, got %s", got)
	}
}
