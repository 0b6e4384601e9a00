package subscribe

import (
	"math/rand"
	"time"
)

// Reconnect backoff defaults. The Unraid API tends to come back quickly
// after a restart, so the initial delay is short; the cap keeps a long
// outage from hammering the box once per second forever.
const (
	defaultBackoffInitial    = 1 * time.Second
	defaultBackoffMax        = 5 * time.Minute
	defaultBackoffMultiplier = 2.0
)

// BackoffConfig tunes the reconnect delay sequence.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// backoff produces exponentially growing, jittered reconnect delays.
// It is owned by the engine goroutine and needs no locking.
type backoff struct {
	current    time.Duration
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	attempts   int
	rng        *rand.Rand
}

func newBackoff(cfg BackoffConfig) *backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = defaultBackoffInitial
	}
	if cfg.Max <= 0 {
		cfg.Max = defaultBackoffMax
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = defaultBackoffMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return &backoff{
		current:    cfg.Initial,
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the jittered delay to sleep before the upcoming attempt
// and advances the base delay for the one after.
func (b *backoff) Next() time.Duration {
	delay := b.addJitter(b.current)
	b.attempts++
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next
	return delay
}

// Reset restores the initial delay. Called after a successful handshake.
func (b *backoff) Reset() {
	b.current = b.initial
	b.attempts = 0
}

// Attempts reports consecutive failed attempts since the last reset.
func (b *backoff) Attempts() int { return b.attempts }

func (b *backoff) addJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.jitter*b.rng.Float64())
}
