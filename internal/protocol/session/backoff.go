package session

import (
	"math"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// retryPolicy adapts BackoffConfig to backoff.BackOff.
type retryPolicy struct {
	cfg     BackoffConfig
	rng     *rand.Rand
	attempt int
}

func newRetryPolicy(cfg BackoffConfig, rng *rand.Rand) *retryPolicy {
	return &retryPolicy{cfg: cfg, rng: rng}
}

func (p *retryPolicy) NextBackOff() time.Duration {
	p.attempt++
	return NextBackoffDelay(p.cfg, p.attempt, p.rng)
}

func (p *retryPolicy) Reset() {
	p.attempt = 0
}

var _ backoff.BackOff = (*retryPolicy)(nil)
