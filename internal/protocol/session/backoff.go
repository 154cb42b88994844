package session

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
//
// Linear mode yields InitialDelay*N; exponential mode yields
// InitialDelay*Multiplier^(N-1). MaxDelay caps both before jitter.
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	var delay float64
	switch cfg.Mode {
	case BackoffLinear:
		delay = float64(cfg.InitialDelay) * float64(attempt)
	default:
		if cfg.Multiplier < 1.0 {
			cfg.Multiplier = 1.0
		}
		delay = float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	}
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
