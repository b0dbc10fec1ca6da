package reconnect

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 15 * time.Second
)

// Backoff describes the reconnection delay curve:
// delay(attempt) = min(Base * 2^(attempt-1), Max), attempt starting at 1.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64 // fraction in [0,1); 0 keeps the curve exact
}

// Delay returns the exact curve value for attempt, without jitter.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		if d >= b.Max/2 {
			return b.Max
		}
		d *= 2
	}
	return min(d, b.Max)
}

// schedule walks the curve one failure at a time.
type schedule struct {
	curve  Backoff
	policy *backoff.ExponentialBackOff
}

func newSchedule(b Backoff) *schedule {
	p := backoff.NewExponentialBackOff()
	p.InitialInterval = b.Base
	p.MaxInterval = b.Max
	p.Multiplier = 2
	p.RandomizationFactor = 0
	p.Reset()

	return &schedule{curve: b, policy: p}
}

// next returns the delay for the next retry and advances the curve.
func (s *schedule) next() time.Duration {
	d := min(s.policy.NextBackOff(), s.curve.Max)
	if s.curve.Jitter > 0 {
		spread := float64(d) * s.curve.Jitter
		d = time.Duration(float64(d) - spread + rand.Float64()*2*spread)
		d = max(min(d, s.curve.Max), 0)
	}
	return d
}

func (s *schedule) reset() {
	s.policy.Reset()
}
