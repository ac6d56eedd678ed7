package api

import (
	"context"

	"golang.org/x/time/rate"
)

// callPacer paces generation calls to the configured requests-per-minute
// budget. Burst capacity is a percentage of the per-minute rate, so a run
// can absorb scheduling jitter without blowing the minute window.
type callPacer struct {
	limiter *rate.Limiter
}

// newCallPacer converts a per-minute budget into a token bucket. A
// non-positive rpm disables pacing entirely, which is the right default for
// a local endpoint that is its own bottleneck.
func newCallPacer(rpm, burstPercent int) *callPacer {
	if rpm <= 0 {
		return &callPacer{}
	}
	burst := rpm * burstPercent / 100
	if burst < 1 {
		burst = 1
	}
	return &callPacer{
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
	}
}

// Wait blocks until the next call is allowed or ctx is done.
func (p *callPacer) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}
