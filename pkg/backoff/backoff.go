// Package backoff provides the retry pacing used by the node session
// manager (reconnect delays) and the REST client (request pacing).
//
// Example usage:
//
//	pol := backoff.Policy{MaxAttempts: 5, Initial: 5 * time.Second, Multiplier: 2}
//	for attempt := 1; !pol.Exhausted(attempt); attempt++ {
//	    time.Sleep(pol.Delay(attempt))
//	    if tryConnect() == nil {
//	        break
//	    }
//	}
package backoff

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Policy describes how long to wait before each retry attempt.
// A Multiplier of 1 (or 0) keeps the delay constant; anything above 1
// grows it exponentially up to Max.
type Policy struct {
	MaxAttempts int           // 0 = retry forever
	Initial     time.Duration // delay before the first retry
	Max         time.Duration // cap for grown delays (0 = uncapped)
	Multiplier  float64       // growth factor per attempt
	Jitter      bool          // add 0-25% random jitter per delay
}

// DefaultPolicy matches the reconnect defaults of the session manager.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		Initial:     5 * time.Second,
		Max:         60 * time.Second,
		Multiplier:  1,
		Jitter:      true,
	}
}

// Exhausted reports whether the 1-based attempt number exceeds the policy.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}

// Delay returns the wait before the given 1-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Initial
	if p.Multiplier > 1 {
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * p.Multiplier)
			if p.Max > 0 && d >= p.Max {
				d = p.Max
				break
			}
		}
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	if p.Jitter {
		d = addJitter(d)
	}
	return d
}

// Sleep waits for the attempt's delay or until the context is done.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// addJitter adds random jitter (0-25% of delay) to avoid thundering herds
// when several nodes drop at once.
func addJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Int63n(int64(delay/4)+1))
}

// Pacer is a thin rate limiter for outbound REST calls, so a burst of
// player commands cannot flood the node.
type Pacer struct {
	lim *rate.Limiter
}

// NewPacer allows rps requests per second with the given burst.
func NewPacer(rps float64, burst int) *Pacer {
	if rps <= 0 {
		rps = 10
	}
	if burst < 1 {
		burst = 1
	}
	return &Pacer{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or the context is canceled.
func (p *Pacer) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return p.lim.Wait(ctx)
}
