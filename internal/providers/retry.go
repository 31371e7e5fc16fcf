package providers

import (
	"context"
	"math"
	"math/rand"
	"time"
)

const (
	defaultMaxRetries   = 3
	defaultBaseDelay    = 2 * time.Second
	rateLimitDelayFloor = 30 * time.Second
	jitterFraction      = 0.10
)

// RetryPolicy wraps provider calls in exponential backoff with jitter. Only
// transport-level failures (rate limit, quota, transient service, network)
// are retried; everything else propagates on the first attempt. Exhausted
// retries re-raise the last underlying error verbatim.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration

	// Retryable overrides the default retryability predicate.
	Retryable func(error) bool
	// OnError observes every failed attempt before any delay; used to record
	// rate-limit timestamps.
	OnError func(error)
	// Sleep is swappable for tests; defaults to a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error

	rand *rand.Rand
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaultMaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.Retryable == nil {
		p.Retryable = Retryable
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Do runs fn up to MaxRetries+1 times.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	p = p.withDefaults()
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if p.OnError != nil {
			p.OnError(err)
		}
		lastErr = err
		if !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxRetries {
			break
		}
		if serr := p.Sleep(ctx, p.delay(attempt, err)); serr != nil {
			return lastErr
		}
	}
	return lastErr
}

func (p RetryPolicy) delay(attempt int, err error) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt)))
	d += time.Duration(p.jitter() * jitterFraction * float64(d))
	if IsRateLimited(err) {
		if ra := RetryAfterOf(err); ra > d {
			d = ra
		} else if d < rateLimitDelayFloor {
			d = rateLimitDelayFloor
		}
	}
	return d
}

func (p RetryPolicy) jitter() float64 {
	if p.rand != nil {
		return p.rand.Float64()
	}
	return rand.Float64()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
