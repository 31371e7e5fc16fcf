package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestRetryNonRetryableFailsImmediately(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, Sleep: noSleep}
	permErr := &ProviderError{Provider: "openai", Status: 400, Kind: KindPermanent, Message: "bad request"}

	attempts := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return permErr
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Same(t, permErr, err)
}

func TestRetryExhaustedReturnsLastError(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, Sleep: noSleep}

	attempts := 0
	var last error
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		last = &ProviderError{Provider: "openai", Status: 503, Kind: KindTransient, Message: "unavailable"}
		return last
	})

	require.Error(t, err)
	assert.Equal(t, 4, attempts, "3 retries means 4 attempts")
	assert.Same(t, last, err, "exhausted retries surface the last error verbatim")
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, Sleep: noSleep}

	attempts := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &ProviderError{Provider: "groq", Status: 500, Kind: KindTransient, Message: "boom"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryDelayRateLimitFloor(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 2 * time.Second}.withDefaults()

	rlErr := &ProviderError{Provider: "openai", Status: 429, Kind: KindRateLimit}
	d := policy.delay(0, rlErr)
	assert.GreaterOrEqual(t, d, 30*time.Second, "rate-limit delay is floored")

	rlErr.RetryAfter = 45 * time.Second
	d = policy.delay(0, rlErr)
	assert.Equal(t, 45*time.Second, d, "server retry-after wins when larger")
}

func TestRetryDelayExponentialGrowth(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 2 * time.Second}.withDefaults()
	transient := &ProviderError{Provider: "openai", Status: 503, Kind: KindTransient}

	d0 := policy.delay(0, transient)
	d2 := policy.delay(2, transient)

	assert.GreaterOrEqual(t, d0, 2*time.Second)
	assert.Less(t, d0, 2200*time.Millisecond+time.Millisecond, "at most 10%% jitter")
	assert.GreaterOrEqual(t, d2, 8*time.Second)
	assert.Less(t, d2, 8800*time.Millisecond+time.Millisecond)
}

func TestRetryObserverSeesEveryFailure(t *testing.T) {
	var observed []error
	policy := RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Sleep:      noSleep,
		OnError:    func(err error) { observed = append(observed, err) },
	}

	err := policy.Do(context.Background(), func(ctx context.Context) error {
		return &ProviderError{Provider: "openai", Status: 429, Kind: KindRateLimit}
	})

	require.Error(t, err)
	assert.Len(t, observed, 3)
}

func TestRetryContextCancelledDuringSleep(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Sleep:      func(ctx context.Context, d time.Duration) error { return context.Canceled },
	}

	attempts := 0
	underlying := errors.New("503 service unavailable")
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return underlying
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, underlying, err, "cancellation surfaces the last provider error")
}
