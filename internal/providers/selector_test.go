package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSelectorOversizedPromptRoutesToFallback(t *testing.T) {
	tracker := NewRateLimitTracker(nil)
	sel := NewSelector("openai", "groq", 120000, 10*time.Minute, tracker)

	// 200K serialized tokens blow past the threshold with margin applied,
	// regardless of rate-limit state.
	assert.Equal(t, "groq", sel.Choose(200000))
	assert.Equal(t, "openai", sel.Choose(10000))
}

func TestSelectorRateLimitedPrimaryRoutesToFallback(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	tracker := NewRateLimitTracker(func() time.Time { return now })
	sel := NewSelector("openai", "groq", 120000, 10*time.Minute, tracker)

	tracker.RecordRateLimit("openai")

	now = base.Add(2 * time.Minute)
	assert.Equal(t, "groq", sel.Choose(10000), "primary limited 2 minutes ago")

	now = base.Add(11 * time.Minute)
	assert.Equal(t, "openai", sel.Choose(10000), "window expired")
}

func TestSelectorEstimateAddsOverheadAndMargin(t *testing.T) {
	sel := NewSelector("openai", "groq", 0, 0, nil)
	// (100000 + 4000) * 1.2
	assert.Equal(t, 124800, sel.EstimatePromptTokens(100000))
}

func TestSelectorFallbackMappingIsBidirectional(t *testing.T) {
	sel := NewSelector("openai", "groq", 0, 0, nil)

	assert.Equal(t, "groq", sel.FallbackFor("openai"))
	assert.Equal(t, "openai", sel.FallbackFor("groq"))
	assert.Equal(t, "groq", sel.FallbackFor("something-else"))
	assert.Equal(t, "groq", sel.FallbackFor("OpenAI"), "lookup is case-insensitive")
}

func TestTrackerObserveRecordsOnlyRateLimitErrors(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewRateLimitTracker(func() time.Time { return base })

	tracker.Observe("openai", &ProviderError{Provider: "openai", Status: 400, Kind: KindPermanent})
	assert.False(t, tracker.LimitedWithin("openai", 10*time.Minute))

	tracker.Observe("openai", &ProviderError{Provider: "openai", Status: 429, Kind: KindRateLimit})
	assert.True(t, tracker.LimitedWithin("openai", 10*time.Minute))

	tracker.Observe("groq", &ProviderError{Provider: "groq", Status: 429, Kind: KindQuota})
	assert.True(t, tracker.LimitedWithin("groq", 10*time.Minute), "quota errors count as rate limits")
}
