package providers

import (
	"strings"
	"sync"
	"time"
)

// RateLimitTracker keeps the last rate-limited timestamp per provider name.
// Last write wins; staleness within the selection window is tolerated. The
// clock is injectable for deterministic tests.
type RateLimitTracker struct {
	mu          sync.Mutex
	lastLimited map[string]time.Time
	now         func() time.Time
}

func NewRateLimitTracker(now func() time.Time) *RateLimitTracker {
	if now == nil {
		now = time.Now
	}
	return &RateLimitTracker{lastLimited: map[string]time.Time{}, now: now}
}

func (t *RateLimitTracker) RecordRateLimit(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastLimited[strings.ToLower(provider)] = t.now()
}

// Observe records the provider's rate-limit timestamp when err is a 429 or
// quota error. Callers invoke this on every provider error before surfacing.
func (t *RateLimitTracker) Observe(provider string, err error) {
	if IsRateLimited(err) {
		t.RecordRateLimit(provider)
	}
}

func (t *RateLimitTracker) LimitedWithin(provider string, window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.lastLimited[strings.ToLower(provider)]
	if !ok {
		return false
	}
	return t.now().Sub(at) < window
}

const (
	defaultTokenThreshold  = 120000
	defaultOverheadTokens  = 4000
	promptSafetyMargin     = 1.2
	defaultRateLimitWindow = 10 * time.Minute
)

// Selector routes extraction calls to a primary provider for ordinary prompt
// sizes and to a larger-context fallback when the estimate crosses the
// threshold or the primary was rate-limited recently.
type Selector struct {
	Primary        string
	Fallback       string
	TokenThreshold int
	OverheadTokens int
	Window         time.Duration
	Tracker        *RateLimitTracker
}

func NewSelector(primary, fallback string, threshold int, window time.Duration, tracker *RateLimitTracker) *Selector {
	if threshold <= 0 {
		threshold = defaultTokenThreshold
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	if tracker == nil {
		tracker = NewRateLimitTracker(nil)
	}
	return &Selector{
		Primary:        strings.ToLower(primary),
		Fallback:       strings.ToLower(fallback),
		TokenThreshold: threshold,
		OverheadTokens: defaultOverheadTokens,
		Window:         window,
		Tracker:        tracker,
	}
}

// EstimatePromptTokens adds fixed overhead and a 1.2 safety margin to the
// serialized document estimate.
func (s *Selector) EstimatePromptTokens(documentTokens int) int {
	return int(float64(documentTokens+s.OverheadTokens) * promptSafetyMargin)
}

// Choose picks a provider name for a document of the given serialized token
// estimate. Oversized prompts and a recently rate-limited primary both route
// to the fallback.
func (s *Selector) Choose(documentTokens int) string {
	if s.EstimatePromptTokens(documentTokens) > s.TokenThreshold {
		return s.Fallback
	}
	if s.Tracker.LimitedWithin(s.Primary, s.Window) {
		return s.Fallback
	}
	return s.Primary
}

// FallbackFor resolves the fixed bidirectional primary/fallback mapping; any
// unrecognized provider falls back to the configured fallback.
func (s *Selector) FallbackFor(name string) string {
	switch strings.ToLower(name) {
	case s.Primary:
		return s.Fallback
	case s.Fallback:
		return s.Primary
	default:
		return s.Fallback
	}
}
