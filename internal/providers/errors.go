package providers

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type ErrorKind string

const (
	KindRateLimit ErrorKind = "rate_limit"
	KindQuota     ErrorKind = "quota"
	KindAuth      ErrorKind = "auth"
	KindTransient ErrorKind = "transient"
	KindNetwork   ErrorKind = "network"
	KindTruncated ErrorKind = "truncated"
	KindMalformed ErrorKind = "malformed"
	KindPermanent ErrorKind = "permanent"
)

// ProviderError carries the classification a caller needs to decide between
// retry, fallback, and surfacing.
type ProviderError struct {
	Provider   string
	Status     int
	Kind       ErrorKind
	RetryAfter time.Duration
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func newHTTPError(provider string, status int, body string, retryAfter time.Duration) *ProviderError {
	kind := KindPermanent
	low := strings.ToLower(body)
	switch {
	case status == 429 && (strings.Contains(low, "quota") || strings.Contains(low, "insufficient_quota") || strings.Contains(low, "credit")):
		kind = KindQuota
	case status == 429:
		kind = KindRateLimit
	case status == 401 || status == 403:
		kind = KindAuth
	case status == 500 || status == 502 || status == 503 || status == 504:
		kind = KindTransient
	}
	msg := body
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return &ProviderError{Provider: provider, Status: status, Kind: kind, RetryAfter: retryAfter, Message: msg}
}

func newNetworkError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindNetwork, Message: err.Error()}
}

// Classify maps any error to an ErrorKind: typed provider errors report their
// own kind; everything else is classified by message substrings.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "quota"), strings.Contains(e, "insufficient_quota"), strings.Contains(e, "credit"):
		return KindQuota
	case strings.Contains(e, "429"), strings.Contains(e, "rate limit"), strings.Contains(e, "rate_limit"):
		return KindRateLimit
	case strings.Contains(e, "connection reset"), strings.Contains(e, "timeout"), strings.Contains(e, "deadline exceeded"), strings.Contains(e, "no such host"):
		return KindNetwork
	case strings.Contains(e, "503"), strings.Contains(e, "unavailable"), strings.Contains(e, "temporarily"), strings.Contains(e, "overloaded"):
		return KindTransient
	default:
		return KindPermanent
	}
}

// Retryable reports whether the retry policy may re-attempt the call.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindRateLimit, KindQuota, KindTransient, KindNetwork:
		return true
	default:
		return false
	}
}

// IsRateLimited reports whether the error should be recorded against the
// provider's rate-limit timestamp.
func IsRateLimited(err error) bool {
	k := Classify(err)
	return k == KindRateLimit || k == KindQuota
}

// RetryAfterOf extracts a server-provided retry-after hint, if any.
func RetryAfterOf(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// LooksTruncated reports whether a model response was cut off before the end
// of its JSON payload: it does not end on a closing brace/bracket, or the
// stop reason indicates an output-length cutoff.
func LooksTruncated(text, stopReason string) bool {
	switch strings.ToLower(stopReason) {
	case "length", "max_tokens", "max_output_tokens":
		return true
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	last := trimmed[len(trimmed)-1]
	return last != '}' && last != ']'
}

// TruncationError builds the actionable error surfaced when a response is
// classified as truncated rather than merely malformed.
func TruncationError(provider string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     KindTruncated,
		Message:  "response truncated before JSON completed; split the document or retry with the larger-context fallback provider",
	}
}
