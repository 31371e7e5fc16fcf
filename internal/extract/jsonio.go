package extract

import (
	"encoding/json"
	"strings"

	"treeflow/internal/providers"
)

// StripCodeFence removes a surrounding markdown code fence that models emit
// despite JSON-mode instructions.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language tag line ("json")
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decodePayload parses a model response into v. Parse failures are
// classified: responses showing signs of an output-length cutoff surface as
// truncation with an actionable message, everything else as malformed.
func decodePayload(provider string, resp providers.CompletionResponse, v any) error {
	text := StripCodeFence(resp.Text)
	if providers.LooksTruncated(text, resp.StopReason) {
		return providers.TruncationError(provider)
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return &providers.ProviderError{
			Provider: provider,
			Kind:     providers.KindMalformed,
			Message:  "response is not valid JSON: " + err.Error(),
		}
	}
	return nil
}
