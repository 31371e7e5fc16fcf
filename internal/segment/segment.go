// Package segment splits raw source text into overlapping token-bounded
// chunks that preserve cross-boundary context.
package segment

import "strings"

type Options struct {
	MaxTokens     int
	OverlapTokens int
}

type Segment struct {
	Index         int
	Text          string
	TokenEstimate int
}

// EstimateTokens approximates tokens as characters/4, rounded up.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

const charsPerToken = 4

// Split cuts text into segments of at most MaxTokens (estimated) with
// OverlapTokens of trailing context carried into the next segment. Empty
// input yields an empty slice.
func Split(text string, opts Options) []Segment {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 500
	}
	if opts.OverlapTokens < 0 || opts.OverlapTokens >= opts.MaxTokens {
		opts.OverlapTokens = 0
	}
	if strings.TrimSpace(text) == "" {
		return []Segment{}
	}

	chunkRunes := opts.MaxTokens * charsPerToken
	overlapRunes := opts.OverlapTokens * charsPerToken
	step := chunkRunes - overlapRunes
	if step <= 0 {
		step = chunkRunes
	}

	runes := []rune(text)
	out := make([]Segment, 0)
	idx := 0
	for i := 0; i < len(runes); i += step {
		end := i + chunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		part := string(runes[i:end])
		if strings.TrimSpace(part) != "" {
			out = append(out, Segment{
				Index:         idx,
				Text:          part,
				TokenEstimate: EstimateTokens(part),
			})
			idx++
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
