package dedup

import (
	"strings"

	"treeflow/internal/tree"
)

const (
	titleWeight   = 0.6
	contentWeight = 0.4
	contentPrefix = 200

	// DuplicateThreshold and EscalateThreshold carve the 0-100 score into
	// three half-open bands: score >= 85 is a duplicate, 70 <= score < 85
	// goes to the model judge, below 70 the pair is distinct.
	DuplicateThreshold = 85.0
	EscalateThreshold  = 70.0
)

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// EditSimilarity scores two strings 0-100 by normalized edit distance.
// Two empty strings are identical.
func EditSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 100
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 100
	}
	d := levenshtein(a, b)
	return 100 * (1 - float64(d)/float64(longest))
}

func contentHead(n tree.Node) string {
	text := n.Content.Text
	r := []rune(text)
	if len(r) > contentPrefix {
		r = r[:contentPrefix]
	}
	return string(r)
}

// PairScore is the stage-1 similarity of two nodes: title similarity
// weighted 0.6 plus leading-content similarity weighted 0.4, 0-100.
func PairScore(a, b tree.Node) float64 {
	return titleWeight*EditSimilarity(a.Title, b.Title) + contentWeight*EditSimilarity(contentHead(a), contentHead(b))
}
