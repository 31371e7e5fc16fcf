// Package infer adds rule-based dependencies between extracted nodes by
// scanning their text for cross-references. No model calls are made here;
// the rules run after any model-identified dependencies and never replace
// them.
package infer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"treeflow/internal/tree"
)

// Confidence tiers for ordinal-reference resolution, strongest match first.
const (
	confTitlePrefix  = 0.95
	confTitleMention = 0.85
	confPositional   = 0.70
	confBodyMention  = 0.60

	confPreparedAbove = 0.80
	confAfterPhrase   = 0.70
	confSeeReference  = 0.65
	confUsesFrom      = 0.75

	confTypeHeuristic = 0.60
	confTypeBoosted   = 0.75
)

var (
	ordinalRe     = regexp.MustCompile(`(?i)\bfrom step (\d+)\b`)
	preparedRe    = regexp.MustCompile(`(?i)\busing the ([a-z0-9][a-z0-9 \-]{2,60}?) prepared (?:above|earlier|previously)\b`)
	afterRe       = regexp.MustCompile(`(?i)\b(?:after|following) (?:the )?([a-z0-9][a-z0-9 \-]{2,60}?)[.,;)]`)
	seeRe         = regexp.MustCompile(`(?i)\b(?:see|refer to) (?:the )?([a-z0-9][a-z0-9 \-]{2,60}?)[.,;)]`)
	usesFromRe    = regexp.MustCompile(`(?i)\busing (?:the )?([a-z0-9][a-z0-9 \-]{2,60}?) from (?:step )?([a-z0-9][a-z0-9 \-]{0,60}?)[.,;)]`)
	analysisTerms = []string{"analysis", "analyzed", "statistical", "regression", "anova", "t-test", "correlation", "model"}
)

// Infer annotates nodes with rule-derived dependencies. It is idempotent:
// existing dependencies are never duplicated (keyed by target title + type)
// and a node never depends on itself.
func Infer(nodes []tree.Node) []tree.Node {
	out := make([]tree.Node, len(nodes))
	copy(out, nodes)

	for i := range out {
		out[i].Dependencies = append([]tree.Dependency(nil), out[i].Dependencies...)
		existing := depKeys(out[i])
		add := func(dep tree.Dependency) {
			if dep.TargetTitle == "" {
				return
			}
			if tree.CanonicalTitle(dep.TargetTitle) == tree.CanonicalTitle(out[i].Title) {
				return
			}
			key := depKey(dep.TargetTitle, dep.Type)
			if existing[key] {
				return
			}
			existing[key] = true
			out[i].Dependencies = append(out[i].Dependencies, dep)
		}

		text := out[i].Content.Text
		inferOrdinals(out, i, text, add)
		inferPhrases(out, i, text, add)
	}

	inferTypeHeuristics(out)
	return out
}

func depKeys(n tree.Node) map[string]bool {
	keys := make(map[string]bool, len(n.Dependencies))
	for _, d := range n.Dependencies {
		keys[depKey(d.TargetTitle, d.Type)] = true
	}
	return keys
}

func depKey(target string, typ tree.DependencyType) string {
	return tree.CanonicalTitle(target) + "|" + string(typ)
}

func inferOrdinals(nodes []tree.Node, self int, text string, add func(tree.Dependency)) {
	for _, m := range ordinalRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}
		if idx, conf, via := resolveOrdinal(nodes, self, n); idx >= 0 {
			add(tree.Dependency{
				TargetTitle: nodes[idx].Title,
				Type:        tree.DepRequires,
				Evidence:    m[0],
				Confidence:  conf,
				MatchedVia:  via,
			})
		}
	}
}

// resolveOrdinal finds the node step N refers to, in decreasing order of
// certainty: a title starting "N.", a title mentioning "step N", the Nth
// node positionally, then a body mentioning "step N" or "procedure N".
func resolveOrdinal(nodes []tree.Node, self, n int) (int, float64, string) {
	prefix := fmt.Sprintf("%d.", n)
	stepRef := fmt.Sprintf("step %d", n)
	procRef := fmt.Sprintf("procedure %d", n)

	for i := range nodes {
		if i != self && strings.HasPrefix(strings.TrimSpace(nodes[i].Title), prefix) {
			return i, confTitlePrefix, "ordinal_title_prefix"
		}
	}
	for i := range nodes {
		if i != self && strings.Contains(strings.ToLower(nodes[i].Title), stepRef) {
			return i, confTitleMention, "ordinal_title_mention"
		}
	}
	if n-1 >= 0 && n-1 < len(nodes) && n-1 != self {
		return n - 1, confPositional, "ordinal_position"
	}
	for i := range nodes {
		if i == self {
			continue
		}
		body := strings.ToLower(nodes[i].Content.Text)
		if strings.Contains(body, stepRef) || strings.Contains(body, procRef) {
			return i, confBodyMention, "ordinal_body_mention"
		}
	}
	return -1, 0, ""
}

func inferPhrases(nodes []tree.Node, self int, text string, add func(tree.Dependency)) {
	for _, m := range preparedRe.FindAllStringSubmatch(text, -1) {
		if idx := fuzzyTitleMatch(nodes, self, m[1]); idx >= 0 {
			add(tree.Dependency{
				TargetTitle: nodes[idx].Title,
				Type:        tree.DepRequires,
				Evidence:    m[0],
				Confidence:  confPreparedAbove,
				MatchedVia:  "prepared_above",
			})
		}
	}
	for _, m := range afterRe.FindAllStringSubmatch(text, -1) {
		if idx := fuzzyTitleMatch(nodes, self, m[1]); idx >= 0 {
			add(tree.Dependency{
				TargetTitle: nodes[idx].Title,
				Type:        tree.DepFollows,
				Evidence:    m[0],
				Confidence:  confAfterPhrase,
				MatchedVia:  "after_phrase",
			})
		}
	}
	for _, m := range seeRe.FindAllStringSubmatch(text, -1) {
		if idx := fuzzyTitleMatch(nodes, self, m[1]); idx >= 0 {
			add(tree.Dependency{
				TargetTitle: nodes[idx].Title,
				Type:        tree.DepValidates,
				Evidence:    m[0],
				Confidence:  confSeeReference,
				MatchedVia:  "see_reference",
			})
		}
	}
	for _, m := range usesFromRe.FindAllStringSubmatch(text, -1) {
		ref := strings.TrimSpace(m[2])
		if n, err := strconv.Atoi(ref); err == nil && n > 0 {
			if idx, conf, via := resolveOrdinal(nodes, self, n); idx >= 0 {
				add(tree.Dependency{
					TargetTitle: nodes[idx].Title,
					Type:        tree.DepUsesOutput,
					Evidence:    m[0],
					Confidence:  conf,
					MatchedVia:  "uses_from_" + via,
				})
			}
			continue
		}
		if idx := fuzzyTitleMatch(nodes, self, ref); idx >= 0 {
			add(tree.Dependency{
				TargetTitle: nodes[idx].Title,
				Type:        tree.DepUsesOutput,
				Evidence:    m[0],
				Confidence:  confUsesFrom,
				MatchedVia:  "uses_from_title",
			})
		}
	}
}

// inferTypeHeuristics links nodes by role when the text rules found nothing:
// a dependency-less analysis node attaches to the batch's only data-creation
// node, and a results node mentioning analysis vocabulary attaches to an
// analysis node, boosted when their titles share two or more content words.
func inferTypeHeuristics(nodes []tree.Node) {
	dataIdx := -1
	dataCount := 0
	for i := range nodes {
		if nodes[i].Type == tree.NodeDataCreation {
			dataIdx = i
			dataCount++
		}
	}

	for i := range nodes {
		switch nodes[i].Type {
		case tree.NodeAnalysis:
			if len(nodes[i].Dependencies) > 0 || dataCount != 1 || dataIdx == i {
				continue
			}
			appendIfNew(&nodes[i], tree.Dependency{
				TargetTitle: nodes[dataIdx].Title,
				Type:        tree.DepUsesOutput,
				Evidence:    "sole data-creation step in batch",
				Confidence:  confTypeHeuristic,
				MatchedVia:  "type_analysis_data",
			})
		case tree.NodeResults:
			if !mentionsAnalysis(nodes[i].Content.Text) {
				continue
			}
			best, overlap := bestAnalysisTarget(nodes, i)
			if best < 0 {
				continue
			}
			conf := confTypeHeuristic
			via := "type_results_analysis"
			if overlap >= 2 {
				conf = confTypeBoosted
				via = "type_results_title_overlap"
			}
			appendIfNew(&nodes[i], tree.Dependency{
				TargetTitle: nodes[best].Title,
				Type:        tree.DepUsesOutput,
				Evidence:    "results discuss analysis output",
				Confidence:  conf,
				MatchedVia:  via,
			})
		}
	}
}

func appendIfNew(n *tree.Node, dep tree.Dependency) {
	if tree.CanonicalTitle(dep.TargetTitle) == tree.CanonicalTitle(n.Title) {
		return
	}
	key := depKey(dep.TargetTitle, dep.Type)
	for _, d := range n.Dependencies {
		if depKey(d.TargetTitle, d.Type) == key {
			return
		}
	}
	n.Dependencies = append(n.Dependencies, dep)
}

func mentionsAnalysis(text string) bool {
	low := strings.ToLower(text)
	for _, term := range analysisTerms {
		if strings.Contains(low, term) {
			return true
		}
	}
	return false
}

func bestAnalysisTarget(nodes []tree.Node, self int) (int, int) {
	best, bestOverlap := -1, -1
	selfWords := contentWords(nodes[self].Title)
	for i := range nodes {
		if i == self || nodes[i].Type != tree.NodeAnalysis {
			continue
		}
		overlap := 0
		for w := range contentWords(nodes[i].Title) {
			if selfWords[w] {
				overlap++
			}
		}
		if overlap > bestOverlap {
			best, bestOverlap = i, overlap
		}
	}
	return best, bestOverlap
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true, "or": true,
	"in": true, "on": true, "for": true, "to": true, "with": true, "by": true,
	"from": true, "using": true, "via": true,
}

func contentWords(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:()[]")
		if len(w) < 3 || stopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

// fuzzyTitleMatch finds the node whose title best matches the phrase:
// normalized containment in either direction, then highest content-word
// overlap (at least one word).
func fuzzyTitleMatch(nodes []tree.Node, self int, phrase string) int {
	p := tree.CanonicalTitle(phrase)
	if p == "" {
		return -1
	}
	for i := range nodes {
		if i == self {
			continue
		}
		title := tree.CanonicalTitle(nodes[i].Title)
		if title == "" {
			continue
		}
		if strings.Contains(title, p) || strings.Contains(p, title) {
			return i
		}
	}
	phraseWords := contentWords(phrase)
	best, bestOverlap := -1, 0
	for i := range nodes {
		if i == self {
			continue
		}
		overlap := 0
		for w := range contentWords(nodes[i].Title) {
			if phraseWords[w] {
				overlap++
			}
		}
		if overlap > bestOverlap {
			best, bestOverlap = i, overlap
		}
	}
	return best
}
