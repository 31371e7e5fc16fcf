// Package analyze scores parsed documents to pick an extraction strategy and
// provider before any model call is made.
package analyze

import (
	"regexp"
	"strings"

	"treeflow/internal/docparse"
	"treeflow/internal/segment"
)

const (
	StrategySimple        = "simple"
	StrategyModerate      = "moderate"
	StrategyComplex       = "complex"
	StrategyComprehensive = "comprehensive"
)

type Config struct {
	// Fixed prompt overhead added to the serialized document estimate.
	OverheadTokens int
	// Prompt estimates above this prefer the larger-context provider.
	TokenThreshold   int
	PrimaryProvider  string
	FallbackProvider string
}

func (c Config) withDefaults() Config {
	if c.OverheadTokens <= 0 {
		c.OverheadTokens = 4000
	}
	if c.TokenThreshold <= 0 {
		c.TokenThreshold = 120000
	}
	if c.PrimaryProvider == "" {
		c.PrimaryProvider = "openai"
	}
	if c.FallbackProvider == "" {
		c.FallbackProvider = "groq"
	}
	return c
}

type Report struct {
	Score               float64 `json:"score"`
	EstimatedNodes      int     `json:"estimated_nodes"`
	Strategy            string  `json:"strategy"`
	Hierarchical        bool    `json:"hierarchical"`
	RecommendedProvider string  `json:"recommended_provider"`
	PromptTokenEstimate int     `json:"prompt_token_estimate"`
	DomainKeywordHits   int     `json:"domain_keyword_hits"`
	MethodKeywordHits   int     `json:"method_keyword_hits"`
	SubsectionCount     int     `json:"subsection_count"`
	NestingDepth        int     `json:"nesting_depth"`
}

var domainKeywords = []string{
	"experiment", "protocol", "sample", "assay", "reagent", "dataset",
	"hypothesis", "measurement", "calibration", "replicate", "control",
	"statistical", "significance", "baseline", "cohort",
}

var methodKeywordRe = regexp.MustCompile(`(?i)\b(incubat\w*|centrifug\w*|pipett\w*|dilut\w*|train\w*|evaluat\w*|comput\w*|normaliz\w*|fit(?:ted|ting)?|regress\w*|cluster\w*|anneal\w*|titrat\w*|sequenc\w*)\b`)

const (
	minEstimatedNodes = 5
	maxEstimatedNodes = 120
)

// Analyze scores document structure and picks a strategy. The node estimate
// is clamped to [5, 120].
func Analyze(doc docparse.ParsedDocument, cfg Config) Report {
	cfg = cfg.withDefaults()
	var r Report

	for _, s := range doc.Sections {
		low := strings.ToLower(s.Title + " " + s.Content)
		for _, kw := range domainKeywords {
			r.DomainKeywordHits += strings.Count(low, kw)
		}
		if s.Level > 1 {
			r.SubsectionCount++
		}
	}
	text := doc.Text()
	r.MethodKeywordHits = len(methodKeywordRe.FindAllString(text, -1))
	r.NestingDepth = docparse.MaxNestingDepth(doc)

	r.Score = float64(r.DomainKeywordHits)*0.5 +
		float64(doc.Figures+doc.Tables)*1.5 +
		float64(r.SubsectionCount)*1.0 +
		float64(r.MethodKeywordHits)*0.75 +
		float64(r.NestingDepth)*2.0

	r.EstimatedNodes = minEstimatedNodes + int(r.Score/2)
	if r.EstimatedNodes > maxEstimatedNodes {
		r.EstimatedNodes = maxEstimatedNodes
	}

	switch {
	case r.Score < 12:
		r.Strategy = StrategySimple
	case r.Score < 35:
		r.Strategy = StrategyModerate
	case r.Score < 80:
		r.Strategy = StrategyComplex
	default:
		r.Strategy = StrategyComprehensive
	}

	r.Hierarchical = r.Strategy == StrategyComprehensive ||
		(r.NestingDepth >= 3 && len(doc.Sections) >= 8)

	r.PromptTokenEstimate = segment.EstimateTokens(text) + cfg.OverheadTokens
	if r.PromptTokenEstimate > cfg.TokenThreshold {
		r.RecommendedProvider = cfg.FallbackProvider
	} else {
		r.RecommendedProvider = cfg.PrimaryProvider
	}
	return r
}

var (
	citationTitleRe = regexp.MustCompile(`(?i)^\s*(\[\d+\]|references?|bibliography|et al\.?,?\s*\d{4})`)
	equationRe      = regexp.MustCompile(`^[\s0-9+\-*/=().,^_{}\\]+$`)
	isbnRe          = regexp.MustCompile(`(?i)isbn[-\s]?(?:1[03])?[:\s]?[\d-]{9,}`)
	tableDataRe     = regexp.MustCompile(`^[\s\d.,%|\t-]+$`)
	citationMarkRe  = regexp.MustCompile(`\[\d+(?:,\s*\d+)*\]`)
)

const minSectionLength = 40

// FilterSections drops sections that would pollute hierarchical extraction:
// citation/equation/table-data/ISBN-like titles, citation-dominated bodies,
// and bodies below a minimum length.
func FilterSections(sections []docparse.Section) []docparse.Section {
	out := make([]docparse.Section, 0, len(sections))
	for _, s := range sections {
		if !validSection(s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func validSection(s docparse.Section) bool {
	title := strings.TrimSpace(s.Title)
	content := strings.TrimSpace(s.Content)
	if len(content) < minSectionLength {
		return false
	}
	if citationTitleRe.MatchString(title) || isbnRe.MatchString(title) {
		return false
	}
	if title != "" && (equationRe.MatchString(title) || tableDataRe.MatchString(title)) {
		return false
	}
	marks := citationMarkRe.FindAllString(content, -1)
	markLen := 0
	for _, m := range marks {
		markLen += len(m)
	}
	// A body that is mostly citation markers carries no extractable steps.
	if markLen*3 > len(content) {
		return false
	}
	return true
}
