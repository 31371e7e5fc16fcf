// Package score assigns heuristic confidence values to extracted nodes.
package score

const (
	base = 0.5

	perSourceWeight   = 0.05
	maxCountedSources = 3

	clusterSimWeight = 0.15

	exactParamBonus = 0.10
	stepsBonus      = 0.05
	paramsBonus     = 0.05

	perMissingPenalty = 0.05
	maxCountedMissing = 4

	verificationPenalty = 0.15
)

// Bucket boundaries for batch aggregation.
const (
	HighThreshold          = 0.8
	MediumThreshold        = 0.6
	DefaultReviewThreshold = 0.6
)

// Factors are the observable signals a node's confidence is derived from.
type Factors struct {
	SourceCount          int
	AvgClusterSimilarity float64
	ExactParameterMatch  bool
	HasStructuredSteps   bool
	HasParameters        bool
	MissingClaims        int
	NeedsVerification    bool
}

// Confidence maps factors onto [0,1]. The weights are tuned so a fully
// supported node reaches exactly 1.0 and an unsupported flagged node
// bottoms out well below the review threshold.
func Confidence(f Factors) float64 {
	v := base

	sources := f.SourceCount
	if sources > maxCountedSources {
		sources = maxCountedSources
	}
	if sources > 0 {
		v += float64(sources) * perSourceWeight
	}

	sim := f.AvgClusterSimilarity
	if sim < 0 {
		sim = 0
	} else if sim > 1 {
		sim = 1
	}
	v += sim * clusterSimWeight

	if f.ExactParameterMatch {
		v += exactParamBonus
	}
	if f.HasStructuredSteps {
		v += stepsBonus
	}
	if f.HasParameters {
		v += paramsBonus
	}

	missing := f.MissingClaims
	if missing > maxCountedMissing {
		missing = maxCountedMissing
	}
	if missing > 0 {
		v -= float64(missing) * perMissingPenalty
	}
	if f.NeedsVerification {
		v -= verificationPenalty
	}

	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Aggregate summarizes a batch of confidence values.
type Aggregate struct {
	High        int     `json:"high"`
	Medium      int     `json:"medium"`
	Low         int     `json:"low"`
	BelowReview int     `json:"below_review"`
	Mean        float64 `json:"mean"`
}

func AggregateScores(scores []float64, reviewThreshold float64) Aggregate {
	if reviewThreshold <= 0 {
		reviewThreshold = DefaultReviewThreshold
	}
	var agg Aggregate
	if len(scores) == 0 {
		return agg
	}
	var sum float64
	for _, s := range scores {
		sum += s
		switch {
		case s >= HighThreshold:
			agg.High++
		case s >= MediumThreshold:
			agg.Medium++
		default:
			agg.Low++
		}
		if s < reviewThreshold {
			agg.BelowReview++
		}
	}
	agg.Mean = sum / float64(len(scores))
	return agg
}
