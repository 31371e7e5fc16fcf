// Package dedup detects and merges duplicate extracted nodes using edit
// distance first and a model judge for the uncertain middle band.
package dedup

import (
	"context"

	"go.uber.org/zap"

	"treeflow/internal/tree"
)

// Verdict is the judge's answer for one escalated pair.
type Verdict struct {
	IsDuplicate bool    `json:"is_duplicate"`
	Similarity  float64 `json:"similarity"`
	Reasoning   string  `json:"reasoning,omitempty"`
}

// Judge resolves pairs the edit-distance stage could not decide.
type Judge interface {
	JudgeDuplicates(ctx context.Context, a, b tree.Node) (Verdict, error)
}

// Decision records the outcome for one compared pair.
type Decision struct {
	IndexA        int     `json:"index_a"`
	IndexB        int     `json:"index_b"`
	Score         float64 `json:"score"`
	Duplicate     bool    `json:"duplicate"`
	Escalated     bool    `json:"escalated"`
	JudgeFallback bool    `json:"judge_fallback,omitempty"`
	Reasoning     string  `json:"reasoning,omitempty"`
}

type Engine struct {
	judge  Judge
	logger *zap.Logger
}

func NewEngine(judge Judge, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{judge: judge, logger: logger}
}

// FindDuplicates compares every pair and returns a decision for each pair
// that scored at or above the escalation threshold. Pairs in the uncertain
// band go to the judge; if the judge fails, the stage-1 decision stands and
// the fallback is flagged on the decision.
func (e *Engine) FindDuplicates(ctx context.Context, nodes []tree.Node) ([]Decision, error) {
	var out []Decision
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s := PairScore(nodes[i], nodes[j])
			if s < EscalateThreshold {
				continue
			}
			d := Decision{IndexA: i, IndexB: j, Score: s}
			if s >= DuplicateThreshold {
				d.Duplicate = true
				out = append(out, d)
				continue
			}
			d.Escalated = true
			verdict, err := e.judgePair(ctx, nodes[i], nodes[j])
			if err != nil {
				e.logger.Warn("duplicate judge failed, using edit-distance decision",
					zap.String("title_a", nodes[i].Title),
					zap.String("title_b", nodes[j].Title),
					zap.Error(err))
				d.JudgeFallback = true
				d.Duplicate = s >= DuplicateThreshold
			} else {
				d.Duplicate = verdict.IsDuplicate || verdict.Similarity > 80
				d.Reasoning = verdict.Reasoning
			}
			out = append(out, d)
		}
	}
	return out, nil
}

func (e *Engine) judgePair(ctx context.Context, a, b tree.Node) (Verdict, error) {
	if e.judge == nil {
		return Verdict{}, errNoJudge
	}
	return e.judge.JudgeDuplicates(ctx, a, b)
}

// Dedupe collapses duplicate pairs into merged nodes. Order of survivors
// follows the input; each node participates in at most one merge chain.
func (e *Engine) Dedupe(ctx context.Context, nodes []tree.Node) ([]tree.Node, []Decision, error) {
	decisions, err := e.FindDuplicates(ctx, nodes)
	if err != nil {
		return nil, nil, err
	}
	merged := make([]tree.Node, len(nodes))
	copy(merged, nodes)
	absorbed := make(map[int]int) // index -> index it was merged into

	resolve := func(i int) int {
		for {
			next, ok := absorbed[i]
			if !ok {
				return i
			}
			i = next
		}
	}

	for _, d := range decisions {
		if !d.Duplicate {
			continue
		}
		a, b := resolve(d.IndexA), resolve(d.IndexB)
		if a == b {
			continue
		}
		primary, secondary := a, b
		if merged[secondary].Confidence > merged[primary].Confidence {
			primary, secondary = secondary, primary
		}
		merged[primary] = Merge(merged[primary], merged[secondary])
		absorbed[secondary] = primary
	}

	out := make([]tree.Node, 0, len(merged))
	for i, n := range merged {
		if _, gone := absorbed[i]; gone {
			continue
		}
		out = append(out, n)
	}
	return out, decisions, nil
}
