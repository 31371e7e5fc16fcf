package tree

import (
	"regexp"
	"strings"
)

var ws = regexp.MustCompile(`\s+`)

// CanonicalTitle lowercases and collapses separators so titles compare
// reliably as dependency targets and dedup keys.
func CanonicalTitle(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	s = ws.ReplaceAllString(s, " ")
	return s
}

func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func isNodeType(t NodeType) bool {
	switch t {
	case NodeProtocol, NodeDataCreation, NodeAnalysis, NodeResults:
		return true
	default:
		return false
	}
}

func isDependencyType(t DependencyType) bool {
	switch t {
	case DepRequires, DepUsesOutput, DepFollows, DepValidates:
		return true
	default:
		return false
	}
}

// NormalizeNode trims fields, coerces unknown enum values to defaults, clamps
// confidences, drops self-dependencies and dedupes dependencies by target
// title plus type.
func NormalizeNode(n Node) Node {
	n.Title = strings.TrimSpace(n.Title)
	n.Content.Text = strings.TrimSpace(n.Content.Text)
	n.Type = NodeType(strings.ToLower(strings.TrimSpace(string(n.Type))))
	if !isNodeType(n.Type) {
		n.Type = NodeProtocol
	}
	n.Confidence = ClampUnit(n.Confidence)

	self := CanonicalTitle(n.Title)
	seen := map[string]struct{}{}
	deps := make([]Dependency, 0, len(n.Dependencies))
	for _, d := range n.Dependencies {
		d.TargetTitle = strings.TrimSpace(d.TargetTitle)
		d.Type = DependencyType(strings.ToLower(strings.TrimSpace(string(d.Type))))
		if d.TargetTitle == "" || !isDependencyType(d.Type) {
			continue
		}
		if CanonicalTitle(d.TargetTitle) == self {
			continue
		}
		key := CanonicalTitle(d.TargetTitle) + "|" + string(d.Type)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		d.Confidence = ClampUnit(d.Confidence)
		deps = append(deps, d)
	}
	n.Dependencies = deps
	return n
}

// blockOrder is the canonical block ordering for assembled trees.
var blockOrder = map[NodeType]int{
	NodeProtocol:     1,
	NodeDataCreation: 2,
	NodeAnalysis:     3,
	NodeResults:      4,
}

func BlockPosition(t NodeType) int {
	if p, ok := blockOrder[t]; ok {
		return p
	}
	return len(blockOrder) + 1
}

func BlockName(t NodeType) string {
	switch t {
	case NodeProtocol:
		return "Protocol Block"
	case NodeDataCreation:
		return "Data Creation Block"
	case NodeAnalysis:
		return "Analysis Block"
	case NodeResults:
		return "Results Block"
	default:
		return "Custom Block"
	}
}

func BuildSummary(t Tree) Summary {
	s := Summary{
		NodesByType:  map[string]int{},
		NodesByBlock: map[string]int{},
	}
	s.TotalBlocks = len(t.Blocks)
	for _, b := range t.Blocks {
		for _, n := range b.Nodes {
			s.TotalNodes++
			s.TotalDependencies += len(n.Dependencies)
			s.TotalAttachments += len(n.Attachments)
			s.TotalLinks += len(n.Links)
			s.NodesByType[string(n.Type)]++
			s.NodesByBlock[b.Name]++
		}
	}
	return s
}

// Nodes flattens all block nodes in block order.
func (t Tree) Nodes() []Node {
	out := make([]Node, 0)
	for _, b := range t.Blocks {
		out = append(out, b.Nodes...)
	}
	return out
}
