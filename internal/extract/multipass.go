package extract

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"treeflow/internal/docparse"
	"treeflow/internal/tree"
)

// Fixed nominal cost per pass type. These feed a rough progress indicator,
// not billing; real token usage goes to the audit log instead.
const (
	costDiscoveryPass    = 0.08
	costPhasePass        = 0.12
	costVerificationPass = 0.05
)

const defaultMaxConcurrentPhases = 3

// MultiPassResult bundles the assembled tree with the verification audit and
// run metadata.
type MultiPassResult struct {
	Tree         tree.Tree                `json:"tree"`
	Verification *tree.VerificationResult `json:"verification"`
	Discovery    *tree.DiscoveryResult    `json:"discovery"`
	CostEstimate float64                  `json:"cost_estimate"`
	PhaseCount   int                      `json:"phase_count"`
	NodeCount    int                      `json:"node_count"`
}

// Orchestrator runs the three-pass extraction: discovery, per-phase
// extraction, verification. Discovery and phase failures are fatal;
// verification degrades to a neutral result.
type Orchestrator struct {
	client        *Client
	logger        *zap.Logger
	maxConcurrent int
}

func NewOrchestrator(client *Client, maxConcurrent int, logger *zap.Logger) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentPhases
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{client: client, logger: logger, maxConcurrent: maxConcurrent}
}

func (o *Orchestrator) Run(ctx context.Context, docs []docparse.ParsedDocument) (*MultiPassResult, error) {
	discovery, err := o.client.DiscoverPhases(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("discovery pass: %w", err)
	}
	if len(discovery.Phases) == 0 {
		return nil, fmt.Errorf("discovery pass returned no phases")
	}
	o.logger.Info("discovery complete",
		zap.Int("phases", len(discovery.Phases)),
		zap.Int("inventory_items", len(discovery.Inventory)),
		zap.Int("estimated_nodes", discovery.EstimatedTotalNodes))

	phaseNodes, err := o.extractPhases(ctx, discovery, docs)
	if err != nil {
		return nil, err
	}

	var all []tree.Node
	for _, nodes := range phaseNodes {
		all = append(all, nodes...)
	}

	verification := o.verify(ctx, discovery, all)

	result := &MultiPassResult{
		Tree:         assembleTree(discovery, phaseNodes),
		Verification: verification,
		Discovery:    discovery,
		CostEstimate: costDiscoveryPass + float64(len(discovery.Phases))*costPhasePass + costVerificationPass,
		PhaseCount:   len(discovery.Phases),
		NodeCount:    len(all),
	}
	return result, nil
}

// extractPhases runs phase extraction under bounded concurrency. A phase
// whose output fails schema validation is retried once with the explicit
// formatting instruction; a second failure aborts the whole run.
func (o *Orchestrator) extractPhases(ctx context.Context, discovery *tree.DiscoveryResult, docs []docparse.ParsedDocument) ([][]tree.Node, error) {
	out := make([][]tree.Node, len(discovery.Phases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrent)

	for i, phase := range discovery.Phases {
		i, phase := i, phase
		g.Go(func() error {
			checklist := checklistFor(discovery.Inventory, phase.Name)
			nodes, err := o.client.ExtractPhase(gctx, PhaseRequest{Phase: phase, Docs: docs, Checklist: checklist})
			if err != nil && IsValidationError(err) {
				o.logger.Warn("phase output failed validation, retrying with strict formatting",
					zap.String("phase", phase.Name),
					zap.Error(err))
				nodes, err = o.client.ExtractPhase(gctx, PhaseRequest{Phase: phase, Docs: docs, Checklist: checklist, StrictFormat: true})
			}
			if err != nil {
				return fmt.Errorf("extract phase %q: %w", phase.Name, err)
			}
			for j := range nodes {
				if nodes[j].Metadata == nil {
					nodes[j].Metadata = map[string]string{}
				}
				nodes[j].Metadata["phase"] = phase.Name
			}
			out[i] = nodes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// verify runs the verification pass and merges in a deterministic inventory
// coverage check. Verification failures never fail the run; they produce the
// neutral fallback result.
func (o *Orchestrator) verify(ctx context.Context, discovery *tree.DiscoveryResult, nodes []tree.Node) *tree.VerificationResult {
	res, err := o.client.VerifyTree(ctx, discovery.Inventory, nodes)
	if err != nil {
		o.logger.Warn("verification pass failed, substituting neutral result", zap.Error(err))
		res = &tree.VerificationResult{
			IsComplete:   false,
			QualityScore: 5,
			Suggestions:  []string{"verification pass failed; completeness of this extraction was not audited"},
		}
	}
	mergeUncovered(res, uncoveredInventory(discovery.Inventory, nodes))
	return res
}

// uncoveredInventory lists inventory items no node mentions by name.
func uncoveredInventory(inventory []tree.ContentItem, nodes []tree.Node) []tree.MissingContent {
	var missing []tree.MissingContent
	for _, item := range inventory {
		name := strings.ToLower(strings.TrimSpace(item.Name))
		if name == "" {
			continue
		}
		covered := false
		for _, n := range nodes {
			if strings.Contains(strings.ToLower(n.Title), name) || strings.Contains(strings.ToLower(n.Content.Text), name) {
				covered = true
				break
			}
		}
		if !covered {
			missing = append(missing, tree.MissingContent{Name: item.Name, ItemType: item.ItemType, SuggestedPhase: item.Phase})
		}
	}
	return missing
}

func mergeUncovered(res *tree.VerificationResult, missing []tree.MissingContent) {
	if len(missing) == 0 {
		return
	}
	seen := make(map[string]bool, len(res.MissingContent))
	for _, m := range res.MissingContent {
		seen[strings.ToLower(m.Name)] = true
	}
	for _, m := range missing {
		if seen[strings.ToLower(m.Name)] {
			continue
		}
		res.MissingContent = append(res.MissingContent, m)
		res.IsComplete = false
	}
}

// assembleTree concatenates phase blocks in discovery order. Verification
// stays on the result as metadata and is never merged into blocks.
func assembleTree(discovery *tree.DiscoveryResult, phaseNodes [][]tree.Node) tree.Tree {
	t := tree.Tree{Name: "Extracted Workflow", Status: "draft"}
	for i, phase := range discovery.Phases {
		if len(phaseNodes[i]) == 0 {
			continue
		}
		bt := tree.NodeType(strings.ToLower(strings.TrimSpace(phase.Type)))
		switch bt {
		case tree.NodeProtocol, tree.NodeDataCreation, tree.NodeAnalysis, tree.NodeResults:
		default:
			bt = tree.NodeProtocol
		}
		t.Blocks = append(t.Blocks, tree.Block{
			Name:     phase.Name,
			Type:     bt,
			Position: len(t.Blocks) + 1,
			Nodes:    phaseNodes[i],
		})
	}
	return t
}

func checklistFor(inventory []tree.ContentItem, phase string) []tree.ContentItem {
	var out []tree.ContentItem
	for _, item := range inventory {
		if strings.EqualFold(item.Phase, phase) {
			out = append(out, item)
		}
	}
	return out
}
