package extract

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"treeflow/internal/dedup"
	"treeflow/internal/docparse"
	"treeflow/internal/tree"
)

const (
	overviewNodeBudget = 10
	// titleSimilarityCutoff merges nodes whose titles differ only by small
	// edits after the exact-match pass.
	titleSimilarityCutoff = 80.0
)

// HierarchicalExtractor handles documents too large or too nested for a
// single extraction call: a small overview pass over top-level sections,
// then one independent extraction per section under bounded concurrency.
type HierarchicalExtractor struct {
	client        *Client
	logger        *zap.Logger
	maxConcurrent int
}

func NewHierarchicalExtractor(client *Client, maxConcurrent int, logger *zap.Logger) *HierarchicalExtractor {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentPhases
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HierarchicalExtractor{client: client, logger: logger, maxConcurrent: maxConcurrent}
}

// Extract runs both passes and merges the results. If more than half of the
// section extractions fail the whole operation aborts; a smaller failure
// subset is logged and skipped.
func (h *HierarchicalExtractor) Extract(ctx context.Context, doc docparse.ParsedDocument) (*tree.Tree, error) {
	overview, err := h.client.ExtractOverview(ctx, doc, overviewNodeBudget)
	if err != nil {
		return nil, fmt.Errorf("overview pass: %w", err)
	}

	sections := docparse.TopLevelSections(doc)
	sectionTrees, failed := h.extractSections(ctx, doc.Name, sections)
	if len(sections) > 0 && failed*2 > len(sections) {
		return nil, fmt.Errorf("hierarchical extraction aborted: %d of %d section extractions failed", failed, len(sections))
	}

	merged := mergeTrees(append([]tree.Tree{*overview}, sectionTrees...))
	return &merged, nil
}

func (h *HierarchicalExtractor) extractSections(ctx context.Context, docName string, sections []docparse.Section) ([]tree.Tree, int) {
	var mu sync.Mutex
	var trees []tree.Tree
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.maxConcurrent)
	for _, sec := range sections {
		sec := sec
		g.Go(func() error {
			nodes, err := h.client.ExtractSection(gctx, docName, sec)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				h.logger.Warn("section extraction failed, skipping section",
					zap.String("section", sec.Title),
					zap.Error(err))
				return nil
			}
			if len(nodes) > 0 {
				trees = append(trees, treeFromNodes(nodes))
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures are counted
	return trees, failed
}

// treeFromNodes groups a flat node list into typed blocks.
func treeFromNodes(nodes []tree.Node) tree.Tree {
	byType := map[tree.NodeType][]tree.Node{}
	for _, n := range nodes {
		byType[n.Type] = append(byType[n.Type], n)
	}
	var t tree.Tree
	for typ, ns := range byType {
		t.Blocks = append(t.Blocks, tree.Block{
			Name:  tree.BlockName(typ),
			Type:  typ,
			Nodes: ns,
		})
	}
	return t
}

// mergeTrees unions blocks by (type, name), dedupes nodes within each block,
// reorders blocks canonically, and reassigns sequential positions.
func mergeTrees(trees []tree.Tree) tree.Tree {
	type blockKey struct {
		Type tree.NodeType
		Name string
	}
	blocks := map[blockKey]*tree.Block{}
	var order []blockKey

	for _, t := range trees {
		for _, b := range t.Blocks {
			key := blockKey{Type: b.Type, Name: tree.CanonicalTitle(b.Name)}
			existing, ok := blocks[key]
			if !ok {
				copied := b
				copied.Nodes = append([]tree.Node(nil), b.Nodes...)
				blocks[key] = &copied
				order = append(order, key)
				continue
			}
			existing.Nodes = append(existing.Nodes, b.Nodes...)
		}
	}

	out := tree.Tree{Name: firstName(trees), Status: "draft"}
	for _, key := range order {
		b := blocks[key]
		b.Nodes = dedupeBlockNodes(b.Nodes)
		out.Blocks = append(out.Blocks, *b)
	}

	sort.SliceStable(out.Blocks, func(i, j int) bool {
		return tree.BlockPosition(out.Blocks[i].Type) < tree.BlockPosition(out.Blocks[j].Type)
	})
	for i := range out.Blocks {
		out.Blocks[i].Position = i + 1
	}
	return out
}

// dedupeBlockNodes removes repeats within one block: exact normalized-title
// matches first, then titles above the edit-distance cutoff. Duplicates are
// merged, keeping the higher-confidence copy.
func dedupeBlockNodes(nodes []tree.Node) []tree.Node {
	var out []tree.Node
	byTitle := map[string]int{}
	for _, n := range nodes {
		canon := tree.CanonicalTitle(n.Title)
		if idx, ok := byTitle[canon]; ok {
			out[idx] = dedup.Merge(out[idx], n)
			continue
		}
		matched := -1
		for i := range out {
			if dedup.EditSimilarity(out[i].Title, n.Title) >= titleSimilarityCutoff {
				matched = i
				break
			}
		}
		if matched >= 0 {
			out[matched] = dedup.Merge(out[matched], n)
			continue
		}
		byTitle[canon] = len(out)
		out = append(out, n)
	}
	return out
}

func firstName(trees []tree.Tree) string {
	for _, t := range trees {
		if t.Name != "" {
			return t.Name
		}
	}
	return "Extracted Workflow"
}
