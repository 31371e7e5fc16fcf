package extract

import (
	"errors"
	"fmt"
	"strings"

	"treeflow/internal/tree"
)

// Hard limits applied during repair.
const (
	maxTitleRunes    = 200
	maxTextRunes     = 8000
	maxEvidenceRunes = 300
	maxSteps         = 50
	maxDependencies  = 20
	maxNodesPerBatch = 150
)

type FieldError struct {
	Path    string `json:"path"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

// ValidationError enumerates every schema violation that survived repair.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s (got %v)", f.Path, f.Message, f.Value))
	}
	return "schema validation failed: " + strings.Join(parts, "; ")
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return err != nil && errors.As(err, &ve)
}

func validateNode(n tree.Node, path string) []FieldError {
	var errs []FieldError
	if strings.TrimSpace(n.Title) == "" {
		errs = append(errs, FieldError{Path: path + ".title", Value: n.Title, Message: "must be non-empty"})
	}
	if strings.TrimSpace(n.Content.Text) == "" {
		errs = append(errs, FieldError{Path: path + ".content.text", Value: n.Content.Text, Message: "must be non-empty"})
	}
	switch n.Type {
	case tree.NodeProtocol, tree.NodeDataCreation, tree.NodeAnalysis, tree.NodeResults:
	default:
		errs = append(errs, FieldError{Path: path + ".node_type", Value: string(n.Type), Message: "unknown node type"})
	}
	if n.Confidence < 0 || n.Confidence > 1 {
		errs = append(errs, FieldError{Path: path + ".confidence", Value: n.Confidence, Message: "outside [0,1]"})
	}
	self := tree.CanonicalTitle(n.Title)
	for i, d := range n.Dependencies {
		dpath := fmt.Sprintf("%s.dependencies[%d]", path, i)
		if strings.TrimSpace(d.TargetTitle) == "" {
			errs = append(errs, FieldError{Path: dpath + ".target_title", Value: d.TargetTitle, Message: "must be non-empty"})
		} else if tree.CanonicalTitle(d.TargetTitle) == self {
			errs = append(errs, FieldError{Path: dpath + ".target_title", Value: d.TargetTitle, Message: "node cannot depend on itself"})
		}
		switch d.Type {
		case tree.DepRequires, tree.DepUsesOutput, tree.DepFollows, tree.DepValidates:
		default:
			errs = append(errs, FieldError{Path: dpath + ".dependency_type", Value: string(d.Type), Message: "unknown dependency type"})
		}
		if d.Confidence < 0 || d.Confidence > 1 {
			errs = append(errs, FieldError{Path: dpath + ".confidence", Value: d.Confidence, Message: "outside [0,1]"})
		}
	}
	return errs
}

// repairNode applies the deterministic fixes: clip oversized strings, coerce
// unknown enums to defaults, clamp numeric ranges, cap array sizes, and drop
// structurally hopeless dependencies.
func repairNode(n tree.Node) tree.Node {
	n = tree.NormalizeNode(n)
	n.Title = clipRunes(n.Title, maxTitleRunes)
	n.Content.Text = clipRunes(n.Content.Text, maxTextRunes)
	if len(n.Content.Steps) > maxSteps {
		n.Content.Steps = n.Content.Steps[:maxSteps]
	}
	if len(n.Dependencies) > maxDependencies {
		n.Dependencies = n.Dependencies[:maxDependencies]
	}
	for i := range n.Dependencies {
		n.Dependencies[i].Evidence = clipRunes(n.Dependencies[i].Evidence, maxEvidenceRunes)
	}
	return n
}

// ValidateNodes checks a decoded node batch and, on failure, repairs and
// revalidates once. Nodes that remain invalid produce a ValidationError
// listing every offending field path.
func ValidateNodes(nodes []tree.Node) ([]tree.Node, error) {
	if len(nodes) > maxNodesPerBatch {
		nodes = nodes[:maxNodesPerBatch]
	}
	if errs := validateAll(nodes); len(errs) == 0 {
		return nodes, nil
	}
	repaired := make([]tree.Node, len(nodes))
	for i, n := range nodes {
		repaired[i] = repairNode(n)
	}
	if errs := validateAll(repaired); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return repaired, nil
}

func validateAll(nodes []tree.Node) []FieldError {
	var errs []FieldError
	for i, n := range nodes {
		errs = append(errs, validateNode(n, fmt.Sprintf("nodes[%d]", i))...)
	}
	return errs
}

// ValidateTree validates and repairs every node in a decoded workflow tree,
// and normalizes block metadata.
func ValidateTree(t tree.Tree) (tree.Tree, error) {
	var errs []FieldError
	for bi := range t.Blocks {
		b := &t.Blocks[bi]
		b.Type = tree.NodeType(strings.ToLower(strings.TrimSpace(string(b.Type))))
		switch b.Type {
		case tree.NodeProtocol, tree.NodeDataCreation, tree.NodeAnalysis, tree.NodeResults:
		default:
			b.Type = tree.NodeProtocol
		}
		if strings.TrimSpace(b.Name) == "" {
			b.Name = tree.BlockName(b.Type)
		}
		fixed, err := ValidateNodes(b.Nodes)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				for _, f := range ve.Fields {
					f.Path = fmt.Sprintf("blocks[%d].%s", bi, f.Path)
					errs = append(errs, f)
				}
				continue
			}
			return tree.Tree{}, err
		}
		b.Nodes = fixed
	}
	if len(errs) > 0 {
		return tree.Tree{}, &ValidationError{Fields: errs}
	}
	return t, nil
}
