package extract

import (
	"fmt"
	"strings"

	"treeflow/internal/docparse"
	"treeflow/internal/tree"
)

const systemExtraction = `You are an expert at reading research documents and breaking the described work into discrete experimental steps. Always answer with a single JSON object and nothing else.`

const nodeSchemaHint = `Each node object has: "title" (short imperative string), "content" {"text": string, "steps": [string]}, "node_type" (one of "protocol", "data_creation", "analysis", "results"), "dependencies" [{"target_title", "dependency_type" (one of "requires", "uses_output", "follows", "validates"), "evidence_text", "confidence" (0-1)}], "parameters" (string map), "confidence" (0-1).`

const strictFormatHint = `IMPORTANT: the previous response did not conform to the schema. Respond with raw JSON only: no markdown fences, no commentary, every field exactly as named above, enum values exactly as listed.`

func discoveryPrompt(docs []docparse.ParsedDocument) string {
	var b strings.Builder
	b.WriteString("Survey the following documents and plan an extraction. Identify 3-6 workflow phases (e.g. sample preparation, data collection, analysis, results). ")
	b.WriteString("Inventory EVERY explicitly mentioned statistical test, model, dataset, figure, table, and software tool, assigning each to a phase. ")
	b.WriteString("Do NOT extract step content yet.\n\n")
	b.WriteString(`Respond with JSON: {"phases": [{"name", "type" (one of "protocol", "data_creation", "analysis", "results"), "source_documents": [string], "page_ranges": [{"document", "start", "end"}], "estimated_node_count", "key_topics": [string]}], "content_inventory": [{"name", "item_type", "phase"}], "cross_references": [string], "estimated_total_nodes"}`)
	b.WriteString("\n\n")
	writeDocuments(&b, docs)
	return b.String()
}

func phasePrompt(phase tree.Phase, docs []docparse.ParsedDocument, checklist []tree.ContentItem, strict bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract every experimental step belonging to the phase %q from the material below. ", phase.Name)
	if len(phase.KeyTopics) > 0 {
		fmt.Fprintf(&b, "Focus on: %s. ", strings.Join(phase.KeyTopics, ", "))
	}
	b.WriteString("Attribute each node to its source file and page range in provenance.\n")
	if len(checklist) > 0 {
		b.WriteString("\nMandatory checklist - every item below MUST be covered by at least one node:\n")
		for _, item := range checklist {
			fmt.Fprintf(&b, "- %s (%s)\n", item.Name, item.ItemType)
		}
	}
	b.WriteString("\nRespond with JSON: {\"nodes\": [...]}. ")
	b.WriteString(nodeSchemaHint)
	if strict {
		b.WriteString("\n")
		b.WriteString(strictFormatHint)
	}
	b.WriteString("\n\n")
	writeDocuments(&b, scopeToPhase(docs, phase))
	return b.String()
}

func verificationPrompt(inventory []tree.ContentItem, nodes []tree.Node) string {
	var b strings.Builder
	b.WriteString("Audit an extracted workflow against the discovery inventory. Report inventory items not covered by any node, nodes assigned to the wrong phase, likely duplicate node pairs, and improvement suggestions, plus an overall 0-10 quality score.\n\n")
	b.WriteString("Inventory:\n")
	for _, item := range inventory {
		fmt.Fprintf(&b, "- %s (%s, phase %s)\n", item.Name, item.ItemType, item.Phase)
	}
	b.WriteString("\nExtracted nodes:\n")
	for _, n := range nodes {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", n.Type, n.Title, clipRunes(n.Content.Text, 160))
	}
	b.WriteString("\nRespond with JSON: {\"is_complete\": bool, \"missing_content\": [{\"name\", \"item_type\", \"suggested_phase\"}], \"misplaced_nodes\": [{\"title\", \"from_phase\", \"to_phase\"}], \"duplicate_nodes\": [{\"title_a\", \"title_b\", \"similarity\" (0-1), \"merge_recommended\"}], \"suggestions\": [string], \"quality_score\" (0-10)}")
	return b.String()
}

func workflowPrompt(doc docparse.ParsedDocument, hint string) string {
	var b strings.Builder
	b.WriteString("Extract the complete experimental workflow from the document below as a tree of blocks and nodes. ")
	b.WriteString(`Group nodes into blocks by type: "Protocol Block", "Data Creation Block", "Analysis Block", "Results Block".`)
	if hint != "" {
		fmt.Fprintf(&b, "\nContext from the requester: %s", hint)
	}
	b.WriteString("\n\nRespond with JSON: {\"name\", \"description\", \"blocks\": [{\"name\", \"block_type\", \"position\", \"nodes\": [...]}]}. ")
	b.WriteString(nodeSchemaHint)
	b.WriteString("\n\n")
	writeDocuments(&b, []docparse.ParsedDocument{doc})
	return b.String()
}

func overviewPrompt(doc docparse.ParsedDocument, maxNodes int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract a high-level overview workflow of at most %d nodes from the top-level sections below. Capture the major stages only; details come from a later per-section pass.\n\n", maxNodes)
	b.WriteString("Respond with JSON: {\"name\", \"description\", \"blocks\": [{\"name\", \"block_type\", \"position\", \"nodes\": [...]}]}. ")
	b.WriteString(nodeSchemaHint)
	b.WriteString("\n\n")
	top := doc
	top.Sections = docparse.TopLevelSections(doc)
	writeDocuments(&b, []docparse.ParsedDocument{top})
	return b.String()
}

func sectionPrompt(docName string, sec docparse.Section) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract every experimental step from section %q of document %q.\n\n", sec.Title, docName)
	b.WriteString("Respond with JSON: {\"nodes\": [...]}. ")
	b.WriteString(nodeSchemaHint)
	fmt.Fprintf(&b, "\n\n## %s\n%s\n", sec.Title, sec.Content)
	return b.String()
}

func dedupJudgePrompt(a, b tree.Node) string {
	return fmt.Sprintf(`Do these two extracted steps describe the same work?

Step A: %s
%s

Step B: %s
%s

Respond with JSON: {"is_duplicate": bool, "similarity" (0-100), "reasoning": string}`,
		a.Title, clipRunes(a.Content.Text, 400), b.Title, clipRunes(b.Content.Text, 400))
}

func synthesizePrompt(texts []string, hint string) string {
	var b strings.Builder
	b.WriteString("Synthesize ONE experimental step from the related text fragments below. Combine overlapping details; do not invent anything absent from the fragments.\n")
	if hint != "" {
		fmt.Fprintf(&b, "Context from the requester: %s\n", hint)
	}
	b.WriteString("\nRespond with JSON: a single node object. ")
	b.WriteString(nodeSchemaHint)
	b.WriteString("\n\nFragments:\n")
	for i, t := range texts {
		fmt.Fprintf(&b, "--- fragment %d ---\n%s\n", i+1, t)
	}
	return b.String()
}

func writeDocuments(b *strings.Builder, docs []docparse.ParsedDocument) {
	for _, d := range docs {
		fmt.Fprintf(b, "# Document: %s\n", d.Name)
		for _, s := range d.Sections {
			fmt.Fprintf(b, "\n## %s\n%s\n", s.Title, s.Content)
		}
	}
}

// scopeToPhase narrows documents to the phase's declared page ranges, falling
// back to the whole document set when the discovery pass supplied none.
func scopeToPhase(docs []docparse.ParsedDocument, phase tree.Phase) []docparse.ParsedDocument {
	if len(phase.PageRanges) == 0 {
		return docs
	}
	ranges := map[string][]tree.PageRange{}
	for _, r := range phase.PageRanges {
		ranges[r.Document] = append(ranges[r.Document], r)
	}
	out := make([]docparse.ParsedDocument, 0, len(docs))
	for _, d := range docs {
		rs, ok := ranges[d.Name]
		if !ok {
			continue
		}
		scoped := d
		scoped.Sections = nil
		for _, s := range d.Sections {
			if s.Page == 0 || pageInRanges(s.Page, rs) {
				scoped.Sections = append(scoped.Sections, s)
			}
		}
		if len(scoped.Sections) > 0 {
			out = append(out, scoped)
		}
	}
	if len(out) == 0 {
		return docs
	}
	return out
}

func pageInRanges(page int, rs []tree.PageRange) bool {
	for _, r := range rs {
		if page >= r.Start && page <= r.End {
			return true
		}
	}
	return false
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
