package dedup

import (
	"errors"
	"strings"

	"treeflow/internal/tree"
)

var errNoJudge = errors.New("no duplicate judge configured")

// Merge combines two duplicate nodes. The higher-confidence node is the
// primary and keeps its title, content, and type; the secondary contributes
// provenance, tags, links, and attachments. Merged confidence is the max.
func Merge(a, b tree.Node) tree.Node {
	primary, secondary := a, b
	if b.Confidence > a.Confidence {
		primary, secondary = b, a
	}

	out := primary
	out.Provenance = mergeProvenance(primary.Provenance, secondary.Provenance)
	out.Tags = uniqueStrings(append(append([]string(nil), primary.Tags...), secondary.Tags...))
	out.Links = mergeLinks(primary.Links, secondary.Links)
	out.Attachments = mergeAttachments(primary.Attachments, secondary.Attachments)
	if secondary.Confidence > out.Confidence {
		out.Confidence = secondary.Confidence
	}
	return out
}

func mergeProvenance(a, b tree.Provenance) tree.Provenance {
	out := a
	out.ChunkIDs = uniqueStrings(append(append([]string(nil), a.ChunkIDs...), b.ChunkIDs...))
	out.Sources = uniqueStrings(append(append([]string(nil), a.Sources...), b.Sources...))
	if out.SourceFile == "" {
		out.SourceFile = b.SourceFile
	}
	if b.PageStart > 0 && (out.PageStart == 0 || b.PageStart < out.PageStart) {
		out.PageStart = b.PageStart
	}
	if b.PageEnd > out.PageEnd {
		out.PageEnd = b.PageEnd
	}
	return out
}

func mergeLinks(a, b []tree.Link) []tree.Link {
	seen := make(map[string]bool, len(a))
	out := append([]tree.Link(nil), a...)
	for _, l := range a {
		seen[strings.ToLower(l.URL)] = true
	}
	for _, l := range b {
		key := strings.ToLower(l.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}

func mergeAttachments(a, b []tree.Attachment) []tree.Attachment {
	seen := make(map[string]bool, len(a))
	out := append([]tree.Attachment(nil), a...)
	for _, att := range a {
		seen[strings.ToLower(att.Name)] = true
	}
	for _, att := range b {
		key := strings.ToLower(att.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, att)
	}
	return out
}

func uniqueStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
