package pipeline

import (
	"context"
	"fmt"

	"treeflow/internal/docparse"
)

// LoadDocuments resolves source ids to parsed documents ready for
// extraction. Every id must resolve; a missing or empty source fails the
// whole load so extraction never runs on a silently reduced corpus.
func (s *Service) LoadDocuments(ctx context.Context, ownerID string, sourceIDs []string) ([]docparse.ParsedDocument, error) {
	docs := make([]docparse.ParsedDocument, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		src, err := s.sources.GetSource(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load source %s: %w", id, err)
		}
		if src.OwnerID != ownerID {
			return nil, fmt.Errorf("source %s does not belong to owner %s", id, ownerID)
		}
		text, pages, err := s.LoadSourceText(ctx, id)
		if err != nil {
			return nil, err
		}
		doc := docparse.Parse(src.Filename, text)
		if pages > 0 {
			doc.PageCount = pages
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
