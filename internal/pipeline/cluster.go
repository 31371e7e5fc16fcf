package pipeline

import (
	"context"
	"fmt"

	"treeflow/internal/cluster"
	"treeflow/internal/models"
	"treeflow/internal/score"
	"treeflow/internal/tree"
)

// ClusterChunks groups an owner's embedded chunks by similarity. Chunks
// without embeddings are skipped; clusters are never persisted.
func (s *Service) ClusterChunks(ctx context.Context, ownerID string, opts cluster.Options) ([]cluster.Cluster, error) {
	chunks, err := s.chunks.ListChunksByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list chunks for %s: %w", ownerID, err)
	}
	items := make([]cluster.Item, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		items = append(items, cluster.Item{ChunkID: c.ChunkID, Vector: c.Embedding})
	}
	return cluster.Agglomerate(items, opts), nil
}

// SynthesizeNode asks the model to compose one node from a set of related
// chunks, then scores it from observable signals: chunk count, average
// pairwise similarity, structure.
func (s *Service) SynthesizeNode(ctx context.Context, chunks []models.Chunk, hint string) (*tree.Node, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("synthesize node: no chunks given")
	}
	texts := make([]string, 0, len(chunks))
	chunkIDs := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
		chunkIDs = append(chunkIDs, c.ChunkID)
	}

	node, err := s.client.SynthesizeNode(ctx, texts, hint)
	if err != nil {
		return nil, err
	}

	node.Provenance.ChunkIDs = chunkIDs
	node.Confidence = score.Confidence(score.Factors{
		SourceCount:          len(chunks),
		AvgClusterSimilarity: avgPairwiseSimilarity(chunks),
		HasStructuredSteps:   len(node.Content.Steps) > 0,
		HasParameters:        len(node.Parameters) > 0,
	})
	if node.Confidence < s.cfg.ReviewThreshold {
		node.NeedsVerification = true
	}
	return node, nil
}

func avgPairwiseSimilarity(chunks []models.Chunk) float64 {
	var sum float64
	var pairs int
	for i := 0; i < len(chunks); i++ {
		if len(chunks[i].Embedding) == 0 {
			continue
		}
		for j := i + 1; j < len(chunks); j++ {
			if len(chunks[j].Embedding) == 0 {
				continue
			}
			sum += cluster.Cosine(chunks[i].Embedding, chunks[j].Embedding)
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}
