package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"treeflow/internal/models"
)

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// vectorLiteral renders an embedding as a pgvector text literal, or nil when
// the chunk has no embedding yet.
func vectorLiteral(v []float32) *string {
	if len(v) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	s := b.String()
	return &s
}

func (r *ChunkRepo) UpsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		_, err = tx.Exec(ctx, `
INSERT INTO chunks (chunk_id, source_id, owner_id, chunk_index, text, source_type, source_ref, token_estimate, metadata, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CASE WHEN $10::text IS NULL THEN NULL ELSE $10::vector END)
ON CONFLICT (chunk_id)
DO UPDATE SET
  embedding = COALESCE(EXCLUDED.embedding, chunks.embedding),
  metadata = EXCLUDED.metadata`,
			c.ChunkID, c.SourceID, c.OwnerID, c.ChunkIndex, c.Text, c.SourceType, c.SourceRef, c.TokenEstimate, meta, vectorLiteral(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

func (r *ChunkRepo) ListChunksBySource(ctx context.Context, sourceID string) ([]models.Chunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT chunk_id::text, source_id::text, owner_id::text, chunk_index, text, source_type, source_ref, token_estimate, embedding::text, created_at
FROM chunks
WHERE source_id=$1
ORDER BY chunk_index ASC`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list chunks by source: %w", err)
	}
	defer rows.Close()
	out := make([]models.Chunk, 0, 64)
	for rows.Next() {
		var c models.Chunk
		var embedding *string
		if err := rows.Scan(&c.ChunkID, &c.SourceID, &c.OwnerID, &c.ChunkIndex, &c.Text, &c.SourceType, &c.SourceRef, &c.TokenEstimate, &embedding, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if embedding != nil {
			c.Embedding = parseVectorLiteral(*embedding)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func (r *ChunkRepo) ListChunksByOwner(ctx context.Context, ownerID string) ([]models.Chunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT chunk_id::text, source_id::text, owner_id::text, chunk_index, text, source_type, source_ref, token_estimate, embedding::text, created_at
FROM chunks
WHERE owner_id=$1
ORDER BY source_id, chunk_index ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list chunks by owner: %w", err)
	}
	defer rows.Close()
	out := make([]models.Chunk, 0, 256)
	for rows.Next() {
		var c models.Chunk
		var embedding *string
		if err := rows.Scan(&c.ChunkID, &c.SourceID, &c.OwnerID, &c.ChunkIndex, &c.Text, &c.SourceType, &c.SourceRef, &c.TokenEstimate, &embedding, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan owner chunk: %w", err)
		}
		if embedding != nil {
			c.Embedding = parseVectorLiteral(*embedding)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owner chunks: %w", err)
	}
	return out, nil
}

func (r *ChunkRepo) CountChunksByOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE owner_id=$1`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count owner chunks: %w", err)
	}
	return n, nil
}

func (r *ChunkRepo) DeleteChunksBySource(ctx context.Context, sourceID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM chunks WHERE source_id=$1`, sourceID)
	if err != nil {
		return fmt.Errorf("delete chunks by source: %w", err)
	}
	return nil
}

func parseVectorLiteral(s string) []float32 {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil
		}
		out = append(out, float32(f))
	}
	return out
}
