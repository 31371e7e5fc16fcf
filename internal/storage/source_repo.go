package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"treeflow/internal/models"
	"treeflow/internal/util"
)

type SourceRepo struct {
	db *DB
}

func NewSourceRepo(db *DB) *SourceRepo {
	return &SourceRepo{db: db}
}

func (r *SourceRepo) UpsertSource(ctx context.Context, s models.Source) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO sources (source_id, owner_id, filename, source_type, blob_path, status, error_message)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''))
ON CONFLICT (source_id)
DO UPDATE SET
  filename = EXCLUDED.filename,
  source_type = EXCLUDED.source_type,
  blob_path = EXCLUDED.blob_path,
  status = EXCLUDED.status,
  error_message = EXCLUDED.error_message,
  updated_at = NOW()`,
		s.SourceID, s.OwnerID, s.Filename, s.SourceType, s.BlobPath, s.Status, s.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

// UpdateStatus moves a source along uploaded -> processing -> completed or
// failed. A failed status always needs a non-empty message.
func (r *SourceRepo) UpdateStatus(ctx context.Context, sourceID, status, errorMessage string) error {
	if status == models.SourceStatusFailed && errorMessage == "" {
		errorMessage = "unknown failure"
	}
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE sources SET status=$2, error_message=NULLIF($3,''), updated_at=NOW() WHERE source_id=$1`,
		sourceID, status, errorMessage)
	if err != nil {
		return fmt.Errorf("update source status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update source status %s: %w", sourceID, util.ErrNotFound)
	}
	return nil
}

func (r *SourceRepo) GetSource(ctx context.Context, sourceID string) (models.Source, error) {
	var s models.Source
	err := r.db.Pool.QueryRow(ctx, `
SELECT source_id::text, owner_id::text, filename, source_type, blob_path, status, COALESCE(error_message,''), created_at, updated_at
FROM sources
WHERE source_id=$1`, sourceID).
		Scan(&s.SourceID, &s.OwnerID, &s.Filename, &s.SourceType, &s.BlobPath, &s.Status, &s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Source{}, fmt.Errorf("get source %s: %w", sourceID, util.ErrNotFound)
	}
	if err != nil {
		return models.Source{}, fmt.Errorf("get source: %w", err)
	}
	return s, nil
}

func (r *SourceRepo) ListSourcesByOwner(ctx context.Context, ownerID string) ([]models.Source, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT source_id::text, owner_id::text, filename, source_type, blob_path, status, COALESCE(error_message,''), created_at, updated_at
FROM sources
WHERE owner_id=$1
ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()
	out := make([]models.Source, 0)
	for rows.Next() {
		var s models.Source
		if err := rows.Scan(&s.SourceID, &s.OwnerID, &s.Filename, &s.SourceType, &s.BlobPath, &s.Status, &s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSource removes the source; chunks cascade at the schema level.
func (r *SourceRepo) DeleteSource(ctx context.Context, sourceID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM sources WHERE source_id=$1`, sourceID)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return nil
}
