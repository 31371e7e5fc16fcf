package storage

import (
	"context"
	"fmt"

	"treeflow/internal/models"
	"treeflow/internal/util"
)

type NodeRepo struct {
	db *DB
}

func NewNodeRepo(db *DB) *NodeRepo {
	return &NodeRepo{db: db}
}

func (r *NodeRepo) InsertProposals(ctx context.Context, proposals []models.ProposedNode) error {
	if len(proposals) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx insert proposals: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, p := range proposals {
		_, err := tx.Exec(ctx, `
INSERT INTO proposed_nodes (proposal_id, job_id, owner_id, title, node_type, status, confidence, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ProposalID, p.JobID, p.OwnerID, p.Title, p.NodeType, p.Status, p.Confidence, p.Payload,
		)
		if err != nil {
			return fmt.Errorf("insert proposal %s: %w", p.ProposalID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit proposals tx: %w", err)
	}
	return nil
}

func (r *NodeRepo) ListProposalsByJob(ctx context.Context, jobID string) ([]models.ProposedNode, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT proposal_id::text, job_id::text, owner_id::text, title, node_type, status, confidence, payload, created_at
FROM proposed_nodes
WHERE job_id=$1
ORDER BY confidence DESC, created_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()
	out := make([]models.ProposedNode, 0)
	for rows.Next() {
		var p models.ProposedNode
		if err := rows.Scan(&p.ProposalID, &p.JobID, &p.OwnerID, &p.Title, &p.NodeType, &p.Status, &p.Confidence, &p.Payload, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *NodeRepo) UpdateProposalStatus(ctx context.Context, proposalID, status string) error {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE proposed_nodes SET status=$2 WHERE proposal_id=$1`, proposalID, status)
	if err != nil {
		return fmt.Errorf("update proposal status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update proposal status %s: %w", proposalID, util.ErrNotFound)
	}
	return nil
}
