package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"treeflow/internal/models"
	"treeflow/internal/util"
)

type JobRepo struct {
	db *DB
}

func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

func (r *JobRepo) InsertJob(ctx context.Context, j models.ExtractionJob) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO extraction_jobs (job_id, owner_id, tree_name, provider, status, error_message, cost_estimate)
VALUES ($1, $2, $3, NULLIF($4,''), $5, NULLIF($6,''), $7)`,
		j.JobID, j.OwnerID, j.TreeName, j.Provider, j.Status, j.ErrorMessage, j.CostEstimate,
	)
	if err != nil {
		return fmt.Errorf("insert extraction job: %w", err)
	}
	return nil
}

func (r *JobRepo) UpdateJobStatus(ctx context.Context, jobID, status, errorMessage string) error {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE extraction_jobs SET status=$2, error_message=NULLIF($3,''), updated_at=NOW() WHERE job_id=$1`,
		jobID, status, errorMessage)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job status %s: %w", jobID, util.ErrNotFound)
	}
	return nil
}

func (r *JobRepo) SetJobCost(ctx context.Context, jobID string, cost float64) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE extraction_jobs SET cost_estimate=$2, updated_at=NOW() WHERE job_id=$1`, jobID, cost)
	if err != nil {
		return fmt.Errorf("set job cost: %w", err)
	}
	return nil
}

func (r *JobRepo) GetJob(ctx context.Context, jobID string) (models.ExtractionJob, error) {
	var j models.ExtractionJob
	err := r.db.Pool.QueryRow(ctx, `
SELECT job_id::text, owner_id::text, tree_name, COALESCE(provider,''), status, COALESCE(error_message,''), cost_estimate, created_at, updated_at
FROM extraction_jobs
WHERE job_id=$1`, jobID).
		Scan(&j.JobID, &j.OwnerID, &j.TreeName, &j.Provider, &j.Status, &j.ErrorMessage, &j.CostEstimate, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ExtractionJob{}, fmt.Errorf("get job %s: %w", jobID, util.ErrNotFound)
	}
	if err != nil {
		return models.ExtractionJob{}, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}
