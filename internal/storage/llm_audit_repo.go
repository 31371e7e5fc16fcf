package storage

import (
	"context"
	"fmt"
)

type LLMCallRecord struct {
	CallID       string
	Operation    string
	OwnerID      string
	JobID        string
	ProviderName string
	Model        string
	InputTokens  int
	OutputTokens int
	DurationMs   int64
	Status       string
	ErrorType    string
}

type LLMAuditRepo struct {
	db *DB
}

func NewLLMAuditRepo(db *DB) *LLMAuditRepo {
	return &LLMAuditRepo{db: db}
}

func (r *LLMAuditRepo) Insert(ctx context.Context, rec LLMCallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls(call_id, operation, owner_id, job_id, provider_name, model, input_tokens, output_tokens, duration_ms, status, error_type)
VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, NULLIF($3,'')::uuid, NULLIF($4,'')::uuid, $5, $6, $7, $8, $9, $10, NULLIF($11,''))`,
		rec.CallID, rec.Operation, rec.OwnerID, rec.JobID, rec.ProviderName, rec.Model, rec.InputTokens, rec.OutputTokens, rec.DurationMs, rec.Status, rec.ErrorType)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}
