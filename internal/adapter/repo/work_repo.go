package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"listinglens/internal/domain"
)

// WorkRepositoryPG implements domain.WorkRepository. Status transitions out
// of pending are owned by the ledger; this repository only creates and reads.
type WorkRepositoryPG struct {
	pool *pgxpool.Pool
}

var _ domain.WorkRepository = (*WorkRepositoryPG)(nil)

// NewWorkRepository creates a work-record repository backed by PostgreSQL.
func NewWorkRepository(pool *pgxpool.Pool) *WorkRepositoryPG {
	return &WorkRepositoryPG{pool: pool}
}

// Create inserts a new record in pending state.
func (r *WorkRepositoryPG) Create(ctx context.Context, rec *domain.WorkRecord) error {
	const query = `
INSERT INTO work_records (id, owner_id, source_url, status)
VALUES ($1, $2, $3, $4);
`
	_, err := r.pool.Exec(ctx, query, rec.ID, rec.OwnerID, rec.SourceURL, domain.WorkPending)
	if err != nil {
		return fmt.Errorf("create work record: %w", err)
	}
	return nil
}

// GetByID fetches a work record by its identifier.
func (r *WorkRepositoryPG) GetByID(ctx context.Context, id string) (*domain.WorkRecord, error) {
	const query = `
SELECT id, owner_id, source_url, status, tokens_reserved, result_json, error_message, created_at, updated_at
FROM work_records
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, id)
	var rec domain.WorkRecord
	if err := row.Scan(
		&rec.ID,
		&rec.OwnerID,
		&rec.SourceURL,
		&rec.Status,
		&rec.TokensReserved,
		&rec.ResultJSON,
		&rec.ErrorMessage,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWorkNotFound
		}
		return nil, err
	}
	return &rec, nil
}
