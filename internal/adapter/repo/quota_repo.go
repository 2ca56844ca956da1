package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"listinglens/internal/domain"
)

// QuotaRepositoryPG provisions and inspects quota accounts. The used counter
// is never mutated here; reserve and refund go through the ledger.
type QuotaRepositoryPG struct {
	pool *pgxpool.Pool
}

var _ domain.QuotaAccountRepository = (*QuotaRepositoryPG)(nil)

// NewQuotaRepository creates a quota-account repository backed by PostgreSQL.
func NewQuotaRepository(pool *pgxpool.Pool) *QuotaRepositoryPG {
	return &QuotaRepositoryPG{pool: pool}
}

// Upsert creates the account or updates its allocation, preserving usage.
func (r *QuotaRepositoryPG) Upsert(ctx context.Context, accountID string, allocated int) (*domain.QuotaAccount, error) {
	const query = `
INSERT INTO quota_accounts (account_id, allocated)
VALUES ($1, $2)
ON CONFLICT (account_id) DO UPDATE SET allocated = $2, updated_at = now()
RETURNING account_id, used, allocated, updated_at;
`
	row := r.pool.QueryRow(ctx, query, accountID, allocated)
	var acc domain.QuotaAccount
	if err := row.Scan(&acc.AccountID, &acc.Used, &acc.Allocated, &acc.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert quota account: %w", err)
	}
	return &acc, nil
}

// GetByID fetches an account by its identifier.
func (r *QuotaRepositoryPG) GetByID(ctx context.Context, accountID string) (*domain.QuotaAccount, error) {
	const query = `
SELECT account_id, used, allocated, updated_at
FROM quota_accounts
WHERE account_id = $1;
`
	row := r.pool.QueryRow(ctx, query, accountID)
	var acc domain.QuotaAccount
	if err := row.Scan(&acc.AccountID, &acc.Used, &acc.Allocated, &acc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &acc, nil
}
