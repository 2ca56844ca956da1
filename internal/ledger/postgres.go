// Package ledger makes "does this account have N tokens left, and if so
// consume them" race-free across concurrent callers, and makes the refund on
// failure exact.
//
// Every mutation of quota_accounts.used is a server-side atomic add inside
// the reservation transaction. No caller reads a counter, computes a new
// value in application memory, and writes it back.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"listinglens/internal/domain"
)

// PostgresLedger implements domain.Ledger on top of a pgx pool.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

var _ domain.Ledger = (*PostgresLedger)(nil)

// NewPostgres creates a ledger backed by PostgreSQL.
func NewPostgres(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS quota_accounts (
	account_id TEXT PRIMARY KEY,
	used INT NOT NULL DEFAULT 0 CHECK (used >= 0),
	allocated INT NOT NULL DEFAULT 0 CHECK (allocated >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS work_records (
	id UUID PRIMARY KEY,
	owner_id TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	tokens_reserved INT NOT NULL DEFAULT 0,
	result_json JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
	if _, err := l.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("ledger: ensure schema: %w", err)
	}
	return nil
}

// CheckAndReserve moves the work record from pending to processing and
// charges units against the account, all inside one transaction. The row
// lock on the work record plus the conditional atomic increment guarantee
// that two concurrent calls cannot both reserve, even across processes.
//
// An empty accountKey marks an anonymous submission: only the status guard
// applies and no quota is charged.
func (l *PostgresLedger) CheckAndReserve(ctx context.Context, accountKey, workKey string, units int) error {
	if units <= 0 {
		return fmt.Errorf("ledger: units must be positive, got %d", units)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ledger: begin reserve: %w", err)
	}
	defer tx.Rollback(ctx)

	var status domain.WorkStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM work_records WHERE id = $1 FOR UPDATE`,
		workKey,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("ledger: work %q: %w", workKey, domain.ErrWorkNotFound)
	}
	if err != nil {
		return fmt.Errorf("ledger: load work %q: %w", workKey, err)
	}
	if status != domain.WorkPending {
		return fmt.Errorf("ledger: work %q is %s: %w", workKey, status, domain.ErrWorkInFlight)
	}

	charged := 0
	if accountKey != "" {
		var used int
		err = tx.QueryRow(ctx,
			`UPDATE quota_accounts
			 SET used = used + $1, updated_at = now()
			 WHERE account_id = $2 AND used + $1 <= allocated
			 RETURNING used`,
			units, accountKey,
		).Scan(&used)
		if errors.Is(err, pgx.ErrNoRows) {
			// Either no allocation row was provisioned or the ceiling would
			// be exceeded; both read as "not enough quota" to the caller.
			return fmt.Errorf("ledger: account %q: %w", accountKey, domain.ErrInsufficientQuota)
		}
		if err != nil {
			return fmt.Errorf("ledger: charge account %q: %w", accountKey, err)
		}
		charged = units
	}

	// Record which account paid so the refund path credits the same one.
	if _, err := tx.Exec(ctx,
		`UPDATE work_records
		 SET status = $1, tokens_reserved = $2, updated_at = now(),
		     owner_id = CASE WHEN $3 = '' THEN owner_id ELSE $3 END
		 WHERE id = $4`,
		domain.WorkProcessing, charged, accountKey, workKey,
	); err != nil {
		return fmt.Errorf("ledger: mark work %q processing: %w", workKey, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger: commit reserve: %w", err)
	}
	return nil
}

// CommitSuccess finalizes a reservation. The tokens charged at reserve time
// are the final price, so the account is untouched.
func (l *PostgresLedger) CommitSuccess(ctx context.Context, workKey string, resultJSON []byte) error {
	tag, err := l.pool.Exec(ctx,
		`UPDATE work_records
		 SET status = $1, result_json = COALESCE($2, result_json), updated_at = now()
		 WHERE id = $3`,
		domain.WorkCompleted, nullableBytes(resultJSON), workKey,
	)
	if err != nil {
		return fmt.Errorf("ledger: commit work %q: %w", workKey, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger: commit work %q: %w", workKey, domain.ErrWorkNotFound)
	}
	return nil
}

// RefundOnFailure marks the work failed and gives back exactly the tokens
// the reservation took, read from the record itself rather than recomputed,
// so the refund stays exact even if pricing changed in the interim.
func (l *PostgresLedger) RefundOnFailure(ctx context.Context, workKey, errorInfo string) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ledger: begin refund: %w", err)
	}
	defer tx.Rollback(ctx)

	var owner string
	var reserved int
	err = tx.QueryRow(ctx,
		`UPDATE work_records
		 SET status = $1, error_message = $2, updated_at = now()
		 WHERE id = $3
		 RETURNING owner_id, tokens_reserved`,
		domain.WorkFailed, errorInfo, workKey,
	).Scan(&owner, &reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("ledger: refund work %q: %w", workKey, domain.ErrWorkNotFound)
	}
	if err != nil {
		return fmt.Errorf("ledger: refund work %q: %w", workKey, err)
	}

	if owner != "" && reserved > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE quota_accounts
			 SET used = used - $1, updated_at = now()
			 WHERE account_id = $2`,
			reserved, owner,
		); err != nil {
			return fmt.Errorf("ledger: refund account %q: %w", owner, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger: commit refund: %w", err)
	}
	return nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
