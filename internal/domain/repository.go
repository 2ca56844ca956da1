package domain

import "context"

// Ledger guards the quota reservation around one unit of paid work.
//
// CheckAndReserve must run as a single atomic transaction: re-read the work
// record (pending guard), re-read the account, then move the record to
// processing and increment used with a server-side atomic add. Rejections are
// the sentinel errors in errors.go; any other error is a transport failure
// and the whole transaction is retriable.
type Ledger interface {
	CheckAndReserve(ctx context.Context, accountKey, workKey string, units int) error
	CommitSuccess(ctx context.Context, workKey string, resultJSON []byte) error
	RefundOnFailure(ctx context.Context, workKey, errorInfo string) error
}

// WorkRepository defines persistence for work records outside the
// reservation path.
type WorkRepository interface {
	Create(ctx context.Context, rec *WorkRecord) error
	GetByID(ctx context.Context, id string) (*WorkRecord, error)
}

// QuotaAccountRepository provisions and inspects quota accounts.
type QuotaAccountRepository interface {
	Upsert(ctx context.Context, accountID string, allocated int) (*QuotaAccount, error)
	GetByID(ctx context.Context, accountID string) (*QuotaAccount, error)
}
