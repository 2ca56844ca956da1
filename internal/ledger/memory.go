package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"listinglens/internal/domain"
)

// MemoryLedger is a mutex-guarded domain.Ledger for deployments that run
// anonymous-only and for tests. The single mutex gives the same atomicity
// the PostgreSQL ledger gets from its transaction.
type MemoryLedger struct {
	mu       sync.Mutex
	accounts map[string]*domain.QuotaAccount
	works    map[string]*domain.WorkRecord
}

var _ domain.Ledger = (*MemoryLedger)(nil)

// NewMemory creates an empty in-memory ledger.
func NewMemory() *MemoryLedger {
	return &MemoryLedger{
		accounts: make(map[string]*domain.QuotaAccount),
		works:    make(map[string]*domain.WorkRecord),
	}
}

// SetAccount provisions or overwrites an account's counters.
func (l *MemoryLedger) SetAccount(accountID string, used, allocated int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[accountID] = &domain.QuotaAccount{
		AccountID: accountID,
		Used:      used,
		Allocated: allocated,
		UpdatedAt: time.Now(),
	}
}

// PutWork stores a work record. Records default to pending.
func (l *MemoryLedger) PutWork(rec *domain.WorkRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *rec
	if cp.Status == "" {
		cp.Status = domain.WorkPending
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	l.works[cp.ID] = &cp
}

// Account returns a copy of the account, or nil when absent.
func (l *MemoryLedger) Account(accountID string) *domain.QuotaAccount {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[accountID]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

// Work returns a copy of the work record, or nil when absent.
func (l *MemoryLedger) Work(workKey string) *domain.WorkRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.works[workKey]
	if !ok {
		return nil
	}
	cp := *w
	return &cp
}

// CheckAndReserve applies the pending guard and the quota check under one
// lock, mirroring the PostgreSQL transaction.
func (l *MemoryLedger) CheckAndReserve(_ context.Context, accountKey, workKey string, units int) error {
	if units <= 0 {
		return fmt.Errorf("ledger: units must be positive, got %d", units)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.works[workKey]
	if !ok {
		return fmt.Errorf("ledger: work %q: %w", workKey, domain.ErrWorkNotFound)
	}
	if w.Status != domain.WorkPending {
		return fmt.Errorf("ledger: work %q is %s: %w", workKey, w.Status, domain.ErrWorkInFlight)
	}

	charged := 0
	if accountKey != "" {
		a, ok := l.accounts[accountKey]
		if !ok || a.Used+units > a.Allocated {
			return fmt.Errorf("ledger: account %q: %w", accountKey, domain.ErrInsufficientQuota)
		}
		a.Used += units
		a.UpdatedAt = time.Now()
		charged = units
	}

	w.Status = domain.WorkProcessing
	w.TokensReserved = charged
	if accountKey != "" {
		w.OwnerID = accountKey
	}
	w.UpdatedAt = time.Now()
	return nil
}

// CommitSuccess finalizes the reservation; the account is untouched.
func (l *MemoryLedger) CommitSuccess(_ context.Context, workKey string, resultJSON []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.works[workKey]
	if !ok {
		return fmt.Errorf("ledger: commit work %q: %w", workKey, domain.ErrWorkNotFound)
	}
	w.Status = domain.WorkCompleted
	if len(resultJSON) > 0 {
		w.ResultJSON = append([]byte(nil), resultJSON...)
	}
	w.UpdatedAt = time.Now()
	return nil
}

// RefundOnFailure gives back exactly what the reservation took.
func (l *MemoryLedger) RefundOnFailure(_ context.Context, workKey, errorInfo string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.works[workKey]
	if !ok {
		return fmt.Errorf("ledger: refund work %q: %w", workKey, domain.ErrWorkNotFound)
	}
	w.Status = domain.WorkFailed
	w.ErrorMessage = errorInfo
	w.UpdatedAt = time.Now()

	if w.OwnerID != "" && w.TokensReserved > 0 {
		if a, ok := l.accounts[w.OwnerID]; ok {
			a.Used -= w.TokensReserved
			a.UpdatedAt = time.Now()
		}
	}
	return nil
}
