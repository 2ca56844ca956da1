package domain

import "time"

// QuotaAccount tracks token consumption for one billing tenant. Used is only
// ever adjusted through reserve and refund operations on the ledger; the
// period rollover that resets it belongs to the billing system.
type QuotaAccount struct {
	AccountID string
	Used      int
	Allocated int
	UpdatedAt time.Time
}

// Remaining reports how many tokens the account can still reserve.
func (a *QuotaAccount) Remaining() int {
	if a == nil {
		return 0
	}
	r := a.Allocated - a.Used
	if r < 0 {
		return 0
	}
	return r
}
