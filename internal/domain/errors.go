package domain

import "errors"

var (
	// Admission errors. No side effects; the caller may retry later.
	ErrDuplicateJob = errors.New("duplicate job")
	ErrQueueFull    = errors.New("queue full")

	// Reservation errors. Final until external state changes.
	ErrWorkNotFound      = errors.New("work record not found")
	ErrAccountNotFound   = errors.New("quota account not found")
	ErrWorkInFlight      = errors.New("work already in flight")
	ErrInsufficientQuota = errors.New("insufficient quota")

	// ErrEnhancementFailed marks a terminal provider failure after which the
	// reservation has been refunded.
	ErrEnhancementFailed = errors.New("enhancement failed")
)

// IsReservationRejection reports whether err is one of the domain-final
// reservation outcomes. Everything else coming out of a ledger is a transport
// error and safe to retry, since the reservation transaction has no visible
// effect until commit.
func IsReservationRejection(err error) bool {
	return errors.Is(err, ErrWorkNotFound) ||
		errors.Is(err, ErrWorkInFlight) ||
		errors.Is(err, ErrInsufficientQuota)
}
