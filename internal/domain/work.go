package domain

import "time"

// WorkStatus enumerates the lifecycle of a paid unit of work.
type WorkStatus string

const (
	WorkPending    WorkStatus = "pending"
	WorkProcessing WorkStatus = "processing"
	WorkCompleted  WorkStatus = "completed"
	WorkFailed     WorkStatus = "failed"
)

// WorkRecord is the durable record of one paid enhancement. The only legal
// transition out of pending is made by the quota ledger, which moves the
// record to processing inside the reservation transaction.
type WorkRecord struct {
	ID             string
	OwnerID        string // quota account that pays for this work; empty for anonymous
	SourceURL      string
	Status         WorkStatus
	TokensReserved int
	ResultJSON     []byte
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
