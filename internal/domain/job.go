package domain

import "time"

// Tier enumerates subscription tiers. Higher tiers dispatch ahead of lower
// ones when the admission queue is saturated.
type Tier string

const (
	TierFree         Tier = "free"
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// ParseTier normalizes a tier name, falling back to free for unknown values.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierStarter, TierProfessional, TierEnterprise:
		return Tier(s)
	default:
		return TierFree
	}
}

// JobState enumerates queue-local job states. Jobs live only in process
// memory; completed and rejected jobs are dropped, not stored.
type JobState string

const (
	JobWaiting JobState = "waiting"
	JobActive  JobState = "active"
)

// Job is the admission queue's view of one enhancement request.
type Job struct {
	Key        string
	OwnerKey   string // empty for anonymous submissions
	Tier       Tier
	Priority   int
	EnqueuedAt time.Time
	State      JobState
}
