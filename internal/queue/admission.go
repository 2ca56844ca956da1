package queue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"listinglens/internal/domain"
)

// ErrSlotReclaimed is the cancellation cause set on a ticket context when an
// active job sat past the processing timeout and its slot was taken back.
var ErrSlotReclaimed = errors.New("queue: processing slot reclaimed")

// Config holds the required admission parameters.
type Config struct {
	// MaxConcurrent bounds how many jobs hold an active slot at once. Must be
	// positive.
	MaxConcurrent int
	// MaxQueueSize bounds the waiting room, excluding active jobs. Zero means
	// no waiting: a job either dispatches immediately or is rejected.
	MaxQueueSize int
	// ProcessingTimeout is how long an active job may run before its slot is
	// reclaimed so waiting jobs cannot starve. The original caller is not
	// notified beyond cancellation of its ticket context.
	ProcessingTimeout time.Duration
	// PriorityBoost maps tiers to a score added on top of the zero baseline.
	// Higher scores dispatch first. Missing tiers get the baseline.
	PriorityBoost map[domain.Tier]int
}

// DefaultPriorityBoost spaces the tiers far enough apart that per-job
// adjustments could be layered in later without reordering tiers.
func DefaultPriorityBoost() map[domain.Tier]int {
	return map[domain.Tier]int{
		domain.TierFree:         0,
		domain.TierStarter:      10,
		domain.TierProfessional: 20,
		domain.TierEnterprise:   30,
	}
}

// Ticket is handed back by Enqueue. Dispatched is closed once the job holds
// an active slot; Context is cancelled (cause ErrSlotReclaimed) if that slot
// is later reclaimed, so the caller can abandon its external call.
type Ticket struct {
	Key        string
	dispatched chan struct{}
	ctx        context.Context
}

// Dispatched is closed when the job transitions from waiting to active.
func (t *Ticket) Dispatched() <-chan struct{} { return t.dispatched }

// Context is the per-job context tied to the active slot.
func (t *Ticket) Context() context.Context { return t.ctx }

type queuedJob struct {
	domain.Job
	seq      uint64 // tie-break for identical enqueue timestamps
	index    int    // position in the waiting heap, -1 once active
	deadline time.Time
	ticket   *Ticket
	cancel   context.CancelCauseFunc
}

// Status is a point-in-time snapshot of the queue.
type Status struct {
	ActiveCount   int      `json:"active_count"`
	QueueLength   int      `json:"queue_length"`
	ActiveJobKeys []string `json:"active_job_keys"`
}

// AdmissionQueue bounds concurrent enhancement calls for one process. All
// bookkeeping happens under a single mutex that is never held across the
// external call; callers block only on their ticket, outside the lock.
//
// Construct one per process and inject it into the request layer.
type AdmissionQueue struct {
	cfg Config

	mu      sync.Mutex
	waiting waitHeap
	jobs    map[string]*queuedJob // waiting and active, by key
	active  int
	seq     uint64

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// New validates cfg and starts the slot reaper.
func New(cfg Config) (*AdmissionQueue, error) {
	if cfg.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("queue: MaxConcurrent must be positive, got %d", cfg.MaxConcurrent)
	}
	if cfg.MaxQueueSize < 0 {
		return nil, fmt.Errorf("queue: MaxQueueSize must not be negative, got %d", cfg.MaxQueueSize)
	}
	if cfg.ProcessingTimeout <= 0 {
		return nil, fmt.Errorf("queue: ProcessingTimeout must be positive, got %s", cfg.ProcessingTimeout)
	}
	if cfg.PriorityBoost == nil {
		cfg.PriorityBoost = DefaultPriorityBoost()
	}
	q := &AdmissionQueue{
		cfg:        cfg,
		jobs:       make(map[string]*queuedJob),
		reaperStop: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
	go q.reap()
	return q, nil
}

// Close stops the reaper and clears the queue.
func (q *AdmissionQueue) Close() {
	close(q.reaperStop)
	<-q.reaperDone
	q.Clear()
}

// Enqueue admits a job. It returns domain.ErrDuplicateJob if a job with the
// same key is waiting or active, and domain.ErrQueueFull when no slot is free
// and the waiting room is at capacity. On success the ticket's Dispatched
// channel reports when the job may start its external call.
func (q *AdmissionQueue) Enqueue(jobKey, ownerKey string, tier domain.Tier) (*Ticket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.reclaimExpiredLocked(time.Now())

	if _, ok := q.jobs[jobKey]; ok {
		return nil, fmt.Errorf("queue: job %q: %w", jobKey, domain.ErrDuplicateJob)
	}
	if q.active >= q.cfg.MaxConcurrent && q.waiting.Len() >= q.cfg.MaxQueueSize {
		return nil, fmt.Errorf("queue: job %q: %w", jobKey, domain.ErrQueueFull)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	q.seq++
	j := &queuedJob{
		Job: domain.Job{
			Key:        jobKey,
			OwnerKey:   ownerKey,
			Tier:       tier,
			Priority:   q.cfg.PriorityBoost[tier],
			EnqueuedAt: time.Now(),
			State:      domain.JobWaiting,
		},
		seq:    q.seq,
		index:  -1,
		cancel: cancel,
		ticket: &Ticket{Key: jobKey, dispatched: make(chan struct{}), ctx: ctx},
	}
	q.jobs[jobKey] = j

	if q.active < q.cfg.MaxConcurrent {
		q.activateLocked(j)
	} else {
		heap.Push(&q.waiting, j)
	}
	return j.ticket, nil
}

// Dequeue removes a job, waiting or active, and synchronously promotes the
// next eligible waiting job if a slot was freed. Unknown keys are a no-op,
// which makes release safe to call from deferred cleanup paths.
func (q *AdmissionQueue) Dequeue(jobKey string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobKey]
	if !ok {
		return
	}
	delete(q.jobs, jobKey)
	j.cancel(nil)
	switch j.State {
	case domain.JobActive:
		q.active--
		q.promoteLocked()
	case domain.JobWaiting:
		heap.Remove(&q.waiting, j.index)
	}
}

// GetStatus returns a snapshot without blocking concurrent operations beyond
// its own critical section.
func (q *AdmissionQueue) GetStatus() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.reclaimExpiredLocked(time.Now())

	st := Status{
		ActiveCount: q.active,
		QueueLength: q.waiting.Len(),
	}
	for key, j := range q.jobs {
		if j.State == domain.JobActive {
			st.ActiveJobKeys = append(st.ActiveJobKeys, key)
		}
	}
	return st
}

// Clear forcibly empties the waiting and active sets. Administrative use
// only; every held ticket context is cancelled.
func (q *AdmissionQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, j := range q.jobs {
		j.cancel(nil)
	}
	q.jobs = make(map[string]*queuedJob)
	q.waiting = q.waiting[:0]
	q.active = 0
}

// activateLocked moves j into an active slot and signals its ticket.
func (q *AdmissionQueue) activateLocked(j *queuedJob) {
	j.State = domain.JobActive
	j.index = -1
	j.deadline = time.Now().Add(q.cfg.ProcessingTimeout)
	q.active++
	close(j.ticket.dispatched)
}

// promoteLocked fills free slots from the waiting heap in priority order.
func (q *AdmissionQueue) promoteLocked() {
	for q.active < q.cfg.MaxConcurrent && q.waiting.Len() > 0 {
		j := heap.Pop(&q.waiting).(*queuedJob)
		q.activateLocked(j)
	}
}

// reclaimExpiredLocked frees slots held past their processing deadline. The
// job's ticket context is cancelled so the owning call can bail out, but the
// queue never reports the outcome on the owner's behalf.
func (q *AdmissionQueue) reclaimExpiredLocked(now time.Time) {
	var expired []*queuedJob
	for _, j := range q.jobs {
		if j.State == domain.JobActive && now.After(j.deadline) {
			expired = append(expired, j)
		}
	}
	for _, j := range expired {
		delete(q.jobs, j.Key)
		j.cancel(ErrSlotReclaimed)
		q.active--
	}
	if len(expired) > 0 {
		q.promoteLocked()
	}
}

func (q *AdmissionQueue) reap() {
	defer close(q.reaperDone)
	interval := q.cfg.ProcessingTimeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.reaperStop:
			return
		case now := <-ticker.C:
			q.mu.Lock()
			q.reclaimExpiredLocked(now)
			q.mu.Unlock()
		}
	}
}

// waitHeap orders waiting jobs by priority descending, then enqueue time
// ascending, then insertion sequence for identical timestamps.
type waitHeap []*queuedJob

func (h waitHeap) Len() int { return len(h) }

func (h waitHeap) Less(i, k int) bool {
	if h[i].Priority != h[k].Priority {
		return h[i].Priority > h[k].Priority
	}
	if !h[i].EnqueuedAt.Equal(h[k].EnqueuedAt) {
		return h[i].EnqueuedAt.Before(h[k].EnqueuedAt)
	}
	return h[i].seq < h[k].seq
}

func (h waitHeap) Swap(i, k int) {
	h[i], h[k] = h[k], h[i]
	h[i].index = i
	h[k].index = k
}

func (h *waitHeap) Push(x any) {
	j := x.(*queuedJob)
	j.index = len(*h)
	*h = append(*h, j)
}

func (h *waitHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}
