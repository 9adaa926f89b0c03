package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryDelayed struct {
	job       *Job
	visibleAt time.Time
}

type memoryClaimed struct {
	job           *Job
	leaseDeadline time.Time
}

// MemoryQueue is an in-process Queue with the same visibility and
// lease-reclaim semantics as RedisQueue. Single process only; state is
// lost on restart. Intended for tests and local development.
type MemoryQueue struct {
	name          string
	leaseTTL      time.Duration
	claimInterval time.Duration

	mu      sync.Mutex
	ready   []*Job
	delayed []memoryDelayed
	claimed map[string]memoryClaimed
	closed  bool
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue(name string, leaseTTL, claimInterval time.Duration) *MemoryQueue {
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}
	if claimInterval <= 0 {
		claimInterval = DefaultClaimInterval
	}
	return &MemoryQueue{
		name:          name,
		leaseTTL:      leaseTTL,
		claimInterval: claimInterval,
		claimed:       make(map[string]memoryClaimed),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	if job == nil {
		return jobsError(ErrValidation, "job is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return jobsError(ErrClosed, "memory queue is closed")
	}

	jobCopy := cloneJob(job)
	if jobCopy.Queue == "" {
		jobCopy.Queue = q.name
	}
	if jobCopy.CreatedAt.IsZero() {
		jobCopy.CreatedAt = time.Now().UTC()
	}
	if jobCopy.RunAt.IsZero() {
		jobCopy.RunAt = jobCopy.CreatedAt
	}
	jobCopy.Status = StatusQueued

	now := time.Now().UTC()
	if jobCopy.RunAt.After(now) {
		q.delayed = append(q.delayed, memoryDelayed{job: jobCopy, visibleAt: jobCopy.RunAt})
	} else {
		q.ready = append(q.ready, jobCopy)
	}
	recordJobEnqueued("memory", jobCopy)
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, *Claim, error) {
	if ctx == nil {
		return nil, nil, errors.New("context is required")
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		job, claim, ok, err := q.tryClaim()
		if err != nil {
			return nil, nil, err
		}
		if ok {
			return job, claim, nil
		}

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(q.claimInterval):
		}
	}
}

func (q *MemoryQueue) tryClaim() (*Job, *Claim, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, nil, false, jobsError(ErrClosed, "memory queue is closed")
	}

	now := time.Now().UTC()
	q.promoteLocked(now)

	if len(q.ready) == 0 {
		return nil, nil, false, nil
	}
	job := q.ready[0]
	q.ready = q.ready[1:]

	token := uuid.NewString()
	deadline := now.Add(q.leaseTTL)
	q.claimed[token] = memoryClaimed{job: job, leaseDeadline: deadline}

	delivered := cloneJob(job)
	delivered.Status = StatusActive
	return delivered, &Claim{
		JobID:         job.ID,
		Queue:         q.name,
		Token:         token,
		LeaseDeadline: deadline,
	}, true, nil
}

// promoteLocked moves due delayed entries and lease-expired claimed
// entries into the ready slice. Caller holds q.mu.
func (q *MemoryQueue) promoteLocked(now time.Time) {
	remaining := q.delayed[:0]
	for _, entry := range q.delayed {
		if !entry.visibleAt.After(now) {
			q.ready = append(q.ready, entry.job)
		} else {
			remaining = append(remaining, entry)
		}
	}
	q.delayed = remaining

	for token, claim := range q.claimed {
		if claim.leaseDeadline.After(now) {
			continue
		}
		q.ready = append(q.ready, claim.job)
		delete(q.claimed, token)
	}
}

func (q *MemoryQueue) Requeue(ctx context.Context, claim *Claim, delay time.Duration) error {
	if claim == nil || claim.Token == "" {
		return jobsError(ErrValidation, "claim is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return jobsError(ErrClosed, "memory queue is closed")
	}

	held, ok := q.claimed[claim.Token]
	if !ok {
		return jobsError(ErrClaimLost, "entry was reclaimed before requeue")
	}
	delete(q.claimed, claim.Token)

	job := cloneJob(held.job)
	job.Attempt++
	job.Status = StatusRetrying
	job.RunAt = time.Now().UTC().Add(delay)
	if delay > 0 {
		q.delayed = append(q.delayed, memoryDelayed{job: job, visibleAt: job.RunAt})
	} else {
		q.ready = append(q.ready, job)
	}
	recordJobEnqueued("memory", job)
	return nil
}

func (q *MemoryQueue) Remove(ctx context.Context, claim *Claim) error {
	if claim == nil || claim.Token == "" {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return jobsError(ErrClosed, "memory queue is closed")
	}
	delete(q.claimed, claim.Token)
	return nil
}

func (q *MemoryQueue) Extend(ctx context.Context, claim *Claim, leaseFor time.Duration) error {
	if claim == nil || claim.Token == "" {
		return jobsError(ErrValidation, "claim is required")
	}
	if leaseFor <= 0 {
		leaseFor = q.leaseTTL
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return jobsError(ErrClosed, "memory queue is closed")
	}

	held, ok := q.claimed[claim.Token]
	if !ok {
		return jobsError(ErrClaimLost, "entry was reclaimed before extend")
	}
	held.leaseDeadline = time.Now().UTC().Add(leaseFor)
	q.claimed[claim.Token] = held
	claim.LeaseDeadline = held.leaseDeadline
	return nil
}

func (q *MemoryQueue) HealthCheck(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return jobsError(ErrClosed, "memory queue is closed")
	}
	return nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// Depth reports ready, delayed, and claimed entry counts. Test helper.
func (q *MemoryQueue) Depth() (ready, delayed, claimed int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready), len(q.delayed), len(q.claimed)
}
