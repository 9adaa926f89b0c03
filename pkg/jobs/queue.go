package jobs

import (
	"context"
	"time"
)

const (
	// DefaultLeaseTTL bounds how long a claim stays valid without renewal
	// before the staleness sweep returns the entry to the ready set.
	DefaultLeaseTTL = 60 * time.Second
	// DefaultClaimInterval is how often an idle dequeue re-polls the store.
	DefaultClaimInterval = 100 * time.Millisecond
)

// Claim is temporary ownership over a dequeued job. It is the handle
// workers pass back to finish, requeue, or extend the entry.
type Claim struct {
	JobID         string
	Queue         string
	Token         string
	LeaseDeadline time.Time
}

// Queue is the durable job queue contract. Dequeue atomically claims
// exactly one entry: no two concurrent callers, in one process or
// across processes, ever receive the same entry. Entries become visible
// no earlier than their scheduled time; among visible entries the
// earliest-enqueued wins, though delayed retries may reorder.
type Queue interface {
	// Enqueue persists the job for immediate (or RunAt-scheduled)
	// visibility. Fails only when the backing store is unavailable.
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue blocks until an entry is claimable or ctx is done. The
	// returned claim carries a lease; entries whose lease expires
	// without Remove/Requeue are reclaimed for other workers.
	Dequeue(ctx context.Context) (*Job, *Claim, error)

	// Requeue schedules the claimed entry for a future attempt after
	// delay, incrementing its attempt count. Returns ErrClaimLost when
	// the lease has already been reclaimed.
	Requeue(ctx context.Context, claim *Claim, delay time.Duration) error

	// Remove deletes the claimed entry. Idempotent: removing an absent
	// or already-reclaimed entry is not an error.
	Remove(ctx context.Context, claim *Claim) error

	// Extend pushes the claim's lease deadline out by leaseFor. Returns
	// ErrClaimLost when the lease has already been reclaimed.
	Extend(ctx context.Context, claim *Claim, leaseFor time.Duration) error

	HealthCheck(ctx context.Context) error
	Close() error
}
