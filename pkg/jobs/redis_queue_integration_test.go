package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/courseflow/courseflow/pkg/testutil"
)

// TestRedisQueue_Integration exercises the Redis queue against a real
// Redis instance using testcontainers.
func TestRedisQueue_Integration(t *testing.T) {
	testutil.SkipIfShort(t)

	ctx := context.Background()

	redisContainer, err := tcredis.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(redisContainer); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	newQueue := func(t *testing.T, name string, leaseTTL time.Duration) *RedisQueue {
		t.Helper()
		q, err := NewRedisQueue(RedisQueueConfig{
			URL:           connStr,
			Name:          name,
			LeaseTTL:      leaseTTL,
			ClaimInterval: 10 * time.Millisecond,
		}, nopLogger{})
		if err != nil {
			t.Fatalf("Failed to create queue: %v", err)
		}
		t.Cleanup(func() { _ = q.Close() })
		return q
	}

	t.Run("EnqueueDequeueRoundTrip", func(t *testing.T) {
		q := newQueue(t, "roundtrip", time.Minute)

		job := validFileJob()
		if err := q.Enqueue(ctx, job); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}

		dequeueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		got, claim, err := q.Dequeue(dequeueCtx)
		if err != nil {
			t.Fatalf("dequeue failed: %v", err)
		}
		if got.ID != job.ID || got.Status != StatusActive {
			t.Fatalf("unexpected job: %+v", got)
		}
		if err := q.Remove(ctx, claim); err != nil {
			t.Fatalf("remove failed: %v", err)
		}
	})

	t.Run("ClaimIsExclusiveAcrossConnections", func(t *testing.T) {
		producer := newQueue(t, "exclusive", time.Minute)
		consumerA := newQueue(t, "exclusive", time.Minute)
		consumerB := newQueue(t, "exclusive", time.Minute)

		const total = 10
		for i := 0; i < total; i++ {
			job := validFileJob()
			job.ID = fmt.Sprintf("job-%d", i)
			if err := producer.Enqueue(ctx, job); err != nil {
				t.Fatalf("enqueue failed: %v", err)
			}
		}

		drainCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		var mu sync.Mutex
		seen := make(map[string]int)
		var wg sync.WaitGroup
		for _, consumer := range []*RedisQueue{consumerA, consumerB} {
			wg.Add(1)
			go func(q *RedisQueue) {
				defer wg.Done()
				for {
					job, claim, err := q.Dequeue(drainCtx)
					if err != nil {
						return
					}
					mu.Lock()
					seen[job.ID]++
					done := len(seen) == total
					mu.Unlock()
					_ = q.Remove(drainCtx, claim)
					if done {
						cancel()
						return
					}
				}
			}(consumer)
		}
		wg.Wait()

		if len(seen) != total {
			t.Fatalf("expected %d distinct jobs, got %d", total, len(seen))
		}
		for id, count := range seen {
			if count != 1 {
				t.Fatalf("job %s delivered %d times", id, count)
			}
		}
	})

	t.Run("DelayedVisibility", func(t *testing.T) {
		q := newQueue(t, "delayed", time.Minute)

		job := validFileJob()
		job.RunAt = time.Now().UTC().Add(300 * time.Millisecond)
		if err := q.Enqueue(ctx, job); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}

		earlyCtx, cancelEarly := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancelEarly()
		if _, _, err := q.Dequeue(earlyCtx); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("job visible before its scheduled time, err=%v", err)
		}

		lateCtx, cancelLate := context.WithTimeout(ctx, 5*time.Second)
		defer cancelLate()
		got, claim, err := q.Dequeue(lateCtx)
		if err != nil {
			t.Fatalf("dequeue after delay failed: %v", err)
		}
		if got.ID != job.ID {
			t.Fatalf("unexpected job %s", got.ID)
		}
		_ = q.Remove(ctx, claim)
	})

	t.Run("RequeueIncrementsAttemptAndDelays", func(t *testing.T) {
		q := newQueue(t, "requeue", time.Minute)

		if err := q.Enqueue(ctx, validFileJob()); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}

		dequeueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		job, claim, err := q.Dequeue(dequeueCtx)
		if err != nil {
			t.Fatalf("dequeue failed: %v", err)
		}
		if job.Attempt != 0 {
			t.Fatalf("fresh job should start at attempt 0, got %d", job.Attempt)
		}
		if err := q.Requeue(ctx, claim, 50*time.Millisecond); err != nil {
			t.Fatalf("requeue failed: %v", err)
		}
		if err := q.Requeue(ctx, claim, 0); !errors.Is(err, ErrClaimLost) {
			t.Fatalf("second requeue of same claim should report ErrClaimLost, got %v", err)
		}

		again, claim2, err := q.Dequeue(dequeueCtx)
		if err != nil {
			t.Fatalf("dequeue of retry failed: %v", err)
		}
		if again.Attempt != 1 || again.Status != StatusActive {
			t.Fatalf("unexpected retry delivery: %+v", again)
		}
		_ = q.Remove(ctx, claim2)
	})

	t.Run("ExpiredLeaseIsReclaimed", func(t *testing.T) {
		q := newQueue(t, "reclaim", 200*time.Millisecond)

		if err := q.Enqueue(ctx, validFileJob()); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}

		dequeueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		first, staleClaim, err := q.Dequeue(dequeueCtx)
		if err != nil {
			t.Fatalf("dequeue failed: %v", err)
		}

		// No Remove/Requeue/Extend: simulate a crashed worker.
		redelivered, claim2, err := q.Dequeue(dequeueCtx)
		if err != nil {
			t.Fatalf("reclaim dequeue failed: %v", err)
		}
		if redelivered.ID != first.ID {
			t.Fatalf("expected redelivery of %s, got %s", first.ID, redelivered.ID)
		}
		if err := q.Extend(ctx, staleClaim, time.Minute); !errors.Is(err, ErrClaimLost) {
			t.Fatalf("stale extend should report ErrClaimLost, got %v", err)
		}
		_ = q.Remove(ctx, claim2)
	})

	t.Run("ExtendKeepsLeaseAlive", func(t *testing.T) {
		q := newQueue(t, "extend", 200*time.Millisecond)

		if err := q.Enqueue(ctx, validFileJob()); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}

		dequeueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, claim, err := q.Dequeue(dequeueCtx)
		if err != nil {
			t.Fatalf("dequeue failed: %v", err)
		}

		deadline := time.Now().Add(600 * time.Millisecond)
		for time.Now().Before(deadline) {
			if err := q.Extend(ctx, claim, 200*time.Millisecond); err != nil {
				t.Fatalf("extend failed: %v", err)
			}
			time.Sleep(50 * time.Millisecond)
		}

		// A renewed lease must not be redelivered.
		probeCtx, cancelProbe := context.WithTimeout(ctx, 300*time.Millisecond)
		defer cancelProbe()
		if _, _, err := q.Dequeue(probeCtx); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("renewed claim was redelivered, err=%v", err)
		}
		_ = q.Remove(ctx, claim)
	})
}
