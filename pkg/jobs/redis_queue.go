package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/courseflow/courseflow/pkg/observability/logger"
)

const (
	defaultRedisPrefix        = "courseflow:jobs"
	defaultRedisOpTimeout     = 5 * time.Second
	defaultRedisTransferBatch = 100
)

var (
	// Promotes due delayed entries and lease-expired claimed entries into
	// the ready list, pops one entry, and records the claim — one atomic
	// step, so concurrent claimants never receive the same entry.
	redisClaimScript = redis.NewScript(`
local ready = KEYS[1]
local delayed = KEYS[2]
local claimed = KEYS[3]
local nowMs = tonumber(ARGV[1])
local transferBatch = tonumber(ARGV[2])
local leaseDeadlineMs = tonumber(ARGV[3])

local due = redis.call("ZRANGEBYSCORE", delayed, "-inf", nowMs, "LIMIT", 0, transferBatch)
for _, payload in ipairs(due) do
  redis.call("RPUSH", ready, payload)
  redis.call("ZREM", delayed, payload)
end

local expired = redis.call("ZRANGEBYSCORE", claimed, "-inf", nowMs, "LIMIT", 0, transferBatch)
for _, payload in ipairs(expired) do
  redis.call("RPUSH", ready, payload)
  redis.call("ZREM", claimed, payload)
end

local payload = redis.call("LPOP", ready)
if not payload then
  return nil
end

redis.call("ZADD", claimed, leaseDeadlineMs, payload)
return payload
`)

	redisRequeueScript = redis.NewScript(`
local removed = redis.call("ZREM", KEYS[1], ARGV[1])
if removed == 0 then
  return 0
end
redis.call("ZADD", KEYS[2], tonumber(ARGV[3]), ARGV[2])
return 1
`)

	redisExtendScript = redis.NewScript(`
if redis.call("ZSCORE", KEYS[1], ARGV[1]) == false then
  return 0
end
redis.call("ZADD", KEYS[1], tonumber(ARGV[2]), ARGV[1])
return 1
`)
)

// RedisQueueConfig configures the Redis-backed durable queue.
type RedisQueueConfig struct {
	URL              string
	Name             string
	Prefix           string
	LeaseTTL         time.Duration
	ClaimInterval    time.Duration
	OperationTimeout time.Duration
	TransferBatch    int
}

func (c *RedisQueueConfig) normalize() {
	if strings.TrimSpace(c.Prefix) == "" {
		c.Prefix = defaultRedisPrefix
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = DefaultLeaseTTL
	}
	if c.ClaimInterval <= 0 {
		c.ClaimInterval = DefaultClaimInterval
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultRedisOpTimeout
	}
	if c.TransferBatch <= 0 {
		c.TransferBatch = defaultRedisTransferBatch
	}
}

// RedisQueue implements Queue with a ready list, a delayed zset scored
// by visible-at time, and a claimed zset scored by lease deadline. The
// claimed zset doubles as the staleness-reclaim mechanism: entries
// whose lease deadline passes are moved back to ready by the claim
// script, so jobs held by a crashed process are redelivered.
type RedisQueue struct {
	client *redis.Client
	log    logger.Logger
	config RedisQueueConfig

	mu     sync.RWMutex
	closed bool
}

// NewRedisQueue connects to Redis and verifies connectivity.
func NewRedisQueue(cfg RedisQueueConfig, log logger.Logger) (*RedisQueue, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("redis url is required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("queue name is required")
	}
	cfg.normalize()

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url failed: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis failed: %w", err)
	}

	return &RedisQueue{
		client: client,
		log:    log,
		config: cfg,
	}, nil
}

// Enqueue persists the job for immediate or RunAt-delayed visibility.
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	if err := q.ensureOpen(); err != nil {
		return err
	}
	if job == nil {
		return jobsError(ErrValidation, "job is required")
	}

	jobCopy := cloneJob(job)
	if strings.TrimSpace(jobCopy.Queue) == "" {
		jobCopy.Queue = q.config.Name
	}
	if jobCopy.CreatedAt.IsZero() {
		jobCopy.CreatedAt = time.Now().UTC()
	}
	if jobCopy.RunAt.IsZero() {
		jobCopy.RunAt = jobCopy.CreatedAt
	}
	jobCopy.Status = StatusQueued

	encoded, err := jobCopy.Encode()
	if err != nil {
		return err
	}

	opCtx, cancel := q.operationContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	if !jobCopy.RunAt.After(now) {
		err = q.client.RPush(opCtx, q.readyKey(), string(encoded)).Err()
	} else {
		err = q.client.ZAdd(opCtx, q.delayedKey(), redis.Z{
			Score:  float64(jobCopy.RunAt.UnixMilli()),
			Member: string(encoded),
		}).Err()
	}
	if err != nil {
		return err
	}
	recordJobEnqueued("redis", jobCopy)
	return nil
}

// Dequeue blocks until an entry is claimable or ctx is done.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, *Claim, error) {
	if err := q.ensureOpen(); err != nil {
		return nil, nil, err
	}
	if ctx == nil {
		return nil, nil, errors.New("context is required")
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		now := time.Now().UTC()
		leaseDeadline := now.Add(q.config.LeaseTTL)

		opCtx, cancel := q.operationContext(ctx)
		result, claimErr := redisClaimScript.Run(
			opCtx,
			q.client,
			[]string{q.readyKey(), q.delayedKey(), q.claimedKey()},
			now.UnixMilli(),
			q.config.TransferBatch,
			leaseDeadline.UnixMilli(),
		).Result()
		cancel()
		if claimErr != nil && !errors.Is(claimErr, redis.Nil) {
			return nil, nil, claimErr
		}

		raw, ok := result.(string)
		if errors.Is(claimErr, redis.Nil) || !ok || raw == "" {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(q.config.ClaimInterval):
				continue
			}
		}

		job, decodeErr := DecodeJob([]byte(raw))
		if decodeErr != nil {
			q.log.Warn("discarding malformed queued job payload", "queue", q.config.Name, "error", decodeErr)
			q.dropClaimed(ctx, raw)
			continue
		}

		job.Status = StatusActive
		claim := &Claim{
			JobID:         job.ID,
			Queue:         q.config.Name,
			Token:         raw,
			LeaseDeadline: leaseDeadline,
		}
		return job, claim, nil
	}
}

// Requeue atomically moves the claimed entry into the delayed set with
// an incremented attempt count, visible after delay.
func (q *RedisQueue) Requeue(ctx context.Context, claim *Claim, delay time.Duration) error {
	if err := q.ensureOpen(); err != nil {
		return err
	}
	if claim == nil || claim.Token == "" {
		return jobsError(ErrValidation, "claim is required")
	}

	job, err := DecodeJob([]byte(claim.Token))
	if err != nil {
		return err
	}
	job.Attempt++
	job.Status = StatusRetrying
	job.RunAt = time.Now().UTC().Add(delay)

	encoded, err := job.Encode()
	if err != nil {
		return err
	}

	opCtx, cancel := q.operationContext(ctx)
	defer cancel()

	moved, err := redisRequeueScript.Run(
		opCtx,
		q.client,
		[]string{q.claimedKey(), q.delayedKey()},
		claim.Token,
		string(encoded),
		job.RunAt.UnixMilli(),
	).Int()
	if err != nil {
		return err
	}
	if moved == 0 {
		return jobsError(ErrClaimLost, "entry was reclaimed before requeue")
	}
	recordJobEnqueued("redis", job)
	return nil
}

// Remove deletes the claimed entry. Idempotent.
func (q *RedisQueue) Remove(ctx context.Context, claim *Claim) error {
	if err := q.ensureOpen(); err != nil {
		return err
	}
	if claim == nil || claim.Token == "" {
		return nil
	}
	opCtx, cancel := q.operationContext(ctx)
	defer cancel()
	return q.client.ZRem(opCtx, q.claimedKey(), claim.Token).Err()
}

// Extend pushes the claim's lease deadline out by leaseFor.
func (q *RedisQueue) Extend(ctx context.Context, claim *Claim, leaseFor time.Duration) error {
	if err := q.ensureOpen(); err != nil {
		return err
	}
	if claim == nil || claim.Token == "" {
		return jobsError(ErrValidation, "claim is required")
	}
	if leaseFor <= 0 {
		leaseFor = q.config.LeaseTTL
	}

	deadline := time.Now().UTC().Add(leaseFor)
	opCtx, cancel := q.operationContext(ctx)
	defer cancel()

	extended, err := redisExtendScript.Run(
		opCtx,
		q.client,
		[]string{q.claimedKey()},
		claim.Token,
		deadline.UnixMilli(),
	).Int()
	if err != nil {
		return err
	}
	if extended == 0 {
		return jobsError(ErrClaimLost, "entry was reclaimed before extend")
	}
	claim.LeaseDeadline = deadline
	return nil
}

// HealthCheck verifies Redis connectivity.
func (q *RedisQueue) HealthCheck(ctx context.Context) error {
	if err := q.ensureOpen(); err != nil {
		return err
	}
	opCtx, cancel := q.operationContext(ctx)
	defer cancel()
	return q.client.Ping(opCtx).Err()
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()
	return q.client.Close()
}

func (q *RedisQueue) dropClaimed(ctx context.Context, raw string) {
	opCtx, cancel := q.operationContext(ctx)
	defer cancel()
	if err := q.client.ZRem(opCtx, q.claimedKey(), raw).Err(); err != nil {
		q.log.Warn("dropping malformed claimed entry failed", "queue", q.config.Name, "error", err)
	}
}

func (q *RedisQueue) ensureOpen() error {
	if q == nil || q.client == nil {
		return errors.New("redis queue is not initialized")
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return jobsError(ErrClosed, "redis queue is closed")
	}
	return nil
}

func (q *RedisQueue) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, q.config.OperationTimeout)
}

func (q *RedisQueue) readyKey() string {
	return q.prefix() + ":queue:" + q.config.Name + ":ready"
}

func (q *RedisQueue) delayedKey() string {
	return q.prefix() + ":queue:" + q.config.Name + ":delayed"
}

func (q *RedisQueue) claimedKey() string {
	return q.prefix() + ":queue:" + q.config.Name + ":claimed"
}

func (q *RedisQueue) prefix() string {
	return strings.TrimRight(strings.TrimSpace(q.config.Prefix), ":")
}
