package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultResultPrefix    = "courseflow:result"
	defaultResultOpTimeout = 5 * time.Second
)

// RedisStoreConfig configures the Redis-backed result store.
type RedisStoreConfig struct {
	URL              string
	Prefix           string
	OperationTimeout time.Duration
}

func (c *RedisStoreConfig) normalize() {
	if strings.TrimSpace(c.Prefix) == "" {
		c.Prefix = defaultResultPrefix
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultResultOpTimeout
	}
}

// RedisStore implements Store on Redis. Retention is delegated to Redis
// key TTLs, so expiry needs no reaper of its own.
type RedisStore struct {
	client *redis.Client
	config RedisStoreConfig

	mu     sync.RWMutex
	closed bool
}

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("redis url is required")
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

	return &RedisStore{client: client, config: cfg}, nil
}

func (s *RedisStore) Put(ctx context.Context, result *Result, ttl time.Duration) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if result == nil || strings.TrimSpace(result.JobID) == "" {
		return errors.New("result with job id is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result failed: %w", err)
	}

	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	return s.client.Set(opCtx, s.key(result.JobID), encoded, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (*Result, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()

	raw, err := s.client.Get(opCtx, s.key(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode result failed: %w", err)
	}
	return &result, nil
}

func (s *RedisStore) Delete(ctx context.Context, jobID string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	return s.client.Del(opCtx, s.key(jobID)).Err()
}

func (s *RedisStore) Extend(ctx context.Context, jobID string, ttl time.Duration) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()

	ok, err := s.client.Expire(opCtx, s.key(jobID), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	return s.client.Ping(opCtx).Err()
}

func (s *RedisStore) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.client.Close()
}

func (s *RedisStore) ensureOpen() error {
	if s == nil || s.client == nil {
		return errors.New("result store is not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("result store is closed")
	}
	return nil
}

func (s *RedisStore) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.config.OperationTimeout)
}

func (s *RedisStore) key(jobID string) string {
	return strings.TrimRight(s.config.Prefix, ":") + ":" + jobID
}
