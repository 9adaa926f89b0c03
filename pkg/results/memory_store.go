package results

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type memoryRecord struct {
	result    Result
	expiresAt time.Time
}

// MemoryStore is an in-process Store with lazy expiry: records past
// their retention window are treated as absent and dropped on access.
// Intended for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

func (s *MemoryStore) Put(ctx context.Context, result *Result, ttl time.Duration) error {
	if result == nil || strings.TrimSpace(result.JobID) == "" {
		return errors.New("result with job id is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("result store is closed")
	}
	s.records[result.JobID] = memoryRecord{
		result:    *result,
		expiresAt: time.Now().UTC().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("result store is closed")
	}

	record, ok := s.records[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if !record.expiresAt.After(time.Now().UTC()) {
		delete(s.records, jobID)
		return nil, ErrNotFound
	}
	resultCopy := record.result
	return &resultCopy, nil
}

func (s *MemoryStore) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("result store is closed")
	}
	delete(s.records, jobID)
	return nil
}

func (s *MemoryStore) Extend(ctx context.Context, jobID string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("result store is closed")
	}

	record, ok := s.records[jobID]
	if !ok || !record.expiresAt.After(time.Now().UTC()) {
		delete(s.records, jobID)
		return ErrNotFound
	}
	record.expiresAt = time.Now().UTC().Add(ttl)
	s.records[jobID] = record
	return nil
}

func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("result store is closed")
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
