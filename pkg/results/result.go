// Package results stores terminal job outcomes for polling, with a
// bounded retention window enforced by the backing store.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status is the terminal state recorded for a completed job.
type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// ErrNotFound is returned by Get when no result exists for the job ID,
// either because the job never completed or the record already expired.
var ErrNotFound = errors.New("result not found")

// Result is the terminal record for one job.
type Result struct {
	JobID       string          `json:"jobId"`
	Status      Status          `json:"status"`
	Data        json.RawMessage `json:"data,omitempty"`
	Error       string          `json:"error,omitempty"`
	Attempts    int             `json:"attempts"`
	CompletedAt time.Time       `json:"completedAt"`
}

// Store persists terminal results with per-record TTL.
type Store interface {
	// Put writes the result, replacing any existing record for the same
	// job ID, and starts (or restarts) its retention clock.
	Put(ctx context.Context, result *Result, ttl time.Duration) error

	// Get returns the result for the job ID or ErrNotFound.
	Get(ctx context.Context, jobID string) (*Result, error)

	// Delete removes the record. Idempotent.
	Delete(ctx context.Context, jobID string) error

	// Extend resets the record's retention clock to ttl from now.
	// Returns ErrNotFound when no record exists.
	Extend(ctx context.Context, jobID string, ttl time.Duration) error

	HealthCheck(ctx context.Context) error
	Close() error
}
