// Package ingest is the producer side of the parse subsystem: it turns
// submit requests into queued jobs and answers status polls from the
// result store.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/courseflow/courseflow/pkg/jobs"
	"github.com/courseflow/courseflow/pkg/observability/logger"
	"github.com/courseflow/courseflow/pkg/results"
)

// PollStatus is the caller-visible status of a submitted job.
type PollStatus string

const (
	// StatusPending covers queued, retrying, and in-flight jobs alike:
	// no terminal result exists yet. An expired result also reports
	// pending, indistinguishable from a job that never ran.
	StatusPending PollStatus = "pending"
	StatusDone    PollStatus = "done"
	StatusFailed  PollStatus = "failed"
)

// SubmitRequest describes one job to enqueue. Exactly one of FilePath,
// Body, or TimelineID must be set, matching Kind.
type SubmitRequest struct {
	ID          string
	Kind        jobs.Kind
	FilePath    string
	Filename    string
	Body        json.RawMessage
	TimelineID  string
	RunAt       time.Time
	MaxAttempts int
}

// PollResponse reports a job's current status. Result is set only for
// terminal statuses.
type PollResponse struct {
	JobID  string
	Status PollStatus
	Result *results.Result
}

// Service enqueues jobs and answers polls.
type Service struct {
	queue       jobs.Queue
	store       results.Store
	log         logger.Logger
	queueName   string
	maxAttempts int
	resultTTL   time.Duration
}

// Config holds ingest service configuration.
type Config struct {
	QueueName   string
	MaxAttempts int
	ResultTTL   time.Duration
}

// NewService wires an ingest service. Queue and store are required.
func NewService(queue jobs.Queue, store results.Store, log logger.Logger, cfg Config) (*Service, error) {
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if store == nil {
		return nil, errors.New("result store is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(cfg.QueueName) == "" {
		cfg.QueueName = "parse"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = jobs.DefaultMaxAttempts
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = jobs.DefaultResultTTL
	}
	return &Service{
		queue:       queue,
		store:       store,
		log:         log,
		queueName:   cfg.QueueName,
		maxAttempts: cfg.MaxAttempts,
		resultTTL:   cfg.ResultTTL,
	}, nil
}

// Submit validates the request, enqueues the job, and returns its id.
// When the request carries no id, one is assigned.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	job, err := s.buildJob(req)
	if err != nil {
		return "", err
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue failed: %w", err)
	}
	s.log.Info("job submitted", "jobId", job.ID, "kind", string(job.Kind), "queue", job.Queue)
	return job.ID, nil
}

// Poll reports the job's status. A missing result means the job has not
// reached a terminal state (or its result already expired).
func (s *Service) Poll(ctx context.Context, jobID string) (*PollResponse, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, errors.New("job id is required")
	}

	result, err := s.store.Get(ctx, jobID)
	if errors.Is(err, results.ErrNotFound) {
		return &PollResponse{JobID: jobID, Status: StatusPending}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("poll failed: %w", err)
	}

	status := StatusDone
	if result.Status == results.StatusFailed {
		status = StatusFailed
	}
	return &PollResponse{JobID: jobID, Status: status, Result: result}, nil
}

// ExtendResult resets the retention clock on a terminal result so a
// slow consumer can keep it alive past the default window.
func (s *Service) ExtendResult(ctx context.Context, jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return errors.New("job id is required")
	}
	return s.store.Extend(ctx, jobID, s.resultTTL)
}

func (s *Service) buildJob(req SubmitRequest) (*jobs.Job, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.maxAttempts
	}

	job := &jobs.Job{
		ID:          id,
		Kind:        req.Kind,
		Queue:       s.queueName,
		MaxAttempts: maxAttempts,
		RunAt:       req.RunAt,
		CreatedAt:   time.Now().UTC(),
	}

	switch req.Kind {
	case jobs.KindFile:
		job.File = &jobs.FilePayload{Path: req.FilePath, Filename: req.Filename}
	case jobs.KindBody:
		job.Body = &jobs.BodyPayload{Content: req.Body}
	case jobs.KindTimelineLookup:
		job.Timeline = &jobs.TimelineLookupPayload{TimelineID: req.TimelineID}
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}
