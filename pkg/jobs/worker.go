package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/courseflow/courseflow/pkg/observability/logger"
	"github.com/courseflow/courseflow/pkg/results"
)

const (
	DefaultConcurrency    = 4
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 2 * time.Minute
	DefaultShutdownGrace  = 30 * time.Second
	DefaultResultTTL      = 24 * time.Hour
)

// Dispatcher executes one job attempt and returns its payload on
// success. A returned error wrapped with Permanent skips retries.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *Job) (json.RawMessage, error)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, job *Job) (json.RawMessage, error)

func (f DispatcherFunc) Dispatch(ctx context.Context, job *Job) (json.RawMessage, error) {
	return f(ctx, job)
}

// Outcome describes how one claimed attempt concluded. Terminal is
// false when the job was requeued for another attempt.
type Outcome struct {
	Job      *Job
	Terminal bool
	Status   results.Status
	Err      error
	Delay    time.Duration
}

// PoolConfig configures a worker Pool.
type PoolConfig struct {
	Concurrency    int
	MaxAttempts    int
	Backoff        BackoffStrategy
	AttemptTimeout time.Duration
	LeaseTTL       time.Duration
	ShutdownGrace  time.Duration
	ResultTTL      time.Duration

	// OnOutcome, when set, is invoked after every attempt concludes.
	// Called from worker goroutines; implementations must be safe for
	// concurrent use.
	OnOutcome func(Outcome)
}

func (c *PoolConfig) normalize() {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Backoff == nil {
		c.Backoff = DefaultBackoff()
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = DefaultLeaseTTL
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = DefaultResultTTL
	}
}

// Pool runs a fixed set of workers claiming jobs from one queue and
// recording terminal outcomes in the result store. The pool does not
// own the queue or store lifecycles; the caller closes them after Stop.
type Pool struct {
	queue      Queue
	store      results.Store
	dispatcher Dispatcher
	log        logger.Logger
	config     PoolConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewPool validates the wiring and returns an unstarted pool.
func NewPool(queue Queue, store results.Store, dispatcher Dispatcher, log logger.Logger, cfg PoolConfig) (*Pool, error) {
	if queue == nil {
		return nil, errors.New("queue is required")
	}
	if store == nil {
		return nil, errors.New("result store is required")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	cfg.normalize()
	return &Pool{
		queue:      queue,
		store:      store,
		dispatcher: dispatcher,
		log:        log,
		config:     cfg,
	}, nil
}

// Start launches the worker goroutines. Workers stop claiming when ctx
// is cancelled or Stop is called; in-flight attempts run to completion
// bounded by AttemptTimeout.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("pool already started")
	}
	p.started = true

	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < p.config.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			p.runLoop(workerCtx, slot)
		}(i)
	}
	go func() {
		wg.Wait()
		close(p.done)
	}()

	p.log.Info("worker pool started", "concurrency", p.config.Concurrency, "maxAttempts", p.config.MaxAttempts)
	return nil
}

// Stop signals workers to stop claiming and waits up to ShutdownGrace
// for in-flight attempts to finish. The queue and result store are left
// open for the caller to close.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if !p.started || p.cancel == nil {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	select {
	case <-done:
		p.log.Info("worker pool drained")
		return nil
	case <-time.After(p.config.ShutdownGrace):
		p.log.Warn("worker pool shutdown grace elapsed with attempts still in flight", "grace", p.config.ShutdownGrace)
		return errors.New("shutdown grace elapsed before workers drained")
	}
}

func (p *Pool) runLoop(ctx context.Context, slot int) {
	log := p.log.With("slot", slot)
	for {
		job, claim, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("dequeue failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		p.process(log, job, claim)
	}
}

// process runs one attempt. Shutdown does not cancel the attempt
// context mid-flight; the attempt finishes or times out, then the loop
// observes ctx and exits.
func (p *Pool) process(log logger.Logger, job *Job, claim *Claim) {
	incrementJobInFlight(job.Queue)
	defer decrementJobInFlight(job.Queue)

	log = log.With("jobId", job.ID, "kind", string(job.Kind), "attempt", job.Attempt+1)

	attemptCtx, cancelAttempt := context.WithTimeout(context.Background(), p.config.AttemptTimeout)
	defer cancelAttempt()

	renewDone := p.startLeaseRenewal(attemptCtx, cancelAttempt, log, claim)

	started := time.Now()
	data, err := p.execute(attemptCtx, job)
	cancelAttempt()
	<-renewDone

	// Acknowledgement uses a fresh context: during shutdown the worker
	// context is already cancelled, but a finished attempt still needs
	// its result written and its claim removed.
	ackCtx, cancelAck := context.WithTimeout(context.Background(), p.config.AttemptTimeout)
	defer cancelAck()

	if err == nil {
		log.Info("job completed", "duration", time.Since(started))
		p.finish(ackCtx, log, job, claim, results.StatusDone, data, nil)
		return
	}
	p.handleFailure(ackCtx, log, job, claim, err)
}

// execute invokes the dispatcher, converting panics into errors so one
// bad job cannot take down a worker slot.
func (p *Pool) execute(ctx context.Context, job *Job) (data json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job dispatch panicked: %v", r)
		}
	}()
	return p.dispatcher.Dispatch(ctx, job)
}

func (p *Pool) handleFailure(ctx context.Context, log logger.Logger, job *Job, claim *Claim, dispatchErr error) {
	attemptsUsed := job.Attempt + 1
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = p.config.MaxAttempts
	}
	permanent := IsPermanent(dispatchErr)
	exhausted := attemptsUsed >= maxAttempts

	if permanent || exhausted {
		if permanent {
			log.Warn("job failed permanently", "error", dispatchErr)
		} else {
			log.Warn("job failed and exhausted retries", "error", dispatchErr, "maxAttempts", maxAttempts)
		}
		p.finish(ctx, log, job, claim, results.StatusFailed, nil, dispatchErr)
		return
	}

	delay := p.config.Backoff.Delay(attemptsUsed)
	log.Warn("job failed, scheduling retry", "error", dispatchErr, "delay", delay)
	if err := p.queue.Requeue(ctx, claim, delay); err != nil {
		if errors.Is(err, ErrClaimLost) {
			log.Warn("claim lost before requeue, entry will be redelivered")
		} else {
			log.Error("requeue failed", "error", err)
		}
		return
	}
	recordJobRetry(job.Queue, job.Kind)
	p.notify(Outcome{Job: job, Terminal: false, Err: dispatchErr, Delay: delay})
}

// finish records the terminal result, acknowledges the claim, and reaps
// the job's temp file. The result write comes first so a crash between
// steps redelivers the job rather than losing its outcome.
func (p *Pool) finish(ctx context.Context, log logger.Logger, job *Job, claim *Claim, status results.Status, data json.RawMessage, dispatchErr error) {
	result := &results.Result{
		JobID:       job.ID,
		Status:      status,
		Data:        data,
		Attempts:    job.Attempt + 1,
		CompletedAt: time.Now().UTC(),
	}
	if dispatchErr != nil {
		result.Error = dispatchErr.Error()
	}
	if err := p.store.Put(ctx, result, p.config.ResultTTL); err != nil {
		log.Error("writing job result failed", "error", err)
	}
	if err := p.queue.Remove(ctx, claim); err != nil {
		log.Error("removing claimed entry failed", "error", err)
	}
	p.reapTempFile(log, job)
	recordJobProcessed(job.Queue, job.Kind, string(status))
	p.notify(Outcome{Job: job, Terminal: true, Status: status, Err: dispatchErr})
}

// reapTempFile deletes the uploaded file once the job reaches a
// terminal state. Retried jobs keep their file; the next attempt reads
// it again.
func (p *Pool) reapTempFile(log logger.Logger, job *Job) {
	if job.Kind != KindFile || job.File == nil || job.File.Path == "" {
		return
	}
	if err := os.Remove(job.File.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("removing temp file failed", "path", job.File.Path, "error", err)
	}
}

// startLeaseRenewal keeps the claim's lease alive while the attempt
// runs. Losing the lease cancels the attempt: another worker may
// already hold the job, so finishing here would double-process it.
func (p *Pool) startLeaseRenewal(ctx context.Context, cancelAttempt context.CancelFunc, log logger.Logger, claim *Claim) <-chan struct{} {
	done := make(chan struct{})
	interval := p.config.LeaseTTL / 3
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.queue.Extend(ctx, claim, p.config.LeaseTTL); err != nil {
					if errors.Is(err, ErrClaimLost) {
						log.Warn("lease lost, abandoning attempt")
						cancelAttempt()
						return
					}
					if ctx.Err() == nil {
						log.Warn("lease renewal failed", "error", err)
					}
				}
			}
		}
	}()
	return done
}

func (p *Pool) notify(outcome Outcome) {
	if p.config.OnOutcome != nil {
		p.config.OnOutcome(outcome)
	}
}
