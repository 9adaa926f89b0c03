package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/courseflow/courseflow/pkg/jobs"
	"github.com/courseflow/courseflow/pkg/observability/logger"
	"github.com/courseflow/courseflow/pkg/results"
)

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}
func (nopLogger) With(args ...any) logger.Logger {
	return nopLogger{}
}

func newTestService(t *testing.T) (*Service, *jobs.MemoryQueue, *results.MemoryStore) {
	t.Helper()
	queue := jobs.NewMemoryQueue("parse", time.Minute, 5*time.Millisecond)
	store := results.NewMemoryStore()
	t.Cleanup(func() {
		_ = queue.Close()
		_ = store.Close()
	})

	service, err := NewService(queue, store, nopLogger{}, Config{QueueName: "parse"})
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	return service, queue, store
}

func TestSubmitAssignsIDAndEnqueues(t *testing.T) {
	service, queue, _ := newTestService(t)
	ctx := context.Background()

	id, err := service.Submit(ctx, SubmitRequest{
		Kind:     jobs.KindFile,
		FilePath: "/tmp/upload.pdf",
		Filename: "syllabus.pdf",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if id == "" {
		t.Fatal("submit should assign an id")
	}

	dequeueCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	job, claim, err := queue.Dequeue(dequeueCtx)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if job.ID != id || job.Kind != jobs.KindFile || job.MaxAttempts != jobs.DefaultMaxAttempts {
		t.Fatalf("unexpected job: %+v", job)
	}
	_ = queue.Remove(ctx, claim)
}

func TestSubmitKeepsCallerProvidedID(t *testing.T) {
	service, _, _ := newTestService(t)

	id, err := service.Submit(context.Background(), SubmitRequest{
		ID:         "caller-1",
		Kind:       jobs.KindTimelineLookup,
		TimelineID: "tl-9",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if id != "caller-1" {
		t.Fatalf("expected caller id, got %s", id)
	}
}

func TestSubmitRejectsMismatchedRequest(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []SubmitRequest{
		{Kind: jobs.KindFile},
		{Kind: jobs.KindBody},
		{Kind: jobs.KindTimelineLookup},
		{Kind: "zip", FilePath: "/tmp/x"},
	}
	for _, req := range cases {
		if _, err := service.Submit(ctx, req); !errors.Is(err, jobs.ErrValidation) {
			t.Fatalf("expected ErrValidation for %+v, got %v", req, err)
		}
	}
}

func TestPollLifecycle(t *testing.T) {
	service, _, store := newTestService(t)
	ctx := context.Background()

	id, err := service.Submit(ctx, SubmitRequest{
		Kind: jobs.KindBody,
		Body: json.RawMessage(`{"raw":"Week 1"}`),
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	resp, err := service.Poll(ctx, id)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if resp.Status != StatusPending || resp.Result != nil {
		t.Fatalf("unfinished job should be pending: %+v", resp)
	}

	terminal := &results.Result{
		JobID:       id,
		Status:      results.StatusDone,
		Data:        json.RawMessage(`{"timelineId":"tl-1"}`),
		Attempts:    1,
		CompletedAt: time.Now().UTC(),
	}
	if err := store.Put(ctx, terminal, time.Minute); err != nil {
		t.Fatalf("put result failed: %v", err)
	}

	resp, err = service.Poll(ctx, id)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if resp.Status != StatusDone || resp.Result == nil {
		t.Fatalf("finished job should be done: %+v", resp)
	}
	if string(resp.Result.Data) != `{"timelineId":"tl-1"}` {
		t.Fatalf("unexpected data: %s", resp.Result.Data)
	}
}

func TestPollReportsFailures(t *testing.T) {
	service, _, store := newTestService(t)
	ctx := context.Background()

	failed := &results.Result{
		JobID:       "job-f",
		Status:      results.StatusFailed,
		Error:       "unsupported document type",
		Attempts:    1,
		CompletedAt: time.Now().UTC(),
	}
	if err := store.Put(ctx, failed, time.Minute); err != nil {
		t.Fatalf("put result failed: %v", err)
	}

	resp, err := service.Poll(ctx, "job-f")
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if resp.Status != StatusFailed || resp.Result.Error == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestExtendResult(t *testing.T) {
	service, _, store := newTestService(t)
	ctx := context.Background()

	record := &results.Result{
		JobID:       "job-e",
		Status:      results.StatusDone,
		Attempts:    1,
		CompletedAt: time.Now().UTC(),
	}
	if err := store.Put(ctx, record, 30*time.Millisecond); err != nil {
		t.Fatalf("put result failed: %v", err)
	}
	if err := service.ExtendResult(ctx, "job-e"); err != nil {
		t.Fatalf("extend failed: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, err := store.Get(ctx, "job-e"); err != nil {
		t.Fatalf("extended result should survive: %v", err)
	}

	if err := service.ExtendResult(ctx, "missing"); !errors.Is(err, results.ErrNotFound) {
		t.Fatalf("extend of missing result should be ErrNotFound, got %v", err)
	}
}
