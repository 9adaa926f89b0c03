// Package dispatch routes claimed jobs to their processing routine and
// maps domain errors onto the retry taxonomy: parse-service rejections
// and missing records are permanent, everything else is retried.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/courseflow/courseflow/pkg/jobs"
	"github.com/courseflow/courseflow/pkg/observability/logger"
	"github.com/courseflow/courseflow/pkg/parser"
	"github.com/courseflow/courseflow/pkg/timeline"
)

// ParseClient is the slice of the parse service client the dispatcher
// needs.
type ParseClient interface {
	ParseFile(ctx context.Context, filename string, data []byte) (json.RawMessage, error)
	ParseBody(ctx context.Context, content json.RawMessage) (json.RawMessage, error)
}

// Dispatcher implements jobs.Dispatcher over the parse service client
// and the timeline store.
type Dispatcher struct {
	parse     ParseClient
	timelines timeline.Store
	log       logger.Logger
}

// New wires a dispatcher. Both collaborators are required.
func New(parse ParseClient, timelines timeline.Store, log logger.Logger) (*Dispatcher, error) {
	if parse == nil {
		return nil, errors.New("parse client is required")
	}
	if timelines == nil {
		return nil, errors.New("timeline store is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	return &Dispatcher{parse: parse, timelines: timelines, log: log}, nil
}

// Dispatch runs one job attempt. The kind switch is exhaustive; an
// unknown kind is permanent because no future attempt can handle it.
func (d *Dispatcher) Dispatch(ctx context.Context, job *jobs.Job) (json.RawMessage, error) {
	d.log.Debug("dispatching job", "jobId", job.ID, "kind", string(job.Kind))
	switch job.Kind {
	case jobs.KindFile:
		return d.dispatchFile(ctx, job)
	case jobs.KindBody:
		return d.dispatchBody(ctx, job)
	case jobs.KindTimelineLookup:
		return d.dispatchTimelineLookup(ctx, job)
	default:
		return nil, jobs.Permanent(fmt.Errorf("unknown job kind %q", job.Kind))
	}
}

func (d *Dispatcher) dispatchFile(ctx context.Context, job *jobs.Job) (json.RawMessage, error) {
	data, err := os.ReadFile(job.File.Path)
	if errors.Is(err, os.ErrNotExist) {
		// The upload is gone; retrying cannot bring it back.
		return nil, jobs.Permanent(fmt.Errorf("uploaded file missing: %w", err))
	}
	if err != nil {
		return nil, fmt.Errorf("read uploaded file failed: %w", err)
	}

	payload, err := d.parse.ParseFile(ctx, job.File.Filename, data)
	if err != nil {
		return nil, classifyParseError(err)
	}
	return payload, nil
}

func (d *Dispatcher) dispatchBody(ctx context.Context, job *jobs.Job) (json.RawMessage, error) {
	payload, err := d.parse.ParseBody(ctx, job.Body.Content)
	if err != nil {
		return nil, classifyParseError(err)
	}
	return payload, nil
}

func (d *Dispatcher) dispatchTimelineLookup(ctx context.Context, job *jobs.Job) (json.RawMessage, error) {
	payload, err := d.timelines.Lookup(ctx, job.Timeline.TimelineID)
	if errors.Is(err, timeline.ErrNotFound) {
		return nil, jobs.Permanent(err)
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func classifyParseError(err error) error {
	if parser.IsRejection(err) {
		return jobs.Permanent(err)
	}
	return err
}
