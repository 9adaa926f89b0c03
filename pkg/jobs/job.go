package jobs

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind identifies the processing routine for a job. The set is closed:
// adding a kind means adding a dispatch branch.
type Kind string

const (
	// KindFile jobs carry a path to an uploaded document whose bytes are
	// forwarded to the parse service.
	KindFile Kind = "file"
	// KindBody jobs carry an inline structured payload forwarded to the
	// parse service directly.
	KindBody Kind = "body"
	// KindTimelineLookup jobs resolve an existing timeline record by id
	// without calling the parse service.
	KindTimelineLookup Kind = "timelineLookup"
)

// Status tracks a job through its lifecycle.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusActive   Status = "active"
	StatusRetrying Status = "retrying"
)

// FilePayload is the payload variant for KindFile.
type FilePayload struct {
	Path     string `json:"path"`
	Filename string `json:"filename,omitempty"`
}

// BodyPayload is the payload variant for KindBody.
type BodyPayload struct {
	Content json.RawMessage `json:"content"`
}

// TimelineLookupPayload is the payload variant for KindTimelineLookup.
type TimelineLookupPayload struct {
	TimelineID string `json:"timeline_id"`
}

// Job describes one unit of asynchronous parse work. Exactly one payload
// variant matching Kind must be set; Kind is immutable after creation.
type Job struct {
	ID          string                 `json:"id"`
	Kind        Kind                   `json:"kind"`
	Queue       string                 `json:"queue"`
	File        *FilePayload           `json:"file,omitempty"`
	Body        *BodyPayload           `json:"body,omitempty"`
	Timeline    *TimelineLookupPayload `json:"timeline,omitempty"`
	Status      Status                 `json:"status"`
	Attempt     int                    `json:"attempt"`
	MaxAttempts int                    `json:"max_attempts,omitempty"`
	RunAt       time.Time              `json:"run_at"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Validate checks the fields runtime behavior depends on, including that
// the payload variant matches the declared kind.
func (j *Job) Validate() error {
	if j == nil {
		return jobsError(ErrValidation, "job is nil")
	}
	if strings.TrimSpace(j.ID) == "" {
		return jobsError(ErrValidation, "job id is required")
	}
	if strings.TrimSpace(j.Queue) == "" {
		return jobsError(ErrValidation, "job queue is required")
	}
	if j.Attempt < 0 {
		return jobsError(ErrValidation, "job attempt must be >= 0")
	}
	if j.MaxAttempts < 0 {
		return jobsError(ErrValidation, "job max attempts must be >= 0")
	}

	switch j.Kind {
	case KindFile:
		if j.File == nil || strings.TrimSpace(j.File.Path) == "" {
			return jobsError(ErrValidation, "file jobs require a file path payload")
		}
		if j.Body != nil || j.Timeline != nil {
			return jobsError(ErrValidation, "file jobs must carry only the file payload")
		}
	case KindBody:
		if j.Body == nil || len(j.Body.Content) == 0 {
			return jobsError(ErrValidation, "body jobs require inline content")
		}
		if j.File != nil || j.Timeline != nil {
			return jobsError(ErrValidation, "body jobs must carry only the body payload")
		}
	case KindTimelineLookup:
		if j.Timeline == nil || strings.TrimSpace(j.Timeline.TimelineID) == "" {
			return jobsError(ErrValidation, "timeline lookup jobs require a timeline id")
		}
		if j.File != nil || j.Body != nil {
			return jobsError(ErrValidation, "timeline lookup jobs must carry only the timeline payload")
		}
	default:
		return jobsError(ErrValidation, "unknown job kind "+string(j.Kind))
	}

	return nil
}

// Encode serializes a job into its queue wire form.
func (j *Job) Encode() ([]byte, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(j)
}

// DecodeJob deserializes a job from its queue wire form.
func DecodeJob(raw []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, jobsError(ErrValidation, "malformed queue payload: "+err.Error())
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	copyJob := *job
	if job.File != nil {
		f := *job.File
		copyJob.File = &f
	}
	if job.Body != nil {
		b := *job.Body
		b.Content = append(json.RawMessage(nil), job.Body.Content...)
		copyJob.Body = &b
	}
	if job.Timeline != nil {
		t := *job.Timeline
		copyJob.Timeline = &t
	}
	return &copyJob
}
