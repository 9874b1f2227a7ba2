package run

import (
	"errors"
	"time"
)

var (
	// ErrNotSubmittable means the attachments lack content, photo or voice
	ErrNotSubmittable = errors.New("attachments are not submittable")

	// ErrRunInFlight means a run is already being submitted or processed
	ErrRunInFlight = errors.New("a run is already in progress")

	// ErrClosed means the orchestrator has been closed
	ErrClosed = errors.New("orchestrator closed")
)

// Status is the lifecycle position of a generation run
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusInProgress Status = "in_progress"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// InFlight reports whether the run is waiting on the service
func (s Status) InFlight() bool {
	return s == StatusSubmitting || s == StatusInProgress
}

// Terminal reports whether the run has finished
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ErrorKind classifies a run failure
type ErrorKind string

const (
	KindNetwork           ErrorKind = "network"
	KindPipeline          ErrorKind = "pipeline"
	KindMalformedResponse ErrorKind = "malformed_response"
)

// ErrorDescriptor describes why a run failed
type ErrorDescriptor struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Run is a value snapshot of one generation run
type Run struct {
	ID         string           `json:"id,omitempty"`
	Status     Status           `json:"status"`
	Style      string           `json:"style,omitempty"`
	SceneCount int              `json:"scene_count,omitempty"`
	ResultURL  string           `json:"result_url,omitempty"`
	LogText    string           `json:"log_text"`
	Error      *ErrorDescriptor `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at,omitempty"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
}

// Duration returns how long the run took, or has taken so far
func (r Run) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r Run) clone() Run {
	if r.Error != nil {
		e := *r.Error
		r.Error = &e
	}
	return r
}
