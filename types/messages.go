package types

import (
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/state"
)

// ErrorKind classifies a worker failure.
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindTransient ErrorKind = "transient"
	ErrorKindPermanent ErrorKind = "permanent"
)

// FooRef references one conversion unit of a job.
type FooRef struct {
	FooID string `json:"foo_id"`
}

// ConvertVideoRequest is the inbound command that creates a job.
// GroupID and Index together form its idempotency key.
type ConvertVideoRequest struct {
	GroupID string   `json:"group_id"`
	Index   int      `json:"index"`
	Count   int      `json:"count"`
	Path    string   `json:"path"`
	Foos    []FooRef `json:"foos"`
	// JobType overrides the admission category derived from Path.
	JobType string `json:"job_type,omitempty"`
}

// TranscodeCompleted is emitted by a worker when an attempt finishes.
type TranscodeCompleted struct {
	FooID         string    `json:"foo_id"`
	AttemptNumber int       `json:"attempt_number"`
	Success       bool      `json:"success"`
	ErrorKind     ErrorKind `json:"error_kind,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// DispatchTranscode is sent to the worker pool for every attempt.
type DispatchTranscode struct {
	JobID         string `json:"job_id"`
	FooID         string `json:"foo_id"`
	AttemptNumber int    `json:"attempt_number"`
	Path          string `json:"path"`
	JobType       string `json:"job_type,omitempty"`
}

// FooResult is the status of a single Foo inside a job report.
type FooResult struct {
	FooID         string          `json:"foo_id"`
	Status        state.FooStatus `json:"status"`
	AttemptNumber int             `json:"attempt_number"`
	Error         string          `json:"error,omitempty"`
}

// JobStatusReport is the externally visible view of a job.
type JobStatusReport struct {
	JobID     string          `json:"job_id"`
	GroupID   string          `json:"group_id"`
	Index     int             `json:"index"`
	Count     int             `json:"count"`
	JobType   string          `json:"job_type"`
	Status    state.JobStatus `json:"status"`
	Foos      []FooResult     `json:"foos"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// JobCompleted is published once every Foo of a job succeeded.
type JobCompleted struct {
	JobID       string      `json:"job_id"`
	GroupID     string      `json:"group_id"`
	Index       int         `json:"index"`
	Foos        []FooResult `json:"foos"`
	CompletedAt time.Time   `json:"completed_at"`
}

// JobFailed is published once every Foo is terminal and at least one failed.
type JobFailed struct {
	JobID    string      `json:"job_id"`
	GroupID  string      `json:"group_id"`
	Index    int         `json:"index"`
	Foos     []FooResult `json:"foos"`
	FailedAt time.Time   `json:"failed_at"`
}
