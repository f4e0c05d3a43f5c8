package saga

import (
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/state"
	"github.com/RezaEskandarii/jobsaga/types"
)

type MessageKind string

const (
	KindConvertVideoRequest    MessageKind = "convert-video-request"
	KindAdmissionGranted       MessageKind = "admission-granted"
	KindAttemptStarted         MessageKind = "attempt-started"
	KindAttemptResolved        MessageKind = "attempt-resolved"
	KindAdmissionRequested     MessageKind = "admission-requested"
	KindSlotReleased           MessageKind = "slot-released"
	KindStartAttempt           MessageKind = "start-attempt"
	KindTranscodeCompleted     MessageKind = "transcode-completed"
	KindAttemptDeadlineElapsed MessageKind = "attempt-deadline-elapsed"
	KindAttemptRetryDue        MessageKind = "attempt-retry-due"
	KindDispatchTranscode      MessageKind = "dispatch-transcode"
	KindJobCompleted           MessageKind = "job-completed"
	KindJobFailed              MessageKind = "job-failed"
	KindJobStatus              MessageKind = "job-status"
)

// Destination is where a message kind is delivered.
type Destination int

const (
	DestinationUnknown Destination = iota
	DestinationJob
	DestinationJobType
	DestinationJobAttempt
	DestinationWorker
	DestinationEvents
)

var destinations = map[MessageKind]Destination{
	KindConvertVideoRequest:    DestinationJob,
	KindAdmissionGranted:       DestinationJob,
	KindAttemptStarted:         DestinationJob,
	KindAttemptResolved:        DestinationJob,
	KindAdmissionRequested:     DestinationJobType,
	KindSlotReleased:           DestinationJobType,
	KindStartAttempt:           DestinationJobAttempt,
	KindTranscodeCompleted:     DestinationJobAttempt,
	KindAttemptDeadlineElapsed: DestinationJobAttempt,
	KindAttemptRetryDue:        DestinationJobAttempt,
	KindDispatchTranscode:      DestinationWorker,
	KindJobCompleted:           DestinationEvents,
	KindJobFailed:              DestinationEvents,
	KindJobStatus:              DestinationEvents,
}

func DestinationOf(kind MessageKind) Destination {
	return destinations[kind]
}

// IsSagaBound reports whether messages of this kind are consumed by a saga
// and therefore travel through a partition.
func (d Destination) IsSagaBound() bool {
	return d == DestinationJob || d == DestinationJobType || d == DestinationJobAttempt
}

// SagaKind maps a saga-bound destination to the stored saga kind.
func (d Destination) SagaKind() state.SagaKind {
	switch d {
	case DestinationJob:
		return state.KindJob
	case DestinationJobType:
		return state.KindJobType
	case DestinationJobAttempt:
		return state.KindJobAttempt
	}
	return ""
}

// Message is the closed set of payloads carried in an Envelope.
type Message interface {
	Kind() MessageKind
	sealed()
}

type ConvertVideo struct {
	types.ConvertVideoRequest
}

type AdmissionGranted struct {
	JobType string `json:"job_type,omitempty"`
	JobID   string `json:"job_id"`
	FooID   string `json:"foo_id"`
}

type AttemptStarted struct {
	JobID         string    `json:"job_id"`
	FooID         string    `json:"foo_id"`
	AttemptNumber int       `json:"attempt_number"`
	DispatchedAt  time.Time `json:"dispatched_at"`
}

type AttemptResolved struct {
	JobID         string        `json:"job_id"`
	FooID         string        `json:"foo_id"`
	AttemptNumber int           `json:"attempt_number"`
	Outcome       state.Outcome `json:"outcome"`
	Error         string        `json:"error,omitempty"`
}

type AdmissionRequested struct {
	JobType string `json:"job_type"`
	JobID   string `json:"job_id"`
	FooID   string `json:"foo_id"`
}

type SlotReleased struct {
	JobType string `json:"job_type"`
	JobID   string `json:"job_id"`
	FooID   string `json:"foo_id"`
}

type StartAttempt struct {
	JobID   string `json:"job_id"`
	FooID   string `json:"foo_id"`
	JobType string `json:"job_type"`
	Path    string `json:"path"`
}

type TranscodeCompleted struct {
	types.TranscodeCompleted
}

type AttemptDeadlineElapsed struct {
	FooID         string `json:"foo_id"`
	AttemptNumber int    `json:"attempt_number"`
}

type AttemptRetryDue struct {
	FooID         string `json:"foo_id"`
	AttemptNumber int    `json:"attempt_number"`
}

type DispatchTranscode struct {
	types.DispatchTranscode
}

type JobCompleted struct {
	types.JobCompleted
}

type JobFailed struct {
	types.JobFailed
}

type JobStatus struct {
	types.JobStatusReport
}

func (ConvertVideo) Kind() MessageKind           { return KindConvertVideoRequest }
func (AdmissionGranted) Kind() MessageKind       { return KindAdmissionGranted }
func (AttemptStarted) Kind() MessageKind         { return KindAttemptStarted }
func (AttemptResolved) Kind() MessageKind        { return KindAttemptResolved }
func (AdmissionRequested) Kind() MessageKind     { return KindAdmissionRequested }
func (SlotReleased) Kind() MessageKind           { return KindSlotReleased }
func (StartAttempt) Kind() MessageKind           { return KindStartAttempt }
func (TranscodeCompleted) Kind() MessageKind     { return KindTranscodeCompleted }
func (AttemptDeadlineElapsed) Kind() MessageKind { return KindAttemptDeadlineElapsed }
func (AttemptRetryDue) Kind() MessageKind        { return KindAttemptRetryDue }
func (DispatchTranscode) Kind() MessageKind      { return KindDispatchTranscode }
func (JobCompleted) Kind() MessageKind           { return KindJobCompleted }
func (JobFailed) Kind() MessageKind              { return KindJobFailed }
func (JobStatus) Kind() MessageKind              { return KindJobStatus }

func (ConvertVideo) sealed()           {}
func (AdmissionGranted) sealed()       {}
func (AttemptStarted) sealed()         {}
func (AttemptResolved) sealed()        {}
func (AdmissionRequested) sealed()     {}
func (SlotReleased) sealed()           {}
func (StartAttempt) sealed()           {}
func (TranscodeCompleted) sealed()     {}
func (AttemptDeadlineElapsed) sealed() {}
func (AttemptRetryDue) sealed()        {}
func (DispatchTranscode) sealed()      {}
func (JobCompleted) sealed()           {}
func (JobFailed) sealed()              {}
func (JobStatus) sealed()              {}
