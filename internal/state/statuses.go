package state

// SagaKind names one of the three saga types persisted in the saga store.
type SagaKind string

const (
	KindJob        SagaKind = "job"
	KindJobType    SagaKind = "job_type"
	KindJobAttempt SagaKind = "job_attempt"
)

func (k SagaKind) String() string {
	return string(k)
}

var AllKinds = []SagaKind{
	KindJob,
	KindJobType,
	KindJobAttempt,
}

type JobStatus string

const (
	JobCreated     JobStatus = "created"
	JobDispatching JobStatus = "dispatching"
	JobInProgress  JobStatus = "in_progress"
	JobCompleted   JobStatus = "completed"
	JobFailed      JobStatus = "failed"
)

func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the job can no longer change.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

var AllJobStatuses = []JobStatus{
	JobCreated,
	JobDispatching,
	JobInProgress,
	JobCompleted,
	JobFailed,
}

type FooStatus string

const (
	FooPending    FooStatus = "pending"
	FooDispatched FooStatus = "dispatched"
	FooSucceeded  FooStatus = "succeeded"
	FooFailed     FooStatus = "failed"
)

func (s FooStatus) String() string {
	return string(s)
}

func (s FooStatus) IsTerminal() bool {
	return s == FooSucceeded || s == FooFailed
}

type AttemptStatus string

const (
	AttemptPending          AttemptStatus = "pending"
	AttemptDispatched       AttemptStatus = "dispatched"
	AttemptSucceeded        AttemptStatus = "succeeded"
	AttemptTransientFailure AttemptStatus = "transient_failure"
	AttemptPermanentFailure AttemptStatus = "permanent_failure"
)

func (s AttemptStatus) String() string {
	return string(s)
}

func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptSucceeded || s == AttemptPermanentFailure
}

// Outcome is how a single attempt resolved.
type Outcome string

const (
	OutcomePending          Outcome = "pending"
	OutcomeSuccess          Outcome = "success"
	OutcomeTransientFailure Outcome = "transient_failure"
	OutcomePermanentFailure Outcome = "permanent_failure"
)

func (o Outcome) String() string {
	return string(o)
}

type Transition[S comparable] struct {
	From S
	To   S
}

var JobTransitions = []Transition[JobStatus]{
	{From: JobCreated, To: JobDispatching},
	{From: JobDispatching, To: JobInProgress},
	{From: JobDispatching, To: JobCompleted},
	{From: JobDispatching, To: JobFailed},
	{From: JobInProgress, To: JobCompleted},
	{From: JobInProgress, To: JobFailed},
}

var FooTransitions = []Transition[FooStatus]{
	{From: FooPending, To: FooDispatched},
	{From: FooPending, To: FooSucceeded},
	{From: FooPending, To: FooFailed},
	{From: FooDispatched, To: FooSucceeded},
	{From: FooDispatched, To: FooFailed},
}

var AttemptTransitions = []Transition[AttemptStatus]{
	{From: AttemptPending, To: AttemptDispatched},
	{From: AttemptDispatched, To: AttemptSucceeded},
	{From: AttemptDispatched, To: AttemptTransientFailure},
	{From: AttemptDispatched, To: AttemptPermanentFailure},
	{From: AttemptTransientFailure, To: AttemptPending},
}

func IsValidTransition[S comparable](table []Transition[S], from, to S) bool {
	for _, t := range table {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
