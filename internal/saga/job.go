package saga

import (
	"fmt"
	"time"

	"github.com/RezaEskandarii/jobsaga/custom_errors"
	"github.com/RezaEskandarii/jobsaga/internal/state"
	"github.com/RezaEskandarii/jobsaga/types"
)

// FooState tracks one conversion unit inside a job.
type FooState struct {
	FooID         string          `json:"foo_id"`
	Status        state.FooStatus `json:"status"`
	AttemptNumber int             `json:"attempt_number"`
	Error         string          `json:"error,omitempty"`
}

// JobState is the persisted state of a job saga.
type JobState struct {
	JobID      string          `json:"job_id"`
	GroupID    string          `json:"group_id"`
	Index      int             `json:"index"`
	Count      int             `json:"count"`
	Path       string          `json:"path"`
	JobType    string          `json:"job_type"`
	Status     state.JobStatus `json:"status"`
	Foos       []FooState      `json:"foos"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`

	// RequestedJobType is the raw JobType of the creating request, kept to
	// detect conflicting duplicates.
	RequestedJobType string `json:"requested_job_type,omitempty"`
}

func (s *JobState) CurrentState() string {
	return s.Status.String()
}

// ValidateRequest checks the structural rules of a ConvertVideoRequest.
func ValidateRequest(req types.ConvertVideoRequest) error {
	errs := &custom_errors.ValidationError{}
	if req.GroupID == "" {
		errs.Addf("group id is required")
	}
	if req.Path == "" {
		errs.Addf("path is required")
	}
	if req.Count < 1 {
		errs.Addf("count must be positive")
	}
	if req.Index < 0 || (req.Count > 0 && req.Index >= req.Count) {
		errs.Addf("index %d out of range for count %d", req.Index, req.Count)
	}
	if len(req.Foos) == 0 {
		errs.Addf("at least one foo is required")
	}
	seen := make(map[string]struct{}, len(req.Foos))
	for i, foo := range req.Foos {
		if foo.FooID == "" {
			errs.Addf("foo %d: id is required", i)
			continue
		}
		if _, ok := seen[foo.FooID]; ok {
			errs.Addf("foo %q is listed twice", foo.FooID)
		}
		seen[foo.FooID] = struct{}{}
	}
	return errs.Err()
}

// NewJob creates the job saga for a request and asks for admission of every Foo.
func NewJob(req types.ConvertVideoRequest, now time.Time) (*JobState, Transition, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, Transition{}, err
	}

	s := &JobState{
		JobID:            JobID(req.GroupID, req.Index),
		GroupID:          req.GroupID,
		Index:            req.Index,
		Count:            req.Count,
		Path:             req.Path,
		JobType:          ResolveJobType(req.JobType, req.Path),
		RequestedJobType: req.JobType,
		Status:           state.JobCreated,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, foo := range req.Foos {
		s.Foos = append(s.Foos, FooState{FooID: foo.FooID, Status: state.FooPending})
	}

	t := Transition{Changed: true}
	jobTypeID := JobTypeID(s.JobType)
	for _, foo := range s.Foos {
		t.send("admission-requested:"+foo.FooID, jobTypeID, AdmissionRequested{
			JobType: s.JobType,
			JobID:   s.JobID,
			FooID:   foo.FooID,
		})
	}
	return s, t, nil
}

// HandleJob applies msg to an existing job saga.
func HandleJob(s *JobState, msg Message, now time.Time) (Transition, error) {
	switch m := msg.(type) {
	case ConvertVideo:
		return s.onDuplicateRequest(m.ConvertVideoRequest, now)
	case AdmissionGranted:
		return s.onAdmissionGranted(m, now), nil
	case AttemptStarted:
		return s.onAttemptStarted(m, now), nil
	case AttemptResolved:
		return s.onAttemptResolved(m, now), nil
	}
	return Transition{}, fmt.Errorf("%w: %s for job saga", ErrUnknownMessage, msg.Kind())
}

// HandleMissingJob answers msg for a job saga that no longer exists. A grant
// reaching a purged job comes from a redelivered admission request; the slot
// goes straight back to the job type.
func HandleMissingJob(msg Message) Transition {
	var t Transition
	if m, ok := msg.(AdmissionGranted); ok && m.JobType != "" {
		t.send("slot-released:"+m.FooID+":orphan", JobTypeID(m.JobType), SlotReleased{
			JobType: m.JobType,
			JobID:   m.JobID,
			FooID:   m.FooID,
		})
	}
	return t
}

func (s *JobState) onDuplicateRequest(req types.ConvertVideoRequest, now time.Time) (Transition, error) {
	if fields := s.differences(req); len(fields) > 0 {
		return Transition{}, &custom_errors.DuplicateConflictError{
			GroupID: req.GroupID,
			Index:   req.Index,
			Fields:  fields,
		}
	}
	var t Transition
	t.send(fmt.Sprintf("job-status:%s:%d", s.JobID, now.UnixNano()), s.JobID, JobStatus{s.Report()})
	return t, nil
}

func (s *JobState) differences(req types.ConvertVideoRequest) []string {
	var fields []string
	if req.Count != s.Count {
		fields = append(fields, "count")
	}
	if req.Path != s.Path {
		fields = append(fields, "path")
	}
	if req.JobType != s.RequestedJobType {
		fields = append(fields, "job_type")
	}
	if len(req.Foos) != len(s.Foos) {
		fields = append(fields, "foos")
		return fields
	}
	for i, foo := range req.Foos {
		if foo.FooID != s.Foos[i].FooID {
			fields = append(fields, "foos")
			break
		}
	}
	return fields
}

func (s *JobState) onAdmissionGranted(m AdmissionGranted, now time.Time) Transition {
	foo := s.foo(m.FooID)
	if foo == nil {
		return Transition{}
	}
	if foo.Status.IsTerminal() {
		// a late duplicate request was re-admitted after the Foo resolved;
		// hand the slot back
		var t Transition
		t.send("slot-released:"+foo.FooID+":regrant", JobTypeID(s.JobType), SlotReleased{
			JobType: s.JobType,
			JobID:   s.JobID,
			FooID:   foo.FooID,
		})
		return t
	}
	if foo.Status != state.FooPending {
		return Transition{}
	}
	foo.Status = state.FooDispatched
	if s.Status == state.JobCreated {
		s.setStatus(state.JobDispatching)
	}
	s.UpdatedAt = now

	t := Transition{Changed: true}
	t.send("start-attempt:"+foo.FooID, AttemptID(foo.FooID), StartAttempt{
		JobID:   s.JobID,
		FooID:   foo.FooID,
		JobType: s.JobType,
		Path:    s.Path,
	})
	return t
}

func (s *JobState) onAttemptStarted(m AttemptStarted, now time.Time) Transition {
	foo := s.foo(m.FooID)
	if foo == nil || foo.Status.IsTerminal() || m.AttemptNumber <= foo.AttemptNumber {
		return Transition{}
	}
	foo.AttemptNumber = m.AttemptNumber
	if s.Status == state.JobDispatching {
		s.setStatus(state.JobInProgress)
	}
	s.UpdatedAt = now
	return Transition{Changed: true}
}

func (s *JobState) onAttemptResolved(m AttemptResolved, now time.Time) Transition {
	foo := s.foo(m.FooID)
	if foo == nil || foo.Status.IsTerminal() || s.Status.IsTerminal() {
		return Transition{}
	}

	switch m.Outcome {
	case state.OutcomeSuccess:
		foo.Status = state.FooSucceeded
	case state.OutcomePermanentFailure:
		foo.Status = state.FooFailed
		foo.Error = m.Error
	default:
		// transient outcomes never leave the attempt saga
		return Transition{}
	}
	if m.AttemptNumber > foo.AttemptNumber {
		foo.AttemptNumber = m.AttemptNumber
	}
	s.UpdatedAt = now

	t := Transition{Changed: true}
	if !s.allTerminal() {
		s.setStatus(state.JobInProgress)
		return t
	}

	s.FinishedAt = &now
	t.Finalized = true
	if s.anyFailed() {
		s.setStatus(state.JobFailed)
		t.send("job-failed:"+s.JobID, s.JobID, JobFailed{types.JobFailed{
			JobID:    s.JobID,
			GroupID:  s.GroupID,
			Index:    s.Index,
			Foos:     s.fooResults(),
			FailedAt: now,
		}})
		return t
	}
	s.setStatus(state.JobCompleted)
	t.send("job-completed:"+s.JobID, s.JobID, JobCompleted{types.JobCompleted{
		JobID:       s.JobID,
		GroupID:     s.GroupID,
		Index:       s.Index,
		Foos:        s.fooResults(),
		CompletedAt: now,
	}})
	return t
}

// setStatus moves the job along the transition table. A job that resolves
// before its first grant was recorded passes through Dispatching.
func (s *JobState) setStatus(to state.JobStatus) {
	if s.Status == state.JobCreated && to != state.JobDispatching {
		s.Status = state.JobDispatching
	}
	if state.IsValidTransition(state.JobTransitions, s.Status, to) {
		s.Status = to
	}
}

func (s *JobState) foo(id string) *FooState {
	for i := range s.Foos {
		if s.Foos[i].FooID == id {
			return &s.Foos[i]
		}
	}
	return nil
}

func (s *JobState) allTerminal() bool {
	for _, foo := range s.Foos {
		if !foo.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func (s *JobState) anyFailed() bool {
	for _, foo := range s.Foos {
		if foo.Status == state.FooFailed {
			return true
		}
	}
	return false
}

func (s *JobState) fooResults() []types.FooResult {
	results := make([]types.FooResult, 0, len(s.Foos))
	for _, foo := range s.Foos {
		results = append(results, types.FooResult{
			FooID:         foo.FooID,
			Status:        foo.Status,
			AttemptNumber: foo.AttemptNumber,
			Error:         foo.Error,
		})
	}
	return results
}

// Report returns the externally visible view of the job.
func (s *JobState) Report() types.JobStatusReport {
	return types.JobStatusReport{
		JobID:     s.JobID,
		GroupID:   s.GroupID,
		Index:     s.Index,
		Count:     s.Count,
		JobType:   s.JobType,
		Status:    s.Status,
		Foos:      s.fooResults(),
		UpdatedAt: s.UpdatedAt,
	}
}
