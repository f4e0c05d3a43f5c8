package saga

import (
	"fmt"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/backoff"
	"github.com/RezaEskandarii/jobsaga/internal/state"
	"github.com/RezaEskandarii/jobsaga/types"
)

const deadlineElapsedError = "attempt deadline elapsed"

// RetryPolicy bounds the attempts of a single Foo.
type RetryPolicy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	Backoff        backoff.Strategy
}

// AttemptRecord is one entry of a Foo's attempt history.
type AttemptRecord struct {
	AttemptNumber int           `json:"attempt_number"`
	Outcome       state.Outcome `json:"outcome"`
	DispatchedAt  time.Time     `json:"dispatched_at"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`
	Error         string        `json:"error,omitempty"`
	BackoffDelay  time.Duration `json:"backoff_delay,omitempty"`
}

// AttemptState is the persisted state of the attempt saga of one Foo.
type AttemptState struct {
	AttemptID     string              `json:"attempt_id"`
	JobID         string              `json:"job_id"`
	FooID         string              `json:"foo_id"`
	JobType       string              `json:"job_type"`
	Path          string              `json:"path"`
	AttemptNumber int                 `json:"attempt_number"`
	MaxAttempts   int                 `json:"max_attempts"`
	Status        state.AttemptStatus `json:"status"`
	DispatchedAt  time.Time           `json:"dispatched_at"`
	DeadlineAt    time.Time           `json:"deadline_at"`
	DeadlineToken string              `json:"deadline_token,omitempty"`
	BackoffDelay  time.Duration       `json:"backoff_delay,omitempty"`
	NextAttemptAt *time.Time          `json:"next_attempt_at,omitempty"`
	RetryToken    string              `json:"retry_token,omitempty"`
	LastError     string              `json:"last_error,omitempty"`
	History       []AttemptRecord     `json:"history"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func (s *AttemptState) CurrentState() string {
	return s.Status.String()
}

// NewAttempt creates the attempt saga for a Foo and dispatches attempt #1.
func NewAttempt(m StartAttempt, policy RetryPolicy, now time.Time) (*AttemptState, Transition) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	s := &AttemptState{
		AttemptID:   AttemptID(m.FooID),
		JobID:       m.JobID,
		FooID:       m.FooID,
		JobType:     m.JobType,
		Path:        m.Path,
		MaxAttempts: maxAttempts,
		Status:      state.AttemptPending,
	}
	t := Transition{Changed: true}
	s.dispatch(&t, 1, policy, now)
	return s, t
}

// HandleAttempt applies msg to an existing attempt saga.
func HandleAttempt(s *AttemptState, msg Message, policy RetryPolicy, now time.Time) (Transition, error) {
	switch m := msg.(type) {
	case StartAttempt:
		return Transition{}, nil
	case TranscodeCompleted:
		if !s.inFlight(m.AttemptNumber) {
			return Transition{}, nil
		}
		var t Transition
		t.Cancel = append(t.Cancel, s.DeadlineToken)
		if m.Success {
			s.succeed(&t, now)
			return t, nil
		}
		s.fail(&t, Classify(m.ErrorKind), failureMessage(m.TranscodeCompleted), policy, now)
		return t, nil
	case AttemptDeadlineElapsed:
		if !s.inFlight(m.AttemptNumber) {
			return Transition{}, nil
		}
		var t Transition
		s.fail(&t, state.OutcomeTransientFailure, deadlineElapsedError, policy, now)
		return t, nil
	case AttemptRetryDue:
		if s.Status != state.AttemptTransientFailure || m.AttemptNumber != s.AttemptNumber+1 {
			return Transition{}, nil
		}
		t := Transition{Changed: true}
		s.moveTo(state.AttemptPending)
		s.dispatch(&t, m.AttemptNumber, policy, now)
		return t, nil
	}
	return Transition{}, fmt.Errorf("%w: %s for attempt saga", ErrUnknownMessage, msg.Kind())
}

// Classify maps a worker error kind onto an attempt outcome. Anything not
// explicitly permanent is retried.
func Classify(kind types.ErrorKind) state.Outcome {
	if kind == types.ErrorKindPermanent {
		return state.OutcomePermanentFailure
	}
	return state.OutcomeTransientFailure
}

func failureMessage(m types.TranscodeCompleted) string {
	if m.Error != "" {
		return m.Error
	}
	if m.ErrorKind != types.ErrorKindNone {
		return string(m.ErrorKind) + " worker failure"
	}
	return "worker failure"
}

func (s *AttemptState) inFlight(attemptNumber int) bool {
	return s.Status == state.AttemptDispatched && attemptNumber == s.AttemptNumber
}

func (s *AttemptState) dispatch(t *Transition, n int, policy RetryPolicy, now time.Time) {
	s.AttemptNumber = n
	s.moveTo(state.AttemptDispatched)
	s.DispatchedAt = now
	s.DeadlineAt = now.Add(policy.AttemptTimeout)
	s.DeadlineToken = fmt.Sprintf("attempt-deadline:%s:%d", s.AttemptID, n)
	s.NextAttemptAt = nil
	s.RetryToken = ""
	s.UpdatedAt = now
	s.History = append(s.History, AttemptRecord{
		AttemptNumber: n,
		Outcome:       state.OutcomePending,
		DispatchedAt:  now,
	})

	t.send(fmt.Sprintf("dispatch-transcode:%s:%d", s.FooID, n), s.AttemptID, DispatchTranscode{types.DispatchTranscode{
		JobID:         s.JobID,
		FooID:         s.FooID,
		AttemptNumber: n,
		Path:          s.Path,
		JobType:       s.JobType,
	}})
	t.send(fmt.Sprintf("attempt-started:%s:%d", s.FooID, n), s.JobID, AttemptStarted{
		JobID:         s.JobID,
		FooID:         s.FooID,
		AttemptNumber: n,
		DispatchedAt:  now,
	})
	t.schedule(s.DeadlineToken, s.AttemptID, AttemptDeadlineElapsed{
		FooID:         s.FooID,
		AttemptNumber: n,
	}, s.DeadlineAt)
}

func (s *AttemptState) succeed(t *Transition, now time.Time) {
	s.moveTo(state.AttemptSucceeded)
	s.LastError = ""
	s.record(state.OutcomeSuccess, "", 0, now)
	s.resolve(t, state.OutcomeSuccess, now)
}

func (s *AttemptState) fail(t *Transition, outcome state.Outcome, reason string, policy RetryPolicy, now time.Time) {
	s.LastError = reason
	if outcome == state.OutcomeTransientFailure && s.AttemptNumber < s.MaxAttempts {
		delay := time.Duration(0)
		if policy.Backoff != nil {
			delay = policy.Backoff.Delay(s.AttemptNumber)
		}
		next := now.Add(delay)
		s.moveTo(state.AttemptTransientFailure)
		s.BackoffDelay = delay
		s.NextAttemptAt = &next
		s.RetryToken = fmt.Sprintf("attempt-retry:%s:%d", s.AttemptID, s.AttemptNumber+1)
		s.UpdatedAt = now
		s.record(state.OutcomeTransientFailure, reason, delay, now)

		t.Changed = true
		t.schedule(s.RetryToken, s.AttemptID, AttemptRetryDue{
			FooID:         s.FooID,
			AttemptNumber: s.AttemptNumber + 1,
		}, next)
		return
	}

	s.moveTo(state.AttemptPermanentFailure)
	s.record(state.OutcomePermanentFailure, reason, 0, now)
	s.resolve(t, state.OutcomePermanentFailure, now)
}

func (s *AttemptState) record(outcome state.Outcome, reason string, delay time.Duration, now time.Time) {
	if len(s.History) == 0 {
		return
	}
	last := &s.History[len(s.History)-1]
	last.Outcome = outcome
	last.Error = reason
	last.BackoffDelay = delay
	last.ResolvedAt = &now
}

// resolve reports a terminal outcome to the job and frees the admission slot.
func (s *AttemptState) resolve(t *Transition, outcome state.Outcome, now time.Time) {
	s.UpdatedAt = now
	t.Changed = true
	t.Finalized = true
	t.send(fmt.Sprintf("attempt-resolved:%s", s.FooID), s.JobID, AttemptResolved{
		JobID:         s.JobID,
		FooID:         s.FooID,
		AttemptNumber: s.AttemptNumber,
		Outcome:       outcome,
		Error:         s.LastError,
	})
	t.send(fmt.Sprintf("slot-released:%s", s.FooID), JobTypeID(s.JobType), SlotReleased{
		JobType: s.JobType,
		JobID:   s.JobID,
		FooID:   s.FooID,
	})
}

func (s *AttemptState) moveTo(to state.AttemptStatus) {
	if state.IsValidTransition(state.AttemptTransitions, s.Status, to) {
		s.Status = to
	}
}
