package saga

import (
	"fmt"
	"time"
)

// Ticket is a Foo waiting for, or holding, an admission slot.
type Ticket struct {
	JobID       string    `json:"job_id"`
	FooID       string    `json:"foo_id"`
	RequestedAt time.Time `json:"requested_at"`
	GrantedAt   time.Time `json:"granted_at,omitempty"`
}

// JobTypeState is the admission controller of one job type: a counting
// semaphore with a FIFO wait queue.
type JobTypeState struct {
	JobType          string    `json:"job_type"`
	ConcurrencyLimit int       `json:"concurrency_limit"`
	InFlight         int       `json:"in_flight"`
	Active           []Ticket  `json:"active"`
	Queue            []Ticket  `json:"queue"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (s *JobTypeState) CurrentState() string {
	if s.InFlight >= s.ConcurrencyLimit {
		return "saturated"
	}
	return "accepting"
}

func NewJobType(jobType string, limit int, now time.Time) *JobTypeState {
	return &JobTypeState{
		JobType:          jobType,
		ConcurrencyLimit: limit,
		UpdatedAt:        now,
	}
}

// HandleJobType applies msg to the admission controller. limit is the
// currently configured concurrency ceiling of the job type.
func HandleJobType(s *JobTypeState, msg Message, limit int, now time.Time) (Transition, error) {
	var t Transition
	switch m := msg.(type) {
	case AdmissionRequested:
		if s.holds(m.FooID) || s.waiting(m.FooID) {
			return t, nil
		}
		s.Queue = append(s.Queue, Ticket{JobID: m.JobID, FooID: m.FooID, RequestedAt: now})
		t.Changed = true
	case SlotReleased:
		if i := s.activeIndex(m.FooID); i >= 0 {
			s.Active = append(s.Active[:i], s.Active[i+1:]...)
			s.InFlight--
			t.Changed = true
		} else if i := s.queueIndex(m.FooID); i >= 0 {
			s.Queue = append(s.Queue[:i], s.Queue[i+1:]...)
			t.Changed = true
		}
	default:
		return t, fmt.Errorf("%w: %s for job type saga", ErrUnknownMessage, msg.Kind())
	}

	if limit > 0 && limit != s.ConcurrencyLimit {
		s.ConcurrencyLimit = limit
		t.Changed = true
	}
	s.grant(&t, now)
	if t.Changed {
		s.UpdatedAt = now
	}
	return t, nil
}

// grant admits queued tickets in arrival order while slots are free.
func (s *JobTypeState) grant(t *Transition, now time.Time) {
	for s.InFlight < s.ConcurrencyLimit && len(s.Queue) > 0 {
		ticket := s.Queue[0]
		s.Queue = s.Queue[1:]
		ticket.GrantedAt = now
		s.Active = append(s.Active, ticket)
		s.InFlight++
		t.Changed = true
		t.send("admission-granted:"+ticket.FooID, ticket.JobID, AdmissionGranted{
			JobType: s.JobType,
			JobID:   ticket.JobID,
			FooID:   ticket.FooID,
		})
	}
}

func (s *JobTypeState) holds(fooID string) bool {
	return s.activeIndex(fooID) >= 0
}

func (s *JobTypeState) waiting(fooID string) bool {
	return s.queueIndex(fooID) >= 0
}

func (s *JobTypeState) activeIndex(fooID string) int {
	for i, ticket := range s.Active {
		if ticket.FooID == fooID {
			return i
		}
	}
	return -1
}

func (s *JobTypeState) queueIndex(fooID string) int {
	for i, ticket := range s.Queue {
		if ticket.FooID == fooID {
			return i
		}
	}
	return -1
}
