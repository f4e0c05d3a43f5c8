package scheduler

import (
	"context"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/saga"
)

// Entry is a scheduled envelope that has come due.
type Entry struct {
	Token     string
	Envelope  saga.Envelope
	DeliverAt time.Time

	// ClaimedUntil is when a claimed entry becomes due again if it is not acked.
	ClaimedUntil time.Time
}

// DelayedScheduler holds envelopes until their delivery time. The token of
// an entry is the envelope's MessageID, so scheduling the same message twice
// replaces the earlier entry instead of duplicating it.
type DelayedScheduler interface {
	ScheduleAt(ctx context.Context, env saga.Envelope, at time.Time) (string, error)

	// Cancel removes a pending entry. Unknown or already delivered tokens are ignored.
	Cancel(ctx context.Context, token string) error

	// Claim leases up to limit entries whose time is at or before now. A
	// claimed entry stays in the schedule, hidden until now+lease, so it is
	// handed out again if the claimer never acks it.
	Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Entry, error)

	// Ack removes a claimed entry after its envelope was published. Entries
	// rescheduled or cancelled since the claim are left untouched.
	Ack(ctx context.Context, entry Entry) error
}
