package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/saga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

const lease = 30 * time.Second

func envelope(id string) saga.Envelope {
	return saga.Envelope{MessageID: id, Kind: saga.KindAttemptRetryDue, CorrelationID: "attempt-1", Payload: []byte(`{}`)}
}

func TestMemoryScheduler_ClaimInTimeOrder(t *testing.T) {
	s := NewMemoryScheduler()
	ctx := context.Background()

	_, _ = s.ScheduleAt(ctx, envelope("b"), base.Add(2*time.Second))
	_, _ = s.ScheduleAt(ctx, envelope("a"), base.Add(time.Second))
	_, _ = s.ScheduleAt(ctx, envelope("c"), base.Add(time.Minute))

	due, err := s.Claim(ctx, base.Add(5*time.Second), 10, lease)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "a", due[0].Token)
	assert.Equal(t, "b", due[1].Token)
	assert.Equal(t, base.Add(time.Second), due[0].DeliverAt)
	assert.Equal(t, base.Add(5*time.Second+lease), due[0].ClaimedUntil)

	due, _ = s.Claim(ctx, base.Add(5*time.Second), 10, lease)
	assert.Empty(t, due, "claimed entries are hidden")
	assert.Len(t, s.Pending(), 3)
}

func TestMemoryScheduler_AckRemovesClaimedEntry(t *testing.T) {
	s := NewMemoryScheduler()
	ctx := context.Background()

	_, _ = s.ScheduleAt(ctx, envelope("a"), base)
	due, err := s.Claim(ctx, base, 10, lease)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, s.Ack(ctx, due[0]))
	assert.Empty(t, s.Pending())
	require.NoError(t, s.Ack(ctx, due[0]))
}

func TestMemoryScheduler_UnackedEntryComesDueAgain(t *testing.T) {
	s := NewMemoryScheduler()
	ctx := context.Background()

	_, _ = s.ScheduleAt(ctx, envelope("a"), base)
	first, _ := s.Claim(ctx, base, 10, lease)
	require.Len(t, first, 1)

	again, err := s.Claim(ctx, base.Add(lease), 10, lease)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "a", again[0].Token)

	require.NoError(t, s.Ack(ctx, first[0]), "stale claim")
	assert.Len(t, s.Pending(), 1)
	require.NoError(t, s.Ack(ctx, again[0]))
	assert.Empty(t, s.Pending())
}

func TestMemoryScheduler_AckKeepsRescheduledEntry(t *testing.T) {
	s := NewMemoryScheduler()
	ctx := context.Background()

	_, _ = s.ScheduleAt(ctx, envelope("a"), base)
	due, _ := s.Claim(ctx, base, 10, lease)
	require.Len(t, due, 1)

	_, _ = s.ScheduleAt(ctx, envelope("a"), base.Add(time.Hour))
	require.NoError(t, s.Ack(ctx, due[0]))
	pending := s.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, base.Add(time.Hour), pending[0].DeliverAt)
}

func TestMemoryScheduler_RescheduleReplaces(t *testing.T) {
	s := NewMemoryScheduler()
	ctx := context.Background()

	token, err := s.ScheduleAt(ctx, envelope("a"), base.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "a", token)
	_, _ = s.ScheduleAt(ctx, envelope("a"), base.Add(time.Hour))

	due, _ := s.Claim(ctx, base.Add(time.Minute), 10, lease)
	assert.Empty(t, due)
	assert.Len(t, s.Pending(), 1)
}

func TestMemoryScheduler_CancelAndLimit(t *testing.T) {
	s := NewMemoryScheduler()
	ctx := context.Background()

	_, _ = s.ScheduleAt(ctx, envelope("a"), base)
	_, _ = s.ScheduleAt(ctx, envelope("b"), base)
	_, _ = s.ScheduleAt(ctx, envelope("c"), base)
	require.NoError(t, s.Cancel(ctx, "b"))
	require.NoError(t, s.Cancel(ctx, "missing"))

	due, _ := s.Claim(ctx, base, 1, lease)
	require.Len(t, due, 1)
	assert.Equal(t, "a", due[0].Token)
	due, _ = s.Claim(ctx, base, 0, lease)
	require.Len(t, due, 1)
	assert.Equal(t, "c", due[0].Token)
}
