package saga

import (
	"testing"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/backoff"
	"github.com/RezaEskandarii/jobsaga/internal/state"
	"github.com/RezaEskandarii/jobsaga/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		AttemptTimeout: 10 * time.Minute,
		Backoff:        backoff.NewExponential(5*time.Second, time.Minute, 0),
	}
}

func newTestAttempt(t *testing.T) (*AttemptState, Transition) {
	t.Helper()
	s, tr := NewAttempt(StartAttempt{JobID: "job-1", FooID: "F1", JobType: "mp4", Path: "/in.mp4"}, testPolicy(), testNow)
	require.NotNil(t, s)
	return s, tr
}

func completed(n int, success bool, kind types.ErrorKind) TranscodeCompleted {
	return TranscodeCompleted{types.TranscodeCompleted{FooID: "F1", AttemptNumber: n, Success: success, ErrorKind: kind}}
}

func TestNewAttempt_DispatchesFirstAttempt(t *testing.T) {
	s, tr := newTestAttempt(t)

	assert.Equal(t, 1, s.AttemptNumber)
	assert.Equal(t, state.AttemptDispatched, s.Status)
	assert.Equal(t, testNow.Add(10*time.Minute), s.DeadlineAt)
	assert.Equal(t, []MessageKind{KindDispatchTranscode, KindAttemptStarted}, kinds(tr.Send))

	dispatch := tr.Send[0].Message.(DispatchTranscode)
	assert.Equal(t, 1, dispatch.AttemptNumber)
	assert.Equal(t, "/in.mp4", dispatch.Path)

	require.Len(t, tr.Schedule, 1)
	assert.Equal(t, s.DeadlineToken, tr.Schedule[0].MessageID)
	assert.Equal(t, s.DeadlineAt, tr.Schedule[0].DeliverAt)
	assert.Equal(t, KindAttemptDeadlineElapsed, tr.Schedule[0].Message.Kind())
}

func TestHandleAttempt_SuccessResolves(t *testing.T) {
	s, _ := newTestAttempt(t)
	token := s.DeadlineToken

	tr, err := HandleAttempt(s, completed(1, true, ""), testPolicy(), testNow)
	require.NoError(t, err)
	assert.True(t, tr.Finalized)
	assert.Equal(t, state.AttemptSucceeded, s.Status)
	assert.Equal(t, []string{token}, tr.Cancel)
	assert.Equal(t, []MessageKind{KindAttemptResolved, KindSlotReleased}, kinds(tr.Send))
	assert.Equal(t, state.OutcomeSuccess, tr.Send[0].Message.(AttemptResolved).Outcome)
	assert.Equal(t, JobTypeID("mp4"), tr.Send[1].CorrelationID)
}

func TestHandleAttempt_StaleCompletionDiscarded(t *testing.T) {
	s, _ := newTestAttempt(t)
	before := *s

	tr, err := HandleAttempt(s, completed(2, true, ""), testPolicy(), testNow)
	require.NoError(t, err)
	assert.True(t, tr.Noop())
	assert.Equal(t, before.Status, s.Status)
	assert.Equal(t, before.AttemptNumber, s.AttemptNumber)
}

func TestHandleAttempt_TransientFailureSchedulesRetry(t *testing.T) {
	s, _ := newTestAttempt(t)

	tr, err := HandleAttempt(s, completed(1, false, types.ErrorKindTransient), testPolicy(), testNow)
	require.NoError(t, err)
	assert.False(t, tr.Finalized)
	assert.Equal(t, state.AttemptTransientFailure, s.Status)
	assert.Equal(t, 5*time.Second, s.BackoffDelay)
	assert.Empty(t, tr.Send)
	require.Len(t, tr.Schedule, 1)
	retry := tr.Schedule[0]
	assert.Equal(t, testNow.Add(5*time.Second), retry.DeliverAt)
	assert.Equal(t, AttemptRetryDue{FooID: "F1", AttemptNumber: 2}, retry.Message)

	tr, err = HandleAttempt(s, retry.Message, testPolicy(), testNow.Add(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, s.AttemptNumber)
	assert.Equal(t, state.AttemptDispatched, s.Status)
	assert.Equal(t, 2, tr.Send[0].Message.(DispatchTranscode).AttemptNumber)
	require.Len(t, s.History, 2)
	assert.Equal(t, state.OutcomeTransientFailure, s.History[0].Outcome)
}

func TestHandleAttempt_DuplicateRetryDueIgnored(t *testing.T) {
	s, _ := newTestAttempt(t)
	_, _ = HandleAttempt(s, completed(1, false, types.ErrorKindTransient), testPolicy(), testNow)
	_, _ = HandleAttempt(s, AttemptRetryDue{FooID: "F1", AttemptNumber: 2}, testPolicy(), testNow)

	tr, err := HandleAttempt(s, AttemptRetryDue{FooID: "F1", AttemptNumber: 2}, testPolicy(), testNow)
	require.NoError(t, err)
	assert.True(t, tr.Noop())
	assert.Equal(t, 2, s.AttemptNumber)
}

func TestHandleAttempt_PermanentFailureDoesNotRetry(t *testing.T) {
	s, _ := newTestAttempt(t)

	tr, err := HandleAttempt(s, completed(1, false, types.ErrorKindPermanent), testPolicy(), testNow)
	require.NoError(t, err)
	assert.True(t, tr.Finalized)
	assert.Equal(t, state.AttemptPermanentFailure, s.Status)
	assert.Empty(t, tr.Schedule)
	assert.Equal(t, state.OutcomePermanentFailure, tr.Send[0].Message.(AttemptResolved).Outcome)
}

func TestHandleAttempt_ExhaustionResolvesPermanentOnce(t *testing.T) {
	s, _ := newTestAttempt(t)
	policy := testPolicy()

	var dispatches, resolutions int
	for n := 1; n <= 3; n++ {
		tr, err := HandleAttempt(s, completed(n, false, types.ErrorKindTransient), policy, testNow)
		require.NoError(t, err)
		for _, out := range tr.Send {
			if _, ok := out.Message.(AttemptResolved); ok {
				resolutions++
			}
		}
		for _, sch := range tr.Schedule {
			tr, err = HandleAttempt(s, sch.Message, policy, sch.DeliverAt)
			require.NoError(t, err)
			dispatches += len(tr.Send) / 2
		}
	}

	assert.Equal(t, state.AttemptPermanentFailure, s.Status)
	assert.Equal(t, 3, s.AttemptNumber)
	assert.Equal(t, 2, dispatches)
	assert.Equal(t, 1, resolutions)

	tr, err := HandleAttempt(s, completed(3, false, types.ErrorKindTransient), policy, testNow)
	require.NoError(t, err)
	assert.True(t, tr.Noop())
}

func TestHandleAttempt_DeadlineTreatedAsTransient(t *testing.T) {
	s, _ := newTestAttempt(t)

	tr, err := HandleAttempt(s, AttemptDeadlineElapsed{FooID: "F1", AttemptNumber: 1}, testPolicy(), s.DeadlineAt)
	require.NoError(t, err)
	assert.Equal(t, state.AttemptTransientFailure, s.Status)
	assert.Empty(t, tr.Cancel)
	assert.Equal(t, deadlineElapsedError, s.LastError)
	require.Len(t, tr.Schedule, 1)
	assert.Equal(t, 2, tr.Schedule[0].Message.(AttemptRetryDue).AttemptNumber)
}

func TestHandleAttempt_StaleDeadlineIgnored(t *testing.T) {
	s, _ := newTestAttempt(t)
	_, _ = HandleAttempt(s, completed(1, true, ""), testPolicy(), testNow)

	tr, err := HandleAttempt(s, AttemptDeadlineElapsed{FooID: "F1", AttemptNumber: 1}, testPolicy(), testNow)
	require.NoError(t, err)
	assert.True(t, tr.Noop())
	assert.Equal(t, state.AttemptSucceeded, s.Status)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, state.OutcomePermanentFailure, Classify(types.ErrorKindPermanent))
	assert.Equal(t, state.OutcomeTransientFailure, Classify(types.ErrorKindTransient))
	assert.Equal(t, state.OutcomeTransientFailure, Classify(types.ErrorKindNone))
}
