package saga

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(s *JobTypeState, fooID string, limit int) Transition {
	tr, _ := HandleJobType(s, AdmissionRequested{JobType: s.JobType, JobID: "job-" + fooID, FooID: fooID}, limit, testNow)
	return tr
}

func release(s *JobTypeState, fooID string, limit int) Transition {
	tr, _ := HandleJobType(s, SlotReleased{JobType: s.JobType, FooID: fooID}, limit, testNow)
	return tr
}

func grantedFoos(tr Transition) []string {
	var ids []string
	for _, out := range tr.Send {
		if g, ok := out.Message.(AdmissionGranted); ok {
			ids = append(ids, g.FooID)
		}
	}
	return ids
}

func TestJobType_GrantsImmediatelyUnderLimit(t *testing.T) {
	s := NewJobType("mp4", 2, testNow)

	tr := request(s, "F1", 2)
	assert.Equal(t, []string{"F1"}, grantedFoos(tr))
	assert.Equal(t, "job-F1", tr.Send[0].CorrelationID)
	assert.Equal(t, AdmissionGranted{JobType: "mp4", JobID: "job-F1", FooID: "F1"}, tr.Send[0].Message)
	assert.Equal(t, 1, s.InFlight)
	assert.Empty(t, s.Queue)
}

func TestJobType_QueuesFIFOAtLimit(t *testing.T) {
	s := NewJobType("mp4", 1, testNow)

	request(s, "F1", 1)
	assert.Empty(t, grantedFoos(request(s, "F2", 1)))
	assert.Empty(t, grantedFoos(request(s, "F3", 1)))
	assert.Equal(t, 1, s.InFlight)
	require.Len(t, s.Queue, 2)
	assert.Equal(t, "saturated", s.CurrentState())

	assert.Equal(t, []string{"F2"}, grantedFoos(release(s, "F1", 1)))
	assert.Equal(t, []string{"F3"}, grantedFoos(release(s, "F2", 1)))
	assert.Empty(t, grantedFoos(release(s, "F3", 1)))
	assert.Equal(t, 0, s.InFlight)
	assert.Equal(t, "accepting", s.CurrentState())
}

func TestJobType_DuplicateRequestIsNoop(t *testing.T) {
	s := NewJobType("mp4", 1, testNow)
	request(s, "F1", 1)
	request(s, "F2", 1)

	assert.True(t, request(s, "F1", 1).Noop())
	assert.True(t, request(s, "F2", 1).Noop())
	assert.Equal(t, 1, s.InFlight)
	assert.Len(t, s.Queue, 1)
}

func TestJobType_DuplicateReleaseIsNoop(t *testing.T) {
	s := NewJobType("mp4", 2, testNow)
	request(s, "F1", 2)
	release(s, "F1", 2)

	assert.True(t, release(s, "F1", 2).Noop())
	assert.Equal(t, 0, s.InFlight)
}

func TestJobType_RaisedLimitGrantsWaiting(t *testing.T) {
	s := NewJobType("mp4", 1, testNow)
	request(s, "F1", 1)
	request(s, "F2", 1)
	request(s, "F3", 1)

	tr := request(s, "F4", 3)
	assert.Equal(t, []string{"F2", "F3"}, grantedFoos(tr))
	assert.Equal(t, 3, s.InFlight)
	assert.Equal(t, 3, s.ConcurrencyLimit)
}

func TestJobType_NeverExceedsLimit(t *testing.T) {
	const limit = 3
	s := NewJobType("mkv", limit, testNow)

	for i := 0; i < 20; i++ {
		request(s, fmt.Sprintf("F%d", i), limit)
		assert.LessOrEqual(t, s.InFlight, limit)
	}
	for i := 0; i < 20; i++ {
		release(s, fmt.Sprintf("F%d", i), limit)
		assert.LessOrEqual(t, s.InFlight, limit)
		assert.Equal(t, len(s.Active), s.InFlight)
	}
	assert.Equal(t, 0, s.InFlight)
	assert.Empty(t, s.Queue)
}

func TestJobType_UnknownMessage(t *testing.T) {
	s := NewJobType("mp4", 1, testNow)
	_, err := HandleJobType(s, AttemptRetryDue{}, 1, testNow)
	assert.ErrorIs(t, err, ErrUnknownMessage)
}
