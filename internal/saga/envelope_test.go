package saga

import (
	"testing"

	"github.com/RezaEskandarii/jobsaga/internal/state"
	"github.com/RezaEskandarii/jobsaga/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_DecodeReturnsValueTypes(t *testing.T) {
	msg := TranscodeCompleted{types.TranscodeCompleted{
		FooID:         "F1",
		AttemptNumber: 2,
		ErrorKind:     types.ErrorKindPermanent,
		Error:         "codec missing",
	}}
	env, err := NewEnvelope("m-1", AttemptID("F1"), msg, testNow)
	require.NoError(t, err)

	data, err := env.Marshal()
	require.NoError(t, err)
	decoded, err := UnmarshalEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, DestinationJobAttempt, decoded.Destination())

	got, err := Decode(decoded)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestEnvelope_RejectsMissingCorrelation(t *testing.T) {
	_, err := UnmarshalEnvelope([]byte(`{"kind":"slot-released","payload":{}}`))
	assert.Error(t, err)

	_, err = UnmarshalEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode(Envelope{Kind: "nope", CorrelationID: "x", Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestDestinationOf(t *testing.T) {
	assert.Equal(t, state.KindJob, DestinationOf(KindAttemptResolved).SagaKind())
	assert.Equal(t, state.KindJobType, DestinationOf(KindSlotReleased).SagaKind())
	assert.True(t, DestinationOf(KindAttemptRetryDue).IsSagaBound())
	assert.False(t, DestinationOf(KindDispatchTranscode).IsSagaBound())
	assert.False(t, DestinationOf(KindJobCompleted).IsSagaBound())
}
