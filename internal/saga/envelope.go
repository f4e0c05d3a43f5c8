package saga

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrUnknownMessage = errors.New("unknown message kind")

// Envelope is the transport form of a Message.
type Envelope struct {
	MessageID     string          `json:"message_id"`
	Kind          MessageKind     `json:"kind"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
	SentAt        time.Time       `json:"sent_at"`
}

// NewEnvelope wraps msg for delivery to the saga (or external consumer)
// identified by correlationID.
func NewEnvelope(messageID, correlationID string, msg Message, sentAt time.Time) (Envelope, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", msg.Kind(), err)
	}
	return Envelope{
		MessageID:     messageID,
		Kind:          msg.Kind(),
		CorrelationID: correlationID,
		Payload:       payload,
		SentAt:        sentAt,
	}, nil
}

func (e Envelope) Destination() Destination {
	return DestinationOf(e.Kind)
}

// Marshal encodes the envelope for the wire.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Kind == "" || env.CorrelationID == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing kind or correlation id")
	}
	return env, nil
}

// Decode returns the typed message carried by the envelope.
func Decode(env Envelope) (Message, error) {
	var msg Message
	switch env.Kind {
	case KindConvertVideoRequest:
		msg = &ConvertVideo{}
	case KindAdmissionGranted:
		msg = &AdmissionGranted{}
	case KindAttemptStarted:
		msg = &AttemptStarted{}
	case KindAttemptResolved:
		msg = &AttemptResolved{}
	case KindAdmissionRequested:
		msg = &AdmissionRequested{}
	case KindSlotReleased:
		msg = &SlotReleased{}
	case KindStartAttempt:
		msg = &StartAttempt{}
	case KindTranscodeCompleted:
		msg = &TranscodeCompleted{}
	case KindAttemptDeadlineElapsed:
		msg = &AttemptDeadlineElapsed{}
	case KindAttemptRetryDue:
		msg = &AttemptRetryDue{}
	case KindDispatchTranscode:
		msg = &DispatchTranscode{}
	case KindJobCompleted:
		msg = &JobCompleted{}
	case KindJobFailed:
		msg = &JobFailed{}
	case KindJobStatus:
		msg = &JobStatus{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Kind)
	}
	if err := json.Unmarshal(env.Payload, msg); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	return deref(msg), nil
}

func deref(msg Message) Message {
	switch m := msg.(type) {
	case *ConvertVideo:
		return *m
	case *AdmissionGranted:
		return *m
	case *AttemptStarted:
		return *m
	case *AttemptResolved:
		return *m
	case *AdmissionRequested:
		return *m
	case *SlotReleased:
		return *m
	case *StartAttempt:
		return *m
	case *TranscodeCompleted:
		return *m
	case *AttemptDeadlineElapsed:
		return *m
	case *AttemptRetryDue:
		return *m
	case *DispatchTranscode:
		return *m
	case *JobCompleted:
		return *m
	case *JobFailed:
		return *m
	case *JobStatus:
		return *m
	}
	return msg
}

// Outgoing is a message a transition wants delivered.
type Outgoing struct {
	MessageID     string
	CorrelationID string
	Message       Message
}

// Scheduled is a message to deliver at or after DeliverAt. MessageID doubles
// as the scheduler cancellation token.
type Scheduled struct {
	Outgoing
	DeliverAt time.Time
}

// Transition is the result of applying one event to a saga instance.
type Transition struct {
	// Changed is false when the event was discarded as stale or duplicate.
	Changed bool
	// Finalized is set once the instance reached a terminal state.
	Finalized bool

	Send     []Outgoing
	Schedule []Scheduled
	Cancel   []string
}

func (t *Transition) send(messageID, correlationID string, msg Message) {
	t.Send = append(t.Send, Outgoing{MessageID: messageID, CorrelationID: correlationID, Message: msg})
}

func (t *Transition) schedule(messageID, correlationID string, msg Message, at time.Time) {
	t.Schedule = append(t.Schedule, Scheduled{
		Outgoing:  Outgoing{MessageID: messageID, CorrelationID: correlationID, Message: msg},
		DeliverAt: at,
	})
}

// Noop reports whether the transition neither changed state nor emitted anything.
func (t Transition) Noop() bool {
	return !t.Changed && len(t.Send) == 0 && len(t.Schedule) == 0 && len(t.Cancel) == 0
}

// Envelope converts an outgoing message into its transport form.
func (o Outgoing) Envelope(sentAt time.Time) (Envelope, error) {
	return NewEnvelope(o.MessageID, o.CorrelationID, o.Message, sentAt)
}
