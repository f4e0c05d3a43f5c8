package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/backoff"
	"github.com/RezaEskandarii/jobsaga/internal/saga"
	"github.com/RezaEskandarii/jobsaga/internal/scheduler"
	"github.com/RezaEskandarii/jobsaga/internal/state"
	"github.com/RezaEskandarii/jobsaga/internal/store"
	"github.com/RezaEskandarii/jobsaga/types/config"
	"github.com/rs/zerolog"
)

// ErrMalformedMessage marks an envelope that can never be processed.
var ErrMalformedMessage = errors.New("malformed message")

// Publisher delivers envelopes to their destination queue.
type Publisher interface {
	Publish(ctx context.Context, env saga.Envelope) error
}

// EnvelopeHandler processes one saga-bound envelope.
type EnvelopeHandler interface {
	Handle(ctx context.Context, env saga.Envelope) error
}

// Clock returns the current time.
type Clock func() time.Time

type sagaState interface {
	CurrentState() string
}

// Orchestrator applies envelopes to saga instances. Each envelope is handled
// in one store transaction: the instance is locked, the transition computed,
// scheduler requests and outgoing messages issued, and the new state saved.
type Orchestrator struct {
	store     store.SagaStore
	scheduler scheduler.DelayedScheduler
	publisher Publisher
	cfg       *config.JobServiceConfig
	now       Clock
	logger    zerolog.Logger
}

type OrchestratorOption func(*Orchestrator)

func WithClock(now Clock) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func NewOrchestrator(sagaStore store.SagaStore, delayed scheduler.DelayedScheduler, publisher Publisher, cfg *config.JobServiceConfig, logger zerolog.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:     sagaStore,
		scheduler: delayed,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle applies env to the saga it is addressed to.
func (o *Orchestrator) Handle(ctx context.Context, env saga.Envelope) error {
	_, err := o.apply(ctx, env)
	return err
}

func (o *Orchestrator) apply(ctx context.Context, env saga.Envelope) (sagaState, error) {
	msg, err := saga.Decode(env)
	if err != nil {
		return nil, wrapMalformed(err)
	}

	switch env.Destination() {
	case saga.DestinationJob:
		return run(ctx, o, o.jobSaga(), env, msg)
	case saga.DestinationJobType:
		return run(ctx, o, o.jobTypeSaga(), env, msg)
	case saga.DestinationJobAttempt:
		return run(ctx, o, o.attemptSaga(), env, msg)
	}
	return nil, fmt.Errorf("%w: %s is not addressed to a saga", ErrMalformedMessage, env.Kind)
}

// sagaDefinition binds a saga kind to its pure transition functions.
// create returns ok=false when msg cannot start a new instance; missing then
// answers msg on behalf of the absent instance. Instances of a keepFinished
// kind are never deleted on finalize, so a late duplicate of their creating
// message finds them; the retention sweeper removes them later.
type sagaDefinition[S sagaState] struct {
	kind         state.SagaKind
	keepFinished bool
	create       func(correlationID string, msg saga.Message, now time.Time) (s S, t saga.Transition, ok bool, err error)
	handle       func(s S, msg saga.Message, now time.Time) (saga.Transition, error)
	missing      func(msg saga.Message) saga.Transition
}

func (o *Orchestrator) jobSaga() sagaDefinition[*saga.JobState] {
	return sagaDefinition[*saga.JobState]{
		kind: state.KindJob,
		create: func(correlationID string, msg saga.Message, now time.Time) (*saga.JobState, saga.Transition, bool, error) {
			m, ok := msg.(saga.ConvertVideo)
			if !ok {
				return nil, saga.Transition{}, false, nil
			}
			s, t, err := saga.NewJob(m.ConvertVideoRequest, now)
			if err != nil {
				return nil, t, true, err
			}
			if s.JobID != correlationID {
				return nil, t, true, fmt.Errorf("%w: correlation id %s does not match job %s", ErrMalformedMessage, correlationID, s.JobID)
			}
			return s, t, true, nil
		},
		handle:  saga.HandleJob,
		missing: saga.HandleMissingJob,
	}
}

func (o *Orchestrator) jobTypeSaga() sagaDefinition[*saga.JobTypeState] {
	return sagaDefinition[*saga.JobTypeState]{
		kind: state.KindJobType,
		create: func(_ string, msg saga.Message, now time.Time) (*saga.JobTypeState, saga.Transition, bool, error) {
			m, ok := msg.(saga.AdmissionRequested)
			if !ok {
				return nil, saga.Transition{}, false, nil
			}
			limit := o.cfg.ConcurrencyLimitFor(m.JobType)
			s := saga.NewJobType(m.JobType, limit, now)
			t, err := saga.HandleJobType(s, msg, limit, now)
			return s, t, true, err
		},
		handle: func(s *saga.JobTypeState, msg saga.Message, now time.Time) (saga.Transition, error) {
			return saga.HandleJobType(s, msg, o.cfg.ConcurrencyLimitFor(s.JobType), now)
		},
	}
}

func (o *Orchestrator) attemptSaga() sagaDefinition[*saga.AttemptState] {
	return sagaDefinition[*saga.AttemptState]{
		kind:         state.KindJobAttempt,
		keepFinished: true,
		create: func(_ string, msg saga.Message, now time.Time) (*saga.AttemptState, saga.Transition, bool, error) {
			m, ok := msg.(saga.StartAttempt)
			if !ok {
				return nil, saga.Transition{}, false, nil
			}
			s, t := saga.NewAttempt(m, o.RetryPolicy(m.JobType), now)
			return s, t, true, nil
		},
		handle: func(s *saga.AttemptState, msg saga.Message, now time.Time) (saga.Transition, error) {
			return saga.HandleAttempt(s, msg, o.RetryPolicy(s.JobType), now)
		},
	}
}

// RetryPolicy returns the attempt policy configured for a job type.
func (o *Orchestrator) RetryPolicy(jobType string) saga.RetryPolicy {
	retry := o.cfg.RetryFor(jobType)
	return saga.RetryPolicy{
		MaxAttempts:    retry.MaxAttempts,
		AttemptTimeout: retry.AttemptTimeout,
		Backoff:        backoff.NewExponential(retry.BaseDelay, retry.MaxDelay, retry.Jitter),
	}
}

func run[S sagaState](ctx context.Context, o *Orchestrator, def sagaDefinition[S], env saga.Envelope, msg saga.Message) (S, error) {
	var zero S
	now := o.now()
	log := o.logger.With().
		Str("saga", string(def.kind)).
		Str("kind", string(env.Kind)).
		Str("correlation_id", env.CorrelationID).
		Str("message_id", env.MessageID).
		Logger()

	tx, err := o.store.Begin(ctx)
	if err != nil {
		return zero, err
	}
	defer tx.Rollback()

	var (
		s       S
		t       saga.Transition
		created bool
	)

	instance, err := tx.LoadForUpdate(ctx, def.kind, env.CorrelationID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		var ok bool
		s, t, ok, err = def.create(env.CorrelationID, msg, now)
		if err != nil {
			return zero, err
		}
		if !ok {
			if def.missing != nil {
				t = def.missing(msg)
			}
			if t.Noop() {
				log.Debug().Msg("no saga instance for message, discarding")
				return zero, nil
			}
			if err := o.publish(ctx, t, now); err != nil {
				return zero, err
			}
			log.Debug().Int("sent", len(t.Send)).Msg("no saga instance for message, answered on its behalf")
			return zero, nil
		}
		instance = &store.SagaInstance{
			Kind:          def.kind,
			CorrelationID: env.CorrelationID,
			CreatedAt:     now,
		}
		if err := fill(instance, s, t, now); err != nil {
			return zero, err
		}
		err = tx.Create(ctx, instance)
		if errors.Is(err, store.ErrAlreadyExists) {
			// lost a creation race; the winner's row is now visible and locked for us
			if instance, err = tx.LoadForUpdate(ctx, def.kind, env.CorrelationID); err != nil {
				return zero, err
			}
			if s, t, err = load(def, instance, msg, now); err != nil {
				return zero, err
			}
		} else if err != nil {
			return zero, err
		} else {
			created = true
		}
	case err != nil:
		return zero, err
	default:
		if s, t, err = load(def, instance, msg, now); err != nil {
			return zero, err
		}
	}

	if t.Noop() {
		log.Debug().Str("state", s.CurrentState()).Msg("duplicate or stale message discarded")
		return s, nil
	}

	for _, token := range t.Cancel {
		if err := o.scheduler.Cancel(ctx, token); err != nil {
			return zero, fmt.Errorf("cancel scheduled %s: %w", token, err)
		}
	}
	for _, scheduled := range t.Schedule {
		out, err := scheduled.Envelope(now)
		if err != nil {
			return zero, err
		}
		if _, err := o.scheduler.ScheduleAt(ctx, out, scheduled.DeliverAt); err != nil {
			return zero, fmt.Errorf("schedule %s: %w", scheduled.MessageID, err)
		}
	}

	finalize := t.Finalized && o.cfg.FinalizeCompleted && !def.keepFinished
	switch {
	case finalize:
		if err := tx.Delete(ctx, def.kind, env.CorrelationID); err != nil {
			return zero, err
		}
	case !created && t.Changed:
		if err := fill(instance, s, t, now); err != nil {
			return zero, err
		}
		if err := tx.Save(ctx, instance); err != nil {
			return zero, err
		}
	}

	if err := o.publish(ctx, t, now); err != nil {
		return zero, err
	}

	if err := tx.Commit(); err != nil {
		return zero, fmt.Errorf("commit: %w", err)
	}

	event := log.Debug()
	if t.Finalized {
		event = log.Info()
	}
	event.Str("state", s.CurrentState()).
		Int("sent", len(t.Send)).
		Int("scheduled", len(t.Schedule)).
		Bool("finalized", t.Finalized).
		Msg("saga transition applied")
	return s, nil
}

func (o *Orchestrator) publish(ctx context.Context, t saga.Transition, now time.Time) error {
	for _, outgoing := range t.Send {
		out, err := outgoing.Envelope(now)
		if err != nil {
			return err
		}
		if err := o.publisher.Publish(ctx, out); err != nil {
			return fmt.Errorf("publish %s: %w", outgoing.MessageID, err)
		}
	}
	return nil
}

func load[S sagaState](def sagaDefinition[S], instance *store.SagaInstance, msg saga.Message, now time.Time) (S, saga.Transition, error) {
	var s S
	if err := json.Unmarshal(instance.Data, &s); err != nil {
		return s, saga.Transition{}, fmt.Errorf("decode %s state: %w", def.kind, err)
	}
	t, err := def.handle(s, msg, now)
	return s, t, err
}

func fill(instance *store.SagaInstance, s sagaState, t saga.Transition, now time.Time) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode %s state: %w", instance.Kind, err)
	}
	instance.Data = data
	instance.CurrentState = s.CurrentState()
	instance.UpdatedAt = now
	if t.Finalized && instance.FinishedAt == nil {
		finished := now
		instance.FinishedAt = &finished
	}
	return nil
}
